/*
 *	flowrpc runs workflow and activity code on behalf of an orchestration host.
 *	Copyright (C) 2022 Arsen Musayelyan
 *
 *	This program is free software: you can redistribute it and/or modify
 *	it under the terms of the GNU General Public License as published by
 *	the Free Software Foundation, either version 3 of the License, or
 *	(at your option) any later version.
 *
 *	This program is distributed in the hope that it will be useful,
 *	but WITHOUT ANY WARRANTY; without even the implied warranty of
 *	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *	GNU General Public License for more details.
 *
 *	You should have received a copy of the GNU General Public License
 *	along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package loop

// Phase is a point of the tick cycle listeners can wait for
type Phase int

// Phases, in the order they are fired at the end of every tick
const (
	PhaseSignal Phase = iota
	PhaseCallback
	PhaseQuery
	PhaseTick
)

// Phases lists every phase in firing order
var Phases = [...]Phase{PhaseSignal, PhaseCallback, PhaseQuery, PhaseTick}

func (p Phase) String() string {
	switch p {
	case PhaseSignal:
		return "signal"
	case PhaseCallback:
		return "callback"
	case PhaseQuery:
		return "query"
	case PhaseTick:
		return "tick"
	default:
		return "unknown"
	}
}

// Loop accepts one-shot listeners for a phase
type Loop interface {
	Once(phase Phase, fn func())
}

// Emitter stores one-shot phase listeners. The zero value is ready to use.
type Emitter struct {
	once [len(Phases)][]func()
	hook [len(Phases)][]func()
}

var _ Loop = (*Emitter)(nil)

// Once adds a listener that runs the next time the phase fires.
// Listeners added while the phase is firing wait for the next tick.
func (e *Emitter) Once(phase Phase, fn func()) {
	e.once[phase] = append(e.once[phase], fn)
}

// On adds a listener that runs every time the phase fires,
// after the one-shot listeners
func (e *Emitter) On(phase Phase, fn func()) {
	e.hook[phase] = append(e.hook[phase], fn)
}

// Emit runs the listeners of a phase in the order they were added
func (e *Emitter) Emit(phase Phase) {
	listeners := e.once[phase]
	e.once[phase] = nil
	for _, fn := range listeners {
		fn()
	}
	for _, fn := range e.hook[phase] {
		fn()
	}
}

// Pending returns the amount of one-shot listeners waiting for a phase
func (e *Emitter) Pending(phase Phase) int {
	return len(e.once[phase])
}
