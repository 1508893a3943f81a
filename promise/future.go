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

package promise

import (
	"go.arsenm.dev/flowrpc/loop"
)

// Future is the result of an asynchronous operation as seen by
// workflow code. Settlements coming from the source operation are
// only applied during the callback phase of the owning loop, so
// everything that settles within one message is observed in a
// stable order.
type Future struct {
	name string
	seq  uint64
	src  *Deferred
	loop loop.Loop

	arrived bool
	state   State
	value   any
	err     error

	listeners []func(*Future)
}

// NewFuture wraps the source operation src. The name and
// sequence number identify the operation in diagnostics.
func NewFuture(name string, seq uint64, src *Deferred, l loop.Loop) *Future {
	f := &Future{name: name, seq: seq, src: src, loop: l}
	if src != nil {
		src.Then(f.arrive, func(err error) { f.arriveErr(err) })
	}
	return f
}

func (f *Future) arrive(v any) {
	if f.state != Pending || f.arrived {
		return
	}
	f.arrived = true
	f.loop.Once(loop.PhaseCallback, func() {
		f.settle(Fulfilled, v, nil)
	})
}

func (f *Future) arriveErr(err error) {
	if f.state != Pending || f.arrived {
		return
	}
	f.arrived = true
	f.loop.Once(loop.PhaseCallback, func() {
		f.settle(Rejected, nil, err)
	})
}

// settle applies the outcome and notifies listeners.
// It must only run during the callback phase.
func (f *Future) settle(state State, v any, err error) {
	if f.state != Pending {
		return
	}
	f.state = state
	f.value = v
	f.err = err
	f.notify()
}

func (f *Future) notify() {
	listeners := f.listeners
	f.listeners = nil
	for _, fn := range listeners {
		fn(f)
	}
}

// Name returns the name of the operation
func (f *Future) Name() string { return f.name }

// Seq returns the sequence number of the operation
func (f *Future) Seq() uint64 { return f.seq }

// State returns the visible state of the future
func (f *Future) State() State { return f.state }

// IsReady returns true once the outcome is visible to workflow code
func (f *Future) IsReady() bool { return f.state != Pending }

// IsComplete returns true once the source has settled, even
// if the outcome is not visible yet
func (f *Future) IsComplete() bool { return f.arrived || f.state != Pending }

// IsCanceled returns true if the future was canceled
func (f *Future) IsCanceled() bool { return f.state == Canceled }

// Value returns the fulfilled value
func (f *Future) Value() any { return f.value }

// Err returns the rejection reason, ErrCanceled if canceled
func (f *Future) Err() error { return f.err }

// Cancel cancels the future and the underlying operation. The
// canceled state is visible immediately, listeners are notified
// during the next callback phase.
func (f *Future) Cancel() {
	if f.state != Pending {
		return
	}
	f.state = Canceled
	f.err = ErrCanceled
	if f.src != nil {
		f.src.Cancel()
	}
	f.loop.Once(loop.PhaseCallback, f.notify)
}

// Then adds a listener that runs when the outcome becomes visible.
// A listener added to a settled future runs during the next
// callback phase, never inline.
func (f *Future) Then(fn func(*Future)) {
	f.listeners = append(f.listeners, fn)
	if f.state != Pending {
		f.loop.Once(loop.PhaseCallback, f.notify)
	}
}

// All returns a future that is fulfilled with the values of every
// given future, in input order, once all of them settled. If any of
// them failed, it is rejected with the first failure in input order.
func All(name string, seq uint64, l loop.Loop, futures ...*Future) *Future {
	out := &Future{name: name, seq: seq, loop: l}

	remaining := 0
	check := func(*Future) {
		remaining--
		if remaining > 0 {
			return
		}
		values := make([]any, len(futures))
		for i, in := range futures {
			if in.err != nil {
				out.settle(Rejected, nil, in.err)
				return
			}
			values[i] = in.value
		}
		out.settle(Fulfilled, values, nil)
	}

	for _, in := range futures {
		if !in.IsReady() {
			remaining++
			in.Then(check)
		}
	}
	if remaining == 0 {
		remaining = 1
		check(nil)
	}

	return out
}

// Any returns a future that settles with the outcome of the
// first given future to settle
func Any(name string, seq uint64, l loop.Loop, futures ...*Future) *Future {
	out := &Future{name: name, seq: seq, loop: l}

	for _, in := range futures {
		if in.IsReady() {
			out.settle(in.state, in.value, in.err)
			return out
		}
	}

	for _, in := range futures {
		in.Then(func(in *Future) {
			out.settle(in.state, in.value, in.err)
		})
	}

	return out
}
