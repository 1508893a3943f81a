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

package process

import (
	"sort"
	"sync"
)

// Running is the registry of active workflow runs. It is shared
// by every worker of the process.
type Running struct {
	mtx       sync.Mutex
	lastOrder uint64
	instances map[string]*Instance
}

// NewRunning creates an empty registry
func NewRunning() *Running {
	return &Running{instances: map[string]*Instance{}}
}

// Find returns the run with the given id
func (r *Running) Find(runID string) (*Instance, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	inst, ok := r.instances[runID]
	return inst, ok
}

// Add adds a run to the registry
func (r *Running) Add(inst *Instance) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, ok := r.instances[inst.RunID()]; ok {
		return &DuplicateRunError{RunID: inst.RunID()}
	}

	r.lastOrder++
	inst.order = r.lastOrder
	r.instances[inst.RunID()] = inst
	return nil
}

// Remove removes a run from the registry
func (r *Running) Remove(runID string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	delete(r.instances, runID)
}

// Instances returns every run in the order they were added
func (r *Running) Instances() []*Instance {
	r.mtx.Lock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	r.mtx.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].order < out[j].order
	})
	return out
}

// RunIDs returns the ids of every run in the order they were added
func (r *Running) RunIDs() []string {
	instances := r.Instances()
	out := make([]string, len(instances))
	for i, inst := range instances {
		out[i] = inst.RunID()
	}
	return out
}

// Len returns the amount of runs in the registry
func (r *Running) Len() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.instances)
}
