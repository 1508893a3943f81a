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

package worker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
	"go.arsenm.dev/flowrpc/loop"
	"go.arsenm.dev/flowrpc/routes"
)

// DuplicateWorkerError is returned when a second worker
// is added for the same task queue
type DuplicateWorkerError struct {
	TaskQueue string
}

func (e *DuplicateWorkerError) Error() string {
	return fmt.Sprintf("a worker for task queue %q has already been added", e.TaskQueue)
}

// WorkerNotFoundError is returned when no worker
// runs the requested task queue
type WorkerNotFoundError struct {
	TaskQueue string
}

func (e *WorkerNotFoundError) Error() string {
	return fmt.Sprintf("no worker for task queue %q", e.TaskQueue)
}

// Pool holds one worker per task queue
type Pool struct {
	mtx     sync.RWMutex
	workers map[string]*Worker
}

var _ routes.Pool = (*Pool)(nil)

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{workers: map[string]*Worker{}}
}

// Add adds a worker to the pool
func (p *Pool) Add(w *Worker, overwrite bool) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if _, ok := p.workers[w.TaskQueue()]; ok && !overwrite {
		return &DuplicateWorkerError{TaskQueue: w.TaskQueue()}
	}
	p.workers[w.TaskQueue()] = w
	return nil
}

// Find returns the worker for a task queue
func (p *Pool) Find(taskQueue string) (*Worker, bool) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	w, ok := p.workers[taskQueue]
	return w, ok
}

// Loop returns the phase loop of the worker of a task queue
func (p *Pool) Loop(taskQueue string) (loop.Loop, bool) {
	w, ok := p.Find(taskQueue)
	if !ok {
		return nil, false
	}
	return w.Loop(), true
}

// TaskQueues returns the sorted task queues of the pool
func (p *Pool) TaskQueues() []string {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	queues := lo.Keys(p.workers)
	sort.Strings(queues)
	return queues
}

// Workers returns the workers of the pool sorted by task queue
func (p *Pool) Workers() []*Worker {
	queues := p.TaskQueues()
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return lo.FilterMap(queues, func(q string, _ int) (*Worker, bool) {
		w, ok := p.workers[q]
		return w, ok
	})
}

// Info describes every worker of the pool
func (p *Pool) Info() []routes.WorkerInfo {
	return lo.Map(p.Workers(), func(w *Worker, _ int) routes.WorkerInfo {
		return w.Info()
	})
}

// Tick ticks every worker of the pool in task queue order
func (p *Pool) Tick() {
	for _, w := range p.Workers() {
		w.Tick()
	}
}
