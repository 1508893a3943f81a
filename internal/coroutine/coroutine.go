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

// Package coroutine runs a function on its own goroutine while
// letting only one side make progress at a time, so that the
// function can suspend itself and be resumed by its owner.
package coroutine

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	// ErrKilled is the result of a coroutine that was killed while parked
	ErrKilled = errors.New("coroutine killed")
	// ErrNotRunning is raised when Park is called from outside the coroutine
	ErrNotRunning = errors.New("park called outside of a running coroutine")
)

// killed is thrown through the coroutine's stack to unwind it
type killed struct{}

// PanicError is the result of a coroutine that panicked
type PanicError struct {
	Value any
	stack string
}

func (pe *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", pe.Value)
}

// Stack returns the stack of the goroutine at the time of the panic
func (pe *PanicError) Stack() string {
	return pe.stack
}

// Func is the body of a coroutine
type Func func(co *Coroutine) (any, error)

// Coroutine is a function that can park itself until resumed
type Coroutine struct {
	fn Func

	resume chan bool
	yield  chan struct{}

	mtx     sync.Mutex
	started bool
	running bool
	wake    bool
	done    bool
	value   any
	err     error
}

// New creates a coroutine that will run fn once started
func New(fn Func) *Coroutine {
	return &Coroutine{
		fn:     fn,
		resume: make(chan bool),
		yield:  make(chan struct{}),
	}
}

// Start runs the coroutine until it parks or returns.
// Calling Start more than once has no effect.
func (c *Coroutine) Start() {
	c.mtx.Lock()
	if c.started {
		c.mtx.Unlock()
		return
	}
	c.started = true
	c.running = true
	c.mtx.Unlock()

	go c.run()
	<-c.yield
}

func (c *Coroutine) run() {
	defer func() {
		var (
			val any
			err error
		)
		if r := recover(); r != nil {
			if _, ok := r.(killed); ok {
				err = ErrKilled
			} else {
				err = &PanicError{Value: r, stack: string(debug.Stack())}
			}
		} else {
			val, err = c.value, c.err
		}

		c.mtx.Lock()
		c.value, c.err = val, err
		c.done = true
		c.running = false
		c.mtx.Unlock()

		c.yield <- struct{}{}
	}()

	val, err := c.fn(c)
	c.mtx.Lock()
	c.value, c.err = val, err
	c.mtx.Unlock()
}

// Resume continues a parked coroutine until it parks again
// or returns. Resuming a running coroutine makes its next
// Park return immediately.
func (c *Coroutine) Resume() {
	c.send(false)
}

// Kill unwinds a parked coroutine. Its result becomes ErrKilled.
func (c *Coroutine) Kill() {
	c.send(true)
}

func (c *Coroutine) send(kill bool) {
	c.mtx.Lock()
	if !c.started || c.done {
		c.mtx.Unlock()
		return
	}
	if c.running {
		c.wake = !kill
		c.mtx.Unlock()
		return
	}
	c.running = true
	c.mtx.Unlock()

	c.resume <- kill
	<-c.yield
}

// Park suspends the coroutine until it is resumed. It must
// only be called from within the coroutine's function.
func (c *Coroutine) Park() {
	c.mtx.Lock()
	if !c.running {
		c.mtx.Unlock()
		panic(ErrNotRunning)
	}
	if c.wake {
		c.wake = false
		c.mtx.Unlock()
		return
	}
	c.running = false
	c.mtx.Unlock()

	c.yield <- struct{}{}
	if kill := <-c.resume; kill {
		panic(killed{})
	}
}

// Running returns true while the coroutine's function is executing
func (c *Coroutine) Running() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.running
}

// Started returns true once Start has been called
func (c *Coroutine) Started() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.started
}

// Done returns true once the function has returned
func (c *Coroutine) Done() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.done
}

// Result returns the value and error the function returned
func (c *Coroutine) Result() (any, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.value, c.err
}
