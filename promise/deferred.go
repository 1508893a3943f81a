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
	"errors"
	"sync"

	"go.arsenm.dev/flowrpc/command"
)

// ErrCanceled is the outcome observed by anyone waiting
// on an operation that was canceled
var ErrCanceled = command.NewKindError("CanceledError", "operation canceled")

// State is the settlement state of a pending result
type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
	Canceled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Deferred is a pending result that is settled at most once.
// Listeners run synchronously when it settles.
type Deferred struct {
	mtx       sync.Mutex
	state     State
	value     any
	err       error
	canceller func()

	onFulfilled []func(any)
	onRejected  []func(error)
}

// New creates a pending result. The canceller, if not nil,
// runs once when the result is canceled.
func New(canceller func()) *Deferred {
	return &Deferred{canceller: canceller}
}

// Resolved returns a result that is already fulfilled with v
func Resolved(v any) *Deferred {
	d := New(nil)
	d.Resolve(v)
	return d
}

// RejectedWith returns a result that is already rejected with err
func RejectedWith(err error) *Deferred {
	d := New(nil)
	d.Reject(err)
	return d
}

// Resolve fulfills the result. It returns false if the
// result was already settled or canceled.
func (d *Deferred) Resolve(v any) bool {
	d.mtx.Lock()
	if d.state != Pending {
		d.mtx.Unlock()
		return false
	}
	d.state = Fulfilled
	d.value = v
	listeners := d.onFulfilled
	d.onFulfilled, d.onRejected = nil, nil
	d.mtx.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
	return true
}

// Reject fails the result. It returns false if the
// result was already settled or canceled.
func (d *Deferred) Reject(err error) bool {
	d.mtx.Lock()
	if d.state != Pending {
		d.mtx.Unlock()
		return false
	}
	d.state = Rejected
	d.err = err
	listeners := d.onRejected
	d.onFulfilled, d.onRejected = nil, nil
	d.mtx.Unlock()

	for _, fn := range listeners {
		fn(err)
	}
	return true
}

// Cancel cancels a pending result, runs the canceller and
// rejects listeners with ErrCanceled. Canceling a settled
// result does nothing.
func (d *Deferred) Cancel() bool {
	d.mtx.Lock()
	if d.state != Pending {
		d.mtx.Unlock()
		return false
	}
	d.state = Canceled
	d.err = ErrCanceled
	canceller := d.canceller
	listeners := d.onRejected
	d.onFulfilled, d.onRejected = nil, nil
	d.mtx.Unlock()

	if canceller != nil {
		canceller()
	}
	for _, fn := range listeners {
		fn(ErrCanceled)
	}
	return true
}

// Then adds listeners for the outcome of the result. If the result
// has already settled, the matching listener runs immediately.
func (d *Deferred) Then(onFulfilled func(any), onRejected func(error)) {
	d.mtx.Lock()
	switch d.state {
	case Pending:
		if onFulfilled != nil {
			d.onFulfilled = append(d.onFulfilled, onFulfilled)
		}
		if onRejected != nil {
			d.onRejected = append(d.onRejected, onRejected)
		}
		d.mtx.Unlock()
	case Fulfilled:
		v := d.value
		d.mtx.Unlock()
		if onFulfilled != nil {
			onFulfilled(v)
		}
	default:
		err := d.err
		d.mtx.Unlock()
		if onRejected != nil {
			onRejected(err)
		}
	}
}

// State returns the current state of the result
func (d *Deferred) State() State {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.state
}

// Value returns the fulfilled value, if any
func (d *Deferred) Value() any {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.value
}

// Err returns the rejection reason, if any
func (d *Deferred) Err() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.err
}

// IsCanceled returns true if err reports a canceled operation,
// either locally or as a failure received from the host
func IsCanceled(err error) bool {
	if errors.Is(err, ErrCanceled) {
		return true
	}
	var f *command.Failure
	return errors.As(err, &f) && f.Kind == ErrCanceled.Kind()
}
