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

package workflow

import (
	"go.arsenm.dev/flowrpc/internal/reflectutil"
	"go.arsenm.dev/flowrpc/promise"
)

// Future is the result of an asynchronous workflow operation
type Future interface {
	// Get parks the workflow until the future is ready and stores
	// its value in valuePtr, which may be nil
	Get(ctx Context, valuePtr any) error
	// IsReady returns true once Get would not park
	IsReady() bool
	// Cancel cancels the operation. Get returns ErrCanceled afterwards.
	Cancel()
	// Underlying returns the future this one wraps
	Underlying() *promise.Future
}

type future struct {
	f *promise.Future
}

// NewFuture wraps a promise future for use by workflow code
func NewFuture(f *promise.Future) Future {
	return future{f: f}
}

func (f future) Get(ctx Context, valuePtr any) error {
	if err := ctx.Await(f.f.IsReady); err != nil {
		return err
	}

	if err := f.f.Err(); err != nil {
		return err
	}

	if valuePtr == nil {
		return nil
	}
	return reflectutil.Assign(f.f.Value(), valuePtr)
}

func (f future) IsReady() bool {
	return f.f.IsReady()
}

func (f future) Cancel() {
	f.f.Cancel()
}

func (f future) Underlying() *promise.Future {
	return f.f
}

// All returns a future whose value is the list of values of the
// given futures, in the order they were given, once every one of
// them is ready. It fails with the first failure in that order.
func All(ctx Context, futures ...Future) Future {
	return NewFuture(promise.All("All", ctx.NextSeq(), ctx.Loop(), unwrap(futures)...))
}

// Any returns a future with the outcome of the first given
// future to become ready
func Any(ctx Context, futures ...Future) Future {
	return NewFuture(promise.Any("Any", ctx.NextSeq(), ctx.Loop(), unwrap(futures)...))
}

func unwrap(futures []Future) []*promise.Future {
	out := make([]*promise.Future, len(futures))
	for i, f := range futures {
		out[i] = f.Underlying()
	}
	return out
}
