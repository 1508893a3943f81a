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

// Package workflow contains the API used by workflow code.
//
// Workflow functions have the form
//
//	func(ctx workflow.Context, args ...) (R, error)
//
// and must be deterministic: time is read through ctx.Now(), and
// everything that touches the outside world is done by activities.
package workflow

import (
	"time"

	"github.com/rs/zerolog"
	"go.arsenm.dev/flowrpc/loop"
	"go.arsenm.dev/flowrpc/promise"
)

// Context is passed to workflow functions, query handlers and
// signal handlers
type Context interface {
	// RunID returns the id of this execution
	RunID() string
	// WorkflowID returns the business id of the workflow
	WorkflowID() string
	// Name returns the registered name of the workflow
	Name() string
	// TaskQueue returns the task queue the workflow runs on
	TaskQueue() string
	// Now returns the tick time of the worker
	Now() time.Time
	// IsReplaying returns true while the host is replaying history
	IsReplaying() bool
	// Logger returns a logger that is silenced during replay
	Logger() zerolog.Logger

	// ExecuteActivity asks the host to run an activity. The activity
	// may be given by its registered name or as a function.
	ExecuteActivity(activity any, args ...any) Future
	// NewTimer returns a future that is fulfilled once d has passed
	NewTimer(d time.Duration) Future
	// Await parks the workflow until cond returns true
	Await(cond func() bool) error

	// SetQueryHandler registers a query handler with the form
	// func(ctx Context, args ...) (R, error)
	SetQueryHandler(name string, handler any) error
	// SetSignalHandler registers a signal handler with the form
	// func(ctx Context, args ...) error
	SetSignalHandler(name string, handler any) error

	// WithActivityOptions returns a copy of the context using opts
	// for activities it executes
	WithActivityOptions(opts ActivityOptions) Context
	// ActivityOptions returns the activity options of the context
	ActivityOptions() ActivityOptions

	// Loop returns the phase loop of the owning worker
	Loop() loop.Loop
	// NextSeq returns the next operation sequence number
	NextSeq() uint64
}

// ActivityOptions is sent to the host with every activity request
type ActivityOptions struct {
	TaskQueue              string        `json:"taskQueue,omitempty" mapstructure:"taskQueue"`
	ScheduleToCloseTimeout time.Duration `json:"scheduleToCloseTimeout,omitempty" mapstructure:"scheduleToCloseTimeout"`
	StartToCloseTimeout    time.Duration `json:"startToCloseTimeout,omitempty" mapstructure:"startToCloseTimeout"`
	HeartbeatTimeout       time.Duration `json:"heartbeatTimeout,omitempty" mapstructure:"heartbeatTimeout"`
	RetryPolicy            *RetryPolicy  `json:"retryPolicy,omitempty" mapstructure:"retryPolicy"`
}

// RetryPolicy tells the host how to retry a failed activity
type RetryPolicy struct {
	// Backoff interval for the first retry
	InitialInterval time.Duration `json:"initialInterval,omitempty" mapstructure:"initialInterval"`
	// Multiplier applied to the interval after every retry
	BackoffCoefficient float64 `json:"backoffCoefficient,omitempty" mapstructure:"backoffCoefficient"`
	// Cap of the backoff interval
	MaximumInterval time.Duration `json:"maximumInterval,omitempty" mapstructure:"maximumInterval"`
	// Maximum number of attempts, 0 means unlimited
	MaximumAttempts int32 `json:"maximumAttempts,omitempty" mapstructure:"maximumAttempts"`
	// Error kinds that are never retried
	NonRetryableErrorTypes []string `json:"nonRetryableErrorTypes,omitempty" mapstructure:"nonRetryableErrorTypes"`
}

// ErrCanceled is returned by Future.Get when the future was canceled
var ErrCanceled = promise.ErrCanceled

// IsCanceledError returns true if err reports a canceled operation
func IsCanceledError(err error) bool {
	return promise.IsCanceled(err)
}

// ExecuteActivity is a shorthand for ctx.ExecuteActivity
func ExecuteActivity(ctx Context, activity any, args ...any) Future {
	return ctx.ExecuteActivity(activity, args...)
}

// WithActivityOptions is a shorthand for ctx.WithActivityOptions
func WithActivityOptions(ctx Context, opts ActivityOptions) Context {
	return ctx.WithActivityOptions(opts)
}

// Await is a shorthand for ctx.Await
func Await(ctx Context, cond func() bool) error {
	return ctx.Await(cond)
}

// Sleep parks the workflow for the given duration of host time
func Sleep(ctx Context, d time.Duration) error {
	return ctx.NewTimer(d).Get(ctx, nil)
}

// Now is a shorthand for ctx.Now
func Now(ctx Context) time.Time {
	return ctx.Now()
}
