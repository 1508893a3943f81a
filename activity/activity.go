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

// Package activity contains the API used by activity code.
//
// Activity functions have the form
//
//	func(ctx context.Context, args ...) (R, error)
//
// and run on the worker as soon as the host asks for them.
package activity

import (
	"context"

	"go.arsenm.dev/flowrpc/command"
)

// ErrResultPending may be returned by an activity to tell the host
// that it will be completed later, outside of this worker
var ErrResultPending = command.NewKindError("doNotCompleteOnReturn", "activity result is pending")

// Info describes the activity being executed
type Info struct {
	ID         string `json:"id" mapstructure:"id"`
	Name       string `json:"name" mapstructure:"name"`
	TaskQueue  string `json:"taskQueue" mapstructure:"taskQueue"`
	WorkflowID string `json:"workflowId" mapstructure:"workflowId"`
	RunID      string `json:"runId" mapstructure:"runId"`
	Attempt    int    `json:"attempt" mapstructure:"attempt"`
}

type infoKey struct{}

// WithInfo returns a context carrying info
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

// GetInfo returns the info of the activity running with ctx
func GetInfo(ctx context.Context) Info {
	info, _ := ctx.Value(infoKey{}).(Info)
	return info
}
