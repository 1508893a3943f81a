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

import "go.arsenm.dev/flowrpc/internal/reflectutil"

type registerOptions struct {
	name      string
	overwrite bool
	queries   []string
	signals   []string
}

// RegisterOption changes how a workflow or activity is registered
type RegisterOption func(*registerOptions)

// WithName registers the function under name instead
// of the name of the function
func WithName(name string) RegisterOption {
	return func(o *registerOptions) {
		o.name = name
	}
}

// WithOverwrite replaces a function already registered
// under the same name instead of failing
func WithOverwrite() RegisterOption {
	return func(o *registerOptions) {
		o.overwrite = true
	}
}

// WithQueries declares the queries a workflow answers,
// as reported by GetWorkerInfo
func WithQueries(names ...string) RegisterOption {
	return func(o *registerOptions) {
		o.queries = append(o.queries, names...)
	}
}

// WithSignals declares the signals a workflow accepts,
// as reported by GetWorkerInfo
func WithSignals(names ...string) RegisterOption {
	return func(o *registerOptions) {
		o.signals = append(o.signals, names...)
	}
}

func newRegisterOptions(fn any, opts []RegisterOption) registerOptions {
	o := registerOptions{name: reflectutil.FuncName(fn)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
