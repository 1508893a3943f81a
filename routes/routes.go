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

// Package routes contains the routes a worker process answers:
// the global routes, the workflow driver routes and the activity
// driver routes.
package routes

import (
	"fmt"

	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/router"
)

// Route names
const (
	GetWorkerInfo   = "GetWorkerInfo"
	GetStackTrace   = "GetStackTrace"
	InvokeQuery     = "InvokeQuery"
	InvokeSignal    = "InvokeSignal"
	StartWorkflow   = "StartWorkflow"
	DestroyWorkflow = "DestroyWorkflow"
	InvokeActivity  = "InvokeActivity"
)

// NotRegisteredError is returned when the host asks for a
// workflow or activity the worker does not know
type NotRegisteredError struct {
	Type string
	Name string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("%s %q is not registered", e.Type, e.Name)
}

// MissingParamError is returned when a required parameter is empty
type MissingParamError struct {
	Route string
	Param string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("%s: missing parameter %q", e.Route, e.Param)
}

// AddAll adds every route to r
func AddAll(r *router.Router, overwrite bool, rs ...router.Route) error {
	for _, route := range rs {
		if err := r.Add(route, overwrite); err != nil {
			return err
		}
	}
	return nil
}

// pipe settles dst with the outcome of src
func pipe(src, dst *promise.Deferred) {
	src.Then(
		func(v any) { dst.Resolve(v) },
		func(err error) { dst.Reject(err) },
	)
}

// settle settles d with a value and an error returned by a call
func settle(d *promise.Deferred, val any, err error) {
	if err != nil {
		d.Reject(err)
		return
	}
	d.Resolve(val)
}
