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

package routes

import (
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/process"
	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/router"
)

// WorkflowInfo describes a registered workflow
type WorkflowInfo struct {
	Name    string   `json:"name"`
	Queries []string `json:"queries"`
	Signals []string `json:"signals"`
}

// WorkerInfo describes a worker
type WorkerInfo struct {
	TaskQueue  string         `json:"taskQueue"`
	Identity   string         `json:"identity"`
	Workflows  []WorkflowInfo `json:"workflows"`
	Activities []string       `json:"activities"`
}

// Pool describes every worker of the process
type Pool interface {
	Loops
	Info() []WorkerInfo
}

// Global returns the routes answered by the process regardless
// of the task queue
func Global(pool Pool, running *process.Running) []router.Route {
	return []router.Route{
		NewGetWorkerInfo(pool),
		NewGetStackTrace(running),
		NewInvokeQuery(running, pool),
		NewInvokeSignal(running, pool),
	}
}

// NewGetWorkerInfo returns a route that lists the workers of the process
func NewGetWorkerInfo(pool Pool) router.Route {
	return router.Func(GetWorkerInfo, func(_ command.Params, _ command.Headers, d *promise.Deferred) error {
		d.Resolve(map[string]any{"workers": pool.Info()})
		return nil
	})
}
