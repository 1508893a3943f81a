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
	"fmt"

	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/loop"
	"go.arsenm.dev/flowrpc/process"
	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/router"
)

// Workflows is the worker side of the workflow driver
type Workflows interface {
	process.Env
	Workflow(name string) (process.Definition, bool)
	Running() *process.Running
}

type runParams struct {
	RunID      string `mapstructure:"runId"`
	WorkflowID string `mapstructure:"workflowId"`
	Name       string `mapstructure:"name"`
	Args       []any  `mapstructure:"args"`
}

func decodeRun(route string, params command.Params, needName bool) (runParams, error) {
	var p runParams
	if err := params.Decode(&p); err != nil {
		return p, fmt.Errorf("%s: %w", route, err)
	}
	if p.RunID == "" {
		return p, &MissingParamError{Route: route, Param: "runId"}
	}
	if needName && p.Name == "" {
		return p, &MissingParamError{Route: route, Param: "name"}
	}
	if p.Args == nil {
		p.Args = params.Args()
	}
	return p, nil
}

// Workflow returns the routes of the workflow driver of w
func Workflow(w Workflows) []router.Route {
	return []router.Route{
		NewStartWorkflow(w),
		NewDestroyWorkflow(w.Running()),
	}
}

// NewStartWorkflow returns a route that starts a workflow run. Its
// result settles once the run completes or fails.
func NewStartWorkflow(w Workflows) router.Route {
	return router.Func(StartWorkflow, func(params command.Params, _ command.Headers, d *promise.Deferred) error {
		p, err := decodeRun(StartWorkflow, params, true)
		if err != nil {
			return err
		}

		def, ok := w.Workflow(p.Name)
		if !ok {
			return &NotRegisteredError{Type: "workflow", Name: p.Name}
		}

		inst := process.New(process.Info{
			RunID:      p.RunID,
			WorkflowID: p.WorkflowID,
			Name:       def.Name,
		}, def, p.Args, w)
		if err := w.Running().Add(inst); err != nil {
			return err
		}

		log := w.Logger().With().Str("run_id", p.RunID).Str("workflow", def.Name).Logger()
		log.Debug().Msg("Starting workflow")

		res := inst.Start()
		res.Then(
			func(any) { log.Debug().Msg("Workflow completed") },
			func(err error) { log.Debug().Err(err).Msg("Workflow did not complete") },
		)
		pipe(res, d)
		return nil
	})
}

// NewDestroyWorkflow returns a route that kills a run and drops it
func NewDestroyWorkflow(running *process.Running) router.Route {
	return router.Func(DestroyWorkflow, func(params command.Params, _ command.Headers, d *promise.Deferred) error {
		p, err := decodeRun(DestroyWorkflow, params, false)
		if err != nil {
			return err
		}

		inst, ok := running.Find(p.RunID)
		if !ok {
			return &process.ProcessNotFoundError{RunID: p.RunID}
		}
		inst.Destroy()
		running.Remove(p.RunID)
		d.Resolve(nil)
		return nil
	})
}

// NewGetStackTrace returns a route that describes where a run is parked
func NewGetStackTrace(running *process.Running) router.Route {
	return router.Func(GetStackTrace, func(params command.Params, _ command.Headers, d *promise.Deferred) error {
		p, err := decodeRun(GetStackTrace, params, false)
		if err != nil {
			return err
		}

		inst, ok := running.Find(p.RunID)
		if !ok {
			return &process.ProcessNotFoundError{RunID: p.RunID}
		}
		trace, err := inst.StackTrace()
		settle(d, trace, err)
		return nil
	})
}

// NewInvokeQuery returns a route that answers a query during the
// query phase, after signals and callbacks of the tick were applied
func NewInvokeQuery(running *process.Running, loops Loops) router.Route {
	return router.Func(InvokeQuery, func(params command.Params, headers command.Headers, d *promise.Deferred) error {
		p, err := decodeRun(InvokeQuery, params, true)
		if err != nil {
			return err
		}

		return schedule(running, loops, headers, loop.PhaseQuery, p.RunID, d, func(inst *process.Instance) {
			if inst.State() == process.StateFailed {
				d.Reject(&process.ProcessNotFoundError{RunID: p.RunID})
				return
			}
			val, err := inst.Query(p.Name, p.Args)
			settle(d, val, err)
		})
	})
}

// NewInvokeSignal returns a route that applies a signal
// during the signal phase
func NewInvokeSignal(running *process.Running, loops Loops) router.Route {
	return router.Func(InvokeSignal, func(params command.Params, headers command.Headers, d *promise.Deferred) error {
		p, err := decodeRun(InvokeSignal, params, true)
		if err != nil {
			return err
		}

		return schedule(running, loops, headers, loop.PhaseSignal, p.RunID, d, func(inst *process.Instance) {
			if inst.State().Terminal() {
				d.Reject(&process.ProcessNotFoundError{RunID: p.RunID})
				return
			}
			settle(d, nil, inst.Signal(p.Name, p.Args))
		})
	})
}

// Loops finds the phase loop of the worker of a task queue
type Loops interface {
	Loop(taskQueue string) (loop.Loop, bool)
}

// schedule runs fn with the run during the given phase. The run is
// looked up again when the phase fires, so that runs started later
// in the same batch are found. Until then, the loop of the worker
// named by the taskQueue header stands in for the loop of the run.
func schedule(running *process.Running, loops Loops, headers command.Headers, phase loop.Phase, runID string, d *promise.Deferred, fn func(*process.Instance)) error {
	var l loop.Loop
	if inst, ok := running.Find(runID); ok {
		l = inst.Loop()
	} else if taskQueue, ok := headers.Get(command.HeaderTaskQueue); ok && loops != nil {
		l, _ = loops.Loop(taskQueue)
	}
	if l == nil {
		return &process.ProcessNotFoundError{RunID: runID}
	}

	l.Once(phase, func() {
		defer func() {
			if r := recover(); r != nil {
				d.Reject(fmt.Errorf("handler for run %q panicked: %v", runID, r))
			}
		}()

		inst, ok := running.Find(runID)
		if !ok {
			d.Reject(&process.ProcessNotFoundError{RunID: runID})
			return
		}
		fn(inst)
	})
	return nil
}
