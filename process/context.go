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

package process

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/internal/reflectutil"
	"go.arsenm.dev/flowrpc/loop"
	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/workflow"
)

// Names of the requests sent to the host by workflow code
const (
	ExecuteActivityRequest = "ExecuteActivity"
	NewTimerRequest        = "NewTimer"
)

type wfContext struct {
	inst *Instance
	opts workflow.ActivityOptions
}

var _ workflow.Context = (*wfContext)(nil)

func (c *wfContext) RunID() string      { return c.inst.RunID() }
func (c *wfContext) WorkflowID() string { return c.inst.WorkflowID() }
func (c *wfContext) Name() string       { return c.inst.Name() }
func (c *wfContext) TaskQueue() string  { return c.inst.TaskQueue() }
func (c *wfContext) Now() time.Time     { return c.inst.env.Now() }
func (c *wfContext) IsReplaying() bool  { return c.inst.env.IsReplaying() }
func (c *wfContext) Loop() loop.Loop    { return c.inst.env.Loop() }
func (c *wfContext) NextSeq() uint64    { return c.inst.nextSeq() }

func (c *wfContext) Logger() zerolog.Logger {
	log := c.inst.env.Logger().With().
		Str("workflow", c.inst.Name()).
		Str("run_id", c.inst.RunID()).
		Logger()
	if c.IsReplaying() {
		return log.Level(zerolog.Disabled)
	}
	return log
}

func (c *wfContext) ExecuteActivity(activity any, args ...any) workflow.Future {
	name, ok := activity.(string)
	if !ok {
		name = reflectutil.FuncName(activity)
	}
	if args == nil {
		args = []any{}
	}

	opts := c.opts
	if opts.TaskQueue == "" {
		opts.TaskQueue = c.TaskQueue()
	}

	return c.request(ExecuteActivityRequest+":"+name, ExecuteActivityRequest, command.Params{
		"name":    name,
		"args":    args,
		"options": opts,
		"runId":   c.RunID(),
	})
}

func (c *wfContext) NewTimer(d time.Duration) workflow.Future {
	return c.request(fmt.Sprintf("%s:%s", NewTimerRequest, d), NewTimerRequest, command.Params{
		"ms":    d.Milliseconds(),
		"runId": c.RunID(),
	})
}

func (c *wfContext) request(opName, reqName string, params command.Params) workflow.Future {
	seq := c.NextSeq()
	params["seq"] = seq
	src := c.inst.env.Request(reqName, params)
	f := promise.NewFuture(opName, seq, src, c.Loop())
	c.inst.track(f)
	return workflow.NewFuture(f)
}

func (c *wfContext) Await(cond func() bool) error {
	if cond() {
		return nil
	}

	co := c.inst.co
	if co == nil || !co.Running() {
		return ErrNotInWorkflow
	}

	for !cond() {
		c.inst.waitFor = cond
		c.inst.captureFrames()
		co.Park()
	}
	return nil
}

func (c *wfContext) SetQueryHandler(name string, handler any) error {
	if err := CheckHandler(handler); err != nil {
		return err
	}
	c.inst.queries[name] = handler
	return nil
}

func (c *wfContext) SetSignalHandler(name string, handler any) error {
	if err := CheckHandler(handler); err != nil {
		return err
	}
	c.inst.signals[name] = handler
	return nil
}

func (c *wfContext) WithActivityOptions(opts workflow.ActivityOptions) workflow.Context {
	return &wfContext{inst: c.inst, opts: opts}
}

func (c *wfContext) ActivityOptions() workflow.ActivityOptions {
	return c.opts
}
