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
	"encoding/json"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/internal/coroutine"
	"go.arsenm.dev/flowrpc/internal/reflectutil"
	"go.arsenm.dev/flowrpc/loop"
	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/workflow"
)

var contextType = reflect.TypeOf((*workflow.Context)(nil)).Elem()

// CheckHandler validates a workflow, query or signal handler
func CheckHandler(fn any) error {
	return reflectutil.CheckFunc(fn, contextType)
}

// State is the lifecycle state of a run
type State int

const (
	StateCreated State = iota
	StateRunning
	StateSuspended
	StateCompleted
	StateFailed
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Terminal returns true for states a run never leaves
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Env is the worker a run belongs to
type Env interface {
	TaskQueue() string
	Now() time.Time
	IsReplaying() bool
	Loop() loop.Loop
	Request(name string, params command.Params) *promise.Deferred
	Logger() zerolog.Logger
}

// Definition is a registered workflow
type Definition struct {
	Name    string
	Fn      any
	Queries []string
	Signals []string
}

// Info identifies a run
type Info struct {
	RunID      string `mapstructure:"runId"`
	WorkflowID string `mapstructure:"workflowId"`
	Name       string `mapstructure:"name"`
}

// Instance is a single run of a workflow
type Instance struct {
	info  Info
	def   Definition
	args  []any
	env   Env
	order uint64

	co     *coroutine.Coroutine
	state  State
	result *promise.Deferred

	seq     uint64
	queries map[string]any
	signals map[string]any
	waitFor func() bool
	pending map[uint64]*promise.Future
	frames  []Frame
}

// New creates a run of the workflow def. It does not start until
// Start is called.
func New(info Info, def Definition, args []any, env Env) *Instance {
	if info.Name == "" {
		info.Name = def.Name
	}
	return &Instance{
		info:    info,
		def:     def,
		args:    args,
		env:     env,
		result:  promise.New(nil),
		queries: map[string]any{},
		signals: map[string]any{},
		pending: map[uint64]*promise.Future{},
	}
}

func (i *Instance) RunID() string      { return i.info.RunID }
func (i *Instance) WorkflowID() string { return i.info.WorkflowID }
func (i *Instance) Name() string       { return i.info.Name }
func (i *Instance) TaskQueue() string  { return i.env.TaskQueue() }
func (i *Instance) State() State       { return i.state }

// Loop returns the phase loop of the worker running the instance
func (i *Instance) Loop() loop.Loop { return i.env.Loop() }

// Result returns the pending result of the run
func (i *Instance) Result() *promise.Deferred { return i.result }

// Context returns a workflow context bound to the instance
func (i *Instance) Context() workflow.Context {
	return &wfContext{inst: i}
}

// Start runs the workflow function until it first parks and
// returns the pending result of the run
func (i *Instance) Start() *promise.Deferred {
	if i.state != StateCreated {
		return i.result
	}

	ctx := i.Context()
	i.co = coroutine.New(func(*coroutine.Coroutine) (any, error) {
		return reflectutil.Call(i.def.Fn, []reflect.Value{reflect.ValueOf(ctx)}, i.args)
	})

	i.state = StateRunning
	i.co.Start()
	i.afterRun()
	return i.result
}

// Poll resumes the instance if the condition it is waiting
// for has become true. It returns whether the instance ran.
func (i *Instance) Poll() bool {
	if i.state != StateSuspended || i.waitFor == nil || !i.waitFor() {
		return false
	}
	i.waitFor = nil
	i.state = StateRunning
	i.co.Resume()
	i.afterRun()
	return true
}

func (i *Instance) afterRun() {
	if !i.co.Done() {
		i.state = StateSuspended
		return
	}

	val, err := i.co.Result()
	if err != nil {
		i.state = StateFailed
		i.result.Reject(&WorkflowExecutionFailure{RunID: i.info.RunID, Err: err})
		return
	}
	i.state = StateCompleted
	i.frames = nil
	i.result.Resolve(val)
}

// Destroy kills the workflow function and cancels every pending
// operation of the run
func (i *Instance) Destroy() {
	if i.state.Terminal() {
		return
	}
	if i.co != nil && !i.co.Done() {
		i.co.Kill()
	}
	for _, seq := range i.pendingSeqs() {
		i.pending[seq].Cancel()
	}
	i.state = StateDestroyed
	i.result.Reject(ErrDestroyed)
}

// FindQueryHandler returns the query handler registered under name
func (i *Instance) FindQueryHandler(name string) (any, bool) {
	fn, ok := i.queries[name]
	return fn, ok
}

// FindSignalHandler returns the signal handler registered under name
func (i *Instance) FindSignalHandler(name string) (any, bool) {
	fn, ok := i.signals[name]
	return fn, ok
}

// QueryHandlerNames returns the sorted names of the query handlers
func (i *Instance) QueryHandlerNames() []string {
	return sortedKeys(i.queries)
}

// SignalHandlerNames returns the sorted names of the signal handlers
func (i *Instance) SignalHandlerNames() []string {
	return sortedKeys(i.signals)
}

// Query runs the named query handler with args
func (i *Instance) Query(name string, args []any) (any, error) {
	fn, ok := i.FindQueryHandler(name)
	if !ok {
		return nil, &QueryHandlerNotFoundError{Name: name, Known: i.QueryHandlerNames()}
	}
	return reflectutil.Call(fn, []reflect.Value{reflect.ValueOf(i.Context())}, args)
}

// Signal runs the named signal handler with args
func (i *Instance) Signal(name string, args []any) error {
	fn, ok := i.FindSignalHandler(name)
	if !ok {
		return &SignalHandlerNotFoundError{Name: name, Known: i.SignalHandlerNames()}
	}
	_, err := reflectutil.Call(fn, []reflect.Value{reflect.ValueOf(i.Context())}, args)
	return err
}

func (i *Instance) nextSeq() uint64 {
	i.seq++
	return i.seq
}

// track records a pending operation for the stack trace
func (i *Instance) track(f *promise.Future) {
	i.pending[f.Seq()] = f
	f.Then(func(f *promise.Future) {
		delete(i.pending, f.Seq())
	})
}

func (i *Instance) pendingSeqs() []uint64 {
	seqs := lo.Keys(i.pending)
	sort.Slice(seqs, func(a, b int) bool { return seqs[a] < seqs[b] })
	return seqs
}

// Frame is a single call frame of a parked workflow
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Operation is an operation a parked workflow is waiting for
type Operation struct {
	Seq  uint64 `json:"seq"`
	Name string `json:"name"`
}

// Snapshot describes where a workflow is parked
type Snapshot struct {
	RunID   string      `json:"runId"`
	Name    string      `json:"name"`
	State   string      `json:"state"`
	Frames  []Frame     `json:"frames"`
	Pending []Operation `json:"pending"`
}

// Snapshot returns a snapshot of the instance
func (i *Instance) Snapshot() Snapshot {
	out := Snapshot{
		RunID:   i.info.RunID,
		Name:    i.info.Name,
		State:   i.state.String(),
		Frames:  i.frames,
		Pending: []Operation{},
	}
	if out.Frames == nil {
		out.Frames = []Frame{}
	}
	for _, seq := range i.pendingSeqs() {
		if f := i.pending[seq]; !f.IsReady() {
			out.Pending = append(out.Pending, Operation{Seq: seq, Name: f.Name()})
		}
	}
	return out
}

// StackTrace returns the snapshot of the instance as indented JSON
func (i *Instance) StackTrace() (string, error) {
	data, err := json.MarshalIndent(i.Snapshot(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// captureFrames records the frames of the workflow goroutine
// above the caller, leaving out the runtime internals
func (i *Instance) captureFrames() {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	i.frames = nil
	for {
		frame, more := frames.Next()
		if !skipFrame(frame.Function) {
			i.frames = append(i.frames, Frame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
		}
		if !more {
			break
		}
	}
}

func skipFrame(fn string) bool {
	return strings.HasPrefix(fn, "runtime.") ||
		strings.HasPrefix(fn, "reflect.") ||
		strings.Contains(fn, "/internal/coroutine.") ||
		strings.Contains(fn, "/internal/reflectutil.")
}

func sortedKeys(m map[string]any) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
