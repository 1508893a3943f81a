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

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.arsenm.dev/flowrpc/client"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/internal/reflectutil"
	"go.arsenm.dev/flowrpc/loop"
	"go.arsenm.dev/flowrpc/process"
	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/router"
	"go.arsenm.dev/flowrpc/routes"
)

// Environments a worker can run in
const (
	EnvWorkflow = "workflow"
	EnvActivity = "activity"
)

var (
	ErrInvalidType     = errors.New("type must be struct or pointer to struct")
	ErrNoActivities    = errors.New("type has no methods usable as activities")
	ErrInvalidTickTime = errors.New("tick time header is not an RFC3339 timestamp")
)

var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()

// UnsupportedEnvironmentError is returned when a request asks for an
// environment the worker cannot run in. It is fatal to the process.
type UnsupportedEnvironmentError struct {
	Env string
}

func (e *UnsupportedEnvironmentError) Error() string {
	return fmt.Sprintf("unsupported environment %q, expected %q or %q", e.Env, EnvWorkflow, EnvActivity)
}

func (e *UnsupportedEnvironmentError) Fatal() bool { return true }

// Config holds the state a worker shares with the rest of the process
type Config struct {
	// Environment is used when a request has no env header
	Environment string
	// Running is the registry of workflow runs of the process
	Running *process.Running
	// Client sends requests to the host
	Client *client.Client
	// Identity is reported by GetWorkerInfo
	Identity string
	Logger   zerolog.Logger
}

// Worker runs the workflows and activities of a single task queue
type Worker struct {
	loop.Emitter

	taskQueue string
	cfg       Config
	log       zerolog.Logger

	mtx       sync.Mutex
	now       time.Time
	replaying bool
	ctx       context.Context

	workflows  map[string]process.Definition
	activities map[string]any

	wfRouter  *router.Router
	actRouter *router.Router
}

// New creates a worker for the given task queue
func New(taskQueue string, cfg Config) *Worker {
	if cfg.Running == nil {
		cfg.Running = process.NewRunning()
	}
	if cfg.Environment == "" {
		cfg.Environment = EnvWorkflow
	}

	w := &Worker{
		taskQueue:  taskQueue,
		cfg:        cfg,
		log:        cfg.Logger.With().Str("task_queue", taskQueue).Logger(),
		now:        time.Now().UTC(),
		ctx:        context.Background(),
		workflows:  map[string]process.Definition{},
		activities: map[string]any{},
		wfRouter:   router.New(),
		actRouter:  router.New(),
	}

	// The routes are new, so adding them cannot fail
	_ = routes.AddAll(w.wfRouter, false, routes.Workflow(w)...)
	_ = routes.AddAll(w.actRouter, false, routes.Activity(w)...)

	// Resume parked workflows after callbacks ran,
	// and drop finished ones at the end of the tick
	w.On(loop.PhaseCallback, w.poll)
	w.On(loop.PhaseTick, w.reap)

	return w
}

// TaskQueue returns the task queue of the worker
func (w *Worker) TaskQueue() string { return w.taskQueue }

// Environment returns the default environment of the worker
func (w *Worker) Environment() string { return w.cfg.Environment }

// Running returns the registry of workflow runs
func (w *Worker) Running() *process.Running { return w.cfg.Running }

// Loop returns the phase loop of the worker
func (w *Worker) Loop() loop.Loop { return &w.Emitter }

// Logger returns the logger of the worker
func (w *Worker) Logger() zerolog.Logger { return w.log }

// Now returns the tick time last received from the host
func (w *Worker) Now() time.Time {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.now
}

// IsReplaying returns true while the host is replaying history
func (w *Worker) IsReplaying() bool {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.replaying
}

// SetBaseContext sets the context activities derive from
func (w *Worker) SetBaseContext(ctx context.Context) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.ctx = ctx
}

// BaseContext returns the context activities derive from
func (w *Worker) BaseContext() context.Context {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.ctx
}

// Request sends a request to the host
func (w *Worker) Request(name string, params command.Params) *promise.Deferred {
	if w.cfg.Client == nil {
		return promise.RejectedWith(errors.New("worker has no client"))
	}
	return w.cfg.Client.Request(name, params)
}

// Dispatch handles a request routed to this worker
func (w *Worker) Dispatch(req *command.Request, headers command.Headers) (*promise.Deferred, error) {
	if err := w.ApplyHeaders(headers); err != nil {
		return nil, err
	}

	env, ok := headers.Get(command.HeaderEnv)
	if !ok || env == "" {
		env = w.cfg.Environment
	}

	w.log.Debug().
		Uint64("request_id", req.ID).
		Str("method", req.Name).
		Str("env", env).
		Msg("Dispatching request")

	switch env {
	case EnvWorkflow:
		return w.wfRouter.Dispatch(req, headers), nil
	case EnvActivity:
		return w.actRouter.Dispatch(req, headers), nil
	default:
		return nil, &UnsupportedEnvironmentError{Env: env}
	}
}

// ApplyHeaders updates the tick time and replay state
// of the worker from the headers of a batch
func (w *Worker) ApplyHeaders(headers command.Headers) error {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if tt, ok := headers.Get(command.HeaderTickTime); ok && tt != "" {
		now, err := time.Parse(time.RFC3339Nano, tt)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidTickTime, err)
		}
		w.now = now.UTC()
	}

	replay, _ := headers.Get(command.HeaderReplay)
	w.replaying = replay == "true"

	return nil
}

// Tick fires every phase of the worker in order
func (w *Worker) Tick() {
	for _, phase := range loop.Phases {
		w.Emit(phase)
	}
}

// poll resumes the workflows of this worker whose
// awaited condition is now true, in start order
func (w *Worker) poll() {
	for _, inst := range w.cfg.Running.Instances() {
		if inst.TaskQueue() == w.taskQueue {
			inst.Poll()
		}
	}
}

// reap removes the finished workflows of this worker
func (w *Worker) reap() {
	for _, inst := range w.cfg.Running.Instances() {
		if inst.TaskQueue() == w.taskQueue && inst.State().Terminal() {
			w.log.Debug().Str("run_id", inst.RunID()).Stringer("state", inst.State()).Msg("Removing workflow run")
			w.cfg.Running.Remove(inst.RunID())
		}
	}
}

// RegisterWorkflow registers a workflow function with the form
// func(ctx workflow.Context, args ...) (R, error)
func (w *Worker) RegisterWorkflow(fn any, opts ...RegisterOption) error {
	if err := process.CheckHandler(fn); err != nil {
		return err
	}

	o := newRegisterOptions(fn, opts)

	w.mtx.Lock()
	defer w.mtx.Unlock()

	if _, ok := w.workflows[o.name]; ok && !o.overwrite {
		return &router.DuplicateRouteError{Name: o.name}
	}

	w.workflows[o.name] = process.Definition{
		Name:    o.name,
		Fn:      fn,
		Queries: o.queries,
		Signals: o.signals,
	}
	return nil
}

// RegisterActivity registers an activity function with the form
// func(ctx context.Context, args ...) (R, error)
func (w *Worker) RegisterActivity(fn any, opts ...RegisterOption) error {
	if err := reflectutil.CheckFunc(fn, ctxType); err != nil {
		return err
	}

	o := newRegisterOptions(fn, opts)

	w.mtx.Lock()
	defer w.mtx.Unlock()

	if _, ok := w.activities[o.name]; ok && !o.overwrite {
		return &router.DuplicateRouteError{Name: o.name}
	}

	w.activities[o.name] = fn
	return nil
}

// RegisterActivities registers every method of v usable as an
// activity under the name "Type.Method"
func (w *Worker) RegisterActivities(v any, opts ...RegisterOption) error {
	// Get reflect values for v
	val := reflect.ValueOf(v)

	// create variable to store name of v
	var name string
	switch val.Kind() {
	case reflect.Ptr:
		// If v is a pointer, get the name of the underlying type
		name = val.Elem().Type().Name()
	case reflect.Struct:
		// If v is a struct, get its name
		name = val.Type().Name()
	default:
		// If v is not pointer or struct, return error
		return ErrInvalidType
	}

	registered := 0
	for i := 0; i < val.NumMethod(); i++ {
		mtd := val.Method(i)
		// Skip methods that cannot be activities
		if reflectutil.CheckFunc(mtd.Interface(), ctxType) != nil {
			continue
		}

		mtdName := name + "." + val.Type().Method(i).Name
		mtdOpts := append([]RegisterOption{WithName(mtdName)}, opts...)
		if err := w.RegisterActivity(mtd.Interface(), mtdOpts...); err != nil {
			return err
		}
		registered++
	}

	if registered == 0 {
		return ErrNoActivities
	}
	return nil
}

// Workflow returns the workflow registered under name
func (w *Worker) Workflow(name string) (process.Definition, bool) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	def, ok := w.workflows[name]
	return def, ok
}

// Activity returns the activity registered under name
func (w *Worker) Activity(name string) (any, bool) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	fn, ok := w.activities[name]
	return fn, ok
}

// Info describes the worker
func (w *Worker) Info() routes.WorkerInfo {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	names := lo.Keys(w.workflows)
	sort.Strings(names)

	workflows := make([]routes.WorkflowInfo, len(names))
	for i, name := range names {
		def := w.workflows[name]
		workflows[i] = routes.WorkflowInfo{
			Name:    def.Name,
			Queries: lo.Ternary(def.Queries == nil, []string{}, def.Queries),
			Signals: lo.Ternary(def.Signals == nil, []string{}, def.Signals),
		}
	}

	activities := lo.Keys(w.activities)
	sort.Strings(activities)

	return routes.WorkerInfo{
		TaskQueue:  w.taskQueue,
		Identity:   w.cfg.Identity,
		Workflows:  workflows,
		Activities: activities,
	}
}
