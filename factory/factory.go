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

// Package factory runs the main loop of a worker process:
// receive a batch from the host, dispatch it, tick every
// worker and send the results back.
package factory

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"go.arsenm.dev/flowrpc/client"
	"go.arsenm.dev/flowrpc/codec"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/process"
	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/protocol"
	"go.arsenm.dev/flowrpc/queue"
	"go.arsenm.dev/flowrpc/router"
	"go.arsenm.dev/flowrpc/routes"
	"go.arsenm.dev/flowrpc/server"
	"go.arsenm.dev/flowrpc/transport"
	"go.arsenm.dev/flowrpc/worker"
)

// Option changes the configuration of a WorkerFactory
type Option func(*WorkerFactory)

// WithCodec sets the codec used for batches and headers
func WithCodec(cf codec.CodecFunc) Option {
	return func(f *WorkerFactory) {
		f.cf = cf
	}
}

// WithEnvironment sets the environment used by requests
// that have no env header
func WithEnvironment(env string) Option {
	return func(f *WorkerFactory) {
		f.env = env
	}
}

// WithLogger sets the logger of the factory and its workers
func WithLogger(log zerolog.Logger) Option {
	return func(f *WorkerFactory) {
		f.log = log
	}
}

// WithIdentity sets the identity reported by GetWorkerInfo
func WithIdentity(id string) Option {
	return func(f *WorkerFactory) {
		f.identity = id
	}
}

// WorkerFactory owns the state of a worker process
type WorkerFactory struct {
	transport transport.Transport
	cf        codec.CodecFunc
	env       string
	identity  string
	log       zerolog.Logger

	// Held for a whole dispatch pass
	mtx sync.Mutex

	proto   *protocol.Protocol
	queue   *queue.Queue
	router  *router.Router
	server  *server.Server
	client  *client.Client
	pool    *worker.Pool
	running *process.Running
	baseCtx context.Context
}

// New creates a factory receiving batches from t
func New(t transport.Transport, opts ...Option) *WorkerFactory {
	f := &WorkerFactory{
		transport: t,
		cf:        codec.Default,
		env:       worker.EnvWorkflow,
		log:       zerolog.Nop(),
		queue:     queue.New(),
		router:    router.New(),
		pool:      worker.NewPool(),
		running:   process.NewRunning(),
		baseCtx:   context.Background(),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.identity == "" {
		f.identity = newIdentity()
	}

	f.log = f.log.With().Str("component", "factory").Logger()
	f.proto = protocol.New(f.cf)
	f.client = client.New(f.queue, f.log)
	f.server = server.New(f.queue, f.handle, f.log)

	// The router is new, so adding the routes cannot fail
	_ = routes.AddAll(f.router, false, routes.Global(f.pool, f.running)...)

	return f
}

func newIdentity() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "flowrpc"
	}
	return id.String()
}

// WorkerOption changes how a worker is created
type WorkerOption func(*workerOptions)

type workerOptions struct {
	overwrite bool
	env       string
}

// OverwriteWorker replaces an existing worker of the same task queue
func OverwriteWorker() WorkerOption {
	return func(o *workerOptions) {
		o.overwrite = true
	}
}

// WorkerEnvironment sets the default environment of the worker
func WorkerEnvironment(env string) WorkerOption {
	return func(o *workerOptions) {
		o.env = env
	}
}

// NewWorker creates a worker for taskQueue and adds it to the pool
func (f *WorkerFactory) NewWorker(taskQueue string, opts ...WorkerOption) (*worker.Worker, error) {
	o := workerOptions{env: f.env}
	for _, opt := range opts {
		opt(&o)
	}

	w := worker.New(taskQueue, worker.Config{
		Environment: o.env,
		Running:     f.running,
		Client:      f.client,
		Identity:    f.identity,
		Logger:      f.log.With().Str("component", "worker").Logger(),
	})
	w.SetBaseContext(f.baseCtx)

	f.mtx.Lock()
	defer f.mtx.Unlock()
	if err := f.pool.Add(w, o.overwrite); err != nil {
		return nil, err
	}
	return w, nil
}

// Router returns the global router
func (f *WorkerFactory) Router() *router.Router { return f.router }

// Pool returns the worker pool
func (f *WorkerFactory) Pool() *worker.Pool { return f.pool }

// Running returns the workflow run registry
func (f *WorkerFactory) Running() *process.Running { return f.running }

// Protocol returns the protocol used for batches and headers
func (f *WorkerFactory) Protocol() *protocol.Protocol { return f.proto }

// handle routes a request to the global router, or to the worker
// of the task queue named by the headers if no global route matches
func (f *WorkerFactory) handle(req *command.Request, headers command.Headers) (*promise.Deferred, error) {
	if _, ok := f.router.Match(req); ok {
		return f.router.Dispatch(req, headers), nil
	}

	taskQueue, ok := headers.Get(command.HeaderTaskQueue)
	if !ok || taskQueue == "" {
		return f.router.Dispatch(req, headers), nil
	}

	w, ok := f.pool.Find(taskQueue)
	if !ok {
		return nil, &worker.WorkerNotFoundError{TaskQueue: taskQueue}
	}
	return w.Dispatch(req, headers)
}

// Process runs a single tick: it dispatches every command of msg,
// fires the phases of every worker and returns the encoded results
func (f *WorkerFactory) Process(msg, rawHeaders []byte) ([]byte, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	headers, err := f.proto.DecodeHeaders(rawHeaders)
	if err != nil {
		return nil, err
	}

	cmds, err := f.proto.DecodeCommands(msg)
	if err != nil {
		return nil, err
	}

	// Time advances for every worker, even when
	// the batch only carries responses
	for _, w := range f.pool.Workers() {
		if err := w.ApplyHeaders(headers); err != nil {
			return nil, err
		}
	}

	for _, cmd := range cmds {
		switch cmd := cmd.(type) {
		case *command.Request:
			if err := f.server.Dispatch(cmd, headers); err != nil {
				f.discard(err)
				return nil, err
			}
		default:
			f.client.Dispatch(cmd)
		}
	}

	f.pool.Tick()

	return f.proto.Encode(f.queue, f.fail)
}

// fail rejects an outbound request that never reached the host.
// The workflow waiting for it sees the error on the next tick.
func (f *WorkerFactory) fail(req *command.Request, err error) {
	f.log.Warn().Err(err).Uint64("request_id", req.ID).Str("method", req.Name).Msg("Dropping request")
	f.client.Dispatch(command.NewErrorResponse(req.ID, err))
}

// discard drops the output of a batch that could not be processed,
// so that it does not leak into the answer to the next one
func (f *WorkerFactory) discard(err error) {
	for _, cmd := range f.queue.Drain() {
		if req, ok := cmd.(*command.Request); ok {
			f.fail(req, err)
		}
	}
}

// Run receives messages until the transport reaches its end, ctx is
// canceled, or a fatal error occurs. Errors of a single message are
// reported to the host and the loop continues.
func (f *WorkerFactory) Run(ctx context.Context) error {
	f.mtx.Lock()
	f.baseCtx = ctx
	f.mtx.Unlock()
	for _, w := range f.pool.Workers() {
		w.SetBaseContext(ctx)
	}

	f.log.Info().
		Strs("task_queues", f.pool.TaskQueues()).
		Str("identity", f.identity).
		Msg("Worker process started")

	for {
		msg, err := f.transport.Receive(ctx)
		if isEnd(err) {
			f.log.Info().Msg("Host disconnected, stopping")
			return nil
		} else if ctx.Err() != nil {
			return nil
		} else if err != nil {
			f.report(ctx, err)
			continue
		}

		out, err := f.Process(msg.Body, msg.Headers)
		if err != nil {
			f.report(ctx, err)

			var fatal server.FatalError
			if errors.As(err, &fatal) && fatal.Fatal() {
				return err
			}
			continue
		}

		if err := f.transport.Send(ctx, out); err != nil {
			if isEnd(err) {
				return nil
			}
			f.log.Warn().Err(err).Msg("Error sending results")
		}
	}
}

func (f *WorkerFactory) report(ctx context.Context, err error) {
	f.log.Error().Err(err).Msg("Error processing message")
	if sendErr := f.transport.Error(ctx, err.Error()); sendErr != nil {
		f.log.Warn().Err(sendErr).Msg("Error reporting error to host")
	}
}

func isEnd(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}

