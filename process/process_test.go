package process

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/loop"
	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/workflow"
)

type testRequest struct {
	name   string
	params command.Params
	d      *promise.Deferred
}

type testEnv struct {
	loop.Emitter
	now      time.Time
	requests []testRequest
}

func newTestEnv() *testEnv {
	return &testEnv{now: time.Date(2022, 6, 1, 18, 0, 0, 0, time.UTC)}
}

func (e *testEnv) TaskQueue() string      { return "test" }
func (e *testEnv) Now() time.Time         { return e.now }
func (e *testEnv) IsReplaying() bool      { return false }
func (e *testEnv) Loop() loop.Loop        { return &e.Emitter }
func (e *testEnv) Logger() zerolog.Logger { return zerolog.Nop() }

func (e *testEnv) Request(name string, params command.Params) *promise.Deferred {
	d := promise.New(nil)
	e.requests = append(e.requests, testRequest{name, params, d})
	return d
}

func (e *testEnv) tick() {
	for _, phase := range loop.Phases {
		e.Emit(phase)
	}
}

func start(t *testing.T, env *testEnv, fn any, args ...any) *Instance {
	t.Helper()
	require.NoError(t, CheckHandler(fn))

	inst := New(Info{RunID: "run-1"}, Definition{Name: "test", Fn: fn}, args, env)
	env.On(loop.PhaseCallback, func() { inst.Poll() })
	inst.Start()
	return inst
}

func greeting(ctx workflow.Context, name string) (string, error) {
	var greeting string
	err := ctx.ExecuteActivity("greet", name).Get(ctx, &greeting)
	return greeting + "!", err
}

func TestRunToCompletion(t *testing.T) {
	env := newTestEnv()
	inst := start(t, env, greeting, "bob")
	assert.Equal(t, StateSuspended, inst.State())

	require.Len(t, env.requests, 1)
	req := env.requests[0]
	assert.Equal(t, ExecuteActivityRequest, req.name)
	assert.Equal(t, "greet", req.params["name"])
	assert.Equal(t, []any{"bob"}, req.params["args"])
	assert.Equal(t, "run-1", req.params["runId"])
	assert.Equal(t, uint64(1), req.params["seq"])
	assert.Equal(t, "test", req.params["options"].(workflow.ActivityOptions).TaskQueue)

	// The result only becomes visible in the callback phase
	req.d.Resolve("hello bob")
	assert.Equal(t, StateSuspended, inst.State())

	env.tick()
	assert.Equal(t, StateCompleted, inst.State())
	assert.Equal(t, "hello bob!", inst.Result().Value())
}

func TestWorkflowError(t *testing.T) {
	env := newTestEnv()
	inst := start(t, env, func(workflow.Context) error {
		return errors.New("broken")
	})

	var failure *WorkflowExecutionFailure
	require.ErrorAs(t, inst.Result().Err(), &failure)
	assert.Equal(t, "run-1", failure.RunID)
	assert.Equal(t, StateFailed, inst.State())
	assert.Empty(t, failure.Stack())
}

func TestWorkflowPanic(t *testing.T) {
	env := newTestEnv()
	inst := start(t, env, func(workflow.Context) error {
		panic("broken")
	})

	var failure *WorkflowExecutionFailure
	require.ErrorAs(t, inst.Result().Err(), &failure)
	assert.Contains(t, failure.Error(), "broken")
	assert.NotEmpty(t, failure.Stack())
	assert.Equal(t, "WorkflowExecutionFailure", command.FailureFrom(inst.Result().Err()).Kind)
}

func TestQueriesAndSignals(t *testing.T) {
	env := newTestEnv()
	inst := start(t, env, func(ctx workflow.Context) (int, error) {
		count := 0
		_ = ctx.SetQueryHandler("count", func(workflow.Context) (int, error) { return count, nil })
		_ = ctx.SetQueryHandler("blocking", func(ctx workflow.Context) error {
			return ctx.Await(func() bool { return false })
		})
		_ = ctx.SetSignalHandler("add", func(_ workflow.Context, n int) { count += n })

		err := ctx.Await(func() bool { return count >= 5 })
		return count, err
	})

	assert.Equal(t, []string{"blocking", "count"}, inst.QueryHandlerNames())
	assert.Equal(t, []string{"add"}, inst.SignalHandlerNames())

	require.NoError(t, inst.Signal("add", []any{2}))
	val, err := inst.Query("count", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, val)

	// Blocking operations are not allowed outside of the workflow function
	_, err = inst.Query("blocking", nil)
	assert.ErrorIs(t, err, ErrNotInWorkflow)

	_, err = inst.Query("missing", nil)
	var qnf *QueryHandlerNotFoundError
	require.ErrorAs(t, err, &qnf)
	assert.Equal(t, "unknown queryType missing. KnownQueryTypes=[blocking, count]", qnf.Error())

	var snf *SignalHandlerNotFoundError
	require.ErrorAs(t, inst.Signal("missing", nil), &snf)

	require.NoError(t, inst.Signal("add", []any{3}))
	env.tick()
	assert.Equal(t, StateCompleted, inst.State())
	assert.Equal(t, 5, inst.Result().Value())
}

func TestDestroy(t *testing.T) {
	env := newTestEnv()
	cleanedUp := false
	inst := start(t, env, func(ctx workflow.Context) error {
		defer func() { cleanedUp = true }()
		return workflow.Sleep(ctx, time.Minute)
	})

	require.Len(t, env.requests, 1)
	assert.Equal(t, NewTimerRequest, env.requests[0].name)
	assert.Equal(t, int64(60000), env.requests[0].params["ms"])

	inst.Destroy()
	assert.True(t, cleanedUp)
	assert.Equal(t, StateDestroyed, inst.State())
	assert.ErrorIs(t, inst.Result().Err(), ErrDestroyed)
	assert.Equal(t, promise.Canceled, env.requests[0].d.State())

	// Destroying twice is a no-op
	inst.Destroy()
	assert.Equal(t, StateDestroyed, inst.State())
}

func TestSnapshot(t *testing.T) {
	env := newTestEnv()
	inst := start(t, env, greeting, "bob")

	snap := inst.Snapshot()
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, "test", snap.Name)
	assert.Equal(t, "suspended", snap.State)
	assert.Equal(t, []Operation{{Seq: 1, Name: "ExecuteActivity:greet"}}, snap.Pending)
	functions := lo.Map(snap.Frames, func(f Frame, _ int) string { return f.Function })
	assert.Contains(t, functions, "go.arsenm.dev/flowrpc/process.greeting")
	assert.NotContains(t, functions, "runtime.goexit")

	trace, err := inst.StackTrace()
	require.NoError(t, err)
	assert.Contains(t, trace, `"name": "ExecuteActivity:greet"`)
}

func TestRunning(t *testing.T) {
	env := newTestEnv()
	r := NewRunning()

	b := New(Info{RunID: "b"}, Definition{Name: "test"}, nil, env)
	a := New(Info{RunID: "a"}, Definition{Name: "test"}, nil, env)
	require.NoError(t, r.Add(b))
	require.NoError(t, r.Add(a))

	var dup *DuplicateRunError
	require.ErrorAs(t, r.Add(New(Info{RunID: "a"}, Definition{}, nil, env)), &dup)

	// Runs are kept in the order they were added
	assert.Equal(t, []string{"b", "a"}, r.RunIDs())

	found, ok := r.Find("a")
	require.True(t, ok)
	assert.Same(t, a, found)

	r.Remove("b")
	assert.Equal(t, 1, r.Len())
	_, ok = r.Find("b")
	assert.False(t, ok)
}
