package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/router"
	"go.arsenm.dev/flowrpc/routes"
	"go.arsenm.dev/flowrpc/workflow"
)

type Calc struct{}

func (Calc) Add(_ context.Context, a, b int) (int, error) {
	return a + b, nil
}

func (Calc) Sub(_ context.Context, a, b int) int {
	return a - b
}

// Not an activity, no context
func (Calc) String() string {
	return "calc"
}

type empty struct{}

func hello(workflow.Context) (string, error) {
	return "hello", nil
}

func TestRegisterWorkflow(t *testing.T) {
	w := New("test", Config{})

	require.NoError(t, w.RegisterWorkflow(hello, WithQueries("status"), WithSignals("stop")))
	def, ok := w.Workflow("hello")
	require.True(t, ok)
	assert.Equal(t, "hello", def.Name)
	assert.Equal(t, []string{"status"}, def.Queries)

	var dup *router.DuplicateRouteError
	require.ErrorAs(t, w.RegisterWorkflow(hello), &dup)
	require.NoError(t, w.RegisterWorkflow(hello, WithOverwrite()))

	// The first parameter must be a workflow context
	assert.Error(t, w.RegisterWorkflow(func(context.Context) error { return nil }))
	assert.Error(t, w.RegisterWorkflow("hello"))
}

func TestRegisterActivities(t *testing.T) {
	w := New("test", Config{})

	require.NoError(t, w.RegisterActivities(Calc{}))
	_, ok := w.Activity("Calc.Add")
	assert.True(t, ok)
	_, ok = w.Activity("Calc.Sub")
	assert.True(t, ok)
	_, ok = w.Activity("Calc.String")
	assert.False(t, ok)

	var dup *router.DuplicateRouteError
	require.ErrorAs(t, w.RegisterActivities(&Calc{}), &dup)
	require.NoError(t, w.RegisterActivities(&Calc{}, WithOverwrite()))

	assert.ErrorIs(t, w.RegisterActivities(1), ErrInvalidType)
	assert.ErrorIs(t, w.RegisterActivities(empty{}), ErrNoActivities)
}

func TestApplyHeaders(t *testing.T) {
	w := New("test", Config{})

	err := w.ApplyHeaders(command.Headers{
		command.HeaderTickTime: "2022-06-01T20:00:00.5+02:00",
		command.HeaderReplay:   "true",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 6, 1, 18, 0, 0, 5e8, time.UTC), w.Now())
	assert.True(t, w.IsReplaying())

	// Without a tick time the last one is kept
	require.NoError(t, w.ApplyHeaders(command.Headers{}))
	assert.Equal(t, time.Date(2022, 6, 1, 18, 0, 0, 5e8, time.UTC), w.Now())
	assert.False(t, w.IsReplaying())

	err = w.ApplyHeaders(command.Headers{command.HeaderTickTime: "yesterday"})
	assert.ErrorIs(t, err, ErrInvalidTickTime)
}

func TestDispatchEnvironment(t *testing.T) {
	w := New("test", Config{Environment: EnvActivity})
	require.NoError(t, w.RegisterActivities(Calc{}))

	// The default environment is used without an env header
	d, err := w.Dispatch(command.NewRequest(1, routes.InvokeActivity, command.Params{
		"name": "Calc.Add",
		"args": []any{1, 2},
	}), command.Headers{})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Value())

	_, err = w.Dispatch(command.NewRequest(2, routes.StartWorkflow, nil), command.Headers{command.HeaderEnv: "gpu"})
	var unsupported *UnsupportedEnvironmentError
	require.ErrorAs(t, err, &unsupported)
	assert.True(t, unsupported.Fatal())
}

func TestInfo(t *testing.T) {
	w := New("test", Config{Identity: "worker-1"})
	require.NoError(t, w.RegisterWorkflow(hello, WithQueries("status")))
	require.NoError(t, w.RegisterActivities(Calc{}))

	assert.Equal(t, routes.WorkerInfo{
		TaskQueue: "test",
		Identity:  "worker-1",
		Workflows: []routes.WorkflowInfo{
			{Name: "hello", Queries: []string{"status"}, Signals: []string{}},
		},
		Activities: []string{"Calc.Add", "Calc.Sub"},
	}, w.Info())
}

func TestPool(t *testing.T) {
	p := NewPool()
	b := New("b", Config{})

	require.NoError(t, p.Add(New("a", Config{}), false))
	require.NoError(t, p.Add(b, false))

	var dup *DuplicateWorkerError
	require.ErrorAs(t, p.Add(New("b", Config{}), false), &dup)

	found, ok := p.Find("b")
	require.True(t, ok)
	assert.Same(t, b, found)

	l, ok := p.Loop("b")
	require.True(t, ok)
	assert.Same(t, b.Loop(), l)
	_, ok = p.Loop("c")
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, p.TaskQueues())
	assert.Len(t, p.Info(), 2)
}
