package client

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/queue"
)

func TestRequestResponse(t *testing.T) {
	q := queue.New()
	c := New(q, zerolog.Nop())

	a := c.Request("A", command.Params{"args": []any{1}})
	b := c.Request("B", nil)
	assert.Equal(t, 2, c.Pending())

	cmds := q.Drain()
	require.Len(t, cmds, 2)
	reqA := cmds[0].(*command.Request)
	reqB := cmds[1].(*command.Request)
	assert.Equal(t, "A", reqA.Name)
	assert.Greater(t, reqB.ID, reqA.ID)

	c.Dispatch(command.NewSuccessResponse(reqA.ID, "a"))
	c.Dispatch(command.NewErrorResponse(reqB.ID, command.NewKindError("ActivityError", "b failed")))

	assert.Equal(t, "a", a.Value())
	var f *command.Failure
	require.ErrorAs(t, b.Err(), &f)
	assert.Equal(t, "ActivityError", f.Kind)
	assert.Equal(t, 0, c.Pending())

	// Late and unknown responses are ignored
	c.Dispatch(command.NewSuccessResponse(reqA.ID, "again"))
	c.Dispatch(command.NewSuccessResponse(999, "stray"))
	assert.Equal(t, "a", a.Value())
}

func TestCancel(t *testing.T) {
	q := queue.New()
	c := New(q, zerolog.Nop())

	d := c.Request("Timer", nil)
	req := q.Drain()[0].(*command.Request)

	d.Cancel()
	assert.Equal(t, 0, c.Pending())

	cmds := q.Drain()
	require.Len(t, cmds, 1)
	cancel := cmds[0].(*command.Request)
	assert.Equal(t, CancelRequest, cancel.Name)
	assert.Equal(t, []any{req.ID}, cancel.Params["ids"])
	assert.Greater(t, cancel.ID, req.ID)

	// The response to a canceled request is ignored
	c.Dispatch(command.NewSuccessResponse(req.ID, "late"))
	assert.Equal(t, promise.Canceled, d.State())
}

func TestCanceledByHost(t *testing.T) {
	q := queue.New()
	c := New(q, zerolog.Nop())

	d := c.Request("A", nil)
	req := q.Drain()[0].(*command.Request)

	c.Dispatch(&command.ErrorResponse{ID: req.ID, Failure: &command.Failure{Kind: "CanceledError", Message: "canceled"}})
	assert.ErrorIs(t, d.Err(), promise.ErrCanceled)
}
