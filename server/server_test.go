package server

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/queue"
)

type fatalErr struct{}

func (fatalErr) Error() string { return "fatal" }
func (fatalErr) Fatal() bool   { return true }

func TestOutcomes(t *testing.T) {
	q := queue.New()
	pending := promise.New(nil)

	s := New(q, func(req *command.Request, _ command.Headers) (*promise.Deferred, error) {
		switch req.Name {
		case "Sync":
			return promise.Resolved("now"), nil
		case "Throw":
			return nil, errors.New("thrown")
		case "Later":
			return pending, nil
		case "Nil":
			return promise.RejectedWith(nil), nil
		default:
			return nil, nil
		}
	}, zerolog.Nop())

	require.NoError(t, s.Dispatch(command.NewRequest(1, "Sync", nil), nil))
	require.NoError(t, s.Dispatch(command.NewRequest(2, "Throw", nil), nil))
	require.NoError(t, s.Dispatch(command.NewRequest(3, "Later", nil), nil))
	require.NoError(t, s.Dispatch(command.NewRequest(4, "Nil", nil), nil))

	cmds := q.Drain()
	require.Len(t, cmds, 3)

	assert.Equal(t, command.NewSuccessResponse(1, "now"), cmds[0])

	errResp := cmds[1].(*command.ErrorResponse)
	assert.Equal(t, uint64(2), errResp.ID)
	assert.Equal(t, "thrown", errResp.Failure.Message)

	errResp = cmds[2].(*command.ErrorResponse)
	assert.Equal(t, uint64(4), errResp.ID)
	assert.Equal(t, "InvalidResultError", errResp.Failure.Kind)

	// The pending result is answered when it settles
	pending.Resolve("done")
	cmds = q.Drain()
	require.Len(t, cmds, 1)
	assert.Equal(t, command.NewSuccessResponse(3, "done"), cmds[0])

	// A handler returning no pending result breaks the contract
	err := s.Dispatch(command.NewRequest(5, "Broken", nil), nil)
	assert.ErrorIs(t, err, ErrInvalidHandlerContract)
	assert.Equal(t, 0, q.Len())
}

func TestFatal(t *testing.T) {
	q := queue.New()
	s := New(q, nil, zerolog.Nop())
	s.OnMessage(func(*command.Request, command.Headers) (*promise.Deferred, error) {
		return nil, fatalErr{}
	})

	err := s.Dispatch(command.NewRequest(1, "Any", nil), nil)
	assert.ErrorIs(t, err, fatalErr{})
	// The request is still answered
	assert.Equal(t, 1, q.Len())
}

func TestPanic(t *testing.T) {
	q := queue.New()
	s := New(q, func(*command.Request, command.Headers) (*promise.Deferred, error) {
		panic("boom")
	}, zerolog.Nop())

	require.NoError(t, s.Dispatch(command.NewRequest(1, "Any", nil), nil))
	cmds := q.Drain()
	require.Len(t, cmds, 1)
	assert.Contains(t, cmds[0].(*command.ErrorResponse).Failure.Message, "boom")
}
