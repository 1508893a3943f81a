package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/promise"
)

func constRoute(name string, val any) Route {
	return Func(name, func(_ command.Params, _ command.Headers, d *promise.Deferred) error {
		d.Resolve(val)
		return nil
	})
}

func TestUniqueness(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(constRoute("A", 1), false))

	err := r.Add(constRoute("A", 2), false)
	var dup *DuplicateRouteError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "A", dup.Name)

	// The first route is still in place
	d := r.Dispatch(command.NewRequest(1, "A", nil), nil)
	assert.Equal(t, 1, d.Value())

	require.NoError(t, r.Add(constRoute("A", 2), true))
	d = r.Dispatch(command.NewRequest(2, "A", nil), nil)
	assert.Equal(t, 2, d.Value())
}

func TestUnknownRoute(t *testing.T) {
	r := New()
	d := r.Dispatch(command.NewRequest(1, "Missing", nil), nil)

	assert.Equal(t, promise.Rejected, d.State())
	var notFound *RouteNotFoundError
	require.ErrorAs(t, d.Err(), &notFound)
	assert.Equal(t, "Missing", notFound.Name)
}

func TestHandlerErrors(t *testing.T) {
	expected := errors.New("expected")

	r := New()
	require.NoError(t, r.Add(Func("Fail", func(command.Params, command.Headers, *promise.Deferred) error {
		return expected
	}), false))
	require.NoError(t, r.Add(Func("Panic", func(command.Params, command.Headers, *promise.Deferred) error {
		panic("boom")
	}), false))

	d := r.Dispatch(command.NewRequest(1, "Fail", nil), nil)
	assert.ErrorIs(t, d.Err(), expected)

	d = r.Dispatch(command.NewRequest(2, "Panic", nil), nil)
	assert.Equal(t, promise.Rejected, d.State())
	assert.ErrorContains(t, d.Err(), "boom")
}

func TestNamesAndRemove(t *testing.T) {
	r := New()
	require.NoError(t, r.Add(constRoute("B", nil), false))
	require.NoError(t, r.Add(constRoute("A", nil), false))
	assert.Equal(t, []string{"A", "B"}, r.Names())

	r.Remove(constRoute("A", nil))
	assert.Equal(t, []string{"B"}, r.Names())

	_, ok := r.Match(command.NewRequest(1, "A", nil))
	assert.False(t, ok)
}
