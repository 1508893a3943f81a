package promise

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/loop"
)

func TestSettleOnce(t *testing.T) {
	calls := 0
	d := New(nil)
	d.Then(func(any) { calls++ }, func(error) { calls++ })

	assert.True(t, d.Resolve("first"))
	assert.False(t, d.Resolve("second"))
	assert.False(t, d.Reject(errors.New("late")))
	assert.False(t, d.Cancel())

	assert.Equal(t, 1, calls)
	assert.Equal(t, Fulfilled, d.State())
	assert.Equal(t, "first", d.Value())
	assert.NoError(t, d.Err())
}

func TestCancel(t *testing.T) {
	cancelled := 0
	d := New(func() { cancelled++ })

	var got error
	d.Then(nil, func(err error) { got = err })

	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())
	assert.False(t, d.Resolve("late"))

	assert.Equal(t, 1, cancelled)
	assert.Equal(t, Canceled, d.State())
	assert.ErrorIs(t, got, ErrCanceled)
	assert.True(t, IsCanceled(got))
	assert.True(t, IsCanceled(&command.Failure{Kind: "CanceledError"}))
	assert.False(t, IsCanceled(errors.New("other")))
}

func TestThenAfterSettle(t *testing.T) {
	d := RejectedWith(errors.New("failed"))

	var got error
	d.Then(nil, func(err error) { got = err })
	assert.EqualError(t, got, "failed")
}

func TestFutureDeferredSettlement(t *testing.T) {
	var e loop.Emitter
	src := New(nil)
	f := NewFuture("op", 1, src, &e)

	notified := 0
	f.Then(func(*Future) { notified++ })

	src.Resolve("value")
	// The source has settled, but the outcome is not visible yet
	assert.True(t, f.IsComplete())
	assert.False(t, f.IsReady())
	assert.Equal(t, 0, notified)

	e.Emit(loop.PhaseSignal)
	assert.False(t, f.IsReady())

	e.Emit(loop.PhaseCallback)
	assert.True(t, f.IsReady())
	assert.Equal(t, Fulfilled, f.State())
	assert.Equal(t, "value", f.Value())
	assert.Equal(t, 1, notified)

	// Listeners added after settlement also wait for the callback phase
	f.Then(func(*Future) { notified++ })
	assert.Equal(t, 1, notified)
	e.Emit(loop.PhaseCallback)
	assert.Equal(t, 2, notified)

	f.Cancel()
	assert.Equal(t, Fulfilled, f.State())
}

func TestFutureCancel(t *testing.T) {
	var e loop.Emitter
	cancelled := false
	src := New(func() { cancelled = true })
	f := NewFuture("op", 1, src, &e)

	notified := 0
	f.Then(func(*Future) { notified++ })

	f.Cancel()
	assert.True(t, cancelled)
	assert.True(t, f.IsCanceled())
	assert.True(t, f.IsReady())
	assert.ErrorIs(t, f.Err(), ErrCanceled)
	assert.Equal(t, 0, notified)

	// A late response is ignored
	src.Resolve("late")

	e.Emit(loop.PhaseCallback)
	assert.Equal(t, 1, notified)
	assert.Equal(t, Canceled, f.State())
	assert.Nil(t, f.Value())
}

func TestAllInputOrder(t *testing.T) {
	var e loop.Emitter
	a, b := New(nil), New(nil)
	fa := NewFuture("A", 1, a, &e)
	fb := NewFuture("B", 2, b, &e)

	all := All("All", 3, &e, fa, fb)

	// B settles first, the values still follow the input order
	b.Resolve("b")
	e.Emit(loop.PhaseCallback)
	assert.False(t, all.IsReady())

	a.Resolve("a")
	e.Emit(loop.PhaseCallback)
	require.True(t, all.IsReady())
	assert.Equal(t, []any{"a", "b"}, all.Value())
}

func TestAllFirstFailureInInputOrder(t *testing.T) {
	var e loop.Emitter
	a, b := New(nil), New(nil)
	fa := NewFuture("A", 1, a, &e)
	fb := NewFuture("B", 2, b, &e)
	all := All("All", 3, &e, fa, fb)

	b.Reject(errors.New("b failed"))
	a.Reject(errors.New("a failed"))
	e.Emit(loop.PhaseCallback)

	require.True(t, all.IsReady())
	assert.EqualError(t, all.Err(), "a failed")
}

func TestAllEmpty(t *testing.T) {
	var e loop.Emitter
	all := All("All", 1, &e)
	require.True(t, all.IsReady())
	assert.Equal(t, []any{}, all.Value())
}

func TestAny(t *testing.T) {
	var e loop.Emitter
	a, b := New(nil), New(nil)
	fa := NewFuture("A", 1, a, &e)
	fb := NewFuture("B", 2, b, &e)
	first := Any("Any", 3, &e, fa, fb)

	b.Resolve("b")
	e.Emit(loop.PhaseCallback)
	require.True(t, first.IsReady())
	assert.Equal(t, "b", first.Value())

	a.Resolve("a")
	e.Emit(loop.PhaseCallback)
	assert.Equal(t, "b", first.Value())
}
