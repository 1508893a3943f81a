package transport

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.arsenm.dev/flowrpc/codec"
)

// echo answers every message with its headers followed by its body,
// and reports messages with an empty body as errors
func echo(ctx context.Context, t Transport) error {
	for {
		msg, err := t.Receive(ctx)
		if err != nil {
			return err
		}
		if len(msg.Body) == 0 {
			err = t.Error(ctx, "empty body")
		} else {
			err = t.Send(ctx, append(msg.Headers, msg.Body...))
		}
		if err != nil {
			return err
		}
	}
}

func testHost(t *testing.T, ctx context.Context, h Host) {
	out, err := h.Call(ctx, []byte("body"), []byte("headers:"))
	require.NoError(t, err)
	assert.Equal(t, []byte("headers:body"), out)

	_, err = h.Call(ctx, nil, nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "empty body", remote.Message)

	// The stream is still usable after an error
	out, err = h.Call(ctx, []byte("again"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), out)
}

func TestStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for name, cf := range map[string]codec.CodecFunc{"msgpack": codec.Msgpack, "json": codec.JSON} {
		t.Run(name, func(t *testing.T) {
			wConn, hConn := net.Pipe()

			done := make(chan error, 1)
			go func() {
				done <- echo(ctx, NewStream(wConn, cf))
			}()

			h := NewStreamHost(hConn, cf)
			testHost(t, ctx, h)

			require.NoError(t, h.Close())
			assert.Error(t, <-done)
		})
	}
}

func TestStreamCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wConn, hConn := net.Pipe()
	defer wConn.Close()
	defer hConn.Close()

	_, err := NewStream(wConn, nil).Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewStreamHost(hConn, nil).Call(ctx, []byte("body"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWebSocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ws := NewWebSocket(codec.Msgpack)
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	done := make(chan error, 1)
	go func() {
		done <- echo(ctx, ws)
	}()

	// Nothing can be sent before the host connects
	assert.ErrorIs(t, ws.Send(ctx, []byte("body")), ErrClosed)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	h, err := DialWebSocket(ctx, url, codec.Msgpack)
	require.NoError(t, err)
	testHost(t, ctx, h)
	require.NoError(t, h.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-ctx.Done():
		t.Fatal("transport did not notice the disconnect")
	}
}
