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

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"go.arsenm.dev/flowrpc/codec"
	"golang.org/x/net/websocket"
)

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

// WebSocket serves a single host connection over WebSocket.
// This is useful for hosts written in other languages, such as
// JS running in a browser.
type WebSocket struct {
	cf    codec.CodecFunc
	conns chan wsConn

	mtx    sync.Mutex
	stream *Stream
	cur    wsConn
}

var _ Transport = (*WebSocket)(nil)

// NewWebSocket creates a WebSocket transport. It receives nothing
// until its Handler is served, for example by ListenAndServe.
func NewWebSocket(cf codec.CodecFunc) *WebSocket {
	if cf == nil {
		cf = codec.Default
	}
	return &WebSocket{cf: cf, conns: make(chan wsConn)}
}

// Handler returns the http handler accepting the host connection
func (w *WebSocket) Handler() http.Handler {
	// Create new WebSocket server
	ws := websocket.Server{}

	// Create new WebSocket config
	ws.Config = websocket.Config{
		Version: websocket.ProtocolVersionHybi13,
	}

	// Hand the connection to Receive and keep it
	// open until the host disconnects
	ws.Handler = func(c *websocket.Conn) {
		conn := wsConn{conn: c, done: make(chan struct{})}
		select {
		case w.conns <- conn:
		case <-c.Request().Context().Done():
			return
		}
		select {
		case <-conn.done:
		case <-c.Request().Context().Done():
		}
	}

	return ws
}

// ListenAndServe serves the handler on addr until ctx is canceled
func (w *WebSocket) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr: addr,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
		Handler: w.Handler(),
	}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Receive waits for the host to connect if needed, then
// receives the next message from it
func (w *WebSocket) Receive(ctx context.Context) (*Message, error) {
	stream, err := w.connected(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := stream.Receive(ctx)
	if errors.Is(err, io.EOF) {
		w.disconnect()
	}
	return msg, err
}

func (w *WebSocket) Send(ctx context.Context, body []byte) error {
	stream, err := w.current()
	if err != nil {
		return err
	}
	return stream.Send(ctx, body)
}

func (w *WebSocket) Error(ctx context.Context, msg string) error {
	stream, err := w.current()
	if err != nil {
		return err
	}
	return stream.Error(ctx, msg)
}

func (w *WebSocket) connected(ctx context.Context) (*Stream, error) {
	if stream, err := w.current(); err == nil {
		return stream, nil
	}

	select {
	case conn := <-w.conns:
		w.mtx.Lock()
		defer w.mtx.Unlock()
		w.cur = conn
		w.stream = NewStream(conn.conn, w.cf)
		return w.stream, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *WebSocket) current() (*Stream, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.stream == nil {
		return nil, ErrClosed
	}
	return w.stream, nil
}

func (w *WebSocket) disconnect() {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.stream == nil {
		return
	}
	close(w.cur.done)
	w.stream = nil
}

// DialWebSocket connects to a worker serving WebSocket at url
func DialWebSocket(ctx context.Context, url string, cf codec.CodecFunc) (*StreamHost, error) {
	cfg, err := websocket.NewConfig(url, "http://localhost")
	if err != nil {
		return nil, err
	}

	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, err
	}

	return NewStreamHost(conn, cf), nil
}
