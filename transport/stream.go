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
	"io"
	"sync"

	"go.arsenm.dev/flowrpc/codec"
	"go.arsenm.dev/flowrpc/internal/types"
)

// Stream sends and receives envelopes over any io.ReadWriter,
// such as stdin/stdout pipes or a net.Conn
type Stream struct {
	c    codec.Codec
	wMtx sync.Mutex
}

var _ Transport = (*Stream)(nil)

// NewStream creates a stream transport bound to rw
func NewStream(rw io.ReadWriter, cf codec.CodecFunc) *Stream {
	if cf == nil {
		cf = codec.Default
	}
	return &Stream{c: cf(rw)}
}

// Receive decodes the next envelope. The context is only checked
// before reading, since the underlying reader cannot be interrupted.
func (s *Stream) Receive(ctx context.Context) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var env types.Envelope
	if err := s.c.Decode(&env); err != nil {
		return nil, err
	}
	return &Message{Body: env.Body, Headers: env.Headers}, nil
}

func (s *Stream) Send(_ context.Context, body []byte) error {
	return s.write(types.Envelope{Body: body})
}

func (s *Stream) Error(_ context.Context, msg string) error {
	return s.write(types.Envelope{Error: msg})
}

func (s *Stream) write(env types.Envelope) error {
	s.wMtx.Lock()
	defer s.wMtx.Unlock()
	return s.c.Encode(env)
}

// StreamHost is the host side of a stream transport
type StreamHost struct {
	c      codec.Codec
	closer io.Closer
	mtx    sync.Mutex
}

var _ Host = (*StreamHost)(nil)

// NewStreamHost creates the host side of a stream bound to rw.
// If rw is an io.Closer, Close closes it.
func NewStreamHost(rw io.ReadWriter, cf codec.CodecFunc) *StreamHost {
	if cf == nil {
		cf = codec.Default
	}
	closer, _ := rw.(io.Closer)
	return &StreamHost{c: cf(rw), closer: closer}
}

// Call sends a batch and waits for the answer. Calls are serialized.
func (h *StreamHost) Call(ctx context.Context, body, headers []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mtx.Lock()
	defer h.mtx.Unlock()

	if err := h.c.Encode(types.Envelope{Body: body, Headers: headers}); err != nil {
		return nil, err
	}

	var env types.Envelope
	if err := h.c.Decode(&env); err != nil {
		return nil, err
	}
	if env.Error != "" {
		return nil, &RemoteError{Message: env.Error}
	}
	return env.Body, nil
}

func (h *StreamHost) Close() error {
	if h.closer == nil {
		return nil
	}
	return h.closer.Close()
}
