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

// Package transport moves encoded batches between the worker
// process and the host.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned when a transport is used after it was closed
var ErrClosed = errors.New("transport closed")

// Message is a single message received from the host
type Message struct {
	// Body is the encoded batch of commands
	Body []byte
	// Headers is the encoded header map of the batch
	Headers []byte
}

// Transport is the worker side of the connection to the host.
// Every received message is answered with exactly one Send or Error.
type Transport interface {
	// Receive blocks until the next message arrives. It returns
	// io.EOF once the host has disconnected.
	Receive(ctx context.Context) (*Message, error)
	// Send answers the last received message
	Send(ctx context.Context, body []byte) error
	// Error answers the last received message with an error
	Error(ctx context.Context, msg string) error
}

// Host is the host side of the connection to a worker process
type Host interface {
	// Call sends a batch to the worker and waits for its answer
	Call(ctx context.Context, body, headers []byte) ([]byte, error)
	Close() error
}

// RemoteError is returned by Host.Call when the worker
// answered with an error
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("worker error: %s", e.Message)
}
