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

package client

import (
	"sync"

	"github.com/rs/zerolog"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/queue"
)

// CancelRequest is sent to the host when a pending request is canceled
const CancelRequest = "Cancel"

// Client sends requests to the host and correlates their responses
type Client struct {
	queue *queue.Queue
	log   zerolog.Logger

	mtx     sync.Mutex
	lastID  uint64
	pending map[uint64]*promise.Deferred
}

// New creates a new client that pushes requests onto q
func New(q *queue.Queue, log zerolog.Logger) *Client {
	return &Client{
		queue:   q,
		log:     log.With().Str("component", "client").Logger(),
		pending: map[uint64]*promise.Deferred{},
	}
}

// Request sends a request to the host and returns its pending result.
// Canceling the result drops the correlation and asks the host to
// cancel the operation.
func (c *Client) Request(name string, params command.Params) *promise.Deferred {
	c.mtx.Lock()
	c.lastID++
	id := c.lastID
	c.mtx.Unlock()

	d := promise.New(func() {
		if c.forget(id) {
			c.queue.Push(command.NewRequest(c.nextID(), CancelRequest, command.Params{
				"ids": []any{id},
			}))
		}
	})

	c.mtx.Lock()
	c.pending[id] = d
	c.mtx.Unlock()

	c.queue.Push(command.NewRequest(id, name, params))
	return d
}

// Send is like Request but sends an already built request.
// The id of req is overwritten.
func (c *Client) Send(req *command.Request) *promise.Deferred {
	return c.Request(req.Name, req.Params)
}

func (c *Client) nextID() uint64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.lastID++
	return c.lastID
}

func (c *Client) forget(id uint64) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	_, ok := c.pending[id]
	delete(c.pending, id)
	return ok
}

// Dispatch settles the pending request matching resp.
// Responses for unknown ids are ignored.
func (c *Client) Dispatch(resp command.Command) {
	c.mtx.Lock()
	d, ok := c.pending[resp.CommandID()]
	delete(c.pending, resp.CommandID())
	c.mtx.Unlock()

	if !ok {
		c.log.Debug().Uint64("request_id", resp.CommandID()).Msg("Ignoring response for unknown request")
		return
	}

	switch resp := resp.(type) {
	case *command.SuccessResponse:
		d.Resolve(resp.Result)
	case *command.ErrorResponse:
		if resp.Failure != nil && resp.Failure.Kind == promise.ErrCanceled.Kind() {
			d.Reject(promise.ErrCanceled)
			return
		}
		d.Reject(resp.Failure)
	default:
		d.Reject(&command.Failure{Kind: "ProtocolError", Message: "request answered with a request"})
	}
}

// Pending returns the amount of requests waiting for a response
func (c *Client) Pending() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.pending)
}
