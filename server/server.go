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

package server

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/queue"
)

var (
	// ErrInvalidHandlerContract is returned when a handler
	// returns no pending result
	ErrInvalidHandlerContract = command.NewKindError(
		"InvalidHandlerContractError",
		"request handler must return a pending result",
	)
	// ErrInvalidResult replaces rejections that carry no error
	ErrInvalidResult = command.NewKindError(
		"InvalidResultError",
		"an internal error has occurred: pending result was rejected without an error",
	)
)

// FatalError marks errors that must stop the process
type FatalError interface {
	error
	Fatal() bool
}

// Handler handles a single inbound request
type Handler func(req *command.Request, headers command.Headers) (*promise.Deferred, error)

// Server turns the outcome of inbound requests into responses
type Server struct {
	queue   *queue.Queue
	handler Handler
	log     zerolog.Logger
}

// New creates a new server that pushes responses onto q
func New(q *queue.Queue, h Handler, log zerolog.Logger) *Server {
	return &Server{
		queue:   q,
		handler: h,
		log:     log.With().Str("component", "server").Logger(),
	}
}

// OnMessage replaces the request handler
func (s *Server) OnMessage(h Handler) {
	s.handler = h
}

// Dispatch runs the handler for req. Responses are pushed when the
// pending result settles. The returned error is only non-nil when
// the handler broke its contract or failed fatally.
func (s *Server) Dispatch(req *command.Request, headers command.Headers) error {
	d, err := s.call(req, headers)
	if err != nil {
		s.log.Debug().Err(err).Uint64("request_id", req.ID).Str("method", req.Name).Msg("Request failed")
		s.queue.Push(command.NewErrorResponse(req.ID, err))

		var fatal FatalError
		if errors.As(err, &fatal) && fatal.Fatal() {
			return err
		}
		return nil
	}

	if d == nil {
		return fmt.Errorf("%s: %w", req.Name, ErrInvalidHandlerContract)
	}

	d.Then(s.onFulfilled(req), s.onRejected(req))
	return nil
}

func (s *Server) call(req *command.Request, headers command.Headers) (d *promise.Deferred, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rErr, ok := r.(error); ok {
				err = rErr
			} else {
				err = fmt.Errorf("request handler panicked: %v", r)
			}
		}
	}()
	return s.handler(req, headers)
}

func (s *Server) onFulfilled(req *command.Request) func(any) {
	return func(result any) {
		s.queue.Push(command.NewSuccessResponse(req.ID, result))
	}
}

func (s *Server) onRejected(req *command.Request) func(error) {
	return func(err error) {
		if err == nil {
			err = ErrInvalidResult
		}
		s.log.Debug().Err(err).Uint64("request_id", req.ID).Str("method", req.Name).Msg("Request rejected")
		s.queue.Push(command.NewErrorResponse(req.ID, err))
	}
}
