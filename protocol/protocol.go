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

package protocol

import (
	"bytes"
	"fmt"

	"go.arsenm.dev/flowrpc/codec"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/internal/types"
	"go.arsenm.dev/flowrpc/queue"
)

// ProtocolError is returned when a batch or header blob is malformed
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Protocol encodes and decodes batches of commands
type Protocol struct {
	cf codec.CodecFunc
}

// New creates a new protocol using the given codec
func New(cf codec.CodecFunc) *Protocol {
	if cf == nil {
		cf = codec.Default
	}
	return &Protocol{cf: cf}
}

// DecodeHeaders decodes a header blob into a flat string map
func (p *Protocol) DecodeHeaders(raw []byte) (command.Headers, error) {
	out := command.Headers{}
	if len(raw) == 0 {
		return out, nil
	}

	var decoded map[string]any
	if err := p.cf(bytes.NewBuffer(raw)).Decode(&decoded); err != nil {
		return nil, &ProtocolError{Reason: "invalid headers", Err: err}
	}

	for key, val := range decoded {
		switch val := val.(type) {
		case string:
			out[key] = val
		case bool, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			out[key] = fmt.Sprint(val)
		case nil:
			// Unset headers are skipped
		default:
			return nil, &ProtocolError{Reason: fmt.Sprintf("header %q must be a string, got %T", key, val)}
		}
	}

	return out, nil
}

// EncodeHeaders encodes headers into a blob accepted by DecodeHeaders
func (p *Protocol) EncodeHeaders(h command.Headers) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := p.cf(buf).Encode(map[string]string(h)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCommands decodes a message into its commands,
// keeping the order they were sent in
func (p *Protocol) DecodeCommands(raw []byte) ([]command.Command, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var batch types.Batch
	if err := p.cf(bytes.NewBuffer(raw)).Decode(&batch); err != nil {
		return nil, &ProtocolError{Reason: "invalid batch", Err: err}
	}

	out := make([]command.Command, 0, len(batch.Commands))
	for i, frame := range batch.Commands {
		cmd, err := fromFrame(frame)
		if err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("command #%d", i), Err: err}
		}
		out = append(out, cmd)
	}

	return out, nil
}

// Encode drains the queue and encodes its commands into a single
// message. A result that cannot be encoded is replaced with an error
// response for its request. A request that cannot be encoded is left
// out of the message and passed to dropped, which may be nil.
func (p *Protocol) Encode(q *queue.Queue, dropped func(*command.Request, error)) ([]byte, error) {
	cmds := q.Drain()
	out := make([]command.Command, 0, len(cmds))
	for _, cmd := range cmds {
		err := p.check(cmd)
		if err == nil {
			out = append(out, cmd)
			continue
		}

		switch cmd := cmd.(type) {
		case *command.Request:
			if dropped != nil {
				dropped(cmd, err)
			}
		default:
			out = append(out, command.NewErrorResponse(cmd.CommandID(), err))
		}
	}
	return p.EncodeCommands(out)
}

// check returns an error if cmd cannot be encoded on its own
func (p *Protocol) check(cmd command.Command) error {
	frame, err := toFrame(cmd)
	if err != nil {
		return &ProtocolError{Reason: "cannot encode command", Err: err}
	}
	if err := p.cf(&bytes.Buffer{}).Encode(frame); err != nil {
		return &ProtocolError{Reason: fmt.Sprintf("cannot encode command %d", cmd.CommandID()), Err: err}
	}
	return nil
}

// EncodeCommands encodes the given commands into a single message.
// It fails if any of them cannot be encoded.
func (p *Protocol) EncodeCommands(cmds []command.Command) ([]byte, error) {
	batch := types.Batch{Commands: make([]types.Frame, 0, len(cmds))}
	for _, cmd := range cmds {
		frame, err := toFrame(cmd)
		if err != nil {
			return nil, &ProtocolError{Reason: "cannot encode command", Err: err}
		}
		batch.Commands = append(batch.Commands, frame)
	}

	buf := &bytes.Buffer{}
	if err := p.cf(buf).Encode(batch); err != nil {
		return nil, &ProtocolError{Reason: "cannot encode batch", Err: err}
	}
	return buf.Bytes(), nil
}

func fromFrame(f types.Frame) (command.Command, error) {
	if f.ID == 0 {
		return nil, fmt.Errorf("missing command id")
	}

	switch {
	case f.Command != "":
		if f.Error != nil || f.Result != nil {
			return nil, fmt.Errorf("request %q must not carry a result or error", f.Command)
		}
		return command.NewRequest(f.ID, f.Command, f.Params), nil
	case f.Error != nil:
		if f.Params != nil || f.Result != nil {
			return nil, fmt.Errorf("error response %d must not carry params or a result", f.ID)
		}
		return &command.ErrorResponse{
			ID: f.ID,
			Failure: &command.Failure{
				Kind:    f.Error.Kind,
				Message: f.Error.Message,
				Stack:   f.Error.Stack,
			},
		}, nil
	default:
		if f.Params != nil {
			return nil, fmt.Errorf("response %d must not carry params", f.ID)
		}
		return command.NewSuccessResponse(f.ID, f.Result), nil
	}
}

func toFrame(cmd command.Command) (types.Frame, error) {
	switch cmd := cmd.(type) {
	case *command.Request:
		return types.Frame{ID: cmd.ID, Command: cmd.Name, Params: cmd.Params}, nil
	case *command.SuccessResponse:
		return types.Frame{ID: cmd.ID, Result: cmd.Result}, nil
	case *command.ErrorResponse:
		f := cmd.Failure
		if f == nil {
			f = &command.Failure{Kind: "Error", Message: "unknown error"}
		}
		return types.Frame{ID: cmd.ID, Error: &types.Error{
			Kind:    f.Kind,
			Message: f.Message,
			Stack:   f.Stack,
		}}, nil
	default:
		return types.Frame{}, fmt.Errorf("unsupported command type %T", cmd)
	}
}
