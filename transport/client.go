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

	"go.arsenm.dev/flowrpc/codec"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/protocol"
)

// HostClient sends batches of commands to a worker process
// through a Host and decodes the answers
type HostClient struct {
	host  Host
	proto *protocol.Protocol
}

// NewHostClient creates a host client using the codec cf,
// which must match the codec of the worker process
func NewHostClient(h Host, cf codec.CodecFunc) *HostClient {
	return &HostClient{host: h, proto: protocol.New(cf)}
}

// Send sends a batch with the given headers and
// returns the commands the worker answered with
func (c *HostClient) Send(ctx context.Context, headers command.Headers, cmds ...command.Command) ([]command.Command, error) {
	body, err := c.proto.EncodeCommands(cmds)
	if err != nil {
		return nil, err
	}

	rawHeaders, err := c.proto.EncodeHeaders(headers)
	if err != nil {
		return nil, err
	}

	out, err := c.host.Call(ctx, body, rawHeaders)
	if err != nil {
		return nil, err
	}
	return c.proto.DecodeCommands(out)
}

// Close closes the underlying host
func (c *HostClient) Close() error {
	return c.host.Close()
}
