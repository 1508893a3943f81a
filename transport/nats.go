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
	"encoding/base64"
	"sync"

	"github.com/nats-io/nats.go"
)

// Headers used on NATS messages
const (
	NATSContextHeader = "Flowrpc-Context"
	NATSErrorHeader   = "Flowrpc-Error"
)

// NATS receives requests on a NATS subject and answers them
// with replies. The encoded headers travel base64 encoded in
// the Flowrpc-Context header.
type NATS struct {
	sub *nats.Subscription

	mtx sync.Mutex
	cur *nats.Msg
}

var _ Transport = (*NATS)(nil)

// NewNATS subscribes to subject. Workers sharing a queue
// group share the messages of the subject.
func NewNATS(nc *nats.Conn, subject, queue string) (*NATS, error) {
	var (
		sub *nats.Subscription
		err error
	)
	if queue != "" {
		sub, err = nc.QueueSubscribeSync(subject, queue)
	} else {
		sub, err = nc.SubscribeSync(subject)
	}
	if err != nil {
		return nil, err
	}
	return &NATS{sub: sub}, nil
}

func (n *NATS) Receive(ctx context.Context) (*Message, error) {
	msg, err := n.sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, err
	}

	headers, err := base64.StdEncoding.DecodeString(msg.Header.Get(NATSContextHeader))
	if err != nil {
		// The message is still answered, with an error
		n.setCurrent(msg)
		return nil, err
	}

	n.setCurrent(msg)
	return &Message{Body: msg.Data, Headers: headers}, nil
}

func (n *NATS) Send(_ context.Context, body []byte) error {
	return n.respond(&nats.Msg{Data: body})
}

func (n *NATS) Error(_ context.Context, text string) error {
	return n.respond(&nats.Msg{Header: nats.Header{NATSErrorHeader: []string{text}}})
}

func (n *NATS) respond(reply *nats.Msg) error {
	n.mtx.Lock()
	cur := n.cur
	n.cur = nil
	n.mtx.Unlock()

	if cur == nil {
		return ErrClosed
	}
	return cur.RespondMsg(reply)
}

func (n *NATS) setCurrent(msg *nats.Msg) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.cur = msg
}

// Close removes the subscription
func (n *NATS) Close() error {
	return n.sub.Unsubscribe()
}

// NATSHost is the host side of a NATS transport
type NATSHost struct {
	nc      *nats.Conn
	subject string
}

var _ Host = (*NATSHost)(nil)

// NewNATSHost creates a host sending batches to subject
func NewNATSHost(nc *nats.Conn, subject string) *NATSHost {
	return &NATSHost{nc: nc, subject: subject}
}

func (h *NATSHost) Call(ctx context.Context, body, headers []byte) ([]byte, error) {
	msg := &nats.Msg{
		Subject: h.subject,
		Data:    body,
		Header: nats.Header{
			NATSContextHeader: []string{base64.StdEncoding.EncodeToString(headers)},
		},
	}

	reply, err := h.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, err
	}

	if text := reply.Header.Get(NATSErrorHeader); text != "" {
		return nil, &RemoteError{Message: text}
	}
	return reply.Data, nil
}

// Close does not close the connection, which belongs to the caller
func (h *NATSHost) Close() error {
	return nil
}

