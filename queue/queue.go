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

package queue

import (
	"sync"

	"go.arsenm.dev/flowrpc/command"
)

// Queue buffers outgoing commands until the next flush
type Queue struct {
	mtx      sync.Mutex
	commands []command.Command
}

// New creates and returns a new queue
func New() *Queue {
	return &Queue{}
}

// Push appends a command to the queue
func (q *Queue) Push(cmd command.Command) {
	q.mtx.Lock()
	q.commands = append(q.commands, cmd)
	q.mtx.Unlock()
}

// Drain returns every queued command in insertion
// order and empties the queue
func (q *Queue) Drain() []command.Command {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	out := q.commands
	q.commands = nil
	return out
}

// Len returns the amount of queued commands
func (q *Queue) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return len(q.commands)
}
