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

package process

import (
	"errors"
	"fmt"
	"strings"

	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/internal/coroutine"
)

var (
	// ErrNotInWorkflow is returned when a blocking workflow operation is
	// used outside of the workflow function, such as in a query handler
	ErrNotInWorkflow = command.NewKindError("WorkflowContextError", "blocking operation outside of workflow function")
	// ErrDestroyed is the outcome of a run that was destroyed by the host
	ErrDestroyed = command.NewKindError("CanceledError", "workflow run destroyed")
)

// ProcessNotFoundError is returned when no active run has the given id
type ProcessNotFoundError struct {
	RunID string
}

func (e *ProcessNotFoundError) Error() string {
	return fmt.Sprintf("workflow run %q not found", e.RunID)
}

// DuplicateRunError is returned when a run id is added twice
type DuplicateRunError struct {
	RunID string
}

func (e *DuplicateRunError) Error() string {
	return fmt.Sprintf("workflow run %q is already running", e.RunID)
}

// QueryHandlerNotFoundError is returned when a run has no
// handler for a query
type QueryHandlerNotFoundError struct {
	Name  string
	Known []string
}

func (e *QueryHandlerNotFoundError) Error() string {
	return fmt.Sprintf("unknown queryType %s. KnownQueryTypes=[%s]", e.Name, strings.Join(e.Known, ", "))
}

// SignalHandlerNotFoundError is returned when a run has no
// handler for a signal
type SignalHandlerNotFoundError struct {
	Name  string
	Known []string
}

func (e *SignalHandlerNotFoundError) Error() string {
	return fmt.Sprintf("unknown signalType %s. KnownSignalTypes=[%s]", e.Name, strings.Join(e.Known, ", "))
}

// WorkflowExecutionFailure is the outcome of a workflow
// function that returned an error or panicked
type WorkflowExecutionFailure struct {
	RunID string
	Err   error
}

func (e *WorkflowExecutionFailure) Error() string {
	return fmt.Sprintf("workflow run %q failed: %v", e.RunID, e.Err)
}

func (e *WorkflowExecutionFailure) Unwrap() error {
	return e.Err
}

func (e *WorkflowExecutionFailure) Kind() string {
	return "WorkflowExecutionFailure"
}

// Stack returns the stack of the panic that failed the run, if any
func (e *WorkflowExecutionFailure) Stack() string {
	var pe *coroutine.PanicError
	if errors.As(e.Err, &pe) {
		return pe.Stack()
	}
	return ""
}
