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

package command

import (
	"errors"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Recognized header keys
const (
	HeaderTickTime  = "tickTime"
	HeaderTaskQueue = "taskQueue"
	HeaderEnv       = "env"
	HeaderReplay    = "replay"
)

// ArgsKey is the params key holding positional arguments
const ArgsKey = "args"

// Command is a single unit of the wire protocol. It is
// implemented by *Request, *SuccessResponse and *ErrorResponse.
type Command interface {
	CommandID() uint64
	command()
}

// Headers accompany a decoded batch of commands
type Headers map[string]string

// Get returns the value of the given header and whether it was set
func (h Headers) Get(key string) (string, bool) {
	if h == nil {
		return "", false
	}
	val, ok := h[key]
	return val, ok
}

// Params holds the arguments of a request
type Params map[string]any

// Args returns the positional arguments stored in the params
func (p Params) Args() []any {
	switch args := p[ArgsKey].(type) {
	case []any:
		return args
	case nil:
		return nil
	default:
		// Some codecs decode lists into typed slices
		val := reflect.ValueOf(args)
		if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
			return []any{args}
		}
		out := make([]any, val.Len())
		for i := range out {
			out[i] = val.Index(i).Interface()
		}
		return out
	}
}

// String returns the string stored at key, or an empty string
func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Decode binds the params to the struct pointed to by out
// using its mapstructure tags
func (p Params) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(p))
}

// Request asks the receiving side to run the named method
type Request struct {
	ID     uint64
	Name   string
	Params Params
}

// NewRequest creates a new request
func NewRequest(id uint64, name string, params Params) *Request {
	if params == nil {
		params = Params{}
	}
	return &Request{ID: id, Name: name, Params: params}
}

func (r *Request) CommandID() uint64 { return r.ID }
func (*Request) command()            {}

// SuccessResponse carries the result of a request
type SuccessResponse struct {
	ID     uint64
	Result any
}

// NewSuccessResponse creates a new success response
func NewSuccessResponse(id uint64, result any) *SuccessResponse {
	return &SuccessResponse{ID: id, Result: result}
}

func (r *SuccessResponse) CommandID() uint64 { return r.ID }
func (*SuccessResponse) command()            {}

// ErrorResponse carries the failure of a request
type ErrorResponse struct {
	ID      uint64
	Failure *Failure
}

// NewErrorResponse creates an error response from err
func NewErrorResponse(id uint64, err error) *ErrorResponse {
	return &ErrorResponse{ID: id, Failure: FailureFrom(err)}
}

func (r *ErrorResponse) CommandID() uint64 { return r.ID }
func (*ErrorResponse) command()            {}

// Failure is the wire representation of an error
type Failure struct {
	Kind    string
	Message string
	Stack   string
}

func (f *Failure) Error() string {
	if f.Kind == "" {
		return f.Message
	}
	return f.Kind + ": " + f.Message
}

// Kinder is implemented by errors that know their wire kind
type Kinder interface {
	Kind() string
}

// Stacker is implemented by errors that carry a stack
type Stacker interface {
	Stack() string
}

// FailureFrom converts any error into a Failure
func FailureFrom(err error) *Failure {
	if err == nil {
		return &Failure{Kind: "InvalidResultError", Message: "nil error"}
	}

	if f, ok := err.(*Failure); ok {
		return f
	}

	out := &Failure{Message: err.Error(), Kind: kindOf(err)}

	var s Stacker
	if errors.As(err, &s) {
		out.Stack = s.Stack()
	}
	return out
}

func kindOf(err error) string {
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}

	var f *Failure
	if errors.As(err, &f) && f.Kind != "" {
		return f.Kind
	}

	// Use the first named, non-generic error type in the chain
	for e := err; e != nil; e = errors.Unwrap(e) {
		t := reflect.TypeOf(e)
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		if t.Name() == "" || t.PkgPath() == "errors" || t.PkgPath() == "fmt" {
			continue
		}
		return t.Name()
	}
	return "Error"
}

// KindError is an error with an explicit wire kind
type KindError struct {
	kind string
	msg  string
}

// NewKindError creates an error that is reported with the given kind
func NewKindError(kind, msg string) *KindError {
	return &KindError{kind: kind, msg: msg}
}

func (e *KindError) Error() string { return e.msg }
func (e *KindError) Kind() string  { return e.kind }
