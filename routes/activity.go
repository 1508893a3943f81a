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

package routes

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/gofrs/uuid"
	"go.arsenm.dev/flowrpc/activity"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/internal/reflectutil"
	"go.arsenm.dev/flowrpc/promise"
	"go.arsenm.dev/flowrpc/router"
)

// Activities is the worker side of the activity driver
type Activities interface {
	TaskQueue() string
	Activity(name string) (any, bool)
	BaseContext() context.Context
}

type activityParams struct {
	Name string        `mapstructure:"name"`
	Args []any         `mapstructure:"args"`
	Info activity.Info `mapstructure:"info"`
}

// Activity returns the routes of the activity driver of a
func Activity(a Activities) []router.Route {
	return []router.Route{NewInvokeActivity(a)}
}

// NewInvokeActivity returns a route that runs an activity
func NewInvokeActivity(a Activities) router.Route {
	return router.Func(InvokeActivity, func(params command.Params, _ command.Headers, d *promise.Deferred) error {
		var p activityParams
		if err := params.Decode(&p); err != nil {
			return fmt.Errorf("%s: %w", InvokeActivity, err)
		}
		if p.Name == "" {
			return &MissingParamError{Route: InvokeActivity, Param: "name"}
		}

		fn, ok := a.Activity(p.Name)
		if !ok {
			return &NotRegisteredError{Type: "activity", Name: p.Name}
		}

		info := p.Info
		info.Name = p.Name
		if info.TaskQueue == "" {
			info.TaskQueue = a.TaskQueue()
		}
		if info.ID == "" {
			id, err := uuid.NewV4()
			if err != nil {
				return err
			}
			info.ID = id.String()
		}

		ctx := activity.WithInfo(a.BaseContext(), info)
		val, err := reflectutil.Call(fn, []reflect.Value{reflect.ValueOf(ctx)}, p.Args)
		if errors.Is(err, activity.ErrResultPending) {
			d.Reject(activity.ErrResultPending)
			return nil
		}
		settle(d, val, err)
		return nil
	})
}
