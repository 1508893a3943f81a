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

package router

import (
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.arsenm.dev/flowrpc/command"
	"go.arsenm.dev/flowrpc/promise"
)

// DuplicateRouteError is returned when a route name is already taken
type DuplicateRouteError struct {
	Name string
}

func (e *DuplicateRouteError) Error() string {
	return fmt.Sprintf("route %q has already been registered", e.Name)
}

// RouteNotFoundError is returned when no route matches a request
type RouteNotFoundError struct {
	Name string
}

func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("method %q is not registered", e.Name)
}

// Route handles requests with a specific name
type Route interface {
	Name() string
	// Handle settles d with the outcome of the request, now or later.
	// A returned error rejects d.
	Handle(params command.Params, headers command.Headers, d *promise.Deferred) error
}

// HandlerFunc is the signature of a function route
type HandlerFunc func(params command.Params, headers command.Headers, d *promise.Deferred) error

type funcRoute struct {
	name string
	fn   HandlerFunc
}

func (r funcRoute) Name() string { return r.name }

func (r funcRoute) Handle(params command.Params, headers command.Headers, d *promise.Deferred) error {
	return r.fn(params, headers, d)
}

// Func creates a route from a function
func Func(name string, fn HandlerFunc) Route {
	return funcRoute{name: name, fn: fn}
}

// Router is a table of routes indexed by name
type Router struct {
	mtx    sync.RWMutex
	routes map[string]Route
}

// New creates and returns a new router
func New() *Router {
	return &Router{routes: map[string]Route{}}
}

// Add registers a route. If a route with the same name exists,
// it is replaced when overwrite is set, otherwise an error is returned.
func (r *Router) Add(route Route, overwrite bool) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, ok := r.routes[route.Name()]; ok && !overwrite {
		return &DuplicateRouteError{Name: route.Name()}
	}
	r.routes[route.Name()] = route
	return nil
}

// Remove removes the route with the same name as route
func (r *Router) Remove(route Route) {
	r.mtx.Lock()
	delete(r.routes, route.Name())
	r.mtx.Unlock()
}

// Match returns the route that handles req
func (r *Router) Match(req *command.Request) (Route, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	route, ok := r.routes[req.Name]
	return route, ok
}

// Names returns the names of every registered route, sorted
func (r *Router) Names() []string {
	r.mtx.RLock()
	names := lo.Keys(r.routes)
	r.mtx.RUnlock()
	slices.Sort(names)
	return names
}

// Dispatch runs the route matching req and returns its pending result
func (r *Router) Dispatch(req *command.Request, headers command.Headers) *promise.Deferred {
	route, ok := r.Match(req)
	if !ok {
		return promise.RejectedWith(&RouteNotFoundError{Name: req.Name})
	}

	d := promise.New(nil)
	if err := handle(route, req, headers, d); err != nil {
		d.Reject(err)
	}
	return d
}

func handle(route Route, req *command.Request, headers command.Headers, d *promise.Deferred) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rErr, ok := r.(error); ok {
				err = fmt.Errorf("route %s panicked: %w", route.Name(), rErr)
			} else {
				err = fmt.Errorf("route %s panicked: %v", route.Name(), r)
			}
		}
	}()
	return route.Handle(req.Params, headers, d)
}
