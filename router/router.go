// Package router maps routing tags to middleware-wrapped handler chains.
//
// Registration happens before the engine starts; dispatch reads a shared
// immutable snapshot, so the hot path takes no locks. Rebuild swaps in a new
// snapshot without invalidating in-flight dispatches.
package router

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spindleworks/spindle"
)

// Middleware wraps a handler with cross-cutting behavior. Middleware applied
// later via Layer executes outermost.
type Middleware func(spindle.Handler) spindle.Handler

type table struct {
	routes   map[spindle.Tag]spindle.Handler
	fallback spindle.Handler
}

// Router routes contexts to handler chains by the request's tag.
type Router struct {
	mu       sync.Mutex
	handlers map[spindle.Tag]spindle.Handler
	fallback spindle.Handler
	layers   []Middleware
	buildErr error

	snapshot atomic.Pointer[table]
}

// New creates an empty Router.
func New() *Router {
	return &Router{handlers: make(map[spindle.Tag]spindle.Handler)}
}

// Route registers a handler chain under a tag. Registering the same tag
// twice is a configuration error surfaced by Build.
func (r *Router) Route(tag spindle.Tag, h spindle.Handler) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[tag]; dup {
		r.recordErr(fmt.Errorf("duplicate route for tag %q", tag))
		return r
	}
	r.handlers[tag] = h
	return r
}

// RouteFunc is Route for a plain function.
func (r *Router) RouteFunc(tag spindle.Tag, f spindle.HandlerFunc) *Router {
	return r.Route(tag, f)
}

// Fallback registers the handler invoked for tags with no registered route.
// Without a fallback, dispatching an unknown tag yields a context-kind error.
func (r *Router) Fallback(h spindle.Handler) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fallback != nil {
		r.recordErr(fmt.Errorf("fallback handler registered twice"))
		return r
	}
	r.fallback = h
	return r
}

// Layer wraps every registered chain (and the fallback) with the given
// middleware. Layers apply in registration order; the last layer applied
// executes outermost.
func (r *Router) Layer(mw ...Middleware) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = append(r.layers, mw...)
	return r
}

func (r *Router) recordErr(err error) {
	if r.buildErr == nil {
		r.buildErr = err
	}
}

// Build validates the registered routes and publishes an immutable dispatch
// snapshot. It must be called (directly or via the engine) before traffic
// flows; configuration errors are fatal at this point, never at dispatch.
func (r *Router) Build() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buildLocked()
}

// Rebuild republishes the snapshot after late route or layer changes.
// In-flight dispatches keep reading the snapshot they started with.
func (r *Router) Rebuild() error {
	return r.Build()
}

func (r *Router) buildLocked() error {
	if r.buildErr != nil {
		return spindle.Errorf(spindle.KindContext, "router config: %w", r.buildErr)
	}
	t := &table{routes: make(map[spindle.Tag]spindle.Handler, len(r.handlers))}
	for tag, h := range r.handlers {
		t.routes[tag] = r.wrap(h)
	}
	if r.fallback != nil {
		t.fallback = r.wrap(r.fallback)
	}
	r.snapshot.Store(t)
	return nil
}

func (r *Router) wrap(h spindle.Handler) spindle.Handler {
	for _, mw := range r.layers {
		h = mw(h)
	}
	return h
}

// Dispatch resolves the context's tag against the current snapshot and
// invokes the matched chain. An unmatched tag is a dispatch-time condition:
// it yields a context-kind error (or the fallback chain, when registered),
// never a panic.
func (r *Router) Dispatch(ctx context.Context, cx *spindle.Context) (spindle.Signal, error) {
	t := r.snapshot.Load()
	if t == nil {
		if err := r.Build(); err != nil {
			return spindle.Signal{}, err
		}
		t = r.snapshot.Load()
	}
	tag := cx.Request().Tag
	h, ok := t.routes[tag]
	if !ok {
		if t.fallback == nil {
			// A tag with no route will not match on retry either.
			return spindle.Signal{}, spindle.Errorf(spindle.KindContext, "no route for tag %q", tag).AsFatal()
		}
		h = t.fallback
	}
	return h.Serve(ctx, cx)
}
