// Package backend defines the pluggable fetch capability consumed by the
// engine: acquiring a reusable connection and resolving one request into one
// response. The Pool type adds a hard bound on concurrently checked-out
// connections with a configurable acquisition timeout.
package backend

import (
	"context"

	"github.com/spindleworks/spindle"
)

// Connection resolves one request into one response. Implementations wrap a
// network client or a browser-driver session.
type Connection interface {
	Resolve(ctx context.Context, req *spindle.Request) (*spindle.Response, error)
}

// Backend acquires connections. Concrete backends own the creation cost;
// pooling policy lives in Pool.
type Backend interface {
	Connect(ctx context.Context) (Connection, error)
}

// ConnectFunc adapts a function to the Backend interface.
type ConnectFunc func(ctx context.Context) (Connection, error)

// Connect calls f.
func (f ConnectFunc) Connect(ctx context.Context) (Connection, error) {
	return f(ctx)
}
