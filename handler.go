package spindle

import "context"

// Handler processes one dispatched request. The returned pair is folded into
// a single Signal with Normalize: plain success is Continue, an error is
// Defer unless classified fatal, in which case it is Abort.
type Handler interface {
	Serve(ctx context.Context, cx *Context) (Signal, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, cx *Context) (Signal, error)

// Serve calls f.
func (f HandlerFunc) Serve(ctx context.Context, cx *Context) (Signal, error) {
	return f(ctx, cx)
}
