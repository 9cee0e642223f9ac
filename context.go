package spindle

import (
	"context"

	"github.com/spindleworks/spindle/dataset"
)

// Context is the per-dispatch bundle handed to handler logic: the request,
// its resolved response, shared application state, and handles for pushing
// follow-up requests and yielding scraped items. A Context lives for exactly
// one handler invocation and is never shared across concurrent dispatches.
type Context struct {
	request  *Request
	response *Response
	state    any
	frontier dataset.Dataset[*Request]
	sink     dataset.Sink[any]
}

// NewContext assembles a Context. The engine calls this once per dispatch.
func NewContext(
	req *Request,
	resp *Response,
	state any,
	frontier dataset.Dataset[*Request],
	sink dataset.Sink[any],
) *Context {
	return &Context{
		request:  req,
		response: resp,
		state:    state,
		frontier: frontier,
		sink:     sink,
	}
}

// Request returns the request being handled.
func (c *Context) Request() *Request { return c.request }

// Response returns the backend's response for the request.
func (c *Context) Response() *Response { return c.response }

// State returns the shared immutable application state, nil if none was set.
func (c *Context) State() any { return c.state }

// Enqueue submits a follow-up request to the frontier. It becomes eligible
// for dequeue once the current handler returns.
func (c *Context) Enqueue(ctx context.Context, req *Request) error {
	if err := c.frontier.Push(ctx, req); err != nil {
		return Errorf(KindDataset, "enqueue request: %w", err)
	}
	return nil
}

// Follow is shorthand for enqueueing a child of the current request.
func (c *Context) Follow(ctx context.Context, url string, tag Tag) error {
	return c.Enqueue(ctx, c.request.Child(url, tag))
}

// Yield writes a scraped item to the configured result sink.
func (c *Context) Yield(ctx context.Context, item any) error {
	if c.sink == nil {
		return Errorf(KindContext, "no result sink configured")
	}
	if err := c.sink.Push(ctx, item); err != nil {
		return Errorf(KindDataset, "yield item: %w", err)
	}
	return nil
}
