// Package kit holds the transport-neutral endpoint shape shared by the
// tabxport HTTP, connectivity and MCP surfaces.
package kit

import "context"

// Endpoint is one service operation: typed request in, typed response out.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(next Endpoint) Endpoint

// Chain composes middlewares; the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
