// Package resolver wraps field resolvers with the checks every generated
// resolver runs before and after its body.
package resolver

import (
	"github.com/mirkwood-lang/mirkwood/internal/schema"
)

// Middleware wraps a field resolver
type Middleware func(schema.ResolveFunc) schema.ResolveFunc

// Chain is an ordered list of resolver middleware
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a chain. The first middleware runs first.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Append returns a new chain with middlewares added after the existing ones
func (c *Chain) Append(middlewares ...Middleware) *Chain {
	out := make([]Middleware, len(c.middlewares)+len(middlewares))
	copy(out, c.middlewares)
	copy(out[len(c.middlewares):], middlewares)
	return &Chain{middlewares: out}
}

// Then wraps fn with every middleware in the chain
func (c *Chain) Then(fn schema.ResolveFunc) schema.ResolveFunc {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		fn = c.middlewares[i](fn)
	}
	return fn
}
