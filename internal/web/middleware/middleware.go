// Package middleware holds the HTTP middleware mounted in front of the
// GraphQL endpoint. Each constructor returns a chi compatible Middleware.
package middleware

import (
	"net/http"
)

// Middleware wraps an http.Handler
type Middleware func(http.Handler) http.Handler
