// Package router mounts the GraphQL endpoint and its middleware on chi
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mirkwood-lang/mirkwood/internal/auth"
	"github.com/mirkwood-lang/mirkwood/internal/executor"
	"github.com/mirkwood-lang/mirkwood/internal/web/middleware"
	"github.com/mirkwood-lang/mirkwood/internal/web/session"
)

const (
	// DefaultPath is where the GraphQL endpoint is mounted
	DefaultPath = "/graphql"
	// HealthPath answers liveness probes
	HealthPath = "/healthz"
)

// Executor runs a GraphQL request
type Executor interface {
	Execute(ctx context.Context, req executor.Request) *executor.Result
}

// Options configures the router
type Options struct {
	Executor Executor
	Path     string

	// Sessions enables the session cookie on the GraphQL endpoint
	Sessions *session.Config
	// Issuer verifies bearer tokens; nil leaves identity to the session
	Issuer *auth.Issuer

	CORSOrigins []string
	// Timeout bounds each request's context; zero disables it
	Timeout time.Duration
	// Health reports readiness on HealthPath; nil always answers ok
	Health func(ctx context.Context) error

	Logger *zap.Logger
}

// New builds the HTTP handler
func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	path := opts.Path
	if path == "" {
		path = DefaultPath
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(logger, HealthPath),
		middleware.Recovery(logger),
		middleware.CORS(middleware.DefaultCORSConfig(opts.CORSOrigins...)),
	)

	r.Get(HealthPath, health(opts.Health))

	r.With(endpoint(opts)...).Method(http.MethodPost, path, &graphqlHandler{exec: opts.Executor, logger: logger})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeErrors(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// endpoint is the stack in front of the GraphQL handler. The request
// deadline is set first; the bearer identity is resolved last so that it
// takes precedence over the session.
func endpoint(opts Options) chi.Middlewares {
	mws := chi.Middlewares{middleware.Timeout(opts.Timeout)}
	if opts.Sessions != nil {
		mws = append(mws, session.Middleware(opts.Sessions))
	}
	return append(mws, middleware.Identity(opts.Issuer))
}

func health(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
