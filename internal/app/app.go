// Package app assembles a running backend from configuration: storage
// connections, the compiled schemas, their executors and the HTTP handler.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mirkwood-lang/mirkwood/internal/auth"
	"github.com/mirkwood-lang/mirkwood/internal/compiler"
	"github.com/mirkwood-lang/mirkwood/internal/config"
	"github.com/mirkwood-lang/mirkwood/internal/executor"
	"github.com/mirkwood-lang/mirkwood/internal/gql"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
	"github.com/mirkwood-lang/mirkwood/internal/storage/docstore"
	"github.com/mirkwood-lang/mirkwood/internal/storage/sqlstore"
	"github.com/mirkwood-lang/mirkwood/internal/web/router"
	"github.com/mirkwood-lang/mirkwood/internal/web/session"
)

// sessionSweepInterval is how often the memory session store drops expired sessions
const sessionSweepInterval = time.Minute

// Factories returns the storage factory for every adapter name
func Factories() map[string]storage.Factory {
	return map[string]storage.Factory{
		"mongodb":    docstore.OpenMongo,
		"redis":      docstore.OpenRedis,
		"postgresql": sqlstore.OpenPostgres,
		"sqlite":     sqlstore.OpenSQLite,
	}
}

// App is a compiled backend ready to serve
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Models  *schema.Registry
	Storage *storage.Manager
	Gate    *auth.Gate
	Issuer  *auth.Issuer
	Result  *compiler.Result

	// Public serves the operations visible to clients; Internal adds the
	// internal ones and backs Client
	Public   *executor.Executor
	Internal *executor.Executor
	Client   *gql.Client

	sessions session.Store
}

// Option configures New
type Option func(*options)

type options struct {
	resolvers map[string]schema.ResolveFunc
	factories map[string]storage.Factory
	sessions  session.Store
}

// WithResolver registers a named resolver for custom operations
func WithResolver(name string, fn schema.ResolveFunc) Option {
	return func(o *options) {
		o.resolvers[name] = fn
	}
}

// WithFactory overrides the storage factory of an adapter
func WithFactory(adapter string, f storage.Factory) Option {
	return func(o *options) {
		o.factories[adapter] = f
	}
}

// WithSessionStore replaces the store chosen by configuration
func WithSessionStore(s session.Store) Option {
	return func(o *options) {
		o.sessions = s
	}
}

// LoadModels reads the model declarations under the configured path
func LoadModels(cfg *config.Config) (*schema.Registry, error) {
	models, err := schema.LoadDir(cfg.Models.Path)
	if err != nil {
		return nil, err
	}
	reg := schema.NewRegistry()
	for _, m := range models {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// NewStorage creates the connection manager described by cfg
func NewStorage(cfg *config.Config, logger *zap.Logger, factories map[string]storage.Factory) *storage.Manager {
	opts := []storage.Option{
		storage.WithDefault(cfg.Database.Default),
		storage.WithEntityScoping(cfg.Auth.IAM.ScopeQueries),
		storage.WithLogger(logger),
	}
	for adapter, f := range factories {
		opts = append(opts, storage.WithFactory(adapter, f))
	}
	for _, conn := range cfg.Connections() {
		opts = append(opts, storage.WithConnection(conn))
	}
	return storage.NewManager(opts...)
}

// New loads the models and compiles them against the configured storage
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	models, err := LoadModels(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	return Build(cfg, logger, models, opts...)
}

// Build compiles an already loaded model registry
func Build(cfg *config.Config, logger *zap.Logger, models *schema.Registry, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &options{
		resolvers: make(map[string]schema.ResolveFunc),
		factories: Factories(),
	}
	for _, opt := range opts {
		opt(o)
	}

	manager := NewStorage(cfg, logger, o.factories)
	gate := auth.NewGate(cfg.ACL(), auth.WithPolicy(cfg.Policy()), auth.WithLogger(logger))

	copts := []compiler.Option{
		compiler.WithManager(manager),
		compiler.WithGate(gate),
		compiler.WithProduction(cfg.Production),
		compiler.WithLogger(logger),
	}
	for name, fn := range o.resolvers {
		copts = append(copts, compiler.WithResolver(name, fn))
	}

	res, err := compiler.New(copts...).Compile(models)
	if err != nil {
		return nil, err
	}

	public, err := executor.New(res.Public, executor.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("public schema: %w", err)
	}
	internal, err := executor.New(res.Internal, executor.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("internal schema: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Models:   models,
		Storage:  manager,
		Gate:     gate,
		Issuer:   auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL),
		Result:   res,
		Public:   public,
		Internal: internal,
		Client:   gql.New(internal),
		sessions: o.sessions,
	}, nil
}

// Served returns the executor exposed over HTTP: the public schema in
// production, the internal one otherwise
func (a *App) Served() *executor.Executor {
	if a.Config.Production {
		return a.Public
	}
	return a.Internal
}

// Handler builds the HTTP handler. The session store is opened on first call.
func (a *App) Handler() http.Handler {
	if a.sessions == nil {
		a.sessions = newSessionStore(a.Config.Session)
	}

	sessions := session.DefaultConfig(a.sessions)
	sessions.CookieName = a.Config.Session.CookieName
	sessions.MaxAge = int(a.Config.Session.TTL / time.Second)
	sessions.Secure = a.Config.Session.Secure
	sessions.Logger = a.Logger

	var issuer *auth.Issuer
	if a.Config.Auth.Secret != "" {
		issuer = a.Issuer
	}

	return router.New(router.Options{
		Executor:    a.Served(),
		Path:        a.Config.Server.Path,
		Sessions:    sessions,
		Issuer:      issuer,
		CORSOrigins: a.Config.Server.CORSOrigins,
		Timeout:     a.Config.Server.Timeout,
		Logger:      a.Logger,
	})
}

func newSessionStore(cfg config.SessionConfig) session.Store {
	if cfg.Store == config.SessionStoreRedis {
		return session.NewRedisStore(&session.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	}
	return session.NewMemoryStore(sessionSweepInterval)
}

// Migrate creates the physical storage of every model, in key order
func (a *App) Migrate(ctx context.Context) ([]storage.MigrationResult, error) {
	all := a.Models.All()
	models := make([]*schema.Model, 0, len(all))
	for _, key := range a.Models.Keys() {
		models = append(models, all[key])
	}
	return a.Storage.Migrate(ctx, models)
}

// Close closes the storage connections and the session store
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Storage.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session store: %w", err))
		}
	}
	return errors.Join(errs...)
}
