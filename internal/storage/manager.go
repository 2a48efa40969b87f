package storage

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultConnectionEnv names the environment variable consulted when no
// default connection is configured
const DefaultConnectionEnv = "MIRKWOOD_DEFAULT_CONNECTION"

// ConnectionConfig describes one named connection
type ConnectionConfig struct {
	Name string
	// Adapter selects the factory, e.g. "mongodb", "redis", "postgresql" or "sqlite"
	Adapter  string
	Driver   string
	URL      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	// KeyPrefix namespaces keys for key/value backends
	KeyPrefix string
}

// Factory opens a live adapter for a connection
type Factory func(ctx context.Context, cfg ConnectionConfig) (Adapter, error)

// Manager caches one live adapter per connection name. Concurrent first
// use of a name dials once.
type Manager struct {
	configs     map[string]ConnectionConfig
	factories   map[string]Factory
	defaultName string
	scoping     bool
	now         func() time.Time
	logger      *zap.Logger

	conns sync.Map
	group singleflight.Group
}

// Option configures a Manager
type Option func(*Manager)

// WithConnection registers a named connection
func WithConnection(cfg ConnectionConfig) Option {
	return func(m *Manager) {
		m.configs[cfg.Name] = cfg
	}
}

// WithFactory registers the factory used for an adapter name
func WithFactory(adapter string, f Factory) Option {
	return func(m *Manager) {
		m.factories[adapter] = f
	}
}

// WithDefault sets the connection used by datasources that name none
func WithDefault(name string) Option {
	return func(m *Manager) {
		m.defaultName = name
	}
}

// WithEntityScoping restricts reads to the entity allow-list found on the context
func WithEntityScoping(enabled bool) Option {
	return func(m *Manager) {
		m.scoping = enabled
	}
}

// WithClock overrides the clock used for timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a connection manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		configs:   make(map[string]ConnectionConfig),
		factories: make(map[string]Factory),
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultName returns the configured default connection, then the
// environment, then the only configured connection if there is exactly one
func (m *Manager) DefaultName() string {
	if m.defaultName != "" {
		return m.defaultName
	}
	if name := os.Getenv(DefaultConnectionEnv); name != "" {
		return name
	}
	if len(m.configs) == 1 {
		for name := range m.configs {
			return name
		}
	}
	return ""
}

// Names returns the configured connection names in sorted order
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connection returns the live adapter for name, dialing on first use.
// An empty name selects the default connection.
func (m *Manager) Connection(ctx context.Context, name string) (Adapter, error) {
	if name == "" {
		name = m.DefaultName()
	}
	if a, ok := m.conns.Load(name); ok {
		return a.(Adapter), nil
	}

	v, err, _ := m.group.Do(name, func() (interface{}, error) {
		if a, ok := m.conns.Load(name); ok {
			return a, nil
		}

		cfg, ok := m.configs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownConnection, name)
		}
		factory, ok := m.factories[cfg.Adapter]
		if !ok {
			return nil, fmt.Errorf("%w: %q for connection %q", ErrUnknownAdapter, cfg.Adapter, name)
		}

		a, err := factory(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open connection %q: %w", name, err)
		}
		m.conns.Store(name, a)
		m.logger.Info("storage connection opened",
			zap.String("connection", name),
			zap.String("adapter", cfg.Adapter),
		)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Adapter), nil
}

// Close closes every open connection
func (m *Manager) Close(ctx context.Context) error {
	var firstErr error
	m.conns.Range(func(key, value interface{}) bool {
		if err := value.(Adapter).Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close connection %q: %w", key, err)
		}
		m.conns.Delete(key)
		m.logger.Info("storage connection closed", zap.String("connection", key.(string)))
		return true
	})
	return firstErr
}
