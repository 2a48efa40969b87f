// Package config loads mirkwood.yml and MIRKWOOD_ environment overrides
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mirkwood-lang/mirkwood/internal/auth"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. MIRKWOOD_SERVER_PORT
const EnvPrefix = "MIRKWOOD"

// Session store kinds
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Adapters lists the storage adapter names a connection may use
var Adapters = []string{"mongodb", "redis", "postgresql", "sqlite"}

// Config represents the mirkwood configuration
type Config struct {
	Env        string         `mapstructure:"env"`
	Production bool           `mapstructure:"production"`
	Server     ServerConfig   `mapstructure:"server"`
	Models     ModelsConfig   `mapstructure:"models"`
	Database   DatabaseConfig `mapstructure:"database"`
	Session    SessionConfig  `mapstructure:"session"`
	Auth       AuthConfig     `mapstructure:"auth"`
	Log        LogConfig      `mapstructure:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	// Path is where the GraphQL endpoint is mounted
	Path        string        `mapstructure:"path"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ModelsConfig locates the model declarations
type ModelsConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig represents the named storage connections
type DatabaseConfig struct {
	Default     string                      `mapstructure:"default"`
	Connections map[string]ConnectionConfig `mapstructure:"connections"`
}

// ConnectionConfig represents one storage connection
type ConnectionConfig struct {
	Adapter   string `mapstructure:"adapter"`
	Driver    string `mapstructure:"driver"`
	URL       string `mapstructure:"url"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Database  string `mapstructure:"database"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SessionConfig represents session configuration
type SessionConfig struct {
	Store      string        `mapstructure:"store"`
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
	Secure     bool          `mapstructure:"secure"`
	Redis      RedisConfig   `mapstructure:"redis"`
}

// RedisConfig represents the Redis session store
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// AuthConfig represents the authorization gate and token issuer
type AuthConfig struct {
	Secret   string              `mapstructure:"secret"`
	TokenTTL time.Duration       `mapstructure:"token_ttl"`
	ACL      map[string][]string `mapstructure:"acl"`
	IAM      IAMConfig           `mapstructure:"iam"`
}

// IAMConfig represents the entity check that follows the ACL
type IAMConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	// ScopeQueries restricts reads, updates and deletes to the allowed entities
	ScopeQueries    bool     `mapstructure:"scope_queries"`
	AnonymousExempt []string `mapstructure:"anonymous_exempt"`
	Bypass          []string `mapstructure:"bypass"`
	AlwaysAllow     []string `mapstructure:"always_allow"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads the config file at path, or mirkwood.yml / mirkwood.yaml in
// the working directory when path is empty. A missing default file is not
// an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("env", "development")
	v.SetDefault("production", false)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.path", "/graphql")
	v.SetDefault("server.timeout", "30s")
	v.SetDefault("models.path", "models")
	v.SetDefault("database.default", "")
	v.SetDefault("session.store", SessionStoreMemory)
	v.SetDefault("session.cookie_name", "mirkwood_session")
	v.SetDefault("session.ttl", "168h")
	v.SetDefault("session.secure", false)
	v.SetDefault("session.redis.addr", "localhost:6379")
	v.SetDefault("session.redis.password", "")
	v.SetDefault("session.redis.db", 0)
	v.SetDefault("session.redis.key_prefix", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", auth.DefaultTokenTTL.String())
	v.SetDefault("auth.iam.enabled", false)
	v.SetDefault("auth.iam.scope_queries", false)
	v.SetDefault("log.level", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mirkwood")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Env == "production" {
		cfg.Production = true
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got: %d", cfg.Server.Port)
	}
	if !strings.HasPrefix(cfg.Server.Path, "/") {
		return fmt.Errorf("server.path must start with '/', got: %s", cfg.Server.Path)
	}

	switch cfg.Session.Store {
	case SessionStoreMemory, SessionStoreRedis:
	default:
		return fmt.Errorf("session.store must be %q or %q, got: %s", SessionStoreMemory, SessionStoreRedis, cfg.Session.Store)
	}

	for name, conn := range cfg.Database.Connections {
		if !knownAdapter(conn.Adapter) {
			return fmt.Errorf("database.connections.%s.adapter must be one of %s, got: %q",
				name, strings.Join(Adapters, ", "), conn.Adapter)
		}
	}
	if d := cfg.Database.Default; d != "" {
		if _, ok := cfg.Database.Connections[d]; !ok {
			return fmt.Errorf("database.default names unknown connection %q", d)
		}
	}

	if cfg.Auth.IAM.ScopeQueries && !cfg.Auth.IAM.Enabled {
		return fmt.Errorf("auth.iam.scope_queries requires auth.iam.enabled")
	}
	return nil
}

func knownAdapter(name string) bool {
	for _, a := range Adapters {
		if a == name {
			return true
		}
	}
	return false
}

// Connections returns the storage connections sorted by name
func (c *Config) Connections() []storage.ConnectionConfig {
	names := make([]string, 0, len(c.Database.Connections))
	for name := range c.Database.Connections {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]storage.ConnectionConfig, 0, len(names))
	for _, name := range names {
		conn := c.Database.Connections[name]
		out = append(out, storage.ConnectionConfig{
			Name:      name,
			Adapter:   conn.Adapter,
			Driver:    conn.Driver,
			URL:       conn.URL,
			Host:      conn.Host,
			Port:      conn.Port,
			Database:  conn.Database,
			User:      conn.User,
			Password:  conn.Password,
			KeyPrefix: conn.KeyPrefix,
		})
	}
	return out
}

// ACL returns the role to resolver pattern map
func (c *Config) ACL() auth.ACL {
	acl := make(auth.ACL, len(c.Auth.ACL))
	for role, patterns := range c.Auth.ACL {
		acl[role] = append([]string(nil), patterns...)
	}
	return acl
}

// Policy returns the entity check policy
func (c *Config) Policy() auth.Policy {
	return auth.Policy{
		Enabled:         c.Auth.IAM.Enabled,
		AnonymousExempt: c.Auth.IAM.AnonymousExempt,
		Bypass:          c.Auth.IAM.Bypass,
		AlwaysAllow:     c.Auth.IAM.AlwaysAllow,
	}
}

// Addr returns host:port for the HTTP listener
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
