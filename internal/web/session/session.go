// Package session keeps per-client state across requests: the identity set
// by authenticate, and values written by the session utilities.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
)

// ErrSessionNotFound is returned when a session is not found
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExpired is returned when a session has expired
var ErrSessionExpired = errors.New("session expired")

// Store defines the interface for session storage backends
type Store interface {
	// Get retrieves a session by ID
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Set stores a session with the given TTL
	Set(ctx context.Context, sessionID string, session *Session, ttl time.Duration) error

	// Delete removes a session
	Delete(ctx context.Context, sessionID string) error

	// Refresh updates the expiration time of a session
	Refresh(ctx context.Context, sessionID string, ttl time.Duration) error

	// Close cleans up any resources used by the store
	Close() error
}

// Session represents a client session
type Session struct {
	ID string `json:"id"`

	// Auth is set while the session is authenticated
	Auth *Auth `json:"auth,omitempty"`

	// Data holds values written through the session utilities
	Data map[string]interface{} `json:"data"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	// destroyed sessions are not saved at the end of the request
	destroyed bool
}

// Auth is the identity held by an authenticated session
type Auth struct {
	Role        string       `json:"role"`
	User        string       `json:"user,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission grants a user access to entities through resolvers
type Permission struct {
	Resolvers []string `json:"resolvers"`
	Entities  []string `json:"entities"`
}

// NewSession creates a new session with the given ID and TTL
func NewSession(id string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Data:      make(map[string]interface{}),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Get retrieves a value by key, falling back to a dotted path through
// nested values, e.g. "cart.items"
func (s *Session) Get(key string) (interface{}, bool) {
	if v, ok := s.Data[key]; ok {
		return v, true
	}
	return filter.Lookup(s.Data, key)
}

// Set stores a value in session data
func (s *Session) Set(key string, value interface{}) {
	if s.Data == nil {
		s.Data = make(map[string]interface{})
	}
	s.Data[key] = value
}

// Delete removes a value from session data
func (s *Session) Delete(key string) {
	delete(s.Data, key)
}

// Config holds session configuration
type Config struct {
	// CookieName is the name of the session cookie
	CookieName string

	// CookiePath is the path for the session cookie
	CookiePath string

	// CookieDomain is the domain for the session cookie
	CookieDomain string

	// MaxAge is the session TTL in seconds
	MaxAge int

	// HttpOnly prevents JavaScript access to the cookie
	HttpOnly bool

	// Secure requires HTTPS for the cookie
	Secure bool

	// SameSite controls cross-site cookie behavior
	SameSite string // "Strict", "Lax", or "None"

	// Store is the session storage backend
	Store Store

	Logger *zap.Logger
}

// DefaultConfig returns default session configuration
func DefaultConfig(store Store) *Config {
	return &Config{
		CookieName: "mirkwood_session",
		CookiePath: "/",
		MaxAge:     86400 * 7, // 7 days
		HttpOnly:   true,
		Secure:     true,
		SameSite:   "Lax",
		Store:      store,
		Logger:     zap.NewNop(),
	}
}

// TTL returns MaxAge as a duration
func (c *Config) TTL() time.Duration {
	return time.Duration(c.MaxAge) * time.Second
}
