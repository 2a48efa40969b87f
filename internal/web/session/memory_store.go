package session

import (
	"context"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often the memory store drops expired sessions
const DefaultCleanupInterval = time.Minute

// MemoryStore is an in-memory session store for development and tests
type MemoryStore struct {
	sessions sync.Map
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

type sessionEntry struct {
	session   *Session
	expiresAt time.Time
}

// NewMemoryStore creates a store that sweeps expired sessions every interval.
// An interval of zero uses DefaultCleanupInterval.
func NewMemoryStore(interval time.Duration) *MemoryStore {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	store := &MemoryStore{
		stopChan: make(chan struct{}),
		now:      time.Now,
	}

	store.wg.Add(1)
	go store.cleanup(interval)

	return store
}

// Get retrieves a session from memory
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	value, ok := s.sessions.Load(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	entry := value.(*sessionEntry)
	if entry.expiresAt.Before(s.now()) {
		s.sessions.Delete(sessionID)
		return nil, ErrSessionExpired
	}

	return entry.session, nil
}

// Set stores a session in memory
func (s *MemoryStore) Set(ctx context.Context, sessionID string, session *Session, ttl time.Duration) error {
	s.sessions.Store(sessionID, &sessionEntry{
		session:   session,
		expiresAt: s.now().Add(ttl),
	})
	return nil
}

// Delete removes a session from memory
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.sessions.Delete(sessionID)
	return nil
}

// Refresh updates the expiration time of a session
func (s *MemoryStore) Refresh(ctx context.Context, sessionID string, ttl time.Duration) error {
	value, ok := s.sessions.Load(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	entry := value.(*sessionEntry)
	s.sessions.Store(sessionID, &sessionEntry{session: entry.session, expiresAt: s.now().Add(ttl)})
	return nil
}

// Close stops the sweeper and drops all sessions. It is safe to call twice.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.sessions.Range(func(key, value interface{}) bool {
		s.sessions.Delete(key)
		return true
	})
	return nil
}

func (s *MemoryStore) cleanup(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes expired sessions
func (s *MemoryStore) sweep() {
	now := s.now()
	s.sessions.Range(func(key, value interface{}) bool {
		if value.(*sessionEntry).expiresAt.Before(now) {
			s.sessions.Delete(key)
		}
		return true
	})
}

// Count returns the number of stored sessions
func (s *MemoryStore) Count() int {
	count := 0
	s.sessions.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}
