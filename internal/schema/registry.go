package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the declared models of an application
type Registry struct {
	models    map[string]*Model
	validator *Validator
	mu        sync.RWMutex
}

// NewRegistry creates a new model registry
func NewRegistry() *Registry {
	return &Registry{
		models:    make(map[string]*Model),
		validator: NewValidator(),
	}
}

// Register registers a model under its key
func (r *Registry) Register(m *Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.Key == "" {
		m.Key = m.Name
	}
	if m.Name == "" {
		m.Name = m.Key
	}

	if _, exists := r.models[m.Key]; exists {
		return fmt.Errorf("model %s is already registered", m.Key)
	}

	// Relation targets may be registered later, so only structure is checked here
	if err := r.validator.ValidateStructural(m); err != nil {
		return fmt.Errorf("model validation failed for %s: %w", m.Key, err)
	}

	r.models[m.Key] = m
	return nil
}

// Get retrieves a model by key
func (r *Registry) Get(key string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[key]
	return m, ok
}

// All returns a copy of all registered models
func (r *Registry) All() map[string]*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Model, len(r.models))
	for k, v := range r.models {
		result[k] = v
	}
	return result
}

// Keys returns the registered model keys in sorted order
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return SortedKeys(r.models)
}

// ValidateAll validates every model including relation targets
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.validator.ValidateAll(r.models)
}

// Count returns the number of registered models
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}

// SortedKeys returns the keys of a model map in sorted order
func SortedKeys(models map[string]*Model) []string {
	keys := make([]string, 0, len(models))
	for k := range models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
