// Package meta records the declared shape of every compiled type for
// introspection.
package meta

import (
	"sort"
	"sync"

	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/types"
)

// relationHops is how many relation hops past the requested type are expanded
const relationHops = 1

// Entry is the flattened description of a compiled type
type Entry struct {
	Name        string        `json:"name"`
	Kind        string        `json:"kind"`
	Description string        `json:"description,omitempty"`
	Model       string        `json:"model,omitempty"`
	Fields      []*FieldEntry `json:"fields"`

	Parent   map[string]*Entry `json:"_parent,omitempty"`
	Child    map[string]*Entry `json:"_child,omitempty"`
	Children map[string]*Entry `json:"_children,omitempty"`
}

// FieldEntry describes a single field of an entry
type FieldEntry struct {
	Name        string              `json:"name"`
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Resolved    bool                `json:"resolved"`
	Required    bool                `json:"required,omitempty"`
	Aggregate   bool                `json:"aggregate,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Relation    string              `json:"relation,omitempty"`
	Default     interface{}         `json:"default,omitempty"`
	Display     *schema.Display     `json:"display,omitempty"`
	Constraints *schema.Constraints `json:"constraints,omitempty"`
}

type relationRef struct {
	kind   schema.RelationKind
	name   string
	target string
}

type record struct {
	entry     *Entry
	relations []relationRef
}

// Store holds one record per compiled named type. It implements
// types.Observer so that it sees exactly what the registry generated.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewStore creates an empty metadata store
func NewStore() *Store {
	return &Store{records: make(map[string]*record)}
}

// Observe records t; it is called by the type registry
func (s *Store) Observe(r *types.Registry, t *types.Type) {
	s.Record(r, t)
}

// Record flattens a compiled type into an entry
func (s *Store) Record(r *types.Registry, t *types.Type) {
	entry := &Entry{
		Name:        t.Name,
		Kind:        t.Kind.String(),
		Description: t.Description,
		Fields:      make([]*FieldEntry, 0, len(t.Fields)),
	}
	if t.Model != nil {
		entry.Model = t.Model.Key
	}

	rec := &record{entry: entry}

	for _, f := range t.Fields {
		fe := &FieldEntry{
			Name:        f.Name,
			Type:        r.TypeName(f.Type),
			Description: f.Description,
			Resolved:    f.Resolve != nil,
			Required:    f.Required,
			Default:     f.Default,
		}

		if base := r.Unwrap(f.Type); base != nil && base.Kind == types.KindEnum {
			fe.Enum = base.Enum.Names()
		}

		if decl := f.Decl; decl != nil {
			fe.Aggregate = decl.Aggregate
			fe.Display = decl.Display
			fe.Constraints = decl.Constraints
			if decl.Relation != nil {
				fe.Relation = decl.Relation.Kind.String()
				fe.Resolved = true
				if base := r.Unwrap(f.Type); base != nil {
					rec.relations = append(rec.relations, relationRef{
						kind:   decl.Relation.Kind,
						name:   f.Name,
						target: base.Name,
					})
				}
			}
		}

		entry.Fields = append(entry.Fields, fe)
	}

	s.mu.Lock()
	s.records[t.Name] = rec
	s.mu.Unlock()
}

// Get returns the entry for a type name with relation maps expanded
func (s *Store) Get(name string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.records[name]; !ok {
		return nil, false
	}
	return s.build(name, relationHops), true
}

// Names returns the recorded type names in sorted order
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// build copies the entry and expands relations while hops remain. The
// entries at the last hop carry no relation maps, which keeps the graph
// finite for cyclic models.
func (s *Store) build(name string, hops int) *Entry {
	rec, ok := s.records[name]
	if !ok {
		return nil
	}

	entry := *rec.entry
	if hops < 0 {
		return &entry
	}

	for _, rel := range rec.relations {
		target := s.build(rel.target, hops-1)
		if target == nil {
			continue
		}
		var m *map[string]*Entry
		switch rel.kind {
		case schema.RelationParent:
			m = &entry.Parent
		case schema.RelationChild:
			m = &entry.Child
		case schema.RelationChildren:
			m = &entry.Children
		}
		if *m == nil {
			*m = make(map[string]*Entry)
		}
		(*m)[rel.name] = target
	}
	return &entry
}
