// Package schema provides the declarative model descriptions that the schema
// compiler turns into a typed query and mutation surface. Models are built
// once at boot (from YAML or Go) and are treated as immutable afterwards.
package schema

import (
	"context"
	"fmt"
	"sort"
)

// ResolveParams carries what a field resolver receives from the executor
type ResolveParams struct {
	// Source is the resolved value of the parent field
	Source interface{}
	// Args holds coerced field arguments, defaults applied
	Args map[string]interface{}
	// Field is the name of the field being resolved
	Field string
	// Path is the response path of the field
	Path []interface{}
}

// ResolveFunc resolves a single field value
type ResolveFunc func(ctx context.Context, p ResolveParams) (interface{}, error)

// Branch is returned by a resolver whose sub-fields resolve under a
// different context, e.g. a root field that selects the model
type Branch struct {
	Context context.Context
	Value   interface{}
}

// Model is a named entity description bound to a datasource
type Model struct {
	// Key is the key the model was declared under; root fields use it
	Key         string
	Name        string
	Description string
	Fields      []*Field
	Datasource  Datasource
	Relations   Relations
	Queries     map[string]*Operation
	Mutations   map[string]*Operation
}

// NewModel creates an empty model whose key and name are both name
func NewModel(name string) *Model {
	return &Model{
		Key:       name,
		Name:      name,
		Fields:    make([]*Field, 0),
		Queries:   make(map[string]*Operation),
		Mutations: make(map[string]*Operation),
	}
}

// Field returns the field declared under name
func (m *Model) Field(name string) (*Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// HasField returns true if the model declares a field with the given name
func (m *Model) HasField(name string) bool {
	_, ok := m.Field(name)
	return ok
}

// AddField appends a field, replacing an existing field of the same name in place
func (m *Model) AddField(f *Field) *Model {
	for i, existing := range m.Fields {
		if existing.Name == f.Name {
			m.Fields[i] = f
			return m
		}
	}
	m.Fields = append(m.Fields, f)
	return m
}

// StoredFields returns the fields persisted by the datasource
func (m *Model) StoredFields() []*Field {
	stored := make([]*Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		if f.Stored() {
			stored = append(stored, f)
		}
	}
	return stored
}

// AggregateFields returns the names of fields marked as summable
func (m *Model) AggregateFields() []string {
	var names []string
	for _, f := range m.Fields {
		if f.Aggregate && f.Stored() {
			names = append(names, f.Name)
		}
	}
	return names
}

// Clone returns a shallow copy whose field slice can be extended without
// touching the original declaration
func (m *Model) Clone() *Model {
	clone := *m
	clone.Fields = make([]*Field, len(m.Fields))
	copy(clone.Fields, m.Fields)
	return &clone
}

// QueryNames returns custom query names in sorted order
func (m *Model) QueryNames() []string {
	return sortedKeys(m.Queries)
}

// MutationNames returns custom mutation names in sorted order
func (m *Model) MutationNames() []string {
	return sortedKeys(m.Mutations)
}

func sortedKeys(ops map[string]*Operation) []string {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Field is a single declared field
type Field struct {
	Name        string
	Type        TypeRef
	Required    bool
	Default     interface{}
	Description string

	// Resolve marks the field as computed; computed fields are never accepted
	// as mutation input nor used in filters
	Resolve ResolveFunc
	Args    []*Arg

	Display     *Display
	Constraints *Constraints

	// Aggregate marks the field as summable in aggregate queries
	Aggregate bool
	// Virtual fields are part of the type but never persisted
	Virtual bool

	// Relation is set on fields synthesized from a relation declaration
	Relation *Relation
}

// Computed returns true if the field has a custom resolver
func (f *Field) Computed() bool {
	return f.Resolve != nil
}

// Stored returns true if the field is persisted and may appear in input,
// filter and find types
func (f *Field) Stored() bool {
	return f.Resolve == nil && f.Relation == nil && !f.Virtual
}

// Display holds presentation metadata
type Display struct {
	Label       string `json:"label,omitempty" yaml:"label"`
	Placeholder string `json:"placeholder,omitempty" yaml:"placeholder"`
	Precision   *int   `json:"precision,omitempty" yaml:"precision"`
	Hidden      bool   `json:"hidden,omitempty" yaml:"hidden"`
}

// Constraints holds validation metadata
type Constraints struct {
	Type     string   `json:"type,omitempty" yaml:"type"`
	Required bool     `json:"required,omitempty" yaml:"required"`
	Min      *float64 `json:"min,omitempty" yaml:"min"`
	Max      *float64 `json:"max,omitempty" yaml:"max"`
	Step     *float64 `json:"step,omitempty" yaml:"step"`
	Len      *int     `json:"len,omitempty" yaml:"len"`
	Pattern  string   `json:"pattern,omitempty" yaml:"pattern"`
	Unique   bool     `json:"unique,omitempty" yaml:"unique"`
}

// Arg is a declared argument of a field or operation
type Arg struct {
	Name        string
	Type        TypeRef
	Default     interface{}
	Description string
}

// Datasource binds a model to physical storage
type Datasource struct {
	Collection string
	Table      string
	Connection string
	Timestamps bool
}

// Name returns the table or collection name, falling back to fallback
func (d Datasource) Name(fallback string) string {
	if d.Table != "" {
		return d.Table
	}
	if d.Collection != "" {
		return d.Collection
	}
	return fallback
}

// RelationKind distinguishes the three relation declarations
type RelationKind int

const (
	// RelationParent means this row references a foreign row
	RelationParent RelationKind = iota
	// RelationChild means a single foreign row references this row
	RelationChild
	// RelationChildren means many foreign rows reference this row
	RelationChildren
)

// String returns the declaration key of the relation kind
func (k RelationKind) String() string {
	switch k {
	case RelationParent:
		return "parent"
	case RelationChild:
		return "child"
	case RelationChildren:
		return "children"
	default:
		return "unknown"
	}
}

// MetaKey returns the metadata sub-map the relation is recorded under
func (k RelationKind) MetaKey() string {
	return "_" + k.String()
}

// Relations groups a model's relation declarations
type Relations struct {
	Parent   []*Relation
	Child    []*Relation
	Children []*Relation
}

// All returns every relation with its kind set
func (r Relations) All() []*Relation {
	all := make([]*Relation, 0, len(r.Parent)+len(r.Child)+len(r.Children))
	for _, rel := range r.Parent {
		rel.Kind = RelationParent
		all = append(all, rel)
	}
	for _, rel := range r.Child {
		rel.Kind = RelationChild
		all = append(all, rel)
	}
	for _, rel := range r.Children {
		rel.Kind = RelationChildren
		all = append(all, rel)
	}
	return all
}

// Relation declares a join-like field against another model
type Relation struct {
	Kind RelationKind
	Name string
	// Models lists target model keys; more than one means first match wins
	Models []string
	// Field is the field on the target model that is matched
	Field string
	// JoinBy is the field on this model whose value is matched
	JoinBy      string
	Description string
}

// Target returns the primary target model key
func (r *Relation) Target() string {
	if len(r.Models) == 0 {
		return ""
	}
	return r.Models[0]
}

// Operation declares a custom query or mutation on a model
type Operation struct {
	// Type is the result type; nil means the model's object type
	Type *TypeRef
	Args []*Arg
	// Use names a utility resolver factory such as "database.all"
	Use string
	// Resolve is a custom resolver; Use takes precedence when both are set
	Resolve     ResolveFunc
	Internal    bool
	Description string
}

// String renders a short description for error messages
func (o *Operation) String() string {
	if o.Use != "" {
		return fmt.Sprintf("operation(%s)", o.Use)
	}
	return "operation(custom)"
}
