// Package types compiles model declarations into a graph of named types.
//
// Types live in an arena owned by a Registry and reference each other by
// schema.Handle, so a field may point at a type whose own fields are still
// being compiled. Every generated name is interned exactly once.
package types

import (
	"github.com/mirkwood-lang/mirkwood/internal/schema"
)

// Kind classifies a compiled type
type Kind int

const (
	KindScalar Kind = iota
	KindObject
	KindInputObject
	KindEnum
	KindList
)

// String returns the introspection name of the kind
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "SCALAR"
	case KindObject:
		return "OBJECT"
	case KindInputObject:
		return "INPUT_OBJECT"
	case KindEnum:
		return "ENUM"
	case KindList:
		return "LIST"
	default:
		return "UNKNOWN"
	}
}

// Type is a compiled type stored in the registry arena
type Type struct {
	Handle      schema.Handle
	Name        string
	Kind        Kind
	Description string

	// Scalar is set for KindScalar
	Scalar schema.Scalar
	// Fields holds object and input object fields in declaration order
	Fields []*Field
	// Elem is the element type of a KindList
	Elem schema.Handle
	// Enum is set for KindEnum
	Enum *schema.Enum

	// Model is the declaration the type was generated from, if any
	Model *schema.Model
}

// Field returns the field with the given name, or nil
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// IsLeaf returns true for scalars and enums
func (t *Type) IsLeaf() bool {
	return t.Kind == KindScalar || t.Kind == KindEnum
}

// Field is a field of an object or input object type
type Field struct {
	Name        string
	Type        schema.Handle
	Args        []*Arg
	Description string
	Default     interface{}
	Required    bool

	// Resolve is nil for fields read straight off the source value
	Resolve schema.ResolveFunc

	// Decl is the declared field this one was compiled from
	Decl *schema.Field
}

// Arg returns the argument with the given name, or nil
func (f *Field) Arg(name string) *Arg {
	for _, a := range f.Args {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Arg is a field argument
type Arg struct {
	Name        string
	Type        schema.Handle
	Default     interface{}
	Description string
}

// Schema is a pair of root types over a registry
type Schema struct {
	Registry *Registry
	Query    schema.Handle
	Mutation schema.Handle
}

// QueryType returns the query root
func (s *Schema) QueryType() *Type {
	return s.Registry.Type(s.Query)
}

// MutationType returns the mutation root, or nil when the schema has none
func (s *Schema) MutationType() *Type {
	if s.Mutation == schema.NoHandle {
		return nil
	}
	return s.Registry.Type(s.Mutation)
}
