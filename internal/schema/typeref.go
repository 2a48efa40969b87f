package schema

import (
	"fmt"
	"strings"
)

// Scalar is a built-in terminal type
type Scalar int

const (
	ScalarString Scalar = iota
	ScalarID
	ScalarInt
	ScalarFloat
	ScalarBoolean
	ScalarJSON
)

// String returns the type name of the scalar
func (s Scalar) String() string {
	switch s {
	case ScalarString:
		return "String"
	case ScalarID:
		return "ID"
	case ScalarInt:
		return "Int"
	case ScalarFloat:
		return "Float"
	case ScalarBoolean:
		return "Boolean"
	case ScalarJSON:
		return "JSON"
	default:
		return "Unknown"
	}
}

// Scalars lists all built-in scalars in declaration order
func Scalars() []Scalar {
	return []Scalar{ScalarString, ScalarID, ScalarInt, ScalarFloat, ScalarBoolean, ScalarJSON}
}

// ParseScalar converts a type name to a Scalar
func ParseScalar(name string) (Scalar, bool) {
	switch name {
	case "String", "string":
		return ScalarString, true
	case "ID", "id":
		return ScalarID, true
	case "Int", "int":
		return ScalarInt, true
	case "Float", "float":
		return ScalarFloat, true
	case "Boolean", "boolean", "bool":
		return ScalarBoolean, true
	case "JSON", "json":
		return ScalarJSON, true
	default:
		return 0, false
	}
}

// Handle addresses a compiled type inside a type registry arena
type Handle int

// NoHandle is the zero value for an unset handle
const NoHandle Handle = -1

// RefKind tags the variant held by a TypeRef
type RefKind int

const (
	// RefScalar is a built-in scalar
	RefScalar RefKind = iota
	// RefNamed references a type by its generated name
	RefNamed
	// RefInline is a nested schema declared in place
	RefInline
	// RefList wraps another reference
	RefList
	// RefEnum is an enumeration
	RefEnum
	// RefCompiled is an already compiled type
	RefCompiled
)

// String returns the variant name
func (k RefKind) String() string {
	switch k {
	case RefScalar:
		return "scalar"
	case RefNamed:
		return "named"
	case RefInline:
		return "inline"
	case RefList:
		return "list"
	case RefEnum:
		return "enum"
	case RefCompiled:
		return "compiled"
	default:
		return "unknown"
	}
}

// TypeRef is the tagged union of everything a field type may be declared as
type TypeRef struct {
	Kind   RefKind
	Scalar Scalar
	Name   string
	Inline *Model
	Elem   *TypeRef
	Enum   *Enum
	Handle Handle
}

// ScalarRef references a built-in scalar
func ScalarRef(s Scalar) TypeRef {
	return TypeRef{Kind: RefScalar, Scalar: s, Handle: NoHandle}
}

// Named references a type by generated name, e.g. "OrderType"
func Named(name string) TypeRef {
	return TypeRef{Kind: RefNamed, Name: name, Handle: NoHandle}
}

// Inline declares a nested schema in place
func Inline(m *Model) TypeRef {
	return TypeRef{Kind: RefInline, Inline: m, Handle: NoHandle}
}

// ListOf wraps elem as a list marker
func ListOf(elem TypeRef) TypeRef {
	return TypeRef{Kind: RefList, Elem: &elem, Handle: NoHandle}
}

// EnumRef declares an enumeration
func EnumRef(e *Enum) TypeRef {
	return TypeRef{Kind: RefEnum, Enum: e, Handle: NoHandle}
}

// Compiled references an already compiled type
func Compiled(h Handle) TypeRef {
	return TypeRef{Kind: RefCompiled, Handle: h}
}

// IsList returns true if the reference is a list marker
func (r TypeRef) IsList() bool {
	return r.Kind == RefList
}

// Base unwraps list markers down to the element reference
func (r TypeRef) Base() TypeRef {
	for r.Kind == RefList && r.Elem != nil {
		r = *r.Elem
	}
	return r
}

// String renders the reference the way it would be written in a model file
func (r TypeRef) String() string {
	switch r.Kind {
	case RefScalar:
		return r.Scalar.String()
	case RefNamed:
		return r.Name
	case RefInline:
		if r.Inline != nil && r.Inline.Name != "" {
			return r.Inline.Name
		}
		return "{inline}"
	case RefList:
		if r.Elem == nil {
			return "[]"
		}
		return "[" + r.Elem.String() + "]"
	case RefEnum:
		if r.Enum != nil && r.Enum.Name != "" {
			return r.Enum.Name
		}
		return "enum"
	case RefCompiled:
		return fmt.Sprintf("#%d", r.Handle)
	default:
		return "unknown"
	}
}

// ParseTypeRef parses a written type such as "String", "[Order]" or "Int!".
// A trailing "!" is reported through required.
func ParseTypeRef(s string) (ref TypeRef, required bool, err error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "!") {
		required = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "!"))
	}
	if s == "" {
		return TypeRef{}, false, fmt.Errorf("empty type")
	}

	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return TypeRef{}, false, fmt.Errorf("unterminated list type: %s", s)
		}
		elem, _, err := ParseTypeRef(s[1 : len(s)-1])
		if err != nil {
			return TypeRef{}, false, err
		}
		return ListOf(elem), required, nil
	}

	if scalar, ok := ParseScalar(s); ok {
		return ScalarRef(scalar), required, nil
	}

	if !IsValidName(s) {
		return TypeRef{}, false, fmt.Errorf("invalid type name: %s", s)
	}
	return Named(s), required, nil
}

// Enum is an enumeration type declaration
type Enum struct {
	Name        string
	Description string
	Values      []EnumValue
}

// EnumValue is a single enumeration member
type EnumValue struct {
	Name        string
	Value       interface{}
	Description string
}

// NewEnum creates an enum whose members map to their own names
func NewEnum(name string, values ...string) *Enum {
	e := &Enum{Name: name}
	for _, v := range values {
		e.Values = append(e.Values, EnumValue{Name: v, Value: v})
	}
	return e
}

// Names returns the member names in declaration order
func (e *Enum) Names() []string {
	names := make([]string, len(e.Values))
	for i, v := range e.Values {
		names[i] = v.Name
	}
	return names
}

// IsValidName reports whether s is a valid GraphQL name
func IsValidName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
