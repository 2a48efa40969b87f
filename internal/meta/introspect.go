package meta

import (
	"context"
	"fmt"

	mwerrors "github.com/mirkwood-lang/mirkwood/internal/errors"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/types"
)

// Names of the introspection types
const (
	RootTypeName        = "RootMeta"
	EntryTypeName       = "Meta"
	FieldTypeName       = "MetaField"
	DisplayTypeName     = "MetaFieldDisplay"
	ConstraintsTypeName = "MetaFieldConstraints"
)

// Resolver names used when the introspection root is wrapped
const (
	ResolverType  = "meta.type"
	ResolverTypes = "meta.types"
)

// Wrap decorates an introspection resolver, e.g. with the authorization gate
type Wrap func(name string, fn schema.ResolveFunc) schema.ResolveFunc

// Install defines the introspection types in r and returns the RootMeta
// handle. wrap may be nil.
func (s *Store) Install(r *types.Registry, wrap Wrap) (schema.Handle, error) {
	if t, ok := r.Get(RootTypeName); ok {
		return t.Handle, nil
	}
	if wrap == nil {
		wrap = func(_ string, fn schema.ResolveFunc) schema.ResolveFunc { return fn }
	}

	str := r.Scalar(schema.ScalarString)
	boolean := r.Scalar(schema.ScalarBoolean)
	integer := r.Scalar(schema.ScalarInt)
	float := r.Scalar(schema.ScalarFloat)
	js := r.Scalar(schema.ScalarJSON)

	display, err := r.Define(&types.Type{
		Name: DisplayTypeName,
		Kind: types.KindObject,
		Fields: []*types.Field{
			{Name: "label", Type: str},
			{Name: "placeholder", Type: str},
			{Name: "precision", Type: integer},
			{Name: "hidden", Type: boolean},
		},
	})
	if err != nil {
		return schema.NoHandle, err
	}

	constraints, err := r.Define(&types.Type{
		Name: ConstraintsTypeName,
		Kind: types.KindObject,
		Fields: []*types.Field{
			{Name: "type", Type: str},
			{Name: "required", Type: boolean},
			{Name: "min", Type: float},
			{Name: "max", Type: float},
			{Name: "step", Type: float},
			{Name: "len", Type: integer},
			{Name: "pattern", Type: str},
			{Name: "unique", Type: boolean},
		},
	})
	if err != nil {
		return schema.NoHandle, err
	}

	field, err := r.Define(&types.Type{
		Name: FieldTypeName,
		Kind: types.KindObject,
		Fields: []*types.Field{
			{Name: "name", Type: str, Required: true},
			{Name: "type", Type: str, Required: true},
			{Name: "description", Type: str},
			{Name: "resolved", Type: boolean},
			{Name: "required", Type: boolean},
			{Name: "aggregate", Type: boolean},
			{Name: "enum", Type: r.List(str)},
			{Name: "relation", Type: str},
			{Name: "default", Type: js},
			{Name: "display", Type: display},
			{Name: "constraints", Type: constraints},
		},
	})
	if err != nil {
		return schema.NoHandle, err
	}

	entry, err := r.Define(&types.Type{
		Name: EntryTypeName,
		Kind: types.KindObject,
		Fields: []*types.Field{
			{Name: "name", Type: str, Required: true},
			{Name: "kind", Type: str},
			{Name: "description", Type: str},
			{Name: "model", Type: str},
			{Name: "fields", Type: r.List(field)},
			{Name: "_parent", Type: js},
			{Name: "_child", Type: js},
			{Name: "_children", Type: js},
		},
	})
	if err != nil {
		return schema.NoHandle, err
	}

	return r.Define(&types.Type{
		Name:        RootTypeName,
		Kind:        types.KindObject,
		Description: "Introspection of generated types",
		Fields: []*types.Field{
			{
				Name:    "type",
				Type:    entry,
				Args:    []*types.Arg{{Name: "name", Type: str}},
				Resolve: wrap(ResolverType, s.resolveType),
			},
			{
				Name:    "types",
				Type:    r.List(entry),
				Args:    []*types.Arg{{Name: "names", Type: r.List(str)}},
				Resolve: wrap(ResolverTypes, s.resolveTypes),
			},
		},
	})
}

func (s *Store) resolveType(_ context.Context, p schema.ResolveParams) (interface{}, error) {
	name, _ := p.Args["name"].(string)
	entry, ok := s.Get(name)
	if !ok {
		return nil, mwerrors.TypeNotFound(name)
	}
	return entry.Map(), nil
}

func (s *Store) resolveTypes(_ context.Context, p schema.ResolveParams) (interface{}, error) {
	var names []string
	switch v := p.Args["names"].(type) {
	case []interface{}:
		for _, n := range v {
			names = append(names, fmt.Sprint(n))
		}
	case []string:
		names = v
	case nil:
		names = s.Names()
	}

	out := make([]interface{}, 0, len(names))
	for _, name := range names {
		entry, ok := s.Get(name)
		if !ok {
			return nil, mwerrors.TypeNotFound(name)
		}
		out = append(out, entry.Map())
	}
	return out, nil
}

// Map renders the entry as the generic value the executor walks
func (e *Entry) Map() map[string]interface{} {
	fields := make([]interface{}, len(e.Fields))
	for i, f := range e.Fields {
		fields[i] = f.Map()
	}

	m := map[string]interface{}{
		"name":        e.Name,
		"kind":        e.Kind,
		"description": e.Description,
		"model":       e.Model,
		"fields":      fields,
	}
	if e.Parent != nil {
		m["_parent"] = relationMap(e.Parent)
	}
	if e.Child != nil {
		m["_child"] = relationMap(e.Child)
	}
	if e.Children != nil {
		m["_children"] = relationMap(e.Children)
	}
	return m
}

func relationMap(entries map[string]*Entry) map[string]interface{} {
	out := make(map[string]interface{}, len(entries))
	for k, v := range entries {
		out[k] = v.Map()
	}
	return out
}

// Map renders the field entry as a generic value
func (f *FieldEntry) Map() map[string]interface{} {
	m := map[string]interface{}{
		"name":        f.Name,
		"type":        f.Type,
		"description": f.Description,
		"resolved":    f.Resolved,
		"required":    f.Required,
		"aggregate":   f.Aggregate,
		"relation":    f.Relation,
		"default":     f.Default,
	}
	if f.Enum != nil {
		enum := make([]interface{}, len(f.Enum))
		for i, v := range f.Enum {
			enum[i] = v
		}
		m["enum"] = enum
	}
	if d := f.Display; d != nil {
		display := map[string]interface{}{
			"label":       d.Label,
			"placeholder": d.Placeholder,
			"hidden":      d.Hidden,
		}
		if d.Precision != nil {
			display["precision"] = *d.Precision
		}
		m["display"] = display
	}
	if c := f.Constraints; c != nil {
		constraints := map[string]interface{}{
			"type":     c.Type,
			"required": c.Required,
			"pattern":  c.Pattern,
			"unique":   c.Unique,
		}
		if constraints["type"] == "" {
			constraints["type"] = "text"
		}
		if c.Min != nil {
			constraints["min"] = *c.Min
		}
		if c.Max != nil {
			constraints["max"] = *c.Max
		}
		if c.Step != nil {
			constraints["step"] = *c.Step
		}
		if c.Len != nil {
			constraints["len"] = *c.Len
		}
		m["constraints"] = constraints
	}
	return m
}
