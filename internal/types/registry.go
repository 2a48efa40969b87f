package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mirkwood-lang/mirkwood/internal/schema"
)

var (
	// ErrTypeUnresolvable is returned when a field type is neither a scalar,
	// a registered name nor a nested declaration
	ErrTypeUnresolvable = errors.New("type cannot be resolved")
	// ErrDuplicateType is returned when a hand-built type reuses a name
	ErrDuplicateType = errors.New("type is already defined")
)

// Generated name suffixes
const (
	SuffixType         = "Type"
	SuffixInputType    = "InputType"
	SuffixFilter       = "_Filter"
	SuffixFilterFields = "_FilterFields"
	SuffixFind         = "_Find"
)

// Observer is notified once for every named type the registry finishes
// compiling
type Observer interface {
	Observe(r *Registry, t *Type)
}

// ModelLookup finds a declared model by key or name
type ModelLookup func(name string) (*schema.Model, bool)

// Option configures a Registry
type Option func(*Registry)

// WithObserver registers an observer for compiled types
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observers = append(r.observers, o)
	}
}

// WithModelLookup lets named references to models be compiled on demand
func WithModelLookup(fn ModelLookup) Option {
	return func(r *Registry) {
		r.lookup = fn
	}
}

// Registry is an append-only arena of compiled types keyed by name.
//
// Compilation happens once at boot from a single goroutine. After that the
// registry is only read, so no locking is done.
type Registry struct {
	types     []*Type
	byName    map[string]schema.Handle
	scalars   map[schema.Scalar]schema.Handle
	observers []Observer
	lookup    ModelLookup
}

// NewRegistry creates a registry holding the built-in scalars and the
// shared input types
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byName:  make(map[string]schema.Handle),
		scalars: make(map[schema.Scalar]schema.Handle),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, s := range schema.Scalars() {
		h := r.add(&Type{Name: s.String(), Kind: KindScalar, Scalar: s})
		r.scalars[s] = h
	}
	r.addShared()
	return r
}

// Observe adds an observer after construction
func (r *Registry) Observe(o Observer) {
	r.observers = append(r.observers, o)
}

// Type returns the type behind a handle, or nil for an invalid handle
func (r *Registry) Type(h schema.Handle) *Type {
	if h < 0 || int(h) >= len(r.types) {
		return nil
	}
	return r.types[h]
}

// Get looks a type up by its generated name
func (r *Registry) Get(name string) (*Type, bool) {
	h, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.types[h], true
}

// Handle returns the handle registered for name
func (r *Registry) Handle(name string) (schema.Handle, bool) {
	h, ok := r.byName[name]
	return h, ok
}

// Names returns every interned name in registration order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for _, t := range r.types {
		if h, ok := r.byName[t.Name]; ok && h == t.Handle {
			names = append(names, t.Name)
		}
	}
	return names
}

// Len returns the number of arena slots
func (r *Registry) Len() int {
	return len(r.types)
}

// Scalar returns the handle of a built-in scalar
func (r *Registry) Scalar(s schema.Scalar) schema.Handle {
	return r.scalars[s]
}

// List returns the list type wrapping elem, interning it as "[Elem]"
func (r *Registry) List(elem schema.Handle) schema.Handle {
	name := "[" + r.types[elem].Name + "]"
	if h, ok := r.byName[name]; ok {
		return h
	}
	return r.add(&Type{Name: name, Kind: KindList, Elem: elem})
}

// Unwrap strips list wrappers and returns the named element type
func (r *Registry) Unwrap(h schema.Handle) *Type {
	t := r.Type(h)
	for t != nil && t.Kind == KindList {
		t = r.Type(t.Elem)
	}
	return t
}

// Define adds a hand-built named type. Fields may reference the returned
// handle once it has been defined.
func (r *Registry) Define(t *Type) (schema.Handle, error) {
	if t.Name == "" || !schema.IsValidName(t.Name) {
		return schema.NoHandle, fmt.Errorf("invalid type name %q", t.Name)
	}
	if _, exists := r.byName[t.Name]; exists {
		return schema.NoHandle, fmt.Errorf("%s: %w", t.Name, ErrDuplicateType)
	}
	h := r.add(t)
	r.notify(t)
	return h, nil
}

// Reserve interns an empty type under name so that its fields can refer to
// it. The second result is false when the name was already taken, in which
// case the existing type is returned.
func (r *Registry) Reserve(name string, kind Kind) (*Type, bool) {
	if h, ok := r.byName[name]; ok {
		return r.types[h], false
	}
	t := &Type{Name: name, Kind: kind}
	r.add(t)
	return t, true
}

// Complete notifies observers that a reserved type is finished
func (r *Registry) Complete(t *Type) {
	r.notify(t)
}

// CompileType resolves a declared type reference to an output type
func (r *Registry) CompileType(ref schema.TypeRef) (schema.Handle, error) {
	return r.compile(ref, false)
}

// CompileInputType resolves a declared type reference to an input type.
// Computed, relation and virtual fields are left out of generated inputs.
func (r *Registry) CompileInputType(ref schema.TypeRef) (schema.Handle, error) {
	return r.compile(ref, true)
}

// CompileModel compiles the object type <Name>Type
func (r *Registry) CompileModel(m *schema.Model) (schema.Handle, error) {
	return r.compileModel(m, false)
}

// CompileInputModel compiles the input type <Name>InputType
func (r *Registry) CompileInputModel(m *schema.Model) (schema.Handle, error) {
	return r.compileModel(m, true)
}

func (r *Registry) compile(ref schema.TypeRef, input bool) (schema.Handle, error) {
	switch ref.Kind {
	case schema.RefCompiled:
		if r.Type(ref.Handle) == nil {
			return schema.NoHandle, fmt.Errorf("handle %d: %w", ref.Handle, ErrTypeUnresolvable)
		}
		return ref.Handle, nil

	case schema.RefScalar:
		return r.Scalar(ref.Scalar), nil

	case schema.RefNamed:
		return r.resolveNamed(ref.Name, input)

	case schema.RefList:
		if ref.Elem == nil {
			return schema.NoHandle, fmt.Errorf("list without element: %w", ErrTypeUnresolvable)
		}
		elem, err := r.compile(*ref.Elem, input)
		if err != nil {
			return schema.NoHandle, err
		}
		return r.List(elem), nil

	case schema.RefEnum:
		return r.compileEnum(ref.Enum)

	case schema.RefInline:
		if ref.Inline == nil {
			return schema.NoHandle, fmt.Errorf("empty nested declaration: %w", ErrTypeUnresolvable)
		}
		return r.compileModel(ref.Inline, input)
	}

	return schema.NoHandle, fmt.Errorf("reference kind %s: %w", ref.Kind, ErrTypeUnresolvable)
}

func (r *Registry) resolveNamed(name string, input bool) (schema.Handle, error) {
	if t, ok := r.Get(name); ok {
		if !input || isInputKind(r, t) {
			return t.Handle, nil
		}
	}

	if r.lookup != nil && input {
		if base, ok := strings.CutSuffix(name, SuffixFilter); ok {
			if m, ok := r.lookup(base); ok {
				return r.CompileFilterType(m)
			}
		}
		if base, ok := strings.CutSuffix(name, SuffixFind); ok {
			if m, ok := r.lookup(base); ok {
				return r.CompileFindType(m)
			}
		}
	}

	if r.lookup != nil {
		for _, candidate := range []string{name, strings.TrimSuffix(name, SuffixInputType), strings.TrimSuffix(name, SuffixType)} {
			if m, ok := r.lookup(candidate); ok {
				return r.compileModel(m, input)
			}
		}
	}

	suffix := SuffixType
	if input {
		suffix = SuffixInputType
	}
	if t, ok := r.Get(name + suffix); ok {
		return t.Handle, nil
	}

	return schema.NoHandle, fmt.Errorf("%s: %w", name, ErrTypeUnresolvable)
}

func isInputKind(r *Registry, t *Type) bool {
	base := t
	if t.Kind == KindList {
		base = r.Unwrap(t.Handle)
	}
	return base.Kind != KindObject
}

func (r *Registry) compileEnum(e *schema.Enum) (schema.Handle, error) {
	if e == nil || e.Name == "" {
		return schema.NoHandle, fmt.Errorf("enum has no name: %w", ErrTypeUnresolvable)
	}
	if h, ok := r.byName[e.Name]; ok {
		return h, nil
	}
	t := &Type{Name: e.Name, Kind: KindEnum, Description: e.Description, Enum: e}
	h := r.add(t)
	r.notify(t)
	return h, nil
}

func (r *Registry) compileModel(m *schema.Model, input bool) (schema.Handle, error) {
	suffix, kind := SuffixType, KindObject
	if input {
		suffix, kind = SuffixInputType, KindInputObject
	}

	// The name is interned before any field is visited so that
	// self-referencing declarations resolve to this handle.
	t, fresh := r.Reserve(m.Name+suffix, kind)
	if !fresh {
		return t.Handle, nil
	}
	t.Description = m.Description
	t.Model = m

	for _, f := range m.Fields {
		if input && !f.Stored() {
			continue
		}

		nameNested(m, f)

		fh, err := r.compile(f.Type, input)
		if err != nil {
			r.discard(t)
			return schema.NoHandle, fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
		}

		field := &Field{
			Name:        f.Name,
			Type:        fh,
			Description: f.Description,
			Default:     f.Default,
			Required:    f.Required,
			Decl:        f,
		}

		if !input {
			field.Resolve = f.Resolve
			args, err := r.compileArgs(m.Name+"_"+f.Name, f.Args)
			if err != nil {
				r.discard(t)
				return schema.NoHandle, fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
			}
			field.Args = args
		}

		t.Fields = append(t.Fields, field)
	}

	r.notify(t)
	return t.Handle, nil
}

// CompileArgs resolves declared arguments to input types. Anonymous nested
// argument schemas are named <prefix>_<arg>.
func (r *Registry) CompileArgs(prefix string, args []*schema.Arg) ([]*Arg, error) {
	return r.compileArgs(prefix, args)
}

func (r *Registry) compileArgs(prefix string, args []*schema.Arg) ([]*Arg, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]*Arg, 0, len(args))
	for _, a := range args {
		base := a.Type.Base()
		if base.Kind == schema.RefInline && base.Inline != nil && base.Inline.Name == "" {
			base.Inline.Name = prefix + "_" + a.Name
			base.Inline.Key = base.Inline.Name
		}
		h, err := r.CompileInputType(a.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", a.Name, err)
		}
		out = append(out, &Arg{Name: a.Name, Type: h, Default: a.Default, Description: a.Description})
	}
	return out, nil
}

// nameNested names anonymous nested schemas and enums <Parent>_<field>
func nameNested(parent *schema.Model, f *schema.Field) {
	base := f.Type.Base()
	switch base.Kind {
	case schema.RefInline:
		if base.Inline == nil {
			return
		}
		if base.Inline.Name == "" {
			base.Inline.Name = parent.Name + "_" + f.Name
		}
		if base.Inline.Key == "" {
			base.Inline.Key = base.Inline.Name
		}
	case schema.RefEnum:
		if base.Enum != nil && base.Enum.Name == "" {
			base.Enum.Name = parent.Name + "_" + f.Name
		}
	}
}

// TypeName renders a handle as it is written in a schema document
func (r *Registry) TypeName(h schema.Handle) string {
	t := r.Type(h)
	if t == nil {
		return ""
	}
	if t.Kind == KindList {
		return "[" + r.TypeName(t.Elem) + "]"
	}
	return t.Name
}

func (r *Registry) add(t *Type) schema.Handle {
	h := schema.Handle(len(r.types))
	t.Handle = h
	r.types = append(r.types, t)
	r.byName[t.Name] = h
	return h
}

// discard forgets a partially compiled type so a failed compile is not
// mistaken for a finished one later
func (r *Registry) discard(t *Type) {
	if h, ok := r.byName[t.Name]; ok && h == t.Handle {
		delete(r.byName, t.Name)
	}
}

func (r *Registry) notify(t *Type) {
	for _, o := range r.observers {
		o.Observe(r, t)
	}
}
