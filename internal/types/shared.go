package types

import (
	"fmt"

	"github.com/mirkwood-lang/mirkwood/internal/schema"
)

// Names of the input types shared by every model
const (
	SortTypeName             = "Sort"
	PredicateOptionsTypeName = "PredicateOptions"
	PredicateSuffix          = "Predicate"
)

func (r *Registry) addShared() {
	str := r.Scalar(schema.ScalarString)

	r.mustDefine(&Type{
		Name:        SortTypeName,
		Kind:        KindInputObject,
		Description: "Orders results by a single field",
		Fields: []*Field{
			{Name: "field", Type: str},
			{Name: "order", Type: str, Default: "asc"},
		},
	})

	opts := r.mustDefine(&Type{
		Name: PredicateOptionsTypeName,
		Kind: KindInputObject,
		Fields: []*Field{
			{Name: "match", Type: str, Description: "Regular expression flags"},
		},
	})

	for _, s := range schema.Scalars() {
		sh := r.Scalar(s)
		r.mustDefine(&Type{
			Name: s.String() + PredicateSuffix,
			Kind: KindInputObject,
			Fields: []*Field{
				{Name: "operator", Type: str},
				{Name: "value", Type: sh},
				{Name: "values", Type: r.List(sh)},
				{Name: "options", Type: opts},
			},
		})
	}
}

func (r *Registry) mustDefine(t *Type) schema.Handle {
	h, err := r.Define(t)
	if err != nil {
		panic(fmt.Sprintf("types: %v", err))
	}
	return h
}

// SortType returns the shared Sort input
func (r *Registry) SortType() schema.Handle {
	return r.byName[SortTypeName]
}

// PredicateType returns the <Scalar>Predicate input for a scalar
func (r *Registry) PredicateType(s schema.Scalar) schema.Handle {
	return r.byName[s.String()+PredicateSuffix]
}

// CompileFilterType compiles <Name>_Filter, the recursive
// {fields, and, or, not} input, together with <Name>_FilterFields
func (r *Registry) CompileFilterType(m *schema.Model) (schema.Handle, error) {
	t, fresh := r.Reserve(m.Name+SuffixFilter, KindInputObject)
	if !fresh {
		return t.Handle, nil
	}
	t.Model = m

	fields, err := r.compileFilterFields(m)
	if err != nil {
		r.discard(t)
		return schema.NoHandle, err
	}

	list := r.List(t.Handle)
	t.Fields = []*Field{
		{Name: "fields", Type: fields},
		{Name: "and", Type: list},
		{Name: "or", Type: list},
		{Name: "not", Type: list},
	}
	r.notify(t)
	return t.Handle, nil
}

func (r *Registry) compileFilterFields(m *schema.Model) (schema.Handle, error) {
	t, fresh := r.Reserve(m.Name+SuffixFilterFields, KindInputObject)
	if !fresh {
		return t.Handle, nil
	}
	t.Model = m

	for _, f := range m.Fields {
		if !f.Stored() {
			continue
		}
		nameNested(m, f)
		fh, err := r.CompileType(f.Type)
		if err != nil {
			r.discard(t)
			return schema.NoHandle, fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
		}

		base := r.Unwrap(fh)
		var ph schema.Handle
		switch base.Kind {
		case KindScalar:
			ph = r.PredicateType(base.Scalar)
		case KindEnum:
			ph = r.PredicateType(schema.ScalarString)
		case KindObject:
			if base.Model == nil {
				continue
			}
			ph, err = r.compileFilterFields(base.Model)
			if err != nil {
				r.discard(t)
				return schema.NoHandle, err
			}
		default:
			continue
		}
		t.Fields = append(t.Fields, &Field{Name: f.Name, Type: ph, Description: f.Description, Decl: f})
	}

	r.notify(t)
	return t.Handle, nil
}

// CompileFindType compiles <Name>_Find, the flat equality shorthand over
// stored fields
func (r *Registry) CompileFindType(m *schema.Model) (schema.Handle, error) {
	t, fresh := r.Reserve(m.Name+SuffixFind, KindInputObject)
	if !fresh {
		return t.Handle, nil
	}
	t.Model = m

	for _, f := range m.Fields {
		if !f.Stored() {
			continue
		}
		nameNested(m, f)
		fh, err := r.CompileType(f.Type)
		if err != nil {
			r.discard(t)
			return schema.NoHandle, fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
		}

		base := r.Unwrap(fh)
		var eh schema.Handle
		switch base.Kind {
		case KindScalar, KindEnum:
			eh = base.Handle
		case KindObject:
			if base.Model == nil {
				continue
			}
			eh, err = r.CompileFindType(base.Model)
			if err != nil {
				r.discard(t)
				return schema.NoHandle, err
			}
		default:
			continue
		}
		if r.Type(fh).Kind == KindList {
			eh = r.List(eh)
		}
		t.Fields = append(t.Fields, &Field{Name: f.Name, Type: eh, Description: f.Description, Decl: f})
	}

	r.notify(t)
	return t.Handle, nil
}
