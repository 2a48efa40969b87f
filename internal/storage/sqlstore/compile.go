package sqlstore

import (
	"fmt"
	"strings"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
)

// CompileTree translates a filter tree into a predicate group. Fields of a
// node become conditions, and-subtrees nested AND groups, or-subtrees one OR
// group and not-subtrees one negated OR group.
//
// Nested paths and predicates over list or structured columns have no
// column equivalent and fail with storage.ErrUnsupported.
func CompileTree(t *filter.Tree, model *schema.Model) (*PredicateGroup, error) {
	group := NewPredicateGroup(false)
	if t == nil {
		return group, nil
	}

	for i := range t.Fields {
		cond, err := compilePredicate(&t.Fields[i], model)
		if err != nil {
			return nil, err
		}
		group.AddCondition(cond)
	}

	for _, sub := range t.And {
		g, err := CompileTree(sub, model)
		if err != nil {
			return nil, err
		}
		group.AddGroup(g)
	}

	if len(t.Or) > 0 {
		or := NewPredicateGroup(true)
		for _, sub := range t.Or {
			g, err := CompileTree(sub, model)
			if err != nil {
				return nil, err
			}
			or.AddGroup(g)
		}
		group.AddGroup(or)
	}

	if len(t.Not) > 0 {
		not := NewPredicateGroup(true)
		not.Not = true
		for _, sub := range t.Not {
			g, err := CompileTree(sub, model)
			if err != nil {
				return nil, err
			}
			not.AddGroup(g)
		}
		group.AddGroup(not)
	}

	return group, nil
}

func compilePredicate(p *filter.Predicate, model *schema.Model) (*Condition, error) {
	if strings.Contains(p.Path, ".") {
		return nil, fmt.Errorf("%w: nested path %s", storage.ErrUnsupported, p.Path)
	}
	if model != nil {
		if f, ok := model.Field(p.Path); ok && structured(f.Type) {
			return nil, fmt.Errorf("%w: filtering on %s column %s", storage.ErrUnsupported, f.Type, p.Path)
		}
	}

	switch p.Operator {
	case filter.Equals, filter.NotEquals, filter.GreaterThan, filter.GreaterThanOrEqual,
		filter.LessThan, filter.LessThanOrEqual, filter.Exists, filter.Regex, filter.Like:
	case filter.In, filter.NotIn:
		if p.Values == nil {
			return nil, fmt.Errorf("%s %s: %w", p.Path, p.Operator, filter.ErrValuesRequired)
		}
	default:
		return nil, fmt.Errorf("%s: %w", p.Operator, filter.ErrUnknownOperator)
	}

	return &Condition{
		Column:   p.Path,
		Operator: p.Operator,
		Value:    p.Value,
		Values:   p.Values,
		Flags:    p.Options.Match,
	}, nil
}

// structured returns true for types known to be stored as encoded JSON
func structured(ref schema.TypeRef) bool {
	switch ref.Kind {
	case schema.RefScalar:
		return ref.Scalar == schema.ScalarJSON
	case schema.RefList, schema.RefInline:
		return true
	}
	return false
}

// CompileQuery builds a select builder for q against c
func CompileQuery(d Dialect, c storage.Collection, q storage.Query) (*SelectBuilder, error) {
	where, err := CompileTree(q.Tree(), c.Model)
	if err != nil {
		return nil, err
	}

	sb := NewSelectBuilder(d, c.Name)
	if !where.IsEmpty() {
		sb.where = where
	}
	for _, s := range q.Sort {
		if strings.Contains(s.Field, ".") {
			return nil, fmt.Errorf("%w: nested sort %s", storage.ErrUnsupported, s.Field)
		}
		sb.OrderBy(s.Field, s.Order)
	}
	return sb.Limit(q.Page.Limit).Offset(q.Page.Skip), nil
}
