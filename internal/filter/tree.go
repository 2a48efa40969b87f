package filter

import (
	"fmt"
	"sort"
	"strings"
)

// Default pagination
const (
	DefaultSkip  = 0
	DefaultLimit = 100
)

// Options tunes a predicate; Match carries regular expression flags
type Options struct {
	Match string
}

// Predicate tests a single field
type Predicate struct {
	// Path is the field name, dotted for nested fields
	Path     string
	Operator Operator
	Value    interface{}
	// Values is used instead of Value by in and not-in
	Values  []interface{}
	Options Options
}

// Tree is a filter node. Fields is a conjunction of predicates; And, Or and
// Not each hold sub trees. Several parts set on one node are joined by AND.
type Tree struct {
	Fields []Predicate
	And    []*Tree
	Or     []*Tree
	Not    []*Tree
}

// IsEmpty returns true if the tree constrains nothing
func (t *Tree) IsEmpty() bool {
	return t == nil || (len(t.Fields) == 0 && len(t.And) == 0 && len(t.Or) == 0 && len(t.Not) == 0)
}

// Walk calls fn for every predicate in the tree, depth first
func Walk(t *Tree, fn func(p *Predicate)) {
	if t == nil {
		return
	}
	for i := range t.Fields {
		fn(&t.Fields[i])
	}
	for _, group := range [][]*Tree{t.And, t.Or, t.Not} {
		for _, sub := range group {
			Walk(sub, fn)
		}
	}
}

// Order is a sort direction
type Order int

const (
	Asc Order = iota
	Desc
)

// String returns asc or desc
func (o Order) String() string {
	if o == Desc {
		return "desc"
	}
	return "asc"
}

// Sort orders results by one field
type Sort struct {
	Field string
	Order Order
}

// Page is applied after filtering and sorting
type Page struct {
	Skip  int
	Limit int
}

// DefaultPage returns skip 0, limit 100
func DefaultPage() Page {
	return Page{Skip: DefaultSkip, Limit: DefaultLimit}
}

// Parse builds a Tree from its argument form:
//
//	{fields: {name: {operator, value, values, options}}, and: [...], or: [...], not: [...]}
//
// Predicates nested under intermediate objects get dotted paths.
func Parse(v interface{}) (*Tree, error) {
	if v == nil {
		return nil, nil
	}
	doc, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrInvalidFilter, v)
	}

	t := &Tree{}
	for _, key := range sortedKeys(doc) {
		value := doc[key]
		if value == nil {
			continue
		}
		switch key {
		case "fields":
			fields, ok := value.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: fields must be an object", ErrInvalidFilter)
			}
			if err := parseFields(fields, "", &t.Fields); err != nil {
				return nil, err
			}
		case "and", "or", "not":
			subs, err := parseList(key, value)
			if err != nil {
				return nil, err
			}
			switch key {
			case "and":
				t.And = subs
			case "or":
				t.Or = subs
			case "not":
				t.Not = subs
			}
		default:
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidFilter, key)
		}
	}
	return t, nil
}

func parseList(key string, v interface{}) ([]*Tree, error) {
	items, ok := v.([]interface{})
	if !ok {
		// a single object is accepted as a one element list
		if _, isObj := v.(map[string]interface{}); !isObj {
			return nil, fmt.Errorf("%w: %s must be a list", ErrInvalidFilter, key)
		}
		items = []interface{}{v}
	}
	subs := make([]*Tree, 0, len(items))
	for _, item := range items {
		sub, err := Parse(item)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func parseFields(fields map[string]interface{}, prefix string, out *[]Predicate) error {
	for _, name := range sortedKeys(fields) {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		spec, ok := fields[name].(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: predicate for %s must be an object", ErrInvalidFilter, path)
		}

		if _, isLeaf := spec["operator"]; !isLeaf {
			if err := parseFields(spec, path, out); err != nil {
				return err
			}
			continue
		}

		p, err := parsePredicate(path, spec)
		if err != nil {
			return err
		}
		*out = append(*out, p)
	}
	return nil
}

func parsePredicate(path string, spec map[string]interface{}) (Predicate, error) {
	opName, _ := spec["operator"].(string)
	op, err := ParseOperator(opName)
	if err != nil {
		return Predicate{}, fmt.Errorf("%s: %w", path, err)
	}

	p := Predicate{Path: path, Operator: op, Value: spec["value"]}

	if op.IsSet() {
		values, ok := spec["values"].([]interface{})
		if !ok {
			return Predicate{}, fmt.Errorf("%s: %s: %w", path, op, ErrValuesRequired)
		}
		p.Values = values
		p.Value = nil
	}

	if op == Exists {
		p.Value = true
	}

	if opts, ok := spec["options"].(map[string]interface{}); ok {
		p.Options.Match, _ = opts["match"].(string)
	}
	return p, nil
}

// ParseSort accepts a single {field, order} object or a list of them
func ParseSort(v interface{}) ([]Sort, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		one, err := parseSortKey(s)
		if err != nil {
			return nil, err
		}
		if one.Field == "" {
			return nil, nil
		}
		return []Sort{one}, nil
	case []interface{}:
		var keys []Sort
		for _, item := range s {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: sort entries must be objects", ErrInvalidFilter)
			}
			one, err := parseSortKey(m)
			if err != nil {
				return nil, err
			}
			if one.Field != "" {
				keys = append(keys, one)
			}
		}
		return keys, nil
	}
	return nil, fmt.Errorf("%w: unsupported sort value %T", ErrInvalidFilter, v)
}

func parseSortKey(m map[string]interface{}) (Sort, error) {
	field, _ := m["field"].(string)
	s := Sort{Field: field}
	switch order := m["order"].(type) {
	case nil:
	case string:
		switch strings.ToLower(order) {
		case "", "asc":
		case "desc":
			s.Order = Desc
		default:
			return Sort{}, fmt.Errorf("%w: sort order %q", ErrInvalidFilter, order)
		}
	case int:
		if order < 0 {
			s.Order = Desc
		}
	default:
		return Sort{}, fmt.Errorf("%w: sort order %v", ErrInvalidFilter, order)
	}
	return s, nil
}

// ParsePage reads skip and limit from args, applying the defaults. A limit
// of 0 is the default limit; callers never get an unbounded page.
func ParsePage(args map[string]interface{}) (Page, error) {
	page := DefaultPage()
	if v, ok, err := intArg(args, "skip"); err != nil {
		return page, err
	} else if ok {
		page.Skip = v
	}
	if v, ok, err := intArg(args, "limit"); err != nil {
		return page, err
	} else if ok && v != 0 {
		page.Limit = v
	}
	if page.Skip < 0 || page.Limit < 0 {
		return page, fmt.Errorf("%w: skip and limit must not be negative", ErrInvalidFilter)
	}
	return page, nil
}

func intArg(args map[string]interface{}, key string) (int, bool, error) {
	switch v := args[key].(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		return int(v), true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s must be an integer", ErrInvalidFilter, key)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
