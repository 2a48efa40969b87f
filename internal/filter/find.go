package filter

import (
	"fmt"
)

// FlattenFind turns the nested key/value shorthand into dotted keys.
// A list of objects is matched by its first element; a list of scalars is
// kept as is and means membership.
func FlattenFind(find map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(find))
	flattenInto(out, "", find)
	return out
}

func flattenInto(out map[string]interface{}, prefix string, find map[string]interface{}) {
	for key, value := range find {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		switch v := value.(type) {
		case map[string]interface{}:
			flattenInto(out, path, v)
		case []interface{}:
			if len(v) > 0 {
				if first, ok := v[0].(map[string]interface{}); ok {
					flattenInto(out, path, first)
					continue
				}
			}
			out[path] = v
		default:
			out[path] = v
		}
	}
}

// FindTree expresses a find shorthand as a Tree of equality and membership
// predicates, so it can share the adapters' filter compilers
func FindTree(find map[string]interface{}) *Tree {
	flat := FlattenFind(find)
	if len(flat) == 0 {
		return nil
	}
	t := &Tree{}
	for _, path := range sortedKeys(flat) {
		value := flat[path]
		if list, ok := value.([]interface{}); ok {
			t.Fields = append(t.Fields, Predicate{Path: path, Operator: In, Values: list})
			continue
		}
		t.Fields = append(t.Fields, Predicate{Path: path, Operator: Equals, Value: value})
	}
	return t
}

// ParseFind validates the argument form of a find shorthand
func ParseFind(v interface{}) (map[string]interface{}, error) {
	switch f := v.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return f, nil
	}
	return nil, fmt.Errorf("%w: find must be an object, got %T", ErrInvalidFilter, v)
}

// And joins trees, dropping empty ones
func And(trees ...*Tree) *Tree {
	var parts []*Tree
	for _, t := range trees {
		if !t.IsEmpty() {
			parts = append(parts, t)
		}
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	return &Tree{And: parts}
}
