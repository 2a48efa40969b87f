package docstore

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ohler55/ojg/jp"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
)

var paths sync.Map

// pathExpr returns the cached JSONPath expression for a dotted path
func pathExpr(path string) jp.Expr {
	if x, ok := paths.Load(path); ok {
		return x.(jp.Expr)
	}
	x := jp.R()
	for _, part := range strings.Split(path, ".") {
		x = x.C(part)
	}
	paths.Store(path, x)
	return x
}

// lookup resolves a dotted path. Present is false for missing and null values.
func lookup(doc map[string]interface{}, path string) (value interface{}, present bool) {
	results := pathExpr(path).Get(doc)
	if len(results) == 0 || results[0] == nil {
		return nil, false
	}
	return results[0], true
}

// Match evaluates a compiled query document against a decoded document
func Match(query bson.M, doc map[string]interface{}) (bool, error) {
	for _, key := range sortedKeys(query) {
		cond := query[key]
		var (
			ok  bool
			err error
		)
		switch key {
		case "$and":
			ok, err = matchList(cond, doc, func(n, total int) bool { return n == total })
		case "$or":
			ok, err = matchList(cond, doc, func(n, _ int) bool { return n > 0 })
		case "$nor":
			ok, err = matchList(cond, doc, func(n, _ int) bool { return n == 0 })
		default:
			ok, err = matchField(doc, key, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchList(v interface{}, doc map[string]interface{}, accept func(matched, total int) bool) (bool, error) {
	list, ok := asList(v)
	if !ok {
		return false, fmt.Errorf("%w: logical operator expects a list, got %T", filter.ErrInvalidFilter, v)
	}
	matched := 0
	for _, item := range list {
		sub, ok := asDoc(item)
		if !ok {
			return false, fmt.Errorf("%w: logical operand must be a document, got %T", filter.ErrInvalidFilter, item)
		}
		hit, err := Match(sub, doc)
		if err != nil {
			return false, err
		}
		if hit {
			matched++
		}
	}
	return accept(matched, len(list)), nil
}

func matchField(doc map[string]interface{}, path string, cond interface{}) (bool, error) {
	value, present := lookup(doc, path)

	ops, ok := asDoc(cond)
	if !ok {
		return present && matchAny(value, func(v interface{}) bool { return filter.Equal(v, cond) }), nil
	}

	for _, op := range sortedKeys(ops) {
		operand := ops[op]
		var hit bool
		switch op {
		case "$eq":
			hit = present && matchAny(value, func(v interface{}) bool { return filter.Equal(v, operand) })
		case "$ne":
			if !present {
				hit = operand != nil
			} else {
				hit = !matchAny(value, func(v interface{}) bool { return filter.Equal(v, operand) })
			}
		case "$gt", "$gte", "$lt", "$lte":
			hit = present && matchAny(value, func(v interface{}) bool { return compareOp(op, v, operand) })
		case "$exists":
			want, _ := operand.(bool)
			_, found := lookupRaw(doc, path)
			hit = found == want
		case "$in", "$nin":
			list, ok := asList(operand)
			if !ok {
				return false, fmt.Errorf("%s: %s: %w", path, op, filter.ErrValuesRequired)
			}
			in := present && matchAny(value, func(v interface{}) bool { return contains(list, v) })
			hit = in == (op == "$in")
		case "$regex":
			flags, _ := ops["$options"].(string)
			re, err := filter.CompileRegex(fmt.Sprint(operand), flags)
			if err != nil {
				return false, err
			}
			hit = present && matchAny(value, func(v interface{}) bool {
				s, ok := v.(string)
				return ok && re.MatchString(s)
			})
		case "$options":
			hit = true
		default:
			return false, fmt.Errorf("%s: %w", op, filter.ErrUnknownOperator)
		}
		if !hit {
			return false, nil
		}
	}
	return true, nil
}

// lookupRaw reports whether the path exists at all, null included
func lookupRaw(doc map[string]interface{}, path string) (interface{}, bool) {
	results := pathExpr(path).Get(doc)
	if len(results) == 0 {
		return nil, false
	}
	return results[0], true
}

func compareOp(op string, a, b interface{}) bool {
	c, ok := filter.Compare(a, b)
	if !ok {
		return false
	}
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	default:
		return c <= 0
	}
}

func matchAny(value interface{}, fn func(interface{}) bool) bool {
	if list, ok := asList(value); ok {
		for _, v := range list {
			if fn(v) {
				return true
			}
		}
		return false
	}
	return fn(value)
}

func contains(values []interface{}, v interface{}) bool {
	for _, candidate := range values {
		if filter.Equal(candidate, v) {
			return true
		}
	}
	return false
}

func asList(v interface{}) ([]interface{}, bool) {
	switch l := v.(type) {
	case bson.A:
		return l, true
	case []interface{}:
		return l, true
	case []bson.M:
		out := make([]interface{}, len(l))
		for i, d := range l {
			out[i] = d
		}
		return out, true
	}
	return nil, false
}

func asDoc(v interface{}) (bson.M, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]interface{}:
		return bson.M(d), true
	}
	return nil, false
}

func sortedKeys(m bson.M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
