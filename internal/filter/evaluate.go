package filter

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
)

// Evaluate reports whether row satisfies t. A nil tree matches everything.
func Evaluate(t *Tree, row map[string]interface{}) (bool, error) {
	if t == nil {
		return true, nil
	}

	for i := range t.Fields {
		ok, err := evalPredicate(&t.Fields[i], row)
		if err != nil || !ok {
			return false, err
		}
	}

	for _, sub := range t.And {
		ok, err := Evaluate(sub, row)
		if err != nil || !ok {
			return false, err
		}
	}

	if len(t.Or) > 0 {
		matched := false
		for _, sub := range t.Or {
			ok, err := Evaluate(sub, row)
			if err != nil {
				return false, err
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}

	for _, sub := range t.Not {
		ok, err := Evaluate(sub, row)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}

	return true, nil
}

// Lookup resolves a dotted path through nested maps
func Lookup(row map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = row
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func evalPredicate(p *Predicate, row map[string]interface{}) (bool, error) {
	value, present := Lookup(row, p.Path)
	present = present && value != nil

	switch p.Operator {
	case Exists:
		return present, nil
	case NotEquals:
		if !present {
			return p.Value != nil, nil
		}
		return !matchAny(value, func(v interface{}) bool { return Equal(v, p.Value) }), nil
	case NotIn:
		if !present {
			return true, nil
		}
		return !matchAny(value, func(v interface{}) bool { return contains(p.Values, v) }), nil
	}

	if !present {
		return false, nil
	}

	switch p.Operator {
	case Equals:
		return matchAny(value, func(v interface{}) bool { return Equal(v, p.Value) }), nil
	case In:
		return matchAny(value, func(v interface{}) bool { return contains(p.Values, v) }), nil
	case GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual:
		return matchAny(value, func(v interface{}) bool {
			c, ok := Compare(v, p.Value)
			if !ok {
				return false
			}
			switch p.Operator {
			case GreaterThan:
				return c > 0
			case GreaterThanOrEqual:
				return c >= 0
			case LessThan:
				return c < 0
			default:
				return c <= 0
			}
		}), nil
	case Regex, Like:
		pattern := fmt.Sprint(p.Value)
		if p.Operator == Like {
			pattern = LikeToRegex(pattern)
		}
		re, err := CompileRegex(pattern, p.Options.Match)
		if err != nil {
			return false, err
		}
		return matchAny(value, func(v interface{}) bool {
			s, ok := v.(string)
			return ok && re.MatchString(s)
		}), nil
	}

	return false, fmt.Errorf("%s: %w", p.Operator, ErrUnknownOperator)
}

// matchAny applies fn to a scalar, or to each element of a list value
func matchAny(value interface{}, fn func(interface{}) bool) bool {
	if list, ok := value.([]interface{}); ok {
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
		if Equal(candidate, v) {
			return true
		}
	}
	return false
}

// Equal compares two scalar values, treating all numeric kinds alike
func Equal(a, b interface{}) bool {
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two scalar values of the same family. The second result is
// false when the values cannot be ordered against each other.
func Compare(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// LikeToRegex converts a SQL LIKE pattern into an anchored regular
// expression. Wildcards match newlines, as they do in SQL.
func LikeToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// RegexFlags keeps the supported match flags i, m and s
func RegexFlags(match string) string {
	var set strings.Builder
	for _, f := range match {
		switch f {
		case 'i', 'm', 's':
			set.WriteRune(f)
		}
	}
	return set.String()
}

// CompileRegex compiles pattern with match flags such as "i" or "ms"
func CompileRegex(pattern, flags string) (*regexp.Regexp, error) {
	if set := RegexFlags(flags); set != "" {
		pattern = "(?" + set + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return re, nil
}
