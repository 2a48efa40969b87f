// Package filter holds the backend independent query vocabulary: a tree of
// field predicates joined by and/or/not, sort keys and pagination. Storage
// adapters compile a Tree into their native query form; Evaluate is the
// in-memory reference semantics every adapter must agree with.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownOperator is returned for operators outside the closed set
	ErrUnknownOperator = errors.New("unknown filter operator")
	// ErrValuesRequired is returned when in/not-in lack a values list
	ErrValuesRequired = errors.New("operator requires a values list")
	// ErrInvalidFilter is returned for malformed filter documents
	ErrInvalidFilter = errors.New("invalid filter")
)

// Operator is the closed set of predicate operators
type Operator int

const (
	Equals Operator = iota
	NotEquals
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	Exists
	In
	NotIn
	Regex
	Like
)

// Operators lists every operator
func Operators() []Operator {
	return []Operator{Equals, NotEquals, GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual, Exists, In, NotIn, Regex, Like}
}

// String returns the canonical operator token
func (o Operator) String() string {
	switch o {
	case Equals:
		return "eq"
	case NotEquals:
		return "ne"
	case GreaterThan:
		return "gt"
	case GreaterThanOrEqual:
		return "gte"
	case LessThan:
		return "lt"
	case LessThanOrEqual:
		return "lte"
	case Exists:
		return "exists"
	case In:
		return "in"
	case NotIn:
		return "nin"
	case Regex:
		return "regex"
	case Like:
		return "like"
	default:
		return fmt.Sprintf("Operator(%d)", int(o))
	}
}

// IsSet returns true for in and not-in, which take a values list
func (o Operator) IsSet() bool {
	return o == In || o == NotIn
}

// ParseOperator accepts the canonical token, its $-prefixed form and the
// spelled out name, e.g. "eq", "$eq" and "equals"
func ParseOperator(s string) (Operator, error) {
	token := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	switch token {
	case "eq", "equals", "=":
		return Equals, nil
	case "ne", "neq", "not-equals", "notequals", "!=":
		return NotEquals, nil
	case "gt", ">":
		return GreaterThan, nil
	case "gte", ">=":
		return GreaterThanOrEqual, nil
	case "lt", "<":
		return LessThan, nil
	case "lte", "<=":
		return LessThanOrEqual, nil
	case "exists":
		return Exists, nil
	case "in":
		return In, nil
	case "nin", "not-in", "notin":
		return NotIn, nil
	case "regex":
		return Regex, nil
	case "like":
		return Like, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownOperator)
}
