// Package docstore is the document store adapter. Filter trees compile to
// nested key/operator documents; MongoDB executes them natively and the
// Redis backend evaluates them with Match.
package docstore

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
)

// Adapter names
const (
	AdapterMongo = "mongodb"
	AdapterRedis = "redis"
)

// Coercer rewrites identifier values into the backend's native ID type
type Coercer func(v interface{}) interface{}

// Compiler turns filter trees into query documents
type Compiler struct {
	coerce Coercer
}

// NewCompiler creates a compiler. A nil coercer leaves identifiers untouched.
func NewCompiler(coerce Coercer) *Compiler {
	if coerce == nil {
		coerce = func(v interface{}) interface{} { return v }
	}
	return &Compiler{coerce: coerce}
}

// CompileQuery compiles the find shorthand and filter of q into one document
func (c *Compiler) CompileQuery(q storage.Query) (bson.M, error) {
	return c.Compile(q.Tree())
}

// CompileFind compiles the key/value shorthand. Nested keys are flattened to
// dotted paths and scalar lists become membership tests.
func (c *Compiler) CompileFind(find map[string]interface{}) (bson.M, error) {
	return c.Compile(filter.FindTree(find))
}

// Compile translates a filter tree. An empty tree matches everything.
func (c *Compiler) Compile(t *filter.Tree) (bson.M, error) {
	if t.IsEmpty() {
		return bson.M{}, nil
	}
	clauses, err := c.clauses(t)
	if err != nil {
		return nil, err
	}
	if len(clauses) == 1 {
		return clauses[0].(bson.M), nil
	}
	return bson.M{"$and": clauses}, nil
}

func (c *Compiler) clauses(t *filter.Tree) (bson.A, error) {
	var out bson.A
	for _, p := range t.Fields {
		doc, err := c.predicate(p)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}

	for _, sub := range t.And {
		doc, err := c.Compile(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}

	if len(t.Or) > 0 {
		list, err := c.list(t.Or)
		if err != nil {
			return nil, err
		}
		out = append(out, bson.M{"$or": list})
	}

	if len(t.Not) > 0 {
		list, err := c.list(t.Not)
		if err != nil {
			return nil, err
		}
		out = append(out, bson.M{"$nor": list})
	}
	return out, nil
}

func (c *Compiler) list(trees []*filter.Tree) (bson.A, error) {
	out := make(bson.A, 0, len(trees))
	for _, sub := range trees {
		doc, err := c.Compile(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (c *Compiler) predicate(p filter.Predicate) (bson.M, error) {
	value, values := p.Value, p.Values
	if p.Path == storage.IDField {
		value = c.coerce(value)
		if values != nil {
			coerced := make([]interface{}, len(values))
			for i, v := range values {
				coerced[i] = c.coerce(v)
			}
			values = coerced
		}
	}

	var cond bson.M
	switch p.Operator {
	case filter.Equals:
		cond = bson.M{"$eq": value}
	case filter.NotEquals:
		cond = bson.M{"$ne": value}
	case filter.GreaterThan:
		cond = bson.M{"$gt": value}
	case filter.GreaterThanOrEqual:
		cond = bson.M{"$gte": value}
	case filter.LessThan:
		cond = bson.M{"$lt": value}
	case filter.LessThanOrEqual:
		cond = bson.M{"$lte": value}
	case filter.Exists:
		cond = bson.M{"$exists": true, "$ne": nil}
	case filter.In, filter.NotIn:
		if values == nil {
			return nil, fmt.Errorf("%s: %s: %w", p.Path, p.Operator, filter.ErrValuesRequired)
		}
		op := "$in"
		if p.Operator == filter.NotIn {
			op = "$nin"
		}
		cond = bson.M{op: bson.A(values)}
	case filter.Regex, filter.Like:
		pattern := fmt.Sprint(value)
		if p.Operator == filter.Like {
			pattern = filter.LikeToRegex(pattern)
		}
		cond = bson.M{"$regex": pattern}
		if flags := filter.RegexFlags(p.Options.Match); flags != "" {
			cond["$options"] = flags
		}
	default:
		return nil, fmt.Errorf("%s: %w", p.Operator, filter.ErrUnknownOperator)
	}
	return bson.M{p.Path: cond}, nil
}

// CompileSort returns the ordered sort document
func CompileSort(keys []filter.Sort) bson.D {
	if len(keys) == 0 {
		return nil
	}
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		dir := 1
		if k.Order == filter.Desc {
			dir = -1
		}
		d = append(d, bson.E{Key: k.Field, Value: dir})
	}
	return d
}
