package executor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/types"
)

// arguments builds the argument map of a field: literals and variables from
// the query, then declared defaults for anything left out
func (r *run) arguments(def *types.Field, field *ast.Field) (map[string]interface{}, error) {
	args := make(map[string]interface{}, len(def.Args))
	for _, a := range field.Arguments {
		if def.Arg(a.Name) == nil {
			return nil, fmt.Errorf("unknown argument %q on field %q", a.Name, def.Name)
		}
		if a.Value != nil && a.Value.Kind == ast.Variable {
			if v, ok := r.vars[a.Value.Raw]; ok {
				args[a.Name] = normalize(v)
			}
			continue
		}
		v, err := a.Value.Value(r.vars)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", a.Name, err)
		}
		args[a.Name] = normalize(v)
	}
	for _, a := range def.Args {
		if _, ok := args[a.Name]; !ok && a.Default != nil {
			args[a.Name] = a.Default
		}
	}
	return args, nil
}

// normalize converts parsed and decoded numbers to int where integral and
// float64 otherwise
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case int64:
		return int(val)
	case int32:
		return int(val)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n)
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}

// serialize converts a leaf value to its wire form
func serialize(t *types.Type, v interface{}) (interface{}, error) {
	if t.Kind == types.KindEnum {
		return fmt.Sprint(v), nil
	}
	switch t.Scalar {
	case schema.ScalarInt:
		return toInt(v)
	case schema.ScalarFloat:
		return toFloat(v)
	case schema.ScalarBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("cannot serialize %T as Boolean", v)
	case schema.ScalarString, schema.ScalarID:
		switch val := v.(type) {
		case string:
			return val, nil
		case []byte:
			return string(val), nil
		case fmt.Stringer:
			return val.String(), nil
		case int, int32, int64, float64, bool:
			return fmt.Sprint(val), nil
		}
		return nil, fmt.Errorf("cannot serialize %T as %s", v, t.Name)
	default:
		return v, nil
	}
}

func toInt(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int32:
		return int(val), nil
	case int64:
		return int(val), nil
	case float64:
		if val == math.Trunc(val) {
			return int(val), nil
		}
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n), nil
		}
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n, nil
		}
	}
	return nil, fmt.Errorf("cannot serialize %v as Int", v)
}

func toFloat(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, nil
		}
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("cannot serialize %v as Float", v)
}
