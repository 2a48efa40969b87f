package executor

import (
	"bytes"
	"encoding/json"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Result is the response to a single request
type Result struct {
	Data   *Object       `json:"data"`
	Errors gqlerror.List `json:"errors,omitempty"`
}

// Object is a response object. Keys keep selection order when marshalled.
type Object struct {
	keys   []string
	values map[string]interface{}
}

// NewObject creates an empty response object
func NewObject() *Object {
	return &Object{values: make(map[string]interface{})}
}

// Set stores a value, appending the key on first use
func (o *Object) Set(key string, value interface{}) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value under key
func (o *Object) Get(key string) (interface{}, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the keys in selection order
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Map converts the object, and every object below it, to plain maps
func (o *Object) Map() map[string]interface{} {
	if o == nil {
		return nil
	}
	out := make(map[string]interface{}, len(o.keys))
	for _, k := range o.keys {
		out[k] = plain(o.values[k])
	}
	return out
}

func plain(v interface{}) interface{} {
	switch val := v.(type) {
	case *Object:
		return val.Map()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON writes the keys in selection order
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
