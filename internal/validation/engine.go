// Package validation checks mutation input against the constraints
// declared on model fields before it reaches a storage adapter.
package validation

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
)

// Operation is the write being validated
type Operation int

const (
	// OperationCreate requires every required field to be present
	OperationCreate Operation = iota
	// OperationUpdate checks only the fields being set
	OperationUpdate
)

// Engine validates rows. Compiled patterns are cached, so one engine is
// shared by every resolver.
type Engine struct {
	patterns sync.Map
}

// NewEngine creates a new validation engine
func NewEngine() *Engine {
	return &Engine{}
}

// Prepare compiles every pattern declared on m so that a bad pattern fails
// at boot instead of on the first write
func (e *Engine) Prepare(m *schema.Model) error {
	return e.prepareFields(m.Name, m.Fields)
}

func (e *Engine) prepareFields(owner string, fields []*schema.Field) error {
	for _, f := range fields {
		if c := f.Constraints; c != nil && c.Pattern != "" {
			if _, err := e.pattern(c.Pattern); err != nil {
				return fmt.Errorf("%s.%s: invalid pattern: %w", owner, f.Name, err)
			}
		}
		if base := f.Type.Base(); base.Kind == schema.RefInline && base.Inline != nil {
			if err := e.prepareFields(owner+"."+f.Name, base.Inline.Fields); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks row against the stored fields of m. It returns
// *ValidationErrors when any field fails.
func (e *Engine) Validate(m *schema.Model, row map[string]interface{}, op Operation) error {
	errs := NewValidationErrors()
	e.validateFields("", m.Fields, row, op, errs)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (e *Engine) validateFields(prefix string, fields []*schema.Field, row map[string]interface{}, op Operation, errs *ValidationErrors) {
	for _, f := range fields {
		if !f.Stored() || reserved(f.Name) {
			continue
		}
		path := prefix + f.Name

		value, present := row[f.Name]
		if value == nil {
			if isRequired(f) && (op == OperationCreate || present) {
				errs.Add(path, "is required")
			}
			continue
		}

		whole, each := e.validators(f)
		for _, v := range whole {
			if err := v.Validate(value); err != nil {
				errs.Add(path, err.Error())
			}
		}

		items, isList := value.([]interface{})
		if !isList {
			items = []interface{}{value}
		}
		for i, item := range items {
			if item == nil {
				continue
			}
			itemPath := path
			if isList {
				itemPath = fmt.Sprintf("%s.%d", path, i)
			}
			for _, v := range each {
				if err := v.Validate(item); err != nil {
					errs.Add(itemPath, err.Error())
				}
			}
			// nested objects are replaced as a whole, so they are checked like a create
			if nested, ok := item.(map[string]interface{}); ok {
				if base := f.Type.Base(); base.Kind == schema.RefInline && base.Inline != nil {
					e.validateFields(itemPath+".", base.Inline.Fields, nested, OperationCreate, errs)
				}
			}
		}
	}
}

// validators returns the validators applied to a list value as a whole and
// those applied to each of its items. Scalar values count as a one item list.
func (e *Engine) validators(f *schema.Field) (whole, each []Validator) {
	c := f.Constraints
	if c == nil {
		return nil, nil
	}

	if c.Len != nil {
		if f.Type.IsList() {
			whole = append(whole, &LengthValidator{Len: *c.Len})
		} else {
			each = append(each, &LengthValidator{Len: *c.Len})
		}
	}
	if c.Min != nil {
		each = append(each, &MinValidator{Min: *c.Min})
	}
	if c.Max != nil {
		each = append(each, &MaxValidator{Max: *c.Max})
	}
	if c.Step != nil {
		each = append(each, &StepValidator{Step: *c.Step})
	}
	if c.Pattern != "" {
		if re, err := e.pattern(c.Pattern); err == nil {
			each = append(each, &PatternValidator{Pattern: re})
		}
	}
	switch c.Type {
	case "email":
		each = append(each, &EmailValidator{})
	case "url":
		each = append(each, &URLValidator{})
	case "number":
		each = append(each, &NumberValidator{})
	}
	return whole, each
}

func (e *Engine) pattern(expr string) (*regexp.Regexp, error) {
	if re, ok := e.patterns.Load(expr); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	e.patterns.Store(expr, re)
	return re, nil
}

// ApplyDefaults returns a copy of row with declared defaults set on missing
// stored fields
func ApplyDefaults(m *schema.Model, row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	for _, f := range m.Fields {
		if !f.Stored() || f.Default == nil {
			continue
		}
		if _, ok := out[f.Name]; !ok {
			out[f.Name] = f.Default
		}
	}
	return out
}

func isRequired(f *schema.Field) bool {
	return f.Required || (f.Constraints != nil && f.Constraints.Required)
}

func reserved(name string) bool {
	switch name {
	case storage.IDField, storage.CreatedAtField, storage.UpdatedAtField:
		return true
	}
	return false
}
