package schema

import (
	"fmt"
	"strings"
)

// ValidationError represents a model validation error with context
type ValidationError struct {
	Model   string
	Field   string
	Message string
	Hint    string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	var b strings.Builder

	if e.Model != "" {
		b.WriteString(e.Model)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// Validator checks model declarations before compilation
type Validator struct {
	errors []*ValidationError
}

// NewValidator creates a new model validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateStructural validates a single model without cross-model checks
func (v *Validator) ValidateStructural(m *Model) error {
	v.errors = v.errors[:0]
	v.validateModel(m)
	return v.result()
}

// ValidateAll validates every model and the relations between them
func (v *Validator) ValidateAll(models map[string]*Model) error {
	v.errors = v.errors[:0]
	for _, key := range SortedKeys(models) {
		m := models[key]
		v.validateModel(m)
		v.validateRelations(m, models)
	}
	return v.result()
}

func (v *Validator) validateModel(m *Model) {
	if m.Name == "" {
		v.add(m.Key, "", "model has no name", "set name or declare the model under a key")
		return
	}
	if !IsValidName(m.Name) {
		v.add(m.Name, "", fmt.Sprintf("invalid model name %q", m.Name), "names must match [_A-Za-z][_0-9A-Za-z]*")
	}
	if len(m.Fields) == 0 {
		v.add(m.Name, "", "model declares no fields", "")
	}
	v.validateFields(m.Name, m.Fields)
}

func (v *Validator) validateFields(owner string, fields []*Field) {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !IsValidName(f.Name) {
			v.add(owner, f.Name, "invalid field name", "")
			continue
		}
		if seen[f.Name] {
			v.add(owner, f.Name, "duplicate field", "")
			continue
		}
		seen[f.Name] = true

		base := f.Type.Base()
		switch base.Kind {
		case RefInline:
			if base.Inline == nil || len(base.Inline.Fields) == 0 {
				v.add(owner, f.Name, "nested schema declares no fields", "")
				continue
			}
			v.validateFields(owner+"."+f.Name, base.Inline.Fields)
		case RefEnum:
			if base.Enum == nil || len(base.Enum.Values) == 0 {
				v.add(owner, f.Name, "enum declares no values", "")
			}
		case RefList:
			v.add(owner, f.Name, "list marker has no element type", "")
		}
	}
}

func (v *Validator) validateRelations(m *Model, models map[string]*Model) {
	for _, rel := range m.Relations.All() {
		if rel.Name == "" {
			v.add(m.Name, "", fmt.Sprintf("%s relation has no name", rel.Kind), "")
			continue
		}
		if m.HasField(rel.Name) {
			v.add(m.Name, rel.Name, "relation name collides with a declared field", "rename the relation")
		}
		if len(rel.Models) == 0 {
			v.add(m.Name, rel.Name, "relation has no target model", "set model")
			continue
		}
		for _, target := range rel.Models {
			if _, ok := models[target]; !ok {
				v.add(m.Name, rel.Name, fmt.Sprintf("relation target %q is not a declared model", target), "")
			}
		}
		if rel.Kind == RelationParent && len(rel.Models) > 1 && rel.JoinBy == "" {
			v.add(m.Name, rel.Name, "multi-target parent relation requires joinBy", "")
		}
	}
}

func (v *Validator) add(model, field, msg, hint string) {
	v.errors = append(v.errors, &ValidationError{Model: model, Field: field, Message: msg, Hint: hint})
}

func (v *Validator) result() error {
	switch len(v.errors) {
	case 0:
		return nil
	case 1:
		return v.errors[0]
	}
	msgs := make([]string, len(v.errors))
	for i, e := range v.errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%d validation errors:\n%s", len(v.errors), strings.Join(msgs, "\n"))
}
