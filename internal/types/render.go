package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mirkwood-lang/mirkwood/internal/schema"
)

// Render produces the SDL of every type reachable from the schema roots.
// Types are sorted by name so the output is deterministic.
func (s *Schema) Render() string {
	if s == nil || s.Registry == nil {
		return ""
	}
	r := s.Registry

	reachable := make(map[schema.Handle]bool)
	s.walk(s.Query, reachable)
	if s.Mutation != schema.NoHandle {
		s.walk(s.Mutation, reachable)
	}

	named := make([]*Type, 0, len(reachable))
	for h := range reachable {
		t := r.Type(h)
		if t.Kind == KindList {
			continue
		}
		if t.Kind == KindScalar && isPreludeScalar(t.Scalar) {
			continue
		}
		named = append(named, t)
	}
	sort.Slice(named, func(i, j int) bool { return named[i].Name < named[j].Name })

	var b strings.Builder
	b.WriteString("schema {\n")
	b.WriteString("  query: ")
	b.WriteString(r.Type(s.Query).Name)
	b.WriteString("\n")
	if s.Mutation != schema.NoHandle {
		b.WriteString("  mutation: ")
		b.WriteString(r.Type(s.Mutation).Name)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")

	for _, t := range named {
		switch t.Kind {
		case KindScalar:
			renderDescription(&b, t.Description, "")
			b.WriteString("scalar ")
			b.WriteString(t.Name)
			b.WriteString("\n\n")
		case KindEnum:
			renderEnum(&b, t)
		case KindInputObject:
			renderInputObject(&b, r, t)
		case KindObject:
			renderObject(&b, r, t)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func (s *Schema) walk(h schema.Handle, seen map[schema.Handle]bool) {
	if seen[h] {
		return
	}
	seen[h] = true

	t := s.Registry.Type(h)
	if t.Kind == KindList {
		s.walk(t.Elem, seen)
		return
	}
	for _, f := range t.Fields {
		s.walk(f.Type, seen)
		for _, a := range f.Args {
			s.walk(a.Type, seen)
		}
	}
}

func isPreludeScalar(s schema.Scalar) bool {
	return s != schema.ScalarJSON
}

func renderDescription(b *strings.Builder, desc, indent string) {
	if desc == "" {
		return
	}
	b.WriteString(indent)
	b.WriteString("\"\"\"")
	b.WriteString(strings.ReplaceAll(desc, "\"\"\"", "\\\"\"\""))
	b.WriteString("\"\"\"\n")
}

func renderEnum(b *strings.Builder, t *Type) {
	renderDescription(b, t.Description, "")
	b.WriteString("enum ")
	b.WriteString(t.Name)
	b.WriteString(" {\n")
	for _, v := range t.Enum.Values {
		renderDescription(b, v.Description, "  ")
		b.WriteString("  ")
		b.WriteString(v.Name)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
}

func renderInputObject(b *strings.Builder, r *Registry, t *Type) {
	renderDescription(b, t.Description, "")
	b.WriteString("input ")
	b.WriteString(t.Name)
	b.WriteString(" {\n")
	for _, f := range t.Fields {
		renderDescription(b, f.Description, "  ")
		b.WriteString("  ")
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(r.TypeName(f.Type))
		if f.Default != nil {
			b.WriteString(" = ")
			b.WriteString(renderValue(r, f.Type, f.Default))
		}
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
}

func renderObject(b *strings.Builder, r *Registry, t *Type) {
	renderDescription(b, t.Description, "")
	b.WriteString("type ")
	b.WriteString(t.Name)
	b.WriteString(" {\n")
	for _, f := range t.Fields {
		renderDescription(b, f.Description, "  ")
		b.WriteString("  ")
		b.WriteString(f.Name)
		if len(f.Args) > 0 {
			b.WriteString("(")
			for i, a := range f.Args {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(a.Name)
				b.WriteString(": ")
				b.WriteString(r.TypeName(a.Type))
				if a.Default != nil {
					b.WriteString(" = ")
					b.WriteString(renderValue(r, a.Type, a.Default))
				}
			}
			b.WriteString(")")
		}
		b.WriteString(": ")
		b.WriteString(r.TypeName(f.Type))
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
}

// renderValue renders a default value literal. Enum members are written bare.
func renderValue(r *Registry, h schema.Handle, value interface{}) string {
	if value == nil {
		return "null"
	}
	t := r.Type(h)

	switch v := value.(type) {
	case string:
		if t != nil && t.Kind == KindEnum {
			return v
		}
		return strconv.Quote(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []interface{}:
		elem := h
		if t != nil && t.Kind == KindList {
			elem = t.Elem
		}
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = renderValue(r, elem, item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			fh := schema.NoHandle
			if t != nil {
				if f := t.Field(k); f != nil {
					fh = f.Type
				}
			}
			parts[i] = k + ": " + renderValue(r, fh, v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}
