package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDir loads every *.yml and *.yaml model file in dir, in file name order
func LoadDir(dir string) ([]*Model, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read model directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yml" || ext == ".yaml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var models []*Model
	for _, file := range files {
		loaded, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		models = append(models, loaded...)
	}
	return models, nil
}

// LoadFile loads the models declared in a single YAML file
func LoadFile(path string) ([]*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	models, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return models, nil
}

// Parse decodes model declarations keyed by model key. Field order is
// preserved as written.
func Parse(data []byte) ([]*Model, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	pairs, err := mappingPairs(doc.Content[0])
	if err != nil {
		return nil, err
	}

	models := make([]*Model, 0, len(pairs))
	for _, p := range pairs {
		m, err := parseModel(p.key, p.value)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", p.key, err)
		}
		models = append(models, m)
	}
	return models, nil
}

type pair struct {
	key   string
	node  *yaml.Node
	value *yaml.Node
}

func mappingPairs(n *yaml.Node) ([]pair, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	pairs := make([]pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		pairs = append(pairs, pair{key: n.Content[i].Value, node: n.Content[i], value: n.Content[i+1]})
	}
	return pairs, nil
}

func parseModel(key string, n *yaml.Node) (*Model, error) {
	m := NewModel(key)

	pairs, err := mappingPairs(n)
	if err != nil {
		return nil, err
	}

	for _, p := range pairs {
		switch p.key {
		case "name":
			m.Name = p.value.Value
		case "description":
			m.Description = p.value.Value
		case "datasource":
			var ds struct {
				Collection string `yaml:"collection"`
				Table      string `yaml:"table"`
				Connection string `yaml:"connection"`
				Timestamps bool   `yaml:"timestamps"`
			}
			if err := p.value.Decode(&ds); err != nil {
				return nil, fmt.Errorf("datasource: %w", err)
			}
			m.Datasource = Datasource(ds)
		case "fields":
			fields, err := parseFields(p.value)
			if err != nil {
				return nil, err
			}
			m.Fields = fields
		case "relations":
			rels, err := parseRelations(p.value)
			if err != nil {
				return nil, err
			}
			m.Relations = rels
		case "queries":
			ops, err := parseOperations(p.value)
			if err != nil {
				return nil, fmt.Errorf("queries: %w", err)
			}
			m.Queries = ops
		case "mutations":
			ops, err := parseOperations(p.value)
			if err != nil {
				return nil, fmt.Errorf("mutations: %w", err)
			}
			m.Mutations = ops
		default:
			return nil, fmt.Errorf("line %d: unknown model key %q", p.node.Line, p.key)
		}
	}
	return m, nil
}

func parseFields(n *yaml.Node) ([]*Field, error) {
	pairs, err := mappingPairs(n)
	if err != nil {
		return nil, err
	}
	fields := make([]*Field, 0, len(pairs))
	for _, p := range pairs {
		f, err := parseField(p.key, p.value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", p.key, err)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseField(name string, n *yaml.Node) (*Field, error) {
	f := &Field{Name: name}

	// Shorthand: `total: Float`
	if n.Kind == yaml.ScalarNode || n.Kind == yaml.SequenceNode {
		ref, required, err := parseTypeNode(n, nil)
		if err != nil {
			return nil, err
		}
		f.Type, f.Required = ref, required
		return f, nil
	}

	pairs, err := mappingPairs(n)
	if err != nil {
		return nil, err
	}

	var typeNode *yaml.Node
	for _, p := range pairs {
		switch p.key {
		case "type":
			typeNode = p.value
		case "fields":
			// nested schema declared without an explicit type key
			typeNode = n
		case "required":
			if err := p.value.Decode(&f.Required); err != nil {
				return nil, err
			}
		case "default", "defaultValue":
			if err := p.value.Decode(&f.Default); err != nil {
				return nil, err
			}
		case "description":
			f.Description = p.value.Value
		case "aggregate":
			if err := p.value.Decode(&f.Aggregate); err != nil {
				return nil, err
			}
		case "virtual":
			if err := p.value.Decode(&f.Virtual); err != nil {
				return nil, err
			}
		case "display":
			f.Display = &Display{}
			if err := p.value.Decode(f.Display); err != nil {
				return nil, err
			}
		case "constraints":
			f.Constraints = &Constraints{}
			if err := p.value.Decode(f.Constraints); err != nil {
				return nil, err
			}
		case "label", "placeholder", "hidden", "precision":
			if f.Display == nil {
				f.Display = &Display{}
			}
			if err := decodeInto(f.Display, p.key, p.value); err != nil {
				return nil, err
			}
		case "pattern", "min", "max", "step", "len", "unique":
			if f.Constraints == nil {
				f.Constraints = &Constraints{}
			}
			if err := decodeInto(f.Constraints, p.key, p.value); err != nil {
				return nil, err
			}
		case "args":
			args, err := parseArgs(p.value)
			if err != nil {
				return nil, err
			}
			f.Args = args
		case "name", "values", "enum":
			// consumed by parseTypeNode
		default:
			return nil, fmt.Errorf("line %d: unknown field key %q", p.node.Line, p.key)
		}
	}

	if typeNode == nil {
		return nil, fmt.Errorf("line %d: field has no type", n.Line)
	}

	ref, required, err := parseTypeNode(typeNode, n)
	if err != nil {
		return nil, err
	}
	f.Type = ref
	f.Required = f.Required || required
	return f, nil
}

// decodeInto decodes a single shorthand key into the matching yaml-tagged field
func decodeInto(target interface{}, key string, value *yaml.Node) error {
	wrapper := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: key},
			value,
		},
	}
	return wrapper.Decode(target)
}

// parseTypeNode resolves a written type. owner is the field mapping the type
// belongs to and supplies name/values for enum and nested declarations.
func parseTypeNode(n *yaml.Node, owner *yaml.Node) (TypeRef, bool, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "enum" {
			return parseEnum(owner)
		}
		return ParseTypeRef(n.Value)

	case yaml.SequenceNode:
		if len(n.Content) != 1 {
			return TypeRef{}, false, fmt.Errorf("line %d: list type must have exactly one element", n.Line)
		}
		elem, _, err := parseTypeNode(n.Content[0], n.Content[0])
		if err != nil {
			return TypeRef{}, false, err
		}
		return ListOf(elem), false, nil

	case yaml.MappingNode:
		pairs, err := mappingPairs(n)
		if err != nil {
			return TypeRef{}, false, err
		}
		nested := &Model{}
		for _, p := range pairs {
			switch p.key {
			case "name":
				nested.Name = p.value.Value
			case "description":
				nested.Description = p.value.Value
			case "enum", "values":
				return parseEnum(n)
			case "fields":
				fields, err := parseFields(p.value)
				if err != nil {
					return TypeRef{}, false, err
				}
				nested.Fields = fields
			}
		}
		if nested.Fields == nil {
			return TypeRef{}, false, fmt.Errorf("line %d: nested type declares no fields", n.Line)
		}
		nested.Key = nested.Name
		return Inline(nested), false, nil
	}

	return TypeRef{}, false, fmt.Errorf("line %d: unsupported type declaration", n.Line)
}

func parseEnum(n *yaml.Node) (TypeRef, bool, error) {
	if n == nil || n.Kind != yaml.MappingNode {
		return TypeRef{}, false, fmt.Errorf("enum type requires values")
	}
	pairs, err := mappingPairs(n)
	if err != nil {
		return TypeRef{}, false, err
	}
	e := &Enum{}
	for _, p := range pairs {
		switch p.key {
		case "name":
			e.Name = p.value.Value
		case "values", "enum":
			var values []string
			if err := p.value.Decode(&values); err != nil {
				return TypeRef{}, false, fmt.Errorf("line %d: enum values: %w", p.value.Line, err)
			}
			for _, v := range values {
				e.Values = append(e.Values, EnumValue{Name: enumMemberName(v), Value: v})
			}
		}
	}
	if len(e.Values) == 0 {
		return TypeRef{}, false, fmt.Errorf("line %d: enum declares no values", n.Line)
	}
	return EnumRef(e), false, nil
}

// enumMemberName turns a stored value into a valid member name
func enumMemberName(v string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, v)
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "_" + name
	}
	return name
}

func parseRelations(n *yaml.Node) (Relations, error) {
	var rels Relations
	pairs, err := mappingPairs(n)
	if err != nil {
		return rels, err
	}
	for _, p := range pairs {
		var list []*Relation
		if p.value.Kind != yaml.SequenceNode {
			return rels, fmt.Errorf("line %d: %s relations must be a list", p.value.Line, p.key)
		}
		for _, item := range p.value.Content {
			rel, err := parseRelation(item)
			if err != nil {
				return rels, fmt.Errorf("%s: %w", p.key, err)
			}
			list = append(list, rel)
		}
		switch p.key {
		case "parent":
			rels.Parent = list
		case "child":
			rels.Child = list
		case "children":
			rels.Children = list
		default:
			return rels, fmt.Errorf("line %d: unknown relation kind %q", p.node.Line, p.key)
		}
	}
	return rels, nil
}

func parseRelation(n *yaml.Node) (*Relation, error) {
	pairs, err := mappingPairs(n)
	if err != nil {
		return nil, err
	}
	rel := &Relation{}
	for _, p := range pairs {
		switch p.key {
		case "name":
			rel.Name = p.value.Value
		case "model", "models":
			if p.value.Kind == yaml.SequenceNode {
				if err := p.value.Decode(&rel.Models); err != nil {
					return nil, err
				}
			} else {
				rel.Models = []string{p.value.Value}
			}
		case "field":
			rel.Field = p.value.Value
		case "joinBy", "join_by":
			rel.JoinBy = p.value.Value
		case "description":
			rel.Description = p.value.Value
		default:
			return nil, fmt.Errorf("line %d: unknown relation key %q", p.node.Line, p.key)
		}
	}
	return rel, nil
}

func parseOperations(n *yaml.Node) (map[string]*Operation, error) {
	pairs, err := mappingPairs(n)
	if err != nil {
		return nil, err
	}
	ops := make(map[string]*Operation, len(pairs))
	for _, p := range pairs {
		op, err := parseOperation(p.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.key, err)
		}
		ops[p.key] = op
	}
	return ops, nil
}

func parseOperation(n *yaml.Node) (*Operation, error) {
	pairs, err := mappingPairs(n)
	if err != nil {
		return nil, err
	}
	op := &Operation{}
	for _, p := range pairs {
		switch p.key {
		case "type":
			ref, _, err := parseTypeNode(p.value, p.value)
			if err != nil {
				return nil, err
			}
			op.Type = &ref
		case "args":
			args, err := parseArgs(p.value)
			if err != nil {
				return nil, err
			}
			op.Args = args
		case "resolve":
			op.Use = p.value.Value
		case "internal":
			if err := p.value.Decode(&op.Internal); err != nil {
				return nil, err
			}
		case "description":
			op.Description = p.value.Value
		default:
			return nil, fmt.Errorf("line %d: unknown operation key %q", p.node.Line, p.key)
		}
	}
	return op, nil
}

func parseArgs(n *yaml.Node) ([]*Arg, error) {
	pairs, err := mappingPairs(n)
	if err != nil {
		return nil, err
	}
	args := make([]*Arg, 0, len(pairs))
	for _, p := range pairs {
		arg := &Arg{Name: p.key}
		if p.value.Kind == yaml.MappingNode && !hasKey(p.value, "fields") {
			ap, _ := mappingPairs(p.value)
			var typeNode *yaml.Node
			for _, a := range ap {
				switch a.key {
				case "type":
					typeNode = a.value
				case "default", "defaultValue":
					if err := a.value.Decode(&arg.Default); err != nil {
						return nil, err
					}
				case "description":
					arg.Description = a.value.Value
				}
			}
			if typeNode == nil {
				return nil, fmt.Errorf("line %d: argument %s has no type", p.value.Line, p.key)
			}
			ref, _, err := parseTypeNode(typeNode, p.value)
			if err != nil {
				return nil, err
			}
			arg.Type = ref
		} else {
			ref, _, err := parseTypeNode(p.value, p.value)
			if err != nil {
				return nil, err
			}
			arg.Type = ref
		}
		args = append(args, arg)
	}
	return args, nil
}

func hasKey(n *yaml.Node, key string) bool {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return true
		}
	}
	return false
}
