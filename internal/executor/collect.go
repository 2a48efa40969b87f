package executor

import (
	"github.com/vektah/gqlparser/v2/ast"
)

// fieldGroup is every selection of one response key
type fieldGroup struct {
	key    string
	fields []*ast.Field
}

// collectFields groups a selection set by response key, in query order.
// Fragments apply when their type condition names the object type.
func (r *run) collectFields(typeName string, set ast.SelectionSet, groups []*fieldGroup, visited map[string]bool) []*fieldGroup {
	for _, selection := range set {
		switch sel := selection.(type) {
		case *ast.Field:
			if !r.include(sel.Directives) {
				continue
			}
			key := sel.Alias
			if key == "" {
				key = sel.Name
			}
			groups = appendField(groups, key, sel)

		case *ast.InlineFragment:
			if !r.include(sel.Directives) {
				continue
			}
			if sel.TypeCondition != "" && sel.TypeCondition != typeName {
				continue
			}
			groups = r.collectFields(typeName, sel.SelectionSet, groups, visited)

		case *ast.FragmentSpread:
			if !r.include(sel.Directives) || visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true
			def := r.doc.Fragments.ForName(sel.Name)
			if def == nil {
				continue
			}
			if def.TypeCondition != "" && def.TypeCondition != typeName {
				continue
			}
			groups = r.collectFields(typeName, def.SelectionSet, groups, visited)
		}
	}
	return groups
}

func appendField(groups []*fieldGroup, key string, f *ast.Field) []*fieldGroup {
	for _, g := range groups {
		if g.key == key {
			g.fields = append(g.fields, f)
			return groups
		}
	}
	return append(groups, &fieldGroup{key: key, fields: []*ast.Field{f}})
}

// include evaluates @skip and @include
func (r *run) include(directives ast.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil {
		if v, ok := r.directiveArg(d, "if").(bool); ok && v {
			return false
		}
	}
	if d := directives.ForName("include"); d != nil {
		if v, ok := r.directiveArg(d, "if").(bool); ok && !v {
			return false
		}
	}
	return true
}

func (r *run) directiveArg(d *ast.Directive, name string) interface{} {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return nil
	}
	v, err := arg.Value.Value(r.vars)
	if err != nil {
		return nil
	}
	return v
}
