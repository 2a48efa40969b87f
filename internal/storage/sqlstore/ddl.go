package sqlstore

import (
	"fmt"
	"strings"

	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
)

// GenerateCreateTable generates a CREATE TABLE statement for a collection:
// the _id primary key, every stored field of the model and, when enabled,
// the timestamp columns
func GenerateCreateTable(d Dialect, c storage.Collection) (string, error) {
	if c.Model == nil {
		return "", fmt.Errorf("collection %s has no model", c.Name)
	}

	defs := []string{d.Quote(storage.IDField) + " TEXT PRIMARY KEY"}
	for _, f := range c.Model.StoredFields() {
		if reserved(f.Name) {
			continue
		}
		defs = append(defs, columnDefinition(d, f))
	}
	if c.Model.Datasource.Timestamps {
		defs = append(defs,
			d.Quote(storage.CreatedAtField)+" TEXT",
			d.Quote(storage.UpdatedAtField)+" TEXT",
		)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n", d.Quote(c.Name)))
	for i, def := range defs {
		b.WriteString("  ")
		b.WriteString(def)
		if i < len(defs)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String(), nil
}

func columnDefinition(d Dialect, f *schema.Field) string {
	parts := []string{d.Quote(f.Name), d.ColumnType(f.Type)}
	if f.Required {
		parts = append(parts, "NOT NULL")
	}
	if f.Constraints != nil && f.Constraints.Unique {
		parts = append(parts, "UNIQUE")
	}
	return strings.Join(parts, " ")
}

func reserved(name string) bool {
	switch name {
	case storage.IDField, storage.CreatedAtField, storage.UpdatedAtField:
		return true
	}
	return false
}
