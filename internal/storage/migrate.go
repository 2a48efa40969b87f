package storage

import (
	"context"
	"fmt"

	"github.com/mirkwood-lang/mirkwood/internal/schema"
)

// MigrationResult reports what Migrate did for one model
type MigrationResult struct {
	Model      string
	Collection string
	Connection string
	// Skipped is set when the adapter keeps no physical schema
	Skipped bool
}

// Migrate creates the physical storage of every model whose connection
// supports it. Models on schemaless backends are reported as skipped.
func (m *Manager) Migrate(ctx context.Context, models []*schema.Model) ([]MigrationResult, error) {
	out := make([]MigrationResult, 0, len(models))
	for _, model := range models {
		name := model.Datasource.Connection
		if name == "" {
			name = m.DefaultName()
		}
		a, err := m.Connection(ctx, name)
		if err != nil {
			return out, fmt.Errorf("%s: %w", model.Name, err)
		}

		c := NewCollection(model)
		res := MigrationResult{Model: model.Name, Collection: c.Name, Connection: name}

		migrator, ok := a.(Migrator)
		if !ok {
			res.Skipped = true
			out = append(out, res)
			continue
		}
		if err := migrator.Migrate(ctx, c); err != nil {
			return out, fmt.Errorf("%s: %w", model.Name, err)
		}
		out = append(out, res)
	}
	return out, nil
}
