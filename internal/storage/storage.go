// Package storage defines the adapter contract shared by the document and
// relational backends, the per-name connection cache, and the orchestrator
// that binds a model's datasource to a live connection.
package storage

import (
	"context"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
)

// Reserved fields
const (
	IDField        = "_id"
	CreatedAtField = "_created_at"
	UpdatedAtField = "_updated_at"
)

// Query selects rows. Find and Filter are joined by AND.
type Query struct {
	Find   map[string]interface{}
	Filter *filter.Tree
	Sort   []filter.Sort
	Page   filter.Page
}

// Tree returns Find and Filter as a single filter tree
func (q Query) Tree() *filter.Tree {
	return filter.And(filter.FindTree(q.Find), q.Filter)
}

// Collection describes the table or collection an adapter operates on
type Collection struct {
	Name  string
	Model *schema.Model
}

// NewCollection binds a model to its table or collection name
func NewCollection(m *schema.Model) Collection {
	return Collection{Name: m.Datasource.Name(m.Key), Model: m}
}

// Adapter is implemented by every storage backend. Pagination is applied
// after filtering and sorting; a Limit of zero or less means no limit.
type Adapter interface {
	All(ctx context.Context, c Collection, q Query) ([]map[string]interface{}, error)
	Count(ctx context.Context, c Collection, q Query) (int64, error)
	// One returns ErrNotFound when nothing matches
	One(ctx context.Context, c Collection, q Query) (map[string]interface{}, error)
	// Create allocates an identifier when the row has none and returns the stored row
	Create(ctx context.Context, c Collection, row map[string]interface{}) (map[string]interface{}, error)
	CreateMany(ctx context.Context, c Collection, rows []map[string]interface{}) (int64, error)
	// Update sets the given fields on every matching row
	Update(ctx context.Context, c Collection, q Query, set map[string]interface{}) (int64, error)
	Destroy(ctx context.Context, c Collection, q Query) (int64, error)
	// Aggregate sums the given fields over the matching rows
	Aggregate(ctx context.Context, c Collection, q Query, fields []string) (map[string]float64, error)
	Close(ctx context.Context) error
}

// Migrator is implemented by adapters that can create the physical storage
// for a collection
type Migrator interface {
	Migrate(ctx context.Context, c Collection) error
}
