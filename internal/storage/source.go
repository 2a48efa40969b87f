package storage

import (
	"context"
	"time"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	webcontext "github.com/mirkwood-lang/mirkwood/internal/web/context"
)

// TimestampLayout is the format of _created_at and _updated_at
const TimestampLayout = time.RFC3339Nano

// Source binds a model's datasource to its connection. It stamps timestamps
// before handing rows to the adapter and scopes reads and writes of
// existing rows to the entity allow-list on the context.
type Source struct {
	manager    *Manager
	collection Collection
	connection string
	timestamps bool
}

// Source returns the orchestrator for a model
func (m *Manager) Source(model *schema.Model) *Source {
	return &Source{
		manager:    m,
		collection: NewCollection(model),
		connection: model.Datasource.Connection,
		timestamps: model.Datasource.Timestamps,
	}
}

// Collection returns the bound collection
func (s *Source) Collection() Collection {
	return s.collection
}

func (s *Source) adapter(ctx context.Context) (Adapter, error) {
	return s.manager.Connection(ctx, s.connection)
}

// scoped restricts q to the allowed entities when scoping is enabled
func (s *Source) scoped(ctx context.Context, q Query) Query {
	if !s.manager.scoping {
		return q
	}
	entities, ok := webcontext.GetAllowedEntities(ctx)
	if !ok {
		return q
	}
	values := make([]interface{}, len(entities))
	for i, e := range entities {
		values[i] = e
	}
	q.Filter = filter.And(q.Filter, &filter.Tree{
		Fields: []filter.Predicate{{Path: IDField, Operator: filter.In, Values: values}},
	})
	return q
}

func (s *Source) stamp() string {
	return s.manager.now().UTC().Format(TimestampLayout)
}

// All returns the matching rows
func (s *Source) All(ctx context.Context, q Query) ([]map[string]interface{}, error) {
	a, err := s.adapter(ctx)
	if err != nil {
		return nil, err
	}
	return a.All(ctx, s.collection, s.scoped(ctx, q))
}

// Count returns the number of matching rows, ignoring pagination
func (s *Source) Count(ctx context.Context, q Query) (int64, error) {
	a, err := s.adapter(ctx)
	if err != nil {
		return 0, err
	}
	return a.Count(ctx, s.collection, s.scoped(ctx, q))
}

// One returns the first matching row
func (s *Source) One(ctx context.Context, q Query) (map[string]interface{}, error) {
	a, err := s.adapter(ctx)
	if err != nil {
		return nil, err
	}
	return a.One(ctx, s.collection, s.scoped(ctx, q))
}

// Aggregate sums fields over the matching rows
func (s *Source) Aggregate(ctx context.Context, q Query, fields []string) (map[string]float64, error) {
	a, err := s.adapter(ctx)
	if err != nil {
		return nil, err
	}
	return a.Aggregate(ctx, s.collection, s.scoped(ctx, q), fields)
}

// Create stores a row
func (s *Source) Create(ctx context.Context, row map[string]interface{}) (map[string]interface{}, error) {
	a, err := s.adapter(ctx)
	if err != nil {
		return nil, err
	}
	return a.Create(ctx, s.collection, s.prepareCreate(row, s.stamp()))
}

// CreateMany stores rows in a single adapter call
func (s *Source) CreateMany(ctx context.Context, rows []map[string]interface{}) (int64, error) {
	a, err := s.adapter(ctx)
	if err != nil {
		return 0, err
	}
	now := s.stamp()
	prepared := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		prepared[i] = s.prepareCreate(row, now)
	}
	return a.CreateMany(ctx, s.collection, prepared)
}

// Update sets fields on the matching rows
func (s *Source) Update(ctx context.Context, q Query, set map[string]interface{}) (int64, error) {
	a, err := s.adapter(ctx)
	if err != nil {
		return 0, err
	}
	prepared := copyRow(set)
	if s.timestamps {
		prepared[UpdatedAtField] = s.stamp()
	}
	return a.Update(ctx, s.collection, s.scoped(ctx, q), prepared)
}

// Destroy removes the matching rows
func (s *Source) Destroy(ctx context.Context, q Query) (int64, error) {
	a, err := s.adapter(ctx)
	if err != nil {
		return 0, err
	}
	return a.Destroy(ctx, s.collection, s.scoped(ctx, q))
}

func (s *Source) prepareCreate(row map[string]interface{}, now string) map[string]interface{} {
	prepared := copyRow(row)
	if s.timestamps {
		prepared[CreatedAtField] = now
		prepared[UpdatedAtField] = now
	}
	return prepared
}

func copyRow(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row)+2)
	for k, v := range row {
		out[k] = v
	}
	return out
}
