// Package compiler turns declared models into the public and internal
// schemas. For every model it applies relations, compiles the object, input,
// filter and find types, and binds the database and session utilities plus
// any custom operations behind the resolver chain.
package compiler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mirkwood-lang/mirkwood/internal/meta"
	"github.com/mirkwood-lang/mirkwood/internal/relation"
	"github.com/mirkwood-lang/mirkwood/internal/resolver"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
	"github.com/mirkwood-lang/mirkwood/internal/types"
	"github.com/mirkwood-lang/mirkwood/internal/validation"
	webcontext "github.com/mirkwood-lang/mirkwood/internal/web/context"
)

var (
	// ErrUnknownResolver is returned when an operation names no known resolver
	ErrUnknownResolver = errors.New("unknown resolver")

	// ErrOperationConflict is returned when a custom operation reuses a utility name
	ErrOperationConflict = errors.New("operation name is reserved")

	// ErrNoSources is returned when neither a manager nor sources are configured
	ErrNoSources = errors.New("no storage configured")
)

// Names of the root types
const (
	RootQuery            = "RootQuery"
	RootMutation         = "RootMutation"
	InternalRootQuery    = "InternalRootQuery"
	InternalRootMutation = "InternalRootMutation"

	// MetaField is the root field exposing introspection
	MetaField = "_meta"
)

// Source is the storage surface the generated resolvers call.
// *storage.Source implements it.
type Source interface {
	relation.Source
	Count(ctx context.Context, q storage.Query) (int64, error)
	Aggregate(ctx context.Context, q storage.Query, fields []string) (map[string]float64, error)
	Create(ctx context.Context, row map[string]interface{}) (map[string]interface{}, error)
	CreateMany(ctx context.Context, rows []map[string]interface{}) (int64, error)
	Update(ctx context.Context, q storage.Query, set map[string]interface{}) (int64, error)
	Destroy(ctx context.Context, q storage.Query) (int64, error)
}

// Sources binds a model to its source
type Sources func(m *schema.Model) Source

// Compiler builds schemas from declared models
type Compiler struct {
	sources    Sources
	gate       resolver.Checker
	production bool
	logger     *zap.Logger
	resolvers  map[string]schema.ResolveFunc
	validator  *validation.Engine
	chain      *resolver.Chain
}

// Option configures a Compiler
type Option func(*Compiler)

// WithManager binds every model through a storage manager
func WithManager(m *storage.Manager) Option {
	return func(c *Compiler) {
		c.sources = func(model *schema.Model) Source {
			return m.Source(model)
		}
	}
}

// WithSources overrides how models are bound to storage
func WithSources(s Sources) Option {
	return func(c *Compiler) {
		c.sources = s
	}
}

// WithGate sets the authorization gate run before every resolver
func WithGate(g resolver.Checker) Option {
	return func(c *Compiler) {
		c.gate = g
	}
}

// WithProduction hides unrecognized resolver errors
func WithProduction(production bool) Option {
	return func(c *Compiler) {
		c.production = production
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// WithResolver registers a Go function that operations bind to with
// resolve: <name>
func WithResolver(name string, fn schema.ResolveFunc) Option {
	return func(c *Compiler) {
		c.resolvers[name] = fn
	}
}

// New creates a compiler
func New(opts ...Option) *Compiler {
	c := &Compiler{
		logger:    zap.NewNop(),
		resolvers: make(map[string]schema.ResolveFunc),
		validator: validation.NewEngine(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.chain = resolver.NewChain(
		resolver.Recover(c.logger),
		resolver.Normalize(c.production, c.logger),
	)
	return c
}

// Result is the output of a compilation
type Result struct {
	Public   *types.Schema
	Internal *types.Schema
	Registry *types.Registry
	Meta     *meta.Store
	// Models holds the compiled models, relations applied, by key
	Models map[string]*schema.Model
}

// Schema returns the internal schema when internal is set and the public one otherwise
func (r *Result) Schema(internal bool) *types.Schema {
	if internal {
		return r.Internal
	}
	return r.Public
}

// Compile validates the registered models and builds both schemas
func (c *Compiler) Compile(models *schema.Registry) (*Result, error) {
	if c.sources == nil {
		return nil, ErrNoSources
	}
	if err := models.ValidateAll(); err != nil {
		return nil, err
	}

	declared := models.All()
	keys := schema.SortedKeys(declared)

	prepared := make(map[string]*schema.Model, len(declared))
	bound := make(map[string]Source, len(declared))
	for _, key := range keys {
		m := withReserved(declared[key])
		if err := c.validator.Prepare(m); err != nil {
			return nil, err
		}
		prepared[key] = m
		bound[key] = c.sources(m)
	}

	rel := relation.New(
		func(key string) (*schema.Model, bool) {
			m, ok := prepared[key]
			return m, ok
		},
		func(m *schema.Model) relation.Source {
			return bound[m.Key]
		},
		relation.WithWrap(c.wrapRelation),
	)

	applied := make(map[string]*schema.Model, len(prepared))
	byName := make(map[string]*schema.Model, len(prepared))
	for _, key := range keys {
		m, err := rel.Apply(prepared[key])
		if err != nil {
			return nil, err
		}
		applied[key] = m
		byName[m.Name] = m
	}

	store := meta.NewStore()
	reg := types.NewRegistry(
		types.WithObserver(store),
		types.WithModelLookup(func(name string) (*schema.Model, bool) {
			if m, ok := applied[name]; ok {
				return m, true
			}
			m, ok := byName[name]
			return m, ok
		}),
	)

	metaRoot, err := store.Install(reg, c.wrap)
	if err != nil {
		return nil, fmt.Errorf("failed to install introspection: %w", err)
	}

	roots := newRoots()
	for _, key := range keys {
		t, err := c.compileModel(reg, applied[key], bound[key])
		if err != nil {
			return nil, err
		}
		if err := c.bind(t, roots); err != nil {
			return nil, err
		}
		c.logger.Debug("model compiled",
			zap.String("model", key),
			zap.Int("fields", len(applied[key].Fields)),
			zap.Int("queries", len(applied[key].Queries)),
			zap.Int("mutations", len(applied[key].Mutations)))
	}

	metaField := &types.Field{Name: MetaField, Type: metaRoot, Description: "Introspection of generated types", Resolve: always}
	roots.query = append(roots.query, metaField)
	roots.internalQuery = append(roots.internalQuery, metaField)

	public, err := roots.schema(reg, RootQuery, RootMutation, roots.query, roots.mutation)
	if err != nil {
		return nil, err
	}
	internal, err := roots.schema(reg, InternalRootQuery, InternalRootMutation, roots.internalQuery, roots.internalMutation)
	if err != nil {
		return nil, err
	}

	return &Result{
		Public:   public,
		Internal: internal,
		Registry: reg,
		Meta:     store,
		Models:   applied,
	}, nil
}

// wrap composes the resolver chain around a generated resolver. name is
// the resolver name checked against the ACL under the branch model.
func (c *Compiler) wrap(name string, fn schema.ResolveFunc) schema.ResolveFunc {
	if c.gate == nil {
		return c.chain.Then(fn)
	}
	return c.chain.Append(resolver.Auth(c.gate, name)).Then(fn)
}

func (c *Compiler) wrapRelation(model, name string, fn schema.ResolveFunc) schema.ResolveFunc {
	if c.gate == nil {
		return c.chain.Then(fn)
	}
	return c.chain.Append(resolver.Traverse(c.gate, model, name)).Then(fn)
}

// withReserved returns a copy of m declaring _id and, for timestamped
// datasources, the timestamp fields
func withReserved(m *schema.Model) *schema.Model {
	out := m.Clone()
	if !out.HasField(storage.IDField) {
		id := &schema.Field{Name: storage.IDField, Type: schema.ScalarRef(schema.ScalarID), Description: "Unique identifier"}
		out.Fields = append([]*schema.Field{id}, out.Fields...)
	}
	if out.Datasource.Timestamps {
		for _, name := range []string{storage.CreatedAtField, storage.UpdatedAtField} {
			if !out.HasField(name) {
				out.Fields = append(out.Fields, &schema.Field{Name: name, Type: schema.ScalarRef(schema.ScalarString)})
			}
		}
	}
	return out
}

// always resolves grouping fields such as database and session
func always(context.Context, schema.ResolveParams) (interface{}, error) {
	return true, nil
}

// branchTo resolves a root model field: its sub-fields run under the model
func branchTo(key string) schema.ResolveFunc {
	return func(ctx context.Context, _ schema.ResolveParams) (interface{}, error) {
		return schema.Branch{Context: webcontext.SetModel(ctx, key), Value: true}, nil
	}
}

type roots struct {
	query, mutation                 []*types.Field
	internalQuery, internalMutation []*types.Field
}

func newRoots() *roots {
	return &roots{}
}

func (r *roots) schema(reg *types.Registry, queryName, mutationName string, query, mutation []*types.Field) (*types.Schema, error) {
	q, err := reg.Define(&types.Type{Name: queryName, Kind: types.KindObject, Fields: query})
	if err != nil {
		return nil, err
	}
	s := &types.Schema{Registry: reg, Query: q, Mutation: schema.NoHandle}
	if len(mutation) > 0 {
		s.Mutation, err = reg.Define(&types.Type{Name: mutationName, Kind: types.KindObject, Fields: mutation})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}
