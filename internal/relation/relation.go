// Package relation synthesizes the fields declared under a model's parent,
// child and children relations. Each synthesized field resolves by querying
// the target model's datasource with the join key read off the owning row.
package relation

import (
	"context"
	"errors"
	"fmt"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
	webcontext "github.com/mirkwood-lang/mirkwood/internal/web/context"
)

var (
	// ErrUnknownTarget is returned when a relation names a model that is not declared
	ErrUnknownTarget = errors.New("unknown relation target")

	// ErrInvalidRelationKind is returned for a kind outside parent, child and children
	ErrInvalidRelationKind = errors.New("invalid relation kind")
)

// ResolverPrefix prefixes the resolver name of every relation field
const ResolverPrefix = "relation."

// Per-call arguments naming the join keys
const (
	ArgField  = "field"
	ArgJoinBy = "joinBy"
)

// Source is the part of a storage source the relation fields read from
type Source interface {
	One(ctx context.Context, q storage.Query) (map[string]interface{}, error)
	All(ctx context.Context, q storage.Query) ([]map[string]interface{}, error)
}

// Lookup finds a declared model by key
type Lookup func(key string) (*schema.Model, bool)

// Sources returns the source bound to a model's datasource
type Sources func(m *schema.Model) Source

// Wrap decorates the resolver of a relation field. model is the key of the
// model that owns the field.
type Wrap func(model, name string, fn schema.ResolveFunc) schema.ResolveFunc

// Resolver applies relation declarations to models
type Resolver struct {
	models  Lookup
	sources Sources
	wrap    Wrap
}

// Option configures a Resolver
type Option func(*Resolver)

// WithWrap sets the decorator applied to every relation resolver
func WithWrap(w Wrap) Option {
	return func(r *Resolver) {
		r.wrap = w
	}
}

// New creates a relation resolver
func New(models Lookup, sources Sources, opts ...Option) *Resolver {
	r := &Resolver{
		models:  models,
		sources: sources,
		wrap: func(_, _ string, fn schema.ResolveFunc) schema.ResolveFunc {
			return fn
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the resolver name of a relation field
func Name(rel *schema.Relation) string {
	return ResolverPrefix + rel.Name
}

// Apply returns a copy of m with one field appended per relation. The
// declaration itself is left untouched.
func (r *Resolver) Apply(m *schema.Model) (*schema.Model, error) {
	out := m.Clone()
	for _, rel := range m.Relations.All() {
		f, err := r.field(m, rel)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Name, rel.Name, err)
		}
		out.AddField(f)
	}
	return out, nil
}

func (r *Resolver) field(owner *schema.Model, rel *schema.Relation) (*schema.Field, error) {
	targets := make([]*schema.Model, 0, len(rel.Models))
	for _, key := range rel.Models {
		t, ok := r.models(key)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, key)
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: relation names no model", ErrUnknownTarget)
	}

	f := &schema.Field{
		Name:        rel.Name,
		Type:        schema.Named(targets[0].Name),
		Description: rel.Description,
		Relation:    rel,
	}

	var (
		fn   schema.ResolveFunc
		keys joinKeys
	)
	switch rel.Kind {
	case schema.RelationParent:
		keys = parentKeys(rel, targets[0])
		fn = r.parent(keys, targets)
	case schema.RelationChild:
		keys = ownedKeys(owner, rel)
		fn = r.child(keys, targets[0])
	case schema.RelationChildren:
		keys = ownedKeys(owner, rel)
		f.Type = schema.ListOf(f.Type)
		fn = r.children(keys, targets[0])
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRelationKind, rel.Kind)
	}
	f.Args = append(keyArgs(keys), filterArgs(targets[0])...)
	if rel.Kind == schema.RelationChildren {
		f.Args = append(f.Args, pageArgs()...)
	}

	f.Resolve = r.wrap(owner.Key, Name(rel), fn)
	return f, nil
}

// joinKeys pairs the path read off the owning row (joinBy) with the
// target field it is matched against
type joinKeys struct {
	joinBy string
	field  string
}

// fromArgs overrides the declared keys with the ones passed to the call
func (k joinKeys) fromArgs(args map[string]interface{}) joinKeys {
	if v, ok := args[ArgJoinBy].(string); ok && v != "" {
		k.joinBy = v
	}
	if v, ok := args[ArgField].(string); ok && v != "" {
		k.field = v
	}
	return k
}

func keyArgs(keys joinKeys) []*schema.Arg {
	return []*schema.Arg{
		{Name: ArgField, Type: schema.ScalarRef(schema.ScalarString), Default: keys.field,
			Description: "Target field matched against the join value"},
		{Name: ArgJoinBy, Type: schema.ScalarRef(schema.ScalarString), Default: keys.joinBy,
			Description: "Path of the join value on this row"},
	}
}

func filterArgs(target *schema.Model) []*schema.Arg {
	return []*schema.Arg{
		{Name: "find", Type: schema.Named(target.Name + "_Find")},
		{Name: "filter", Type: schema.Named(target.Name + "_Filter")},
	}
}

func pageArgs() []*schema.Arg {
	return []*schema.Arg{
		{Name: "sort", Type: schema.ListOf(schema.Named("Sort"))},
		{Name: "skip", Type: schema.ScalarRef(schema.ScalarInt), Default: filter.DefaultSkip},
		{Name: "limit", Type: schema.ScalarRef(schema.ScalarInt), Default: filter.DefaultLimit,
			Description: "Maximum number of rows; 0 means the default"},
	}
}

// parentKeys: this row's <target>_id is matched against the target's _id
func parentKeys(rel *schema.Relation, target *schema.Model) joinKeys {
	k := joinKeys{joinBy: rel.JoinBy, field: rel.Field}
	if k.joinBy == "" {
		k.joinBy = target.Key + "_id"
	}
	if k.field == "" {
		k.field = storage.IDField
	}
	return k
}

// ownedKeys: this row's _id is matched against <owner>_id on the target
func ownedKeys(owner *schema.Model, rel *schema.Relation) joinKeys {
	k := joinKeys{joinBy: rel.JoinBy, field: rel.Field}
	if k.joinBy == "" {
		k.joinBy = storage.IDField
	}
	if k.field == "" {
		k.field = owner.Key + "_id"
	}
	return k
}

// parent looks the referenced row up by joinBy. With several targets the
// first one holding a match wins.
func (r *Resolver) parent(keys joinKeys, targets []*schema.Model) schema.ResolveFunc {
	return func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		q, ok, err := joinQuery(keys.fromArgs(p.Args), p)
		if !ok || err != nil {
			return nil, err
		}
		for _, t := range targets {
			row, err := r.sources(t).One(ctx, q)
			if storage.IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			return branch(ctx, t, row), nil
		}
		return nil, nil
	}
}

// child looks up the single target row whose field references this row
func (r *Resolver) child(keys joinKeys, target *schema.Model) schema.ResolveFunc {
	return func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		q, ok, err := joinQuery(keys.fromArgs(p.Args), p)
		if !ok || err != nil {
			return nil, err
		}
		row, err := r.sources(target).One(ctx, q)
		if storage.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return branch(ctx, target, row), nil
	}
}

// children lists the target rows whose field references this row
func (r *Resolver) children(keys joinKeys, target *schema.Model) schema.ResolveFunc {
	return func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		q, ok, err := joinQuery(keys.fromArgs(p.Args), p)
		if !ok || err != nil {
			return nil, err
		}
		if q.Sort, err = filter.ParseSort(p.Args["sort"]); err != nil {
			return nil, err
		}
		if q.Page, err = filter.ParsePage(p.Args); err != nil {
			return nil, err
		}

		rows, err := r.sources(target).All(ctx, q)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(rows))
		for i, row := range rows {
			out[i] = row
		}
		return schema.Branch{Context: webcontext.SetModel(ctx, target.Key), Value: out}, nil
	}
}

// joinQuery builds the find and filter of a relation call. The join value
// replaces any find entry on the same field. ok is false when the owning
// row holds no join value.
func joinQuery(keys joinKeys, p schema.ResolveParams) (q storage.Query, ok bool, err error) {
	value, ok := joinValue(p.Source, keys.joinBy)
	if !ok {
		return q, false, nil
	}
	find, err := filter.ParseFind(p.Args["find"])
	if err != nil {
		return q, true, err
	}
	if q.Filter, err = filter.Parse(p.Args["filter"]); err != nil {
		return q, true, err
	}
	q.Find = make(map[string]interface{}, len(find)+1)
	for k, v := range find {
		q.Find[k] = v
	}
	q.Find[keys.field] = value
	return q, true, nil
}

// joinValue reads the join key off the owning row. A missing or null key
// reports false.
func joinValue(source interface{}, path string) (interface{}, bool) {
	row, ok := source.(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := filter.Lookup(row, path)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func branch(ctx context.Context, target *schema.Model, row map[string]interface{}) interface{} {
	if row == nil {
		return nil
	}
	return schema.Branch{Context: webcontext.SetModel(ctx, target.Key), Value: row}
}
