package compiler

import (
	"context"
	"errors"
	"fmt"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
	"github.com/mirkwood-lang/mirkwood/internal/types"
	"github.com/mirkwood-lang/mirkwood/internal/validation"
)

// ErrNoSelector is returned by update and destroy called without _id or find
var ErrNoSelector = errors.New("update and destroy require _id or find")

// unit holds what the utilities of one model are built from
type unit struct {
	reg    *types.Registry
	model  *schema.Model
	source Source

	object schema.Handle
	input  schema.Handle
	filter schema.Handle
	find   schema.Handle
}

// utility builds a field named name resolving to typ. resolverName is the
// name the gate checks.
type utility func(c *Compiler, u *unit, name, resolverName string, typ schema.Handle) (*types.Field, error)

var utilities = map[string]utility{
	"database.one":        (*Compiler).one,
	"database.all":        (*Compiler).all,
	"database.count":      (*Compiler).count,
	"database.aggregate":  (*Compiler).aggregate,
	"database.create":     (*Compiler).create,
	"database.createMany": (*Compiler).createMany,
	"database.update":     (*Compiler).update,
	"database.destroy":    (*Compiler).destroy,
	"session.read":        (*Compiler).sessionRead,
	"session.readKV":      (*Compiler).sessionReadKV,
	"session.exists":      (*Compiler).sessionExists,
	"session.write":       (*Compiler).sessionWrite,
	"session.writeKV":     (*Compiler).sessionWriteKV,
}

// Utilities lists the names operations may bind to with resolve:
func Utilities() []string {
	names := make([]string, 0, len(utilities))
	for name := range utilities {
		names = append(names, name)
	}
	return names
}

func (u *unit) scalar(s schema.Scalar) schema.Handle {
	return u.reg.Scalar(s)
}

func (u *unit) selectorArgs() []*types.Arg {
	return []*types.Arg{
		{Name: storage.IDField, Type: u.scalar(schema.ScalarID)},
		{Name: "find", Type: u.find},
	}
}

func (u *unit) filterArgs() []*types.Arg {
	return []*types.Arg{
		{Name: "find", Type: u.find},
		{Name: "filter", Type: u.filter},
	}
}

func (u *unit) listArgs() []*types.Arg {
	integer := u.scalar(schema.ScalarInt)
	return append(u.filterArgs(),
		&types.Arg{Name: "sort", Type: u.reg.List(u.reg.SortType())},
		&types.Arg{Name: "skip", Type: integer, Default: filter.DefaultSkip},
		&types.Arg{Name: "limit", Type: integer, Default: filter.DefaultLimit, Description: "Maximum number of rows; 0 means the default"},
	)
}

// selector builds a query from _id and find. ok is false when neither is set.
func selector(args map[string]interface{}) (q storage.Query, ok bool, err error) {
	find, err := filter.ParseFind(args["find"])
	if err != nil {
		return q, false, err
	}
	if id, present := args[storage.IDField]; present && id != nil {
		merged := make(map[string]interface{}, len(find)+1)
		for k, v := range find {
			merged[k] = v
		}
		merged[storage.IDField] = id
		find = merged
	}
	q.Find = find
	return q, len(find) > 0, nil
}

// listQuery parses find, filter, sort, skip and limit
func listQuery(args map[string]interface{}) (storage.Query, error) {
	var q storage.Query
	var err error
	if q.Find, err = filter.ParseFind(args["find"]); err != nil {
		return q, err
	}
	if q.Filter, err = filter.Parse(args["filter"]); err != nil {
		return q, err
	}
	if q.Sort, err = filter.ParseSort(args["sort"]); err != nil {
		return q, err
	}
	if q.Page, err = filter.ParsePage(args); err != nil {
		return q, err
	}
	return q, nil
}

func (c *Compiler) one(u *unit, name, resolverName string, typ schema.Handle) (*types.Field, error) {
	fn := func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		q, _, err := selector(p.Args)
		if err != nil {
			return nil, err
		}
		row, err := u.source.One(ctx, q)
		if storage.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return row, nil
	}
	return &types.Field{
		Name:        name,
		Type:        typ,
		Args:        u.selectorArgs(),
		Description: fmt.Sprintf("Fetch a single %s", u.model.Name),
		Resolve:     c.wrap(resolverName, fn),
	}, nil
}

func (c *Compiler) all(u *unit, name, resolverName string, typ schema.Handle) (*types.Field, error) {
	if t := u.reg.Type(typ); t == nil || t.Kind != types.KindList {
		typ = u.reg.List(typ)
	}
	fn := func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		q, err := listQuery(p.Args)
		if err != nil {
			return nil, err
		}
		rows, err := u.source.All(ctx, q)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(rows))
		for i, row := range rows {
			out[i] = row
		}
		return out, nil
	}
	return &types.Field{
		Name:        name,
		Type:        typ,
		Args:        u.listArgs(),
		Description: fmt.Sprintf("List %s rows", u.model.Name),
		Resolve:     c.wrap(resolverName, fn),
	}, nil
}

func (c *Compiler) count(u *unit, name, resolverName string, _ schema.Handle) (*types.Field, error) {
	fn := func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		q, err := listQuery(p.Args)
		if err != nil {
			return nil, err
		}
		q.Page = filter.Page{}
		n, err := u.source.Count(ctx, q)
		if err != nil {
			return nil, err
		}
		return int(n), nil
	}
	return &types.Field{
		Name:    name,
		Type:    u.scalar(schema.ScalarInt),
		Args:    u.filterArgs(),
		Resolve: c.wrap(resolverName, fn),
	}, nil
}

// aggregate sums the fields marked aggregate into <Name>_Aggregate
func (c *Compiler) aggregate(u *unit, name, resolverName string, _ schema.Handle) (*types.Field, error) {
	fields := u.model.AggregateFields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: no aggregate fields declared", u.model.Name)
	}

	typeName := u.model.Name + "_Aggregate"
	h, ok := u.reg.Handle(typeName)
	if !ok {
		float := u.scalar(schema.ScalarFloat)
		out := make([]*types.Field, len(fields))
		for i, f := range fields {
			out[i] = &types.Field{Name: f, Type: float}
		}
		var err error
		h, err = u.reg.Define(&types.Type{Name: typeName, Kind: types.KindObject, Fields: out})
		if err != nil {
			return nil, err
		}
	}

	fn := func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		q, err := listQuery(p.Args)
		if err != nil {
			return nil, err
		}
		q.Page = filter.Page{}
		sums, err := u.source.Aggregate(ctx, q, fields)
		if err != nil {
			return nil, err
		}
		out := make(map[string]interface{}, len(sums))
		for k, v := range sums {
			out[k] = v
		}
		return out, nil
	}
	return &types.Field{
		Name:    name,
		Type:    h,
		Args:    u.filterArgs(),
		Resolve: c.wrap(resolverName, fn),
	}, nil
}

func (c *Compiler) create(u *unit, name, resolverName string, typ schema.Handle) (*types.Field, error) {
	fn := func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		row, err := c.prepareCreate(u.model, p.Args["input"])
		if err != nil {
			return nil, err
		}
		return u.source.Create(ctx, row)
	}
	return &types.Field{
		Name:        name,
		Type:        typ,
		Args:        []*types.Arg{{Name: "input", Type: u.input}},
		Description: fmt.Sprintf("Create a %s", u.model.Name),
		Resolve:     c.wrap(resolverName, fn),
	}, nil
}

func (c *Compiler) createMany(u *unit, name, resolverName string, _ schema.Handle) (*types.Field, error) {
	fn := func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		list, _ := p.Args["input"].([]interface{})
		rows := make([]map[string]interface{}, 0, len(list))
		for _, item := range list {
			row, err := c.prepareCreate(u.model, item)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		n, err := u.source.CreateMany(ctx, rows)
		if err != nil {
			return nil, err
		}
		return int(n), nil
	}
	return &types.Field{
		Name:    name,
		Type:    u.scalar(schema.ScalarInt),
		Args:    []*types.Arg{{Name: "input", Type: u.reg.List(u.input)}},
		Resolve: c.wrap(resolverName, fn),
	}, nil
}

func (c *Compiler) update(u *unit, name, resolverName string, _ schema.Handle) (*types.Field, error) {
	fn := func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		q, ok, err := selector(p.Args)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNoSelector
		}
		set := asRow(p.Args["input"])
		delete(set, storage.IDField)
		if err := c.check(u.model, set, validation.OperationUpdate); err != nil {
			return nil, err
		}
		n, err := u.source.Update(ctx, q, set)
		if err != nil {
			return nil, err
		}
		return n > 0, nil
	}
	return &types.Field{
		Name:    name,
		Type:    u.scalar(schema.ScalarBoolean),
		Args:    append(u.selectorArgs(), &types.Arg{Name: "input", Type: u.input}),
		Resolve: c.wrap(resolverName, fn),
	}, nil
}

func (c *Compiler) destroy(u *unit, name, resolverName string, _ schema.Handle) (*types.Field, error) {
	fn := func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		q, ok, err := selector(p.Args)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNoSelector
		}
		n, err := u.source.Destroy(ctx, q)
		if err != nil {
			return nil, err
		}
		return n > 0, nil
	}
	return &types.Field{
		Name:    name,
		Type:    u.scalar(schema.ScalarBoolean),
		Args:    u.selectorArgs(),
		Resolve: c.wrap(resolverName, fn),
	}, nil
}

func (c *Compiler) prepareCreate(m *schema.Model, input interface{}) (map[string]interface{}, error) {
	row := validation.ApplyDefaults(m, asRow(input))
	if err := c.check(m, row, validation.OperationCreate); err != nil {
		return nil, err
	}
	return row, nil
}

// check runs the validation engine and converts failures to ValidationError
func (c *Compiler) check(m *schema.Model, row map[string]interface{}, op validation.Operation) error {
	err := c.validator.Validate(m, row, op)
	var ve *validation.ValidationErrors
	if errors.As(err, &ve) {
		return ve.Wire()
	}
	return err
}

// asRow copies an input object; anything else yields an empty row
func asRow(v interface{}) map[string]interface{} {
	in, _ := v.(map[string]interface{})
	out := make(map[string]interface{}, len(in))
	for k, val := range in {
		out[k] = val
	}
	return out
}
