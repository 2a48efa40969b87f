package compiler

import (
	"fmt"

	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/types"
)

// Groups of the generated per-model types
const (
	DatabaseField = "database"
	SessionField  = "session"
)

var (
	databaseQueries   = []string{"one", "all", "count", "aggregate"}
	databaseMutations = []string{"create", "createMany", "update", "destroy"}
	sessionQueries    = []string{"read", "readKV", "exists"}
	sessionMutations  = []string{"write", "writeKV"}
)

// compiled holds the root types of one model
type compiled struct {
	model *schema.Model

	queries, queriesInternal     schema.Handle
	mutations, mutationsInternal schema.Handle
}

func (c *Compiler) compileModel(reg *types.Registry, m *schema.Model, source Source) (*compiled, error) {
	u := &unit{reg: reg, model: m, source: source}

	var err error
	if u.object, err = reg.CompileModel(m); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	if u.input, err = reg.CompileInputModel(m); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	if u.filter, err = reg.CompileFilterType(m); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	if u.find, err = reg.CompileFindType(m); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}

	queryOps := databaseQueries
	if len(m.AggregateFields()) == 0 {
		queryOps = queryOps[:3]
	}

	dbQuery, err := c.group(u, m.Name+"Database_Query", DatabaseField, queryOps)
	if err != nil {
		return nil, err
	}
	sessQuery, err := c.group(u, m.Name+"Session_Query", SessionField, sessionQueries)
	if err != nil {
		return nil, err
	}
	dbMutation, err := c.group(u, m.Name+"Database_Mutation", DatabaseField, databaseMutations)
	if err != nil {
		return nil, err
	}
	sessMutation, err := c.group(u, m.Name+"Session_Mutation", SessionField, sessionMutations)
	if err != nil {
		return nil, err
	}

	out := &compiled{model: m}

	queries, internalQueries, err := c.operations(u, m.Queries, m.QueryNames())
	if err != nil {
		return nil, err
	}
	base := []*types.Field{
		{Name: DatabaseField, Type: dbQuery, Resolve: always},
		{Name: SessionField, Type: sessQuery, Resolve: always},
	}
	if out.queries, err = reg.Define(&types.Type{Name: m.Name + "Queries", Kind: types.KindObject, Fields: concat(base, queries)}); err != nil {
		return nil, err
	}
	if out.queriesInternal, err = reg.Define(&types.Type{Name: m.Name + "QueriesWithInternal", Kind: types.KindObject, Fields: concat(base, internalQueries)}); err != nil {
		return nil, err
	}

	mutations, internalMutations, err := c.operations(u, m.Mutations, m.MutationNames())
	if err != nil {
		return nil, err
	}
	base = []*types.Field{
		{Name: DatabaseField, Type: dbMutation, Resolve: always},
		{Name: SessionField, Type: sessMutation, Resolve: always},
	}
	if out.mutations, err = reg.Define(&types.Type{Name: m.Name + "Mutations", Kind: types.KindObject, Fields: concat(base, mutations)}); err != nil {
		return nil, err
	}
	if out.mutationsInternal, err = reg.Define(&types.Type{Name: m.Name + "MutationsWithInternal", Kind: types.KindObject, Fields: concat(base, internalMutations)}); err != nil {
		return nil, err
	}

	return out, nil
}

// group defines an object holding the utilities prefix.<op>
func (c *Compiler) group(u *unit, typeName, prefix string, ops []string) (schema.Handle, error) {
	fields := make([]*types.Field, 0, len(ops))
	for _, op := range ops {
		name := prefix + "." + op
		f, err := utilities[name](c, u, op, name, u.object)
		if err != nil {
			return schema.NoHandle, fmt.Errorf("%s: %w", u.model.Name, err)
		}
		fields = append(fields, f)
	}
	return u.reg.Define(&types.Type{Name: typeName, Kind: types.KindObject, Fields: fields})
}

// operations compiles custom operations. public leaves out the ones marked
// internal; all holds every operation.
func (c *Compiler) operations(u *unit, ops map[string]*schema.Operation, names []string) (public, all []*types.Field, err error) {
	for _, name := range names {
		if name == DatabaseField || name == SessionField {
			return nil, nil, fmt.Errorf("%s.%s: %w", u.model.Name, name, ErrOperationConflict)
		}
		op := ops[name]
		f, err := c.operation(u, name, op)
		if err != nil {
			return nil, nil, fmt.Errorf("%s.%s: %w", u.model.Name, name, err)
		}
		all = append(all, f)
		if !op.Internal {
			public = append(public, f)
		}
	}
	return public, all, nil
}

// operation binds a declared operation to a utility, a registered Go
// resolver or its own resolve function, in that order
func (c *Compiler) operation(u *unit, name string, op *schema.Operation) (*types.Field, error) {
	typ := u.object
	if op.Type != nil {
		h, err := u.reg.CompileType(*op.Type)
		if err != nil {
			return nil, err
		}
		typ = h
	}

	args, err := u.reg.CompileArgs(u.model.Name+"_"+name, op.Args)
	if err != nil {
		return nil, err
	}

	if build, ok := utilities[op.Use]; ok {
		f, err := build(c, u, name, name, typ)
		if err != nil {
			return nil, err
		}
		f.Args = mergeArgs(f.Args, args)
		if op.Description != "" {
			f.Description = op.Description
		}
		return f, nil
	}

	var fn schema.ResolveFunc
	switch {
	case op.Use != "":
		custom, ok := c.resolvers[op.Use]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownResolver, op.Use)
		}
		fn = custom
	case op.Resolve != nil:
		fn = op.Resolve
	default:
		return nil, fmt.Errorf("%w: operation has no resolver", ErrUnknownResolver)
	}

	return &types.Field{
		Name:        name,
		Type:        typ,
		Args:        args,
		Description: op.Description,
		Resolve:     c.wrap(name, fn),
	}, nil
}

// bind adds the root fields of a compiled model
func (c *Compiler) bind(t *compiled, r *roots) error {
	key := t.model.Key
	if key == MetaField {
		return fmt.Errorf("%s: %w", key, ErrOperationConflict)
	}
	desc := t.model.Description
	r.query = append(r.query, &types.Field{Name: key, Type: t.queries, Description: desc, Resolve: branchTo(key)})
	r.internalQuery = append(r.internalQuery, &types.Field{Name: key, Type: t.queriesInternal, Description: desc, Resolve: branchTo(key)})
	r.mutation = append(r.mutation, &types.Field{Name: key, Type: t.mutations, Description: desc, Resolve: branchTo(key)})
	r.internalMutation = append(r.internalMutation, &types.Field{Name: key, Type: t.mutationsInternal, Description: desc, Resolve: branchTo(key)})
	return nil
}

// mergeArgs appends extra to base; an extra argument replaces a base one
// with the same name
func mergeArgs(base, extra []*types.Arg) []*types.Arg {
	out := make([]*types.Arg, 0, len(base)+len(extra))
	for _, a := range base {
		replaced := false
		for _, e := range extra {
			if e.Name == a.Name {
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, a)
		}
	}
	return append(out, extra...)
}

func concat(a, b []*types.Field) []*types.Field {
	out := make([]*types.Field, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
