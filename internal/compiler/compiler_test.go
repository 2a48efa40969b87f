package compiler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/mirkwood-lang/mirkwood/internal/auth"
	"github.com/mirkwood-lang/mirkwood/internal/errors"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
	"github.com/mirkwood-lang/mirkwood/internal/storage/docstore"
	"github.com/mirkwood-lang/mirkwood/internal/types"
	webcontext "github.com/mirkwood-lang/mirkwood/internal/web/context"
	"github.com/mirkwood-lang/mirkwood/internal/web/session"
)

func newManager(t *testing.T) *storage.Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	m := storage.NewManager(
		storage.WithConnection(storage.ConnectionConfig{Name: "main", Adapter: "redis", URL: "redis://" + mr.Addr()}),
		storage.WithFactory("redis", docstore.OpenRedis),
		storage.WithDefault("main"),
	)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func declare(t *testing.T, models ...*schema.Model) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	for _, m := range models {
		require.NoError(t, reg.Register(m))
	}
	return reg
}

func orderModels() []*schema.Model {
	order := schema.NewModel("order")
	order.Name = "Order"
	order.Datasource.Collection = "orders"
	order.Fields = []*schema.Field{
		{Name: "status", Type: schema.ScalarRef(schema.ScalarString), Required: true},
		{Name: "total", Type: schema.ScalarRef(schema.ScalarFloat), Aggregate: true},
		{Name: "customer_id", Type: schema.ScalarRef(schema.ScalarID)},
	}
	order.Relations.Parent = []*schema.Relation{{Name: "customer", Models: []string{"customer"}}}
	listType := schema.ListOf(schema.Named("Order"))
	order.Queries["open"] = &schema.Operation{
		Use:  "database.all",
		Type: &listType,
		Args: []*schema.Arg{{Name: "limit", Type: schema.ScalarRef(schema.ScalarInt), Default: 1}},
	}
	order.Queries["audit"] = &schema.Operation{Use: "stats", Type: ptr(schema.ScalarRef(schema.ScalarInt)), Internal: true}

	customer := schema.NewModel("customer")
	customer.Name = "Customer"
	customer.Datasource.Collection = "customers"
	customer.Fields = []*schema.Field{{Name: "name", Type: schema.ScalarRef(schema.ScalarString)}}

	return []*schema.Model{order, customer}
}

func ptr(r schema.TypeRef) *schema.TypeRef {
	return &r
}

func stats(context.Context, schema.ResolveParams) (interface{}, error) {
	return 7, nil
}

func compile(t *testing.T, opts ...Option) *Result {
	t.Helper()
	opts = append([]Option{WithManager(newManager(t)), WithResolver("stats", stats)}, opts...)
	res, err := New(opts...).Compile(declare(t, orderModels()...))
	require.NoError(t, err)
	return res
}

// lookup walks field names from the root of s
func lookup(t *testing.T, s *types.Schema, root *types.Type, path ...string) *types.Field {
	t.Helper()
	current := root
	var f *types.Field
	for _, name := range path {
		require.NotNil(t, current, "parent of %s", name)
		f = current.Field(name)
		require.NotNil(t, f, "field %s on %s", name, current.Name)
		current = s.Registry.Unwrap(f.Type)
	}
	return f
}

func call(t *testing.T, ctx context.Context, f *types.Field, args map[string]interface{}) (interface{}, error) {
	t.Helper()
	if args == nil {
		args = map[string]interface{}{}
	}
	return f.Resolve(ctx, schema.ResolveParams{Args: args, Field: f.Name})
}

func TestCompileDefinesModelTypes(t *testing.T) {
	res := compile(t)

	for _, name := range []string{
		"OrderType", "OrderInputType", "Order_Filter", "Order_Find", "Order_Aggregate",
		"OrderDatabase_Query", "OrderSession_Query", "OrderDatabase_Mutation", "OrderSession_Mutation",
		"OrderQueries", "OrderQueriesWithInternal", "OrderMutations", "OrderMutationsWithInternal",
		"CustomerType", "Customer_Filter",
	} {
		_, ok := res.Registry.Get(name)
		assert.True(t, ok, name)
	}
	_, ok := res.Registry.Get("Customer_Aggregate")
	assert.False(t, ok, "aggregate is only generated for models with aggregate fields")

	db, _ := res.Registry.Get("CustomerDatabase_Query")
	assert.Nil(t, db.Field("aggregate"))

	order, _ := res.Registry.Get("OrderType")
	assert.NotNil(t, order.Field(storage.IDField), "_id is added to every model")
	assert.NotNil(t, order.Field("customer"), "relation fields are part of the object type")

	assert.Contains(t, res.Models, "order")
	_, ok = res.Meta.Get("OrderType")
	assert.True(t, ok)
}

func TestPublicSchemaHidesInternalOperations(t *testing.T) {
	res := compile(t)

	assert.Equal(t, RootQuery, res.Public.QueryType().Name)
	assert.Equal(t, InternalRootQuery, res.Internal.QueryType().Name)
	assert.Equal(t, RootMutation, res.Public.MutationType().Name)
	assert.Same(t, res.Internal, res.Schema(true))

	public := lookup(t, res.Public, res.Public.QueryType(), "order")
	assert.Equal(t, "OrderQueries", res.Public.Registry.Type(public.Type).Name)
	pt := res.Public.Registry.Type(public.Type)
	assert.NotNil(t, pt.Field("open"))
	assert.Nil(t, pt.Field("audit"))

	internal := lookup(t, res.Internal, res.Internal.QueryType(), "order")
	it := res.Internal.Registry.Type(internal.Type)
	assert.NotNil(t, it.Field("open"))
	assert.NotNil(t, it.Field("audit"))

	assert.NotNil(t, res.Public.QueryType().Field(MetaField))
	assert.NotNil(t, res.Internal.QueryType().Field(MetaField))
}

func TestRenderedSchemasAreValidSDL(t *testing.T) {
	res := compile(t)
	for _, s := range []*types.Schema{res.Public, res.Internal} {
		_, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: s.Render()})
		require.NoError(t, err)
	}
}

func TestRootFieldSelectsModel(t *testing.T) {
	res := compile(t)
	root := lookup(t, res.Public, res.Public.QueryType(), "order")
	v, err := call(t, context.Background(), root, nil)
	require.NoError(t, err)
	b, ok := v.(schema.Branch)
	require.True(t, ok)
	assert.Equal(t, "order", webcontext.GetModel(b.Context))
}

func TestDatabaseUtilities(t *testing.T) {
	res := compile(t)
	s := res.Internal
	ctx := webcontext.SetModel(context.Background(), "order")
	mutation := func(name string) *types.Field {
		return lookup(t, s, s.MutationType(), "order", "database", name)
	}
	query := func(name string) *types.Field {
		return lookup(t, s, s.QueryType(), "order", "database", name)
	}

	v, err := call(t, ctx, mutation("create"), map[string]interface{}{
		"input": map[string]interface{}{"status": "open", "total": 10.5, "customer_id": "c1"},
	})
	require.NoError(t, err)
	id := v.(map[string]interface{})[storage.IDField]
	require.NotEmpty(t, id)

	n, err := call(t, ctx, mutation("createMany"), map[string]interface{}{
		"input": []interface{}{
			map[string]interface{}{"status": "open", "total": 2.0},
			map[string]interface{}{"status": "closed", "total": 4.0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err = call(t, ctx, query("one"), map[string]interface{}{storage.IDField: id})
	require.NoError(t, err)
	assert.Equal(t, "open", v.(map[string]interface{})["status"])

	v, err = call(t, ctx, query("one"), map[string]interface{}{storage.IDField: "missing"})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = call(t, ctx, query("all"), map[string]interface{}{
		"filter": map[string]interface{}{
			"fields": map[string]interface{}{"status": map[string]interface{}{"operator": "eq", "value": "open"}},
		},
	})
	require.NoError(t, err)
	assert.Len(t, v, 2)

	v, err = call(t, ctx, query("count"), map[string]interface{}{"find": map[string]interface{}{"status": "closed"}})
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = call(t, ctx, query("aggregate"), nil)
	require.NoError(t, err)
	assert.InDelta(t, 16.5, v.(map[string]interface{})["total"], 0.001)

	v, err = call(t, ctx, mutation("update"), map[string]interface{}{
		storage.IDField: id,
		"input":         map[string]interface{}{"status": "paid", storage.IDField: "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = call(t, ctx, query("one"), map[string]interface{}{storage.IDField: id})
	require.NoError(t, err)
	assert.Equal(t, "paid", v.(map[string]interface{})["status"])

	_, err = call(t, ctx, mutation("update"), map[string]interface{}{"input": map[string]interface{}{"status": "x"}})
	assert.ErrorIs(t, err, ErrNoSelector)

	v, err = call(t, ctx, mutation("destroy"), map[string]interface{}{"find": map[string]interface{}{"status": "closed"}})
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = call(t, ctx, mutation("destroy"), map[string]interface{}{storage.IDField: "missing"})
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestCreateValidatesInput(t *testing.T) {
	res := compile(t)
	s := res.Internal
	create := lookup(t, s, s.MutationType(), "order", "database", "create")

	_, err := call(t, context.Background(), create, map[string]interface{}{
		"input": map[string]interface{}{"total": 1.0},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeValidation))

	update := lookup(t, s, s.MutationType(), "order", "database", "update")
	_, err = call(t, context.Background(), update, map[string]interface{}{
		storage.IDField: "o1",
		"input":         map[string]interface{}{"status": nil},
	})
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestGateRunsBeforeUtilities(t *testing.T) {
	gate := auth.NewGate(auth.ACL{
		"anonymous": {"order.database.all"},
		"staff":     {"order.*"},
	})
	res := compile(t, WithGate(gate))
	s := res.Public
	ctx := webcontext.SetModel(context.Background(), "order")

	all := lookup(t, s, s.QueryType(), "order", "database", "all")
	_, err := call(t, ctx, all, nil)
	require.NoError(t, err)

	create := lookup(t, s, s.MutationType(), "order", "database", "create")
	_, err = call(t, ctx, create, map[string]interface{}{"input": map[string]interface{}{"status": "open"}})
	assert.True(t, errors.Is(err, errors.CodeAuthenticationRequired))

	staff := auth.WithIdentity(ctx, &auth.Identity{Role: "staff"})
	_, err = call(t, staff, create, map[string]interface{}{"input": map[string]interface{}{"status": "open"}})
	require.NoError(t, err)

	_, err = call(t, webcontext.SetTrusted(ctx, true), create, map[string]interface{}{"input": map[string]interface{}{"status": "open"}})
	require.NoError(t, err, "trusted calls skip the gate")
}

func TestSessionUtilities(t *testing.T) {
	res := compile(t)
	s := res.Internal
	sess := session.NewSession("s1", time.Hour)
	ctx := session.WithSession(webcontext.SetModel(context.Background(), "order"), sess)
	field := func(root *types.Type, name string) *types.Field {
		return lookup(t, s, root, "order", "session", name)
	}

	v, err := call(t, ctx, field(s.MutationType(), "writeKV"), map[string]interface{}{"key": "theme", "value": "dark"})
	require.NoError(t, err)
	assert.Equal(t, true, v)
	assert.Equal(t, "dark", sess.Data["ordertheme"], "keys are namespaced by model")

	v, err = call(t, ctx, field(s.QueryType(), "readKV"), map[string]interface{}{"key": "theme"})
	require.NoError(t, err)
	assert.Equal(t, "dark", v)

	v, err = call(t, ctx, field(s.QueryType(), "exists"), map[string]interface{}{"key": "cart"})
	require.NoError(t, err)
	assert.Equal(t, false, v)

	draft := map[string]interface{}{"status": "draft"}
	_, err = call(t, ctx, field(s.MutationType(), "write"), map[string]interface{}{"key": "cart", "value": draft})
	require.NoError(t, err)

	v, err = call(t, ctx, field(s.QueryType(), "read"), map[string]interface{}{"key": "cart"})
	require.NoError(t, err)
	assert.Equal(t, draft, v)

	v, err = call(t, ctx, field(s.QueryType(), "readKV"), map[string]interface{}{"key": "cart"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"draft"}`, v.(string))

	_, err = call(t, context.Background(), field(s.QueryType(), "exists"), map[string]interface{}{"key": "cart"})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCustomOperations(t *testing.T) {
	res := compile(t)
	s := res.Internal
	ctx := webcontext.SetModel(context.Background(), "order")

	create := lookup(t, s, s.MutationType(), "order", "database", "create")
	for _, status := range []string{"open", "open", "closed"} {
		_, err := call(t, ctx, create, map[string]interface{}{"input": map[string]interface{}{"status": status}})
		require.NoError(t, err)
	}

	open := lookup(t, s, s.QueryType(), "order", "open")
	assert.Equal(t, "[OrderType]", s.Registry.TypeName(open.Type), "a list type is not wrapped twice")
	limit := open.Arg("limit")
	require.NotNil(t, limit)
	assert.Equal(t, 1, limit.Default, "operation arguments override utility ones")
	assert.NotNil(t, open.Arg("filter"))

	v, err := call(t, ctx, open, map[string]interface{}{"limit": 1})
	require.NoError(t, err)
	assert.Len(t, v, 1)

	audit := lookup(t, s, s.QueryType(), "order", "audit")
	v, err = call(t, ctx, audit, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCompileErrors(t *testing.T) {
	_, err := New().Compile(declare(t, orderModels()...))
	assert.ErrorIs(t, err, ErrNoSources)

	models := orderModels()
	models[0].Queries["audit"] = &schema.Operation{Use: "missing"}
	_, err = New(WithManager(newManager(t))).Compile(declare(t, models...))
	assert.ErrorIs(t, err, ErrUnknownResolver)

	models = orderModels()
	models[1].Mutations["session"] = &schema.Operation{Use: "database.create"}
	_, err = New(WithManager(newManager(t)), WithResolver("stats", stats)).Compile(declare(t, models...))
	assert.ErrorIs(t, err, ErrOperationConflict)
}

func TestRelationFieldsResolveThroughStorage(t *testing.T) {
	res := compile(t)
	s := res.Internal
	ctx := webcontext.SetModel(context.Background(), "customer")

	create := lookup(t, s, s.MutationType(), "customer", "database", "create")
	v, err := call(t, ctx, create, map[string]interface{}{"input": map[string]interface{}{"name": "Ada"}})
	require.NoError(t, err)
	id := v.(map[string]interface{})[storage.IDField]

	order, _ := res.Registry.Get("OrderType")
	rel := order.Field("customer")
	require.NotNil(t, rel)
	v, err = rel.Resolve(ctx, schema.ResolveParams{Source: map[string]interface{}{"customer_id": id}, Field: "customer"})
	require.NoError(t, err)
	b, ok := v.(schema.Branch)
	require.True(t, ok)
	assert.Equal(t, "customer", webcontext.GetModel(b.Context))
	assert.Equal(t, "Ada", b.Value.(map[string]interface{})["name"])
}
