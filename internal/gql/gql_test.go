package gql

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirkwood-lang/mirkwood/internal/auth"
	"github.com/mirkwood-lang/mirkwood/internal/compiler"
	"github.com/mirkwood-lang/mirkwood/internal/executor"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
	"github.com/mirkwood-lang/mirkwood/internal/storage/docstore"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"null", nil, "null"},
		{"string", `say "hi"`, `"say \"hi\""`},
		{"int", 42, "42"},
		{"float", 1.5, "1.5"},
		{"bool", true, "true"},
		{"list", []interface{}{1, "a"}, `[1, "a"]`},
		{"object", map[string]interface{}{"b": 2, "a": map[string]interface{}{"c": nil}}, `{a: {c: null}, b: 2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.in))
		})
	}
}

func newClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	manager := storage.NewManager(
		storage.WithConnection(storage.ConnectionConfig{Name: "main", Adapter: "redis", URL: "redis://" + mr.Addr()}),
		storage.WithFactory("redis", docstore.OpenRedis),
	)
	t.Cleanup(func() { _ = manager.Close(context.Background()) })

	note := schema.NewModel("note")
	note.Name = "Note"
	note.Fields = []*schema.Field{
		{Name: "title", Type: schema.ScalarRef(schema.ScalarString)},
		{Name: "stars", Type: schema.ScalarRef(schema.ScalarInt)},
	}
	models := schema.NewRegistry()
	require.NoError(t, models.Register(note))

	// the gate denies everyone; trusted requests pass regardless
	gate := auth.NewGate(auth.ACL{})
	res, err := compiler.New(compiler.WithManager(manager), compiler.WithGate(gate)).Compile(models)
	require.NoError(t, err)

	exec, err := executor.New(res.Internal)
	require.NoError(t, err)
	return New(exec)
}

func TestClientRunsTrustedOperations(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	input := Encode(map[string]interface{}{"title": "first", "stars": 3})
	id, err := c.Mutation(ctx, `note { database { create(input: `+input+`) { _id } } }`, "note.database.create._id")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	title, err := c.Query(ctx, `note { database { one(_id: `+Encode(id)+`) { title stars } } }`, "note.database.one.title")
	require.NoError(t, err)
	assert.Equal(t, "first", title)

	count, err := c.Query(ctx, `note { database { count } }`, "note.database.count")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	data, err := c.Query(ctx, `note { database { count } }`, "")
	require.NoError(t, err)
	assert.Contains(t, data, "note")
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	_, err := c.Query(ctx, `note { database { nope } }`, "")
	require.Error(t, err)

	_, err = c.Query(ctx, `note { database { count } }`, "note.missing")
	assert.ErrorIs(t, err, ErrPathNotFound)

	v, err := c.Do(ctx, `query($n: Int) { note { database { all(limit: $n) { title } } } }`, map[string]interface{}{"n": 5}, "note.database.all")
	require.NoError(t, err)
	assert.Empty(t, v)
}
