package sqlstore

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
	"github.com/mirkwood-lang/mirkwood/internal/storage/docstore"
)

func productModel() *schema.Model {
	m := schema.NewModel("product")
	m.Datasource.Table = "products"
	m.AddField(&schema.Field{Name: "name", Type: schema.ScalarRef(schema.ScalarString)})
	m.AddField(&schema.Field{Name: "status", Type: schema.ScalarRef(schema.ScalarString)})
	m.AddField(&schema.Field{Name: "total", Type: schema.ScalarRef(schema.ScalarFloat)})
	m.AddField(&schema.Field{Name: "rank", Type: schema.ScalarRef(schema.ScalarInt)})
	m.AddField(&schema.Field{Name: "note", Type: schema.ScalarRef(schema.ScalarString)})
	m.AddField(&schema.Field{Name: "tags", Type: schema.ListOf(schema.ScalarRef(schema.ScalarString))})
	return m
}

func productRows() []map[string]interface{} {
	return []map[string]interface{}{
		{"_id": "1", "name": "Widget", "status": "open", "total": int64(40), "rank": int64(1)},
		{"_id": "2", "name": "Gadget", "status": "paid", "total": 12.5, "rank": int64(2)},
		{"_id": "3", "name": "widget mini", "status": "open", "total": int64(3), "rank": int64(3), "note": "rush"},
		{"_id": "4", "name": "Doohickey", "status": "closed", "total": int64(99), "rank": int64(4)},
		{"_id": "5", "name": "line1\nline2", "status": "draft", "total": int64(1), "rank": int64(5)},
	}
}

func productTrees() map[string]*filter.Tree {
	pred := func(p filter.Predicate) *filter.Tree {
		return &filter.Tree{Fields: []filter.Predicate{p}}
	}
	return map[string]*filter.Tree{
		"empty":               nil,
		"equals":              pred(filter.Predicate{Path: "status", Operator: filter.Equals, Value: "open"}),
		"equals int":          pred(filter.Predicate{Path: "rank", Operator: filter.Equals, Value: 2}),
		"not equals missing":  pred(filter.Predicate{Path: "note", Operator: filter.NotEquals, Value: "rush"}),
		"gt":                  pred(filter.Predicate{Path: "total", Operator: filter.GreaterThan, Value: 12.5}),
		"lte":                 pred(filter.Predicate{Path: "total", Operator: filter.LessThanOrEqual, Value: 12.5}),
		"exists":              pred(filter.Predicate{Path: "note", Operator: filter.Exists}),
		"in":                  pred(filter.Predicate{Path: "status", Operator: filter.In, Values: []interface{}{"paid", "closed"}}),
		"not in":              pred(filter.Predicate{Path: "status", Operator: filter.NotIn, Values: []interface{}{"open"}}),
		"not in missing":      pred(filter.Predicate{Path: "note", Operator: filter.NotIn, Values: []interface{}{"rush"}}),
		"regex":               pred(filter.Predicate{Path: "name", Operator: filter.Regex, Value: "^widget"}),
		"regex insensitive":   pred(filter.Predicate{Path: "name", Operator: filter.Regex, Value: "^widget", Options: filter.Options{Match: "i"}}),
		"like":                pred(filter.Predicate{Path: "name", Operator: filter.Like, Value: "%dg%"}),
		"like case sensitive": pred(filter.Predicate{Path: "name", Operator: filter.Like, Value: "w%"}),
		"like insensitive":    pred(filter.Predicate{Path: "name", Operator: filter.Like, Value: "w%", Options: filter.Options{Match: "i"}}),
		"like across lines":   pred(filter.Predicate{Path: "name", Operator: filter.Like, Value: "line1%"}),
		"like newline char":   pred(filter.Predicate{Path: "name", Operator: filter.Like, Value: "line1_line2"}),
		"or": {Or: []*filter.Tree{
			pred(filter.Predicate{Path: "status", Operator: filter.Equals, Value: "paid"}),
			pred(filter.Predicate{Path: "total", Operator: filter.GreaterThan, Value: 50}),
		}},
		"not": {Not: []*filter.Tree{
			pred(filter.Predicate{Path: "status", Operator: filter.Equals, Value: "open"}),
		}},
		"not over a missing field": {Not: []*filter.Tree{
			pred(filter.Predicate{Path: "note", Operator: filter.Equals, Value: "rush"}),
		}},
		"mixed": {
			Fields: []filter.Predicate{{Path: "total", Operator: filter.GreaterThanOrEqual, Value: 3}},
			And: []*filter.Tree{{Or: []*filter.Tree{
				pred(filter.Predicate{Path: "status", Operator: filter.Equals, Value: "open"}),
				pred(filter.Predicate{Path: "note", Operator: filter.Exists}),
			}}},
			Not: []*filter.Tree{
				pred(filter.Predicate{Path: "_id", Operator: filter.Equals, Value: "2"}),
			},
		},
	}
}

func newSQLiteStore(t *testing.T, c storage.Collection) *Store {
	t.Helper()
	ctx := context.Background()
	a, err := OpenSQLite(ctx, storage.ConnectionConfig{Name: "test", Adapter: AdapterSQLite})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(ctx) })

	s := a.(*Store)
	require.NoError(t, s.Migrate(ctx, c))
	return s
}

func newRedisAdapter(t *testing.T) storage.Adapter {
	t.Helper()
	mr := miniredis.RunT(t)
	b := docstore.NewRedisBackend(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")
	t.Cleanup(func() { b.Close(context.Background()) })
	return b
}

func rowIDs(rows []map[string]interface{}) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		id, _ := r["_id"].(string)
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func expectedIDs(t *testing.T, tree *filter.Tree) []string {
	t.Helper()
	var out []string
	for _, row := range productRows() {
		ok, err := filter.Evaluate(tree, row)
		require.NoError(t, err)
		if ok {
			out = append(out, row["_id"].(string))
		}
	}
	sort.Strings(out)
	return out
}

// The relational and document backends must select exactly the rows the
// reference interpreter selects
func TestAdaptersAgreeWithEvaluate(t *testing.T) {
	ctx := context.Background()
	c := storage.NewCollection(productModel())

	adapters := map[string]storage.Adapter{
		"sqlite": newSQLiteStore(t, c),
		"redis":  newRedisAdapter(t),
	}
	for _, a := range adapters {
		n, err := a.CreateMany(ctx, c, productRows())
		require.NoError(t, err)
		require.Equal(t, int64(len(productRows())), n)
	}

	for name, tree := range productTrees() {
		want := expectedIDs(t, tree)
		for adapterName, a := range adapters {
			t.Run(name+"/"+adapterName, func(t *testing.T) {
				q := storage.Query{Filter: tree}

				rows, err := a.All(ctx, c, q)
				require.NoError(t, err)
				assert.Equal(t, want, rowIDs(rows))

				n, err := a.Count(ctx, c, q)
				require.NoError(t, err)
				assert.Equal(t, int64(len(want)), n)
			})
		}
	}
}

func TestAdaptersAgreeOnSortPageAndAggregate(t *testing.T) {
	ctx := context.Background()
	c := storage.NewCollection(productModel())

	for name, a := range map[string]storage.Adapter{
		"sqlite": newSQLiteStore(t, c),
		"redis":  newRedisAdapter(t),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.CreateMany(ctx, c, productRows())
			require.NoError(t, err)

			rows, err := a.All(ctx, c, storage.Query{
				Sort: []filter.Sort{{Field: "total", Order: filter.Desc}},
				Page: filter.Page{Skip: 1, Limit: 2},
			})
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "1", rows[0]["_id"])
			assert.Equal(t, "2", rows[1]["_id"])

			rows, err = a.All(ctx, c, storage.Query{Sort: []filter.Sort{{Field: "rank"}}, Page: filter.Page{Skip: 2}})
			require.NoError(t, err)
			assert.Equal(t, []string{"3", "4", "5"}, rowIDs(rows))

			sums, err := a.Aggregate(ctx, c, storage.Query{Find: map[string]interface{}{"status": "open"}}, []string{"total", "rank"})
			require.NoError(t, err)
			assert.Equal(t, map[string]float64{"total": 43, "rank": 4}, sums)

			one, err := a.One(ctx, c, storage.Query{Find: map[string]interface{}{"_id": "3"}})
			require.NoError(t, err)
			assert.Equal(t, "rush", one["note"])
			assert.Equal(t, "widget mini", one["name"])

			_, err = a.One(ctx, c, storage.Query{Find: map[string]interface{}{"_id": "9"}})
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestAdaptersAgreeOnWrites(t *testing.T) {
	ctx := context.Background()
	c := storage.NewCollection(productModel())

	for name, a := range map[string]storage.Adapter{
		"sqlite": newSQLiteStore(t, c),
		"redis":  newRedisAdapter(t),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.CreateMany(ctx, c, productRows())
			require.NoError(t, err)

			created, err := a.Create(ctx, c, map[string]interface{}{"name": "Thing", "tags": []interface{}{"red", "blue"}})
			require.NoError(t, err)
			id, _ := created["_id"].(string)
			require.NotEmpty(t, id)

			got, err := a.One(ctx, c, storage.Query{Find: map[string]interface{}{"_id": id}})
			require.NoError(t, err)
			assert.Equal(t, []interface{}{"red", "blue"}, got["tags"])

			_, err = a.Create(ctx, c, map[string]interface{}{"_id": id})
			assert.ErrorIs(t, err, storage.ErrUniqueViolation)

			n, err := a.Update(ctx, c,
				storage.Query{Find: map[string]interface{}{"status": "open"}},
				map[string]interface{}{"status": "shipped"})
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			rows, err := a.All(ctx, c, storage.Query{Find: map[string]interface{}{"status": "shipped"}})
			require.NoError(t, err)
			assert.Equal(t, []string{"1", "3"}, rowIDs(rows))

			n, err = a.Destroy(ctx, c, storage.Query{Filter: &filter.Tree{Fields: []filter.Predicate{
				{Path: "note", Operator: filter.NotEquals, Value: "rush"},
			}}})
			require.NoError(t, err)
			assert.Equal(t, int64(4), n)

			rows, err = a.All(ctx, c, storage.Query{})
			require.NoError(t, err)
			assert.Equal(t, []string{"3"}, rowIDs(rows))
		})
	}
}

func TestSQLiteRoundTripTypes(t *testing.T) {
	ctx := context.Background()
	c := storage.NewCollection(productModel())
	s := newSQLiteStore(t, c)

	_, err := s.Create(ctx, c, productRows()[0])
	require.NoError(t, err)

	row, err := s.One(ctx, c, storage.Query{})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"_id":    "1",
		"name":   "Widget",
		"status": "open",
		"total":  float64(40),
		"rank":   int64(1),
	}, row)
}
