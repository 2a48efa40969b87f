package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
)

func TestConditionToSQL(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		cond     Condition
		wantSQL  string
		wantArgs []interface{}
	}{
		{"equals", Postgres, Condition{Column: "status", Operator: filter.Equals, Value: "open"},
			`"status" = $1`, []interface{}{"open"}},
		{"equals null", Postgres, Condition{Column: "status", Operator: filter.Equals},
			`1 = 0`, nil},
		{"not equals matches null", Postgres, Condition{Column: "status", Operator: filter.NotEquals, Value: "open"},
			`("status" IS NULL OR "status" <> $1)`, []interface{}{"open"}},
		{"not equals null", Postgres, Condition{Column: "status", Operator: filter.NotEquals},
			`"status" IS NOT NULL`, nil},
		{"gte", SQLite, Condition{Column: "total", Operator: filter.GreaterThanOrEqual, Value: 10},
			`"total" >= ?`, []interface{}{10}},
		{"exists", Postgres, Condition{Column: "note", Operator: filter.Exists, Value: false},
			`"note" IS NOT NULL`, nil},
		{"in", Postgres, Condition{Column: "status", Operator: filter.In, Values: []interface{}{"a", "b"}},
			`"status" IN ($1, $2)`, []interface{}{"a", "b"}},
		{"empty in", Postgres, Condition{Column: "status", Operator: filter.In, Values: []interface{}{}},
			`1 = 0`, nil},
		{"not in drops nulls", Postgres, Condition{Column: "status", Operator: filter.NotIn, Values: []interface{}{"a", nil}},
			`("status" IS NULL OR "status" NOT IN ($1))`, []interface{}{"a"}},
		{"empty not in", SQLite, Condition{Column: "status", Operator: filter.NotIn, Values: []interface{}{}},
			`1 = 1`, nil},
		{"postgres regex", Postgres, Condition{Column: "name", Operator: filter.Regex, Value: "^w"},
			`"name" ~ $1`, []interface{}{"^w"}},
		{"postgres regex flags", Postgres, Condition{Column: "name", Operator: filter.Regex, Value: "^w", Flags: "imx"},
			`"name" ~* $1`, []interface{}{"(?m)^w"}},
		{"sqlite regex flags", SQLite, Condition{Column: "name", Operator: filter.Regex, Value: "^w", Flags: "i"},
			`"name" REGEXP ?`, []interface{}{"(?i)^w"}},
		{"like", SQLite, Condition{Column: "name", Operator: filter.Like, Value: "W%"},
			`"name" LIKE ?`, []interface{}{"W%"}},
		{"postgres ilike", Postgres, Condition{Column: "name", Operator: filter.Like, Value: "W%", Flags: "i"},
			`"name" ILIKE $1`, []interface{}{"W%"}},
		{"sqlite insensitive like", SQLite, Condition{Column: "name", Operator: filter.Like, Value: "W%", Flags: "i"},
			`lower("name") LIKE lower(?)`, []interface{}{"W%"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &binder{dialect: tt.dialect}
			sql, err := conditionToSQL(&tt.cond, b)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, b.args)
		})
	}

	_, err := conditionToSQL(&Condition{Column: "a", Operator: filter.Operator(42)}, &binder{dialect: Postgres})
	assert.ErrorIs(t, err, filter.ErrUnknownOperator)
}

func TestCompileQuery(t *testing.T) {
	c := storage.Collection{Name: "orders"}

	t.Run("find and filter with sort and page", func(t *testing.T) {
		sb, err := CompileQuery(Postgres, c, storage.Query{
			Find:   map[string]interface{}{"status": "open"},
			Filter: &filter.Tree{Fields: []filter.Predicate{{Path: "total", Operator: filter.GreaterThan, Value: 10}}},
			Sort:   []filter.Sort{{Field: "total", Order: filter.Desc}, {Field: "name"}},
			Page:   filter.Page{Skip: 5, Limit: 10},
		})
		require.NoError(t, err)

		sql, args, err := sb.ToSQL()
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "orders" WHERE ("status" = $1) AND ("total" > $2) ORDER BY "total" DESC NULLS LAST, "name" ASC NULLS FIRST LIMIT $3 OFFSET $4`, sql)
		assert.Equal(t, []interface{}{"open", 10, 10, 5}, args)

		count, countArgs, err := sb.CountSQL()
		require.NoError(t, err)
		assert.Equal(t, `SELECT COUNT(*) FROM "orders" WHERE ("status" = $1) AND ("total" > $2)`, count)
		assert.Equal(t, []interface{}{"open", 10}, countArgs)
	})

	t.Run("or and not scopes", func(t *testing.T) {
		sb, err := CompileQuery(Postgres, c, storage.Query{Filter: &filter.Tree{
			Fields: []filter.Predicate{{Path: "a", Operator: filter.Equals, Value: 1}},
			Or: []*filter.Tree{
				{Fields: []filter.Predicate{{Path: "b", Operator: filter.Equals, Value: 2}}},
				{Fields: []filter.Predicate{{Path: "c", Operator: filter.Equals, Value: 3}}},
			},
			Not: []*filter.Tree{
				{Fields: []filter.Predicate{{Path: "d", Operator: filter.Exists}}},
			},
		}})
		require.NoError(t, err)

		sql, args, err := sb.ToSQL()
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "orders" WHERE "a" = $1 AND (("b" = $2) OR ("c" = $3)) AND ((("d" IS NOT NULL)) IS NOT TRUE)`, sql)
		assert.Equal(t, []interface{}{1, 2, 3}, args)
	})

	t.Run("empty subtree under not", func(t *testing.T) {
		sb, err := CompileQuery(SQLite, c, storage.Query{Filter: &filter.Tree{Not: []*filter.Tree{nil}}})
		require.NoError(t, err)
		sql, _, err := sb.ToSQL()
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "orders" WHERE (((1 = 1)) IS NOT TRUE)`, sql)
	})

	t.Run("skip without limit", func(t *testing.T) {
		for _, tt := range []struct {
			dialect Dialect
			want    string
		}{
			{Postgres, `SELECT * FROM "orders" LIMIT ALL OFFSET $1`},
			{SQLite, `SELECT * FROM "orders" LIMIT -1 OFFSET ?`},
		} {
			sb, err := CompileQuery(tt.dialect, c, storage.Query{Page: filter.Page{Skip: 3}})
			require.NoError(t, err)
			sql, args, err := sb.ToSQL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, sql)
			assert.Equal(t, []interface{}{3}, args)
		}
	})

	t.Run("identifiers are quoted", func(t *testing.T) {
		sb, err := CompileQuery(Postgres, storage.Collection{Name: `odd"table`}, storage.Query{
			Find: map[string]interface{}{`x" OR 1=1 --`: 1},
		})
		require.NoError(t, err)
		sql, _, err := sb.ToSQL()
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "odd""table" WHERE "x"" OR 1=1 --" = $1`, sql)
	})
}

func TestCompileQueryUnsupported(t *testing.T) {
	m := schema.NewModel("order")
	m.AddField(&schema.Field{Name: "tags", Type: schema.ListOf(schema.ScalarRef(schema.ScalarString))})
	m.AddField(&schema.Field{Name: "status", Type: schema.EnumRef(schema.NewEnum("OrderStatus", "open"))})
	c := storage.NewCollection(m)

	_, err := CompileQuery(Postgres, c, storage.Query{Find: map[string]interface{}{"address": map[string]interface{}{"city": "Oslo"}}})
	assert.ErrorIs(t, err, storage.ErrUnsupported)

	_, err = CompileQuery(Postgres, c, storage.Query{Find: map[string]interface{}{"tags": "red"}})
	assert.ErrorIs(t, err, storage.ErrUnsupported)

	_, err = CompileQuery(Postgres, c, storage.Query{Sort: []filter.Sort{{Field: "address.city"}}})
	assert.ErrorIs(t, err, storage.ErrUnsupported)

	_, err = CompileQuery(Postgres, c, storage.Query{Filter: &filter.Tree{Fields: []filter.Predicate{{Path: "status", Operator: filter.In}}}})
	assert.ErrorIs(t, err, filter.ErrValuesRequired)

	_, err = CompileQuery(Postgres, c, storage.Query{Find: map[string]interface{}{"status": "open"}})
	assert.NoError(t, err)
}

func TestSumUpdateDeleteSQL(t *testing.T) {
	sb := NewSelectBuilder(SQLite, "orders").Where("status", filter.Equals, "open")

	sum, args, err := sb.SumSQL([]string{"total", "tax"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT COALESCE(SUM("total"), 0), COALESCE(SUM("tax"), 0) FROM "orders" WHERE "status" = ?`, sum)
	assert.Equal(t, []interface{}{"open"}, args)

	update, args, err := NewSelectBuilder(Postgres, "orders").
		WhereIn("_id", []interface{}{"a"}).
		UpdateSQL([]string{"status", "total"}, []interface{}{"paid", 3})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "orders" SET "status" = $1, "total" = $2 WHERE "_id" IN ($3)`, update)
	assert.Equal(t, []interface{}{"paid", 3, "a"}, args)

	del, args, err := NewSelectBuilder(Postgres, "orders").WhereNotNull("note").WhereNotIn("status", []interface{}{"x"}).DeleteSQL()
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "orders" WHERE "note" IS NOT NULL AND ("status" IS NULL OR "status" NOT IN ($1))`, del)
	assert.Equal(t, []interface{}{"x"}, args)
}
