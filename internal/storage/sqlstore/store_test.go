package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirkwood-lang/mirkwood/internal/filter"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/storage"
)

func orderModel() *schema.Model {
	m := schema.NewModel("order")
	m.Datasource.Table = "orders"
	m.AddField(&schema.Field{Name: "status", Type: schema.ScalarRef(schema.ScalarString)})
	m.AddField(&schema.Field{Name: "total", Type: schema.ScalarRef(schema.ScalarFloat)})
	m.AddField(&schema.Field{Name: "tags", Type: schema.ListOf(schema.ScalarRef(schema.ScalarString))})
	return m
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return NewStore(db, Postgres), mock
}

func TestStoreCreate(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	c := storage.NewCollection(orderModel())

	mock.ExpectExec(`INSERT INTO "orders" ("_id", "status", "tags") VALUES ($1, $2, $3)`).
		WithArgs("o1", "open", `["a"]`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	row, err := s.Create(ctx, c, map[string]interface{}{"_id": "o1", "status": "open", "tags": []interface{}{"a"}})
	require.NoError(t, err)
	assert.Equal(t, "o1", row["_id"])

	mock.ExpectExec(`INSERT INTO "orders" ("_id", "status") VALUES ($1, $2)`).
		WithArgs(sqlmock.AnyArg(), "open").
		WillReturnResult(sqlmock.NewResult(0, 1))

	input := map[string]interface{}{"status": "open"}
	row, err = s.Create(ctx, c, input)
	require.NoError(t, err)
	assert.NotEmpty(t, row["_id"])
	assert.NotContains(t, input, "_id")

	mock.ExpectExec(`INSERT INTO "orders" ("_id", "status") VALUES ($1, $2)`).
		WithArgs("o1", "open").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	_, err = s.Create(ctx, c, map[string]interface{}{"_id": "o1", "status": "open"})
	assert.ErrorIs(t, err, storage.ErrUniqueViolation)
}

func TestStoreCreateManyUsesColumnUnion(t *testing.T) {
	s, mock := newMockStore(t)
	c := storage.NewCollection(orderModel())

	mock.ExpectExec(`INSERT INTO "orders" ("_id", "status", "total") VALUES ($1, $2, $3), ($4, $5, $6)`).
		WithArgs("a", "open", nil, "b", nil, 2.5).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.CreateMany(context.Background(), c, []map[string]interface{}{
		{"_id": "a", "status": "open"},
		{"_id": "b", "total": 2.5},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.CreateMany(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreRead(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	c := storage.NewCollection(orderModel())

	mock.ExpectQuery(`SELECT * FROM "orders" WHERE "_id" = $1 LIMIT $2`).
		WithArgs("o1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"_id", "status", "total", "tags"}).
			AddRow("o1", []byte("open"), nil, []byte(`["a","b"]`)))

	row, err := s.One(ctx, c, storage.Query{Find: map[string]interface{}{"_id": "o1"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"_id":    "o1",
		"status": "open",
		"tags":   []interface{}{"a", "b"},
	}, row)

	mock.ExpectQuery(`SELECT * FROM "orders" WHERE "_id" = $1 LIMIT $2`).
		WithArgs("zz", 1).
		WillReturnRows(sqlmock.NewRows([]string{"_id"}))

	_, err = s.One(ctx, c, storage.Query{Find: map[string]interface{}{"_id": "zz"}})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	mock.ExpectQuery(`SELECT COUNT(*) FROM "orders" WHERE "status" = $1`).
		WithArgs("open").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.Count(ctx, c, storage.Query{Find: map[string]interface{}{"status": "open"}, Page: filter.DefaultPage()})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	mock.ExpectQuery(`SELECT COALESCE(SUM("total"), 0) FROM "orders" WHERE "status" = $1`).
		WithArgs("open").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("42.5"))

	sums, err := s.Aggregate(ctx, c, storage.Query{Find: map[string]interface{}{"status": "open"}}, []string{"total"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"total": 42.5}, sums)
}

func TestStoreUpdateAndDestroy(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	c := storage.NewCollection(orderModel())

	mock.ExpectExec(`UPDATE "orders" SET "status" = $1, "tags" = $2 WHERE "_id" = $3`).
		WithArgs("paid", `["x"]`, "o1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.Update(ctx, c,
		storage.Query{Find: map[string]interface{}{"_id": "o1"}},
		map[string]interface{}{"status": "paid", "tags": []interface{}{"x"}, "_id": "changed"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Update(ctx, c, storage.Query{}, map[string]interface{}{"_id": "only"})
	require.NoError(t, err)
	assert.Zero(t, n, "an update of nothing but _id touches no rows")

	mock.ExpectExec(`DELETE FROM "orders" WHERE "_id" IN ($1, $2)`).
		WithArgs("a", "b").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err = s.Destroy(ctx, c, storage.Query{Find: map[string]interface{}{"_id": []interface{}{"a", "b"}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mock.ExpectExec(`DELETE FROM "orders" WHERE "status" = $1`).
		WithArgs("open").
		WillReturnError(&pq.Error{Code: "23503", Message: "still referenced"})

	_, err = s.Destroy(ctx, c, storage.Query{Find: map[string]interface{}{"status": "open"}})
	assert.ErrorIs(t, err, storage.ErrForeignKeyViolation)
}

func TestConvertDBError(t *testing.T) {
	other := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, storage.ErrNotFound},
		{"pgx unique", &pgconn.PgError{Code: "23505"}, storage.ErrUniqueViolation},
		{"pgx check", &pgconn.PgError{Code: "23514"}, storage.ErrCheckViolation},
		{"pq not null", &pq.Error{Code: "23502"}, storage.ErrNotNullViolation},
		{"sqlite primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, storage.ErrUniqueViolation},
		{"sqlite foreign key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, storage.ErrForeignKeyViolation},
		{"unrelated", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ConvertDBError(tt.err), tt.want)
		})
	}

	assert.NoError(t, ConvertDBError(nil))
	assert.Equal(t, other, ConvertDBError(other))
}

func TestGenerateCreateTable(t *testing.T) {
	m := schema.NewModel("order")
	m.Datasource.Table = "orders"
	m.Datasource.Timestamps = true
	m.AddField(&schema.Field{Name: "name", Type: schema.ScalarRef(schema.ScalarString), Required: true})
	m.AddField(&schema.Field{Name: "code", Type: schema.ScalarRef(schema.ScalarString), Constraints: &schema.Constraints{Unique: true}})
	m.AddField(&schema.Field{Name: "total", Type: schema.ScalarRef(schema.ScalarFloat)})
	m.AddField(&schema.Field{Name: "count", Type: schema.ScalarRef(schema.ScalarInt)})
	m.AddField(&schema.Field{Name: "status", Type: schema.EnumRef(schema.NewEnum("OrderStatus", "open"))})
	m.AddField(&schema.Field{Name: "tags", Type: schema.ListOf(schema.ScalarRef(schema.ScalarString))})
	m.AddField(&schema.Field{Name: "label", Type: schema.ScalarRef(schema.ScalarString), Virtual: true})
	c := storage.NewCollection(m)

	ddl, err := GenerateCreateTable(Postgres, c)
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "orders" (
  "_id" TEXT PRIMARY KEY,
  "name" TEXT NOT NULL,
  "code" TEXT UNIQUE,
  "total" DOUBLE PRECISION,
  "count" BIGINT,
  "status" TEXT,
  "tags" JSONB,
  "_created_at" TEXT,
  "_updated_at" TEXT
)`, ddl)

	ddl, err = GenerateCreateTable(SQLite, c)
	require.NoError(t, err)
	assert.Contains(t, ddl, `"count" INTEGER,`)
	assert.Contains(t, ddl, `"tags" TEXT,`)

	_, err = GenerateCreateTable(SQLite, storage.Collection{Name: "loose"})
	assert.Error(t, err)
}
