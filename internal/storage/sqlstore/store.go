package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mirkwood-lang/mirkwood/internal/storage"
)

// Store executes compiled statements over database/sql
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// NewStore wraps an open database
func NewStore(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

// DB returns the underlying database
func (s *Store) DB() *sql.DB {
	return s.db
}

// OpenPostgres is the storage.Factory for the postgresql adapter. The driver
// is pgx unless the connection asks for lib/pq with driver "postgres".
func OpenPostgres(ctx context.Context, cfg storage.ConnectionConfig) (storage.Adapter, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "pgx"
	}
	if driver != "pgx" && driver != "postgres" {
		return nil, fmt.Errorf("%w: postgresql driver %q", storage.ErrUnknownAdapter, driver)
	}

	dsn := cfg.URL
	if dsn == "" {
		port := cfg.Port
		if port == 0 {
			port = 5432
		}
		u := url.URL{
			Scheme:   "postgres",
			Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
			Path:     "/" + cfg.Database,
			RawQuery: "sslmode=disable",
		}
		if cfg.User != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		}
		dsn = u.String()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewStore(db, Postgres), nil
}

// OpenSQLite is the storage.Factory for the sqlite adapter. An empty
// location opens a private in-memory database.
func OpenSQLite(ctx context.Context, cfg storage.ConnectionConfig) (storage.Adapter, error) {
	RegisterSQLiteDriver()

	dsn := cfg.URL
	if dsn == "" {
		dsn = cfg.Database
	}
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open(SQLiteDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is a separate database
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewStore(db, SQLite), nil
}

// Migrate creates the table for c if it does not exist
func (s *Store) Migrate(ctx context.Context, c storage.Collection) error {
	ddl, err := GenerateCreateTable(s.dialect, c)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", c.Name, ConvertDBError(err))
	}
	return nil
}

func (s *Store) query(ctx context.Context, c storage.Collection, sb *SelectBuilder) ([]map[string]interface{}, error) {
	query, args, err := sb.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", ConvertDBError(err))
	}
	defer rows.Close()
	return scanRows(rows, c.Model)
}

// All returns the matching rows
func (s *Store) All(ctx context.Context, c storage.Collection, q storage.Query) ([]map[string]interface{}, error) {
	sb, err := CompileQuery(s.dialect, c, q)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, c, sb)
}

// Count returns the number of matching rows
func (s *Store) Count(ctx context.Context, c storage.Collection, q storage.Query) (int64, error) {
	sb, err := CompileQuery(s.dialect, c, q)
	if err != nil {
		return 0, err
	}
	query, args, err := sb.CountSQL()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failed: %w", ConvertDBError(err))
	}
	return n, nil
}

// One returns the first matching row
func (s *Store) One(ctx context.Context, c storage.Collection, q storage.Query) (map[string]interface{}, error) {
	sb, err := CompileQuery(s.dialect, c, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, c, sb.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}
	return rows[0], nil
}

// Create inserts a row, allocating a UUID when _id is missing
func (s *Store) Create(ctx context.Context, c storage.Collection, row map[string]interface{}) (map[string]interface{}, error) {
	prepared := withID(row)
	if _, err := s.insert(ctx, c, []map[string]interface{}{prepared}); err != nil {
		return nil, err
	}
	return prepared, nil
}

// CreateMany inserts rows in one statement
func (s *Store) CreateMany(ctx context.Context, c storage.Collection, rows []map[string]interface{}) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	prepared := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		prepared[i] = withID(row)
	}
	return s.insert(ctx, c, prepared)
}

// insert writes rows over the union of their columns
func (s *Store) insert(ctx context.Context, c storage.Collection, rows []map[string]interface{}) (int64, error) {
	columns := unionColumns(rows)
	b := &binder{dialect: s.dialect}

	tuples := make([]string, len(rows))
	for i, row := range rows {
		ph := make([]string, len(columns))
		for j, col := range columns {
			v, err := encodeValue(row[col])
			if err != nil {
				return 0, fmt.Errorf("encoding %s: %w", col, err)
			}
			ph[j] = b.bind(v)
		}
		tuples[i] = "(" + strings.Join(ph, ", ") + ")"
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = s.dialect.Quote(col)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		s.dialect.Quote(c.Name), strings.Join(quoted, ", "), strings.Join(tuples, ", "))

	res, err := s.db.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, fmt.Errorf("insert failed: %w", ConvertDBError(err))
	}
	return res.RowsAffected()
}

// Update sets fields on every matching row. _id is never changed.
func (s *Store) Update(ctx context.Context, c storage.Collection, q storage.Query, set map[string]interface{}) (int64, error) {
	columns := make([]string, 0, len(set))
	for k := range set {
		if k != storage.IDField {
			columns = append(columns, k)
		}
	}
	if len(columns) == 0 {
		return 0, nil
	}
	sort.Strings(columns)

	values := make([]interface{}, len(columns))
	for i, col := range columns {
		v, err := encodeValue(set[col])
		if err != nil {
			return 0, fmt.Errorf("encoding %s: %w", col, err)
		}
		values[i] = v
	}

	sb, err := CompileQuery(s.dialect, c, storage.Query{Find: q.Find, Filter: q.Filter})
	if err != nil {
		return 0, err
	}
	query, args, err := sb.UpdateSQL(columns, values)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update failed: %w", ConvertDBError(err))
	}
	return res.RowsAffected()
}

// Destroy deletes every matching row
func (s *Store) Destroy(ctx context.Context, c storage.Collection, q storage.Query) (int64, error) {
	sb, err := CompileQuery(s.dialect, c, storage.Query{Find: q.Find, Filter: q.Filter})
	if err != nil {
		return 0, err
	}
	query, args, err := sb.DeleteSQL()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", ConvertDBError(err))
	}
	return res.RowsAffected()
}

// Aggregate sums fields over the matching rows
func (s *Store) Aggregate(ctx context.Context, c storage.Collection, q storage.Query, fields []string) (map[string]float64, error) {
	sums := make(map[string]float64, len(fields))
	if len(fields) == 0 {
		return sums, nil
	}

	sb, err := CompileQuery(s.dialect, c, storage.Query{Find: q.Find, Filter: q.Filter})
	if err != nil {
		return nil, err
	}
	query, args, err := sb.SumSQL(fields)
	if err != nil {
		return nil, err
	}

	values := make([]sql.NullFloat64, len(fields))
	ptrs := make([]interface{}, len(fields))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("aggregate failed: %w", ConvertDBError(err))
	}
	for i, f := range fields {
		sums[f] = values[i].Float64
	}
	return sums, nil
}

// Close closes the database
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

func withID(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row)+1)
	for k, v := range row {
		out[k] = v
	}
	if id, ok := out[storage.IDField]; !ok || id == nil || id == "" {
		out[storage.IDField] = uuid.NewString()
	}
	return out
}

func unionColumns(rows []map[string]interface{}) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	return columns
}
