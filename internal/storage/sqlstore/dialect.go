// Package sqlstore is the relational storage adapter. Filter trees compile
// into a fluent predicate builder whose and/or/not scopes become nested
// parenthesized groups, executed through database/sql on PostgreSQL or
// SQLite.
package sqlstore

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/mirkwood-lang/mirkwood/internal/schema"
)

// Adapter names
const (
	AdapterPostgres = "postgresql"
	AdapterSQLite   = "sqlite"
)

// SQLiteDriver is the database/sql driver name registered with a regexp
// function and case sensitive LIKE
const SQLiteDriver = "sqlite3_mirkwood"

// Dialect captures the differences between the supported databases
type Dialect struct {
	Name string
	// numbered placeholders ($1, $2) instead of ?
	numbered bool
	// unlimited is the LIMIT value meaning no limit
	unlimited string
	// types maps scalars to column types
	types map[schema.Scalar]string
	// structured is the column type of list, nested and JSON values
	structured string
}

// Postgres is the PostgreSQL dialect
var Postgres = Dialect{
	Name:      "postgres",
	numbered:  true,
	unlimited: "ALL",
	types: map[schema.Scalar]string{
		schema.ScalarID:      "TEXT",
		schema.ScalarString:  "TEXT",
		schema.ScalarInt:     "BIGINT",
		schema.ScalarFloat:   "DOUBLE PRECISION",
		schema.ScalarBoolean: "BOOLEAN",
		schema.ScalarJSON:    "JSONB",
	},
	structured: "JSONB",
}

// SQLite is the SQLite dialect
var SQLite = Dialect{
	Name:      "sqlite",
	unlimited: "-1",
	types: map[schema.Scalar]string{
		schema.ScalarID:      "TEXT",
		schema.ScalarString:  "TEXT",
		schema.ScalarInt:     "INTEGER",
		schema.ScalarFloat:   "REAL",
		schema.ScalarBoolean: "BOOLEAN",
		schema.ScalarJSON:    "TEXT",
	},
	structured: "TEXT",
}

// Placeholder returns the n-th (1 based) bind parameter
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Quote quotes an identifier
func (d Dialect) Quote(identifier string) string {
	return pq.QuoteIdentifier(identifier)
}

// Regex renders a regular expression match. flags holds i, m or s.
func (d Dialect) Regex(column, placeholder, flags string) (string, func(string) string) {
	if d.numbered {
		op := "~"
		if strings.Contains(flags, "i") {
			op = "~*"
			flags = strings.ReplaceAll(flags, "i", "")
		}
		return fmt.Sprintf("%s %s %s", column, op, placeholder), embedFlags(flags)
	}
	return fmt.Sprintf("%s REGEXP %s", column, placeholder), embedFlags(flags)
}

// Like renders a LIKE pattern match. Case sensitive unless insensitive is set.
func (d Dialect) Like(column, placeholder string, insensitive bool) string {
	switch {
	case !insensitive:
		return fmt.Sprintf("%s LIKE %s", column, placeholder)
	case d.numbered:
		return fmt.Sprintf("%s ILIKE %s", column, placeholder)
	default:
		return fmt.Sprintf("lower(%s) LIKE lower(%s)", column, placeholder)
	}
}

// ColumnType maps a field type to a column type
func (d Dialect) ColumnType(ref schema.TypeRef) string {
	switch ref.Kind {
	case schema.RefScalar:
		if t, ok := d.types[ref.Scalar]; ok {
			return t
		}
	case schema.RefEnum:
		return d.types[schema.ScalarString]
	}
	return d.structured
}

func embedFlags(flags string) func(string) string {
	return func(pattern string) string {
		if flags == "" {
			return pattern
		}
		return "(?" + flags + ")" + pattern
	}
}

var registerSQLite sync.Once

// RegisterSQLiteDriver registers SQLiteDriver. Each connection gets a
// regexp(pattern, value) function backed by Go regular expressions and
// case sensitive LIKE.
func RegisterSQLiteDriver() {
	registerSQLite.Do(func() {
		sql.Register(SQLiteDriver, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("regexp", sqliteRegexp, true); err != nil {
					return fmt.Errorf("failed to register regexp: %w", err)
				}
				if _, err := conn.Exec("PRAGMA case_sensitive_like = ON", nil); err != nil {
					return fmt.Errorf("failed to enable case sensitive like: %w", err)
				}
				return nil
			},
		})
	})
}

var regexCache sync.Map

func sqliteRegexp(pattern string, value interface{}) (bool, error) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		if v == nil {
			return false, nil
		}
		s = string(v)
	default:
		return false, nil
	}

	re, ok := regexCache.Load(pattern)
	if !ok {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		re, _ = regexCache.LoadOrStore(pattern, compiled)
	}
	return re.(*regexp.Regexp).MatchString(s), nil
}
