package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/mirkwood-lang/mirkwood/internal/storage"
)

// PostgreSQL integrity constraint codes
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
)

// ConvertDBError converts driver specific errors to the storage sentinels
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	// pgx
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if sentinel := constraintSentinel(pgErr.Code); sentinel != nil {
			return fmt.Errorf("%w: %s", sentinel, pgErr.Message)
		}
		return err
	}

	// lib/pq
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if sentinel := constraintSentinel(string(pqErr.Code)); sentinel != nil {
			return fmt.Errorf("%w: %s", sentinel, pqErr.Message)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", storage.ErrUniqueViolation, liteErr)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %v", storage.ErrForeignKeyViolation, liteErr)
		case sqlite3.ErrConstraintCheck:
			return fmt.Errorf("%w: %v", storage.ErrCheckViolation, liteErr)
		case sqlite3.ErrConstraintNotNull:
			return fmt.Errorf("%w: %v", storage.ErrNotNullViolation, liteErr)
		}
	}

	return err
}

func constraintSentinel(code string) error {
	switch code {
	case codeUniqueViolation:
		return storage.ErrUniqueViolation
	case codeForeignKeyViolation:
		return storage.ErrForeignKeyViolation
	case codeCheckViolation:
		return storage.ErrCheckViolation
	case codeNotNullViolation:
		return storage.ErrNotNullViolation
	}
	return nil
}
