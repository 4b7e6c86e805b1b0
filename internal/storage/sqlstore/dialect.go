package sqlstore

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// Dialect captures the few places where Postgres and SQLite disagree.
type Dialect struct {
	name  string
	goose goose.Dialect
	// offsetNeedsLimit is set when OFFSET is only valid after a LIMIT clause.
	offsetNeedsLimit bool
	numbered         bool
}

var (
	Postgres = Dialect{name: "postgres", goose: goose.DialectPostgres, numbered: true}
	SQLite   = Dialect{name: "sqlite3", goose: goose.DialectSQLite3, offsetNeedsLimit: true}
)

// DialectFor resolves a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx", "":
		return Postgres, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d Dialect) Name() string { return d.name }

// Placeholder returns the bind parameter for the n-th argument (1-based).
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d Dialect) isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
