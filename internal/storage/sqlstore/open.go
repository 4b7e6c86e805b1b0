package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// SQLite DSN parameters for production hardening.
const (
	sqliteBusyTimeout = "5000"
	sqliteJournalMode = "WAL"
	sqliteSynchronous = "NORMAL"
)

// Open connects to the database for the given dialect and verifies the
// connection.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	switch d.name {
	case Postgres.name:
		return openPostgres(ctx, dsn)
	case SQLite.name:
		return openSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", d.name)
	}
}

// openPostgres honours the pool_* settings of the url (pool_max_conns,
// pool_max_conn_lifetime, pool_max_conn_idle_time) on the database/sql pool.
func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	db := stdlib.OpenDB(*cfg.ConnConfig)
	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MaxConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// openSQLite uses a single connection so that write transactions serialize
// instead of failing with SQLITE_BUSY.
func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(SQLite.name, sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	path = strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	params := url.Values{}
	params.Set("_journal_mode", sqliteJournalMode)
	params.Set("_busy_timeout", sqliteBusyTimeout)
	params.Set("_synchronous", sqliteSynchronous)
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}
