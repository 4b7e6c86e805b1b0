package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
)

// OpenTestDB opens a SQLite database in t.TempDir(), runs all migrations and
// registers cleanup.
func OpenTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	conn, err := Open(ctx, SQLite, path)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := Migrate(ctx, conn, SQLite, nil); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return New(conn, SQLite, opts...)
}
