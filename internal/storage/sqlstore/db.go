// Package sqlstore implements the storage ports on database/sql for Postgres
// and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hongminglow/all-in-iam/internal/events"
	"github.com/hongminglow/all-in-iam/internal/idgen"
	"github.com/hongminglow/all-in-iam/internal/storage"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a connection pool with the collaborators every repository needs.
type DB struct {
	sql       *sql.DB
	dialect   Dialect
	publisher events.Publisher
	ids       storage.IDGenerator
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*DB)

// WithPublisher sets where committed events go. Without one they are dropped.
func WithPublisher(p events.Publisher) Option {
	return func(d *DB) { d.publisher = p }
}

func WithIDGenerator(g storage.IDGenerator) Option {
	return func(d *DB) { d.ids = g }
}

func WithClock(now func() time.Time) Option {
	return func(d *DB) { d.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *DB) { d.logger = l }
}

// New wraps db. Identifiers default to snowflake ids from node 0.
func New(db *sql.DB, d Dialect, opts ...Option) *DB {
	out := &DB{
		sql:     db,
		dialect: d,
		ids:     idgen.MustNew(0),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// SQL exposes the underlying pool.
func (d *DB) SQL() *sql.DB { return d.sql }

func (d *DB) Close() error { return d.sql.Close() }

// UnitOfWork is one transaction plus the events raised inside it.
type UnitOfWork struct {
	tx     *sql.Tx
	buffer *events.Buffer
}

// Collect queues events until the transaction commits.
func (u *UnitOfWork) Collect(evts ...events.Event) {
	u.buffer.Collect(evts...)
}

// WithinUnitOfWork runs fn in a transaction with a fresh event buffer. If fn
// fails or panics the transaction rolls back and the buffer is discarded.
// After a successful commit the buffered events are published once, in
// collection order. A publish failure does not undo the commit; it is logged
// and returned wrapped in events.ErrPublish.
func (d *DB) WithinUnitOfWork(ctx context.Context, fn func(*UnitOfWork) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	uow := &UnitOfWork{tx: tx, buffer: events.NewBuffer()}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tx.Rollback()
		uow.buffer.Clear()
	}()

	if err := fn(uow); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	committed = true

	pending := uow.buffer.Get()
	uow.buffer.Clear()
	if len(pending) == 0 || d.publisher == nil {
		return nil
	}
	if err := d.publisher.Publish(ctx, pending); err != nil {
		d.logger.ErrorContext(ctx, "publish committed events",
			slog.Int("events", len(pending)),
			slog.String("first_event", pending[0].Name),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %w", events.ErrPublish, err)
	}
	return nil
}
