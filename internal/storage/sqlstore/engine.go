package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/hongminglow/all-in-iam/internal/events"
	"github.com/hongminglow/all-in-iam/internal/storage"
)

// Changes is the partial schema produced from a domain patch.
type Changes[S any] struct {
	// Columns maps column names to new values.
	Columns map[string]any
	// Relations sets replacement associations on a loaded row, keyed by
	// relation name.
	Relations map[string]func(*S)
}

// JoinTable names a table whose rows reference the entity and must be removed
// before the entity itself.
type JoinTable struct {
	Name   string
	Column string
}

// Mapping binds a domain type T, its schema row S and its patch P to a table.
type Mapping[T, S, P any] struct {
	// Entity prefixes the events raised by the engine, e.g. "user".
	Entity string
	Table  Table[S]
	// Fields maps domain field names accepted in filters and orders to columns.
	Fields     map[string]string
	Values     func(*S) []any
	SetID      func(*S, string)
	Timestamps func(*S) (created, updated *time.Time)

	ToDomain      func(S) T
	ToSchema      func(T) S
	PatchToSchema func(P) Changes[S]
	PullEvents    func(*T) []events.Event

	Relations  map[string]Relation[S]
	JoinTables []JoinTable
}

// Engine implements the generic repository operations on one mapping.
type Engine[T, S, P any] struct {
	db  *DB
	m   Mapping[T, S, P]
	uow *UnitOfWork
}

func NewEngine[T, S, P any](db *DB, m Mapping[T, S, P]) *Engine[T, S, P] {
	return &Engine[T, S, P]{db: db, m: m}
}

// WithUnitOfWork returns a copy whose reads and writes run in u and whose
// events are collected into u.
func (e *Engine[T, S, P]) WithUnitOfWork(u *UnitOfWork) *Engine[T, S, P] {
	c := *e
	c.uow = u
	return &c
}

func (e *Engine[T, S, P]) querier() Querier {
	if e.uow != nil {
		return e.uow.tx
	}
	return e.db.sql
}

// mutate runs fn in the bound unit of work, or in a unit of work of its own.
func (e *Engine[T, S, P]) mutate(ctx context.Context, fn func(Querier, *UnitOfWork) error) error {
	if e.uow != nil {
		return fn(e.uow.tx, e.uow)
	}
	return e.db.WithinUnitOfWork(ctx, func(u *UnitOfWork) error {
		return fn(u.tx, u)
	})
}

// FindByID returns the entity with the given id or storage.ErrNotFound.
func (e *Engine[T, S, P]) FindByID(ctx context.Context, id string, relations ...string) (T, error) {
	var zero T
	rows, err := e.find(ctx, e.querier(), storage.FindOptions{
		Filter:    storage.Filter{storage.Where("id", id)},
		Relations: relations,
		Take:      1,
	})
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("%s %s: %w", e.m.Entity, id, storage.ErrNotFound)
	}
	return e.m.ToDomain(*rows[0]), nil
}

// FindOne returns the first entity matching opts or storage.ErrNotFound.
func (e *Engine[T, S, P]) FindOne(ctx context.Context, opts storage.FindOptions) (T, error) {
	var zero T
	opts.Take = 1
	rows, err := e.find(ctx, e.querier(), opts)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("%s: %w", e.m.Entity, storage.ErrNotFound)
	}
	return e.m.ToDomain(*rows[0]), nil
}

func (e *Engine[T, S, P]) FindAll(ctx context.Context, opts storage.FindOptions) ([]T, error) {
	rows, err := e.find(ctx, e.querier(), opts)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		out = append(out, e.m.ToDomain(*r))
	}
	return out, nil
}

// Count returns how many rows match filter.
func (e *Engine[T, S, P]) Count(ctx context.Context, filter storage.Filter) (int, error) {
	b := &queryBuilder{d: e.db.dialect}
	b.write("SELECT COUNT(*) FROM ", e.m.Table.Name)
	if err := b.where("", e.m.Fields, filter); err != nil {
		return 0, err
	}
	var n int
	if err := e.querier().QueryRowContext(ctx, b.String(), b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", e.m.Table.Name, err)
	}
	return n, nil
}

// Save inserts or updates entity by primary key and rewrites its loaded
// associations. An entity without id gets a fresh one on the returned copy.
func (e *Engine[T, S, P]) Save(ctx context.Context, entity T) (T, error) {
	pending := e.m.PullEvents(&entity)
	row := e.m.ToSchema(entity)
	id := e.m.Table.ID(&row)
	if id == "" {
		id = e.db.ids.NewID()
		e.m.SetID(&row, id)
	}
	now := e.db.now().UTC()

	err := e.mutate(ctx, func(q Querier, u *UnitOfWork) error {
		existing, err := e.find(ctx, q, storage.FindOptions{
			Filter: storage.Filter{storage.Where("id", id)},
			Take:   1,
		})
		if err != nil {
			return err
		}

		created, updated := e.m.Timestamps(&row)
		*updated = now
		if len(existing) == 1 {
			prevCreated, _ := e.m.Timestamps(existing[0])
			*created = *prevCreated
			if err := e.update(ctx, q, id, e.columnValues(&row)); err != nil {
				return err
			}
			u.Collect(events.New(e.m.Entity+".updated", e.m.Entity, id, now, nil))
		} else {
			if created.IsZero() {
				*created = now
			} else {
				*created = created.UTC()
			}
			if err := e.insert(ctx, q, &row); err != nil {
				return err
			}
		}

		for _, name := range slices.Sorted(maps.Keys(e.m.Relations)) {
			if err := e.m.Relations[name].Replace(ctx, q, e.db.dialect, &row); err != nil {
				return e.mapError(err)
			}
		}
		u.Collect(pending...)
		return nil
	})
	if err != nil && !errors.Is(err, events.ErrPublish) {
		var zero T
		return zero, err
	}
	return e.m.ToDomain(row), err
}

// Edit applies the supplied fields of patch to the entity with the given id.
// A missing entity yields storage.ErrNotFound and no write.
func (e *Engine[T, S, P]) Edit(ctx context.Context, id string, patch P) (T, error) {
	changes := e.m.PatchToSchema(patch)
	for col := range changes.Columns {
		if !slices.Contains(e.m.Table.Columns, col) || col == "id" {
			var zero T
			return zero, fmt.Errorf("%w: cannot edit column %q", storage.ErrInvalidQuery, col)
		}
	}
	for name := range changes.Relations {
		if _, ok := e.m.Relations[name]; !ok {
			var zero T
			return zero, fmt.Errorf("%w: unknown relation %q", storage.ErrInvalidQuery, name)
		}
	}
	now := e.db.now().UTC()

	var out T
	err := e.mutate(ctx, func(q Querier, u *UnitOfWork) error {
		rows, err := e.find(ctx, q, storage.FindOptions{
			Filter: storage.Filter{storage.Where("id", id)},
			Take:   1,
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("%s %s: %w", e.m.Entity, id, storage.ErrNotFound)
		}
		row := rows[0]

		set := make(map[string]any, len(changes.Columns)+1)
		maps.Copy(set, changes.Columns)
		set["updated_at"] = now
		if err := e.update(ctx, q, id, set); err != nil {
			return err
		}

		names := slices.Sorted(maps.Keys(changes.Relations))
		for _, name := range names {
			changes.Relations[name](row)
			if err := e.m.Relations[name].Replace(ctx, q, e.db.dialect, row); err != nil {
				return e.mapError(err)
			}
		}

		fields := slices.Sorted(maps.Keys(changes.Columns))
		u.Collect(events.New(e.m.Entity+".updated", e.m.Entity, id, now, map[string]any{
			"fields":    fields,
			"relations": names,
		}))

		reloaded, err := e.find(ctx, q, storage.FindOptions{
			Filter:    storage.Filter{storage.Where("id", id)},
			Relations: slices.Sorted(maps.Keys(e.m.Relations)),
			Take:      1,
		})
		if err != nil {
			return err
		}
		if len(reloaded) == 0 {
			return fmt.Errorf("%s %s: %w", e.m.Entity, id, storage.ErrNotFound)
		}
		out = e.m.ToDomain(*reloaded[0])
		return nil
	})
	if err != nil && !errors.Is(err, events.ErrPublish) {
		var zero T
		return zero, err
	}
	return out, err
}

// Delete removes the entity and its join rows. A missing entity yields
// storage.ErrNotFound.
func (e *Engine[T, S, P]) Delete(ctx context.Context, id string) error {
	return e.mutate(ctx, func(q Querier, u *UnitOfWork) error {
		n, err := e.countID(ctx, q, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s %s: %w", e.m.Entity, id, storage.ErrNotFound)
		}

		for _, jt := range e.m.JoinTables {
			b := &queryBuilder{d: e.db.dialect}
			b.write("DELETE FROM ", jt.Name, " WHERE ", jt.Column, " = ")
			b.bind(id)
			if _, err := q.ExecContext(ctx, b.String(), b.args...); err != nil {
				return fmt.Errorf("delete %s rows: %w", jt.Name, err)
			}
		}

		b := &queryBuilder{d: e.db.dialect}
		b.write("DELETE FROM ", e.m.Table.Name, " WHERE id = ")
		b.bind(id)
		if _, err := q.ExecContext(ctx, b.String(), b.args...); err != nil {
			return fmt.Errorf("delete %s: %w", e.m.Entity, err)
		}
		u.Collect(events.New(e.m.Entity+".removed", e.m.Entity, id, e.db.now().UTC(), nil))
		return nil
	})
}

func (e *Engine[T, S, P]) find(ctx context.Context, q Querier, opts storage.FindOptions) ([]*S, error) {
	plan := planRelations(opts.Relations)
	for _, name := range plan.names {
		rel, ok := e.m.Relations[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown relation %q", storage.ErrInvalidQuery, name)
		}
		if err := rel.Validate(plan.nested[name]); err != nil {
			return nil, err
		}
	}

	b := &queryBuilder{d: e.db.dialect}
	b.write("SELECT ", e.m.Table.selectList(""), " FROM ", e.m.Table.Name)
	if err := b.where("", e.m.Fields, opts.Filter); err != nil {
		return nil, err
	}
	if err := b.orderBy("", e.m.Fields, opts.OrderBy); err != nil {
		return nil, err
	}
	b.paginate(opts.Skip, opts.Take)

	res, err := q.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", e.m.Table.Name, err)
	}
	defer res.Close()

	var rows []*S
	for res.Next() {
		row, err := e.m.Table.Scan(res)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", e.m.Table.Name, err)
		}
		rows = append(rows, &row)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", e.m.Table.Name, err)
	}
	res.Close()

	for _, name := range plan.names {
		if err := e.m.Relations[name].Load(ctx, q, e.db.dialect, rows, plan.nested[name]); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (e *Engine[T, S, P]) countID(ctx context.Context, q Querier, id string) (int, error) {
	b := &queryBuilder{d: e.db.dialect}
	b.write("SELECT COUNT(*) FROM ", e.m.Table.Name, " WHERE id = ")
	b.bind(id)
	var n int
	if err := q.QueryRowContext(ctx, b.String(), b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("lookup %s: %w", e.m.Entity, err)
	}
	return n, nil
}

func (e *Engine[T, S, P]) insert(ctx context.Context, q Querier, row *S) error {
	b := &queryBuilder{d: e.db.dialect}
	b.write("INSERT INTO ", e.m.Table.Name, " (", e.m.Table.selectList(""), ") VALUES (")
	placeholders(b, e.m.Values(row)...)
	b.write(")")
	if _, err := q.ExecContext(ctx, b.String(), b.args...); err != nil {
		return e.mapError(fmt.Errorf("insert %s: %w", e.m.Entity, err))
	}
	return nil
}

// columnValues returns every column except id and created_at.
func (e *Engine[T, S, P]) columnValues(row *S) map[string]any {
	values := e.m.Values(row)
	set := make(map[string]any, len(values))
	for i, col := range e.m.Table.Columns {
		if col == "id" || col == "created_at" {
			continue
		}
		set[col] = values[i]
	}
	return set
}

func (e *Engine[T, S, P]) update(ctx context.Context, q Querier, id string, set map[string]any) error {
	b := &queryBuilder{d: e.db.dialect}
	b.write("UPDATE ", e.m.Table.Name, " SET ")
	for i, col := range slices.Sorted(maps.Keys(set)) {
		if i > 0 {
			b.write(", ")
		}
		b.write(col, " = ")
		b.bind(set[col])
	}
	b.write(" WHERE id = ")
	b.bind(id)
	if _, err := q.ExecContext(ctx, b.String(), b.args...); err != nil {
		return e.mapError(fmt.Errorf("update %s: %w", e.m.Entity, err))
	}
	return nil
}

func (e *Engine[T, S, P]) mapError(err error) error {
	if e.db.dialect.isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", e.m.Entity, storage.ErrAlreadyExists)
	}
	return err
}
