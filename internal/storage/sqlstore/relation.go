package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/hongminglow/all-in-iam/internal/storage"
)

// Relation loads and persists an association of schema rows S.
type Relation[S any] interface {
	// Validate rejects nested paths the relation cannot load.
	Validate(nested []string) error
	// Load fills the association on every row, then loads nested paths.
	Load(ctx context.Context, q Querier, d Dialect, rows []*S, nested []string) error
	// Replace rewrites the stored association of row. A nil association
	// means it was never loaded and is left untouched.
	Replace(ctx context.Context, q Querier, d Dialect, row *S) error
}

// Table describes how to read rows of one table.
type Table[R any] struct {
	Name    string
	Columns []string
	Scan    func(scanner) (R, error)
	ID      func(*R) string
}

func (t Table[R]) selectList(prefix string) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

// ManyToMany is an association stored in a join table.
type ManyToMany[S, R any] struct {
	JoinTable    string
	OwnerColumn  string
	TargetColumn string
	Target       Table[R]
	OwnerID      func(*S) string
	Get          func(*S) []R
	Set          func(*S, []R)
	Nested       map[string]Relation[R]
}

func (m ManyToMany[S, R]) Validate(nested []string) error {
	plan := planRelations(nested)
	for _, name := range plan.names {
		rel, ok := m.Nested[name]
		if !ok {
			return fmt.Errorf("%w: unknown relation %q", storage.ErrInvalidQuery, name)
		}
		if err := rel.Validate(plan.nested[name]); err != nil {
			return err
		}
	}
	return nil
}

func (m ManyToMany[S, R]) Load(ctx context.Context, q Querier, d Dialect, rows []*S, nested []string) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]any, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		id := m.OwnerID(row)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	b := &queryBuilder{d: d}
	b.write("SELECT j.", m.OwnerColumn, ", ", m.Target.selectList("t."),
		" FROM ", m.JoinTable, " j JOIN ", m.Target.Name, " t ON t.id = j.", m.TargetColumn, " WHERE ")
	b.in("j."+m.OwnerColumn, ids)
	b.write(" ORDER BY t.id")

	res, err := q.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return fmt.Errorf("load %s: %w", m.JoinTable, err)
	}
	defer res.Close()

	type link struct {
		owner  string
		target string
	}
	var links []link
	targets := make(map[string]*R)
	var unique []*R
	for res.Next() {
		var owner string
		item, err := m.Target.Scan(prefixScanner{src: res, extra: []any{&owner}})
		if err != nil {
			return fmt.Errorf("scan %s: %w", m.Target.Name, err)
		}
		id := m.Target.ID(&item)
		if _, ok := targets[id]; !ok {
			ptr := &item
			targets[id] = ptr
			unique = append(unique, ptr)
		}
		links = append(links, link{owner: owner, target: id})
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", m.Target.Name, err)
	}
	res.Close()

	plan := planRelations(nested)
	for _, name := range plan.names {
		rel, ok := m.Nested[name]
		if !ok {
			return fmt.Errorf("%w: unknown relation %q", storage.ErrInvalidQuery, name)
		}
		if err := rel.Load(ctx, q, d, unique, plan.nested[name]); err != nil {
			return err
		}
	}

	byOwner := make(map[string][]R, len(rows))
	for _, l := range links {
		byOwner[l.owner] = append(byOwner[l.owner], *targets[l.target])
	}
	for _, row := range rows {
		items := byOwner[m.OwnerID(row)]
		if items == nil {
			items = []R{}
		}
		m.Set(row, items)
	}
	return nil
}

func (m ManyToMany[S, R]) Replace(ctx context.Context, q Querier, d Dialect, row *S) error {
	items := m.Get(row)
	if items == nil {
		return nil
	}
	owner := m.OwnerID(row)

	del := &queryBuilder{d: d}
	del.write("DELETE FROM ", m.JoinTable, " WHERE ", m.OwnerColumn, " = ")
	del.bind(owner)
	if _, err := q.ExecContext(ctx, del.String(), del.args...); err != nil {
		return fmt.Errorf("clear %s: %w", m.JoinTable, err)
	}

	seen := make(map[string]struct{}, len(items))
	for i := range items {
		target := m.Target.ID(&items[i])
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}

		ins := &queryBuilder{d: d}
		ins.write("INSERT INTO ", m.JoinTable, " (", m.OwnerColumn, ", ", m.TargetColumn, ") VALUES (")
		placeholders(ins, owner, target)
		ins.write(")")
		if _, err := q.ExecContext(ctx, ins.String(), ins.args...); err != nil {
			return fmt.Errorf("link %s: %w", m.JoinTable, err)
		}
	}
	return nil
}
