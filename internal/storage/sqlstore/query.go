package sqlstore

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/hongminglow/all-in-iam/internal/storage"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// prefixScanner scans leading columns into extra before handing the rest to
// a row scanner.
type prefixScanner struct {
	src   scanner
	extra []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.src.Scan(append(append([]any{}, p.extra...), dest...)...)
}

// queryBuilder accumulates SQL text and bind arguments.
type queryBuilder struct {
	d    Dialect
	sb   strings.Builder
	args []any
}

func (b *queryBuilder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

// bind appends v and writes its placeholder.
func (b *queryBuilder) bind(v any) {
	b.args = append(b.args, v)
	b.sb.WriteString(b.d.Placeholder(len(b.args)))
}

func (b *queryBuilder) String() string { return b.sb.String() }

var comparisons = map[storage.Operator]string{
	storage.OpEq:   "=",
	storage.OpNe:   "<>",
	storage.OpGt:   ">",
	storage.OpGte:  ">=",
	storage.OpLt:   "<",
	storage.OpLte:  "<=",
	storage.OpLike: "LIKE",
}

// where writes a WHERE clause for filter. Fields are resolved through the
// field to column map; anything unknown is rejected.
func (b *queryBuilder) where(prefix string, fields map[string]string, filter storage.Filter) error {
	for i, c := range filter {
		col, ok := fields[c.Field]
		if !ok {
			return fmt.Errorf("%w: unknown filter field %q", storage.ErrInvalidQuery, c.Field)
		}
		col = prefix + col
		if i == 0 {
			b.write(" WHERE ")
		} else {
			b.write(" AND ")
		}

		switch c.Op {
		case storage.OpIn:
			values, err := sliceValues(c.Value)
			if err != nil {
				return fmt.Errorf("%w: field %q: %v", storage.ErrInvalidQuery, c.Field, err)
			}
			b.in(col, values)
		case storage.OpIsNull:
			isNull, ok := c.Value.(bool)
			if !ok {
				return fmt.Errorf("%w: field %q: isnull expects a bool", storage.ErrInvalidQuery, c.Field)
			}
			if isNull {
				b.write(col, " IS NULL")
			} else {
				b.write(col, " IS NOT NULL")
			}
		default:
			sqlOp, ok := comparisons[c.Op]
			if !ok {
				return fmt.Errorf("%w: unknown operator %q", storage.ErrInvalidQuery, c.Op)
			}
			b.write(col, " ", sqlOp, " ")
			b.bind(c.Value)
		}
	}
	return nil
}

// in writes col IN (...). An empty list matches nothing.
func (b *queryBuilder) in(col string, values []any) {
	if len(values) == 0 {
		b.write("1 = 0")
		return
	}
	b.write(col, " IN (")
	for i, v := range values {
		if i > 0 {
			b.write(", ")
		}
		b.bind(v)
	}
	b.write(")")
}

func (b *queryBuilder) orderBy(prefix string, fields map[string]string, orders []storage.Order) error {
	for i, o := range orders {
		col, ok := fields[o.Field]
		if !ok {
			return fmt.Errorf("%w: unknown order field %q", storage.ErrInvalidQuery, o.Field)
		}
		dir := o.Direction
		if dir == "" {
			dir = storage.Asc
		}
		if dir != storage.Asc && dir != storage.Desc {
			return fmt.Errorf("%w: unknown direction %q", storage.ErrInvalidQuery, o.Direction)
		}
		if i == 0 {
			b.write(" ORDER BY ")
		} else {
			b.write(", ")
		}
		b.write(prefix, col, " ", string(dir))
	}
	return nil
}

func (b *queryBuilder) paginate(skip, take int) {
	if take > 0 {
		b.write(" LIMIT ", strconv.Itoa(take))
	}
	if skip > 0 {
		if take <= 0 && b.d.offsetNeedsLimit {
			b.write(" LIMIT -1")
		}
		b.write(" OFFSET ", strconv.Itoa(skip))
	}
}

func sliceValues(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("in expects a list, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// relationPlan splits dotted relation paths into top level names and the
// nested paths below them, keeping first-seen order.
type relationPlan struct {
	names  []string
	nested map[string][]string
}

func planRelations(paths []string) relationPlan {
	plan := relationPlan{nested: make(map[string][]string)}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		head, rest, _ := strings.Cut(p, ".")
		if _, seen := plan.nested[head]; !seen {
			plan.names = append(plan.names, head)
			plan.nested[head] = nil
		}
		if rest != "" {
			plan.nested[head] = append(plan.nested[head], rest)
		}
	}
	return plan
}

func placeholders(b *queryBuilder, values ...any) {
	for i, v := range values {
		if i > 0 {
			b.write(", ")
		}
		b.bind(v)
	}
}
