package storage

// Operator is a comparison applied by a Condition.
type Operator string

const (
	OpEq     Operator = "eq"
	OpNe     Operator = "ne"
	OpGt     Operator = "gt"
	OpGte    Operator = "gte"
	OpLt     Operator = "lt"
	OpLte    Operator = "lte"
	OpLike   Operator = "like"
	OpIn     Operator = "in"
	OpIsNull Operator = "isnull"
)

// Condition compares one domain field with a value. OpIn expects a slice and
// OpIsNull a bool.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Filter is a conjunction of conditions.
type Filter []Condition

// Where is shorthand for an equality condition.
func Where(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order sorts by one domain field. Earlier entries take precedence.
type Order struct {
	Field     string
	Direction Direction
}

// FindOptions narrows a FindAll call. Relations use dotted paths for nested
// loads, e.g. "roles.permissions". Skip and Take below one are ignored.
type FindOptions struct {
	Filter    Filter
	Relations []string
	OrderBy   []Order
	Skip      int
	Take      int
}

// ParseDirection maps user input to a Direction, defaulting to ascending.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "", "asc", "ASC":
		return Asc, true
	case "desc", "DESC":
		return Desc, true
	default:
		return "", false
	}
}
