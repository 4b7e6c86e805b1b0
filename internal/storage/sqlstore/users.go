package sqlstore

import (
	"context"
	"time"

	"github.com/hongminglow/all-in-iam/internal/events"
	"github.com/hongminglow/all-in-iam/internal/models"
	"github.com/hongminglow/all-in-iam/internal/storage"
)

type userRow struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Roles        []roleRow
}

var userTable = Table[userRow]{
	Name:    "users",
	Columns: []string{"id", "name", "email", "password_hash", "created_at", "updated_at"},
	Scan: func(sc scanner) (userRow, error) {
		var r userRow
		err := sc.Scan(&r.ID, &r.Name, &r.Email, &r.PasswordHash, &r.CreatedAt, &r.UpdatedAt)
		return r, err
	},
	ID: func(r *userRow) string { return r.ID },
}

func (r userRow) toDomain() models.User {
	u := models.User{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		PasswordHash:  r.PasswordHash,
		AggregateRoot: models.AggregateRoot{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
	}
	if r.Roles != nil {
		u.Roles = make([]models.Role, 0, len(r.Roles))
		for _, role := range r.Roles {
			u.Roles = append(u.Roles, role.toDomain())
		}
	}
	return u
}

func userToRow(u models.User) userRow {
	row := userRow{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.Roles != nil {
		row.Roles = rolesToRows(u.Roles)
	}
	return row
}

func rolesToRows(roles []models.Role) []roleRow {
	out := make([]roleRow, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleToRow(role))
	}
	return out
}

func userRoles() Relation[userRow] {
	return ManyToMany[userRow, roleRow]{
		JoinTable:    "user_roles",
		OwnerColumn:  "user_id",
		TargetColumn: "role_id",
		Target:       roleTable,
		OwnerID:      func(r *userRow) string { return r.ID },
		Get:          func(r *userRow) []roleRow { return r.Roles },
		Set:          func(r *userRow, roles []roleRow) { r.Roles = roles },
		Nested:       map[string]Relation[roleRow]{"permissions": rolePermissions()},
	}
}

func userMapping() Mapping[models.User, userRow, models.UserPatch] {
	return Mapping[models.User, userRow, models.UserPatch]{
		Entity: "user",
		Table:  userTable,
		Fields: map[string]string{
			"id":        "id",
			"name":      "name",
			"email":     "email",
			"createdAt": "created_at",
			"updatedAt": "updated_at",
		},
		Values: func(r *userRow) []any {
			return []any{r.ID, r.Name, r.Email, r.PasswordHash, r.CreatedAt, r.UpdatedAt}
		},
		SetID: func(r *userRow, id string) { r.ID = id },
		Timestamps: func(r *userRow) (*time.Time, *time.Time) {
			return &r.CreatedAt, &r.UpdatedAt
		},
		ToDomain: userRow.toDomain,
		ToSchema: userToRow,
		PatchToSchema: func(p models.UserPatch) Changes[userRow] {
			c := Changes[userRow]{Columns: map[string]any{}, Relations: map[string]func(*userRow){}}
			if p.Name != nil {
				c.Columns["name"] = *p.Name
			}
			if p.Email != nil {
				c.Columns["email"] = *p.Email
			}
			if p.PasswordHash != nil {
				c.Columns["password_hash"] = *p.PasswordHash
			}
			if p.Roles != nil {
				roles := rolesToRows(*p.Roles)
				c.Relations["roles"] = func(r *userRow) { r.Roles = roles }
			}
			return c
		},
		PullEvents: func(u *models.User) []events.Event { return u.PullEvents() },
		Relations:  map[string]Relation[userRow]{"roles": userRoles()},
		JoinTables: []JoinTable{{Name: "user_roles", Column: "user_id"}},
	}
}

// UserRepository stores users and their role assignments.
type UserRepository struct {
	engine *Engine[models.User, userRow, models.UserPatch]
}

var _ storage.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{engine: NewEngine(db, userMapping())}
}

func (r *UserRepository) WithUnitOfWork(u *UnitOfWork) *UserRepository {
	return &UserRepository{engine: r.engine.WithUnitOfWork(u)}
}

func (r *UserRepository) FindByID(ctx context.Context, id string, relations ...string) (models.User, error) {
	return r.engine.FindByID(ctx, id, relations...)
}

// FindByEmail matches the address exactly and loads roles with their
// permissions.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.engine.FindOne(ctx, storage.FindOptions{
		Filter:    storage.Filter{storage.Where("email", email)},
		Relations: []string{"roles", "roles.permissions"},
	})
}

func (r *UserRepository) FindAll(ctx context.Context, opts storage.FindOptions) ([]models.User, error) {
	return r.engine.FindAll(ctx, opts)
}

func (r *UserRepository) FindAllWithRoles(ctx context.Context) ([]models.User, error) {
	return r.engine.FindAll(ctx, storage.FindOptions{
		Relations: []string{"roles"},
		OrderBy:   []storage.Order{{Field: "createdAt", Direction: storage.Asc}},
	})
}

func (r *UserRepository) Count(ctx context.Context, filter storage.Filter) (int, error) {
	return r.engine.Count(ctx, filter)
}

func (r *UserRepository) Save(ctx context.Context, u models.User) (models.User, error) {
	return r.engine.Save(ctx, u)
}

func (r *UserRepository) Edit(ctx context.Context, id string, patch models.UserPatch) (models.User, error) {
	return r.engine.Edit(ctx, id, patch)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.engine.Delete(ctx, id)
}
