package sqlstore

import (
	"context"
	"time"

	"github.com/hongminglow/all-in-iam/internal/events"
	"github.com/hongminglow/all-in-iam/internal/models"
	"github.com/hongminglow/all-in-iam/internal/storage"
)

type roleRow struct {
	ID          string
	Name        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Permissions []permissionRow
}

var roleTable = Table[roleRow]{
	Name:    "roles",
	Columns: []string{"id", "name", "created_at", "updated_at"},
	Scan: func(sc scanner) (roleRow, error) {
		var r roleRow
		err := sc.Scan(&r.ID, &r.Name, &r.CreatedAt, &r.UpdatedAt)
		return r, err
	},
	ID: func(r *roleRow) string { return r.ID },
}

func (r roleRow) toDomain() models.Role {
	role := models.Role{
		ID:            r.ID,
		Name:          r.Name,
		AggregateRoot: models.AggregateRoot{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
	}
	if r.Permissions != nil {
		role.Permissions = make([]models.Permission, 0, len(r.Permissions))
		for _, p := range r.Permissions {
			role.Permissions = append(role.Permissions, p.toDomain())
		}
	}
	return role
}

func roleToRow(role models.Role) roleRow {
	row := roleRow{ID: role.ID, Name: role.Name, CreatedAt: role.CreatedAt, UpdatedAt: role.UpdatedAt}
	if role.Permissions != nil {
		row.Permissions = make([]permissionRow, 0, len(role.Permissions))
		for _, p := range role.Permissions {
			row.Permissions = append(row.Permissions, permissionToRow(p))
		}
	}
	return row
}

func rolePermissions() Relation[roleRow] {
	return ManyToMany[roleRow, permissionRow]{
		JoinTable:    "role_permissions",
		OwnerColumn:  "role_id",
		TargetColumn: "permission_id",
		Target:       permissionTable,
		OwnerID:      func(r *roleRow) string { return r.ID },
		Get:          func(r *roleRow) []permissionRow { return r.Permissions },
		Set:          func(r *roleRow, perms []permissionRow) { r.Permissions = perms },
	}
}

func roleMapping() Mapping[models.Role, roleRow, models.RolePatch] {
	return Mapping[models.Role, roleRow, models.RolePatch]{
		Entity: "role",
		Table:  roleTable,
		Fields: map[string]string{
			"id":        "id",
			"name":      "name",
			"createdAt": "created_at",
			"updatedAt": "updated_at",
		},
		Values: func(r *roleRow) []any {
			return []any{r.ID, r.Name, r.CreatedAt, r.UpdatedAt}
		},
		SetID: func(r *roleRow, id string) { r.ID = id },
		Timestamps: func(r *roleRow) (*time.Time, *time.Time) {
			return &r.CreatedAt, &r.UpdatedAt
		},
		ToDomain: roleRow.toDomain,
		ToSchema: roleToRow,
		PatchToSchema: func(p models.RolePatch) Changes[roleRow] {
			c := Changes[roleRow]{Columns: map[string]any{}, Relations: map[string]func(*roleRow){}}
			if p.Name != nil {
				c.Columns["name"] = *p.Name
			}
			if p.Permissions != nil {
				perms := roleToRow(models.Role{Permissions: *p.Permissions}).Permissions
				if perms == nil {
					perms = []permissionRow{}
				}
				c.Relations["permissions"] = func(r *roleRow) { r.Permissions = perms }
			}
			return c
		},
		PullEvents: func(r *models.Role) []events.Event { return r.PullEvents() },
		Relations:  map[string]Relation[roleRow]{"permissions": rolePermissions()},
		JoinTables: []JoinTable{
			{Name: "role_permissions", Column: "role_id"},
			{Name: "user_roles", Column: "role_id"},
		},
	}
}

// RoleRepository stores roles and their permission sets.
type RoleRepository struct {
	engine *Engine[models.Role, roleRow, models.RolePatch]
}

var _ storage.RoleRepository = (*RoleRepository)(nil)

func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{engine: NewEngine(db, roleMapping())}
}

func (r *RoleRepository) WithUnitOfWork(u *UnitOfWork) *RoleRepository {
	return &RoleRepository{engine: r.engine.WithUnitOfWork(u)}
}

func (r *RoleRepository) FindByID(ctx context.Context, id string, relations ...string) (models.Role, error) {
	return r.engine.FindByID(ctx, id, relations...)
}

// FindByName loads the role together with its permissions.
func (r *RoleRepository) FindByName(ctx context.Context, name string) (models.Role, error) {
	return r.engine.FindOne(ctx, storage.FindOptions{
		Filter:    storage.Filter{storage.Where("name", name)},
		Relations: []string{"permissions"},
	})
}

func (r *RoleRepository) FindAll(ctx context.Context, opts storage.FindOptions) ([]models.Role, error) {
	return r.engine.FindAll(ctx, opts)
}

func (r *RoleRepository) FindAllWithPermissions(ctx context.Context) ([]models.Role, error) {
	return r.engine.FindAll(ctx, storage.FindOptions{
		Relations: []string{"permissions"},
		OrderBy:   []storage.Order{{Field: "name", Direction: storage.Asc}},
	})
}

func (r *RoleRepository) Save(ctx context.Context, role models.Role) (models.Role, error) {
	return r.engine.Save(ctx, role)
}

func (r *RoleRepository) Edit(ctx context.Context, id string, patch models.RolePatch) (models.Role, error) {
	return r.engine.Edit(ctx, id, patch)
}

func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	return r.engine.Delete(ctx, id)
}
