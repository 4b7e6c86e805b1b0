package sqlstore

import (
	"context"
	"time"

	"github.com/hongminglow/all-in-iam/internal/events"
	"github.com/hongminglow/all-in-iam/internal/models"
	"github.com/hongminglow/all-in-iam/internal/storage"
)

type permissionRow struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

var permissionTable = Table[permissionRow]{
	Name:    "permissions",
	Columns: []string{"id", "name", "created_at", "updated_at"},
	Scan: func(sc scanner) (permissionRow, error) {
		var r permissionRow
		err := sc.Scan(&r.ID, &r.Name, &r.CreatedAt, &r.UpdatedAt)
		return r, err
	},
	ID: func(r *permissionRow) string { return r.ID },
}

func (r permissionRow) toDomain() models.Permission {
	return models.Permission{
		ID:            r.ID,
		Name:          r.Name,
		AggregateRoot: models.AggregateRoot{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
	}
}

func permissionToRow(p models.Permission) permissionRow {
	return permissionRow{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
}

func permissionMapping() Mapping[models.Permission, permissionRow, models.PermissionPatch] {
	return Mapping[models.Permission, permissionRow, models.PermissionPatch]{
		Entity: "permission",
		Table:  permissionTable,
		Fields: map[string]string{
			"id":        "id",
			"name":      "name",
			"createdAt": "created_at",
			"updatedAt": "updated_at",
		},
		Values: func(r *permissionRow) []any {
			return []any{r.ID, r.Name, r.CreatedAt, r.UpdatedAt}
		},
		SetID: func(r *permissionRow, id string) { r.ID = id },
		Timestamps: func(r *permissionRow) (*time.Time, *time.Time) {
			return &r.CreatedAt, &r.UpdatedAt
		},
		ToDomain: permissionRow.toDomain,
		ToSchema: permissionToRow,
		PatchToSchema: func(p models.PermissionPatch) Changes[permissionRow] {
			c := Changes[permissionRow]{Columns: map[string]any{}}
			if p.Name != nil {
				c.Columns["name"] = *p.Name
			}
			return c
		},
		PullEvents: func(p *models.Permission) []events.Event { return p.PullEvents() },
		JoinTables: []JoinTable{{Name: "role_permissions", Column: "permission_id"}},
	}
}

// PermissionRepository stores permissions.
type PermissionRepository struct {
	engine *Engine[models.Permission, permissionRow, models.PermissionPatch]
}

var _ storage.PermissionRepository = (*PermissionRepository)(nil)

func NewPermissionRepository(db *DB) *PermissionRepository {
	return &PermissionRepository{engine: NewEngine(db, permissionMapping())}
}

func (r *PermissionRepository) WithUnitOfWork(u *UnitOfWork) *PermissionRepository {
	return &PermissionRepository{engine: r.engine.WithUnitOfWork(u)}
}

func (r *PermissionRepository) FindByID(ctx context.Context, id string, relations ...string) (models.Permission, error) {
	return r.engine.FindByID(ctx, id, relations...)
}

func (r *PermissionRepository) FindByName(ctx context.Context, name string) (models.Permission, error) {
	return r.engine.FindOne(ctx, storage.FindOptions{Filter: storage.Filter{storage.Where("name", name)}})
}

func (r *PermissionRepository) FindAll(ctx context.Context, opts storage.FindOptions) ([]models.Permission, error) {
	return r.engine.FindAll(ctx, opts)
}

func (r *PermissionRepository) Save(ctx context.Context, p models.Permission) (models.Permission, error) {
	return r.engine.Save(ctx, p)
}

func (r *PermissionRepository) Edit(ctx context.Context, id string, patch models.PermissionPatch) (models.Permission, error) {
	return r.engine.Edit(ctx, id, patch)
}

func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	return r.engine.Delete(ctx, id)
}
