// Package storage defines the persistence ports used by the services.
package storage

import (
	"context"
	"errors"

	"github.com/hongminglow/all-in-iam/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// ErrInvalidQuery indicates a filter, order or relation the repository does
// not know about.
var ErrInvalidQuery = errors.New("invalid query")

// UserRepository persists users and their role assignments.
type UserRepository interface {
	FindByID(ctx context.Context, id string, relations ...string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindAll(ctx context.Context, opts FindOptions) ([]models.User, error)
	FindAllWithRoles(ctx context.Context) ([]models.User, error)
	Count(ctx context.Context, filter Filter) (int, error)
	Save(ctx context.Context, user models.User) (models.User, error)
	Edit(ctx context.Context, id string, patch models.UserPatch) (models.User, error)
	Delete(ctx context.Context, id string) error
}

// RoleRepository persists roles and their permission sets.
type RoleRepository interface {
	FindByID(ctx context.Context, id string, relations ...string) (models.Role, error)
	FindByName(ctx context.Context, name string) (models.Role, error)
	FindAll(ctx context.Context, opts FindOptions) ([]models.Role, error)
	FindAllWithPermissions(ctx context.Context) ([]models.Role, error)
	Save(ctx context.Context, role models.Role) (models.Role, error)
	Edit(ctx context.Context, id string, patch models.RolePatch) (models.Role, error)
	Delete(ctx context.Context, id string) error
}

type PermissionRepository interface {
	FindByID(ctx context.Context, id string, relations ...string) (models.Permission, error)
	FindByName(ctx context.Context, name string) (models.Permission, error)
	FindAll(ctx context.Context, opts FindOptions) ([]models.Permission, error)
	Save(ctx context.Context, perm models.Permission) (models.Permission, error)
	Edit(ctx context.Context, id string, patch models.PermissionPatch) (models.Permission, error)
	Delete(ctx context.Context, id string) error
}

// Repositories groups the entity repositories of one scope.
type Repositories interface {
	Users() UserRepository
	Roles() RoleRepository
	Permissions() PermissionRepository
}

// Store hands out repositories and runs multi-step writes atomically. Events
// collected inside fn are published only after the transaction commits.
type Store interface {
	Repositories
	WithinUnitOfWork(ctx context.Context, fn func(Repositories) error) error
}

// IDGenerator issues identifiers for new entities.
type IDGenerator interface {
	NewID() string
}
