package sqlstore

import (
	"context"

	"github.com/hongminglow/all-in-iam/internal/storage"
)

// Store exposes the repositories over one database.
type Store struct {
	db          *DB
	users       *UserRepository
	roles       *RoleRepository
	permissions *PermissionRepository
}

var _ storage.Store = (*Store)(nil)

func NewStore(db *DB) *Store {
	return &Store{
		db:          db,
		users:       NewUserRepository(db),
		roles:       NewRoleRepository(db),
		permissions: NewPermissionRepository(db),
	}
}

func (s *Store) Users() storage.UserRepository { return s.users }

func (s *Store) Roles() storage.RoleRepository { return s.roles }

func (s *Store) Permissions() storage.PermissionRepository { return s.permissions }

// WithinUnitOfWork hands fn repositories bound to one transaction.
func (s *Store) WithinUnitOfWork(ctx context.Context, fn func(storage.Repositories) error) error {
	return s.db.WithinUnitOfWork(ctx, func(u *UnitOfWork) error {
		return fn(boundRepositories{
			users:       s.users.WithUnitOfWork(u),
			roles:       s.roles.WithUnitOfWork(u),
			permissions: s.permissions.WithUnitOfWork(u),
		})
	})
}

type boundRepositories struct {
	users       *UserRepository
	roles       *RoleRepository
	permissions *PermissionRepository
}

func (b boundRepositories) Users() storage.UserRepository { return b.users }

func (b boundRepositories) Roles() storage.RoleRepository { return b.roles }

func (b boundRepositories) Permissions() storage.PermissionRepository { return b.permissions }
