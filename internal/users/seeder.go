package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hongminglow/all-in-iam/internal/events"
	"github.com/hongminglow/all-in-iam/internal/models"
	"github.com/hongminglow/all-in-iam/internal/storage"
)

// DefaultPermissions is the permission catalogue created at startup.
var DefaultPermissions = []string{
	"user_read", "user_create", "user_update", "user_delete",
	"role_read", "role_create", "role_update", "role_delete",
	"product_read", "product_create",
}

// DefaultAdminEmail is the account created when no administrator exists.
const DefaultAdminEmail = "admin@example.com"

// Seeder creates the default permissions, roles and administrator.
type Seeder struct {
	users         *Service
	adminEmail    string
	adminPassword string
	logger        *slog.Logger
}

func NewSeeder(users *Service, adminEmail, adminPassword string) *Seeder {
	if adminEmail == "" {
		adminEmail = DefaultAdminEmail
	}
	if adminPassword == "" {
		adminPassword = "password"
	}
	return &Seeder{users: users, adminEmail: adminEmail, adminPassword: adminPassword, logger: users.logger}
}

// rolePermissions decides which catalogue entries each default role gets.
var rolePermissions = []struct {
	role  string
	match func(string) bool
}{
	{models.RoleAdmin, func(string) bool { return true }},
	{models.RoleUser, func(p string) bool {
		return strings.HasPrefix(p, "user_read") || strings.HasPrefix(p, "product_read")
	}},
	{models.RoleVisitor, func(p string) bool { return p == "product_read" }},
}

// EnsureDefaults is idempotent. Role permission sets are overwritten with the
// defaults on every run.
func (s *Seeder) EnsureDefaults(ctx context.Context) error {
	err := s.users.store.WithinUnitOfWork(ctx, func(r storage.Repositories) error {
		perms := make([]models.Permission, 0, len(DefaultPermissions))
		for _, name := range DefaultPermissions {
			p, err := s.ensurePermission(ctx, r, name)
			if err != nil {
				return err
			}
			perms = append(perms, p)
		}
		existing, err := r.Roles().FindAllWithPermissions(ctx)
		if err != nil {
			return fmt.Errorf("load roles: %w", err)
		}
		byName := make(map[string]models.Role, len(existing))
		for _, role := range existing {
			byName[role.Name] = role
		}
		for _, rp := range rolePermissions {
			var granted []models.Permission
			for _, p := range perms {
				if rp.match(p.Name) {
					granted = append(granted, p)
				}
			}
			role, existed := byName[rp.role]
			if err := s.ensureRole(ctx, r, rp.role, role, existed, granted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, events.ErrPublish) {
		return fmt.Errorf("seed roles and permissions: %w", err)
	}

	_, err = s.users.store.Users().FindByEmail(ctx, s.adminEmail)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("find admin: %w", err)
	}

	admin, err := s.users.CreateWithRole(ctx, CreateInput{
		Name:     "Administrator",
		Email:    s.adminEmail,
		Password: s.adminPassword,
	}, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.logger.InfoContext(ctx, "default administrator created", slog.String("user_id", admin.ID), slog.String("email", admin.Email))
	return nil
}

func (s *Seeder) ensurePermission(ctx context.Context, r storage.Repositories, name string) (models.Permission, error) {
	p, err := r.Permissions().FindByName(ctx, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.Permission{}, fmt.Errorf("find permission %s: %w", name, err)
	}
	created := models.NewPermission(s.users.ids.NewID(), name, s.users.now())
	return r.Permissions().Save(ctx, *created)
}

func (s *Seeder) ensureRole(ctx context.Context, r storage.Repositories, name string, role models.Role, existed bool, perms []models.Permission) error {
	if !existed {
		role = *models.NewRole(s.users.ids.NewID(), name, s.users.now())
	}
	if perms == nil {
		perms = []models.Permission{}
	}
	role.SetPermissions(perms, s.users.now())
	pending := role.PullEvents()
	if existed && len(pending) == 0 {
		return nil
	}
	for _, evt := range pending {
		role.Raise(evt)
	}
	if _, err := r.Roles().Save(ctx, role); err != nil {
		return fmt.Errorf("save role %s: %w", name, err)
	}
	return nil
}
