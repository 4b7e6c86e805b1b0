package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/all-in-iam/internal/auth"
	"github.com/hongminglow/all-in-iam/internal/models"
	"github.com/hongminglow/all-in-iam/internal/storage"
)

func TestEnsureDefaultsIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seeder := NewSeeder(svc, "", "")

	require.NoError(t, seeder.EnsureDefaults(ctx))
	first, err := store.Roles().FindAllWithPermissions(ctx)
	require.NoError(t, err)

	require.NoError(t, seeder.EnsureDefaults(ctx))

	perms, err := store.Permissions().FindAll(ctx, storage.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, perms, len(DefaultPermissions))

	second, err := store.Roles().FindAllWithPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, second, 3)
	for i := range first {
		assert.Equal(t, first[i].Name, second[i].Name)
		assert.ElementsMatch(t, first[i].PermissionNames(), second[i].PermissionNames())
	}

	admins, err := store.Users().FindAll(ctx, storage.FindOptions{
		Filter: storage.Filter{storage.Where("email", DefaultAdminEmail)},
	})
	require.NoError(t, err)
	assert.Len(t, admins, 1)
}

func TestEnsureDefaultsRolePermissions(t *testing.T) {
	_, store := seeded(t)
	ctx := context.Background()

	tests := []struct {
		role string
		want []string
	}{
		{models.RoleAdmin, DefaultPermissions},
		{models.RoleUser, []string{"user_read", "product_read"}},
		{models.RoleVisitor, []string{"product_read"}},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			role, err := store.Roles().FindByName(ctx, tt.role)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, role.PermissionNames())
		})
	}

	admin, err := store.Users().FindByEmail(ctx, DefaultAdminEmail)
	require.NoError(t, err)
	assert.Equal(t, []string{models.RoleAdmin}, admin.RoleNames())
	assert.NoError(t, auth.ComparePassword(admin.PasswordHash, "password"))
}

func TestEnsureDefaultsRestoresTamperedRole(t *testing.T) {
	svc, store := seeded(t)
	ctx := context.Background()
	visitor, err := store.Roles().FindByName(ctx, models.RoleVisitor)
	require.NoError(t, err)
	empty := []models.Permission{}
	_, err = store.Roles().Edit(ctx, visitor.ID, models.RolePatch{Permissions: &empty})
	require.NoError(t, err)

	require.NoError(t, NewSeeder(svc, "", "").EnsureDefaults(ctx))

	visitor, err = store.Roles().FindByName(ctx, models.RoleVisitor)
	require.NoError(t, err)
	assert.Equal(t, []string{"product_read"}, visitor.PermissionNames())
}
