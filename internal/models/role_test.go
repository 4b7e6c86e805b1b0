package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetPermissionsDeduplicatesAndRaisesOnChange(t *testing.T) {
	now := time.Now()
	r := NewRole("1", RoleUser, now)
	r.PullEvents()
	read := *NewPermission("10", "user_read", now)
	write := *NewPermission("11", "user_write", now)

	r.SetPermissions([]Permission{read, write, read}, now)

	assert.Equal(t, []string{"user_read", "user_write"}, r.PermissionNames())
	evts := r.PullEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, "role.permissions_changed", evts[0].Name)
	assert.Equal(t, "1", evts[0].AggregateID)
}

func TestSetPermissionsSameSetIsSilent(t *testing.T) {
	now := time.Now()
	r := NewRole("1", RoleVisitor, now)
	r.PullEvents()
	read := *NewPermission("10", "product_read", now)
	r.Permissions = []Permission{read}

	r.SetPermissions([]Permission{read}, now)

	assert.Empty(t, r.PullEvents())
}

func TestNewUserRaisesCreated(t *testing.T) {
	now := time.Now()
	role := NewRole("2", RoleUser, now)
	u := NewUser("5", "Ana", "a@x.com", "hash", []Role{*role}, now)

	assert.True(t, u.HasRole(RoleUser))
	assert.False(t, u.HasRole(RoleAdmin))
	evts := u.PullEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, "user.created", evts[0].Name)
	assert.Equal(t, []string{RoleUser}, evts[0].Payload["roles"])
	assert.Empty(t, u.PullEvents())
}

func TestFactoriesRaiseCreated(t *testing.T) {
	now := time.Now()

	p := NewPermission("1", "user_read", now)
	r := NewRole("2", RoleAdmin, now)

	pe := p.PullEvents()
	require.Len(t, pe, 1)
	assert.Equal(t, "permission.created", pe[0].Name)
	re := r.PullEvents()
	require.Len(t, re, 1)
	assert.Equal(t, "role.created", re[0].Name)
	assert.Equal(t, now.UTC(), re[0].OccurredAt)
}
