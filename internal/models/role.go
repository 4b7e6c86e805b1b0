package models

import (
	"slices"
	"time"

	"github.com/hongminglow/all-in-iam/internal/events"
)

const (
	RoleAdmin   = "administrator"
	RoleUser    = "standard user"
	RoleVisitor = "visitor"
)

// Role groups permissions and is assigned to users.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions,omitempty"`
	AggregateRoot
}

// RolePatch lists the fields an edit may change. Nil means untouched.
type RolePatch struct {
	Name        *string
	Permissions *[]Permission
}

func NewRole(id, name string, now time.Time) *Role {
	r := &Role{
		ID:            id,
		Name:          name,
		AggregateRoot: AggregateRoot{CreatedAt: now, UpdatedAt: now},
	}
	r.Raise(events.New("role.created", "role", id, now, map[string]any{"name": name}))
	return r
}

// SetPermissions replaces the permission set, dropping duplicate ids. A
// change of the set raises role.permissions_changed.
func (r *Role) SetPermissions(perms []Permission, now time.Time) {
	next := make([]Permission, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		next = append(next, p)
	}

	before := permissionIDs(r.Permissions)
	after := permissionIDs(next)
	r.Permissions = next
	if slices.Equal(before, after) {
		return
	}
	r.Raise(events.New("role.permissions_changed", "role", r.ID, now, map[string]any{
		"role":        r.Name,
		"permissions": r.PermissionNames(),
	}))
}

func (r *Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	return names
}

func permissionIDs(perms []Permission) []string {
	ids := make([]string, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	slices.Sort(ids)
	return ids
}
