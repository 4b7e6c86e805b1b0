package models

import (
	"time"

	"github.com/hongminglow/all-in-iam/internal/events"
)

// Permission is a named capability attached to roles.
type Permission struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	AggregateRoot
}

// PermissionPatch lists the fields an edit may change. Nil means untouched.
type PermissionPatch struct {
	Name *string
}

func NewPermission(id, name string, now time.Time) *Permission {
	p := &Permission{
		ID:            id,
		Name:          name,
		AggregateRoot: AggregateRoot{CreatedAt: now, UpdatedAt: now},
	}
	p.Raise(events.New("permission.created", "permission", id, now, map[string]any{"name": name}))
	return p
}
