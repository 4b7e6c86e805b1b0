package models

import (
	"time"

	"github.com/hongminglow/all-in-iam/internal/events"
)

// User captures an identity that can log in and carries its roles.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Roles        []Role `json:"roles,omitempty"`
	AggregateRoot
}

// UserPatch lists the fields an edit may change. Nil means untouched.
type UserPatch struct {
	Name         *string
	Email        *string
	PasswordHash *string
	Roles        *[]Role
}

// NewUser builds a user and raises user.created.
func NewUser(id, name, email, passwordHash string, roles []Role, now time.Time) *User {
	u := &User{
		ID:            id,
		Name:          name,
		Email:         email,
		PasswordHash:  passwordHash,
		Roles:         roles,
		AggregateRoot: AggregateRoot{CreatedAt: now, UpdatedAt: now},
	}
	u.Raise(events.New("user.created", "user", id, now, map[string]any{
		"email": email,
		"roles": u.RoleNames(),
	}))
	return u
}

func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}
