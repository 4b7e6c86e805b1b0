package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		caller   []string
		required []string
		want     Decision
	}{
		{"public handler", nil, nil, Allow},
		{"empty requirement", []string{"visitor"}, []string{}, Allow},
		{"no caller roles", nil, []string{"administrator"}, Deny},
		{"single match", []string{"standard user"}, []string{"administrator", "standard user"}, Allow},
		{"no overlap", []string{"visitor"}, []string{"administrator", "standard user"}, Deny},
		{"one of many", []string{"visitor", "administrator"}, []string{"administrator"}, Allow},
		{"case sensitive", []string{"Administrator"}, []string{"administrator"}, Deny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.caller, tt.required))
		})
	}
}

func TestPolicy(t *testing.T) {
	p := NewPolicy()
	roles := []string{"administrator"}
	p.Require("POST", "/users", roles...)
	roles[0] = "mutated"

	got, ok := p.RequiredRoles("POST", "/users")
	assert.True(t, ok)
	assert.Equal(t, []string{"administrator"}, got)

	_, ok = p.RequiredRoles("GET", "/users")
	assert.False(t, ok)
}

func TestCheck(t *testing.T) {
	admin := Claims{Roles: []string{"administrator"}}
	visitor := Claims{Roles: []string{"visitor"}}
	required := []string{"administrator"}

	assert.NoError(t, Check(admin, true, nil, required))
	assert.ErrorIs(t, Check(visitor, true, nil, required), ErrForbidden)
	assert.ErrorIs(t, Check(Claims{}, false, nil, required), ErrUnauthorized)

	err := Check(Claims{}, false, ErrTokenExpired, required)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
