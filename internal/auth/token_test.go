package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "all-in-iam", time.Hour)

	raw, exp, err := tm.Generate(Payload{Subject: "42", Email: "a@x.com", Roles: []string{"standard user"}})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := tm.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, Payload{Subject: "42", Email: "a@x.com", Roles: []string{"standard user"}}, claims.Payload())
	assert.Equal(t, "all-in-iam", claims.Issuer)
}

func TestVerifyExpiredIsDistinct(t *testing.T) {
	tm := NewTokenManager("secret", "", time.Minute)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	raw, _, err := tm.Generate(Payload{Subject: "1"})
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.Verify(raw)

	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrTokenInvalid)
}

func makeToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerifyRejectsInvalidTokens(t *testing.T) {
	tm := NewTokenManager("secret", "all-in-iam", time.Hour)
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", makeToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{Subject: "1", Issuer: "all-in-iam", ExpiresAt: exp})},
		{"wrong algorithm", makeToken(t, jwt.SigningMethodHS512, []byte("secret"), jwt.RegisteredClaims{Subject: "1", Issuer: "all-in-iam", ExpiresAt: exp})},
		{"none algorithm", makeToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.RegisteredClaims{Subject: "1", Issuer: "all-in-iam", ExpiresAt: exp})},
		{"missing expiry", makeToken(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{Subject: "1", Issuer: "all-in-iam"})},
		{"missing subject", makeToken(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{Issuer: "all-in-iam", ExpiresAt: exp})},
		{"wrong issuer", makeToken(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{Subject: "1", Issuer: "elsewhere", ExpiresAt: exp})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.Verify(tt.raw)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}

func TestGenerateWritesEmptyRoleList(t *testing.T) {
	tm := NewTokenManager("secret", "all-in-iam", time.Hour)
	raw, _, err := tm.Generate(Payload{Subject: "42", Email: "a@x.com"})
	require.NoError(t, err)

	mc := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(raw, mc)
	require.NoError(t, err)
	assert.Equal(t, []any{}, mc["roles"])

	claims, err := tm.Verify(raw)
	require.NoError(t, err)
	assert.Empty(t, claims.Roles)
}
