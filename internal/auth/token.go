package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Payload is what a session token asserts about its holder.
type Payload struct {
	Subject string
	Email   string
	Roles   []string
}

// Claims is the signed form of a Payload.
type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Payload returns the identity carried by the claims.
func (c Claims) Payload() Payload {
	return Payload{Subject: c.Subject, Email: c.Email, Roles: c.Roles}
}

// TokenManager issues and verifies HS256 JWTs. Tokens are stateless: role
// changes take effect when the holder logs in again.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a manager with the provided secret, issuer, and lifetime.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate signs p and returns the token with its expiry.
func (t *TokenManager) Generate(p Payload) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	claims := Claims{
		Email: p.Email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, algorithm, expiry and issuer. Expired tokens yield
// ErrTokenExpired; every other failure yields ErrTokenInvalid.
func (t *TokenManager) Verify(raw string) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}
