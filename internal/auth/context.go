package auth

import "context"

type ctxKey int

const claimsKey ctxKey = iota

// ContextWithClaims stores verified claims on ctx.
func ContextWithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromContext returns the claims stored by ContextWithClaims.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}
