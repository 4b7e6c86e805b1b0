package auth

import "fmt"

// Decision is the outcome of a role check.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

// Authorize grants access when the caller holds at least one of the required
// roles. A nil or empty requirement means the handler is public.
func Authorize(callerRoles, required []string) Decision {
	if len(required) == 0 {
		return Allow
	}
	if len(callerRoles) == 0 {
		return Deny
	}
	for _, have := range callerRoles {
		for _, want := range required {
			if have == want {
				return Allow
			}
		}
	}
	return Deny
}

// Check turns a checkpoint into an error. Without claims it returns
// ErrUnauthorized, joined with tokenErr when a token was sent but rejected.
// Claims holding none of the required roles yield ErrForbidden.
func Check(claims Claims, authenticated bool, tokenErr error, required []string) error {
	if !authenticated {
		if tokenErr != nil {
			return fmt.Errorf("%w: %w", ErrUnauthorized, tokenErr)
		}
		return ErrUnauthorized
	}
	if Authorize(claims.Roles, required) == Deny {
		return ErrForbidden
	}
	return nil
}
