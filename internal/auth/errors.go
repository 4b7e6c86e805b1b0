package auth

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	// ErrUnauthorized means no usable token reached an authorization checkpoint.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the token is valid but carries none of the required roles.
	ErrForbidden = errors.New("forbidden")
)
