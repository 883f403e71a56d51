package auth

import "errors"

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("auth: not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken indicates the bearer token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMFANotEnabled is returned when verifying a code for a user without a TOTP secret.
	ErrMFANotEnabled = errors.New("auth: mfa not enabled")
	// ErrInvalidMFACode indicates a wrong or expired TOTP code.
	ErrInvalidMFACode = errors.New("auth: invalid mfa code")
)
