package model

import "errors"

var (
	// Credential related errors. Unknown user and wrong password are
	// reported identically to avoid account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")
	ErrLockedOut          = errors.New("locked out")

	// Access related errors
	ErrMachineAccessDenied = errors.New("machine access denied")
	ErrShiftAccessDenied   = errors.New("shift access denied")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")

	// Token related errors
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrRefreshFailed = errors.New("refresh failed")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
