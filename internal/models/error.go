package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrInvalidCredentials is the single client-facing error for every rejected
	// credential attempt; the recorded auth event carries the precise reason.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrStoreUnavailable wraps infrastructure failures that must abort an attempt
	ErrStoreUnavailable = errors.New("security store unavailable")
)
