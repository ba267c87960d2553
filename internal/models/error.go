package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login flow errors
	ErrInputInvalid   = errors.New("input invalid")
	ErrRateLimited    = errors.New("too many failed login attempts")
	ErrTransientStore = errors.New("transient store fault")

	// Session state errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrHijackSuspected = errors.New("session fingerprint mismatch")
)
