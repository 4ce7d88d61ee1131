package shared

import "errors"

var (
	// ErrInvalidCredentials is returned when the backend rejects a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing is returned when no token was submitted or issued.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch is returned when the submitted token is stale or forged.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
