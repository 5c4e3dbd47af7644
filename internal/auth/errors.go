package auth

import "errors"

// Errors surfaced by Service. Token failures are deliberately collapsed into
// ErrInvalidToken so callers cannot tell expired, revoked and forged tokens apart.
var (
	ErrRateLimited         = errors.New("auth: too many failed attempts")
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrPermissionDenied    = errors.New("auth: employee lacks access permission")
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrFingerprintMismatch = errors.New("auth: device fingerprint mismatch")
	ErrNoActiveSession     = errors.New("auth: no active session")
)

// ErrSigningKeyMissing is returned when the token authority is built without a
// secret. It is a configuration error and must stop startup.
var ErrSigningKeyMissing = errors.New("jwt: signing secret must be provided")
