package middleware

import (
	"errors"

	"github.com/jovyweb/authcore/internal/auth"
	appErrors "github.com/jovyweb/authcore/pkg/errors"
)

// AuthError maps auth service failures onto API errors.
func AuthError(err error) *appErrors.AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrRateLimited):
		return appErrors.ErrRateLimit
	case errors.Is(err, auth.ErrInvalidCredentials):
		return appErrors.ErrInvalidCredentials
	case errors.Is(err, auth.ErrPermissionDenied):
		return appErrors.ErrForbidden
	case errors.Is(err, auth.ErrFingerprintMismatch):
		return appErrors.ErrDeviceNotRecognized
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrNoActiveSession):
		return appErrors.ErrUnauthorized
	}
	return appErrors.FromError(err)
}
