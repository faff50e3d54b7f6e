package auth

import (
	"errors"
	"fmt"
	"time"

	"taskplanner-admin/internal/session"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrRateLimited        = errors.New("auth: rate limited")
	ErrNotAuthorized      = errors.New("auth: not authorized")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrSessionExpired     = errors.New("auth: session expired")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrStorageUnavailable = session.ErrStorageUnavailable

	// ErrInvalidProfile is returned by profile loaders when a stored admin row
	// cannot be decoded. The service treats the admin as not authorized.
	ErrInvalidProfile = errors.New("auth: invalid admin profile")
)

// RateLimitedError carries the retry hint for a locked-out identifier.
type RateLimitedError struct {
	LockedUntil time.Time
	RetryAfter  time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%v: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// Reasons attached to SessionExpiredError.
const (
	ReasonSessionEnded  = "session_ended"
	ReasonAdminInactive = "admin_inactive"
)

// SessionExpiredError means the token was well-formed but its session can no longer be used.
type SessionExpiredError struct {
	Reason string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("%v: %s", ErrSessionExpired, e.Reason)
}

func (e *SessionExpiredError) Unwrap() error { return ErrSessionExpired }

// storageError makes sure err matches ErrStorageUnavailable without double wrapping.
func storageError(op string, err error) error {
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
