package session

import (
	"context"
	"time"
)

// Gateway is the narrow persistence contract used by the auth service.
//
// Implementations perform blocking I/O; callers must not hold locks across calls.
// Every failure wraps ErrStorageUnavailable.
type Gateway interface {
	Create(ctx context.Context, r Record) error
	// FindActive returns the row when it exists, is not invalidated and has not expired.
	FindActive(ctx context.Context, id string) (Record, bool, error)
	// Invalidate is idempotent; unknown or already-invalidated ids are not an error.
	Invalidate(ctx context.Context, id string) error
	// InvalidateAll ends every active session of the admin except exceptID (may be empty).
	InvalidateAll(ctx context.Context, adminUserID, exceptID string) error
	// Touch rotates the token hash and activity time of an active row only.
	// It reports false when the row was invalidated or expired in the meantime.
	Touch(ctx context.Context, id, tokenHash string, at time.Time) (bool, error)
	ListByAdmin(ctx context.Context, adminUserID string) ([]Record, error)
}
