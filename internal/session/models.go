package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrStorageUnavailable wraps every persistence failure. Callers must surface it
// as-is and never read it as "session invalid".
var ErrStorageUnavailable = errors.New("session: storage unavailable")

func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

// Record is one persisted admin session.
//
// Rows are never deleted here; logout sets InvalidatedAt. Retention is handled
// outside the auth core.
type Record struct {
	ID             string     `json:"id" db:"id"`
	AdminUserID    string     `json:"admin_user_id" db:"admin_user_id"`
	TokenHash      string     `json:"-" db:"token_hash"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at" db:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at" db:"expires_at"`
	InvalidatedAt  *time.Time `json:"invalidated_at,omitempty" db:"invalidated_at"`
	IPAddress      string     `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent      string     `json:"user_agent,omitempty" db:"user_agent"`
}

// Active reports whether the row can still back a refresh at now.
func (r Record) Active(now time.Time) bool {
	return r.InvalidatedAt == nil && now.Before(r.ExpiresAt)
}

// HashToken returns the hex SHA-256 of a token. Raw tokens are never stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func TokenHashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
