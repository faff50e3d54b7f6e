package auth

import (
	"time"

	"taskplanner-admin/internal/rbac"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// SessionPayload is what an access token carries. It is immutable once signed;
// a refresh produces a new payload with the same SessionID.
type SessionPayload struct {
	UserID      string         `json:"user_id"`
	AdminID     string         `json:"admin_id"`
	Email       string         `json:"email"`
	Role        rbac.Role      `json:"role"`
	Permissions rbac.Overrides `json:"permissions,omitempty"`
	SessionID   string         `json:"session_id"`
	IssuedAt    time.Time      `json:"issued_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

type RefreshPayload struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Type      TokenType `json:"type"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// accessClaims is the wire shape of an access token. The user id travels in sub.
type accessClaims struct {
	jwt.RegisteredClaims

	AdminID     string         `json:"admin_id"`
	Email       string         `json:"email"`
	Role        rbac.Role      `json:"role"`
	Permissions rbac.Overrides `json:"permissions,omitempty"`
	SessionID   string         `json:"sid"`
	TokenType   TokenType      `json:"token_type"`
}

// refreshClaims never carry role or permissions; those are reloaded on refresh.
type refreshClaims struct {
	jwt.RegisteredClaims

	SessionID string    `json:"sid"`
	TokenType TokenType `json:"token_type"`
}
