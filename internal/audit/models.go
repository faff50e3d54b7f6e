package audit

import "time"

// Event is an immutable, append-only audit record of an auth decision.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; auth flows never block or fail on audit.
//
// Storage (Postgres):
//
//	CREATE TABLE admin_audit_log (
//	  id            uuid PRIMARY KEY,
//	  actor_user_id text,
//	  admin_id      text,
//	  action        text NOT NULL,
//	  resource      text,
//	  resource_id   text,
//	  status        text NOT NULL,
//	  ip_address    text,
//	  metadata      jsonb,
//	  created_at    timestamptz NOT NULL
//	);
type Event struct {
	ID string `json:"id" db:"id"`

	// ActorUserID is the identity causing the event; empty for anonymous login attempts.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	AdminID     string `json:"admin_id,omitempty" db:"admin_id"`

	Action     Action `json:"action" db:"action"`
	Resource   string `json:"resource,omitempty" db:"resource"`
	ResourceID string `json:"resource_id,omitempty" db:"resource_id"`
	Status     Status `json:"status" db:"status"`

	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Metadata carries the internal reason behind generic user-facing errors.
	Metadata map[string]string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Action string

const (
	ActionLogin     Action = "auth.login"
	ActionRefresh   Action = "auth.refresh"
	ActionLogout    Action = "auth.logout"
	ActionLogoutAll Action = "auth.logout_all"
	ActionAccess    Action = "guard.access"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)
