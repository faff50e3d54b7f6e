package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"taskplanner-admin/internal/audit"
	"taskplanner-admin/internal/metrics"
	"taskplanner-admin/internal/ratelimit"
	"taskplanner-admin/internal/rbac"
	"taskplanner-admin/internal/session"

	"github.com/google/uuid"
)

// Identity is a verified login identity.
type Identity struct {
	UserID string
	Email  string
}

// AdminProfile is the admin grant attached to an identity.
type AdminProfile struct {
	AdminID     string         `json:"admin_id"`
	UserID      string         `json:"user_id"`
	Email       string         `json:"email"`
	Role        rbac.Role      `json:"role"`
	Permissions rbac.Overrides `json:"permissions,omitempty"`
	IsActive    bool           `json:"is_active"`
}

// CredentialVerifier checks email+password. It returns ErrInvalidCredentials on mismatch
// and an ErrStorageUnavailable-wrapped error when the directory cannot be reached.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, email, password string) (Identity, error)
}

// ProfileLoader returns found=false when the user has no admin record.
type ProfileLoader interface {
	LoadAdmin(ctx context.Context, userID string) (AdminProfile, bool, error)
}

// AuditSink is fire-and-forget; it must never block the caller.
type AuditSink interface {
	Notify(ctx context.Context, e audit.Event)
}

type nopAudit struct{}

func (nopAudit) Notify(context.Context, audit.Event) {}

// Login states, used as metric labels and audit metadata.
const (
	StateRateLimited   = "rate_limited"
	StateDenied        = "denied"
	StateForbidden     = "forbidden"
	StateSessionIssued = "session_issued"
	StateError         = "error"
)

type Credentials struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	Access       SessionPayload
	Refresh      RefreshPayload
	Admin        AdminProfile
}

type RefreshResult struct {
	AccessToken string
	Access      SessionPayload
	// SessionExpiresAt is the hard end of the refresh chain.
	SessionExpiresAt time.Time
}

// Deps wires the Service collaborators. Audit and Logger are optional.
type Deps struct {
	Tokens     *Manager
	Limiter    *ratelimit.Limiter
	Sessions   session.Gateway
	Identities CredentialVerifier
	Profiles   ProfileLoader
	Policy     *rbac.Policy
	Audit      AuditSink
	Logger     *slog.Logger
}

// Service orchestrates login, refresh, logout and authorization.
// It keeps no per-call state; the rate limiter store is the only shared mutable state.
type Service struct {
	tokens     *Manager
	limiter    *ratelimit.Limiter
	sessions   session.Gateway
	identities CredentialVerifier
	profiles   ProfileLoader
	policy     *rbac.Policy
	audit      AuditSink
	log        *slog.Logger
	now        func() time.Time
}

func NewService(d Deps) (*Service, error) {
	switch {
	case d.Tokens == nil:
		return nil, errors.New("auth: token manager is required")
	case d.Limiter == nil:
		return nil, errors.New("auth: rate limiter is required")
	case d.Sessions == nil:
		return nil, errors.New("auth: session gateway is required")
	case d.Identities == nil || d.Profiles == nil:
		return nil, errors.New("auth: identity collaborators are required")
	}
	if d.Policy == nil {
		d.Policy = rbac.DefaultPolicy()
	}
	if d.Audit == nil {
		d.Audit = nopAudit{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		tokens:     d.Tokens,
		limiter:    d.Limiter,
		sessions:   d.Sessions,
		identities: d.Identities,
		profiles:   d.Profiles,
		policy:     d.Policy,
		audit:      d.Audit,
		log:        d.Logger,
		now:        time.Now,
	}, nil
}

func (s *Service) Tokens() *Manager { return s.tokens }

/* ===================== LOGIN ===================== */

func (s *Service) Login(ctx context.Context, cr Credentials) (LoginResult, error) {
	email := strings.TrimSpace(cr.Email)
	ev := audit.Event{Action: audit.ActionLogin, Resource: "session", IPAddress: cr.IPAddress}

	// The attempt is counted before the credential check so concurrent logins
	// share one budget; only a full success hands it back.
	st, err := s.limiter.Acquire(ctx, email)
	if err != nil {
		return s.loginError(ctx, ev, storageError("rate limit acquire", err))
	}
	if !st.Allowed {
		retry := st.RetryAfter(s.now())
		s.loginOutcome(ctx, ev, audit.StatusDenied, StateRateLimited, "locked_out")
		return LoginResult{}, &RateLimitedError{LockedUntil: st.LockedUntil, RetryAfter: retry}
	}

	ident, err := s.identities.VerifyCredentials(ctx, email, cr.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		s.loginOutcome(ctx, ev, audit.StatusFailure, StateDenied, "bad_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return s.loginError(ctx, ev, storageError("verify credentials", err))
	}
	ev.ActorUserID = ident.UserID

	profile, found, err := s.profiles.LoadAdmin(ctx, ident.UserID)
	if errors.Is(err, ErrInvalidProfile) {
		s.log.Error("admin profile rejected", "user_id", ident.UserID, "err", err)
		s.loginOutcome(ctx, ev, audit.StatusDenied, StateForbidden, "invalid_profile")
		return LoginResult{}, ErrNotAuthorized
	}
	if err != nil {
		return s.loginError(ctx, ev, storageError("load admin", err))
	}
	if reason := inactiveReason(profile, found); reason != "" {
		// The acquired attempt stays counted so inactive accounts look the same
		// as bad passwords.
		ev.AdminID = profile.AdminID
		s.loginOutcome(ctx, ev, audit.StatusDenied, StateForbidden, reason)
		return LoginResult{}, ErrNotAuthorized
	}
	ev.AdminID = profile.AdminID

	if err := s.limiter.Record(ctx, email, true); err != nil {
		return s.loginError(ctx, ev, storageError("rate limit reset", err))
	}

	sessionID := uuid.NewString()
	access, accessPayload, err := s.tokens.IssueAccessToken(SessionPayload{
		UserID:      ident.UserID,
		AdminID:     profile.AdminID,
		Email:       firstNonEmpty(profile.Email, ident.Email, email),
		Role:        profile.Role,
		Permissions: profile.Permissions,
		SessionID:   sessionID,
	})
	if err != nil {
		return s.loginError(ctx, ev, err)
	}
	refresh, refreshPayload, err := s.tokens.IssueRefreshToken(ident.UserID, sessionID)
	if err != nil {
		return s.loginError(ctx, ev, err)
	}

	now := accessPayload.IssuedAt
	if err := s.sessions.Create(ctx, session.Record{
		ID:             sessionID,
		AdminUserID:    profile.AdminID,
		TokenHash:      session.HashToken(access),
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      refreshPayload.ExpiresAt,
		IPAddress:      cr.IPAddress,
		UserAgent:      cr.UserAgent,
	}); err != nil {
		return s.loginError(ctx, ev, storageError("create session", err))
	}

	ev.ResourceID = sessionID
	s.loginOutcome(ctx, ev, audit.StatusSuccess, StateSessionIssued, "")
	s.log.Info("admin login", "admin_id", profile.AdminID, "session_id", sessionID, "role", profile.Role)

	return LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		Access:       accessPayload,
		Refresh:      refreshPayload,
		Admin:        profile,
	}, nil
}

func inactiveReason(p AdminProfile, found bool) string {
	switch {
	case !found:
		return "no_admin_record"
	case !p.IsActive:
		return "admin_inactive"
	case !p.Role.Valid():
		return "unknown_role"
	}
	return ""
}

func (s *Service) loginOutcome(ctx context.Context, ev audit.Event, status audit.Status, state, reason string) {
	metrics.RecordLogin(state)
	ev.Status = status
	ev.Metadata = map[string]string{"state": state}
	if reason != "" {
		ev.Metadata["reason"] = reason
	}
	s.audit.Notify(ctx, ev)
}

func (s *Service) loginError(ctx context.Context, ev audit.Event, err error) (LoginResult, error) {
	s.log.Error("admin login failed", "err", err)
	s.loginOutcome(ctx, ev, audit.StatusFailure, StateError, "internal")
	return LoginResult{}, err
}

/* ===================== REFRESH ===================== */

// Refresh mints a new access token for the same session. It never re-checks the
// password, but it reloads the admin profile so role and permission changes apply.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	rp, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		metrics.RecordRefresh("invalid_token")
		return RefreshResult{}, ErrInvalidToken
	}
	ev := audit.Event{Action: audit.ActionRefresh, Resource: "session", ResourceID: rp.SessionID, ActorUserID: rp.UserID}

	rec, ok, err := s.sessions.FindActive(ctx, rp.SessionID)
	if err != nil {
		return RefreshResult{}, s.refreshError(ctx, ev, storageError("find session", err))
	}
	if !ok || !s.now().Before(rec.ExpiresAt) {
		return RefreshResult{}, s.refreshExpired(ctx, ev, ReasonSessionEnded)
	}

	profile, found, err := s.profiles.LoadAdmin(ctx, rp.UserID)
	if errors.Is(err, ErrInvalidProfile) {
		s.log.Error("admin profile rejected", "user_id", rp.UserID, "err", err)
		found = false
	} else if err != nil {
		return RefreshResult{}, s.refreshError(ctx, ev, storageError("load admin", err))
	}
	if inactiveReason(profile, found) != "" || profile.AdminID != rec.AdminUserID {
		if err := s.sessions.Invalidate(ctx, rec.ID); err != nil {
			return RefreshResult{}, s.refreshError(ctx, ev, storageError("invalidate session", err))
		}
		return RefreshResult{}, s.refreshExpired(ctx, ev, ReasonAdminInactive)
	}
	ev.AdminID = profile.AdminID

	access, payload, err := s.tokens.IssueAccessToken(SessionPayload{
		UserID:      rp.UserID,
		AdminID:     profile.AdminID,
		Email:       profile.Email,
		Role:        profile.Role,
		Permissions: profile.Permissions,
		SessionID:   rp.SessionID,
	})
	if err != nil {
		return RefreshResult{}, s.refreshError(ctx, ev, err)
	}
	touched, err := s.sessions.Touch(ctx, rec.ID, session.HashToken(access), payload.IssuedAt)
	if err != nil {
		return RefreshResult{}, s.refreshError(ctx, ev, storageError("touch session", err))
	}
	if !touched {
		// Invalidated between FindActive and Touch; the minted token is discarded.
		return RefreshResult{}, s.refreshExpired(ctx, ev, ReasonSessionEnded)
	}

	metrics.RecordRefresh("ok")
	ev.Status = audit.StatusSuccess
	s.audit.Notify(ctx, ev)
	return RefreshResult{AccessToken: access, Access: payload, SessionExpiresAt: rec.ExpiresAt}, nil
}

func (s *Service) refreshExpired(ctx context.Context, ev audit.Event, reason string) error {
	metrics.RecordRefresh(reason)
	ev.Status = audit.StatusDenied
	ev.Metadata = map[string]string{"reason": reason}
	s.audit.Notify(ctx, ev)
	return &SessionExpiredError{Reason: reason}
}

func (s *Service) refreshError(ctx context.Context, ev audit.Event, err error) error {
	metrics.RecordRefresh("error")
	s.log.Error("session refresh failed", "session_id", ev.ResourceID, "err", err)
	ev.Status = audit.StatusFailure
	s.audit.Notify(ctx, ev)
	return err
}

/* ===================== LOGOUT ===================== */

// Logout invalidates the caller's session. Repeated calls are no-ops.
func (s *Service) Logout(ctx context.Context, p SessionPayload) error {
	if err := s.sessions.Invalidate(ctx, p.SessionID); err != nil {
		return storageError("invalidate session", err)
	}
	s.audit.Notify(ctx, audit.Event{
		Action: audit.ActionLogout, Resource: "session", ResourceID: p.SessionID,
		ActorUserID: p.UserID, AdminID: p.AdminID, Status: audit.StatusSuccess,
	})
	return nil
}

// LogoutAll ends every session of adminUserID except exceptSessionID.
func (s *Service) LogoutAll(ctx context.Context, adminUserID, exceptSessionID string) error {
	if adminUserID == "" {
		return errors.New("auth: admin user id is required")
	}
	if err := s.sessions.InvalidateAll(ctx, adminUserID, exceptSessionID); err != nil {
		return storageError("invalidate all sessions", err)
	}
	s.audit.Notify(ctx, audit.Event{
		Action: audit.ActionLogoutAll, Resource: "session", AdminID: adminUserID,
		Status: audit.StatusSuccess, Metadata: map[string]string{"except": exceptSessionID},
	})
	return nil
}

// Sessions lists an admin's sessions, newest first.
func (s *Service) Sessions(ctx context.Context, adminUserID string) ([]session.Record, error) {
	out, err := s.sessions.ListByAdmin(ctx, adminUserID)
	if err != nil {
		return nil, storageError("list sessions", err)
	}
	return out, nil
}

/* ===================== AUTHORIZE ===================== */

// Requirement is what a guarded operation demands of the caller.
type Requirement struct {
	// MinRole, when set, must be satisfied through the role hierarchy.
	MinRole rbac.Role
	// Resource and Action, when set, are evaluated by the permission policy.
	Resource rbac.Resource
	Action   rbac.Action
	// Context feeds conditional rules (e.g. rbac.CondTarget).
	Context map[string]string
	// CheckSession also requires the session row to be active.
	CheckSession bool
}

// Check evaluates a single permission for p.
func (s *Service) Check(p SessionPayload, res rbac.Resource, act rbac.Action, cond map[string]string) rbac.Decision {
	return s.policy.Evaluate(rbac.Request{
		Role: p.Role, Overrides: p.Permissions, Resource: res, Action: act, Context: cond,
	})
}

// Authorize returns ErrForbidden when p does not meet req.
func (s *Service) Authorize(p SessionPayload, req Requirement) error {
	if !p.Role.Valid() {
		return ErrForbidden
	}
	if req.MinRole != "" && !rbac.HasRole(p.Role, req.MinRole) {
		return ErrForbidden
	}
	if req.Resource != "" && !s.Check(p, req.Resource, req.Action, req.Context).Allowed {
		return ErrForbidden
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
