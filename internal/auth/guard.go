package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"taskplanner-admin/internal/audit"
	"taskplanner-admin/internal/metrics"
	"taskplanner-admin/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "

	// AccessCookieName and RefreshCookieName are the credential carrier cookies.
	AccessCookieName  = "admin_access_token"
	RefreshCookieName = "admin_refresh_token"
)

// Guard validates the caller's session before a protected operation runs.
//
// 401 (ErrUnauthenticated, ErrSessionExpired) and 403 (ErrForbidden) stay
// distinguishable through errors.Is. Every decision is audited without blocking.
type Guard struct {
	svc *Service

	// Respond writes a failed decision. Defaults to a bare status + gin.H body.
	Respond func(c *gin.Context, err error)
}

func NewGuard(svc *Service) *Guard {
	return &Guard{svc: svc, Respond: defaultRespond}
}

// Authenticate resolves token into a payload that satisfies req.
func (g *Guard) Authenticate(ctx context.Context, token string, req Requirement) (SessionPayload, error) {
	p, err := g.authenticate(ctx, token, req)
	g.record(ctx, p, req, err)
	return p, err
}

func (g *Guard) authenticate(ctx context.Context, token string, req Requirement) (SessionPayload, error) {
	if token == "" {
		return SessionPayload{}, ErrUnauthenticated
	}
	p, err := g.svc.tokens.Verify(token)
	if err != nil {
		return SessionPayload{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if req.CheckSession {
		_, ok, err := g.svc.sessions.FindActive(ctx, p.SessionID)
		if err != nil {
			return p, storageError("find session", err)
		}
		if !ok {
			return p, &SessionExpiredError{Reason: ReasonSessionEnded}
		}
	}
	if err := g.svc.Authorize(p, req); err != nil {
		return p, err
	}
	return p, nil
}

func decisionLabel(err error) string {
	switch {
	case err == nil:
		return "allowed"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "unauthenticated"
	}
}

func (g *Guard) record(ctx context.Context, p SessionPayload, req Requirement, err error) {
	decision := decisionLabel(err)
	metrics.RecordGuardDecision(decision)
	if err != nil {
		logger.From(ctx).Debug("guard rejected request", "decision", decision, "resource", req.Resource, "err", err)
	}

	status := audit.StatusSuccess
	if err != nil {
		status = audit.StatusDenied
	}
	meta := map[string]string{"decision": decision}
	if req.Action != "" {
		meta["action"] = string(req.Action)
	}
	if req.MinRole != "" {
		meta["min_role"] = string(req.MinRole)
	}
	g.svc.audit.Notify(ctx, audit.Event{
		Action:      audit.ActionAccess,
		ActorUserID: p.UserID,
		AdminID:     p.AdminID,
		Resource:    string(req.Resource),
		ResourceID:  p.SessionID,
		Status:      status,
		Metadata:    meta,
	})
}

// Protect wraps op so it only runs for callers that satisfy req. The payload is
// passed to op and also placed in its context.
func Protect[T any](g *Guard, req Requirement, op func(ctx context.Context, p SessionPayload) (T, error)) func(ctx context.Context, token string) (T, error) {
	return func(ctx context.Context, token string) (T, error) {
		p, err := g.Authenticate(ctx, token, req)
		if err != nil {
			var zero T
			return zero, err
		}
		return op(WithSession(ctx, p), p)
	}
}

// Middleware enforces req on a gin route and stores the payload for handlers.
func (g *Guard) Middleware(req Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := g.Authenticate(c.Request.Context(), TokenFromRequest(c), req)
		if err != nil {
			g.Respond(c, err)
			return
		}
		c.Request = c.Request.WithContext(WithSession(c.Request.Context(), p))
		c.Set(ginSessionKey, p)
		c.Set(logger.AdminIDKey, p.AdminID)
		c.Next()
	}
}

// TokenFromRequest reads the bearer header first, then the access cookie.
func TokenFromRequest(c *gin.Context) string {
	raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
	if strings.HasPrefix(raw, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	}
	if v, err := c.Cookie(AccessCookieName); err == nil {
		return v
	}
	return ""
}

func defaultRespond(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, ErrStorageUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	default:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	}
}
