package httpapi

import (
	"net/http"
	"time"

	"taskplanner-admin/internal/auth"
	"taskplanner-admin/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth    *auth.Service
	Errors  ErrorWriter
	Cookies CookieOptions
}

// CookieOptions configure the credential carrier cookies.
type CookieOptions struct {
	Secure bool
	Domain string
}

func (h Handlers) setCookie(c *gin.Context, name, value string, maxAge time.Duration) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, value, int(maxAge.Seconds()), "/", h.Cookies.Domain, h.Cookies.Secure, true)
}

func (h Handlers) clearCookies(c *gin.Context) {
	h.setCookie(c, auth.AccessCookieName, "", -time.Second)
	h.setCookie(c, auth.RefreshCookieName, "", -time.Second)
}

func (h Handlers) session(c *gin.Context) (auth.SessionPayload, bool) {
	p, ok := auth.SessionFromGin(c)
	if !ok {
		h.Errors.Write(c, auth.ErrUnauthenticated)
	}
	return p, ok
}

// --- Auth ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminView struct {
	AdminID     string         `json:"admin_id"`
	UserID      string         `json:"user_id"`
	Email       string         `json:"email"`
	Role        rbac.Role      `json:"role"`
	Permissions rbac.Overrides `json:"permissions,omitempty"`
}

func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		h.Errors.Write(c, ErrBadRequest)
		return
	}
	res, err := h.Auth.Login(c.Request.Context(), auth.Credentials{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.Errors.Write(c, err)
		return
	}

	tokens := h.Auth.Tokens()
	h.setCookie(c, auth.AccessCookieName, res.AccessToken, tokens.AccessTTL())
	h.setCookie(c, auth.RefreshCookieName, res.RefreshToken, tokens.RefreshTTL())

	c.JSON(http.StatusOK, gin.H{
		"access_token":       res.AccessToken,
		"refresh_token":      res.RefreshToken,
		"session_id":         res.Access.SessionID,
		"expires_at":         res.Access.ExpiresAt,
		"refresh_expires_at": res.Refresh.ExpiresAt,
		"admin": adminView{
			AdminID:     res.Admin.AdminID,
			UserID:      res.Admin.UserID,
			Email:       res.Access.Email,
			Role:        res.Admin.Role,
			Permissions: res.Admin.Permissions,
		},
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh accepts the refresh token in the body or the refresh cookie.
func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	token := req.RefreshToken
	if token == "" {
		token, _ = c.Cookie(auth.RefreshCookieName)
	}
	if token == "" {
		h.Errors.Write(c, auth.ErrUnauthenticated)
		return
	}

	res, err := h.Auth.Refresh(c.Request.Context(), token)
	if err != nil {
		if isSessionEnd(err) {
			h.clearCookies(c)
		}
		h.Errors.Write(c, err)
		return
	}
	h.setCookie(c, auth.AccessCookieName, res.AccessToken, h.Auth.Tokens().AccessTTL())
	c.JSON(http.StatusOK, gin.H{
		"access_token":       res.AccessToken,
		"session_id":         res.Access.SessionID,
		"expires_at":         res.Access.ExpiresAt,
		"session_expires_at": res.SessionExpiresAt,
	})
}

func (h Handlers) Logout(c *gin.Context) {
	p, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.Auth.Logout(c.Request.Context(), p); err != nil {
		h.Errors.Write(c, err)
		return
	}
	h.clearCookies(c)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

type logoutAllRequest struct {
	IncludeCurrent bool `json:"include_current"`
}

// LogoutAll signs the caller out of every other device unless include_current is set.
func (h Handlers) LogoutAll(c *gin.Context) {
	p, ok := h.session(c)
	if !ok {
		return
	}
	var req logoutAllRequest
	_ = c.ShouldBindJSON(&req)
	except := p.SessionID
	if req.IncludeCurrent {
		except = ""
	}
	if err := h.Auth.LogoutAll(c.Request.Context(), p.AdminID, except); err != nil {
		h.Errors.Write(c, err)
		return
	}
	if req.IncludeCurrent {
		h.clearCookies(c)
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (h Handlers) Me(c *gin.Context) {
	p, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}

type sessionView struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Active         bool      `json:"active"`
	Current        bool      `json:"current"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

func (h Handlers) listSessions(c *gin.Context, adminID, currentID string) {
	recs, err := h.Auth.Sessions(c.Request.Context(), adminID)
	if err != nil {
		h.Errors.Write(c, err)
		return
	}
	now := time.Now()
	out := make([]sessionView, 0, len(recs))
	for _, r := range recs {
		out = append(out, sessionView{
			ID:             r.ID,
			CreatedAt:      r.CreatedAt,
			LastActivityAt: r.LastActivityAt,
			ExpiresAt:      r.ExpiresAt,
			Active:         r.Active(now),
			Current:        r.ID == currentID,
			IPAddress:      r.IPAddress,
			UserAgent:      r.UserAgent,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// Sessions lists the caller's own sessions.
func (h Handlers) Sessions(c *gin.Context) {
	p, ok := h.session(c)
	if !ok {
		return
	}
	h.listSessions(c, p.AdminID, p.SessionID)
}

type permissionCheckRequest struct {
	Resource rbac.Resource     `json:"resource"`
	Action   rbac.Action       `json:"action"`
	Context  map[string]string `json:"context,omitempty"`
}

// CheckPermission answers "may I" for UI gating; it never grants anything.
func (h Handlers) CheckPermission(c *gin.Context) {
	p, ok := h.session(c)
	if !ok {
		return
	}
	var req permissionCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Resource == "" || req.Action == "" {
		h.Errors.Write(c, ErrBadRequest)
		return
	}
	d := h.Auth.Check(p, req.Resource, req.Action, req.Context)
	c.JSON(http.StatusOK, gin.H{"allowed": d.Allowed, "layer": d.Layer})
}

// --- Admin ---

// AdminSessions lists another admin's sessions. Guarded by sessions:read.
func (h Handlers) AdminSessions(c *gin.Context) {
	p, ok := h.session(c)
	if !ok {
		return
	}
	h.listSessions(c, c.Param("admin_id"), p.SessionID)
}

// AdminLogoutAll ends every session of another admin. Guarded by sessions:delete.
func (h Handlers) AdminLogoutAll(c *gin.Context) {
	target := c.Param("admin_id")
	if target == "" {
		h.Errors.Write(c, ErrBadRequest)
		return
	}
	p, ok := h.session(c)
	if !ok {
		return
	}
	except := ""
	if target == p.AdminID {
		except = p.SessionID
	}
	if err := h.Auth.LogoutAll(c.Request.Context(), target, except); err != nil {
		h.Errors.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func isSessionEnd(err error) bool {
	_, code, _ := Classify(err)
	return code == "session_expired" || code == "unauthenticated"
}
