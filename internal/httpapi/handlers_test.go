package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"taskplanner-admin/internal/auth"
	"taskplanner-admin/internal/config"
	"taskplanner-admin/internal/ratelimit"
	"taskplanner-admin/internal/rbac"
	"taskplanner-admin/internal/session"

	"github.com/gin-gonic/gin"
)

type stubDirectory struct {
	mu       sync.Mutex
	users    map[string]auth.AdminProfile // email -> profile
	byUserID map[string]auth.AdminProfile
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{users: map[string]auth.AdminProfile{}, byUserID: map[string]auth.AdminProfile{}}
}

func (d *stubDirectory) add(p auth.AdminProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[p.Email] = p
	d.byUserID[p.UserID] = p
}

func (d *stubDirectory) VerifyCredentials(_ context.Context, email, password string) (auth.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.users[email]
	if !ok || password != "pw" {
		return auth.Identity{}, auth.ErrInvalidCredentials
	}
	return auth.Identity{UserID: p.UserID, Email: email}, nil
}

func (d *stubDirectory) LoadAdmin(_ context.Context, userID string) (auth.AdminProfile, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byUserID[userID]
	return p, ok, nil
}

type apiEnv struct {
	router   *gin.Engine
	sessions *session.MemoryStore
	dir      *stubDirectory
}

func newAPIEnv(t *testing.T, exposeDetail bool) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  4 * time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	env := &apiEnv{sessions: session.NewMemoryStore(), dir: newStubDirectory()}
	svc, err := auth.NewService(auth.Deps{
		Tokens:     tokens,
		Limiter:    ratelimit.NewLimiter(ratelimit.NewMemoryStore(0), ratelimit.DefaultConfig()),
		Sessions:   env.sessions,
		Identities: env.dir,
		Profiles:   env.dir,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	env.dir.add(auth.AdminProfile{AdminID: "adm-root", UserID: "u-root", Email: "root@example.com", Role: rbac.RoleSuperAdmin, IsActive: true})
	env.dir.add(auth.AdminProfile{AdminID: "adm-view", UserID: "u-view", Email: "viewer@example.com", Role: rbac.RoleViewer, IsActive: true})
	env.dir.add(auth.AdminProfile{AdminID: "adm-gone", UserID: "u-gone", Email: "gone@example.com", Role: rbac.RoleEditor, IsActive: false})

	h := Handlers{Auth: svc, Errors: ErrorWriter{ExposeDetail: exposeDetail}, Cookies: CookieOptions{Secure: true}}
	g := auth.NewGuard(svc)
	g.Respond = h.Errors.Write

	env.router = gin.New()
	Mount(env.router, h, g)
	return env
}

func (e *apiEnv) do(method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type loginBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
}

func (e *apiEnv) login(t *testing.T, email string) loginBody {
	t.Helper()
	w := e.do(http.MethodPost, "/v1/auth/login", gin.H{"email": email, "password": "pw"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, w.Code, w.Body.String())
	}
	var out loginBody
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestLogin_SetsHardenedCookies(t *testing.T) {
	env := newAPIEnv(t, false)
	w := env.do(http.MethodPost, "/v1/auth/login", gin.H{"email": "root@example.com", "password": "pw"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}

	cookies := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		cookies[c.Name] = c
	}
	for name, maxAge := range map[string]int{
		auth.AccessCookieName:  int((4 * time.Hour).Seconds()),
		auth.RefreshCookieName: int((7 * 24 * time.Hour).Seconds()),
	} {
		c, ok := cookies[name]
		if !ok {
			t.Fatalf("missing cookie %s", name)
		}
		if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode {
			t.Fatalf("cookie %s not hardened: %+v", name, c)
		}
		if c.MaxAge != maxAge {
			t.Fatalf("cookie %s max-age %d, want %d", name, c.MaxAge, maxAge)
		}
	}
}

func TestLogin_FailuresShareOneGenericAnswer(t *testing.T) {
	env := newAPIEnv(t, false)

	bad := env.do(http.MethodPost, "/v1/auth/login", gin.H{"email": "root@example.com", "password": "nope"}, nil)
	inactive := env.do(http.MethodPost, "/v1/auth/login", gin.H{"email": "gone@example.com", "password": "pw"}, nil)
	unknown := env.do(http.MethodPost, "/v1/auth/login", gin.H{"email": "who@example.com", "password": "pw"}, nil)

	want := decodeError(t, bad)
	for name, w := range map[string]*httptest.ResponseRecorder{"inactive": inactive, "unknown": unknown} {
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, w.Code)
		}
		if got := decodeError(t, w); got != want {
			t.Fatalf("%s: body %+v differs from %+v", name, got, want)
		}
	}
	if want.Detail != "" {
		t.Fatalf("detail leaked outside debug: %q", want.Detail)
	}
}

func TestLogin_RateLimitedCarriesRetryAfter(t *testing.T) {
	env := newAPIEnv(t, false)
	for i := 0; i < 5; i++ {
		env.do(http.MethodPost, "/v1/auth/login", gin.H{"email": "root@example.com", "password": "nope"}, nil)
	}
	w := env.do(http.MethodPost, "/v1/auth/login", gin.H{"email": "root@example.com", "password": "pw"}, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
	body := decodeError(t, w)
	if body.Code != "rate_limited" || body.RetryAfterSeconds < 1 || body.RetryAfterSeconds > 900 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestLogin_MissingFieldsIsBadRequest(t *testing.T) {
	env := newAPIEnv(t, false)
	w := env.do(http.MethodPost, "/v1/auth/login", gin.H{"email": "root@example.com"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRefresh_FromCookie(t *testing.T) {
	env := newAPIEnv(t, false)
	lb := env.login(t, "viewer@example.com")

	w := env.do(http.MethodPost, "/v1/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: lb.RefreshToken})
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	var out struct {
		AccessToken string `json:"access_token"`
		SessionID   string `json:"session_id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.AccessToken == "" || out.SessionID != lb.SessionID {
		t.Fatalf("unexpected refresh body %+v", out)
	}
}

func TestLogout_ThenRefreshRedirectsToLogin(t *testing.T) {
	env := newAPIEnv(t, false)
	lb := env.login(t, "viewer@example.com")

	if w := env.do(http.MethodPost, "/v1/auth/logout", nil, bearer(lb.AccessToken)); w.Code != http.StatusOK {
		t.Fatalf("logout: %d %s", w.Code, w.Body.String())
	}
	// idempotent
	if w := env.do(http.MethodPost, "/v1/auth/logout", nil, bearer(lb.AccessToken)); w.Code != http.StatusOK {
		t.Fatalf("second logout: %d", w.Code)
	}

	w := env.do(http.MethodPost, "/v1/auth/refresh", gin.H{"refresh_token": lb.RefreshToken}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	body := decodeError(t, w)
	if body.Code != "session_expired" || body.Redirect != LoginPath {
		t.Fatalf("unexpected body %+v", body)
	}

	// The access token still verifies, but the session check rejects it.
	if w := env.do(http.MethodGet, "/v1/auth/me", nil, bearer(lb.AccessToken)); w.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: %d", w.Code)
	}
}

func TestGuard_UnauthenticatedVersusForbidden(t *testing.T) {
	env := newAPIEnv(t, false)
	viewer := env.login(t, "viewer@example.com")
	root := env.login(t, "root@example.com")

	cases := []struct {
		name   string
		path   string
		mutate func(*http.Request)
		want   int
		code   string
	}{
		{"no token", "/v1/admin/ping", nil, http.StatusUnauthorized, "unauthenticated"},
		{"garbage token", "/v1/admin/ping", bearer("x.y.z"), http.StatusUnauthorized, "unauthenticated"},
		{"viewer ping", "/v1/admin/ping", bearer(viewer.AccessToken), http.StatusOK, ""},
		{"viewer other sessions", "/v1/admin/admins/adm-root/sessions", bearer(viewer.AccessToken), http.StatusForbidden, "forbidden"},
		{"root other sessions", "/v1/admin/admins/adm-view/sessions", bearer(root.AccessToken), http.StatusOK, ""},
		{"viewer own sessions", "/v1/auth/sessions", bearer(viewer.AccessToken), http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodGet, tc.path, nil, tc.mutate)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d %s", tc.want, w.Code, w.Body.String())
			}
			if tc.code != "" {
				if got := decodeError(t, w).Code; got != tc.code {
					t.Fatalf("expected code %q, got %q", tc.code, got)
				}
			}
		})
	}
}

func TestSessions_MarksCurrent(t *testing.T) {
	env := newAPIEnv(t, false)
	first := env.login(t, "viewer@example.com")
	second := env.login(t, "viewer@example.com")

	w := env.do(http.MethodGet, "/v1/auth/sessions", nil, bearer(second.AccessToken))
	if w.Code != http.StatusOK {
		t.Fatalf("sessions: %d", w.Code)
	}
	var out struct {
		Sessions []sessionView `json:"sessions"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if len(out.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(out.Sessions))
	}
	for _, s := range out.Sessions {
		if s.Current != (s.ID == second.SessionID) {
			t.Fatalf("wrong current flag on %s", s.ID)
		}
	}
	_ = first
}

func TestLogoutAll_KeepsCurrentSession(t *testing.T) {
	env := newAPIEnv(t, false)
	first := env.login(t, "viewer@example.com")
	second := env.login(t, "viewer@example.com")

	if w := env.do(http.MethodPost, "/v1/auth/logout-all", gin.H{}, bearer(second.AccessToken)); w.Code != http.StatusOK {
		t.Fatalf("logout-all: %d %s", w.Code, w.Body.String())
	}
	if w := env.do(http.MethodGet, "/v1/auth/me", nil, bearer(first.AccessToken)); w.Code != http.StatusUnauthorized {
		t.Fatalf("other session should be ended, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/v1/auth/me", nil, bearer(second.AccessToken)); w.Code != http.StatusOK {
		t.Fatalf("current session should survive, got %d", w.Code)
	}
}

func TestCheckPermission(t *testing.T) {
	env := newAPIEnv(t, false)
	viewer := env.login(t, "viewer@example.com")

	w := env.do(http.MethodPost, "/v1/auth/permissions/check",
		gin.H{"resource": "waitlist", "action": "delete"}, bearer(viewer.AccessToken))
	if w.Code != http.StatusOK {
		t.Fatalf("check: %d", w.Code)
	}
	var out struct {
		Allowed bool       `json:"allowed"`
		Layer   rbac.Layer `json:"layer"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Allowed {
		t.Fatalf("viewer must not delete waitlist entries")
	}
}

func TestCheckPermission_RejectsLoggedOutSession(t *testing.T) {
	env := newAPIEnv(t, false)
	root := env.login(t, "root@example.com")

	if w := env.do(http.MethodPost, "/v1/auth/logout", nil, bearer(root.AccessToken)); w.Code != http.StatusOK {
		t.Fatalf("logout: %d", w.Code)
	}
	w := env.do(http.MethodPost, "/v1/auth/permissions/check",
		gin.H{"resource": "waitlist", "action": "delete"}, bearer(root.AccessToken))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", w.Code)
	}
	if body := decodeError(t, w); body.Code != "session_expired" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestStorageOutageIs503(t *testing.T) {
	env := newAPIEnv(t, true)
	lb := env.login(t, "viewer@example.com")

	env.sessions.Err = errors.New("connection refused")
	w := env.do(http.MethodGet, "/v1/auth/me", nil, bearer(lb.AccessToken))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	body := decodeError(t, w)
	if body.Code != "service_unavailable" || !strings.Contains(body.Detail, "connection refused") {
		t.Fatalf("expected detail in debug mode, got %+v", body)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want int
		code string
	}{
		{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{auth.ErrNotAuthorized, http.StatusUnauthorized, "invalid_credentials"},
		{&auth.RateLimitedError{RetryAfter: time.Minute}, http.StatusTooManyRequests, "rate_limited"},
		{&auth.SessionExpiredError{Reason: auth.ReasonSessionEnded}, http.StatusUnauthorized, "session_expired"},
		{auth.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{auth.ErrForbidden, http.StatusForbidden, "forbidden"},
		{auth.ErrStorageUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, code, msg := Classify(tc.err)
		if status != tc.want || code != tc.code || msg == "" {
			t.Fatalf("%v: got %d %q %q", tc.err, status, code, msg)
		}
	}
}
