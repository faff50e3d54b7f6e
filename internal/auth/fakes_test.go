package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"taskplanner-admin/internal/audit"
	"taskplanner-admin/internal/config"
	"taskplanner-admin/internal/ratelimit"
	"taskplanner-admin/internal/rbac"
	"taskplanner-admin/internal/session"
)

type fakeDirectory struct {
	mu        sync.Mutex
	passwords map[string]string // email -> password
	userIDs   map[string]string // email -> user id
	profiles  map[string]AdminProfile
	verifies  int
	loadErr   error
	// delay stretches VerifyCredentials to widen concurrent windows.
	delay time.Duration
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		passwords: map[string]string{},
		userIDs:   map[string]string{},
		profiles:  map[string]AdminProfile{},
	}
}

func (d *fakeDirectory) addAdmin(email, password string, p AdminProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.passwords[email] = password
	d.userIDs[email] = p.UserID
	if p.AdminID != "" {
		d.profiles[p.UserID] = p
	}
}

func (d *fakeDirectory) setProfile(p AdminProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.UserID] = p
}

func (d *fakeDirectory) VerifyCredentials(_ context.Context, email, password string) (Identity, error) {
	d.mu.Lock()
	delay := d.delay
	d.mu.Unlock()
	time.Sleep(delay)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.verifies++
	if pw, ok := d.passwords[email]; !ok || pw != password {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{UserID: d.userIDs[email], Email: email}, nil
}

func (d *fakeDirectory) LoadAdmin(_ context.Context, userID string) (AdminProfile, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loadErr != nil {
		return AdminProfile{}, false, d.loadErr
	}
	p, ok := d.profiles[userID]
	return p, ok, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Notify(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

type testEnv struct {
	svc      *Service
	dir      *fakeDirectory
	sessions *session.MemoryStore
	limiter  *ratelimit.Limiter
	audit    *recordingAudit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith lets a test wrap the session gateway the service sees.
func newTestEnvWith(t *testing.T, wrap func(session.Gateway) session.Gateway) *testEnv {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  4 * time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	env := &testEnv{
		dir:      newFakeDirectory(),
		sessions: session.NewMemoryStore(),
		limiter:  ratelimit.NewLimiter(ratelimit.NewMemoryStore(0), ratelimit.DefaultConfig()),
		audit:    &recordingAudit{},
	}
	var sessions session.Gateway = env.sessions
	if wrap != nil {
		sessions = wrap(env.sessions)
	}
	env.svc, err = NewService(Deps{
		Tokens:     m,
		Limiter:    env.limiter,
		Sessions:   sessions,
		Identities: env.dir,
		Profiles:   env.dir,
		Audit:      env.audit,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	env.dir.addAdmin("root@example.com", "pw", AdminProfile{AdminID: "adm-root", UserID: "u-root", Email: "root@example.com", Role: rbac.RoleSuperAdmin, IsActive: true})
	env.dir.addAdmin("ops@example.com", "pw", AdminProfile{AdminID: "adm-ops", UserID: "u-ops", Email: "ops@example.com", Role: rbac.RoleAdmin, IsActive: true})
	env.dir.addAdmin("viewer@example.com", "pw", AdminProfile{AdminID: "adm-view", UserID: "u-view", Email: "viewer@example.com", Role: rbac.RoleViewer, IsActive: true})
	env.dir.addAdmin("gone@example.com", "pw", AdminProfile{AdminID: "adm-gone", UserID: "u-gone", Email: "gone@example.com", Role: rbac.RoleEditor, IsActive: false})
	env.dir.addAdmin("user@example.com", "pw", AdminProfile{UserID: "u-plain"})
	return env
}

// logoutAllAfterFind ends every session of the admin right after FindActive,
// as a concurrent logoutAll would.
type logoutAllAfterFind struct {
	session.Gateway
}

func (g logoutAllAfterFind) FindActive(ctx context.Context, id string) (session.Record, bool, error) {
	rec, ok, err := g.Gateway.FindActive(ctx, id)
	if ok {
		_ = g.Gateway.InvalidateAll(ctx, rec.AdminUserID, "")
	}
	return rec, ok, err
}

func (e *testEnv) login(t *testing.T, email string) LoginResult {
	t.Helper()
	res, err := e.svc.Login(context.Background(), Credentials{Email: email, Password: "pw", IPAddress: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return res
}
