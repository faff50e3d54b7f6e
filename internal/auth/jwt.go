package auth

import (
	"errors"
	"time"

	"taskplanner-admin/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Manager signs and verifies HS256 session tokens. It holds no mutable state
// after construction and is safe for concurrent use.
type Manager struct {
	secret     []byte
	devSecret  bool
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}

	return &Manager{
		secret:     []byte(cfg.JWTSecret),
		devSecret:  cfg.JWTSecret == config.DevJWTSecret,
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}, nil
}

// UsesDevelopmentSecret reports whether the well-known development key is in use.
func (m *Manager) UsesDevelopmentSecret() bool { return m.devSecret }

func (m *Manager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// JWT timestamps have second precision; truncating keeps issued payloads equal to verified ones.
func (m *Manager) clock() time.Time { return m.now().UTC().Truncate(time.Second) }

/* ===================== ISSUE TOKENS ===================== */

// IssueAccessToken ignores p.IssuedAt/ExpiresAt and returns the payload as signed.
func (m *Manager) IssueAccessToken(p SessionPayload) (string, SessionPayload, error) {
	if p.UserID == "" || p.SessionID == "" || !p.Role.Valid() {
		return "", SessionPayload{}, errors.New("auth: access payload requires user, session and role")
	}
	now := m.clock()
	p.IssuedAt = now
	p.ExpiresAt = now.Add(m.accessTTL)

	claims := accessClaims{
		RegisteredClaims: m.registered(p.UserID, p.IssuedAt, p.ExpiresAt),
		AdminID:          p.AdminID,
		Email:            p.Email,
		Role:             p.Role,
		Permissions:      p.Permissions,
		SessionID:        p.SessionID,
		TokenType:        TokenTypeAccess,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", SessionPayload{}, err
	}
	return tok, p, nil
}

func (m *Manager) IssueRefreshToken(userID, sessionID string) (string, RefreshPayload, error) {
	if userID == "" || sessionID == "" {
		return "", RefreshPayload{}, errors.New("auth: refresh payload requires user and session")
	}
	now := m.clock()
	p := RefreshPayload{
		UserID:    userID,
		SessionID: sessionID,
		Type:      TokenTypeRefresh,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.refreshTTL),
	}
	claims := refreshClaims{
		RegisteredClaims: m.registered(userID, p.IssuedAt, p.ExpiresAt),
		SessionID:        sessionID,
		TokenType:        TokenTypeRefresh,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", RefreshPayload{}, err
	}
	return tok, p, nil
}

func (m *Manager) registered(subject string, iat, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    m.issuer,
		Audience:  audienceOrNil(m.audience),
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
}

/* ===================== VERIFY TOKEN ===================== */

// Verify checks an access token. Malformed, forged, expired and wrong-type tokens
// all return ErrInvalidToken.
func (m *Manager) Verify(token string) (SessionPayload, error) {
	var c accessClaims
	if err := m.parse(token, &c); err != nil {
		return SessionPayload{}, ErrInvalidToken
	}
	if c.TokenType != TokenTypeAccess || c.Subject == "" || c.SessionID == "" || c.Role == "" {
		return SessionPayload{}, ErrInvalidToken
	}
	return SessionPayload{
		UserID:      c.Subject,
		AdminID:     c.AdminID,
		Email:       c.Email,
		Role:        c.Role,
		Permissions: c.Permissions,
		SessionID:   c.SessionID,
		IssuedAt:    c.IssuedAt.Time.UTC(),
		ExpiresAt:   c.ExpiresAt.Time.UTC(),
	}, nil
}

func (m *Manager) VerifyRefresh(token string) (RefreshPayload, error) {
	var c refreshClaims
	if err := m.parse(token, &c); err != nil {
		return RefreshPayload{}, ErrInvalidToken
	}
	if c.TokenType != TokenTypeRefresh || c.Subject == "" || c.SessionID == "" {
		return RefreshPayload{}, ErrInvalidToken
	}
	return RefreshPayload{
		UserID:    c.Subject,
		SessionID: c.SessionID,
		Type:      TokenTypeRefresh,
		IssuedAt:  c.IssuedAt.Time.UTC(),
		ExpiresAt: c.ExpiresAt.Time.UTC(),
	}, nil
}

// parse validates signature, algorithm, iat and exp with no leeway.
func (m *Manager) parse(token string, claims jwt.Claims) error {
	if token == "" {
		return ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	return err
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
