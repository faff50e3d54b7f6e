package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"taskplanner-admin/internal/auth"
	"taskplanner-admin/internal/httpapi"
)

// apiClient talks to the admin API with bearer tokens. Safe for concurrent use.
type apiClient struct {
	base string
	http *http.Client

	mu      sync.Mutex
	access  string
	refresh string
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	SessionID    string    `json:"session_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// apiError maps an error body back onto the auth sentinels so the lifecycle
// client can tell a dead session from a transient failure.
func apiError(status int, body httpapi.ErrorResponse) error {
	switch body.Code {
	case "session_expired":
		return fmt.Errorf("%w: %s", auth.ErrSessionExpired, body.Error)
	case "unauthenticated":
		return fmt.Errorf("%w: %s", auth.ErrInvalidToken, body.Error)
	case "invalid_credentials":
		return fmt.Errorf("%w: %s", auth.ErrInvalidCredentials, body.Error)
	case "rate_limited":
		return &auth.RateLimitedError{RetryAfter: time.Duration(body.RetryAfterSeconds) * time.Second}
	}
	return fmt.Errorf("admin api: %d %s", status, body.Code)
}

func (c *apiClient) do(ctx context.Context, method, path, token string, in, out any) error {
	var buf bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body httpapi.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return apiError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) Login(ctx context.Context, email, password string) (tokenResponse, error) {
	var out tokenResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return tokenResponse{}, err
	}
	c.mu.Lock()
	c.access, c.refresh = out.AccessToken, out.RefreshToken
	c.mu.Unlock()
	return out, nil
}

// Refresh has the shape lifecycle.Callbacks.Refresh expects.
func (c *apiClient) Refresh(ctx context.Context) (time.Time, error) {
	c.mu.Lock()
	refresh := c.refresh
	c.mu.Unlock()

	var out tokenResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": refresh}, &out); err != nil {
		return time.Time{}, err
	}
	c.mu.Lock()
	c.access = out.AccessToken
	c.mu.Unlock()
	return out.ExpiresAt, nil
}

func (c *apiClient) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access
}

// Ping hits a guarded route; it doubles as the "request" activity signal.
func (c *apiClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/admin/ping", c.accessToken(), nil, nil)
}

func (c *apiClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/logout", c.accessToken(), nil, nil)
}
