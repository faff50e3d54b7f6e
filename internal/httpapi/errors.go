package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"taskplanner-admin/internal/auth"
	"taskplanner-admin/pkg/logger"

	"github.com/gin-gonic/gin"
)

// LoginPath is the redirect hint for expired sessions.
const LoginPath = "/admin/login"

// ErrBadRequest marks malformed client input.
var ErrBadRequest = errors.New("bad request")

// ErrorResponse is the only error body the API returns.
type ErrorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
	Redirect          string `json:"redirect,omitempty"`
	Detail            string `json:"detail,omitempty"`
}

// ErrorWriter is the single place errors become HTTP responses.
// Internal detail is included only when ExposeDetail is set (debug/local).
type ErrorWriter struct {
	ExposeDetail bool
}

type classified struct {
	status  int
	code    string
	message string
}

// Classify maps the auth error taxonomy to status, code and user text.
// Bad credentials and missing admin grants share one generic answer.
func Classify(err error) (int, string, string) {
	c := classify(err)
	return c.status, c.code, c.message
}

func classify(err error) classified {
	switch {
	case errors.Is(err, ErrBadRequest):
		return classified{http.StatusBadRequest, "bad_request", "Invalid request."}
	case errors.Is(err, auth.ErrRateLimited):
		return classified{http.StatusTooManyRequests, "rate_limited", "Too many sign-in attempts. Try again later."}
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrNotAuthorized):
		return classified{http.StatusUnauthorized, "invalid_credentials", "Invalid email or password."}
	case errors.Is(err, auth.ErrSessionExpired):
		return classified{http.StatusUnauthorized, "session_expired", "Your session has ended. Please sign in again."}
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		return classified{http.StatusUnauthorized, "unauthenticated", "Authentication required."}
	case errors.Is(err, auth.ErrForbidden):
		return classified{http.StatusForbidden, "forbidden", "You do not have access to this resource."}
	case errors.Is(err, auth.ErrStorageUnavailable):
		return classified{http.StatusServiceUnavailable, "service_unavailable", "Service temporarily unavailable."}
	default:
		return classified{http.StatusInternalServerError, "internal", "Something went wrong."}
	}
}

// Write aborts the request with the formatted error.
func (w ErrorWriter) Write(c *gin.Context, err error) {
	cl := classify(err)
	body := ErrorResponse{Error: cl.message, Code: cl.code}

	var rl *auth.RateLimitedError
	if errors.As(err, &rl) {
		secs := int(rl.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		body.RetryAfterSeconds = secs
		c.Header("Retry-After", strconv.Itoa(secs))
	}
	if errors.Is(err, auth.ErrSessionExpired) {
		body.Redirect = LoginPath
	}
	if w.ExposeDetail {
		body.Detail = err.Error()
	}

	log := logger.FromGin(c)
	if cl.status >= http.StatusInternalServerError {
		log.Error("request failed", "code", cl.code, "err", err)
	} else {
		log.Debug("request rejected", "code", cl.code, "err", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(cl.status, body)
}
