package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

type ctxKey struct{}

// ginSessionKey is where Guard.Middleware stores the payload on the gin context.
const ginSessionKey = "auth.session"

func WithSession(ctx context.Context, p SessionPayload) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// SessionFrom returns the payload placed by the guard.
func SessionFrom(ctx context.Context) (SessionPayload, bool) {
	p, ok := ctx.Value(ctxKey{}).(SessionPayload)
	return p, ok
}

// SessionFromGin reads the payload from a gin context, falling back to the request context.
func SessionFromGin(c *gin.Context) (SessionPayload, bool) {
	if v, ok := c.Get(ginSessionKey); ok {
		if p, ok := v.(SessionPayload); ok {
			return p, true
		}
	}
	return SessionFrom(c.Request.Context())
}
