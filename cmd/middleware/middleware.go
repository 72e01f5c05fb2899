package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"eventhive/internal/auth"
	"eventhive/internal/dto"
)

const (
	identityKey     = "identity"
	requestIDHeader = "X-Request-ID"
)

// LoggingMiddleware logs every request with its status and latency and tags
// the response with a request id.
func LoggingMiddleware(log *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)

		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

// Auth rejects requests without a valid bearer token.
func Auth(v *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identity(c, v)
		if !ok {
			dto.UnauthorizedError(c)
			c.Abort()
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present and lets
// anonymous requests through.
func OptionalAuth(v *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := identity(c, v); ok {
			c.Set(identityKey, id)
		}
		c.Next()
	}
}

// IdentityFrom returns the identity set by Auth or OptionalAuth, or nil.
func IdentityFrom(c *gin.Context) *auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*auth.Identity)
	return id
}

func identity(c *gin.Context, v *auth.Verifier) (*auth.Identity, bool) {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return nil, false
	}
	id, err := v.Parse(strings.TrimPrefix(h, "Bearer "))
	if err != nil {
		return nil, false
	}
	return id, true
}
