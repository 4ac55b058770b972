package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mudichurmart/storefront/internal/auth"
	"github.com/mudichurmart/storefront/internal/checkout"
)

const (
	headerRequestID = "X-Request-Id"
	headerSession   = "X-Session-ID"

	ctxRequestID = "request_id"
	ctxSession   = "session"
	ctxUser      = "user"
	ctxToken     = "access_token"
)

// RequestLogger assigns a request id and logs each request through zerolog.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(ctxRequestID, reqID)
		c.Header(headerRequestID, reqID)

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
			Msg("request")
	}
}

// withSession resolves the shopper session named by X-Session-ID, starting a
// new one when the header is absent. The id is echoed back either way.
func withSession(reg *checkout.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerSession))
		if id == "" {
			id = uuid.NewString()
		}
		if len(id) > 128 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_session_id"})
			return
		}
		s, err := reg.Get(c.Request.Context(), id)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session_unavailable"})
			return
		}
		c.Header(headerSession, id)
		c.Set(ctxSession, s)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *checkout.Session {
	return c.MustGet(ctxSession).(*checkout.Session)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// authenticate resolves the bearer token into the request's user. On failure
// it writes the response and aborts.
func authenticate(c *gin.Context, a Authenticator) bool {
	tok := bearerToken(c)
	u, err := a.CurrentUser(c.Request.Context(), tok)
	if err != nil {
		writeAuthError(c, err)
		c.Abort()
		return false
	}
	c.Set(ctxUser, u)
	c.Set(ctxToken, tok)
	return true
}

// requireUser rejects requests without a valid bearer token.
func requireUser(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authenticate(c, a) {
			c.Next()
		}
	}
}

// requireAdmin is requireUser plus the admin allow-list.
func requireAdmin(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c, a) {
			return
		}
		if !userFrom(c).Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// optionalUser attaches the user when a valid bearer token is present.
func optionalUser(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := bearerToken(c); tok != "" && a != nil {
			if u, err := a.CurrentUser(c.Request.Context(), tok); err == nil {
				c.Set(ctxUser, u)
			}
		}
		c.Next()
	}
}

func userFrom(c *gin.Context) *auth.User {
	if v, ok := c.Get(ctxUser); ok {
		return v.(*auth.User)
	}
	return nil
}
