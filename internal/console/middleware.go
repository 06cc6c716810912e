package console

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"admin-console/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequireSession rejects requests while no administrator is signed in and
// injects the user into the context otherwise.
func RequireSession(sessions SessionManager, loginURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessions.Loading() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   "session is still loading",
			})
			return
		}

		sess := sessions.Snapshot()
		if !sess.Authenticated() {
			slog.Warn("Rejected request without session",
				"path", c.Request.URL.Path,
				"request_id", c.GetString("request_id"),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success":   false,
				"error":     "unauthorized: " + session.ErrNoSession.Error(),
				"login_url": loginURL,
			})
			return
		}

		if sess.User != nil {
			c.Set("user_id", sess.User.ID)
			c.Set("email", sess.User.Email)
		}

		c.Next()
	}
}

// CORSMiddleware allows the admin frontend to call the console with cookies
func CORSMiddleware(allowOrigin string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{allowOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// RequestIDMiddleware tags every request with an ID, reusing the caller's
// X-Request-ID when present
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()
	}
}

// LoggingMiddleware logs every request with structured attributes
func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", float64(time.Since(start).Microseconds()) / 1000,
			"client_ip", c.ClientIP(),
			"response_size", max(c.Writer.Size(), 0),
		}

		if query := redactQuery(c.Request.URL.RawQuery); query != "" {
			attrs = append(attrs, "query", query)
		}
		if entity := c.Param("entity"); entity != "" {
			attrs = append(attrs, "entity", entity)
		}
		if userID, exists := c.Get("user_id"); exists {
			attrs = append(attrs, "user_id", userID)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.Error("Request failed - server error", attrs...)
		case status >= 400:
			logger.Warn("Request failed - client error", attrs...)
		default:
			logger.Info("Request completed", attrs...)
		}
	}
}

// credentialParams are query parameters that carry credentials or identity
// during the login handoff
var credentialParams = []string{"access", "refresh", "user", "token"}

// redactQuery masks credential values. A query that does not parse is dropped.
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	redacted := false
	for _, name := range credentialParams {
		if values.Has(name) {
			values.Set(name, "REDACTED")
			redacted = true
		}
	}
	if !redacted {
		return raw
	}
	return values.Encode()
}
