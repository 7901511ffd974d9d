package router

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/alumni-core/internal/api/handler"
	"github.com/cuongbtq/alumni-core/internal/auth"
	"github.com/cuongbtq/alumni-core/internal/rbac"
	"github.com/cuongbtq/alumni-core/shared/logger"
)

// CorrelationIDHeader carries the request correlation id in and out.
const CorrelationIDHeader = "X-Correlation-ID"

// CronKeyHeader authenticates scheduled callers.
const CronKeyHeader = "X-Cron-Key"

// CorrelationIDMiddleware tags the request context so every log line of the
// request shares one id.
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logger.WithCorrelationID(c.Request.Context(), id))
		c.Writer.Header().Set(CorrelationIDHeader, id)
		c.Next()
	}
}

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		ctx := c.Request.Context()
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(ctx, level, "HTTP Request",
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("route", c.FullPath()),
			slog.String("ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
			slog.Duration("latency", time.Since(start)),
			slog.Int("body_size", c.Writer.Size()),
		)

		for _, e := range c.Errors {
			log.ErrorContext(ctx, "Request error",
				slog.String("error", e.Error()),
				slog.Uint64("type", uint64(e.Type)),
			)
		}
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Idempotency-Key, X-Correlation-ID, X-Cron-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", CorrelationIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AuthMiddleware requires a valid bearer token and stores the caller under
// handler.PrincipalKey.
func AuthMiddleware(verifier *auth.Verifier, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var p *auth.Principal
			if p, err = verifier.Authenticate(c.Request.Context(), token); err == nil {
				c.Set(handler.PrincipalKey, p)
				c.Next()
				return
			}
		}

		log.WarnContext(c.Request.Context(), "Authentication failed",
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
}

// RequirePermission rejects callers whose role does not grant perm. It must
// run after AuthMiddleware.
func RequirePermission(perm rbac.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !handler.Principal(c).Can(perm) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden - Admin access required"})
			return
		}
		c.Next()
	}
}

// CronKeyMiddleware admits requests whose X-Cron-Key matches secret. An empty
// secret admits nobody.
func CronKeyMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(CronKeyHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
