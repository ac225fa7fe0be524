package middleware

import (
	"context"
	"strings"

	"github.com/Majnu04/doflow-sub001/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	userIDHeader    = "X-User-Id"
)

// TraceContextConfig controls how trace/request/user id are extracted and written.
type TraceContextConfig struct {
	// AllowUserIDHeader trusts X-User-Id. Must be false when bearer auth is on.
	AllowUserIDHeader bool
	WriteUserIDHeader bool
}

// TraceContextMiddleware ensures trace/request/user id are in context and response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{
		AllowUserIDHeader: true,
		WriteUserIDHeader: true,
	})
}

// TraceContextMiddlewareWithConfig is the configurable version of TraceContextMiddleware.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := headerOrUUID(c, traceIDHeader)
		requestID := headerOrUUID(c, requestIDHeader)
		setContextValue(c, contextkey.TraceID, traceID)
		setContextValue(c, contextkey.RequestID, requestID)
		c.Writer.Header().Set(traceIDHeader, traceID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		if cfg.AllowUserIDHeader {
			if userID := strings.TrimSpace(c.GetHeader(userIDHeader)); userID != "" {
				SetUserID(c, userID)
				if cfg.WriteUserIDHeader {
					c.Writer.Header().Set(userIDHeader, userID)
				}
			}
		}

		c.Next()
	}
}

// SetUserID stores the caller identity on both the gin and the request context.
func SetUserID(c *gin.Context, userID string) {
	setContextValue(c, contextkey.UserID, userID)
}

func headerOrUUID(c *gin.Context, header string) string {
	v := strings.TrimSpace(c.GetHeader(header))
	if v == "" {
		v = uuid.NewString()
	}
	return v
}

func setContextValue(c *gin.Context, k interface{ String() string }, value string) {
	c.Set(k.String(), value)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), k, value))
}
