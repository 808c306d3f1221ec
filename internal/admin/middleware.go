package admin

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meshtower/tower/internal/observability"
)

// CorrelationIDHeader is the HTTP header carrying the request
// correlation ID.
const CorrelationIDHeader = "X-Correlation-ID"

// correlationIDKey is the gin context key for the correlation ID.
const correlationIDKey = "correlation_id"

// CorrelationIDMiddleware reuses an incoming X-Correlation-ID header
// or generates a new ID, and echoes it on the response.
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(correlationIDKey, correlationID)
		c.Header(CorrelationIDHeader, correlationID)

		c.Next()
	}
}

// RequestLogMiddleware logs admin requests at debug level.
func RequestLogMiddleware(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Debug("admin request",
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.Int("status", c.Writer.Status()),
			observability.Duration("duration", time.Since(start)),
			observability.String("correlation_id", c.GetString(correlationIDKey)),
		)
	}
}
