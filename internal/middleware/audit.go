// Package middleware holds gin middleware shared by the HTTP surfaces.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leadbridge/leadbridge/internal/logging"
)

const resourceKey = "audit_resource"

// Audit records one API_ACCESS event per request once the handler has run.
// Responses with a status of 400 or above are recorded as failures.
func Audit(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		outcome := logging.StatusSuccess
		if status >= 400 {
			outcome = logging.StatusFailure
		}

		event := logging.NewAuditEvent(logging.APIAccess, c.Request.Method+" "+path, outcome).
			WithIPAddress(c.ClientIP()).
			WithCorrelationID(logging.GetCorrelationID(c.Request.Context())).
			WithResource(path).
			WithDetails(map[string]interface{}{
				"method":     c.Request.Method,
				"path":       path,
				"status":     status,
				"latency_ms": time.Since(start).Milliseconds(),
				"user_agent": c.Request.UserAgent(),
			})

		if resource := c.GetString(resourceKey); resource != "" {
			event.WithResource(resource)
		}
		if accountID := logging.GetAccountID(c.Request.Context()); accountID != "" {
			event.WithAccountID(accountID)
		}
		if status >= 500 {
			event.WithSeverity(logging.SeverityError)
		} else if outcome == logging.StatusFailure {
			event.WithSeverity(logging.SeverityWarning)
		}
		if len(c.Errors) > 0 {
			event.WithError(c.Errors.Last().Error())
		}

		logger.Audit(event)
	}
}

// SetAuditResource names the resource a handler acted on.
func SetAuditResource(c *gin.Context, resource string) {
	c.Set(resourceKey, resource)
}

// SetAuditAccount tags the request with a credential account. The audit
// event and every log line written under the request context carry it.
func SetAuditAccount(c *gin.Context, accountID string) {
	c.Request = c.Request.WithContext(logging.WithAccountID(c.Request.Context(), accountID))
}
