package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leadbridge/leadbridge/internal/logging"
)

// UnmatchedRoute is the endpoint label of requests that hit no registered
// route. Using it instead of the raw path keeps the label set bounded.
const UnmatchedRoute = "unmatched"

// Middleware records latency, count and in-flight gauges per route
// template. Handler errors are logged under the request context, so the
// line carries the correlation ID and the account the handler tagged.
func Middleware(m *Metrics, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.IncHTTPRequestsInFlight()
		defer m.DecHTTPRequestsInFlight()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = UnmatchedRoute
		}
		status := c.Writer.Status()
		code := strconv.Itoa(status)
		m.RecordRequestLatency(route, c.Request.Method, code, time.Since(start).Seconds())
		m.RecordHTTPRequest(route, c.Request.Method, code)

		if len(c.Errors) == 0 {
			return
		}
		ctx := c.Request.Context()
		fields := []interface{}{"route", route, "status", status, "error", c.Errors.Last().Error()}
		if status >= 500 {
			logger.ErrorWithContext(ctx, "request failed", fields...)
		} else {
			logger.WarnWithContext(ctx, "request rejected", fields...)
		}
	}
}
