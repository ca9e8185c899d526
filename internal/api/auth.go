package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/leadbridge/leadbridge/internal/logging"
)

// Constants for header names
const (
	// DefaultAPIKeyHeader is the default header name for API key authentication
	DefaultAPIKeyHeader = "X-API-Key"
)

// APIKeyAuth creates a middleware that validates API keys from the request header.
// If no API keys are configured, authentication is bypassed.
func APIKeyAuth(apiKeys []string, headerName string, logger *logging.Logger) gin.HandlerFunc {
	if headerName == "" {
		headerName = DefaultAPIKeyHeader
	}

	if len(apiKeys) == 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		apiKey := c.GetHeader(headerName)

		if apiKey == "" {
			authFailed(c, logger, headerName, "missing API key")
			abortWithError(c, http.StatusUnauthorized, CodeUnauthorized,
				"API key is required. Provide it in the '"+headerName+"' header")
			return
		}

		for _, key := range apiKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				c.Set("api_key", apiKey)
				c.Set("authenticated", true)
				c.Next()
				return
			}
		}

		authFailed(c, logger, headerName, "invalid API key")
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid API key")
	}
}

func authFailed(c *gin.Context, logger *logging.Logger, headerName, reason string) {
	ctx := c.Request.Context()
	clientIP := c.ClientIP()
	logger.WarnWithContext(ctx, "API authentication failed: "+reason,
		"header_name", headerName,
		"client_ip", clientIP,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)
	logger.Audit(logging.NewAuditEvent(logging.AuthFailure, c.Request.Method+" "+c.Request.URL.Path, logging.StatusFailure).
		WithIPAddress(clientIP).
		WithCorrelationID(logging.GetCorrelationID(ctx)).
		WithSeverity(logging.SeverityWarning).
		WithError(reason))
}

// MaskAPIKeys masks API keys for logging (shows only first 4 characters)
func MaskAPIKeys(keys []string) []string {
	masked := make([]string, len(keys))
	for i, key := range keys {
		if len(key) <= 4 {
			masked[i] = strings.Repeat("*", len(key))
		} else {
			masked[i] = key[:4] + strings.Repeat("*", len(key)-4)
		}
	}
	return masked
}
