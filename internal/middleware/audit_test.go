package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/leadbridge/leadbridge/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditFields struct {
	Audit logging.AuditEvent `json:"audit"`
}

type auditLine struct {
	Level         string      `json:"level"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlation_id"`
	AccountID     string      `json:"account_id"`
	Fields        auditFields `json:"fields"`
}

func auditEvents(t *testing.T, buf *bytes.Buffer) []auditLine {
	t.Helper()
	var lines []auditLine
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var line auditLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		if line.Message == "audit" {
			lines = append(lines, line)
		}
	}
	return lines
}

func logLine(t *testing.T, buf *bytes.Buffer, message string) auditLine {
	t.Helper()
	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for scanner.Scan() {
		var line auditLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		if line.Message == message {
			return line
		}
	}
	t.Fatalf("no %q log line", message)
	return auditLine{}
}

func newAuditRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logging.NewLogger(logging.WithOutput(buf))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := logging.WithCorrelationID(c.Request.Context(), "corr-1")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(Audit(logger))
	r.POST("/export", func(c *gin.Context) {
		SetAuditResource(c, "export")
		SetAuditAccount(c, "acct-1")
		logger.InfoWithContext(c.Request.Context(), "export handled")
		c.Status(http.StatusOK)
	})
	r.GET("/denied", func(c *gin.Context) {
		c.Status(http.StatusUnauthorized)
	})
	r.GET("/broken", func(c *gin.Context) {
		_ = c.Error(errors.New("upstream unavailable"))
		c.Status(http.StatusBadGateway)
	})
	return r
}

func TestAuditRecordsSuccess(t *testing.T) {
	var buf bytes.Buffer
	r := newAuditRouter(&buf)

	req := httptest.NewRequest(http.MethodPost, "/export", nil)
	req.Header.Set("User-Agent", "audit-test")
	r.ServeHTTP(httptest.NewRecorder(), req)

	handled := logLine(t, &buf, "export handled")
	assert.Equal(t, "acct-1", handled.AccountID)
	assert.Equal(t, "corr-1", handled.CorrelationID)

	events := auditEvents(t, &buf)
	require.Len(t, events, 1)
	line := events[0]
	assert.Equal(t, "info", line.Level)
	assert.Equal(t, "corr-1", line.CorrelationID)
	assert.Equal(t, "acct-1", line.AccountID)

	event := line.Fields.Audit
	assert.Equal(t, logging.APIAccess, event.EventType)
	assert.Equal(t, logging.StatusSuccess, event.Status)
	assert.Equal(t, "POST /export", event.Action)
	assert.Equal(t, "export", event.Resource)
	assert.Equal(t, "acct-1", event.AccountID)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "audit-test", event.Details["user_agent"])
	assert.EqualValues(t, http.StatusOK, event.Details["status"])
}

func TestAuditRecordsFailures(t *testing.T) {
	var buf bytes.Buffer
	r := newAuditRouter(&buf)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/denied", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/broken", nil))

	events := auditEvents(t, &buf)
	require.Len(t, events, 2)

	denied := events[0]
	assert.Equal(t, "warn", denied.Level)
	assert.Equal(t, logging.StatusFailure, denied.Fields.Audit.Status)
	assert.Equal(t, logging.SeverityWarning, denied.Fields.Audit.Severity)
	assert.Equal(t, "/denied", denied.Fields.Audit.Resource)
	assert.Empty(t, denied.Fields.Audit.AccountID)

	broken := events[1].Fields.Audit
	assert.Equal(t, logging.SeverityError, broken.Severity)
	assert.Equal(t, "upstream unavailable", broken.ErrorMessage)
}
