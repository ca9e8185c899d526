package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestAuditEventLifecycle(t *testing.T) {
	event := NewAuditEvent(OAuthAuthorized, "oauth.callback", StatusSuccess).
		WithAccountID("default").
		WithIPAddress("127.0.0.1").
		WithResource("/api/auth/callback").
		WithCorrelationID("cid").
		WithDetails(map[string]interface{}{"location_id": "loc"})

	if event.AccountID != "default" || event.IPAddress != "127.0.0.1" {
		t.Fatalf("expected account and ip to be set")
	}
	if event.Severity != SeverityInfo {
		t.Fatalf("expected default severity info, got %s", event.Severity)
	}

	event.WithError("boom")
	if event.Status != StatusFailure {
		t.Fatalf("expected status to be failure")
	}
	if event.Severity != SeverityError {
		t.Fatalf("expected severity to be raised to error")
	}

	jsonStr := event.ToJSON()
	if !strings.Contains(jsonStr, "oauth.callback") {
		t.Fatalf("expected json output to contain action")
	}

	parsed, err := ParseAuditEvent(jsonStr)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if parsed.Action != event.Action || parsed.AccountID != "default" {
		t.Fatalf("expected parsed event to match")
	}
}

func TestAuditEventJSONErrors(t *testing.T) {
	event := NewAuditEvent(APIAccess, "call", StatusSuccess)
	event.Details = map[string]interface{}{"bad": func() {}}
	if !strings.Contains(event.ToJSON(), "failed to marshal audit event") {
		t.Fatalf("expected marshal failure message")
	}

	if _, err := ParseAuditEvent("{invalid json"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestWithErrorKeepsExplicitSeverity(t *testing.T) {
	event := NewAuditEvent(CredentialPurged, "refresh", StatusSuccess).
		WithSeverity(SeverityCritical).
		WithError("invalid_grant")
	if event.Severity != SeverityCritical {
		t.Fatalf("expected severity critical, got %s", event.Severity)
	}
}

func TestLoggerAudit(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelInfo))

	logger.Audit(NewAuditEvent(ExportCompleted, "export", StatusSuccess).WithCorrelationID("abc").WithAccountID("default"))
	entry := decodeLastLog(t, buf.Bytes())
	if entry["level"] != "info" || entry["correlation_id"] != "abc" || entry["account_id"] != "default" {
		t.Fatalf("unexpected audit entry: %v", entry)
	}
	fields := entry["fields"].(map[string]interface{})
	audit := fields["audit"].(map[string]interface{})
	if audit["event_type"] != string(ExportCompleted) {
		t.Fatalf("unexpected event type: %v", audit["event_type"])
	}

	logger.Audit(NewAuditEvent(TokenRefreshed, "refresh", StatusSuccess).WithError("invalid_grant"))
	entry = decodeLastLog(t, buf.Bytes())
	if entry["level"] != "warn" {
		t.Fatalf("expected failed audit at warn level, got %v", entry["level"])
	}

	logger.Audit(nil)
}
