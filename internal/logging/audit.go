package logging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	// OAuth lifecycle
	OAuthAuthorized   AuditEventType = "OAUTH_AUTHORIZED"
	OAuthFailed       AuditEventType = "OAUTH_FAILED"
	TokenRefreshed    AuditEventType = "TOKEN_REFRESHED"
	CredentialPurged  AuditEventType = "CREDENTIAL_PURGED"
	CredentialRevoked AuditEventType = "CREDENTIAL_REVOKED"

	// Export
	ExportCompleted AuditEventType = "EXPORT_COMPLETED"

	// API access
	APIAccess   AuditEventType = "API_ACCESS"
	AuthFailure AuditEventType = "AUTH_FAILURE"

	// Configuration
	ConfigChange AuditEventType = "CONFIG_CHANGE"
)

// AuditSeverity represents the severity level of an audit event
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityError    AuditSeverity = "error"
	SeverityCritical AuditSeverity = "critical"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	StatusSuccess AuditStatus = "success"
	StatusFailure AuditStatus = "failure"
)

// AuditEvent represents a security/operational audit event
type AuditEvent struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	EventType     AuditEventType         `json:"event_type"`
	Severity      AuditSeverity          `json:"severity"`
	AccountID     string                 `json:"account_id,omitempty"`
	IPAddress     string                 `json:"ip_address,omitempty"`
	Action        string                 `json:"action"`
	Resource      string                 `json:"resource,omitempty"`
	Status        AuditStatus            `json:"status"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
}

// NewAuditEvent creates a new audit event with a generated ID and timestamp
func NewAuditEvent(eventType AuditEventType, action string, status AuditStatus) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Severity:  SeverityInfo,
		Action:    action,
		Status:    status,
	}
}

// WithAccountID sets the CRM account the event concerns
func (e *AuditEvent) WithAccountID(accountID string) *AuditEvent {
	e.AccountID = accountID
	return e
}

// WithIPAddress sets the IP address for the audit event
func (e *AuditEvent) WithIPAddress(ipAddress string) *AuditEvent {
	e.IPAddress = ipAddress
	return e
}

// WithResource sets the resource for the audit event
func (e *AuditEvent) WithResource(resource string) *AuditEvent {
	e.Resource = resource
	return e
}

// WithSeverity sets the severity for the audit event
func (e *AuditEvent) WithSeverity(severity AuditSeverity) *AuditEvent {
	e.Severity = severity
	return e
}

// WithCorrelationID ties the event to a request
func (e *AuditEvent) WithCorrelationID(id string) *AuditEvent {
	e.CorrelationID = id
	return e
}

// WithDetails sets the details map for the audit event
func (e *AuditEvent) WithDetails(details map[string]interface{}) *AuditEvent {
	e.Details = details
	return e
}

// WithError sets the error message for the audit event
func (e *AuditEvent) WithError(errorMessage string) *AuditEvent {
	e.ErrorMessage = errorMessage
	e.Status = StatusFailure
	if e.Severity == "" || e.Severity == SeverityInfo {
		e.Severity = SeverityError
	}
	return e
}

// ToJSON converts the audit event to a JSON string
func (e *AuditEvent) ToJSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to marshal audit event: %v"}`, err)
	}
	return string(data)
}

// ParseAuditEvent parses a JSON string into an AuditEvent
func ParseAuditEvent(data string) (*AuditEvent, error) {
	var event AuditEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("failed to parse audit event: %w", err)
	}
	return &event, nil
}

// Audit writes event as a structured log line with an "audit" field.
// Failed events are logged at warn level.
func (l *Logger) Audit(event *AuditEvent) {
	if event == nil {
		return
	}
	level := LevelInfo
	if event.Status == StatusFailure {
		level = LevelWarn
	}
	l.write(level, "audit", scope{correlationID: event.CorrelationID, accountID: event.AccountID}, map[string]interface{}{
		"audit": event,
	})
}
