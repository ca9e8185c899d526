// Package logging writes JSON log lines tagged with the request and the
// CRM account they concern.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var levelRank = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// serviceName is stamped on every entry.
const serviceName = "leadbridge"

// Logger writes one JSON object per line. Entries carry the correlation ID
// and account ID as top-level keys so they can be filtered without parsing
// the free-form fields.
type Logger struct {
	mu     sync.Mutex
	output io.Writer
	level  LogLevel
}

// LoggerOption is a function that configures a Logger
type LoggerOption func(*Logger)

// WithOutput sets the output writer for the logger
func WithOutput(w io.Writer) LoggerOption {
	return func(l *Logger) {
		l.output = w
	}
}

// WithLevel sets the minimum log level
func WithLevel(level LogLevel) LoggerOption {
	return func(l *Logger) {
		l.level = level
	}
}

// NewLogger creates a Logger writing info and above to stdout.
func NewLogger(opts ...LoggerOption) *Logger {
	logger := &Logger{
		output: os.Stdout,
		level:  LevelInfo,
	}
	for _, opt := range opts {
		opt(logger)
	}
	return logger
}

type logEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         LogLevel               `json:"level"`
	Service       string                 `json:"service"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	AccountID     string                 `json:"account_id,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// scope identifies what an entry is about.
type scope struct {
	correlationID string
	accountID     string
}

func scopeFrom(ctx context.Context) scope {
	return scope{correlationID: GetCorrelationID(ctx), accountID: GetAccountID(ctx)}
}

// override returns s with the non-empty values of o applied.
func (s scope) override(o scope) scope {
	if o.correlationID != "" {
		s.correlationID = o.correlationID
	}
	if o.accountID != "" {
		s.accountID = o.accountID
	}
	return s
}

// ParseLevel maps a configured level name onto a LogLevel, falling back to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) enabled(level LogLevel) bool {
	return levelRank[level] >= levelRank[l.level]
}

func (l *Logger) write(level LogLevel, message string, sc scope, fields map[string]interface{}) {
	if !l.enabled(level) {
		return
	}

	entry := logEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         level,
		Service:       serviceName,
		Message:       message,
		CorrelationID: sc.correlationID,
		AccountID:     sc.accountID,
		Fields:        fields,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("failed to marshal log entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.output, string(data))
}

func (l *Logger) logFields(level LogLevel, message string, fields []interface{}) {
	sc, fieldMap := parseFields(fields)
	l.write(level, message, sc, fieldMap)
}

func (l *Logger) logContext(ctx context.Context, level LogLevel, message string, fields []interface{}) {
	sc, fieldMap := parseFields(fields)
	l.write(level, message, scopeFrom(ctx).override(sc), fieldMap)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...interface{}) {
	l.logFields(LevelDebug, message, fields)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...interface{}) {
	l.logFields(LevelInfo, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...interface{}) {
	l.logFields(LevelWarn, message, fields)
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...interface{}) {
	l.logFields(LevelError, message, fields)
}

// DebugWithContext logs a debug message tagged with the IDs found in ctx.
func (l *Logger) DebugWithContext(ctx context.Context, message string, fields ...interface{}) {
	l.logContext(ctx, LevelDebug, message, fields)
}

// InfoWithContext logs an info message tagged with the IDs found in ctx.
func (l *Logger) InfoWithContext(ctx context.Context, message string, fields ...interface{}) {
	l.logContext(ctx, LevelInfo, message, fields)
}

// WarnWithContext logs a warning tagged with the IDs found in ctx.
func (l *Logger) WarnWithContext(ctx context.Context, message string, fields ...interface{}) {
	l.logContext(ctx, LevelWarn, message, fields)
}

// ErrorWithContext logs an error tagged with the IDs found in ctx.
func (l *Logger) ErrorWithContext(ctx context.Context, message string, fields ...interface{}) {
	l.logContext(ctx, LevelError, message, fields)
}

// parseFields turns key, value pairs into a map. correlation_id and
// account_id are lifted out into the returned scope. Non-string keys are
// skipped along with their value.
func parseFields(fields []interface{}) (scope, map[string]interface{}) {
	var sc scope
	fieldMap := make(map[string]interface{})

	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		value := fields[i+1]
		switch key {
		case "correlation_id":
			if id, ok := value.(string); ok {
				sc.correlationID = id
				continue
			}
		case "account_id":
			if id, ok := value.(string); ok {
				sc.accountID = id
				continue
			}
		}
		fieldMap[key] = value
	}

	return sc, fieldMap
}
