package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey int

const (
	correlationIDKey contextKey = iota
	accountIDKey
)

// WithCorrelationID returns ctx carrying the request's correlation ID.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// GetCorrelationID returns the correlation ID in ctx, or "".
func GetCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// GenerateCorrelationID returns a new random correlation ID.
func GenerateCorrelationID() string {
	return uuid.New().String()
}

// WithAccountID returns ctx tagged with the CRM account being worked on.
// Every *WithContext log call made under it carries the account.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	if accountID == "" {
		return ctx
	}
	return context.WithValue(ctx, accountIDKey, accountID)
}

// GetAccountID returns the account ID in ctx, or "".
func GetAccountID(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey).(string)
	return id
}
