package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// OAuth errors

// ErrAuthExchange is returned when the authorization code could not be
// traded for tokens. StatusCode and Body carry the token endpoint's reply
// when there was one.
type ErrAuthExchange struct {
	Reason     string
	StatusCode int
	Body       string
	Err        error
}

func (e *ErrAuthExchange) Error() string {
	msg := "authorization code exchange failed"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil && e.Reason == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ErrAuthExchange) Unwrap() error {
	return e.Err
}

type ErrNotAuthenticated struct {
	AccountID string
}

func (e *ErrNotAuthenticated) Error() string {
	if e.AccountID == "" {
		return "not authenticated"
	}
	return fmt.Sprintf("account %s is not authenticated", e.AccountID)
}

// ErrRefreshFailed means the refresh grant was rejected. The stored
// credential has already been removed when this is returned.
type ErrRefreshFailed struct {
	AccountID  string
	StatusCode int
	Body       string
	Err        error
}

func (e *ErrRefreshFailed) Error() string {
	msg := fmt.Sprintf("token refresh failed for account %s, re-authorization required", e.AccountID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ErrRefreshFailed) Unwrap() error {
	return e.Err
}

type ErrNoRefreshToken struct {
	AccountID string
}

func (e *ErrNoRefreshToken) Error() string {
	return fmt.Sprintf("no refresh token stored for account %s", e.AccountID)
}

type ErrInvalidState struct {
	State string
}

func (e *ErrInvalidState) Error() string {
	if e.State == "" {
		return "missing oauth state"
	}
	return "unknown or expired oauth state"
}

// Upstream errors

// ErrUpstream wraps a failed call to the CRM or the lead source. Body is
// the response body exactly as received.
type ErrUpstream struct {
	Service    string
	Operation  string
	StatusCode int
	Message    string
	Body       string
	// RetryAfter is the wait the upstream asked for on a 429.
	RetryAfter time.Duration
	Err        error
}

func (e *ErrUpstream) Error() string {
	switch {
	case e.Message != "" && e.StatusCode != 0:
		return fmt.Sprintf("%s %s failed with status %d: %s", e.Service, e.Operation, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s failed with status %d", e.Service, e.Operation, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s %s failed: %v", e.Service, e.Operation, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %s failed: %s", e.Service, e.Operation, e.Message)
	default:
		return fmt.Sprintf("%s %s failed", e.Service, e.Operation)
	}
}

func (e *ErrUpstream) Unwrap() error {
	return e.Err
}

// Validation errors

type ErrEmptyBatch struct {
	Reason string
}

func (e *ErrEmptyBatch) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("no leads to export: %s", e.Reason)
	}
	return "no leads to export"
}

type ErrInvalidInput struct {
	Field  string
	Reason string
}

func (e *ErrInvalidInput) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input for %s: %s", e.Field, e.Reason)
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

// Error codes reported to API clients.
const (
	CodeAuthExchange     = "auth_exchange_failed"
	CodeNotAuthenticated = "not_authenticated"
	CodeRefreshFailed    = "refresh_failed"
	CodeNoRefreshToken   = "no_refresh_token"
	CodeInvalidState     = "invalid_state"
	CodeUpstream         = "upstream_error"
	CodeEmptyBatch       = "empty_batch"
	CodeInvalidInput     = "invalid_input"
	CodeInternal         = "internal_error"
)

// Code maps err onto the client facing error code.
func Code(err error) string {
	var (
		exchange   *ErrAuthExchange
		notAuth    *ErrNotAuthenticated
		refresh    *ErrRefreshFailed
		noRefresh  *ErrNoRefreshToken
		state      *ErrInvalidState
		upstream   *ErrUpstream
		emptyBatch *ErrEmptyBatch
		invalid    *ErrInvalidInput
	)
	switch {
	case err == nil:
		return ""
	case stderrors.As(err, &refresh):
		return CodeRefreshFailed
	case stderrors.As(err, &noRefresh):
		return CodeNoRefreshToken
	case stderrors.As(err, &notAuth):
		return CodeNotAuthenticated
	case stderrors.As(err, &exchange):
		return CodeAuthExchange
	case stderrors.As(err, &state):
		return CodeInvalidState
	case stderrors.As(err, &upstream):
		return CodeUpstream
	case stderrors.As(err, &emptyBatch):
		return CodeEmptyBatch
	case stderrors.As(err, &invalid):
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}

// HTTPStatus returns the status an API handler should answer with for err.
func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeEmptyBatch, CodeInvalidInput, CodeInvalidState:
		return http.StatusBadRequest
	case CodeNotAuthenticated, CodeRefreshFailed, CodeNoRefreshToken:
		return http.StatusUnauthorized
	case CodeAuthExchange, CodeUpstream:
		return http.StatusBadGateway
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Details returns the upstream response body and status preserved in err,
// if any.
func Details(err error) (body string, status int) {
	var (
		exchange *ErrAuthExchange
		refresh  *ErrRefreshFailed
		upstream *ErrUpstream
	)
	switch {
	case stderrors.As(err, &upstream):
		return upstream.Body, upstream.StatusCode
	case stderrors.As(err, &refresh):
		return refresh.Body, refresh.StatusCode
	case stderrors.As(err, &exchange):
		return exchange.Body, exchange.StatusCode
	}
	return "", 0
}

// RetryAfter returns the wait an upstream rate limit asked for, or zero.
func RetryAfter(err error) time.Duration {
	var upstream *ErrUpstream
	if stderrors.As(err, &upstream) {
		return upstream.RetryAfter
	}
	return 0
}
