package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestConfigErrors(t *testing.T) {
	notFound := &ErrConfigNotFound{Path: "/tmp/config.yaml"}
	if !strings.Contains(notFound.Error(), "config file not found") {
		t.Fatalf("unexpected error message: %s", notFound.Error())
	}
	if !strings.Contains(notFound.Error(), notFound.Path) {
		t.Fatalf("expected path in error message: %s", notFound.Error())
	}

	base := errors.New("bad yaml")
	parse := &ErrConfigParse{Err: base}
	if !strings.Contains(parse.Error(), "failed to parse YAML") {
		t.Fatalf("unexpected parse message: %s", parse.Error())
	}
	if !errors.Is(parse, base) {
		t.Fatalf("expected unwrap to base error")
	}

	validation := &ErrConfigValidation{Err: base}
	if !strings.Contains(validation.Error(), "config validation failed") {
		t.Fatalf("unexpected validation message: %s", validation.Error())
	}
	if !errors.Is(validation, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestDatabaseErrors(t *testing.T) {
	base := errors.New("db")

	op := &ErrDatabaseOpen{Path: "/tmp/db.sqlite", Err: base}
	if !strings.Contains(op.Error(), "failed to open database") {
		t.Fatalf("unexpected open message: %s", op.Error())
	}
	if !errors.Is(op, base) {
		t.Fatalf("expected unwrap to base error")
	}

	migration := &ErrDatabaseMigration{Version: 2, Err: base}
	if !strings.Contains(migration.Error(), "database migration 2 failed") {
		t.Fatalf("unexpected migration message: %s", migration.Error())
	}
	if !errors.Is(migration, base) {
		t.Fatalf("expected unwrap to base error")
	}

	query := &ErrDatabaseQuery{Operation: "select", Err: base}
	if !strings.Contains(query.Error(), "database query failed") {
		t.Fatalf("unexpected query message: %s", query.Error())
	}
	if !errors.Is(query, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestServerAndFilesystemErrors(t *testing.T) {
	base := errors.New("boom")

	start := &ErrServerStart{Addr: ":8080", Err: base}
	if !strings.Contains(start.Error(), "failed to start server") {
		t.Fatalf("unexpected server start message: %s", start.Error())
	}
	if !errors.Is(start, base) {
		t.Fatalf("expected unwrap to base error")
	}

	shutdown := &ErrServerShutdown{Err: base}
	if !strings.Contains(shutdown.Error(), "server shutdown failed") {
		t.Fatalf("unexpected server shutdown message: %s", shutdown.Error())
	}
	if !errors.Is(shutdown, base) {
		t.Fatalf("expected unwrap to base error")
	}

	mkdir := &ErrDirectoryCreate{Path: "/tmp/dir", Err: base}
	if !strings.Contains(mkdir.Error(), "failed to create directory") {
		t.Fatalf("unexpected mkdir message: %s", mkdir.Error())
	}
	if !errors.Is(mkdir, base) {
		t.Fatalf("expected unwrap to base error")
	}

	read := &ErrFileRead{Path: "/tmp/file", Err: base}
	if !strings.Contains(read.Error(), "failed to read file") {
		t.Fatalf("unexpected read message: %s", read.Error())
	}
	if !errors.Is(read, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestOAuthErrors(t *testing.T) {
	base := errors.New("bad grant")

	exchange := &ErrAuthExchange{StatusCode: 400, Body: `{"error":"invalid_grant"}`, Err: base}
	if !strings.Contains(exchange.Error(), "status 400") {
		t.Fatalf("expected status in exchange message: %s", exchange.Error())
	}
	if !errors.Is(exchange, base) {
		t.Fatalf("expected unwrap to base error")
	}

	missing := &ErrAuthExchange{Reason: "missing authorization code"}
	if missing.Error() != "authorization code exchange failed: missing authorization code" {
		t.Fatalf("unexpected message: %s", missing.Error())
	}

	if (&ErrNotAuthenticated{}).Error() != "not authenticated" {
		t.Fatalf("unexpected not authenticated message")
	}
	if !strings.Contains((&ErrNotAuthenticated{AccountID: "acc"}).Error(), "acc") {
		t.Fatalf("expected account id in message")
	}

	refresh := &ErrRefreshFailed{AccountID: "acc", Err: base}
	if !strings.Contains(refresh.Error(), "re-authorization required") {
		t.Fatalf("unexpected refresh message: %s", refresh.Error())
	}
	if !errors.Is(refresh, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestUpstreamErrorMessage(t *testing.T) {
	err := &ErrUpstream{Service: "crm", Operation: "create contact", StatusCode: 422, Message: "email invalid"}
	if err.Error() != "crm create contact failed with status 422: email invalid" {
		t.Fatalf("unexpected message: %s", err.Error())
	}

	transport := &ErrUpstream{Service: "leadsource", Operation: "fetch leads", Err: errors.New("dial tcp")}
	if !strings.Contains(transport.Error(), "dial tcp") {
		t.Fatalf("expected transport error in message: %s", transport.Error())
	}
}

func TestCodeAndStatus(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{&ErrAuthExchange{Reason: "x"}, CodeAuthExchange, 502},
		{&ErrNotAuthenticated{AccountID: "a"}, CodeNotAuthenticated, 401},
		{&ErrRefreshFailed{AccountID: "a"}, CodeRefreshFailed, 401},
		{&ErrNoRefreshToken{AccountID: "a"}, CodeNoRefreshToken, 401},
		{&ErrInvalidState{State: "s"}, CodeInvalidState, 400},
		{&ErrUpstream{Service: "crm"}, CodeUpstream, 502},
		{&ErrEmptyBatch{}, CodeEmptyBatch, 400},
		{&ErrInvalidInput{Field: "leads", Reason: "bad"}, CodeInvalidInput, 400},
		{fmt.Errorf("wrapped: %w", &ErrEmptyBatch{}), CodeEmptyBatch, 400},
		{errors.New("other"), CodeInternal, 500},
	}

	for _, tt := range tests {
		if got := Code(tt.err); got != tt.code {
			t.Errorf("Code(%v) = %s, want %s", tt.err, got, tt.code)
		}
		if got := HTTPStatus(tt.err); got != tt.status {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}

func TestDetails(t *testing.T) {
	body, status := Details(fmt.Errorf("export: %w", &ErrUpstream{StatusCode: 503, Body: "down"}))
	if body != "down" || status != 503 {
		t.Fatalf("unexpected details: %q %d", body, status)
	}

	body, status = Details(&ErrRefreshFailed{StatusCode: 400, Body: "invalid_grant"})
	if body != "invalid_grant" || status != 400 {
		t.Fatalf("unexpected details: %q %d", body, status)
	}

	if body, _ := Details(errors.New("plain")); body != "" {
		t.Fatalf("expected no details for plain error")
	}
}

func TestRetryAfter(t *testing.T) {
	err := fmt.Errorf("create contact: %w", &ErrUpstream{StatusCode: 429, RetryAfter: 2 * time.Second})
	if got := RetryAfter(err); got != 2*time.Second {
		t.Fatalf("RetryAfter = %s, want 2s", got)
	}
	if got := RetryAfter(errors.New("plain")); got != 0 {
		t.Fatalf("RetryAfter = %s, want 0", got)
	}
}
