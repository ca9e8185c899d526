// Package export pushes lead batches into the CRM one contact at a time.
package export

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/leadbridge/leadbridge/internal/leads"
	"github.com/leadbridge/leadbridge/internal/logging"
	"github.com/leadbridge/leadbridge/internal/metrics"
	"github.com/leadbridge/leadbridge/internal/models"
	"github.com/leadbridge/leadbridge/internal/store"
	"github.com/leadbridge/leadbridge/internal/telegram"
)

// CredentialProvider resolves the credential used for an export.
type CredentialProvider interface {
	Lookup(accountID string) (*models.CredentialRecord, bool)
	ValidCredential(ctx context.Context, accountID string) (*models.CredentialRecord, error)
	ResolveAccount(accountID string) string
}

// ContactCreator creates a single CRM contact.
type ContactCreator interface {
	CreateContact(ctx context.Context, token, locationID string, contact models.CanonicalContact) (string, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics records batch and per-lead outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithNotifier sends a summary for batches that had failures.
func WithNotifier(n telegram.Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// WithSettings records the outcome of the latest export in s.
func WithSettings(s store.SettingsStore) Option {
	return func(o *Orchestrator) {
		o.settings = s
	}
}

// Orchestrator runs export batches.
type Orchestrator struct {
	creds    CredentialProvider
	contacts ContactCreator
	logger   *logging.Logger
	metrics  *metrics.Metrics
	notifier telegram.Notifier
	settings store.SettingsStore
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(creds CredentialProvider, contacts ContactCreator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		creds:    creds,
		contacts: contacts,
		logger:   logging.NewLogger(),
		notifier: telegram.NopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExportLeads creates one CRM contact per lead, strictly in order, and
// reports every outcome. targetLocationID overrides the location stored
// with the credential. Once a valid credential is obtained no error is
// returned: per-lead failures are part of the report.
func (o *Orchestrator) ExportLeads(ctx context.Context, batch []models.LeadRecord, accountID, targetLocationID string) (*models.ExportReport, error) {
	accountID = o.creds.ResolveAccount(accountID)

	if _, ok := o.creds.Lookup(accountID); !ok {
		return nil, &errors.ErrNotAuthenticated{AccountID: accountID}
	}
	if len(batch) == 0 {
		return nil, &errors.ErrEmptyBatch{}
	}

	// The batch runs to completion even if the caller goes away.
	ctx = logging.WithAccountID(context.WithoutCancel(ctx), accountID)

	rec, err := o.creds.ValidCredential(ctx, accountID)
	if err != nil {
		return nil, err
	}

	locationID := targetLocationID
	if locationID == "" {
		locationID = rec.LocationID
	}

	started := o.now()
	o.logger.InfoWithContext(ctx, "export started",
		"location_id", locationID,
		"leads", len(batch),
	)

	report := &models.ExportReport{Results: make([]models.ExportResult, 0, len(batch))}
	for i, lead := range batch {
		report.Add(o.exportOne(ctx, i, lead, rec.AccessToken, locationID))
	}

	o.finish(ctx, accountID, report, o.now().Sub(started))
	return report, nil
}

func (o *Orchestrator) exportOne(ctx context.Context, index int, lead models.LeadRecord, token, locationID string) models.ExportResult {
	contact := leads.Normalize(lead)
	res := models.ExportResult{
		LeadID: leads.LeadID(lead),
		Email:  contact.Email,
	}

	contactID, err := o.contacts.CreateContact(ctx, token, locationID, contact)
	if err != nil {
		res.Error = failureMessage(err)
		o.logger.WarnWithContext(ctx, "lead export failed",
			"index", index,
			"lead_id", res.LeadID,
			"error", res.Error,
		)
		return res
	}

	res.Success = true
	res.ContactID = contactID
	o.logger.DebugWithContext(ctx, "lead exported", "index", index, "lead_id", res.LeadID, "contact_id", contactID)
	return res
}

func (o *Orchestrator) finish(ctx context.Context, accountID string, report *models.ExportReport, elapsed time.Duration) {
	if o.metrics != nil {
		o.metrics.RecordExportBatch(report.SuccessCount, report.FailedCount)
	}

	o.logger.InfoWithContext(ctx, "export finished",
		"total", report.Total,
		"succeeded", report.SuccessCount,
		"failed", report.FailedCount,
		"duration_ms", elapsed.Milliseconds(),
	)

	status := logging.StatusSuccess
	if report.FailedCount > 0 && report.SuccessCount == 0 {
		status = logging.StatusFailure
	}
	event := logging.NewAuditEvent(logging.ExportCompleted, "export", status).
		WithAccountID(accountID).
		WithCorrelationID(logging.GetCorrelationID(ctx)).
		WithDetails(map[string]interface{}{
			"total":     report.Total,
			"succeeded": report.SuccessCount,
			"failed":    report.FailedCount,
		})
	if report.FailedCount > 0 {
		event.WithSeverity(logging.SeverityWarning)
	}
	o.logger.Audit(event)

	o.recordSettings(accountID, report)

	if report.FailedCount > 0 {
		if err := o.notifier.Notify(ctx, telegram.FormatExportSummary(accountID, report)); err != nil {
			o.logger.WarnWithContext(ctx, "failed to send export summary", "error", err.Error())
		}
	}
}

func (o *Orchestrator) recordSettings(accountID string, report *models.ExportReport) {
	if o.settings == nil {
		return
	}
	last := store.LastExport{
		At:        o.now(),
		AccountID: accountID,
		Total:     report.Total,
		Failed:    report.FailedCount,
	}
	if err := store.RecordLastExport(o.settings, last); err != nil {
		o.logger.Warn("failed to record export summary", "account_id", accountID, "error", err.Error())
	}
}

// failureMessage is the text reported for a failed lead: the CRM's own
// message when it sent one.
func failureMessage(err error) string {
	var upErr *errors.ErrUpstream
	if stderrors.As(err, &upErr) && upErr.Message != "" {
		return upErr.Message
	}
	return err.Error()
}
