package export

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/leadbridge/leadbridge/internal/config"
	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/leadbridge/leadbridge/internal/logging"
	"github.com/leadbridge/leadbridge/internal/metrics"
	"github.com/leadbridge/leadbridge/internal/models"
	"github.com/leadbridge/leadbridge/internal/oauth"
	"github.com/leadbridge/leadbridge/internal/store"
	"github.com/leadbridge/leadbridge/internal/upstream"
	"github.com/leadbridge/leadbridge/test/mocks"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	crm      *mocks.CRMServer
	creds    *store.MemoryStore
	clock    time.Time
	manager  *oauth.Manager
	notifier *mocks.MockNotifier
	metrics  *metrics.Metrics
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	crm := mocks.NewCRMServer()
	t.Cleanup(crm.Close)

	f := &fixture{
		crm:      crm,
		creds:    store.NewMemoryStore(),
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		notifier: mocks.NewMockNotifier(),
		metrics:  metrics.NewMetrics("test"),
	}
	quiet := logging.NewLogger(logging.WithOutput(&bytes.Buffer{}))
	f.manager = oauth.NewManager(
		oauth.Config{CRM: crm.Config(), OAuth: config.OAuthConfig{EnforceState: true}},
		f.creds, store.NewMemoryStateStore(),
		oauth.WithClock(func() time.Time { return f.clock }),
		oauth.WithLogger(quiet),
	)
	f.orch = NewOrchestrator(f.manager, upstream.NewCRMClient(crm.Config(), http.DefaultClient),
		WithLogger(quiet),
		WithMetrics(f.metrics),
		WithNotifier(f.notifier),
		WithSettings(f.creds.Settings()),
	)
	return f
}

func (f *fixture) authorize(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	req, err := f.manager.BeginAuthorization(ctx, "")
	require.NoError(t, err)
	_, err = f.manager.CompleteAuthorization(ctx, "good-code", req.State)
	require.NoError(t, err)
}

func lead(id, email string) models.LeadRecord {
	return models.LeadRecord{"id": id, "first_name": "Lead " + id, "email": email}
}

func TestExportLeadsAllSucceed(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)

	report, err := f.orch.ExportLeads(context.Background(), []models.LeadRecord{
		lead("1", "a@example.com"),
		lead("2", "b@example.com"),
		lead("3", "c@example.com"),
	}, "", "")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.SuccessCount)
	assert.Equal(t, 0, report.FailedCount)
	for i, res := range report.Results {
		assert.True(t, res.Success)
		assert.NotEmpty(t, res.ContactID)
		assert.Equal(t, []string{"1", "2", "3"}[i], res.LeadID)
	}

	contacts := f.crm.Contacts()
	require.Len(t, contacts, 3)
	assert.Equal(t, "a@example.com", contacts[0]["email"])
	assert.Equal(t, "c@example.com", contacts[2]["email"])
	for _, req := range f.crm.RequestsTo("/contacts/") {
		assert.Equal(t, "locationId="+mocks.CRMLocationID, req.Query)
	}

	assert.Empty(t, f.notifier.Messages())
	last, ok := store.ReadLastExport(f.creds.Settings())
	require.True(t, ok)
	assert.Equal(t, 3, last.Total)
	assert.Equal(t, 0, last.Failed)
	assert.Equal(t, "default", last.AccountID)
}

func TestExportLeadsPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)
	f.crm.FailContact("a@example.com", "This location does not allow duplicated contacts.")

	report, err := f.orch.ExportLeads(context.Background(), []models.LeadRecord{
		lead("A", "a@example.com"),
		lead("B", "b@example.com"),
	}, "", "")
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.False(t, report.Results[0].Success)
	assert.Equal(t, "A", report.Results[0].LeadID)
	assert.Equal(t, "a@example.com", report.Results[0].Email)
	assert.Equal(t, "This location does not allow duplicated contacts.", report.Results[0].Error)
	assert.Empty(t, report.Results[0].ContactID)

	assert.True(t, report.Results[1].Success)
	assert.Equal(t, "B", report.Results[1].LeadID)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 1, report.FailedCount)
	assert.Equal(t, report.Total, report.SuccessCount+report.FailedCount)

	msgs := f.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "<b>Failed:</b> 1")

	var metric dto.Metric
	require.NoError(t, f.metrics.ExportLeads.WithLabelValues(metrics.OutcomeFailure).Write(&metric))
	assert.Equal(t, 1.0, metric.GetCounter().GetValue())
}

func TestExportLeadsTargetLocationOverride(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)

	_, err := f.orch.ExportLeads(context.Background(), []models.LeadRecord{lead("1", "a@example.com")}, "", "loc-override")
	require.NoError(t, err)

	reqs := f.crm.RequestsTo("/contacts/")
	require.Len(t, reqs, 1)
	assert.Equal(t, "locationId=loc-override", reqs[0].Query)
}

func TestExportLeadsPreconditions(t *testing.T) {
	t.Run("not authenticated", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orch.ExportLeads(context.Background(), []models.LeadRecord{lead("1", "a@example.com")}, "", "")
		var notAuth *errors.ErrNotAuthenticated
		require.True(t, stderrors.As(err, &notAuth))
		assert.Empty(t, f.crm.Requests())
	})

	t.Run("not authenticated wins over empty batch", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orch.ExportLeads(context.Background(), nil, "", "")
		assert.Equal(t, errors.CodeNotAuthenticated, errors.Code(err))
	})

	t.Run("empty batch", func(t *testing.T) {
		f := newFixture(t)
		f.authorize(t)
		f.crm.ClearRequests()

		_, err := f.orch.ExportLeads(context.Background(), []models.LeadRecord{}, "", "")
		assert.Equal(t, errors.CodeEmptyBatch, errors.Code(err))
		assert.Empty(t, f.crm.Requests())
	})
}

func TestExportLeadsRefreshesExpiredToken(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)
	f.clock = f.clock.Add(2 * time.Hour)

	report, err := f.orch.ExportLeads(context.Background(), []models.LeadRecord{lead("1", "a@example.com")}, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.SuccessCount)

	reqs := f.crm.RequestsTo("/contacts/")
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer access-2", reqs[0].Headers["Authorization"])
}

func TestExportLeadsRefreshFailureAbortsBatch(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)
	f.crm.FailRefresh(true)
	f.clock = f.clock.Add(2 * time.Hour)

	report, err := f.orch.ExportLeads(context.Background(), []models.LeadRecord{lead("1", "a@example.com")}, "", "")
	assert.Nil(t, report)
	assert.Equal(t, errors.CodeRefreshFailed, errors.Code(err))
	assert.Empty(t, f.crm.RequestsTo("/contacts/"))

	_, err = f.orch.ExportLeads(context.Background(), []models.LeadRecord{lead("1", "a@example.com")}, "", "")
	assert.Equal(t, errors.CodeNotAuthenticated, errors.Code(err))
}

func TestExportLeadsIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.orch.ExportLeads(ctx, []models.LeadRecord{lead("1", "a@example.com"), lead("2", "b@example.com")}, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.SuccessCount)
}

type failingCreator struct{}

func (failingCreator) CreateContact(context.Context, string, string, models.CanonicalContact) (string, error) {
	return "", stderrors.New("connection reset")
}

func TestExportLeadsNonUpstreamError(t *testing.T) {
	f := newFixture(t)
	f.authorize(t)
	orch := NewOrchestrator(f.manager, failingCreator{}, WithLogger(logging.NewLogger(logging.WithOutput(&bytes.Buffer{}))))

	report, err := orch.ExportLeads(context.Background(), []models.LeadRecord{lead("1", "")}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "connection reset", report.Results[0].Error)
	assert.Equal(t, 1, report.FailedCount)

	encoded, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"successCount":0`)
}
