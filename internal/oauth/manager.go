package oauth

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/leadbridge/leadbridge/internal/alerts"
	"github.com/leadbridge/leadbridge/internal/config"
	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/leadbridge/leadbridge/internal/logging"
	"github.com/leadbridge/leadbridge/internal/metrics"
	"github.com/leadbridge/leadbridge/internal/models"
	"github.com/leadbridge/leadbridge/internal/store"
	"github.com/leadbridge/leadbridge/internal/telegram"
	"golang.org/x/oauth2"
)

// Config is the part of the application configuration the manager uses.
type Config struct {
	CRM   config.CRMConfig
	OAuth config.OAuthConfig
}

// ConfigFrom extracts the manager configuration from cfg.
func ConfigFrom(cfg *config.Config) Config {
	return Config{CRM: cfg.CRM, OAuth: cfg.OAuth}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger used for operational and audit logs.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics records exchanges and refreshes in met.
func WithMetrics(met *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = met
	}
}

// WithNotifier sets where re-authorization notices go.
func WithNotifier(n telegram.Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithHTTPClient sets the client used to call the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = c
	}
}

// Manager owns the credential lifecycle for CRM accounts: the authorization
// code exchange, expiry tracking and refresh on demand. All credential
// writes go through it.
type Manager struct {
	cfg        Config
	oauth      *oauth2.Config
	creds      store.Store
	states     store.StateStore
	now        func() time.Time
	logger     *logging.Logger
	metrics    *metrics.Metrics
	notifier   telegram.Notifier
	httpClient *http.Client

	mu    sync.Mutex
	locks map[string]*accountLock
}

// accountLock serializes credential work on one account. refs counts the
// holders and waiters; the entry is dropped when it reaches zero.
type accountLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a manager backed by creds and states.
func NewManager(cfg Config, creds store.Store, states store.StateStore, opts ...Option) *Manager {
	m := &Manager{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.CRM.ClientID,
			ClientSecret: cfg.CRM.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.CRM.AuthURL,
				TokenURL:  cfg.CRM.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.CRM.RedirectURI,
			Scopes:      cfg.CRM.Scopes,
		},
		creds:    creds,
		states:   states,
		now:      time.Now,
		logger:   logging.NewLogger(),
		notifier: telegram.NopNotifier{},
		locks:    make(map[string]*accountLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.CRM.TokenTTL <= 0 {
		m.cfg.CRM.TokenTTL = time.Hour
	}
	if m.cfg.OAuth.StateTTL <= 0 {
		m.cfg.OAuth.StateTTL = 10 * time.Minute
	}
	m.updateStoredGauge()
	return m
}

// DefaultAccountID returns the account used when a caller names none.
func (m *Manager) DefaultAccountID() string {
	return m.cfg.CRM.DefaultAccountID
}

// ResolveAccount returns accountID, or the default account when empty.
func (m *Manager) ResolveAccount(accountID string) string {
	if accountID == "" {
		return m.cfg.CRM.DefaultAccountID
	}
	return accountID
}

// lockAccount blocks until the caller owns accountID and returns the
// release func. Only accounts with work in flight occupy the lock table,
// so arbitrary account IDs cannot grow it.
func (m *Manager) lockAccount(accountID string) (unlock func()) {
	m.mu.Lock()
	l, ok := m.locks[accountID]
	if !ok {
		l = &accountLock{}
		m.locks[accountID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, accountID)
		}
		m.mu.Unlock()
	}
}


func (m *Manager) tokenContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// BeginAuthorization builds the CRM consent URL for accountID and remembers
// the issued state until the callback arrives.
func (m *Manager) BeginAuthorization(ctx context.Context, accountID string) (*models.AuthorizationRequest, error) {
	accountID = m.ResolveAccount(accountID)

	state, err := RandomString(stateBytes)
	if err != nil {
		return nil, err
	}
	data := store.OAuthState{AccountID: accountID, CreatedAt: m.now().UTC()}
	if err := m.states.SaveState(ctx, state, data, m.cfg.OAuth.StateTTL); err != nil {
		return nil, err
	}

	m.logger.DebugWithContext(ctx, "authorization url issued", "account_id", accountID)
	return &models.AuthorizationRequest{
		AuthURL: m.oauth.AuthCodeURL(state),
		State:   state,
	}, nil
}

// CompleteAuthorization exchanges code for tokens and stores the resulting
// credential under the account that requested state.
func (m *Manager) CompleteAuthorization(ctx context.Context, code, state string) (*models.CredentialRecord, error) {
	if code == "" {
		err := &errors.ErrAuthExchange{Reason: "authorization code is required"}
		m.exchangeFailed(ctx, "", err)
		return nil, err
	}

	accountID, err := m.accountForState(ctx, state)
	if err != nil {
		m.exchangeFailed(ctx, "", err)
		return nil, err
	}

	defer m.lockAccount(accountID)()

	issuedAt := m.now()
	tok, err := m.oauth.Exchange(m.tokenContext(ctx), code)
	if err != nil {
		exchangeErr := &errors.ErrAuthExchange{Err: err}
		var retrieveErr *oauth2.RetrieveError
		if stderrors.As(err, &retrieveErr) {
			exchangeErr.Body = string(retrieveErr.Body)
			if retrieveErr.Response != nil {
				exchangeErr.StatusCode = retrieveErr.Response.StatusCode
			}
			exchangeErr.Reason = describeRetrieveError(retrieveErr)
		}
		m.exchangeFailed(ctx, accountID, exchangeErr)
		return nil, exchangeErr
	}

	rec := newRecord(accountID, tok, issuedAt, m.cfg.CRM.TokenTTL)
	if err := m.creds.SetCredential(rec); err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.RecordOAuthExchange(metrics.OutcomeSuccess)
	}
	m.updateStoredGauge()
	m.logger.InfoWithContext(ctx, "crm account authorized",
		"account_id", accountID,
		"location_id", rec.LocationID,
		"expires_at", rec.ExpiresAtTime().UTC().Format(time.RFC3339),
	)
	m.logger.Audit(logging.NewAuditEvent(logging.OAuthAuthorized, "authorize", logging.StatusSuccess).
		WithAccountID(accountID).
		WithCorrelationID(logging.GetCorrelationID(ctx)).
		WithResource(rec.LocationID))

	return rec.Clone(), nil
}

func (m *Manager) accountForState(ctx context.Context, state string) (string, error) {
	var data *store.OAuthState
	if state != "" {
		var err error
		data, err = m.states.ConsumeState(ctx, state)
		if err != nil {
			return "", err
		}
	}
	if data != nil {
		return m.ResolveAccount(data.AccountID), nil
	}
	if m.cfg.OAuth.EnforceState {
		return "", &errors.ErrInvalidState{State: state}
	}
	return m.cfg.CRM.DefaultAccountID, nil
}

func (m *Manager) exchangeFailed(ctx context.Context, accountID string, err error) {
	if m.metrics != nil {
		m.metrics.RecordOAuthExchange(metrics.OutcomeFailure)
	}
	m.logger.WarnWithContext(ctx, "authorization failed", "account_id", accountID, "error", err.Error())
	m.logger.Audit(logging.NewAuditEvent(logging.OAuthFailed, "authorize", logging.StatusFailure).
		WithAccountID(accountID).
		WithCorrelationID(logging.GetCorrelationID(ctx)).
		WithError(err.Error()))
}

// GetValidToken returns an access token for accountID that is not expired,
// refreshing it first when needed.
func (m *Manager) GetValidToken(ctx context.Context, accountID string) (string, error) {
	rec, err := m.ValidCredential(ctx, accountID)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

// ValidCredential is GetValidToken returning a copy of the whole record.
func (m *Manager) ValidCredential(ctx context.Context, accountID string) (*models.CredentialRecord, error) {
	accountID = m.ResolveAccount(accountID)

	defer m.lockAccount(accountID)()

	rec, ok := m.creds.GetCredential(accountID)
	if !ok {
		return nil, &errors.ErrNotAuthenticated{AccountID: accountID}
	}
	if !rec.Expired(m.now()) {
		return rec.Clone(), nil
	}

	refreshed, err := m.refresh(ctx, rec)
	if err != nil {
		return nil, err
	}
	return refreshed.Clone(), nil
}

// refresh trades the stored refresh token for a new access token. Callers
// must hold the account lock. A rejected refresh deletes the credential.
func (m *Manager) refresh(ctx context.Context, rec *models.CredentialRecord) (*models.CredentialRecord, error) {
	if rec.RefreshToken == "" {
		return nil, &errors.ErrNoRefreshToken{AccountID: rec.AccountID}
	}

	issuedAt := m.now()
	src := m.oauth.TokenSource(m.tokenContext(ctx), &oauth2.Token{RefreshToken: rec.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, m.refreshFailed(ctx, rec.AccountID, err)
	}

	updated := mergeRefreshed(rec, tok, issuedAt, m.cfg.CRM.TokenTTL)
	if err := m.creds.SetCredential(updated); err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.RecordTokenRefresh(metrics.OutcomeSuccess)
	}
	m.logger.InfoWithContext(ctx, "access token refreshed",
		"account_id", rec.AccountID,
		"expires_at", updated.ExpiresAtTime().UTC().Format(time.RFC3339),
		"refresh_token_rotated", updated.RefreshToken != rec.RefreshToken,
	)
	m.logger.Audit(logging.NewAuditEvent(logging.TokenRefreshed, "refresh", logging.StatusSuccess).
		WithAccountID(rec.AccountID).
		WithCorrelationID(logging.GetCorrelationID(ctx)))

	return updated, nil
}

func (m *Manager) refreshFailed(ctx context.Context, accountID string, cause error) error {
	refreshErr := &errors.ErrRefreshFailed{AccountID: accountID, Err: cause}
	reason := cause.Error()
	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(cause, &retrieveErr) {
		refreshErr.Body = string(retrieveErr.Body)
		if retrieveErr.Response != nil {
			refreshErr.StatusCode = retrieveErr.Response.StatusCode
		}
		reason = describeRetrieveError(retrieveErr)
	}

	if err := m.creds.DeleteCredential(accountID); err != nil {
		m.logger.ErrorWithContext(ctx, "failed to delete credential after refresh failure",
			"account_id", accountID, "error", err.Error())
	}

	if m.metrics != nil {
		m.metrics.RecordTokenRefresh(metrics.OutcomeFailure)
	}
	m.updateStoredGauge()
	m.logger.WarnWithContext(ctx, "token refresh failed, credential removed",
		"account_id", accountID,
		"status", refreshErr.StatusCode,
		"error", reason,
	)
	m.logger.Audit(logging.NewAuditEvent(logging.CredentialPurged, "refresh", logging.StatusFailure).
		WithAccountID(accountID).
		WithCorrelationID(logging.GetCorrelationID(ctx)).
		WithSeverity(logging.SeverityWarning).
		WithError(reason))

	notifyCtx := alerts.WithDedupKey(context.WithoutCancel(ctx), "reauth:"+accountID)
	if err := m.notifier.Notify(notifyCtx, telegram.FormatReauthRequired(accountID, reason)); err != nil {
		m.logger.WarnWithContext(ctx, "failed to send re-authorization notice", "account_id", accountID, "error", err.Error())
	}

	return refreshErr
}

// AuthStatus reports whether accountID holds an unexpired token. It never
// refreshes and never modifies the stored record.
func (m *Manager) AuthStatus(accountID string) models.AuthStatus {
	rec, ok := m.creds.GetCredential(m.ResolveAccount(accountID))
	if !ok {
		return models.AuthStatus{}
	}
	return m.statusOf(rec)
}

func (m *Manager) statusOf(rec *models.CredentialRecord) models.AuthStatus {
	return models.AuthStatus{
		Authenticated: !rec.Expired(m.now()),
		LocationID:    rec.LocationID,
		CompanyID:     rec.CompanyID,
		ExpiresAt:     rec.ExpiresAt,
	}
}

// Accounts reports the status of every stored credential, ordered by
// account ID.
func (m *Manager) Accounts() []models.AccountStatus {
	records := m.creds.ListCredentials()
	out := make([]models.AccountStatus, 0, len(records))
	for _, rec := range records {
		out = append(out, models.AccountStatus{AccountID: rec.AccountID, AuthStatus: m.statusOf(rec)})
	}
	return out
}

// Lookup returns a copy of the stored record for accountID.
func (m *Manager) Lookup(accountID string) (*models.CredentialRecord, bool) {
	rec, ok := m.creds.GetCredential(m.ResolveAccount(accountID))
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Revoke forgets the credential of accountID. It reports whether there was
// one to remove.
func (m *Manager) Revoke(ctx context.Context, accountID string) (bool, error) {
	accountID = m.ResolveAccount(accountID)

	defer m.lockAccount(accountID)()

	if _, ok := m.creds.GetCredential(accountID); !ok {
		return false, nil
	}
	if err := m.creds.DeleteCredential(accountID); err != nil {
		return false, err
	}

	m.updateStoredGauge()
	m.logger.InfoWithContext(ctx, "credential revoked", "account_id", accountID)
	m.logger.Audit(logging.NewAuditEvent(logging.CredentialRevoked, "revoke", logging.StatusSuccess).
		WithAccountID(accountID).
		WithCorrelationID(logging.GetCorrelationID(ctx)))
	return true, nil
}

func (m *Manager) updateStoredGauge() {
	if m.metrics == nil {
		return
	}
	m.metrics.SetCredentialsStored(m.creds.Stats().CredentialCount)
}

func describeRetrieveError(err *oauth2.RetrieveError) string {
	switch {
	case err.ErrorDescription != "":
		return err.ErrorDescription
	case err.ErrorCode != "":
		return err.ErrorCode
	case err.Response != nil:
		return http.StatusText(err.Response.StatusCode)
	default:
		return "token endpoint rejected the request"
	}
}
