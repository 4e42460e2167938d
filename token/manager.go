package token

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/jrsteele09/go-dropship-gateway/internal/errors"
	"github.com/jrsteele09/go-dropship-gateway/internal/metrics"
	"github.com/jrsteele09/go-dropship-gateway/upstream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Upstream authentication endpoints.
const (
	PathGetAccessToken = "authentication/getAccessToken"
	PathRefreshToken   = "authentication/refreshAccessToken"
	PathLogout         = "authentication/logout"
)

const (
	defaultSafetyMargin = 5 * time.Minute
	defaultAuthThrottle = 5 * time.Minute
	defaultAuthCooldown = 10 * time.Minute
	defaultMaxAttempts  = 3
	defaultRecordMaxAge = 24 * time.Hour
	defaultTokenExpiry  = time.Hour
)

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Caller issues upstream calls; *upstream.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, req upstream.Request) (*upstream.Response, error)
}

// Account holds the upstream login.
type Account struct {
	Email  string
	APIKey string
}

type tokenData struct {
	AccessToken           string `json:"accessToken"`
	RefreshToken          string `json:"refreshToken"`
	AccessTokenExpiryDate string `json:"accessTokenExpiryDate"`
}

// Manager owns the upstream credential. Concurrent callers needing a new token
// share a single in-flight acquisition; at most one full authentication is in
// flight at any time.
type Manager struct {
	client        Caller
	repo          CredentialRepo
	account       Account
	nowFunc       func() time.Time
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	safetyMargin  time.Duration
	authThrottle  time.Duration
	authCooldown  time.Duration
	maxAttempts   int
	recordMaxAge  time.Duration
	defaultExpiry time.Duration

	mu             sync.Mutex
	cred           Credential
	persistMu      sync.Mutex
	flights        singleflight.Group
	authenticating atomic.Bool
}

var _ oauth2.TokenSource = (*Manager)(nil)

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithDefaultExpiry is used when the upstream expiry date cannot be parsed.
func WithDefaultExpiry(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.defaultExpiry = d
	}
}

// WithAuthLimits overrides the throttle between full authentications, the
// cooldown after maxAttempts consecutive failures, and the attempt limit.
// Non-positive values keep the defaults.
func WithAuthLimits(throttle, cooldown time.Duration, maxAttempts int) ManagerOption {
	return func(m *Manager) {
		if throttle > 0 {
			m.authThrottle = throttle
		}
		if cooldown > 0 {
			m.authCooldown = cooldown
		}
		if maxAttempts > 0 {
			m.maxAttempts = maxAttempts
		}
	}
}

// New creates the manager and rehydrates any persisted credential younger than 24h.
func New(client Caller, repo CredentialRepo, account Account, options ...ManagerOption) *Manager {
	m := &Manager{
		client:        client,
		repo:          repo,
		account:       account,
		logger:        log.Logger,
		safetyMargin:  defaultSafetyMargin,
		authThrottle:  defaultAuthThrottle,
		authCooldown:  defaultAuthCooldown,
		maxAttempts:   defaultMaxAttempts,
		recordMaxAge:  defaultRecordMaxAge,
		defaultExpiry: defaultTokenExpiry,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	m.rehydrate()
	return m
}

func (m *Manager) rehydrate() {
	if m.repo == nil {
		return
	}
	rec, err := m.repo.Load()
	if err != nil {
		m.logger.Warn().Err(err).Msg("could not load saved tokens")
		return
	}
	if rec == nil {
		return
	}
	age := m.nowFunc().Sub(time.UnixMilli(rec.Timestamp))
	if rec.Timestamp == 0 || age >= m.recordMaxAge {
		m.logger.Info().Dur("age", age).Msg("ignoring stale saved tokens")
		return
	}
	m.cred = rec.Credential()
	m.logger.Info().Int("auth_attempts", m.cred.AuthAttempts).Msg("loaded saved tokens from previous session")
}

// EnsureToken returns an access token valid for at least the safety margin,
// refreshing or re-authenticating when needed.
func (m *Manager) EnsureToken(ctx context.Context) (string, error) {
	if tok, ok := m.validToken(); ok {
		return tok, nil
	}
	v, err, shared := m.flights.Do("acquire", func() (any, error) {
		return m.acquire(context.WithoutCancel(ctx))
	})
	if shared {
		m.logger.Debug().Msg("joined in-flight token acquisition")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Token implements oauth2.TokenSource.
func (m *Manager) Token() (*oauth2.Token, error) {
	if _, err := m.EnsureToken(context.Background()); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred.Token == nil {
		return nil, apperrors.ErrTokenInvalid
	}
	tok := *m.cred.Token
	tok.TokenType = upstream.TokenHeader
	return &tok, nil
}

func (m *Manager) acquire(ctx context.Context) (string, error) {
	// Another flight may have finished between the caller's check and ours.
	if tok, ok := m.validToken(); ok {
		return tok, nil
	}
	if m.hasRefreshToken() {
		tok, err := m.Refresh(ctx)
		if err == nil {
			return tok, nil
		}
		m.logger.Info().Err(err).Msg("token refresh failed, will need to re-authenticate")
	}
	return m.Authenticate(ctx)
}

// Authenticate performs a full authentication, subject to the throttle and
// cooldown rules. Concurrent calls share one upstream request.
func (m *Manager) Authenticate(ctx context.Context) (string, error) {
	v, err, _ := m.flights.Do("authenticate", func() (any, error) {
		return m.authenticate(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) authenticate(ctx context.Context) (string, error) {
	if m.account.Email == "" || m.account.APIKey == "" {
		return "", errors.Wrap(apperrors.ErrAuthFailed, apperrors.ErrNoCredentials.Error())
	}

	now := m.nowFunc()
	m.mu.Lock()
	reset, err := m.checkAuthAllowedLocked(now)
	if err != nil {
		m.mu.Unlock()
		if reset {
			m.persist()
		}
		return "", err
	}
	prevAuthAt := m.cred.LastAuthAt
	m.cred.LastAuthAt = now
	m.mu.Unlock()
	if err := m.persist(); err != nil {
		m.mu.Lock()
		m.cred.LastAuthAt = prevAuthAt
		m.mu.Unlock()
		return "", errors.Wrap(err, "record authentication attempt")
	}

	m.authenticating.Store(true)
	defer m.authenticating.Store(false)

	m.logger.Info().Msg("attempting upstream authentication")
	resp, err := m.client.Call(ctx, upstream.Request{
		Method: http.MethodPost,
		Path:   PathGetAccessToken,
		Body:   map[string]string{"email": m.account.Email, "password": m.account.APIKey},
	})
	if err == nil && resp.Succeeded() {
		var data tokenData
		if resp.DecodeData(&data) == nil && data.AccessToken != "" {
			m.storeTokens(data, true)
			m.metrics.Auth("authenticate", "ok")
			m.logger.Info().Msg("upstream authentication successful")
			return data.AccessToken, nil
		}
	}

	m.mu.Lock()
	m.cred.AuthAttempts++
	attempts := m.cred.AuthAttempts
	m.mu.Unlock()
	m.persist()
	m.metrics.Auth("authenticate", "failed")

	authErr := authFailure(resp, err)
	m.logger.Warn().Err(authErr).Int("auth_attempts", attempts).Msg("upstream authentication failed")
	return "", authErr
}

// checkAuthAllowedLocked applies the cooldown and throttle rules. reset reports
// whether an elapsed cooldown cleared the attempt counter.
func (m *Manager) checkAuthAllowedLocked(now time.Time) (reset bool, err error) {
	last := m.cred.LastAuthAt
	since := now.Sub(last)
	if !last.IsZero() && m.cred.AuthAttempts >= m.maxAttempts && since < m.authCooldown {
		return false, &apperrors.AuthWaitError{Kind: apperrors.ErrAuthCooldown, RetryAfter: m.authCooldown - since}
	}
	if m.cred.AuthAttempts > 0 && (last.IsZero() || since >= m.authCooldown) {
		m.cred.AuthAttempts = 0
		reset = true
	}
	if !last.IsZero() && since < m.authThrottle {
		return reset, &apperrors.AuthWaitError{Kind: apperrors.ErrAuthThrottled, RetryAfter: m.authThrottle - since}
	}
	return reset, nil
}

func authFailure(resp *upstream.Response, err error) error {
	if err != nil {
		return err
	}
	if resp == nil {
		return errors.Wrap(apperrors.ErrAuthFailed, "unknown authentication error")
	}
	if resp.Outcome == upstream.OutcomeRateLimited {
		return errors.Wrap(apperrors.ErrUpstreamRateLimited, resp.Envelope.Message)
	}
	message := resp.Envelope.Message
	if message == "" {
		message = "Unknown authentication error"
	}
	return errors.Wrap(apperrors.ErrAuthFailed, message)
}

// Refresh exchanges the refresh token for a new pair.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	v, err, _ := m.flights.Do("refresh", func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	refreshToken := m.cred.refreshToken()
	m.mu.Unlock()
	if refreshToken == "" {
		return "", errors.Wrap(apperrors.ErrAuthFailed, "no refresh token")
	}

	m.logger.Info().Msg("attempting to refresh upstream access token")
	resp, err := m.client.Call(ctx, upstream.Request{
		Method: http.MethodPost,
		Path:   PathRefreshToken,
		Body:   map[string]string{"refreshToken": refreshToken},
	})
	if err != nil {
		m.metrics.Auth("refresh", "failed")
		return "", errors.Wrap(err, "refresh access token")
	}
	var data tokenData
	if !resp.Succeeded() || resp.DecodeData(&data) != nil || data.AccessToken == "" {
		m.metrics.Auth("refresh", "failed")
		return "", errors.Wrap(apperrors.ErrAuthFailed, "refresh rejected: "+resp.Envelope.Message)
	}

	m.storeTokens(data, false)
	m.metrics.Auth("refresh", "ok")
	m.logger.Info().Msg("upstream token refresh successful")
	return data.AccessToken, nil
}

func (m *Manager) storeTokens(data tokenData, resetAttempts bool) {
	now := m.nowFunc()
	m.mu.Lock()
	m.cred.Token = &oauth2.Token{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		Expiry:       m.parseExpiry(data.AccessTokenExpiryDate, now),
	}
	if resetAttempts {
		m.cred.AuthAttempts = 0
	}
	m.mu.Unlock()
	m.persist()
}

func (m *Manager) parseExpiry(value string, now time.Time) time.Time {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if value != "" {
		m.logger.Warn().Str("expiry", value).Msg("unrecognised token expiry, using default lifetime")
	}
	return now.Add(m.defaultExpiry)
}

// Invalidate drops the access token, keeping the refresh token so the next
// EnsureToken can refresh rather than fully re-authenticate.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	if m.cred.Token != nil {
		m.cred.Token = &oauth2.Token{RefreshToken: m.cred.Token.RefreshToken}
	}
	m.mu.Unlock()
	m.persist()
}

// Logout signs out upstream when a token is held, then clears all in-memory
// and persisted state regardless of the upstream result. The upstream
// response is nil when no token was held or the call failed.
func (m *Manager) Logout(ctx context.Context) (*upstream.Response, error) {
	m.mu.Lock()
	accessToken := m.cred.accessToken()
	m.mu.Unlock()

	var (
		resp *upstream.Response
		err  error
	)
	if accessToken != "" {
		resp, err = m.client.Call(ctx, upstream.Request{
			Method: http.MethodPost,
			Path:   PathLogout,
			Token:  accessToken,
		})
		if err != nil {
			m.logger.Warn().Err(err).Msg("upstream logout failed")
		}
	}
	m.Clear()
	return resp, err
}

// Clear wipes all credential state and the persisted record without calling upstream.
func (m *Manager) Clear() {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	m.cred = Credential{}
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.Delete(); err != nil {
			m.logger.Warn().Err(err).Msg("could not delete token file")
		}
	}
	m.logger.Info().Msg("cleared all auth state")
}

// persist snapshots the credential under persistMu so concurrent saves land in
// order. Failures are logged and returned.
func (m *Manager) persist() error {
	if m.repo == nil {
		return nil
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	rec := newRecord(m.cred, m.nowFunc())
	m.mu.Unlock()

	if err := m.repo.Save(rec); err != nil {
		m.logger.Warn().Err(err).Msg("could not save tokens")
		return err
	}
	return nil
}

func (m *Manager) validToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validTokenLocked(m.nowFunc())
}

func (m *Manager) validTokenLocked(now time.Time) (string, bool) {
	tok := m.cred.accessToken()
	if tok == "" || !now.Before(m.cred.expiry().Add(-m.safetyMargin)) {
		return "", false
	}
	return tok, true
}

func (m *Manager) hasRefreshToken() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred.refreshToken() != ""
}

// Status is the introspection view exposed on the auth status endpoint. Times
// are epoch milliseconds.
type Status struct {
	HasToken          bool   `json:"hasToken"`
	TokenExpiry       int64  `json:"tokenExpiry"`
	IsTokenValid      bool   `json:"isTokenValid"`
	LastAuthAt        int64  `json:"lastAuthAt"`
	AuthAttempts      int    `json:"authAttempts"`
	CanAuth           bool   `json:"canAuth"`
	NextAuthAvailable int64  `json:"nextAuthAvailable"`
	TimeUntilNextAuth int64  `json:"timeUntilNextAuth"`
	Authenticating    bool   `json:"authenticating"`
	Email             string `json:"email"`
}

func (m *Manager) Status() Status {
	now := m.nowFunc()
	m.mu.Lock()
	defer m.mu.Unlock()

	_, valid := m.validTokenLocked(now)
	last := m.cred.LastAuthAt
	next := last.Add(m.authThrottle)
	if last.IsZero() {
		next = time.Time{}
	}
	return Status{
		HasToken:          m.cred.accessToken() != "",
		TokenExpiry:       toMillis(m.cred.expiry()),
		IsTokenValid:      valid,
		LastAuthAt:        toMillis(last),
		AuthAttempts:      m.cred.AuthAttempts,
		CanAuth:           m.cred.AuthAttempts < m.maxAttempts || now.Sub(last) >= m.authCooldown,
		NextAuthAvailable: toMillis(next),
		TimeUntilNextAuth: max(0, next.Sub(now).Milliseconds()),
		Authenticating:    m.authenticating.Load(),
		Email:             m.account.Email,
	}
}
