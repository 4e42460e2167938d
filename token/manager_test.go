package token_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-dropship-gateway/internal/errors"
	"github.com/jrsteele09/go-dropship-gateway/token"
	"github.com/jrsteele09/go-dropship-gateway/token/repofake"
	"github.com/jrsteele09/go-dropship-gateway/upstream"
	"github.com/stretchr/testify/require"
)

var account = token.Account{Email: "ops@example.com", APIKey: "secret"}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeCaller answers upstream calls per path and counts them.
type fakeCaller struct {
	mu      sync.Mutex
	calls   map[string]int
	bodies  map[string]string
	delay   time.Duration
	tokenNo atomic.Int32
	expiry  time.Time
}

func newFakeCaller(expiry time.Time) *fakeCaller {
	return &fakeCaller{calls: map[string]int{}, bodies: map[string]string{}, expiry: expiry}
}

func (f *fakeCaller) reply(path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[path] = body
}

func (f *fakeCaller) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeCaller) Call(_ context.Context, req upstream.Request) (*upstream.Response, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.calls[req.Path]++
	body, ok := f.bodies[req.Path]
	f.mu.Unlock()
	if !ok {
		n := f.tokenNo.Add(1)
		body = fmt.Sprintf(`{"code":200,"result":true,"message":"Success","data":{"accessToken":"access-%d","refreshToken":"refresh-%d","accessTokenExpiryDate":%q}}`,
			n, n, f.expiry.Format(time.RFC3339))
	}
	return upstream.ParseResponse(200, []byte(body)), nil
}

const rejectedBody = `{"code":1601000,"result":false,"message":"Invalid credentials","data":null}`

func newManager(t *testing.T, caller *fakeCaller, repo *repofake.FakeCredentialRepo, clk *clock) *token.Manager {
	t.Helper()
	return token.New(caller, repo, account, token.WithNowFunc(clk.Now))
}

func TestEnsureTokenAuthenticatesOnce(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(24 * time.Hour))
	caller.delay = 20 * time.Millisecond
	repo := repofake.NewFakeCredentialRepo()
	m := newManager(t, caller, repo, clk)

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	errs := make([]error, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.EnsureToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i := range tokens {
		require.NoError(t, errs[i])
		require.Equal(t, "access-1", tokens[i])
	}
	require.Equal(t, 1, caller.count(token.PathGetAccessToken))
	require.Equal(t, "access-1", repo.Saved().AccessToken)
	require.Zero(t, repo.Saved().AuthAttempts)
}

func TestEnsureTokenUsesValidToken(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	m := newManager(t, caller, repofake.NewFakeCredentialRepo(), clk)

	_, err := m.EnsureToken(context.Background())
	require.NoError(t, err)

	clk.Advance(50 * time.Minute)
	tok, err := m.EnsureToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-1", tok)
	require.Equal(t, 1, caller.count(token.PathGetAccessToken))
	require.Zero(t, caller.count(token.PathRefreshToken))
}

func TestEnsureTokenRefreshesNearExpiry(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	m := newManager(t, caller, repofake.NewFakeCredentialRepo(), clk)

	_, err := m.EnsureToken(context.Background())
	require.NoError(t, err)

	clk.Advance(56 * time.Minute)
	tok, err := m.EnsureToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-2", tok)
	require.Equal(t, 1, caller.count(token.PathRefreshToken))
	require.Equal(t, 1, caller.count(token.PathGetAccessToken))
}

func TestRefreshFailureFallsBackToAuthentication(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	m := newManager(t, caller, repofake.NewFakeCredentialRepo(), clk)

	_, err := m.EnsureToken(context.Background())
	require.NoError(t, err)

	caller.reply(token.PathRefreshToken, rejectedBody)
	clk.Advance(58 * time.Minute)
	tok, err := m.EnsureToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-2", tok)
	require.Equal(t, 1, caller.count(token.PathRefreshToken))
	require.Equal(t, 2, caller.count(token.PathGetAccessToken))
}

func TestAuthenticateThrottled(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	m := newManager(t, caller, repofake.NewFakeCredentialRepo(), clk)

	_, err := m.Authenticate(context.Background())
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = m.Authenticate(context.Background())
	require.ErrorIs(t, err, apperrors.ErrAuthThrottled)
	wait, ok := apperrors.RetryAfter(err)
	require.True(t, ok)
	require.Equal(t, 3*time.Minute, wait)
	require.Contains(t, err.Error(), "Please wait 180 more seconds")
	require.Equal(t, 1, caller.count(token.PathGetAccessToken))
}

func TestAuthenticateCooldownAfterFailures(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	caller.reply(token.PathGetAccessToken, rejectedBody)
	repo := repofake.NewFakeCredentialRepo()
	m := newManager(t, caller, repo, clk)

	for i := 1; i <= 3; i++ {
		_, err := m.Authenticate(context.Background())
		require.ErrorIs(t, err, apperrors.ErrAuthFailed)
		require.Contains(t, err.Error(), "Invalid credentials")
		require.Equal(t, i, repo.Saved().AuthAttempts)
		clk.Advance(5 * time.Minute)
	}

	_, err := m.Authenticate(context.Background())
	require.ErrorIs(t, err, apperrors.ErrAuthCooldown)
	require.Contains(t, err.Error(), "Please wait 5 more minutes")
	require.Equal(t, 3, caller.count(token.PathGetAccessToken))
	require.False(t, m.Status().CanAuth)

	clk.Advance(5 * time.Minute)
	require.True(t, m.Status().CanAuth)
	_, err = m.Authenticate(context.Background())
	require.ErrorIs(t, err, apperrors.ErrAuthFailed)
	require.Equal(t, 4, caller.count(token.PathGetAccessToken))
	require.Equal(t, 1, repo.Saved().AuthAttempts, "attempts reset after cooldown")
}

func TestAuthLimitsAreConfigurable(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	caller.reply(token.PathGetAccessToken, rejectedBody)
	m := token.New(caller, repofake.NewFakeCredentialRepo(), account,
		token.WithNowFunc(clk.Now),
		token.WithAuthLimits(time.Minute, 0, 1),
	)

	_, err := m.Authenticate(context.Background())
	require.ErrorIs(t, err, apperrors.ErrAuthFailed)

	clk.Advance(2 * time.Minute)
	_, err = m.Authenticate(context.Background())
	require.ErrorIs(t, err, apperrors.ErrAuthCooldown, "one failure is enough with a limit of one")
	wait, ok := apperrors.RetryAfter(err)
	require.True(t, ok)
	require.Equal(t, 8*time.Minute, wait, "a zero cooldown keeps the 10 minute default")
}

func TestAuthenticateWithoutCredentials(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	m := token.New(caller, nil, token.Account{}, token.WithNowFunc(clk.Now))

	_, err := m.EnsureToken(context.Background())
	require.ErrorIs(t, err, apperrors.ErrAuthFailed)
	require.Zero(t, caller.count(token.PathGetAccessToken))
}

func TestAuthenticateRateLimitedUpstream(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	caller.reply(token.PathGetAccessToken, `{"code":1600200,"result":false,"message":"Too much request","data":null}`)
	m := newManager(t, caller, repofake.NewFakeCredentialRepo(), clk)

	_, err := m.Authenticate(context.Background())
	require.ErrorIs(t, err, apperrors.ErrUpstreamRateLimited)
	require.True(t, apperrors.IsThrottling(err))
}

func TestAuthenticateRefusedWhenAttemptCannotBeRecorded(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	repo := repofake.NewFakeCredentialRepo()
	m := newManager(t, caller, repo, clk)
	repo.SetFailing(true)

	_, err := m.EnsureToken(context.Background())
	require.ErrorIs(t, err, repofake.ErrFakeFailure)
	require.Zero(t, caller.count(token.PathGetAccessToken), "no upstream attempt without a recorded attempt")
	require.Zero(t, repo.Saves())

	status := m.Status()
	require.False(t, status.HasToken)
	require.Zero(t, status.LastAuthAt)
	require.Zero(t, status.AuthAttempts)
	require.True(t, status.CanAuth)

	repo.SetFailing(false)
	tok, err := m.Authenticate(context.Background())
	require.NoError(t, err, "a refused attempt does not start the throttle")
	require.Equal(t, "access-1", tok)
	require.Equal(t, "access-1", repo.Saved().AccessToken)
}

func TestLogoutClearsMemoryWhenDeleteFails(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	repo := repofake.NewFakeCredentialRepo()
	m := newManager(t, caller, repo, clk)

	_, err := m.EnsureToken(context.Background())
	require.NoError(t, err)

	repo.SetFailing(true)
	_, err = m.Logout(context.Background())
	require.NoError(t, err)
	require.False(t, m.Status().HasToken)
	require.Zero(t, repo.Deletes())
}

func TestRehydratesRecentRecord(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	repo := repofake.NewFakeCredentialRepoWith(&token.Record{
		AccessToken:       "saved-access",
		RefreshToken:      "saved-refresh",
		AccessTokenExpiry: clk.Now().Add(2 * time.Hour).UnixMilli(),
		LastAuthAt:        clk.Now().Add(-time.Hour).UnixMilli(),
		AuthAttempts:      1,
		Timestamp:         clk.Now().Add(-time.Hour).UnixMilli(),
	})
	m := newManager(t, caller, repo, clk)

	tok, err := m.EnsureToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "saved-access", tok)
	require.Zero(t, caller.count(token.PathGetAccessToken))

	status := m.Status()
	require.True(t, status.HasToken)
	require.True(t, status.IsTokenValid)
	require.Equal(t, 1, status.AuthAttempts)
	require.Equal(t, account.Email, status.Email)
}

func TestIgnoresStaleRecord(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	repo := repofake.NewFakeCredentialRepoWith(&token.Record{
		AccessToken:       "saved-access",
		AccessTokenExpiry: clk.Now().Add(2 * time.Hour).UnixMilli(),
		Timestamp:         clk.Now().Add(-25 * time.Hour).UnixMilli(),
	})
	m := newManager(t, caller, repo, clk)

	require.False(t, m.Status().HasToken)
	tok, err := m.EnsureToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-1", tok)
}

func TestInvalidateKeepsRefreshToken(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	repo := repofake.NewFakeCredentialRepo()
	m := newManager(t, caller, repo, clk)

	_, err := m.EnsureToken(context.Background())
	require.NoError(t, err)

	m.Invalidate()
	require.Empty(t, repo.Saved().AccessToken)
	require.Equal(t, "refresh-1", repo.Saved().RefreshToken)

	tok, err := m.EnsureToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-2", tok)
	require.Equal(t, 1, caller.count(token.PathRefreshToken))
}

func TestLogoutClearsState(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	caller.reply(token.PathLogout, `{"code":200,"result":true,"message":"Success","data":true}`)
	repo := repofake.NewFakeCredentialRepo()
	m := newManager(t, caller, repo, clk)

	_, err := m.EnsureToken(context.Background())
	require.NoError(t, err)

	resp, err := m.Logout(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 1, caller.count(token.PathLogout))
	require.Nil(t, repo.Saved())
	require.Equal(t, 1, repo.Deletes())
	require.False(t, m.Status().HasToken)
	require.Zero(t, m.Status().LastAuthAt)
}

func TestLogoutWithoutTokenSkipsUpstream(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now().Add(time.Hour))
	m := newManager(t, caller, repofake.NewFakeCredentialRepo(), clk)

	resp, err := m.Logout(context.Background())
	require.NoError(t, err)
	require.Nil(t, resp)
	require.Zero(t, caller.count(token.PathLogout))
}

func TestTokenSource(t *testing.T) {
	clk := newClock()
	expiry := clk.Now().Add(time.Hour)
	caller := newFakeCaller(expiry)
	m := newManager(t, caller, repofake.NewFakeCredentialRepo(), clk)

	tok, err := m.Token()
	require.NoError(t, err)
	require.Equal(t, "access-1", tok.AccessToken)
	require.Equal(t, upstream.TokenHeader, tok.TokenType)
	require.True(t, tok.Expiry.Equal(expiry))
}

func TestUnparseableExpiryUsesDefault(t *testing.T) {
	clk := newClock()
	caller := newFakeCaller(clk.Now())
	caller.reply(token.PathGetAccessToken, `{"code":200,"result":true,"data":{"accessToken":"a","refreshToken":"r","accessTokenExpiryDate":"soon"}}`)
	m := token.New(caller, nil, account, token.WithNowFunc(clk.Now), token.WithDefaultExpiry(2*time.Hour))

	_, err := m.EnsureToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, clk.Now().Add(2*time.Hour).UnixMilli(), m.Status().TokenExpiry)
}
