package config

import "time"

type UpstreamConfig interface {
	GetUpstreamBaseURL() string
	GetUpstreamEmail() string
	GetUpstreamAPIKey() string
	GetAPICallInterval() time.Duration
	GetRateWindow() time.Duration
	GetRateWindowBudget() int
	GetDefaultAccessTokenExpiry() time.Duration
	GetProxyCacheTTL() time.Duration
	GetUpstreamTimeout() time.Duration
	GetUpstreamMaxAttempts() int
	GetRateLimitBackoff() (auth, data time.Duration)
	GetNetworkBackoff() time.Duration
	GetAuthLimits() (throttle, cooldown time.Duration, maxAttempts int)
}

type Upstream struct {
	BaseURL          string        `env:"CJ_BASE_URL" envDefault:"https://developers.cjdropshipping.com/api2.0/v1"`
	Email            string        `env:"CJ_EMAIL"`
	APIKey           string        `env:"CJ_API_KEY"`
	CallInterval     time.Duration `env:"API_CALL_INTERVAL" envDefault:"1s"`
	RateWindow       time.Duration `env:"RATE_WINDOW" envDefault:"1m"`
	RateWindowBudget int           `env:"RATE_WINDOW_BUDGET" envDefault:"30"`
	ProxyCacheTTL    time.Duration `env:"PROXY_CACHE_TTL" envDefault:"5m"`
	Timeout          time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
	MaxAttempts      int           `env:"UPSTREAM_MAX_ATTEMPTS" envDefault:"3"`
	AuthBackoff      time.Duration `env:"UPSTREAM_AUTH_BACKOFF" envDefault:"15s"`
	DataBackoff      time.Duration `env:"UPSTREAM_DATA_BACKOFF" envDefault:"5s"`
	NetworkBackoff   time.Duration `env:"UPSTREAM_NETWORK_BACKOFF" envDefault:"2s"`
	AuthThrottle     time.Duration `env:"AUTH_THROTTLE" envDefault:"5m"`
	AuthCooldown     time.Duration `env:"AUTH_COOLDOWN" envDefault:"10m"`
	AuthMaxAttempts  int           `env:"AUTH_MAX_ATTEMPTS" envDefault:"3"`
}

var _ UpstreamConfig = Upstream{}

func (u Upstream) GetUpstreamBaseURL() string {
	return u.BaseURL
}

func (u Upstream) GetUpstreamEmail() string {
	return u.Email
}

func (u Upstream) GetUpstreamAPIKey() string {
	return u.APIKey
}

func (u Upstream) GetAPICallInterval() time.Duration {
	return u.CallInterval
}

func (u Upstream) GetRateWindow() time.Duration {
	return u.RateWindow
}

func (u Upstream) GetRateWindowBudget() int {
	return u.RateWindowBudget
}

// GetDefaultAccessTokenExpiry is used when the upstream expiry date cannot be parsed
func (Upstream) GetDefaultAccessTokenExpiry() time.Duration {
	return 1 * time.Hour
}

func (u Upstream) GetProxyCacheTTL() time.Duration {
	return u.ProxyCacheTTL
}

func (u Upstream) GetUpstreamTimeout() time.Duration {
	return u.Timeout
}

func (u Upstream) GetUpstreamMaxAttempts() int {
	return u.MaxAttempts
}

// GetRateLimitBackoff is the pause after a rate-limited answer on
// authentication and data paths.
func (u Upstream) GetRateLimitBackoff() (auth, data time.Duration) {
	return u.AuthBackoff, u.DataBackoff
}

func (u Upstream) GetNetworkBackoff() time.Duration {
	return u.NetworkBackoff
}

// GetAuthLimits is the throttle between full authentications, the cooldown
// after maxAttempts consecutive failures, and that attempt limit.
func (u Upstream) GetAuthLimits() (throttle, cooldown time.Duration, maxAttempts int) {
	return u.AuthThrottle, u.AuthCooldown, u.AuthMaxAttempts
}
