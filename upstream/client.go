// Package upstream performs calls against the third-party commerce API. Every
// call passes through the rate limiter and a bounded retry policy that
// distinguishes rate limiting from network failure.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-dropship-gateway/internal/errors"
	"github.com/jrsteele09/go-dropship-gateway/internal/metrics"
	"github.com/jrsteele09/go-dropship-gateway/ratelimit"
	"github.com/jrsteele09/go-dropship-gateway/retry"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TokenHeader carries the upstream access token.
const TokenHeader = "CJ-Access-Token"

const (
	defaultMaxAttempts      = 3
	defaultAuthRateLimitGap = 15 * time.Second
	defaultDataRateLimitGap = 5 * time.Second
	defaultNetworkGap       = 2 * time.Second
)

// Request is one logical upstream call. Body is only sent for POST, PUT and PATCH.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Token   string
	Headers http.Header
}

// rateLimitedError marks an attempt that the upstream rate limited.
type rateLimitedError struct {
	resp *Response
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("upstream rate limited (%d): %s", e.resp.Status, e.resp.Envelope.Message)
}

func (e *rateLimitedError) Unwrap() error {
	return apperrors.ErrUpstreamRateLimited
}

// Client is the retrying transport. It is safe for concurrent use.
type Client struct {
	baseURL          string
	httpClient       *http.Client
	limiter          *ratelimit.Limiter
	maxAttempts      int
	authRateLimitGap time.Duration
	dataRateLimitGap time.Duration
	networkGap       time.Duration
	sleep            retry.Sleeper
	logger           zerolog.Logger
	metrics          *metrics.Metrics
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMaxAttempts bounds the attempts per call, retries included. Values
// below one keep the default.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRateLimitBackoff sets the pause after a rate-limited answer for
// authentication paths and for data paths. Non-positive values keep the defaults.
func WithRateLimitBackoff(auth, data time.Duration) ClientOption {
	return func(c *Client) {
		if auth > 0 {
			c.authRateLimitGap = auth
		}
		if data > 0 {
			c.dataRateLimitGap = data
		}
	}
}

func WithNetworkBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.networkGap = d
		}
	}
}

func WithSleeper(s retry.Sleeper) ClientOption {
	return func(c *Client) {
		c.sleep = s
	}
}

func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client for baseURL. A nil limiter disables local rate limiting.
func New(baseURL string, limiter *ratelimit.Limiter, options ...ClientOption) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		limiter:          limiter,
		maxAttempts:      defaultMaxAttempts,
		authRateLimitGap: defaultAuthRateLimitGap,
		dataRateLimitGap: defaultDataRateLimitGap,
		networkGap:       defaultNetworkGap,
		sleep:            retry.Sleep,
		logger:           log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// Call performs req with up to maxAttempts attempts. When every attempt is rate
// limited the last response is returned as-is with a nil error; when every
// attempt fails at the network level the last error is returned.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	scope := ratelimit.ScopeForPath(req.Path)
	logger := c.logger.With().Str("method", req.Method).Str("path", req.Path).Logger()

	policy := retry.Policy{
		MaxAttempts: c.maxAttempts,
		Sleep:       c.sleep,
		Retryable: func(err error) bool {
			var rl *rateLimitedError
			return errors.As(err, &rl) || apperrors.Is(err, apperrors.ErrNetwork)
		},
		Delay: func(_ int, err error) time.Duration {
			var rl *rateLimitedError
			if !errors.As(err, &rl) {
				return c.networkGap
			}
			if scope == ratelimit.ScopeAuth {
				return c.authRateLimitGap
			}
			return c.dataRateLimitGap
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			reason := "network"
			var rl *rateLimitedError
			if errors.As(err, &rl) {
				reason = "rate_limited"
			}
			c.metrics.UpstreamRetry(string(scope), reason)
			logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("upstream call failed, retrying")
		},
	}

	var last *Response
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		resp, err := c.roundTrip(ctx, req, scope)
		if err != nil {
			return err
		}
		last = resp
		if resp.Outcome == OutcomeRateLimited {
			return &rateLimitedError{resp: resp}
		}
		return nil
	})
	if err == nil {
		return last, nil
	}

	var rl *rateLimitedError
	if errors.As(err, &rl) {
		logger.Warn().Int("status", rl.resp.Status).Msg("upstream still rate limited after retries")
		return rl.resp, nil
	}
	return nil, err
}

func (c *Client) roundTrip(ctx context.Context, req Request, scope ratelimit.Scope) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, scope); err != nil {
			return nil, err
		}
	}

	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.UpstreamCall(string(scope), "network_error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %s %s: %w", apperrors.ErrNetwork, req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.metrics.UpstreamCall(string(scope), "network_error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: read %s body: %w", apperrors.ErrNetwork, req.Path, err)
	}

	resp := ParseResponse(httpResp.StatusCode, raw)
	c.metrics.UpstreamCall(string(scope), resp.Outcome.String(), time.Since(start).Seconds())
	return resp, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	u := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if qs := encodeQuery(req.Query); qs != "" {
		u += "?" + qs
	}

	var body io.Reader
	if req.Body != nil && hasBody(req.Method) {
		data, err := marshalBody(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "encode upstream request body")
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, errors.Wrap(err, "build upstream request")
	}
	for k, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Token != "" {
		httpReq.Header.Set(TokenHeader, req.Token)
	}
	return httpReq, nil
}

func hasBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func marshalBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case json.RawMessage:
		if len(b) == 0 {
			return []byte("{}"), nil
		}
		return b, nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(b)
	}
}

// encodeQuery drops empty values, which the upstream rejects.
func encodeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	clean := url.Values{}
	for k, values := range q {
		for _, v := range values {
			if v != "" {
				clean.Add(k, v)
			}
		}
	}
	return clean.Encode()
}
