// Package proxy relays caller requests to the upstream API with the managed
// access token attached.
package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-dropship-gateway/cache"
	apperrors "github.com/jrsteele09/go-dropship-gateway/internal/errors"
	"github.com/jrsteele09/go-dropship-gateway/upstream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// GenericErrorMessage is reported for failures that are not throttling related.
const GenericErrorMessage = "Proxy error"

// CacheablePaths are idempotent catalog reads eligible for the result cache.
var CacheablePaths = []string{
	"product/getCategory",
	"product/query",
	"product/list",
	"product/search",
	"product/productComments",
}

// Caller issues upstream calls; *upstream.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, req upstream.Request) (*upstream.Response, error)
}

// TokenProvider supplies and invalidates the access token; *token.Manager satisfies it.
type TokenProvider interface {
	EnsureToken(ctx context.Context) (string, error)
	Invalidate()
}

// Request is a caller's request to relay.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   json.RawMessage
}

// Result is the relayed upstream answer.
type Result struct {
	*upstream.Response
	Cached bool
}

type Proxy struct {
	client    Caller
	tokens    TokenProvider
	cache     *cache.Cache[*upstream.Response]
	cacheable map[string]bool
	logger    zerolog.Logger
}

type Option func(*Proxy)

// WithCache enables read-through caching of GET requests to CacheablePaths.
func WithCache(c *cache.Cache[*upstream.Response]) Option {
	return func(p *Proxy) {
		p.cache = c
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Proxy) {
		p.logger = l
	}
}

func New(client Caller, tokens TokenProvider, options ...Option) *Proxy {
	p := &Proxy{
		client:    client,
		tokens:    tokens,
		cacheable: make(map[string]bool, len(CacheablePaths)),
		logger:    log.Logger,
	}
	for _, path := range CacheablePaths {
		p.cacheable[path] = true
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Forward relays req upstream. An invalid-token answer invalidates the cached
// token and the request is retried exactly once with a fresh one.
func (p *Proxy) Forward(ctx context.Context, req Request) (*Result, error) {
	req.Path = strings.Trim(req.Path, "/")
	if req.Path == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "missing upstream path")
	}
	key, cacheable := p.cacheKey(req)
	if cacheable {
		if resp, ok := p.cache.Get(key); ok {
			return &Result{Response: resp, Cached: true}, nil
		}
	}

	resp, err := p.call(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Outcome == upstream.OutcomeTokenInvalid {
		p.logger.Info().Str("path", req.Path).Msg("token invalid, re-authenticating and retrying once")
		p.tokens.Invalidate()
		if resp, err = p.call(ctx, req); err != nil {
			return nil, err
		}
	}

	if cacheable && resp.Status == http.StatusOK && resp.Outcome == upstream.OutcomeOK && resp.Envelope.Result {
		p.cache.Set(key, resp)
	}
	return &Result{Response: resp}, nil
}

func (p *Proxy) call(ctx context.Context, req Request) (*upstream.Response, error) {
	tok, err := p.tokens.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}
	var body any
	if len(req.Body) > 0 {
		body = req.Body
	}
	return p.client.Call(ctx, upstream.Request{
		Method: req.Method,
		Path:   req.Path,
		Query:  req.Query,
		Body:   body,
		Token:  tok,
	})
}

func (p *Proxy) cacheKey(req Request) (string, bool) {
	if p.cache == nil || req.Method != http.MethodGet || !p.cacheable[req.Path] {
		return "", false
	}
	// Encode sorts by key, so equivalent queries share an entry.
	return req.Method + " " + req.Path + "?" + req.Query.Encode(), true
}

// ErrorBody is the stable external shape of a failed proxy call.
type ErrorBody struct {
	Result  bool   `json:"result"`
	Message string `json:"message"`
}

// StatusFor maps err to 429 for throttling, cooldown and rate limiting, 400
// for malformed requests, and 500 for everything else.
func StatusFor(err error) int {
	switch {
	case apperrors.IsThrottling(err):
		return http.StatusTooManyRequests
	case apperrors.Is(err, apperrors.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFor builds the body reported to callers. Throttling errors keep their
// message so callers learn how long to wait.
func ErrorFor(err error) ErrorBody {
	if apperrors.IsThrottling(err) || apperrors.Is(err, apperrors.ErrInvalidRequest) {
		return ErrorBody{Message: err.Error()}
	}
	return ErrorBody{Message: GenericErrorMessage}
}
