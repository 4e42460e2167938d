package signals

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jrsteele09/go-dropship-gateway/internal/utils"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// DefaultSerpAPIURL is the SerpAPI search endpoint.
const DefaultSerpAPIURL = "https://serpapi.com/search.json"

// SerpAPI reads Google Trends and Google Shopping results through SerpAPI.
type SerpAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var (
	_ TrendsProvider = (*SerpAPI)(nil)
	_ PriceProvider  = (*SerpAPI)(nil)
)

type SerpAPIOption func(*SerpAPI)

func WithBaseURL(u string) SerpAPIOption {
	return func(s *SerpAPI) {
		s.baseURL = u
	}
}

func WithHTTPClient(c *http.Client) SerpAPIOption {
	return func(s *SerpAPI) {
		s.client = c
	}
}

// NewSerpAPI returns a provider that retries transient failures and spaces
// calls to at most perSecond requests per second.
func NewSerpAPI(apiKey string, perSecond int, options ...SerpAPIOption) *SerpAPI {
	s := &SerpAPI{apiKey: apiKey, baseURL: DefaultSerpAPIURL}
	for _, opt := range options {
		opt(s)
	}
	if s.client == nil {
		s.client = newThrottledClient(perSecond)
	}
	return s
}

func newThrottledClient(perSecond int) *http.Client {
	if perSecond <= 0 {
		perSecond = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), perSecond)

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 20 * time.Second
	rc.PrepareRetry = func(req *http.Request) error {
		return limiter.Wait(req.Context())
	}

	client := rc.StandardClient()
	client.Transport = &throttledTransport{next: client.Transport, limiter: limiter}
	return client
}

type throttledTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *throttledTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(r.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(r)
}

// Trends returns the last 30 days of Google Trends interest for keyword.
func (s *SerpAPI) Trends(ctx context.Context, keyword string) (Trend, error) {
	if s.apiKey == "" {
		return Trend{}, ErrNoSignal
	}
	body, err := s.search(ctx, url.Values{
		"engine":    {"google_trends"},
		"q":         {keyword},
		"date":      {"today 1-m"},
		"data_type": {"TIMESERIES"},
	})
	if err != nil {
		return Trend{}, err
	}

	points := gjson.GetBytes(body, "interest_over_time.timeline_data.#.values.0.extracted_value").Array()
	values := make([]float64, 0, len(points))
	for _, p := range points {
		values = append(values, p.Float())
	}
	return TrendFromSeries(values)
}

// MarketPrice returns the average positive shopping price for query, rounded to cents.
func (s *SerpAPI) MarketPrice(ctx context.Context, query string) (float64, error) {
	if s.apiKey == "" {
		return 0, ErrNoSignal
	}
	body, err := s.search(ctx, url.Values{
		"engine": {"google_shopping"},
		"q":      {query},
	})
	if err != nil {
		return 0, err
	}

	var sum float64
	var n int
	gjson.GetBytes(body, "shopping_results.#.price").ForEach(func(_, v gjson.Result) bool {
		if price := utils.ParseNumber(v.String()); price > 0 {
			sum += price
			n++
		}
		return true
	})
	if n == 0 {
		return 0, ErrNoSignal
	}
	return utils.RoundTo(sum/float64(n), 2), nil
}

func (s *SerpAPI) search(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("api_key", s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build serpapi request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "serpapi %s", params.Get("engine"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read serpapi body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi %s returned %d: %s", params.Get("engine"), resp.StatusCode, gjson.GetBytes(body, "error").String())
	}
	return body, nil
}
