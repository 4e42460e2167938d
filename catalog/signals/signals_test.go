package signals_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-dropship-gateway/catalog/signals"
	"github.com/stretchr/testify/require"
)

const trendsBody = `{
  "interest_over_time": {
    "timeline_data": [
      {"date": "d1", "values": [{"query": "lamp", "value": "40", "extracted_value": 40}]},
      {"date": "d2", "values": [{"query": "lamp", "value": "60", "extracted_value": 60}]},
      {"date": "d3", "values": [{"query": "lamp", "value": "70", "extracted_value": 70}]},
      {"date": "d4", "values": [{"query": "lamp", "value": "90", "extracted_value": 90}]}
    ]
  }
}`

const shoppingBody = `{
  "shopping_results": [
    {"title": "a", "price": "$19.99"},
    {"title": "b", "price": "$1,020.00"},
    {"title": "c", "price": "Free"},
    {"title": "d", "price": "$10.01"}
  ]
}`

func newSerpServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var engines []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "key", r.URL.Query().Get("api_key"))
		engine := r.URL.Query().Get("engine")
		engines = append(engines, engine)
		switch engine {
		case "google_trends":
			_, _ = w.Write([]byte(trendsBody))
		case "google_shopping":
			_, _ = w.Write([]byte(shoppingBody))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unsupported engine"}`))
		}
	}))
	t.Cleanup(ts.Close)
	return ts, &engines
}

func TestTrendFromSeries(t *testing.T) {
	tr, err := signals.TrendFromSeries([]float64{40, 60, 70, 90})
	require.NoError(t, err)
	require.Equal(t, signals.Trend{Score: 65, GrowthPct: 60}, tr)

	tr, err = signals.TrendFromSeries([]float64{0, 0, 50})
	require.NoError(t, err)
	require.Zero(t, tr.GrowthPct, "flat start yields no growth")
	require.Equal(t, float64(17), tr.Score)

	_, err = signals.TrendFromSeries(nil)
	require.ErrorIs(t, err, signals.ErrNoSignal)
}

func TestSerpAPITrends(t *testing.T) {
	ts, engines := newSerpServer(t)
	s := signals.NewSerpAPI("key", 5, signals.WithBaseURL(ts.URL), signals.WithHTTPClient(ts.Client()))

	tr, err := s.Trends(context.Background(), "lamp")
	require.NoError(t, err)
	require.Equal(t, signals.Trend{Score: 65, GrowthPct: 60}, tr)
	require.Equal(t, []string{"google_trends"}, *engines)
}

func TestSerpAPIMarketPrice(t *testing.T) {
	ts, _ := newSerpServer(t)
	s := signals.NewSerpAPI("key", 5, signals.WithBaseURL(ts.URL), signals.WithHTTPClient(ts.Client()))

	price, err := s.MarketPrice(context.Background(), "lamp")
	require.NoError(t, err)
	require.Equal(t, 350.0, price)
}

func TestSerpAPIWithoutKey(t *testing.T) {
	s := signals.NewSerpAPI("", 1)
	_, err := s.Trends(context.Background(), "lamp")
	require.ErrorIs(t, err, signals.ErrNoSignal)
	_, err = s.MarketPrice(context.Background(), "lamp")
	require.ErrorIs(t, err, signals.ErrNoSignal)
}

func TestSerpAPIErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
	}))
	t.Cleanup(ts.Close)
	s := signals.NewSerpAPI("key", 1, signals.WithBaseURL(ts.URL), signals.WithHTTPClient(ts.Client()))

	_, err := s.Trends(context.Background(), "lamp")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid API key")
}

func TestSerpAPIDefaultClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(trendsBody))
	}))
	t.Cleanup(ts.Close)
	s := signals.NewSerpAPI("key", 5, signals.WithBaseURL(ts.URL))

	tr, err := s.Trends(context.Background(), "lamp")
	require.NoError(t, err)
	require.Equal(t, signals.Trend{Score: 65, GrowthPct: 60}, tr)
	require.EqualValues(t, 2, calls.Load())
}

func TestSerpAPIDefaultClientGivesUp(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(ts.Close)
	s := signals.NewSerpAPI("key", 5, signals.WithBaseURL(ts.URL))

	_, err := s.MarketPrice(context.Background(), "lamp")
	require.Error(t, err)
	require.EqualValues(t, 3, calls.Load(), "one call plus two retries")
}

func TestNoneProvider(t *testing.T) {
	var p signals.None
	_, err := p.Trends(context.Background(), "x")
	require.ErrorIs(t, err, signals.ErrNoSignal)
	_, err = p.MarketPrice(context.Background(), "x")
	require.ErrorIs(t, err, signals.ErrNoSignal)
}
