package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-dropship-gateway/catalog"
	"github.com/jrsteele09/go-dropship-gateway/catalog/signals"
	"github.com/jrsteele09/go-dropship-gateway/internal/utils"
	"github.com/jrsteele09/go-dropship-gateway/proxy"
	"github.com/jrsteele09/go-dropship-gateway/ratelimit"
	"github.com/jrsteele09/go-dropship-gateway/upstream"
	"github.com/stretchr/testify/require"
)

func TestScoreExample(t *testing.T) {
	c := catalog.Candidate{GrowthPct: 25, TrendsScore: 70, Rating: 4.6, ProfitMarginPct: 35}
	require.Equal(t, 50, catalog.Score(c))
	require.True(t, catalog.DefaultThresholds.Pass(c))

	c.Rating = 4.0
	require.False(t, catalog.DefaultThresholds.Pass(c), "rating below 4.5 is excluded regardless of other signals")
}

func TestScoreClamps(t *testing.T) {
	c := catalog.Candidate{GrowthPct: 400, TrendsScore: 150, Rating: 9, ProfitMarginPct: 120}
	require.Equal(t, 100, catalog.Score(c))
	require.Zero(t, catalog.Score(catalog.Candidate{GrowthPct: -50, TrendsScore: -1}))
}

func TestProfitMargin(t *testing.T) {
	require.Equal(t, 60.0, catalog.ProfitMargin(4, 0), "no market price uses the retail markup")
	require.Equal(t, 60.0, catalog.ProfitMargin(4, 3), "market price below cost uses the retail markup")
	require.Equal(t, 80.0, catalog.ProfitMargin(4, 20))
	require.Zero(t, catalog.ProfitMargin(0, 0))
}

type fakeRatings map[string]float64

func (f fakeRatings) Rating(_ context.Context, pid string) (float64, error) {
	r, ok := f[pid]
	if !ok {
		return 0, errors.New("no comments")
	}
	return r, nil
}

type fakeTrends map[string]signals.Trend

func (f fakeTrends) Trends(_ context.Context, keyword string) (signals.Trend, error) {
	t, ok := f[keyword]
	if !ok {
		return signals.Trend{}, signals.ErrNoSignal
	}
	return t, nil
}

type fakePrices map[string]float64

func (f fakePrices) MarketPrice(_ context.Context, query string) (float64, error) {
	p, ok := f[query]
	if !ok {
		return 0, signals.ErrNoSignal
	}
	return p, nil
}

func raw(pid, name string, cost float64) catalog.RawProduct {
	return catalog.RawProduct{PID: pid, ProductNameEn: name, SellPrice: utils.LooseNumber(cost), ProductImage: "https://img/" + pid}
}

func TestScoreRankerFiltersAndSorts(t *testing.T) {
	ratings := fakeRatings{"a": 4.6, "b": 4.0, "c": 5.0, "d": 4.8}
	trends := fakeTrends{
		"Lamp":   {Score: 70, GrowthPct: 25},
		"Stand":  {Score: 90, GrowthPct: 80},
		"Bottle": {Score: 95, GrowthPct: 90},
		"Mug":    {Score: 30, GrowthPct: 50},
	}
	prices := fakePrices{"Lamp": 10}
	r := catalog.NewScoreRanker(ratings, trends, prices)

	out := r.Rank(context.Background(), []catalog.RawProduct{
		raw("a", "Lamp", 6.5),
		raw("b", "Bottle", 2),
		raw("c", "Stand", 3),
		raw("d", "Mug", 3),
	})

	require.Len(t, out, 2)
	require.Equal(t, "Stand", out[0].Name)
	require.Equal(t, "Lamp", out[1].Name)

	stand := out[0]
	require.Equal(t, 6.6, stand.MarketPrice, "estimated market price without a provider price")
	require.Equal(t, 60.0, stand.ProfitMarginPct)
	require.Equal(t, catalog.StatusTrending, stand.Status)
	require.Equal(t, "https://img/c", stand.ThumbnailURL)

	lamp := out[1]
	require.Equal(t, 10.0, lamp.MarketPrice)
	require.Equal(t, 35.0, lamp.ProfitMarginPct)
	require.Equal(t, 50, lamp.Score)
}

func TestScoreRankerRequireSignals(t *testing.T) {
	ratings := fakeRatings{"a": 4.9, "c": 4.9}
	trends := fakeTrends{"Lamp": {Score: 80, GrowthPct: 40}, "Stand": {Score: 80, GrowthPct: 40}}
	prices := fakePrices{"Lamp": 20}

	lenient := catalog.NewScoreRanker(ratings, trends, prices)
	require.Len(t, lenient.Rank(context.Background(), []catalog.RawProduct{raw("a", "Lamp", 5), raw("c", "Stand", 5)}), 2)

	strict := catalog.NewScoreRanker(ratings, trends, prices, catalog.WithRequireSignals(true))
	out := strict.Rank(context.Background(), []catalog.RawProduct{raw("a", "Lamp", 5), raw("c", "Stand", 5)})
	require.Len(t, out, 1)
	require.Equal(t, "Lamp", out[0].Name)
}

func TestScoreRankerCustomThresholds(t *testing.T) {
	ratings := fakeRatings{"a": 4.1}
	trends := fakeTrends{"Lamp": {Score: 80, GrowthPct: 40}}
	prices := fakePrices{"Lamp": 20}
	candidates := []catalog.RawProduct{raw("a", "Lamp", 5)}

	require.Empty(t, catalog.NewScoreRanker(ratings, trends, prices).Rank(context.Background(), candidates))

	lenient := catalog.DefaultThresholds
	lenient.MinRating = 4
	out := catalog.NewScoreRanker(ratings, trends, prices, catalog.WithThresholds(lenient), catalog.WithEnrichWorkers(1)).
		Rank(context.Background(), candidates)
	require.Len(t, out, 1)
}

func TestScoreRankerWithoutProviders(t *testing.T) {
	r := catalog.NewScoreRanker(fakeRatings{"a": 5}, nil, nil)
	require.Empty(t, r.Rank(context.Background(), []catalog.RawProduct{raw("a", "Lamp", 5)}),
		"zero trend signal never meets the thresholds")
}

type staticTokens struct{}

func (staticTokens) EnsureToken(context.Context) (string, error) { return "tok", nil }

func (staticTokens) Invalidate() {}

func TestScoreRankerKeepsEligibleCandidatesUnderTightBudget(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"code":200,"result":true,"message":"Success","data":{"averageScore":"4.9"}}`))
	}))
	t.Cleanup(ts.Close)

	limiter := ratelimit.New(0, 40*time.Millisecond, 3)
	ratings := catalog.ProxyRatings{Forwarder: proxy.New(upstream.New(ts.URL, limiter), staticTokens{})}

	trends := fakeTrends{}
	prices := fakePrices{}
	var candidates []catalog.RawProduct
	for i := range 12 {
		name := fmt.Sprintf("Gadget %d", i)
		trends[name] = signals.Trend{Score: 80, GrowthPct: 40}
		prices[name] = 20
		candidates = append(candidates, raw(fmt.Sprintf("p%d", i), name, 5))
	}

	out := catalog.NewScoreRanker(ratings, trends, prices).Rank(context.Background(), candidates)
	require.Len(t, out, len(candidates), "calls beyond the window budget wait instead of failing")
	require.EqualValues(t, len(candidates), calls.Load())
}

func TestFilterExcluded(t *testing.T) {
	f := catalog.NewFilter([]string{"Ski", " boots "}, 0)
	require.True(t, f.Excluded("SKI goggles", ""))
	require.True(t, f.Excluded("Leather item", "Women's Boots"))
	require.False(t, f.Excluded("Desk lamp", "Home"))
}
