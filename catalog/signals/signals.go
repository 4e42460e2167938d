// Package signals supplies the market signals used to score catalog
// candidates: search-interest trends and average retail price.
package signals

import (
	"context"
	"errors"
	"math"
)

// ErrNoSignal reports that a provider has nothing for the query, either
// because it is not configured or because the source returned no data.
var ErrNoSignal = errors.New("no signal available")

// Trend is a keyword's search interest over the last 30 days.
type Trend struct {
	// Score is the mean interest, 0..100.
	Score float64
	// GrowthPct compares the second half of the window with the first.
	GrowthPct float64
}

type TrendsProvider interface {
	Trends(ctx context.Context, keyword string) (Trend, error)
}

type PriceProvider interface {
	MarketPrice(ctx context.Context, query string) (float64, error)
}

// None is used when no provider is configured.
type None struct{}

func (None) Trends(context.Context, string) (Trend, error) {
	return Trend{}, ErrNoSignal
}

func (None) MarketPrice(context.Context, string) (float64, error) {
	return 0, ErrNoSignal
}

// TrendFromSeries derives a Trend from an interest time series. Growth is 0
// when the first half averages 0.
func TrendFromSeries(values []float64) (Trend, error) {
	if len(values) == 0 {
		return Trend{}, ErrNoSignal
	}
	mid := len(values) / 2
	first := mean(values[:mid])
	second := mean(values[mid:])

	t := Trend{Score: math.Round(mean(values))}
	if first > 0 {
		t.GrowthPct = math.Round((second - first) / first * 100)
	}
	return t, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
