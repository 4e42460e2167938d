package config

type SignalsConfig interface {
	GetSerpAPIKey() string
	GetTrendsProvider() string
	GetRequireSignals() bool
	GetScoreThresholds() ScoreThresholds
	GetEnrichWorkers() int
}

// ScoreThresholds are the minimum signals a scored product needs.
type ScoreThresholds struct {
	MinGrowthPct       float64 `env:"SCORE_MIN_GROWTH" envDefault:"20"`
	MinTrendsScore     float64 `env:"SCORE_MIN_TRENDS" envDefault:"60"`
	MinRating          float64 `env:"SCORE_MIN_RATING" envDefault:"4.5"`
	MinProfitMarginPct float64 `env:"SCORE_MIN_MARGIN" envDefault:"30"`
}

type Signals struct {
	SerpAPIKey     string `env:"SERPAPI_KEY"`
	TrendsProvider string `env:"TRENDS_PROVIDER" envDefault:"none"`
	RequireSignals bool   `env:"REQUIRE_SIGNALS" envDefault:"false"`
	EnrichWorkers  int    `env:"SCORE_WORKERS" envDefault:"4"`
	Thresholds     ScoreThresholds
}

var _ SignalsConfig = Signals{}

func (s Signals) GetSerpAPIKey() string {
	return s.SerpAPIKey
}

// GetTrendsProvider is "none" or "serpapi"
func (s Signals) GetTrendsProvider() string {
	return s.TrendsProvider
}

func (s Signals) GetRequireSignals() bool {
	return s.RequireSignals
}

func (s Signals) GetScoreThresholds() ScoreThresholds {
	return s.Thresholds
}

// GetEnrichWorkers bounds concurrent signal lookups while scoring.
func (s Signals) GetEnrichWorkers() int {
	return s.EnrichWorkers
}
