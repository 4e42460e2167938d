package catalog

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"sort"

	"github.com/jrsteele09/go-dropship-gateway/catalog/signals"
	apperrors "github.com/jrsteele09/go-dropship-gateway/internal/errors"
	"github.com/jrsteele09/go-dropship-gateway/internal/utils"
	"github.com/jrsteele09/go-dropship-gateway/proxy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	estimatedMarketMarkup = 2.2
	trendingScore         = 60
	defaultEnrichWorkers  = 4
)

// Status values of a ScoredProduct.
const (
	StatusTrending = "trending"
	StatusDropping = "dropping"
)

// Candidate holds the signals a product is scored on.
type Candidate struct {
	GrowthPct       float64
	TrendsScore     float64
	Rating          float64
	ProfitMarginPct float64
}

// Thresholds are the minimum signals a candidate needs to be kept at all.
type Thresholds struct {
	MinGrowthPct       float64
	MinTrendsScore     float64
	MinRating          float64
	MinProfitMarginPct float64
}

var DefaultThresholds = Thresholds{
	MinGrowthPct:       20,
	MinTrendsScore:     60,
	MinRating:          4.5,
	MinProfitMarginPct: 30,
}

// Pass reports whether c meets every threshold.
func (t Thresholds) Pass(c Candidate) bool {
	return c.GrowthPct >= t.MinGrowthPct &&
		c.TrendsScore >= t.MinTrendsScore &&
		c.Rating >= t.MinRating &&
		c.ProfitMarginPct >= t.MinProfitMarginPct
}

// Score weights growth 40%, trend strength 30%, rating 15% and margin 15%,
// each clamped and scaled to 0..100.
func Score(c Candidate) int {
	growth := utils.Clamp(c.GrowthPct, 0, 100)
	trends := utils.Clamp(c.TrendsScore, 0, 100)
	rating := utils.Clamp(c.Rating, 0, 5) / 5 * 100
	margin := utils.Clamp(c.ProfitMarginPct, 0, 100)
	return int(math.Round(growth*0.4 + trends*0.3 + rating*0.15 + margin*0.15))
}

// ProfitMargin is the percentage margin selling at marketPrice, or at the
// retail markup when marketPrice does not exceed cost.
func ProfitMargin(cost, marketPrice float64) float64 {
	sell := cost * retailMarkup
	if marketPrice > cost {
		sell = marketPrice
	}
	if sell <= 0 {
		return 0
	}
	return math.Round((sell - cost) / sell * 100)
}

// ScoredProduct is the shape served by the scored winning-products endpoint.
type ScoredProduct struct {
	Name            string  `json:"product_name"`
	Cost            float64 `json:"cj_price"`
	MarketPrice     float64 `json:"avg_market_price"`
	ProfitMarginPct float64 `json:"profit_margin"`
	OrderCount      int     `json:"order_count"`
	GrowthPct       float64 `json:"order_growth_%"`
	TrendsScore     float64 `json:"google_trends_score"`
	ThumbnailURL    string  `json:"thumbnail_url"`
	Status          string  `json:"status"`
	Score           int     `json:"-"`
}

// RatingSource returns a product's average review score.
type RatingSource interface {
	Rating(ctx context.Context, pid string) (float64, error)
}

// ProxyRatings reads ratings from product/productComments.
type ProxyRatings struct {
	Forwarder Forwarder
}

func (r ProxyRatings) Rating(ctx context.Context, pid string) (float64, error) {
	res, err := r.Forwarder.Forward(ctx, proxy.Request{
		Method: http.MethodGet,
		Path:   "product/productComments",
		Query:  url.Values{"pid": {pid}, "pageNum": {"1"}, "pageSize": {"20"}},
	})
	if err != nil {
		return 0, err
	}
	var data struct {
		AverageScore utils.LooseNumber `json:"averageScore"`
	}
	if !res.Succeeded() {
		return 0, &apperrors.UpstreamError{Status: res.Status, Code: res.Envelope.Code, Message: res.Envelope.Message}
	}
	if err := res.DecodeData(&data); err != nil {
		return 0, err
	}
	return data.AverageScore.Float(), nil
}

// ScoreRanker enriches candidates with rating, trend and market-price
// signals, drops those below the thresholds and sorts by Score.
type ScoreRanker struct {
	ratings        RatingSource
	trends         signals.TrendsProvider
	prices         signals.PriceProvider
	thresholds     Thresholds
	requireSignals bool
	workers        int
	logger         zerolog.Logger
}

var _ Ranker[ScoredProduct] = (*ScoreRanker)(nil)

type ScoreOption func(*ScoreRanker)

func WithThresholds(t Thresholds) ScoreOption {
	return func(r *ScoreRanker) {
		r.thresholds = t
	}
}

// WithRequireSignals drops candidates lacking a trend or market-price signal
// instead of scoring them from zeros and estimates.
func WithRequireSignals(require bool) ScoreOption {
	return func(r *ScoreRanker) {
		r.requireSignals = require
	}
}

// WithEnrichWorkers bounds concurrent signal lookups. Values below one keep the default.
func WithEnrichWorkers(n int) ScoreOption {
	return func(r *ScoreRanker) {
		if n > 0 {
			r.workers = n
		}
	}
}

func NewScoreRanker(ratings RatingSource, trends signals.TrendsProvider, prices signals.PriceProvider, options ...ScoreOption) *ScoreRanker {
	r := &ScoreRanker{
		ratings:    ratings,
		trends:     trends,
		prices:     prices,
		thresholds: DefaultThresholds,
		workers:    defaultEnrichWorkers,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.trends == nil {
		r.trends = signals.None{}
	}
	if r.prices == nil {
		r.prices = signals.None{}
	}
	return r
}

func (r *ScoreRanker) Rank(ctx context.Context, candidates []RawProduct) []ScoredProduct {
	results := make([]*ScoredProduct, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.workers))
	for i, p := range candidates {
		g.Go(func() error {
			results[i] = r.evaluate(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]ScoredProduct, 0, len(results))
	for _, sp := range results {
		if sp != nil {
			out = append(out, *sp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// evaluate returns nil when p is dropped.
func (r *ScoreRanker) evaluate(ctx context.Context, p RawProduct) *ScoredProduct {
	title := p.Title()
	cost := p.Cost()
	logger := r.logger.With().Str("pid", p.ID()).Logger()

	rating, err := r.ratings.Rating(ctx, p.ID())
	if err != nil {
		logger.Debug().Err(err).Msg("rating unavailable")
		rating = 0
	}

	trend, err := r.trends.Trends(ctx, title)
	if err != nil {
		if r.requireSignals {
			return nil
		}
		if !errors.Is(err, signals.ErrNoSignal) {
			logger.Debug().Err(err).Msg("trend lookup failed")
		}
		trend = signals.Trend{}
	}

	market, err := r.prices.MarketPrice(ctx, title)
	if err != nil {
		if r.requireSignals {
			return nil
		}
		if !errors.Is(err, signals.ErrNoSignal) {
			logger.Debug().Err(err).Msg("market price lookup failed")
		}
		market = 0
	}

	c := Candidate{
		GrowthPct:       trend.GrowthPct,
		TrendsScore:     trend.Score,
		Rating:          rating,
		ProfitMarginPct: ProfitMargin(cost, market),
	}
	if !r.thresholds.Pass(c) {
		return nil
	}

	status := StatusDropping
	if c.TrendsScore >= trendingScore && c.GrowthPct >= 0 {
		status = StatusTrending
	}
	if market <= 0 {
		market = utils.RoundTo(cost*estimatedMarketMarkup, 2)
	}
	return &ScoredProduct{
		Name:            title,
		Cost:            utils.RoundTo(cost, 2),
		MarketPrice:     market,
		ProfitMarginPct: c.ProfitMarginPct,
		OrderCount:      p.Popularity(),
		GrowthPct:       c.GrowthPct,
		TrendsScore:     c.TrendsScore,
		ThumbnailURL:    p.ProductImage,
		Status:          status,
		Score:           Score(c),
	}
}
