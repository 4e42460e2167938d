package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-dropship-gateway/authguard"
	"github.com/jrsteele09/go-dropship-gateway/cache"
	"github.com/jrsteele09/go-dropship-gateway/catalog"
	"github.com/jrsteele09/go-dropship-gateway/catalog/signals"
	"github.com/jrsteele09/go-dropship-gateway/internal/config"
	"github.com/jrsteele09/go-dropship-gateway/internal/metrics"
	"github.com/jrsteele09/go-dropship-gateway/proxy"
	"github.com/jrsteele09/go-dropship-gateway/ratelimit"
	"github.com/jrsteele09/go-dropship-gateway/server"
	"github.com/jrsteele09/go-dropship-gateway/token"
	"github.com/jrsteele09/go-dropship-gateway/token/filerepo"
	"github.com/jrsteele09/go-dropship-gateway/upstream"
	"github.com/jrsteele09/go-dropship-gateway/webhooks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	publicSnapshotFile = "winning_public.json"
	scoredSnapshotFile = "winning_products.json"
	serpAPIPerSecond   = 2
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	configureLogging(c.GetEnv())
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler, err := newGateway(ctx, c)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	cancel()
	return shutdown(httpServer)
}

// newGateway wires every component and starts the background loops, which
// stop when ctx is cancelled.
func newGateway(ctx context.Context, c config.Config) (*server.Server, error) {
	m := metrics.New()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := m.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	if err := os.MkdirAll(c.GetDataFolder(), 0o755); err != nil {
		return nil, fmt.Errorf("create data folder: %w", err)
	}

	limiter := ratelimit.New(c.GetAPICallInterval(), c.GetRateWindow(), c.GetRateWindowBudget(), ratelimit.WithMetrics(m))
	authBackoff, dataBackoff := c.GetRateLimitBackoff()
	client := upstream.New(c.GetUpstreamBaseURL(), limiter,
		upstream.WithHTTPClient(&http.Client{Timeout: c.GetUpstreamTimeout()}),
		upstream.WithMaxAttempts(c.GetUpstreamMaxAttempts()),
		upstream.WithRateLimitBackoff(authBackoff, dataBackoff),
		upstream.WithNetworkBackoff(c.GetNetworkBackoff()),
		upstream.WithMetrics(m),
	)

	account := token.Account{Email: c.GetUpstreamEmail(), APIKey: c.GetUpstreamAPIKey()}
	logCredentials(account)
	tokens := token.New(client, filerepo.NewInFolder(c.GetDataFolder()), account,
		token.WithMetrics(m),
		token.WithDefaultExpiry(c.GetDefaultAccessTokenExpiry()),
		token.WithAuthLimits(c.GetAuthLimits()),
	)

	results := cache.New[*upstream.Response](c.GetProxyCacheTTL(), cache.WithMetrics(m))
	go results.Run(ctx)
	p := proxy.New(client, tokens, proxy.WithCache(results))

	filter := catalog.NewFilter(c.GetExcludeKeywords(), c.GetMinOrders())
	public := catalog.NewEngine("public", p, catalog.PublicSource(c.GetMinOrders(), c.GetPageDelay()), filter, catalog.PopularityRanker{},
		catalog.WithCap(c.GetPublicCap()),
		catalog.WithRefreshPeriod(c.GetRefreshPeriod()),
		catalog.WithSnapshotFile(filepath.Join(c.GetDataFolder(), publicSnapshotFile)),
		catalog.WithMetrics(m),
	)
	startEngine(ctx, public)

	var scored *catalog.Engine[catalog.ScoredProduct]
	if c.GetScoringEnabled() {
		trends, prices := newSignalProviders(c)
		ranker := catalog.NewScoreRanker(catalog.ProxyRatings{Forwarder: p}, trends, prices,
			catalog.WithRequireSignals(c.GetRequireSignals()),
			catalog.WithThresholds(catalog.Thresholds(c.GetScoreThresholds())),
			catalog.WithEnrichWorkers(c.GetEnrichWorkers()),
		)
		scored = catalog.NewEngine("scored", p, catalog.ScoredSource(c.GetPageDelay()), catalog.NewFilter(c.GetExcludeKeywords(), 0), ranker,
			catalog.WithCap(c.GetScoredCap()),
			catalog.WithRefreshPeriod(c.GetRefreshPeriod()),
			catalog.WithSnapshotFile(filepath.Join(c.GetDataFolder(), scoredSnapshotFile)),
			catalog.WithMetrics(m),
		)
		startEngine(ctx, scored)
	}

	guard, err := authguard.FromConfig(ctx, c)
	if err != nil {
		return nil, err
	}

	return server.New(c, server.Services{
		Tokens:   tokens,
		Proxy:    p,
		Cache:    results,
		Limiter:  limiter,
		Public:   public,
		Scored:   scored,
		Webhooks: webhooks.NewLog(webhooks.WithMetrics(m)),
		Guard:    guard,
		Gatherer: registry,
	})
}

// startEngine publishes any saved snapshot, then refreshes on the timer.
// A missing or stale snapshot is refreshed by the first read.
func startEngine[T any](ctx context.Context, e *catalog.Engine[T]) {
	if err := e.LoadSnapshotFile(); err != nil {
		log.Warn().Err(err).Str("engine", e.Name()).Msg("ignoring saved snapshot")
	}
	go e.Run(ctx)
}

func newSignalProviders(c config.SignalsConfig) (signals.TrendsProvider, signals.PriceProvider) {
	key := c.GetSerpAPIKey()
	if key == "" {
		log.Info().Msg("no SerpAPI key, market prices are estimated and trend signals are zero")
		return signals.None{}, signals.None{}
	}
	serp := signals.NewSerpAPI(key, serpAPIPerSecond)
	if c.GetTrendsProvider() != "serpapi" {
		return signals.None{}, serp
	}
	return serp, serp
}

func logCredentials(account token.Account) {
	if account.Email == "" || account.APIKey == "" {
		log.Warn().Msg("upstream credentials not configured, proxy calls will fail")
		return
	}
	prefix := account.APIKey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	log.Info().Str("email", account.Email).Str("api_key", prefix+"...").Msg("upstream credentials loaded")
}

func configureLogging(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
