package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/jrsteele09/go-dropship-gateway/internal/errors"
	"github.com/jrsteele09/go-dropship-gateway/internal/metrics"
	"github.com/jrsteele09/go-dropship-gateway/internal/utils"
	"github.com/jrsteele09/go-dropship-gateway/retry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Refresh triggers, as reported to metrics.
const (
	TriggerTimer     = "timer"
	TriggerStaleRead = "stale_read"
	TriggerManual    = "manual"
)

const defaultRefreshPeriod = 72 * time.Hour

// Snapshot is one published result. It is never modified after publication.
type Snapshot[T any] struct {
	Version     uint64
	Items       []T
	RefreshedAt time.Time
}

// Stale reports whether s is empty or older than period.
func (s *Snapshot[T]) Stale(now time.Time, period time.Duration) bool {
	return len(s.Items) == 0 || now.Sub(s.RefreshedAt) > period
}

// Engine periodically rebuilds a ranked product snapshot. Reads never wait
// for a refresh.
type Engine[T any] struct {
	name         string
	crawler      crawler
	filter       Filter
	ranker       Ranker[T]
	cap          int
	period       time.Duration
	snapshotPath string
	nowFunc      func() time.Time
	logger       zerolog.Logger
	metrics      *metrics.Metrics

	current    atomic.Pointer[Snapshot[T]]
	version    atomic.Uint64
	refreshing atomic.Bool
	background sync.WaitGroup
}

type EngineOption func(*engineOptions)

type engineOptions struct {
	cap          int
	period       time.Duration
	snapshotPath string
	nowFunc      func() time.Time
	sleep        retry.Sleeper
	logger       *zerolog.Logger
	metrics      *metrics.Metrics
}

// WithCap truncates every snapshot to n items.
func WithCap(n int) EngineOption {
	return func(o *engineOptions) {
		o.cap = n
	}
}

func WithRefreshPeriod(d time.Duration) EngineOption {
	return func(o *engineOptions) {
		o.period = d
	}
}

// WithSnapshotFile writes each published item list to path.
func WithSnapshotFile(path string) EngineOption {
	return func(o *engineOptions) {
		o.snapshotPath = path
	}
}

func WithNowFunc(now func() time.Time) EngineOption {
	return func(o *engineOptions) {
		o.nowFunc = now
	}
}

// WithSleeper replaces the pause between pages.
func WithSleeper(s retry.Sleeper) EngineOption {
	return func(o *engineOptions) {
		o.sleep = s
	}
}

func WithLogger(l zerolog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = &l
	}
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(o *engineOptions) {
		o.metrics = m
	}
}

func NewEngine[T any](name string, fwd Forwarder, source Source, filter Filter, ranker Ranker[T], options ...EngineOption) *Engine[T] {
	o := engineOptions{
		period:  defaultRefreshPeriod,
		nowFunc: time.Now,
		sleep:   retry.Sleep,
	}
	for _, opt := range options {
		opt(&o)
	}
	logger := log.Logger
	if o.logger != nil {
		logger = *o.logger
	}
	logger = logger.With().Str("engine", name).Logger()

	e := &Engine[T]{
		name:         name,
		crawler:      crawler{source: source, fwd: fwd, sleep: o.sleep, logger: logger},
		filter:       filter,
		ranker:       ranker,
		cap:          o.cap,
		period:       o.period,
		snapshotPath: o.snapshotPath,
		nowFunc:      o.nowFunc,
		logger:       logger,
		metrics:      o.metrics,
	}
	e.current.Store(&Snapshot[T]{Items: []T{}})
	return e
}

func (e *Engine[T]) Name() string {
	return e.name
}

// Snapshot returns the current snapshot without side effects.
func (e *Engine[T]) Snapshot() *Snapshot[T] {
	return e.current.Load()
}

// Serve returns the current snapshot immediately, starting a background
// refresh first if it is empty or older than the refresh period.
func (e *Engine[T]) Serve() *Snapshot[T] {
	snap := e.current.Load()
	if snap.Stale(e.nowFunc(), e.period) {
		e.TriggerRefresh(TriggerStaleRead)
	}
	return snap
}

// TriggerRefresh starts a background refresh unless one started this way is
// still running. It reports whether a refresh was started.
func (e *Engine[T]) TriggerRefresh(trigger string) bool {
	if !e.refreshing.CompareAndSwap(false, true) {
		return false
	}
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		defer e.refreshing.Store(false)
		e.Refresh(context.Background(), trigger)
	}()
	return true
}

// Refreshing reports whether a triggered refresh is in flight.
func (e *Engine[T]) Refreshing() bool {
	return e.refreshing.Load()
}

// Wait blocks until triggered refreshes have finished.
func (e *Engine[T]) Wait() {
	e.background.Wait()
}

// Refresh runs one full cycle and publishes its result. Failures of single
// pages or lookups shrink the result rather than abort the cycle.
func (e *Engine[T]) Refresh(ctx context.Context, trigger string) *Snapshot[T] {
	start := e.nowFunc()
	e.metrics.AggregationRun(e.name, trigger)
	e.logger.Info().Str("trigger", trigger).Msg("refreshing winning products")

	raw := e.crawler.fetch(ctx)
	kept := e.filter.Apply(raw)
	items := e.ranker.Rank(ctx, kept)
	if e.cap > 0 && len(items) > e.cap {
		items = items[:e.cap]
	}
	if items == nil {
		items = []T{}
	}

	snap := e.publish(items, e.nowFunc())
	e.logger.Info().
		Int("fetched", len(raw)).
		Int("kept", len(kept)).
		Int("items", len(items)).
		Dur("took", e.nowFunc().Sub(start)).
		Msg("winning products updated")
	if len(items) == 0 {
		e.logger.Warn().Msg("no winning products found, upstream may be rate limiting; next stale read retries")
	}
	return snap
}

func (e *Engine[T]) publish(items []T, at time.Time) *Snapshot[T] {
	snap := &Snapshot[T]{Version: e.version.Add(1), Items: items, RefreshedAt: at}
	e.current.Store(snap)
	e.metrics.SnapshotItems(e.name, len(items))

	if e.snapshotPath != "" {
		if err := utils.WriteJSONFile(e.snapshotPath, items, 0o644); err != nil {
			e.logger.Warn().Err(err).Str("file", e.snapshotPath).Msg("could not write snapshot file")
		}
	}
	return snap
}

// LoadSnapshotFile publishes the items saved by a previous process, dated by
// the file's modification time. A missing file is not an error.
func (e *Engine[T]) LoadSnapshotFile() error {
	if e.snapshotPath == "" {
		return nil
	}
	info, err := os.Stat(e.snapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return apperrors.Wrapf(err, "stat snapshot %s", e.snapshotPath)
	}
	data, err := os.ReadFile(e.snapshotPath)
	if err != nil {
		return apperrors.Wrapf(err, "read snapshot %s", e.snapshotPath)
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return apperrors.Wrapf(err, "parse snapshot %s", e.snapshotPath)
	}
	if items == nil {
		items = []T{}
	}
	snap := &Snapshot[T]{Version: e.version.Add(1), Items: items, RefreshedAt: info.ModTime()}
	e.current.Store(snap)
	e.metrics.SnapshotItems(e.name, len(items))
	e.logger.Info().Int("items", len(items)).Time("refreshed_at", snap.RefreshedAt).Msg("loaded saved winning products")
	return nil
}

// Run refreshes every period until ctx is done. Timer cycles may overlap a
// triggered refresh; the later publication wins.
func (e *Engine[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Refresh(ctx, TriggerTimer)
		}
	}
}
