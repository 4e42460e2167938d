// Package ratelimit gates outbound upstream calls. Two independent controls
// apply: a global minimum spacing between calls regardless of caller, and a
// per-scope call budget counted over fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-dropship-gateway/internal/errors"
	"github.com/jrsteele09/go-dropship-gateway/internal/metrics"
	"github.com/jrsteele09/go-dropship-gateway/retry"
	"golang.org/x/time/rate"
)

// Scope partitions the window budget.
type Scope string

const (
	ScopeAuth Scope = "auth"
	ScopeData Scope = "data"
)

type windowKey struct {
	scope Scope
	index int64
}

// Limiter is safe for concurrent use.
type Limiter struct {
	spacing *rate.Limiter
	window  time.Duration
	budget  int
	nowFunc func() time.Time
	sleep   retry.Sleeper
	metrics *metrics.Metrics

	mu      sync.Mutex
	windows map[windowKey]int
}

type Option func(*Limiter)

func WithNowFunc(now func() time.Time) Option {
	return func(l *Limiter) {
		l.nowFunc = now
	}
}

// WithSleeper replaces the pause used while waiting for the next window.
func WithSleeper(s retry.Sleeper) Option {
	return func(l *Limiter) {
		l.sleep = s
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New creates a limiter spacing calls at least callInterval apart and allowing
// at most budget calls per scope in each window. A non-positive callInterval
// disables spacing; a non-positive budget disables the window check. Windows
// shorter than a millisecond are raised to one.
func New(callInterval, window time.Duration, budget int, options ...Option) *Limiter {
	limit := rate.Inf
	if callInterval > 0 {
		limit = rate.Every(callInterval)
	}
	l := &Limiter{
		spacing: rate.NewLimiter(limit, 1),
		window:  window,
		budget:  budget,
		windows: make(map[windowKey]int),
	}
	for _, opt := range options {
		opt(l)
	}
	switch {
	case l.window <= 0:
		l.window = time.Minute
	case l.window < time.Millisecond:
		l.window = time.Millisecond
	}
	if l.nowFunc == nil {
		l.nowFunc = time.Now
	}
	if l.sleep == nil {
		l.sleep = retry.Sleep
	}
	return l
}

// Wait blocks until the global spacing allows another call and the scope's
// window has budget left, then charges the window. When ctx has a deadline
// that ends before the next window opens it fails at once with
// ErrUpstreamRateLimited.
func (l *Limiter) Wait(ctx context.Context, scope Scope) error {
	for {
		if err := l.spacing.Wait(ctx); err != nil {
			return fmt.Errorf("ratelimit wait: %w", err)
		}
		ok, next := l.charge(scope)
		if ok {
			return nil
		}
		l.metrics.BudgetWait(string(scope))
		if deadline, has := ctx.Deadline(); has && time.Until(deadline) < next {
			return fmt.Errorf("local %s budget of %d calls per %s spent: %w", scope, l.budget, l.window, apperrors.ErrUpstreamRateLimited)
		}
		if err := l.sleep(ctx, next); err != nil {
			return fmt.Errorf("ratelimit wait: %w", err)
		}
	}
}

// Allow charges one call to scope's current window, reporting false if the
// window is already full. Windows older than two intervals are dropped.
func (l *Limiter) Allow(scope Scope) bool {
	ok, _ := l.charge(scope)
	return ok
}

// charge reports whether the call fits the current window and, when it does
// not, how long until the next window opens.
func (l *Limiter) charge(scope Scope) (bool, time.Duration) {
	if l.budget <= 0 {
		return true, 0
	}
	now := l.nowFunc()
	index := l.windowIndex(now)
	key := windowKey{scope: scope, index: index}

	l.mu.Lock()
	defer l.mu.Unlock()

	for k := range l.windows {
		if k.index <= index-2 {
			delete(l.windows, k)
		}
	}
	if l.windows[key] >= l.budget {
		next := time.UnixMilli((index + 1) * l.window.Milliseconds())
		return false, max(next.Sub(now), time.Millisecond)
	}
	l.windows[key]++
	return true, 0
}

func (l *Limiter) windowIndex(t time.Time) int64 {
	return t.UnixMilli() / l.window.Milliseconds()
}

// Stats returns the number of calls charged in the current window per scope.
func (l *Limiter) Stats() map[Scope]int {
	index := l.windowIndex(l.nowFunc())

	l.mu.Lock()
	defer l.mu.Unlock()

	stats := make(map[Scope]int)
	for k, count := range l.windows {
		if k.index == index {
			stats[k.scope] = count
		}
	}
	return stats
}

// ScopeForPath returns ScopeAuth for upstream authentication endpoints.
func ScopeForPath(path string) Scope {
	if strings.Contains(strings.ToLower(path), "authentication") {
		return ScopeAuth
	}
	return ScopeData
}
