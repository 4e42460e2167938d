// Package metrics holds the Prometheus collectors shared by the gateway's
// upstream transport, proxy cache and aggregation engines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dropship_gateway"

// Metrics contains the gateway collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	UpstreamCalls    *prometheus.CounterVec
	UpstreamRetries  *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	AuthAttempts     *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	AggregationRuns  *prometheus.CounterVec
	AggregationItems *prometheus.GaugeVec
	WebhooksReceived *prometheus.CounterVec
	LocalBudgetWaits *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		UpstreamCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "calls_total",
				Help:      "Upstream HTTP calls by scope and outcome",
			},
			[]string{"scope", "outcome"},
		),
		UpstreamRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "retries_total",
				Help:      "Upstream retries by reason (rate_limited, network)",
			},
			[]string{"scope", "reason"},
		),
		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "call_duration_seconds",
				Help:      "Duration of a single upstream HTTP round trip",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scope"},
		),
		AuthAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token",
				Name:      "auth_total",
				Help:      "Token acquisitions by kind (authenticate, refresh) and result",
			},
			[]string{"kind", "result"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Proxy result cache lookups by result (hit, miss)",
			},
			[]string{"result"},
		),
		AggregationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "aggregation",
				Name:      "runs_total",
				Help:      "Aggregation cycles by engine and trigger",
			},
			[]string{"engine", "trigger"},
		),
		AggregationItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "aggregation",
				Name:      "snapshot_items",
				Help:      "Items in the last published snapshot",
			},
			[]string{"engine"},
		),
		WebhooksReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhooks",
				Name:      "received_total",
				Help:      "Store webhooks received by source",
			},
			[]string{"source"},
		),
		LocalBudgetWaits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "budget_waits_total",
				Help:      "Calls held back until the next rate window because the budget was spent",
			},
			[]string{"scope"},
		),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.UpstreamCalls,
		m.UpstreamRetries,
		m.UpstreamDuration,
		m.AuthAttempts,
		m.CacheLookups,
		m.AggregationRuns,
		m.AggregationItems,
		m.WebhooksReceived,
		m.LocalBudgetWaits,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) UpstreamCall(scope, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.UpstreamCalls.WithLabelValues(scope, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(scope).Observe(seconds)
}

func (m *Metrics) UpstreamRetry(scope, reason string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(scope, reason).Inc()
}

func (m *Metrics) Auth(kind, result string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) AggregationRun(engine, trigger string) {
	if m == nil {
		return
	}
	m.AggregationRuns.WithLabelValues(engine, trigger).Inc()
}

func (m *Metrics) SnapshotItems(engine string, n int) {
	if m == nil {
		return
	}
	m.AggregationItems.WithLabelValues(engine).Set(float64(n))
}

func (m *Metrics) Webhook(source string) {
	if m == nil {
		return
	}
	m.WebhooksReceived.WithLabelValues(source).Inc()
}

func (m *Metrics) BudgetWait(scope string) {
	if m == nil {
		return
	}
	m.LocalBudgetWaits.WithLabelValues(scope).Inc()
}
