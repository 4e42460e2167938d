// Package webhooks keeps a bounded in-memory log of order webhooks received
// from store platforms.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-dropship-gateway/internal/metrics"
)

// Sources of webhook deliveries.
const (
	SourceShopify     = "shopify"
	SourceWooCommerce = "woocommerce"
)

// ShopifyHMACHeader carries the base64 HMAC-SHA256 of a Shopify delivery body.
const ShopifyHMACHeader = "X-Shopify-Hmac-Sha256"

const DefaultCapacity = 500

// Event is one stored delivery. Redeliveries are stored again.
type Event struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt int64           `json:"receivedAt"`
}

// Log retains the most recent deliveries up to its capacity.
type Log struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
	nowFunc  func() time.Time
	metrics  *metrics.Metrics
}

type Option func(*Log)

func WithCapacity(n int) Option {
	return func(l *Log) {
		l.capacity = n
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(l *Log) {
		l.nowFunc = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) {
		l.metrics = m
	}
}

func NewLog(options ...Option) *Log {
	l := &Log{capacity: DefaultCapacity, nowFunc: time.Now}
	for _, opt := range options {
		opt(l)
	}
	if l.capacity <= 0 {
		l.capacity = DefaultCapacity
	}
	return l
}

// Record stores payload, dropping the oldest event when full. A payload that
// is not JSON is kept as a JSON string.
func (l *Log) Record(source string, payload []byte) Event {
	raw := json.RawMessage(payload)
	if !json.Valid(payload) {
		raw, _ = json.Marshal(string(payload))
	}
	ev := Event{
		ID:         uuid.NewString(),
		Source:     source,
		Payload:    raw,
		ReceivedAt: l.nowFunc().UnixMilli(),
	}

	l.mu.Lock()
	l.events = append(l.events, ev)
	if over := len(l.events) - l.capacity; over > 0 {
		l.events = append([]Event(nil), l.events[over:]...)
	}
	l.mu.Unlock()

	l.metrics.Webhook(source)
	return ev
}

// Recent returns up to n of the latest events, oldest first.
func (l *Log) Recent(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := max(0, len(l.events)-n)
	out := make([]Event, len(l.events)-start)
	copy(out, l.events[start:])
	return out
}

// Len is the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// VerifyShopify reports whether signature is the base64 HMAC-SHA256 of body under secret.
func VerifyShopify(secret string, body []byte, signature string) bool {
	want, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(want) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
