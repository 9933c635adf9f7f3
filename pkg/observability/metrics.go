package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics is the recording surface used across the codebase. Names are the
// dotted Metric* constants below; tags become labels.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Histogram(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is one label on a series.
type Tag struct {
	Key   string
	Value string
}

// T builds a Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Histogram(string, float64, ...Tag)    {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics keeps every series in memory so tests can assert on what
// was recorded. Tag order does not matter when reading a series back.
type InMemoryMetrics struct {
	mu      sync.RWMutex
	counts  map[string]int64
	levels  map[string]float64
	samples map[string][]float64
	timings map[string][]time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	m := &InMemoryMetrics{}
	m.Reset()
	return m
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	m.counts[series(name, tags)] += value
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	m.levels[series(name, tags)] = value
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	key := series(name, tags)
	m.samples[key] = append(m.samples[key], value)
	m.mu.Unlock()
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.mu.Lock()
	key := series(name, tags)
	m.timings[key] = append(m.timings[key], duration)
	m.mu.Unlock()
}

// GetCounter returns the running total of one series.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[series(name, tags)]
}

// CounterTotal sums a counter over every tag combination.
func (m *InMemoryMetrics) CounterTotal(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for key, v := range m.counts {
		if key == name || strings.HasPrefix(key, name+"{") {
			total += v
		}
	}
	return total
}

// GetGauge returns the last value set on one series.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.levels[series(name, tags)]
}

func (m *InMemoryMetrics) GetHistogram(name string, tags ...Tag) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]float64(nil), m.samples[series(name, tags)]...)
}

func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.timings[series(name, tags)]...)
}

// Reset drops every recorded series.
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = map[string]int64{}
	m.levels = map[string]float64{}
	m.samples = map[string][]float64{}
	m.timings = map[string][]time.Duration{}
}

// series renders name{k=v,...} with tags sorted by key.
func series(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := append([]Tag(nil), tags...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, t := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	b.WriteByte('}')
	return b.String()
}

var (
	_ Metrics = NoopMetrics{}
	_ Metrics = (*InMemoryMetrics)(nil)
)

// Standard metric names used throughout keystone.
const (
	// Operation metrics
	MetricOperationTotal    = "keystone.operation.total"
	MetricOperationDuration = "keystone.operation.duration"
	MetricOperationErrors   = "keystone.operation.errors"

	// Payment consumer metrics
	MetricPaymentsProcessed = "keystone.payments.processed"
	MetricPaymentDuration   = "keystone.payments.duration"

	// Subscription lifecycle metrics
	MetricSubscriptionsActivated = "keystone.subscriptions.activated"
	MetricSubscriptionsExtended  = "keystone.subscriptions.extended"
	MetricSubscriptionsExpired   = "keystone.subscriptions.expired"
	MetricSubscriptionsCancelled = "keystone.subscriptions.cancelled"

	// Entitlement metrics
	MetricRolesGranted = "keystone.entitlements.granted"
	MetricRolesRevoked = "keystone.entitlements.revoked"

	// Sweep metrics
	MetricSweepUsers    = "keystone.sweep.users"
	MetricSweepErrors   = "keystone.sweep.errors"
	MetricSweepDuration = "keystone.sweep.duration"
	MetricLedgerPurged  = "keystone.ledger.purged"

	// Catalog metrics
	MetricCatalogCacheHits   = "keystone.catalog.cache_hits"
	MetricCatalogCacheMisses = "keystone.catalog.cache_misses"

	// Identity metrics
	MetricLogins               = "keystone.auth.logins"
	MetricIdentityBreakerState = "keystone.identity.breaker_state"

	// Event bus metrics
	MetricEventbusDeliveries = "keystone.eventbus.deliveries"
	MetricEventbusRetries    = "keystone.eventbus.retries"
	MetricEventsPublished    = "keystone.events.published"
	MetricOutboxFailures     = "keystone.outbox.failures"
)
