package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics exports Metrics calls as Prometheus collectors. Each
// metric name gets one vector, registered lazily on first use; its label set
// is fixed by the tag keys of that first call.
type PrometheusMetrics struct {
	reg      prometheus.Registerer
	gatherer prometheus.Gatherer

	mu         sync.Mutex
	counters   map[string]*promVec[*prometheus.CounterVec]
	gauges     map[string]*promVec[*prometheus.GaugeVec]
	histograms map[string]*promVec[*prometheus.HistogramVec]
}

type promVec[V any] struct {
	vec    V
	labels []string
}

// NewPrometheusMetrics creates a collector set on the given registry. A nil
// registry creates a private one.
func NewPrometheusMetrics(reg *prometheus.Registry) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &PrometheusMetrics{
		reg:        reg,
		gatherer:   reg,
		counters:   make(map[string]*promVec[*prometheus.CounterVec]),
		gauges:     make(map[string]*promVec[*prometheus.GaugeVec]),
		histograms: make(map[string]*promVec[*prometheus.HistogramVec]),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	v, ok := m.counters[name]
	if !ok {
		labels := tagKeys(tags)
		v = &promVec[*prometheus.CounterVec]{
			vec:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: promName(name), Help: name}, labels),
			labels: labels,
		}
		if !m.register(v.vec) {
			m.mu.Unlock()
			return
		}
		m.counters[name] = v
	}
	m.mu.Unlock()

	if value < 0 {
		return
	}
	v.vec.WithLabelValues(labelValues(v.labels, tags)...).Add(float64(value))
}

func (m *PrometheusMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	v, ok := m.gauges[name]
	if !ok {
		labels := tagKeys(tags)
		v = &promVec[*prometheus.GaugeVec]{
			vec:    prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: promName(name), Help: name}, labels),
			labels: labels,
		}
		if !m.register(v.vec) {
			m.mu.Unlock()
			return
		}
		m.gauges[name] = v
	}
	m.mu.Unlock()

	v.vec.WithLabelValues(labelValues(v.labels, tags)...).Set(value)
}

func (m *PrometheusMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.observe(name, value, prometheus.ExponentialBuckets(1, 2, 12), tags)
}

// Timing records durations in seconds.
func (m *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.observe(name, duration.Seconds(), prometheus.DefBuckets, tags)
}

func (m *PrometheusMetrics) observe(name string, value float64, buckets []float64, tags []Tag) {
	m.mu.Lock()
	v, ok := m.histograms[name]
	if !ok {
		labels := tagKeys(tags)
		v = &promVec[*prometheus.HistogramVec]{
			vec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    promName(name),
				Help:    name,
				Buckets: buckets,
			}, labels),
			labels: labels,
		}
		if !m.register(v.vec) {
			m.mu.Unlock()
			return
		}
		m.histograms[name] = v
	}
	m.mu.Unlock()

	v.vec.WithLabelValues(labelValues(v.labels, tags)...).Observe(value)
}

// register reports whether the collector was accepted. A name reused across
// metric kinds is rejected and the observation dropped.
func (m *PrometheusMetrics) register(c prometheus.Collector) bool {
	return m.reg.Register(c) == nil
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func tagKeys(tags []Tag) []string {
	keys := make([]string, 0, len(tags))
	for _, t := range tags {
		keys = append(keys, t.Key)
	}
	return keys
}

// labelValues orders tag values by the vector's label names. Missing labels
// are empty; tags unknown to the vector are ignored.
func labelValues(labels []string, tags []Tag) []string {
	values := make([]string, len(labels))
	for i, label := range labels {
		for _, t := range tags {
			if t.Key == label {
				values[i] = t.Value
				break
			}
		}
	}
	return values
}

var _ Metrics = (*PrometheusMetrics)(nil)
