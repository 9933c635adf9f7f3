package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus is the state of one component or of the whole service.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// Probe returns nil when the component works.
type Probe func(ctx context.Context) error

// ComponentHealth is the outcome of one probe.
type ComponentHealth struct {
	Status    HealthStatus `json:"status"`
	Critical  bool         `json:"critical"`
	Error     string       `json:"error,omitempty"`
	LatencyMS int64        `json:"latency_ms"`
}

// HealthReport aggregates every registered probe.
type HealthReport struct {
	Status     HealthStatus               `json:"status"`
	CheckedAt  time.Time                  `json:"checked_at"`
	Components map[string]ComponentHealth `json:"components"`
}

type registeredProbe struct {
	probe    Probe
	critical bool
}

// HealthRegistry runs probes concurrently. A failing critical probe makes the
// service unhealthy; any other failure only degrades it. The database is
// critical, while Redis and the outbox can lag without losing data.
type HealthRegistry struct {
	mu     sync.RWMutex
	probes map[string]registeredProbe
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{probes: make(map[string]registeredProbe)}
}

// Register adds or replaces the probe for name.
func (r *HealthRegistry) Register(name string, probe Probe, critical bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = registeredProbe{probe: probe, critical: critical}
}

// Components lists the registered names in order.
func (r *HealthRegistry) Components() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.probes))
	for name := range r.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every probe and folds the results into one report.
func (r *HealthRegistry) Check(ctx context.Context) HealthReport {
	r.mu.RLock()
	probes := make(map[string]registeredProbe, len(r.probes))
	for name, p := range r.probes {
		probes[name] = p
	}
	r.mu.RUnlock()

	report := HealthReport{
		Status:     HealthStatusHealthy,
		CheckedAt:  time.Now().UTC(),
		Components: make(map[string]ComponentHealth, len(probes)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := run(ctx, p)
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, c := range report.Components {
		report.Status = worst(report.Status, c.Status)
	}
	return report
}

func run(ctx context.Context, p registeredProbe) ComponentHealth {
	start := time.Now()
	err := p.probe(ctx)
	result := ComponentHealth{
		Status:    HealthStatusHealthy,
		Critical:  p.critical,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
		result.Status = HealthStatusDegraded
		if p.critical {
			result.Status = HealthStatusUnhealthy
		}
	}
	return result
}

func worst(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{HealthStatusHealthy: 0, HealthStatusDegraded: 1, HealthStatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Handler serves the report as JSON, answering 503 when unhealthy so load
// balancers stop routing. Degraded still answers 200.
func (r *HealthRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		report := r.Check(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}

// LagProbe fails once lag reports more than max, for example the age of the
// oldest unpublished outbox message.
func LagProbe(lag func() time.Duration, max time.Duration) Probe {
	return func(context.Context) error {
		if l := lag(); l > max {
			return fmt.Errorf("lagging %s behind (limit %s)", l.Round(time.Second), max)
		}
		return nil
	}
}
