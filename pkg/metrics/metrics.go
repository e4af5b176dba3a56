// Package metrics records schematic operation outcomes.
package metrics

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder observes one completed operation.
type Recorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Noop discards observations.
type Noop struct{}

func (Noop) Observe(context.Context, string, bool, time.Duration) {}

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Prometheus exports operation counters and latency histograms on a private
// registry and keeps running totals for the shell's stats command.
type Prometheus struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec

	mu      sync.Mutex
	results map[string]map[string]int64
	totals  map[string]time.Duration
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemctl",
			Name:      "operations_total",
			Help:      "Schematic operations by outcome.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "schemctl",
			Name:      "operation_duration_seconds",
			Help:      "Schematic operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
		results: make(map[string]map[string]int64),
		totals:  make(map[string]time.Duration),
	}
	p.registry.MustRegister(p.operations, p.durations)
	return p
}

func (p *Prometheus) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := ResultError
	if success {
		result = ResultSuccess
	}
	p.operations.WithLabelValues(operation, result).Inc()
	p.durations.WithLabelValues(operation).Observe(duration.Seconds())

	p.mu.Lock()
	if _, ok := p.results[operation]; !ok {
		p.results[operation] = make(map[string]int64, 2)
	}
	p.results[operation][result]++
	p.totals[operation] += duration
	p.mu.Unlock()
}

// Registry exposes the private registry, e.g. for tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Counter returns the prometheus counter for operation and result.
func (p *Prometheus) Counter(operation, result string) prometheus.Counter {
	return p.operations.WithLabelValues(operation, result)
}

// Handler serves the registry in the prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// OperationStats is one row of Snapshot.
type OperationStats struct {
	Operation string        `json:"operation" yaml:"operation"`
	Success   int64         `json:"success" yaml:"success"`
	Errors    int64         `json:"errors" yaml:"errors"`
	Total     time.Duration `json:"total_duration" yaml:"total_duration"`
}

// Snapshot returns per-operation totals sorted by operation name.
func (p *Prometheus) Snapshot() []OperationStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]OperationStats, 0, len(p.results))
	for op, counts := range p.results {
		out = append(out, OperationStats{
			Operation: op,
			Success:   counts[ResultSuccess],
			Errors:    counts[ResultError],
			Total:     p.totals[op],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}
