package observability

import (
	"sync"
	"time"
)

// MetricsClient records counters, gauges and timings emitted by the core.
type MetricsClient interface {
	IncrementCounter(name string, value float64)
	RecordGauge(name string, value float64, tags map[string]string)
	RecordTimer(name string, duration time.Duration)
}

// InMemoryMetrics accumulates metrics in process memory. It is the default
// client and doubles as the assertion point in tests.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]float64
	gauges   map[string]float64
	timers   map[string][]time.Duration
}

// NewMetricsClient creates an in-memory metrics client.
func NewMetricsClient() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
		timers:   make(map[string][]time.Duration),
	}
}

// IncrementCounter adds value to the named counter.
func (m *InMemoryMetrics) IncrementCounter(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

// RecordGauge sets the named gauge. Tags are accepted for interface
// parity with richer backends and ignored by the in-memory store.
func (m *InMemoryMetrics) RecordGauge(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

// RecordTimer appends a timing sample.
func (m *InMemoryMetrics) RecordTimer(name string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[name] = append(m.timers[name], duration)
}

// Counter returns the current value of a counter.
func (m *InMemoryMetrics) Counter(name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

// Gauge returns the current value of a gauge.
func (m *InMemoryMetrics) Gauge(name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[name]
}

// NoopMetrics discards all metrics.
type NoopMetrics struct{}

// NewNoopMetrics creates a metrics client that discards everything.
func NewNoopMetrics() MetricsClient { return &NoopMetrics{} }

func (NoopMetrics) IncrementCounter(name string, value float64)                    {}
func (NoopMetrics) RecordGauge(name string, value float64, tags map[string]string) {}
func (NoopMetrics) RecordTimer(name string, duration time.Duration)                {}
