// internal/utils/metrics.go
package utils

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector keeps in-process counters, gauges and histograms.
type MetricsCollector struct {
	counters   map[string]*int64
	gauges     map[string]*int64
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Histogram tracks count, sum, min and max of observed values.
type Histogram struct {
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

// HistogramSnapshot is a point-in-time copy of a Histogram.
type HistogramSnapshot struct {
	Count int64 `json:"count"`
	Sum   int64 `json:"sum"`
	Min   int64 `json:"min"`
	Max   int64 `json:"max"`
}

// MetricsSnapshot is what /api/metrics returns.
type MetricsSnapshot struct {
	Counters   map[string]int64             `json:"counters"`
	Gauges     map[string]int64             `json:"gauges"`
	Histograms map[string]HistogramSnapshot `json:"histograms"`
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// NewMetricsCollector returns an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*int64),
		gauges:     make(map[string]*int64),
		histograms: make(map[string]*Histogram),
	}
}

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsCollector()
	})
	return globalMetrics
}

// slot returns the value cell for name, creating it under the write lock
// only on first use.
func (m *MetricsCollector) slot(set map[string]*int64, name string) *int64 {
	m.mu.RLock()
	v, ok := set[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = set[name]; !ok {
		v = new(int64)
		set[name] = v
	}
	return v
}

// IncrementCounter increments a counter by one
func (m *MetricsCollector) IncrementCounter(name string) {
	atomic.AddInt64(m.slot(m.counters, name), 1)
}

// AddCounter adds value to a counter
func (m *MetricsCollector) AddCounter(name string, value int64) {
	atomic.AddInt64(m.slot(m.counters, name), value)
}

// GetCounterValue returns the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	v, ok := m.counters[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v)
}

// SetGauge sets a gauge
func (m *MetricsCollector) SetGauge(name string, value int64) {
	atomic.StoreInt64(m.slot(m.gauges, name), value)
}

// IncGauge increments a gauge
func (m *MetricsCollector) IncGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), 1)
}

// DecGauge decrements a gauge
func (m *MetricsCollector) DecGauge(name string) {
	atomic.AddInt64(m.slot(m.gauges, name), -1)
}

// GetGauge returns the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	v, ok := m.gauges[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		if h, ok = m.histograms[name]; !ok {
			h = &Histogram{min: value, max: value}
			m.histograms[name] = h
		}
		m.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.count++
	h.sum += value
	if value < h.min {
		h.min = value
	}
	if value > h.max {
		h.max = value
	}
}

// GetHistogram returns a copy of a histogram and whether it exists.
func (m *MetricsCollector) GetHistogram(name string) (HistogramSnapshot, bool) {
	m.mu.RLock()
	h, ok := m.histograms[name]
	m.mu.RUnlock()
	if !ok {
		return HistogramSnapshot{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return HistogramSnapshot{Count: h.count, Sum: h.sum, Min: h.min, Max: h.max}, true
}

// Snapshot returns a copy of all metrics
func (m *MetricsCollector) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		Counters:   make(map[string]int64, len(m.counters)),
		Gauges:     make(map[string]int64, len(m.gauges)),
		Histograms: make(map[string]HistogramSnapshot, len(m.histograms)),
	}
	for name, v := range m.counters {
		snap.Counters[name] = atomic.LoadInt64(v)
	}
	for name, v := range m.gauges {
		snap.Gauges[name] = atomic.LoadInt64(v)
	}
	for name, h := range m.histograms {
		h.mu.Lock()
		snap.Histograms[name] = HistogramSnapshot{Count: h.count, Sum: h.sum, Min: h.min, Max: h.max}
		h.mu.Unlock()
	}
	return snap
}

// StudioMetrics records the screenplay backend's domain events on top of a
// MetricsCollector.
type StudioMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewStudioMetrics wires StudioMetrics to the global collector and logger.
func NewStudioMetrics() *StudioMetrics {
	return &StudioMetrics{
		metrics: GetMetricsCollector(),
		logger:  GetLogger().Named("metrics"),
	}
}

// Collector exposes the underlying collector.
func (sm *StudioMetrics) Collector() *MetricsCollector {
	return sm.metrics
}

// RecordAPIRequest records one served HTTP request
func (sm *StudioMetrics) RecordAPIRequest(route, method string, statusCode int, duration time.Duration) {
	sm.metrics.IncrementCounter("api_requests_total")
	sm.metrics.IncrementCounter("api_requests_" + method + "_" + route)
	sm.metrics.IncrementCounter("api_responses_" + strconv.Itoa(statusCode/100) + "xx")
	sm.metrics.RecordHistogram("api_response_time_ms", duration.Milliseconds())

	sm.logger.Debug("API request completed", map[string]interface{}{
		"route":    route,
		"method":   method,
		"status":   statusCode,
		"duration": duration.Milliseconds(),
	})
}

// RecordTransition counts a lifecycle action, split by whether it applied.
func (sm *StudioMetrics) RecordTransition(action string, applied bool) {
	sm.metrics.IncrementCounter("lifecycle_actions_total")
	if applied {
		sm.metrics.IncrementCounter("lifecycle_applied_" + action)
		return
	}
	sm.metrics.IncrementCounter("lifecycle_rejected_" + action)
}

// RecordPagination records the size of one pagination pass.
func (sm *StudioMetrics) RecordPagination(elements, pages int, duration time.Duration) {
	sm.metrics.IncrementCounter("pagination_runs_total")
	sm.metrics.RecordHistogram("pagination_elements", int64(elements))
	sm.metrics.RecordHistogram("pagination_pages", int64(pages))
	sm.metrics.RecordHistogram("pagination_time_us", duration.Microseconds())
}

// SessionOpened / SessionClosed track the number of live sessions.
func (sm *StudioMetrics) SessionOpened() {
	sm.metrics.IncrementCounter("sessions_opened_total")
	sm.metrics.IncGauge("sessions_active")
}

func (sm *StudioMetrics) SessionClosed() {
	sm.metrics.DecGauge("sessions_active")
}

// RecordError records an error by type and component
func (sm *StudioMetrics) RecordError(errorType, component string) {
	sm.metrics.IncrementCounter("errors_total")
	sm.metrics.IncrementCounter("errors_" + errorType)
	sm.metrics.IncrementCounter("errors_" + component)

	sm.logger.Warn("Error recorded", map[string]interface{}{
		"type":      errorType,
		"component": component,
	})
}

// StartReporting logs a metrics summary every interval until ctx ends.
func (sm *StudioMetrics) StartReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := sm.metrics.Snapshot()
				sm.logger.Info("Periodic metrics report", map[string]interface{}{
					"requests":        snap.Counters["api_requests_total"],
					"actions":         snap.Counters["lifecycle_actions_total"],
					"pagination_runs": snap.Counters["pagination_runs_total"],
					"sessions_active": snap.Gauges["sessions_active"],
				})
			}
		}
	}()
}
