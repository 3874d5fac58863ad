// Package metrics tracks live call latency and outcomes for the router.
package metrics

import (
	"fmt"
	"sync"
	"time"
)

// CallMetrics is a snapshot of routed call activity.
type CallMetrics struct {
	TotalCalls      int       `json:"total_calls"`
	FailedCalls     int       `json:"failed_calls"`
	LastLatencyMs   float64   `json:"last_latency_ms"`
	AvgLatencyMs    float64   `json:"avg_latency_ms"`
	LastProviderURI string    `json:"last_provider_uri,omitempty"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
}

// SuccessRate returns the fraction of calls that succeeded (0-100).
func (m CallMetrics) SuccessRate() float64 {
	if m.TotalCalls == 0 {
		return 0
	}
	return float64(m.TotalCalls-m.FailedCalls) / float64(m.TotalCalls) * 100
}

// FormatLatencyDisplay returns a human-readable latency string (e.g. "12.4ms").
func (m CallMetrics) FormatLatencyDisplay() string {
	return fmt.Sprintf("%.1fms", m.LastLatencyMs)
}

// Recorder accumulates call metrics thread-safely.
type Recorder struct {
	mu           sync.Mutex
	current      CallMetrics
	totalLatency float64
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record notes one routed call's provider, latency, and outcome.
func (r *Recorder) Record(providerURI string, latency time.Duration, succeeded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms := float64(latency.Microseconds()) / 1000.0

	r.current.TotalCalls++
	if !succeeded {
		r.current.FailedCalls++
	}
	r.current.LastLatencyMs = ms
	r.totalLatency += ms
	r.current.AvgLatencyMs = r.totalLatency / float64(r.current.TotalCalls)
	r.current.LastProviderURI = providerURI
	r.current.LastUpdatedAt = time.Now()
}

// Snapshot returns a copy of the current metrics.
func (r *Recorder) Snapshot() CallMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
