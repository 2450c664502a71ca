package service

import (
	"livesession/internal/model"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks admission and lifecycle counters for the process
type Metrics struct {
	joins          int64
	resumes        int64
	leaves         int64
	evictions      int64
	sessionsLive   int64
	sessionsEnded  int64
	persistFailure int64

	mu      sync.Mutex
	denials map[model.DenialReason]int64

	startTime time.Time
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		denials:   make(map[model.DenialReason]int64),
		startTime: time.Now(),
	}
}

func (m *Metrics) IncrementJoins() { atomic.AddInt64(&m.joins, 1) }
func (m *Metrics) IncrementResumes() { atomic.AddInt64(&m.resumes, 1) }
func (m *Metrics) IncrementLeaves() { atomic.AddInt64(&m.leaves, 1) }

func (m *Metrics) IncrementEvictions() {
	atomic.AddInt64(&m.evictions, 1)
}

func (m *Metrics) SessionWentLive() {
	atomic.AddInt64(&m.sessionsLive, 1)
}

func (m *Metrics) SessionEnded() {
	atomic.AddInt64(&m.sessionsEnded, 1)
}

func (m *Metrics) IncrementPersistFailures() {
	atomic.AddInt64(&m.persistFailure, 1)
}

func (m *Metrics) IncrementDenial(reason model.DenialReason) {
	m.mu.Lock()
	m.denials[reason]++
	m.mu.Unlock()
}

// MetricsSnapshot represents a point-in-time view of metrics
type MetricsSnapshot struct {
	Joins            int64                        `json:"joins"`
	Resumes          int64                        `json:"resumes"`
	Leaves           int64                        `json:"leaves"`
	PreviewEvictions int64                        `json:"preview_evictions"`
	SessionsWentLive int64                        `json:"sessions_went_live"`
	SessionsEnded    int64                        `json:"sessions_ended"`
	PersistFailures  int64                        `json:"persist_failures"`
	Denials          map[model.DenialReason]int64 `json:"denials"`
	ActivePreviews   int                          `json:"active_previews"`
	UptimeSeconds    int64                        `json:"uptime_seconds"`
	NumGoroutines    int                          `json:"num_goroutines"`
}

// Snapshot returns a point-in-time view of all metrics
func (m *Metrics) Snapshot(activePreviews int) MetricsSnapshot {
	m.mu.Lock()
	denials := make(map[model.DenialReason]int64, len(m.denials))
	for k, v := range m.denials {
		denials[k] = v
	}
	m.mu.Unlock()

	return MetricsSnapshot{
		Joins:            atomic.LoadInt64(&m.joins),
		Resumes:          atomic.LoadInt64(&m.resumes),
		Leaves:           atomic.LoadInt64(&m.leaves),
		PreviewEvictions: atomic.LoadInt64(&m.evictions),
		SessionsWentLive: atomic.LoadInt64(&m.sessionsLive),
		SessionsEnded:    atomic.LoadInt64(&m.sessionsEnded),
		PersistFailures:  atomic.LoadInt64(&m.persistFailure),
		Denials:          denials,
		ActivePreviews:   activePreviews,
		UptimeSeconds:    int64(time.Since(m.startTime).Seconds()),
		NumGoroutines:    runtime.NumGoroutine(),
	}
}
