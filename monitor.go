package datagate

import (
	"sync"
	"time"
)

// TimingStats summarises recorded durations.
type TimingStats struct {
	Count           int64         `json:"count"`
	Succeeded       int64         `json:"succeeded"`
	Failed          int64         `json:"failed"`
	AverageDuration time.Duration `json:"average_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	LastReset       time.Time     `json:"last_reset"`
}

// FailureRate returns failed/count, zero when nothing was recorded.
func (s TimingStats) FailureRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Count)
}

// durationMonitor accumulates durations and outcomes.
type durationMonitor struct {
	mu        sync.Mutex
	count     int64
	succeeded int64
	failed    int64
	total     time.Duration
	max       time.Duration
	min       time.Duration
	lastReset time.Time
}

func newDurationMonitor() *durationMonitor {
	return &durationMonitor{lastReset: time.Now()}
}

func (m *durationMonitor) record(d time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == 0 || d < m.min {
		m.min = d
	}
	if d > m.max {
		m.max = d
	}
	m.count++
	m.total += d
	if success {
		m.succeeded++
	} else {
		m.failed++
	}
}

func (m *durationMonitor) stats() TimingStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := TimingStats{
		Count:       m.count,
		Succeeded:   m.succeeded,
		Failed:      m.failed,
		MaxDuration: m.max,
		MinDuration: m.min,
		LastReset:   m.lastReset,
	}
	if m.count > 0 {
		s.AverageDuration = m.total / time.Duration(m.count)
	}
	return s
}

func (m *durationMonitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.count, m.succeeded, m.failed = 0, 0, 0
	m.total, m.max, m.min = 0, 0, 0
	m.lastReset = time.Now()
}

// healthy applies the commit thresholds: under 5% failures and an average
// below maxAverage. Fewer than 10 samples are always healthy.
func (s TimingStats) healthy(maxAverage time.Duration) bool {
	if s.Count < 10 {
		return true
	}
	return s.FailureRate() <= 0.05 && s.AverageDuration <= maxAverage
}
