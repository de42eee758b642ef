package main

import (
	"fmt"
	"sync"
	"time"
)

// Cadence thresholds for the event feed. A single window above
// busyEventsPerMin flips the monitor to busy; it takes
// quietConsecutiveWindows evaluations below quietEventsPerMin to flip back.
const (
	rateWindowMinutes       = 10
	busyEventsPerMin        = 10.0
	quietEventsPerMin       = 2.0
	quietConsecutiveWindows = 3
	rateEvalPeriod          = 30 * time.Second
)

// eventRateMonitor keeps 1-minute arrival buckets over a sliding window and
// tracks a busy/quiet state with hysteresis. Transitions are logged; the
// current rate feeds the stats pane.
type eventRateMonitor struct {
	logf func(format string, args ...interface{})

	mu          sync.Mutex
	buckets     []rateBucket
	state       string
	quietStreak int

	stopOnce sync.Once
	stopCh   chan struct{}
}

type rateBucket struct {
	start time.Time
	count int
}

func newEventRateMonitor(logf func(format string, args ...interface{})) *eventRateMonitor {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &eventRateMonitor{
		logf:    logf,
		state:   "quiet",
		buckets: make([]rateBucket, rateWindowMinutes),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the periodic state evaluation.
func (m *eventRateMonitor) Start() {
	if m == nil {
		return
	}
	ticker := time.NewTicker(rateEvalPeriod)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.evaluate(time.Now().UTC())
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop ends the evaluation loop. Idempotent.
func (m *eventRateMonitor) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Increment records one event arrival in the current minute's bucket.
func (m *eventRateMonitor) Increment(now time.Time) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotateLocked(now)
	idx := m.bucketIndex(now)
	// A reused bucket gets a fresh start so the window math stays honest
	// as time advances.
	if m.buckets[idx].start.IsZero() || now.Sub(m.buckets[idx].start) >= time.Minute {
		m.buckets[idx].start = now.Truncate(time.Minute)
		m.buckets[idx].count = 0
	}
	m.buckets[idx].count++
}

func (m *eventRateMonitor) bucketIndex(t time.Time) int {
	return int(t.Unix()/60) % len(m.buckets)
}

func (m *eventRateMonitor) rotateLocked(now time.Time) {
	span := time.Duration(len(m.buckets)) * time.Minute
	for i := range m.buckets {
		if now.Sub(m.buckets[i].start) >= span {
			m.buckets[i].start = now.Truncate(time.Minute)
			m.buckets[i].count = 0
		}
	}
}

// evaluate recomputes the windowed rate and applies the state machine: busy
// trips on one hot evaluation, quiet needs a streak.
func (m *eventRateMonitor) evaluate(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rate := m.rateLocked(now)

	switch m.state {
	case "quiet":
		if rate > busyEventsPerMin {
			m.state = "busy"
			m.quietStreak = 0
			m.logf("Activity: busy (%.1f events/min)", rate)
		}
	case "busy":
		if rate < quietEventsPerMin {
			m.quietStreak++
			if m.quietStreak >= quietConsecutiveWindows {
				m.state = "quiet"
				m.quietStreak = 0
				m.logf("Activity: quiet (%.1f events/min)", rate)
			}
		} else {
			m.quietStreak = 0
		}
	}
}

func (m *eventRateMonitor) rateLocked(now time.Time) float64 {
	m.rotateLocked(now)
	var total int
	span := time.Duration(len(m.buckets)) * time.Minute
	for _, b := range m.buckets {
		if now.Sub(b.start) < span {
			total += b.count
		}
	}
	return float64(total) / float64(len(m.buckets))
}

// RateLine formats the current rate and state for the stats pane.
func (m *eventRateMonitor) RateLine(now time.Time) string {
	if m == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("Rate: %.1f events/min (%s)", m.rateLocked(now), m.state)
}
