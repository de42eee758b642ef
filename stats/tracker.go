// Package stats tracks per-source and per-kind event counters plus pipeline
// totals for display in the dashboard footer and periodic console output.
package stats

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker tracks event statistics by ingest source and event kind.
type Tracker struct {
	// counters live in sync.Map + atomic.Uint64 so per-event increments don't fight over a mutex
	kindCounts       sync.Map // string -> *atomic.Uint64
	sourceCounts     sync.Map // string -> *atomic.Uint64
	sourceKindCounts sync.Map // "source|kind" -> *atomic.Uint64
	start            atomic.Int64
	duplicates       atomic.Uint64
	snapshotApplies  atomic.Uint64
	manualRefreshes  atomic.Uint64
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// Record counts one event under its source, its kind, and the source/kind
// combination. Blank source or kind records nothing.
func (t *Tracker) Record(source, kind string) {
	source = strings.TrimSpace(source)
	kind = strings.TrimSpace(kind)
	if source == "" || kind == "" {
		return
	}
	incrementCounter(&t.kindCounts, kind)
	incrementCounter(&t.sourceCounts, source)
	incrementCounter(&t.sourceKindCounts, source+"|"+kind)
}

// GetKindCounts returns a copy of event counts by kind
func (t *Tracker) GetKindCounts() map[string]uint64 {
	counts := make(map[string]uint64)
	t.kindCounts.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

// GetSourceCounts returns a copy of event counts by ingest source
func (t *Tracker) GetSourceCounts() map[string]uint64 {
	counts := make(map[string]uint64)
	t.sourceCounts.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

// GetSourceKindCounts returns a copy of source/kind combination counts.
func (t *Tracker) GetSourceKindCounts() map[string]uint64 {
	counts := make(map[string]uint64)
	t.sourceKindCounts.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

// GetTotal returns the total event count across all sources (sum of sourceCounts)
func (t *Tracker) GetTotal() uint64 {
	var total uint64
	t.sourceCounts.Range(func(_, value any) bool {
		total += value.(*atomic.Uint64).Load()
		return true
	})
	return total
}

// GetUptime returns how long the tracker has been running
func (t *Tracker) GetUptime() time.Duration {
	start := t.start.Load()
	return time.Since(time.Unix(0, start))
}

// Reset resets all counters
func (t *Tracker) Reset() {
	t.kindCounts.Range(func(key, _ any) bool {
		t.kindCounts.Delete(key)
		return true
	})
	t.sourceCounts.Range(func(key, _ any) bool {
		t.sourceCounts.Delete(key)
		return true
	})
	t.sourceKindCounts.Range(func(key, _ any) bool {
		t.sourceKindCounts.Delete(key)
		return true
	})
	t.duplicates.Store(0)
	t.snapshotApplies.Store(0)
	t.manualRefreshes.Store(0)
	t.start.Store(time.Now().UnixNano())
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines() []string {
	lines := make([]string, 0, 2)
	lines = append(lines, formatMapCounts("Events by source", &t.sourceCounts))
	lines = append(lines, formatMapCounts("Events by kind", &t.kindCounts))
	return lines
}

// IncrementDuplicates increments the number of events suppressed as duplicates.
func (t *Tracker) IncrementDuplicates() {
	t.duplicates.Add(1)
}

// IncrementSnapshotApplies increments the number of snapshots applied.
func (t *Tracker) IncrementSnapshotApplies() {
	t.snapshotApplies.Add(1)
}

// IncrementManualRefreshes increments the number of operator-requested refreshes.
func (t *Tracker) IncrementManualRefreshes() {
	t.manualRefreshes.Add(1)
}

// Duplicates returns the cumulative number of events suppressed as duplicates.
func (t *Tracker) Duplicates() uint64 {
	return t.duplicates.Load()
}

// SnapshotApplies returns the cumulative number of snapshots applied.
func (t *Tracker) SnapshotApplies() uint64 {
	return t.snapshotApplies.Load()
}

// ManualRefreshes returns the cumulative number of operator-requested refreshes.
func (t *Tracker) ManualRefreshes() uint64 {
	return t.manualRefreshes.Load()
}

func formatMapCounts(label string, counts *sync.Map) string {
	var builder strings.Builder
	builder.WriteString(label)
	builder.WriteString(": ")
	first := true
	counts.Range(func(key, value any) bool {
		if !first {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s=%d", key.(string), value.(*atomic.Uint64).Load())
		first = false
		return true
	})
	if first {
		builder.WriteString("(none)")
	}
	return builder.String()
}

func incrementCounter(m *sync.Map, key string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(1)
		return
	}
	counter.Add(1)
}
