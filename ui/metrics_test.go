package ui

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentiles(t *testing.T) {
	tr := NewLatencyTracker(128)
	for i := 1; i <= 100; i++ {
		tr.Observe(time.Duration(i) * time.Millisecond)
	}
	snap := tr.Snapshot()
	if snap.N != 100 {
		t.Fatalf("expected 100 samples, got %d", snap.N)
	}
	if snap.P50 < 40*time.Millisecond || snap.P50 > 60*time.Millisecond {
		t.Fatalf("expected p50 near the median, got %s", snap.P50)
	}
	if snap.P99 < snap.P50 {
		t.Fatalf("expected p99 >= p50, got p50=%s p99=%s", snap.P50, snap.P99)
	}
}

func TestLatencyTrackerWrapsRing(t *testing.T) {
	tr := NewLatencyTracker(4)
	for i := 0; i < 10; i++ {
		tr.Observe(time.Millisecond)
	}
	if snap := tr.Snapshot(); snap.N != 4 {
		t.Fatalf("expected ring capped at 4 samples, got %d", snap.N)
	}
}

func TestMetricsKeystrokeCounters(t *testing.T) {
	m := NewMetrics()
	m.RefreshKey()
	m.RefreshKey()
	m.DismissKey()
	if got := m.RefreshKeys(); got != 2 {
		t.Fatalf("expected 2 refresh keys, got %d", got)
	}
	if got := m.DismissKeys(); got != 1 {
		t.Fatalf("expected 1 dismiss key, got %d", got)
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRender(time.Millisecond)
	m.RefreshKey()
	m.DismissKey()
	if m.RenderSnapshot().N != 0 || m.RefreshKeys() != 0 || m.DismissKeys() != 0 {
		t.Fatalf("expected zero values from nil metrics")
	}
}
