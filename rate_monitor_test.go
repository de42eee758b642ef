package main

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestEventRateMonitorFlipsBusyOnBurst(t *testing.T) {
	var lines []string
	m := newEventRateMonitor(func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	// Busy threshold is an average over the whole window, so the burst has
	// to clear rateWindowMinutes * busyEventsPerMin arrivals.
	for i := 0; i < rateWindowMinutes*int(busyEventsPerMin)+10; i++ {
		m.Increment(now)
	}
	m.evaluate(now)

	if len(lines) != 1 || !strings.Contains(lines[0], "busy") {
		t.Fatalf("expected one busy transition, got %v", lines)
	}
	if got := m.RateLine(now); !strings.Contains(got, "(busy)") {
		t.Fatalf("unexpected rate line: %q", got)
	}
}

func TestEventRateMonitorNeedsQuietStreak(t *testing.T) {
	var lines []string
	m := newEventRateMonitor(func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < rateWindowMinutes*int(busyEventsPerMin)+10; i++ {
		m.Increment(now)
	}
	m.evaluate(now)
	if len(lines) != 1 {
		t.Fatalf("expected busy transition first, got %v", lines)
	}

	// Let the window age out, then evaluate repeatedly: the quiet flip
	// only happens after the full streak.
	quiet := now.Add(time.Duration(rateWindowMinutes+1) * time.Minute)
	for i := 0; i < quietConsecutiveWindows-1; i++ {
		m.evaluate(quiet)
		if len(lines) != 1 {
			t.Fatalf("expected no quiet transition after %d evaluations, got %v", i+1, lines)
		}
	}
	m.evaluate(quiet)
	if len(lines) != 2 || !strings.Contains(lines[1], "quiet") {
		t.Fatalf("expected quiet transition, got %v", lines)
	}
}

func TestEventRateMonitorRateLineQuietByDefault(t *testing.T) {
	m := newEventRateMonitor(nil)
	got := m.RateLine(time.Now().UTC())
	if !strings.Contains(got, "0.0 events/min (quiet)") {
		t.Fatalf("unexpected rate line: %q", got)
	}
}

func TestEventRateMonitorNilSafe(t *testing.T) {
	var m *eventRateMonitor
	m.Start()
	m.Increment(time.Now())
	m.Stop()
	if line := m.RateLine(time.Now()); line != "" {
		t.Fatalf("expected empty line from nil monitor, got %q", line)
	}
}
