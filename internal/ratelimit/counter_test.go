package ratelimit

import (
	"testing"
	"time"
)

func TestCounterAlwaysLogsWithoutInterval(t *testing.T) {
	c := NewCounter(0)
	for i := 1; i <= 3; i++ {
		total, ok := c.Inc()
		if !ok {
			t.Fatalf("expected logging allowed on call %d", i)
		}
		if total != uint64(i) {
			t.Fatalf("expected total %d, got %d", i, total)
		}
	}
}

func TestCounterThrottlesWithinInterval(t *testing.T) {
	c := NewCounter(time.Hour)
	if _, ok := c.Inc(); !ok {
		t.Fatalf("expected the first increment to log")
	}
	for i := 0; i < 5; i++ {
		if _, ok := c.Inc(); ok {
			t.Fatalf("expected increments within the interval to be throttled")
		}
	}
	if got := c.Total(); got != 6 {
		t.Fatalf("expected total 6, got %d", got)
	}
}

func TestCounterAllowsAfterInterval(t *testing.T) {
	c := NewCounter(10 * time.Millisecond)
	c.Inc()
	time.Sleep(25 * time.Millisecond)
	if _, ok := c.Inc(); !ok {
		t.Fatalf("expected logging allowed once the interval elapsed")
	}
}

func TestNilCounterIsInert(t *testing.T) {
	var c *Counter
	if total, ok := c.Inc(); total != 0 || ok {
		t.Fatalf("expected nil counter Inc to report 0/false, got %d/%v", total, ok)
	}
	if got := c.Total(); got != 0 {
		t.Fatalf("expected nil counter total 0, got %d", got)
	}
}
