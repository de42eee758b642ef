package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.EventReceived("push", "order_created")
	m.EventReceived("push", "order_created")
	m.EventReceived("poll", "system_health")
	if got := testutil.ToFloat64(m.events.WithLabelValues("push", "order_created")); got != 2 {
		t.Fatalf("expected 2 push order_created events, got %f", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("poll", "system_health")); got != 1 {
		t.Fatalf("expected 1 poll system_health event, got %f", got)
	}

	m.FrameDiscarded("websocket")
	if got := testutil.ToFloat64(m.discards.WithLabelValues("websocket")); got != 1 {
		t.Fatalf("expected 1 websocket discard, got %f", got)
	}

	m.DuplicateSuppressed()
	m.DuplicateSuppressed()
	if got := testutil.ToFloat64(m.duplicates); got != 2 {
		t.Fatalf("expected 2 duplicates, got %f", got)
	}

	m.Reconnect("websocket")
	if got := testutil.ToFloat64(m.reconnects.WithLabelValues("websocket")); got != 1 {
		t.Fatalf("expected 1 reconnect, got %f", got)
	}

	m.PollStarted()
	m.PollStarted()
	m.PollFailed()
	m.PollSkipped()
	m.SnapshotApplied()
	if got := testutil.ToFloat64(m.polls); got != 2 {
		t.Fatalf("expected 2 polls, got %f", got)
	}
	if got := testutil.ToFloat64(m.pollFailures); got != 1 {
		t.Fatalf("expected 1 poll failure, got %f", got)
	}
	if got := testutil.ToFloat64(m.pollSkips); got != 1 {
		t.Fatalf("expected 1 poll skip, got %f", got)
	}
	if got := testutil.ToFloat64(m.snapshots); got != 1 {
		t.Fatalf("expected 1 snapshot apply, got %f", got)
	}

	m.NotificationDropped()
	m.NotificationExpired()
	if got := testutil.ToFloat64(m.noteDrops); got != 1 {
		t.Fatalf("expected 1 notification drop, got %f", got)
	}
	if got := testutil.ToFloat64(m.noteExpiries); got != 1 {
		t.Fatalf("expected 1 notification expiry, got %f", got)
	}
}

func TestGaugesTrack(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetNotificationsPending(7)
	if got := testutil.ToFloat64(m.notePending); got != 7 {
		t.Fatalf("expected 7 pending, got %f", got)
	}

	m.SetSeriesPoints("sales", 20)
	if got := testutil.ToFloat64(m.seriesPoints.WithLabelValues("sales")); got != 20 {
		t.Fatalf("expected 20 sales points, got %f", got)
	}

	m.SetTransportConnected("mqtt", true)
	if got := testutil.ToFloat64(m.connected.WithLabelValues("mqtt")); got != 1 {
		t.Fatalf("expected mqtt connected gauge 1, got %f", got)
	}
	m.SetTransportConnected("mqtt", false)
	if got := testutil.ToFloat64(m.connected.WithLabelValues("mqtt")); got != 0 {
		t.Fatalf("expected mqtt connected gauge 0, got %f", got)
	}
}

func TestCollectorsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.EventReceived("push", "order_created")
	if n := testutil.CollectAndCount(m.events); n != 1 {
		t.Fatalf("expected 1 event series collected, got %d", n)
	}
}

func TestNilMetricsIsInert(t *testing.T) {
	var m *Metrics
	m.EventReceived("push", "order_created")
	m.FrameDiscarded("websocket")
	m.DuplicateSuppressed()
	m.Reconnect("websocket")
	m.PollStarted()
	m.PollFailed()
	m.PollSkipped()
	m.SnapshotApplied()
	m.NotificationDropped()
	m.NotificationExpired()
	m.SetNotificationsPending(1)
	m.SetSeriesPoints("sales", 1)
	m.SetTransportConnected("mqtt", true)
}
