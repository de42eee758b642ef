package main

import (
	"strings"
	"testing"
	"time"

	"opsdash/event"
	"opsdash/metrics"
	"opsdash/stats"
	"opsdash/store"

	"github.com/prometheus/client_golang/prometheus"
)

func newStatsFixture(t *testing.T) statsDeps {
	t.Helper()
	handler := func(event.Event) {}
	router, err := event.NewRouter(map[event.Kind]event.Handler{
		event.KindOrderCreated:   handler,
		event.KindProductUpdated: handler,
		event.KindCustomerSynced: handler,
		event.KindErrorOccurred:  handler,
		event.KindSystemHealth:   handler,
	}, nil)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	st := store.New(store.Options{Logf: func(string, ...interface{}) {}})
	t.Cleanup(st.Close)
	return statsDeps{
		tracker: stats.NewTracker(),
		router:  router,
		store:   st,
		rate:    newEventRateMonitor(nil),
	}
}

func TestCollectStatsLinesHeadlessMinimum(t *testing.T) {
	d := newStatsFixture(t)
	d.tracker.Record("push", "order_created")
	d.router.Dispatch(event.Event{
		Payload: event.OrderCreated{ID: 1},
		Source:  event.SourcePush,
		At:      time.Now(),
	})

	lines := collectStatsLines(d)
	joined := strings.Join(lines, "\n")

	for _, want := range []string{
		"Uptime: ",
		"Router: 1 dispatched",
		"Notifications: 0 pending, 0 expired, 0 dropped",
		"Rate: ",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected stats to contain %q, got:\n%s", want, joined)
		}
	}
	// No transports configured, so their lines stay out entirely.
	for _, absent := range []string{"Push: ", "MQTT: ", "Poll: ", "Dedup: "} {
		if strings.Contains(joined, absent) {
			t.Fatalf("unexpected %q line without a configured source:\n%s", absent, joined)
		}
	}
}

func TestSyncMetricsTracksNotificationTotals(t *testing.T) {
	d := newStatsFixture(t)
	d.metrics = metrics.New(prometheus.NewRegistry())

	queue := d.store.Notifications()
	for i := 0; i < 12; i++ {
		d.store.PollFailed(errTest{})
	}
	var bridged bridgedTotals
	d.syncMetrics(&bridged)

	_, dropped := queue.Counts()
	if dropped == 0 {
		t.Fatalf("expected overflow drops from 12 pushes into a 10-slot queue")
	}
	if bridged.noteDrops != dropped {
		t.Fatalf("expected bridge to reach %d drops, got %d", dropped, bridged.noteDrops)
	}

	// A second pass with no new drops must not advance the bridge again.
	before := bridged.noteDrops
	d.syncMetrics(&bridged)
	if bridged.noteDrops != before {
		t.Fatalf("expected bridge to stay at %d, got %d", before, bridged.noteDrops)
	}
}

func TestSyncMetricsWithoutCollectorsIsInert(t *testing.T) {
	d := newStatsFixture(t)
	var bridged bridgedTotals
	d.syncMetrics(&bridged)
	if bridged != (bridgedTotals{}) {
		t.Fatalf("expected untouched bridge totals, got %+v", bridged)
	}
}

type errTest struct{}

func (errTest) Error() string { return "synthetic failure" }
