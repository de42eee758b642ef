// Package metrics registers the Prometheus collectors for the event
// pipeline and serves them over HTTP when an address is configured.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the pipeline feeds. A nil *Metrics is
// inert, so wiring can pass nil when the endpoint is disabled.
type Metrics struct {
	events       *prometheus.CounterVec
	discards     *prometheus.CounterVec
	duplicates   prometheus.Counter
	reconnects   *prometheus.CounterVec
	polls        prometheus.Counter
	pollFailures prometheus.Counter
	pollSkips    prometheus.Counter
	snapshots    prometheus.Counter
	noteDrops    prometheus.Counter
	noteExpiries prometheus.Counter
	notePending  prometheus.Gauge
	seriesPoints *prometheus.GaugeVec
	connected    *prometheus.GaugeVec
}

// New builds and registers the collectors. A nil registerer means the
// default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_events_total",
			Help: "Events accepted into the pipeline.",
		}, []string{"source", "kind"}),
		discards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_frames_discarded_total",
			Help: "Frames dropped before dispatch: junk, unknown type, oversize.",
		}, []string{"source"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_events_duplicate_total",
			Help: "Events suppressed by the dedup window.",
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdash_reconnects_total",
			Help: "Reconnect attempts by the push transports.",
		}, []string{"source"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_polls_total",
			Help: "Snapshot polls started.",
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_poll_failures_total",
			Help: "Snapshot polls that ended in error.",
		}),
		pollSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_poll_skips_total",
			Help: "Poll triggers skipped while a fetch was still running.",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_snapshot_applies_total",
			Help: "Snapshots applied to the store.",
		}),
		noteDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_notifications_dropped_total",
			Help: "Notifications dropped at the queue bound.",
		}),
		noteExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsdash_notifications_expired_total",
			Help: "Notifications expired by their TTL.",
		}),
		notePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opsdash_notifications_pending",
			Help: "Notifications currently in the feed.",
		}),
		seriesPoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opsdash_series_points",
			Help: "Points currently held per chart series.",
		}, []string{"series"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opsdash_transport_connected",
			Help: "1 while the named transport is connected.",
		}, []string{"source"}),
	}
	reg.MustRegister(
		m.events, m.discards, m.duplicates, m.reconnects,
		m.polls, m.pollFailures, m.pollSkips, m.snapshots,
		m.noteDrops, m.noteExpiries, m.notePending,
		m.seriesPoints, m.connected,
	)
	return m
}

// EventReceived counts one accepted event.
func (m *Metrics) EventReceived(source, kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(source, kind).Inc()
}

// FrameDiscarded counts one frame dropped before dispatch.
func (m *Metrics) FrameDiscarded(source string) {
	if m == nil {
		return
	}
	m.discards.WithLabelValues(source).Inc()
}

// DuplicateSuppressed counts one event dropped by the dedup window.
func (m *Metrics) DuplicateSuppressed() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// Reconnect counts one reconnect attempt for the named transport.
func (m *Metrics) Reconnect(source string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(source).Inc()
}

// PollStarted counts one snapshot poll.
func (m *Metrics) PollStarted() {
	if m == nil {
		return
	}
	m.polls.Inc()
}

// PollFailed counts one failed snapshot poll.
func (m *Metrics) PollFailed() {
	if m == nil {
		return
	}
	m.pollFailures.Inc()
}

// PollSkipped counts one poll trigger skipped while busy.
func (m *Metrics) PollSkipped() {
	if m == nil {
		return
	}
	m.pollSkips.Inc()
}

// SnapshotApplied counts one snapshot applied to the store.
func (m *Metrics) SnapshotApplied() {
	if m == nil {
		return
	}
	m.snapshots.Inc()
}

// NotificationDropped counts one entry dropped at the queue bound.
func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.noteDrops.Inc()
}

// NotificationExpired counts one entry expired by TTL.
func (m *Metrics) NotificationExpired() {
	if m == nil {
		return
	}
	m.noteExpiries.Inc()
}

// SetNotificationsPending records the current feed length.
func (m *Metrics) SetNotificationsPending(n int) {
	if m == nil {
		return
	}
	m.notePending.Set(float64(n))
}

// SetSeriesPoints records the current point count of one series.
func (m *Metrics) SetSeriesPoints(series string, n int) {
	if m == nil {
		return
	}
	m.seriesPoints.WithLabelValues(series).Set(float64(n))
}

// SetTransportConnected records whether the named transport is connected.
func (m *Metrics) SetTransportConnected(source string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1.0
	}
	m.connected.WithLabelValues(source).Set(v)
}

// Serve exposes /metrics and /healthz on addr in a background goroutine.
// The returned server is shut down by the caller.
func Serve(addr string, logf func(format string, args ...interface{})) *http.Server {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logf("Metrics: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logf("Metrics: server exited: %v", err)
		}
	}()
	return srv
}
