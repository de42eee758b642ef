// Program opsdash wires together the shop dashboard pipeline: push ingest
// (websocket, MQTT), snapshot polling, deduplication, the event router and
// state store, and the terminal UI.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"opsdash/config"
	"opsdash/dedup"
	"opsdash/event"
	"opsdash/metrics"
	"opsdash/poll"
	"opsdash/stats"
	"opsdash/store"
	"opsdash/transport"
	"opsdash/ui"

	"golang.org/x/term"
)

const (
	defaultConfigPath = "config.yaml"
	envConfigPath     = "OPSDASH_CONFIG"

	statsInterval  = 10 * time.Second
	fileStatsTicks = 6 // one file-only stats line per minute
)

// Version is stamped by the build.
var Version = "dev"

func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func loadDashboardConfig() (*config.Config, string, error) {
	candidates := make([]string, 0, 2)
	if envPath := strings.TrimSpace(os.Getenv(envConfigPath)); envPath != "" {
		candidates = append(candidates, envPath)
	}
	candidates = append(candidates, defaultConfigPath)

	var lastErr error
	for _, path := range candidates {
		cfg, err := config.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				lastErr = err
				continue
			}
			return nil, path, err
		}
		return cfg, path, nil
	}
	return nil, "", fmt.Errorf("unable to load config; tried %s (last error: %v)", strings.Join(candidates, ", "), lastErr)
}

// pollSink lands fetch outcomes in the store and keeps the tracker in
// step with them. Poll-side prometheus counters are bridged from the
// scheduler's totals in the stats loop instead, so 304 no-change polls
// count too.
type pollSink struct {
	store   *store.Store
	tracker *stats.Tracker
}

func (s pollSink) ApplySnapshot(snap store.Snapshot) {
	s.store.ApplySnapshot(snap)
	s.tracker.IncrementSnapshotApplies()
}

func (s pollSink) PollFailed(err error) {
	s.store.PollFailed(err)
}

func main() {
	cfg, configSource, err := loadDashboardConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	fanout, logErr := setupLogging(cfg.Logging, os.Stdout)
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()
	if logErr != nil {
		log.Printf("Warning: file logging disabled: %v", logErr)
	}
	log.Printf("Loaded configuration from %s", configSource)

	uiWanted := cfg.UI.Enabled
	if uiWanted && !isStdoutTTY() {
		log.Printf("UI disabled (requires an interactive console)")
		uiWanted = false
	}
	if !uiWanted {
		cfg.Print()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	tracker := stats.NewTracker()

	st := store.New(store.Options{
		SeriesWindow:      cfg.Series.Window,
		NotifyMax:         cfg.Notify.Max,
		NotifyTTL:         cfg.NotifyTTL(),
		LowStockThreshold: cfg.Alerts.LowStockThreshold,
		Logf:              log.Printf,
	})

	var deduper *dedup.Deduplicator
	if cfg.Dedup.Enabled && cfg.Dedup.WindowSeconds > 0 {
		deduper = dedup.New(time.Duration(cfg.Dedup.WindowSeconds) * time.Second)
		deduper.Start()
	}

	var poller *poll.Scheduler
	if cfg.Poll.Enabled {
		timeout := time.Duration(cfg.Poll.TimeoutSeconds) * time.Second
		poller = poll.NewScheduler(poll.Options{
			Interval: cfg.PollInterval(),
			Timeout:  timeout,
			Fetcher:  poll.NewHTTPFetcher(cfg.Poll.URL, timeout),
			Sink:     pollSink{store: st, tracker: tracker},
			Logf:     log.Printf,
		})
	}

	uiQuit := make(chan struct{}, 1)
	var dash *ui.Dashboard
	if uiWanted {
		dash = ui.New(cfg.UI, ui.Deps{
			Store: st,
			Refresh: func() bool {
				if poller == nil {
					return false
				}
				tracker.IncrementManualRefreshes()
				return poller.Refresh()
			},
			OnQuit: func() {
				select {
				case uiQuit <- struct{}{}:
				default:
				}
			},
			Logf: log.Printf,
		})
	}
	if dash != nil {
		dash.WaitReady()
		// The dashboard owns the terminal now; log lines go to the file only.
		fanout.SetConsoleSink(nil, false)
		dash.SetStats([]string{"Initializing..."})
	}

	log.Printf("%s v%s starting...", cfg.Server.Name, Version)

	apply := func(ev event.Event) {
		st.ApplyEvent(ev)
		dash.AppendActivity(ev)
	}
	router, err := event.NewRouter(map[event.Kind]event.Handler{
		event.KindOrderCreated:   apply,
		event.KindProductUpdated: apply,
		event.KindCustomerSynced: apply,
		event.KindErrorOccurred:  apply,
		event.KindSystemHealth:   apply,
	}, log.Printf)
	if err != nil {
		log.Fatalf("Error building event router: %v", err)
	}

	rateMon := newEventRateMonitor(log.Printf)
	rateMon.Start()

	// handleEvent is the single entry point for both push channels. Dedup
	// runs before any counter so a suppressed copy leaves no trace beyond
	// the duplicate tally.
	handleEvent := func(ev event.Event) {
		if deduper.Seen(ev) {
			tracker.IncrementDuplicates()
			m.DuplicateSuppressed()
			return
		}
		rateMon.Increment(time.Now().UTC())
		tracker.Record(string(ev.Source), ev.Kind().String())
		m.EventReceived(string(ev.Source), ev.Kind().String())
		router.Dispatch(ev)
	}

	var wsClient *transport.WSClient
	if cfg.Push.Enabled {
		retry := time.Duration(cfg.Push.RetryDelaySeconds) * time.Second
		var backoff transport.Backoff = transport.FixedBackoff{Interval: retry}
		if cfg.Push.Backoff == "exponential" {
			backoff = transport.ExponentialBackoff{
				Initial: retry,
				Max:     time.Duration(cfg.Push.MaxDelaySeconds) * time.Second,
			}
		}
		wsClient = transport.NewWSClient(transport.Options{
			URL:         cfg.Push.URL,
			Name:        "Push",
			Backoff:     backoff,
			ReadTimeout: time.Duration(cfg.Push.ReadTimeoutSeconds) * time.Second,
			Logf:        log.Printf,
			OnEvent:     handleEvent,
		})
		if err := wsClient.Connect(); err != nil {
			log.Printf("Warning: push channel not started: %v", err)
		}
	}

	var mqttSource *transport.MQTTSource
	if cfg.MQTT.Enabled {
		mqttSource = transport.NewMQTTSource(transport.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			Port:     cfg.MQTT.Port,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Logf:     log.Printf,
			OnEvent:  handleEvent,
		})
		if err := mqttSource.Connect(); err != nil {
			log.Printf("Warning: failed to connect to MQTT broker: %v", err)
		}
	}

	if poller != nil {
		poller.Start(ctx)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.Serve(cfg.Metrics.Addr, log.Printf)
	}

	var healthSources []connHealthSource
	if wsClient != nil {
		healthSources = append(healthSources, wsHealthSource("websocket", wsClient))
	}
	if mqttSource != nil {
		healthSources = append(healthSources, mqttHealthSource("mqtt", mqttSource))
	}
	if poller != nil {
		healthSources = append(healthSources, pollHealthSource("poller", poller))
	}
	startConnHealthMonitor(ctx, healthSources)

	go runStatsLoop(ctx, statsDeps{
		tracker: tracker,
		router:  router,
		store:   st,
		deduper: deduper,
		ws:      wsClient,
		mqtt:    mqttSource,
		poller:  poller,
		rate:    rateMon,
		metrics: m,
		dash:    dash,
		fanout:  fanout,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("Dashboard is running. Press Ctrl+C to stop.")
	if cfg.Push.Enabled {
		log.Printf("Receiving push events from %s (backoff=%s)...", cfg.Push.URL, cfg.Push.Backoff)
	}
	if cfg.MQTT.Enabled {
		log.Printf("Receiving broker events from %s:%d (topic: %s)...", cfg.MQTT.Broker, cfg.MQTT.Port, cfg.MQTT.Topic)
	}
	if cfg.Poll.Enabled {
		log.Printf("Polling snapshots from %s every %ds...", cfg.Poll.URL, cfg.Poll.IntervalSeconds)
	}
	if deduper != nil {
		log.Printf("Deduplication active: %d second window", cfg.Dedup.WindowSeconds)
	} else {
		log.Println("Deduplication bypassed; duplicate events are not filtered")
	}
	log.Println("Architecture: push + poll -> dedup -> router -> store -> UI")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case <-uiQuit:
		log.Println("Quit requested from dashboard")
	}
	log.Println("Shutting down gracefully...")

	cancel()
	if poller != nil {
		poller.Stop()
	}
	if wsClient != nil {
		wsClient.Close()
	}
	if mqttSource != nil {
		mqttSource.Stop()
	}
	if deduper != nil {
		deduper.Stop()
	}
	rateMon.Stop()
	if dash != nil {
		dash.Stop()
		fanout.SetConsoleSink(os.Stdout, true)
	}
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: metrics server shutdown: %v", err)
		}
		shutdownCancel()
	}
	st.Close()
	log.Println("Shutdown complete")
}

type statsDeps struct {
	tracker *stats.Tracker
	router  *event.Router
	store   *store.Store
	deduper *dedup.Deduplicator
	ws      *transport.WSClient
	mqtt    *transport.MQTTSource
	poller  *poll.Scheduler
	rate    *eventRateMonitor
	metrics *metrics.Metrics
	dash    *ui.Dashboard
	fanout  *logFanout
}

// bridgedTotals remembers how far each prometheus counter has been advanced
// toward a total tracked inside some component.
type bridgedTotals struct {
	wsDiscards   uint64
	mqttDiscards uint64
	reconnects   uint64
	polls        uint64
	pollFails    uint64
	pollSkips    uint64
	snapApplies  uint64
	noteDrops    uint64
	noteExpiries uint64
}

// runStatsLoop periodically snapshots every component: the lines feed the
// dashboard's stats pane (or the log when headless), and the same pass
// refreshes the prometheus gauges and bridged counters.
func runStatsLoop(ctx context.Context, d statsDeps) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	var bridged bridgedTotals
	var gcWin gcPauseWindow
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ticks++
			lines := collectStatsLines(d)
			lines = append(lines, runtimeStatsLine(&gcWin))
			d.syncMetrics(&bridged)

			if d.dash != nil {
				d.dash.SetStats(lines)
				if ticks%fileStatsTicks == 0 {
					d.fanout.WriteFileOnlyLine("Stats: "+strings.Join(lines, " | "), time.Now())
				}
			} else if ticks%fileStatsTicks == 0 {
				for _, line := range lines {
					log.Printf("Stats: %s", line)
				}
			}
		}
	}
}

func collectStatsLines(d statsDeps) []string {
	lines := d.tracker.SnapshotLines()
	lines = append(lines, fmt.Sprintf("Uptime: %s, %d snapshots, %d refreshes",
		d.tracker.GetUptime().Truncate(time.Second), d.tracker.SnapshotApplies(), d.tracker.ManualRefreshes()))

	dispatched, unmatched, panics := d.router.Counts()
	routerLine := fmt.Sprintf("Router: %d dispatched", dispatched)
	if unmatched > 0 {
		routerLine += fmt.Sprintf(", %d unmatched", unmatched)
	}
	if panics > 0 {
		routerLine += fmt.Sprintf(", %d panics", panics)
	}
	lines = append(lines, routerLine)

	if d.deduper != nil {
		checked, dups, cacheSize := d.deduper.Stats()
		lines = append(lines, fmt.Sprintf("Dedup: %d checked, %d suppressed, %d cached", checked, dups, cacheSize))
	}
	if d.ws != nil {
		st := d.ws.Status()
		lines = append(lines, fmt.Sprintf("Push: %s, %d received, %d discarded", st.State, st.Received, st.Discarded))
	}
	if d.mqtt != nil {
		state := "disconnected"
		if d.mqtt.Connected() {
			state = "connected"
		}
		received, discarded := d.mqtt.Counts()
		lines = append(lines, fmt.Sprintf("MQTT: %s, %d received, %d discarded", state, received, discarded))
	}
	if d.poller != nil {
		pst := d.poller.Status()
		lines = append(lines, fmt.Sprintf("Poll: %d polls, %d failures, %d skipped", pst.Polls, pst.Failures, pst.Skipped))
	}
	queue := d.store.Notifications()
	expired, dropped := queue.Counts()
	lines = append(lines, fmt.Sprintf("Notifications: %d pending, %d expired, %d dropped", queue.Len(), expired, dropped))
	if d.dash != nil {
		um := d.dash.Metrics()
		if snap := um.RenderSnapshot(); snap.N > 0 {
			uiLine := fmt.Sprintf("UI: render p50 %s, p99 %s (%d frames)", snap.P50, snap.P99, snap.N)
			if rk, dk := um.RefreshKeys(), um.DismissKeys(); rk > 0 || dk > 0 {
				uiLine += fmt.Sprintf(", keys %dR/%dX", rk, dk)
			}
			lines = append(lines, uiLine)
		}
	}
	if line := d.rate.RateLine(time.Now().UTC()); line != "" {
		lines = append(lines, line)
	}
	return lines
}

// syncMetrics pushes current gauge values and advances counters that are
// tallied inside components without a metrics dependency.
func (d statsDeps) syncMetrics(bridged *bridgedTotals) {
	m := d.metrics

	queue := d.store.Notifications()
	m.SetNotificationsPending(queue.Len())
	buf := d.store.Series()
	for _, name := range buf.Names() {
		m.SetSeriesPoints(name, buf.Len(name))
	}

	if d.ws != nil {
		st := d.ws.Status()
		m.SetTransportConnected("websocket", st.State == transport.StateConnected)
		bridgeCounter(&bridged.wsDiscards, st.Discarded, func() { m.FrameDiscarded("websocket") })
		bridgeCounter(&bridged.reconnects, st.Reconnects, func() { m.Reconnect("websocket") })
	}
	if d.mqtt != nil {
		m.SetTransportConnected("mqtt", d.mqtt.Connected())
		_, discarded := d.mqtt.Counts()
		bridgeCounter(&bridged.mqttDiscards, discarded, func() { m.FrameDiscarded("mqtt") })
	}
	if d.poller != nil {
		pst := d.poller.Status()
		bridgeCounter(&bridged.polls, pst.Polls, func() { m.PollStarted() })
		bridgeCounter(&bridged.pollFails, pst.Failures, func() { m.PollFailed() })
		bridgeCounter(&bridged.pollSkips, pst.Skipped, func() { m.PollSkipped() })
	}
	bridgeCounter(&bridged.snapApplies, d.tracker.SnapshotApplies(), func() { m.SnapshotApplied() })
	expired, dropped := queue.Counts()
	bridgeCounter(&bridged.noteExpiries, expired, func() { m.NotificationExpired() })
	bridgeCounter(&bridged.noteDrops, dropped, func() { m.NotificationDropped() })
}

func bridgeCounter(seen *uint64, total uint64, inc func()) {
	for *seen < total {
		inc()
		*seen++
	}
}
