// Package ui renders the operations dashboard in the terminal: totals
// cards, backend health, chart sparklines, the notification feed and a
// rolling activity stream, all fed from the state store through a frame
// scheduler that coalesces redraws.
package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"opsdash/config"
	"opsdash/event"
	"opsdash/store"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	accentTag   = "[#00d7ff]"
	accentReset = "[-]"

	feedMaxEntries = 100
	feedMaxText    = 512
	sparkWidth     = 40
)

var (
	uiBorderColor = tcell.ColorGray
	uiTitleColor  = tcell.ColorLightSkyBlue
	uiFocusColor  = tcell.ColorAqua
)

// Deps are the pipeline handles the dashboard renders from.
type Deps struct {
	Store   *store.Store
	Refresh func() bool
	OnQuit  func()
	Logf    func(format string, args ...interface{})
}

// Dashboard is the single-screen tview UI.
type Dashboard struct {
	app       *tview.Application
	scheduler *frameScheduler
	metrics   *Metrics
	feed      *Feed

	st      *store.Store
	refresh func() bool
	onQuit  func()
	logf    func(format string, args ...interface{})

	ready    chan struct{}
	stopOnce sync.Once

	totalsView   *tview.TextView
	healthView   *tview.TextView
	ordersView   *tview.TextView
	productsView *tview.TextView
	trendsView   *tview.TextView
	notesView    *tview.TextView
	activityView *tview.TextView
	statsView    *tview.TextView

	focus paneFocus

	statsMu    sync.Mutex
	statsLines []string

	feedScratch []Entry
	feedSeq     uint64
	trendsDrawn bool
}

// New constructs the dashboard, wires it to the store and starts the
// tview loop. Returns nil when the UI is disabled; every method is safe
// on a nil receiver.
func New(cfg config.UIConfig, deps Deps) *Dashboard {
	if !cfg.Enabled {
		return nil
	}
	logf := deps.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	app := tview.NewApplication()
	ready := make(chan struct{})
	var once sync.Once
	app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		once.Do(func() { close(ready) })
		return false
	})

	d := &Dashboard{
		app:     app,
		metrics: NewMetrics(),
		feed:    NewFeed(feedMaxEntries, feedMaxText, logf),
		st:      deps.Store,
		refresh: deps.Refresh,
		onQuit:  deps.OnQuit,
		logf:    logf,
		ready:   ready,
	}

	d.totalsView = newBoxedTextView("Today")
	d.healthView = newBoxedTextView("Backend")
	d.ordersView = newBoxedTextView("Orders by Status")
	d.productsView = newBoxedTextView("Top Products")
	d.trendsView = newBoxedTextView("Trends")
	d.notesView = newBoxedTextView("Notifications")
	d.notesView.SetScrollable(true)
	d.activityView = newBoxedTextView("Activity")
	d.activityView.SetScrollable(true)
	d.statsView = newBoxedTextView("Stats")

	d.focus = newPaneFocus(app,
		pane{d.notesView, "Notifications"},
		pane{d.activityView, "Activity"},
	)

	topRow := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(d.totalsView, 0, 1, false).
		AddItem(d.healthView, 0, 1, false)
	midRow := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(d.ordersView, 0, 1, false).
		AddItem(d.productsView, 0, 1, false)
	feedRow := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(d.notesView, 0, 1, false).
		AddItem(d.activityView, 0, 1, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(buildHeader(), 1, 0, false).
		AddItem(topRow, 9, 0, false).
		AddItem(midRow, 8, 0, false).
		AddItem(d.trendsView, 4, 0, false).
		AddItem(feedRow, 0, 1, false).
		AddItem(d.statsView, 6, 0, false).
		AddItem(buildFooter(), 1, 0, false)
	app.SetRoot(root, true)

	d.scheduler = newFrameScheduler(app, cfg.FrameRate, d.metrics.ObserveRender)
	d.scheduler.Start()

	d.installKeybindings()

	if d.st != nil {
		d.st.Subscribe(func(store.Change) {
			d.scheduler.Schedule("state", d.renderState)
		})
		d.st.Notifications().SetOnChange(func() {
			d.scheduler.Schedule("notes", d.renderNotes)
		})
	}
	d.scheduler.Schedule("state", d.renderState)
	d.scheduler.Schedule("notes", d.renderNotes)
	d.scheduler.Schedule("activity", d.renderActivity)

	go func() {
		if err := app.Run(); err != nil {
			logf("UI: tview error: %v", err)
		}
	}()

	return d
}

func (d *Dashboard) installKeybindings() {
	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if d.focus.handleScroll(event) {
			return nil
		}

		switch event.Key() {
		case tcell.KeyTab:
			d.focus.cycle(1)
			return nil
		case tcell.KeyBacktab:
			d.focus.cycle(-1)
			return nil
		case tcell.KeyCtrlC:
			d.quit()
			return nil
		}

		switch event.Rune() {
		case 'q', 'Q':
			d.quit()
			return nil
		case 'r', 'R':
			if d.refresh != nil && d.refresh() {
				d.metrics.RefreshKey()
			}
			return nil
		case 'x', 'X':
			d.dismissNewest()
			return nil
		}
		return event
	})
}

func (d *Dashboard) quit() {
	if d.onQuit != nil {
		d.onQuit()
		return
	}
	d.Stop()
}

func (d *Dashboard) dismissNewest() {
	if d.st == nil {
		return
	}
	notes := d.st.Notifications().List()
	if len(notes) == 0 {
		return
	}
	if d.st.Notifications().Dismiss(notes[0].ID) {
		d.metrics.DismissKey()
	}
}

// WaitReady blocks until the first frame has been drawn.
func (d *Dashboard) WaitReady() {
	if d == nil || d.ready == nil {
		return
	}
	<-d.ready
}

// Stop drains the frame scheduler and halts the tview loop. Idempotent.
func (d *Dashboard) Stop() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.scheduler.Stop()
		d.app.Stop()
	})
}

// SetStats replaces the stats pane content. The main loop pushes tracker
// and connection lines here on its stats cadence.
func (d *Dashboard) SetStats(lines []string) {
	if d == nil {
		return
	}
	d.statsMu.Lock()
	d.statsLines = append(d.statsLines[:0], lines...)
	d.statsMu.Unlock()
	d.scheduler.Schedule("stats", d.renderStats)
}

// AppendActivity adds one decoded event to the activity stream.
func (d *Dashboard) AppendActivity(ev event.Event) {
	if d == nil {
		return
	}
	d.feed.Append(activityEntry(ev))
	d.scheduler.Schedule("activity", d.renderActivity)
}

// Metrics exposes the UI counters for the stats loop.
func (d *Dashboard) Metrics() *Metrics {
	if d == nil {
		return nil
	}
	return d.metrics
}

func (d *Dashboard) renderState() {
	if d.st == nil {
		return
	}
	now := time.Now()
	v := d.st.View()
	setBoxText(d.totalsView, formatTotals(v))
	setBoxText(d.healthView, formatHealth(v, now))
	setBoxText(d.ordersView, formatOrdersByStatus(v.OrdersByStatus))
	setBoxText(d.productsView, formatTopProducts(v.TopProducts))
	d.renderTrends()
}

func (d *Dashboard) renderTrends() {
	buf := d.st.Series()
	names := buf.Names()
	if len(names) == 0 {
		setBoxText(d.trendsView, "(no data yet)")
		return
	}
	if len(buf.DrainDirty()) == 0 && d.trendsDrawn {
		return
	}
	d.trendsDrawn = true
	lines := make([]string, 0, len(names))
	for _, name := range names {
		points := buf.Read(name)
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}
		last := 0.0
		if len(values) > 0 {
			last = values[len(values)-1]
		}
		lines = append(lines, fmt.Sprintf("%-10s %s%s[-]  %.2f",
			name, accentTag, Sparkline(values, sparkWidth), last))
	}
	setBoxText(d.trendsView, strings.Join(lines, "\n"))
}

func (d *Dashboard) renderNotes() {
	if d.st == nil {
		return
	}
	now := time.Now()
	notes := d.st.Notifications().List()
	if len(notes) == 0 {
		setBoxText(d.notesView, "(none)")
		return
	}
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		lines = append(lines, formatNotification(n, now))
	}
	setBoxText(d.notesView, strings.Join(lines, "\n"))
}

func (d *Dashboard) renderActivity() {
	entries, seq := d.feed.Snapshot(d.feedScratch)
	d.feedScratch = entries
	if seq == d.feedSeq {
		return
	}
	d.feedSeq = seq
	setBoxText(d.activityView, formatFeed(entries))
}

func (d *Dashboard) renderStats() {
	d.statsMu.Lock()
	lines := append([]string(nil), d.statsLines...)
	d.statsMu.Unlock()
	setBoxText(d.statsView, strings.Join(lines, "\n"))
}

func newBoxedTextView(title string) *tview.TextView {
	tv := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	tv.SetBorder(true)
	if title != "" {
		tv.SetTitle(accentText(title)).SetTitleAlign(tview.AlignLeft)
	}
	tv.SetBorderColor(uiBorderColor)
	tv.SetTitleColor(uiTitleColor)
	return tv
}

func buildHeader() *tview.TextView {
	return tview.NewTextView().SetDynamicColors(true).SetText(
		accentText("opsdash") + " [gray]shop operations dashboard[-]",
	)
}

func buildFooter() *tview.TextView {
	return tview.NewTextView().SetDynamicColors(true).SetText(
		accentText("R") + "efresh  " + accentText("X") + " Dismiss  Tab Panes  ↑/↓ Scroll  [Q]Quit",
	)
}

func setBoxText(tv *tview.TextView, text string) {
	if tv == nil {
		return
	}
	tv.SetText(padLines(text))
}

func padLines(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line == "" {
			continue
		}
		lines[i] = " " + line
	}
	return strings.Join(lines, "\n")
}

func accentText(text string) string {
	if text == "" {
		return ""
	}
	return accentTag + text + accentReset
}
