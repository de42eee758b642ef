// Package store holds the assembled dashboard state: scalar totals, the
// health record, chart series and the notification feed. Full poll
// snapshots replace the scalar state wholesale; push events mutate it
// incrementally. One mutex serializes every update, so a View is always
// a consistent cut.
package store

import (
	"fmt"
	"sync"
	"time"

	"opsdash/clock"
	"opsdash/event"
	"opsdash/notify"
	"opsdash/series"

	"github.com/dustin/go-humanize"
)

// Display glyph names carried on notifications, matching the shop
// dashboard's icon set.
const (
	iconOrder    = "fa-shopping-cart"
	iconCustomer = "fa-user-plus"
	iconProduct  = "fa-cube"
	iconLowStock = "fa-exclamation-triangle"
	iconError    = "fa-times-circle"
	iconSync     = "fa-refresh"
)

// Names of the chart series fed by incremental events.
const (
	SeriesSales     = "sales"
	SeriesCustomers = "customers"
)

// Totals are the scalar summary counters shown on the dashboard cards.
type Totals struct {
	Orders        int     `json:"orders"`
	Sales         float64 `json:"sales"`
	AvgOrderValue float64 `json:"avg_order_value"`
	RevenueGrowth float64 `json:"revenue_growth"`
	Customers     int     `json:"customers"`
	NewCustomers  int     `json:"new_customers"`
	Products      int     `json:"products"`
	Errors        int     `json:"errors"`
}

// ProductSales is one row of the top-products table.
type ProductSales struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Revenue  float64 `json:"revenue"`
}

// Health mirrors the backend's system_health payload.
type Health struct {
	Status         string  `json:"status"`
	PendingJobs    int     `json:"pending_jobs"`
	FailedJobs     int     `json:"failed_jobs"`
	QueueDepth     int     `json:"queue_depth"`
	SyncLagSeconds float64 `json:"sync_lag_seconds"`
}

// SeriesPoint is the wire form of one chart sample.
type SeriesPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Snapshot is the full poll-derived dashboard state. It always supersedes
// the previous snapshot; scalar fields are never partially merged.
type Snapshot struct {
	Totals         Totals                   `json:"totals"`
	OrdersByStatus map[string]int           `json:"orders_by_status"`
	TopProducts    []ProductSales           `json:"top_products"`
	Health         Health                   `json:"health"`
	Series         map[string][]SeriesPoint `json:"series"`
	GeneratedAt    time.Time                `json:"generated_at"`
}

// Change names the reason a listener is being told about an update.
type Change string

const (
	ChangeSnapshot Change = "snapshot"
	ChangeEvent    Change = "event"
)

// View is a consistent copy of everything the dashboard renders, minus
// the series points (read those from Series()).
type View struct {
	Totals         Totals
	OrdersByStatus map[string]int
	TopProducts    []ProductSales
	Health         Health
	ProductUpdates int
	Busy           bool
	LastSync       time.Time
}

// Options configure a Store. Zero values fall back to the dashboard
// defaults: 20-point series, 10-entry notification feed with a 5 s TTL,
// low-stock threshold of 5 units.
type Options struct {
	SeriesWindow      int
	NotifyMax         int
	NotifyTTL         time.Duration
	LowStockThreshold int
	Clock             clock.Clock
	Logf              func(format string, args ...interface{})
}

// Store is the single owner of dashboard state. It starts busy and stays
// that way until the first snapshot lands; later polls and refreshes never
// flip the flag back.
type Store struct {
	clk      clock.Clock
	logf     func(format string, args ...interface{})
	lowStock int

	series *series.Buffer
	queue  *notify.Queue

	mu             sync.Mutex
	totals         Totals
	ordersByStatus map[string]int
	topProducts    []ProductSales
	health         Health
	productUpdates int
	lastSync       time.Time
	busy           bool
	listeners      []func(Change)
}

func New(opts Options) *Store {
	if opts.SeriesWindow <= 0 {
		opts.SeriesWindow = 20
	}
	if opts.NotifyMax <= 0 {
		opts.NotifyMax = 10
	}
	if opts.NotifyTTL == 0 {
		opts.NotifyTTL = 5 * time.Second
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = 5
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Store{
		clk:      clk,
		logf:     logf,
		lowStock: opts.LowStockThreshold,
		series:   series.New(opts.SeriesWindow),
		queue:    notify.New(opts.NotifyMax, opts.NotifyTTL, clk),
		busy:     true,
	}
}

// Series exposes the chart buffer for readers (UI, tests).
func (s *Store) Series() *series.Buffer { return s.series }

// Notifications exposes the feed for readers and dismissal.
func (s *Store) Notifications() *notify.Queue { return s.queue }

// Subscribe registers a change listener. The listener set is fixed at
// wiring time; there is no unsubscribe.
func (s *Store) Subscribe(fn func(Change)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Busy reports whether the initial snapshot is still outstanding.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// ApplySnapshot replaces the scalar state and series content wholesale.
// When a later snapshot shows more orders than the running count, one
// catch-up notification stands in for the individual events the push
// channel missed.
func (s *Store) ApplySnapshot(snap Snapshot) {
	s.mu.Lock()
	first := s.busy
	gained := snap.Totals.Orders - s.totals.Orders

	s.totals = snap.Totals
	s.ordersByStatus = copyCounts(snap.OrdersByStatus)
	s.topProducts = append([]ProductSales(nil), snap.TopProducts...)
	s.health = snap.Health
	s.lastSync = s.clk.Now()
	s.busy = false
	for name, pts := range snap.Series {
		s.series.Replace(name, toPoints(pts))
	}
	s.mu.Unlock()

	if first {
		s.logf("Store: initial snapshot loaded (%d orders, %d customers, %d products)",
			snap.Totals.Orders, snap.Totals.Customers, snap.Totals.Products)
	} else if gained > 0 {
		msg := fmt.Sprintf("%d new orders since the last sync", gained)
		if gained == 1 {
			msg = "1 new order since the last sync"
		}
		s.queue.Push(notify.Notification{
			Severity: notify.SeverityInfo,
			Icon:     iconSync,
			Title:    "Orders caught up",
			Message:  msg,
		})
	}
	s.fanout(ChangeSnapshot)
}

// ApplyEvent folds one push event into the state. Events with no payload
// are ignored.
func (s *Store) ApplyEvent(ev event.Event) {
	at := ev.At
	if at.IsZero() {
		at = s.clk.Now()
	}

	var note notify.Notification
	var changed bool

	s.mu.Lock()
	switch p := ev.Payload.(type) {
	case event.OrderCreated:
		s.totals.Orders++
		s.totals.Sales += p.Total
		if s.totals.Orders > 0 {
			s.totals.AvgOrderValue = s.totals.Sales / float64(s.totals.Orders)
		}
		s.series.Append(SeriesSales, series.Point{Time: at, Value: p.Total})
		msg := fmt.Sprintf("%s for %s %s", p.Name, money(p.Total), p.Currency)
		if p.Customer != "" {
			msg += " (" + p.Customer + ")"
		}
		note = notify.Notification{Severity: notify.SeveritySuccess, Icon: iconOrder, Title: "New order", Message: msg}
		changed = true

	case event.CustomerSynced:
		s.totals.Customers++
		s.series.Append(SeriesCustomers, series.Point{Time: at, Value: float64(s.totals.Customers)})
		msg := p.Name
		if p.Email != "" {
			msg += " <" + p.Email + ">"
		}
		note = notify.Notification{Severity: notify.SeverityInfo, Icon: iconCustomer, Title: "Customer synced", Message: msg}
		changed = true

	case event.ProductUpdated:
		s.productUpdates++
		if p.Inventory <= s.lowStock {
			msg := fmt.Sprintf("%s has %d units left", p.Title, p.Inventory)
			note = notify.Notification{Severity: notify.SeverityWarning, Icon: iconLowStock, Title: "Low stock", Message: msg}
		} else {
			msg := fmt.Sprintf("%s (%s)", p.Title, money(p.Price))
			note = notify.Notification{Severity: notify.SeverityInfo, Icon: iconProduct, Title: "Product updated", Message: msg}
		}
		changed = true

	case event.ErrorOccurred:
		s.totals.Errors++
		msg := p.Message
		if p.Origin != "" {
			msg = p.Origin + ": " + msg
		}
		if p.Code != "" {
			msg += " [" + p.Code + "]"
		}
		note = notify.Notification{Severity: notify.SeverityError, Icon: iconError, Title: "Backend error", Message: msg}
		changed = true

	case event.SystemHealth:
		s.health = Health{
			Status:         p.Status,
			PendingJobs:    p.PendingJobs,
			FailedJobs:     p.FailedJobs,
			QueueDepth:     p.QueueDepth,
			SyncLagSeconds: p.SyncLagSeconds,
		}
		changed = true
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	if note.Title != "" {
		s.queue.Push(note)
	}
	s.fanout(ChangeEvent)
}

// PollFailed surfaces one failed background fetch as an error
// notification. Polling itself carries on regardless.
func (s *Store) PollFailed(err error) {
	s.queue.Push(notify.Notification{
		Severity: notify.SeverityError,
		Icon:     iconSync,
		Title:    "Dashboard sync failed",
		Message:  err.Error(),
	})
	s.fanout(ChangeEvent)
}

// View returns a consistent copy of the renderable state.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Totals:         s.totals,
		OrdersByStatus: copyCounts(s.ordersByStatus),
		TopProducts:    append([]ProductSales(nil), s.topProducts...),
		Health:         s.health,
		ProductUpdates: s.productUpdates,
		Busy:           s.busy,
		LastSync:       s.lastSync,
	}
}

// Close tears down the notification feed and its timers.
func (s *Store) Close() {
	s.queue.Close()
}

func (s *Store) fanout(c Change) {
	s.mu.Lock()
	listeners := append([]func(Change)(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}
}

func copyCounts(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func toPoints(in []SeriesPoint) []series.Point {
	out := make([]series.Point, len(in))
	for i, p := range in {
		out[i] = series.Point{Time: p.Time, Value: p.Value}
	}
	return out
}

func money(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}
