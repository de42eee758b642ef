// Command mockbackend emulates the shop backend the dashboard talks to. It
// serves snapshot JSON with conditional-request validators and streams
// scripted events over a websocket, so the dashboard can be developed and
// load-tested without a live shop. Events mutate the same simulated state
// the snapshot endpoint serializes, keeping both ingest paths consistent.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"opsdash/event"
	"opsdash/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/zeebo/xxh3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	rate := flag.Duration("rate", 2*time.Second, "delay between streamed events")
	junk := flag.Float64("junk", 0, "fraction of deliberately malformed frames (0-1)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "simulation seed")
	flag.Parse()

	srv := newServer(newShop(*seed), *rate, *junk, log.Printf)
	log.Printf("Mock backend listening on %s (snapshot: /api/dashboard, feed: /ws)", *addr)
	if err := http.ListenAndServe(*addr, srv.routes()); err != nil {
		fmt.Fprintf(os.Stderr, "mockbackend: %v\n", err)
		os.Exit(1)
	}
}

type server struct {
	shop     *shop
	rate     time.Duration
	junk     float64
	logf     func(format string, args ...interface{})
	upgrader websocket.Upgrader
}

func newServer(sh *shop, rate time.Duration, junk float64, logf func(format string, args ...interface{})) *server {
	if rate <= 0 {
		rate = 2 * time.Second
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &server{shop: sh, rate: rate, junk: junk, logf: logf}
}

func (s *server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/api/dashboard", s.handleSnapshot)
	r.Get("/ws", s.handleFeed)
	return r
}

// handleSnapshot serves the current simulated state. The ETag is a hash of
// the body, so pollers issuing conditional requests get a 304 whenever
// nothing moved between polls.
func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(s.shop.snapshot(time.Now().UTC()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	etag := fmt.Sprintf("%q", fmt.Sprintf("%016x", xxh3.Hash(body)))
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// handleFeed upgrades the connection and streams one frame per tick until
// the client goes away.
func (s *server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("Feed: upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	s.logf("Feed: client connected from %s", r.RemoteAddr)

	// The read loop exists only to notice the client closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.rate)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			s.logf("Feed: client %s disconnected", r.RemoteAddr)
			return
		case <-ticker.C:
			frame, err := s.nextFrame(time.Now().UTC())
			if err != nil {
				s.logf("Feed: frame build failed: %v", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logf("Feed: write to %s failed: %v", r.RemoteAddr, err)
				return
			}
		}
	}
}

// nextFrame returns the next scripted frame. With -junk set, a fraction of
// frames is deliberately broken so client discard paths see traffic too.
func (s *server) nextFrame(now time.Time) ([]byte, error) {
	if s.junk > 0 && s.shop.chance(s.junk) {
		return junkFrame(s.shop.roll(3)), nil
	}
	return s.shop.step(now)
}

func junkFrame(variant int) []byte {
	switch variant {
	case 0:
		// Near-miss type name, one edit away from a real one.
		return []byte(`{"type":"order_create","payload":{"id":1}}`)
	case 1:
		return []byte(`{"type":"system_health"}`)
	default:
		return []byte(`{"type":`)
	}
}

var (
	customerPool = []string{
		"Ada Fournier", "Bram Dekker", "Carla Reyes", "Dmitri Volkov",
		"Elena Rossi", "Farid Haddad", "Greta Lindqvist", "Hiro Tanaka",
	}
	productPool = []string{
		"Desk Lamp Walnut", "Ceramic Mug 350ml", "Linen Tote", "Steel Bottle 1L",
		"Notebook A5 Dot", "Wool Throw", "Bamboo Tray", "Glass Carafe",
	}
	errorPool = []struct{ code, message string }{
		{"E_TIMEOUT", "inventory sync timed out after 30s"},
		{"E_RATELIMIT", "shop API rate limit reached"},
		{"E_WEBHOOK", "webhook delivery failed (502 from upstream)"},
	}
)

// shop is the simulated backend. Every emitted event mutates it, so the
// snapshot endpoint and the event feed never contradict each other.
type shop struct {
	mu       sync.Mutex
	rng      *rand.Rand
	seq      int64
	totals   store.Totals
	byStatus map[string]int
	products []store.ProductSales
	health   store.Health
	sales    []store.SeriesPoint
	buyers   []store.SeriesPoint
}

func newShop(seed int64) *shop {
	sh := &shop{
		rng: rand.New(rand.NewSource(seed)),
		byStatus: map[string]int{
			"processing": 4,
			"shipped":    11,
			"delivered":  38,
		},
		health: store.Health{Status: "ok", QueueDepth: 3},
	}
	sh.totals = store.Totals{
		Orders:    53,
		Sales:     4180.50,
		Customers: 31,
		Products:  len(productPool),
	}
	sh.totals.AvgOrderValue = sh.totals.Sales / float64(sh.totals.Orders)
	for _, name := range productPool {
		sh.products = append(sh.products, store.ProductSales{
			Name:     name,
			Quantity: 1 + sh.rng.Intn(40),
			Revenue:  float64(20 + sh.rng.Intn(900)),
		})
	}
	return sh
}

func (s *shop) chance(p float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < p
}

func (s *shop) roll(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// step advances the simulation by one event and returns its wire frame.
// Orders dominate, errors stay rare.
func (s *shop) step(now time.Time) ([]byte, error) {
	s.mu.Lock()
	var p event.Payload
	switch roll := s.rng.Intn(100); {
	case roll < 50:
		p = s.orderLocked(now)
	case roll < 75:
		p = s.productLocked()
	case roll < 90:
		p = s.customerLocked(now)
	case roll < 98:
		p = s.healthLocked()
	default:
		p = s.errorLocked()
	}
	s.mu.Unlock()
	return event.EncodeFrame(p)
}

func (s *shop) orderLocked(now time.Time) event.Payload {
	s.seq++
	total := math.Round((25+s.rng.Float64()*350)*100) / 100
	s.totals.Orders++
	s.totals.Sales += total
	s.totals.AvgOrderValue = s.totals.Sales / float64(s.totals.Orders)
	s.byStatus["processing"]++
	s.sales = appendPoint(s.sales, now, total)
	return event.OrderCreated{
		ID:       s.seq,
		Name:     fmt.Sprintf("SO%05d", 1000+s.seq),
		Total:    total,
		Currency: "EUR",
		Customer: customerPool[s.rng.Intn(len(customerPool))],
	}
}

func (s *shop) productLocked() event.Payload {
	s.seq++
	i := s.rng.Intn(len(s.products))
	inventory := s.rng.Intn(40)
	price := math.Round((10+s.rng.Float64()*120)*100) / 100
	s.products[i].Quantity += s.rng.Intn(3)
	s.products[i].Revenue += price
	return event.ProductUpdated{
		ID:        s.seq,
		Title:     s.products[i].Name,
		Price:     price,
		Inventory: inventory,
	}
}

func (s *shop) customerLocked(now time.Time) event.Payload {
	s.seq++
	s.totals.Customers++
	s.totals.NewCustomers++
	s.buyers = appendPoint(s.buyers, now, float64(s.totals.Customers))
	name := customerPool[s.rng.Intn(len(customerPool))]
	return event.CustomerSynced{
		ID:    s.seq,
		Name:  name,
		Email: fmt.Sprintf("customer%d@example.com", s.seq),
	}
}

func (s *shop) healthLocked() event.Payload {
	s.health.QueueDepth = s.rng.Intn(25)
	s.health.PendingJobs = s.rng.Intn(8)
	s.health.SyncLagSeconds = math.Round(s.rng.Float64()*90*10) / 10
	s.health.Status = "ok"
	if s.health.QueueDepth > 18 {
		s.health.Status = "degraded"
	}
	return event.SystemHealth{
		Status:         s.health.Status,
		PendingJobs:    s.health.PendingJobs,
		FailedJobs:     s.health.FailedJobs,
		QueueDepth:     s.health.QueueDepth,
		SyncLagSeconds: s.health.SyncLagSeconds,
	}
}

func (s *shop) errorLocked() event.Payload {
	s.totals.Errors++
	s.health.FailedJobs++
	e := errorPool[s.rng.Intn(len(errorPool))]
	return event.ErrorOccurred{Origin: "sync", Code: e.code, Message: e.message}
}

// snapshot copies the state into the wire form the poll endpoint serves.
func (s *shop) snapshot(now time.Time) store.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStatus := make(map[string]int, len(s.byStatus))
	for k, v := range s.byStatus {
		byStatus[k] = v
	}
	return store.Snapshot{
		Totals:         s.totals,
		OrdersByStatus: byStatus,
		TopProducts:    append([]store.ProductSales(nil), s.products...),
		Health:         s.health,
		Series: map[string][]store.SeriesPoint{
			store.SeriesSales:     append([]store.SeriesPoint(nil), s.sales...),
			store.SeriesCustomers: append([]store.SeriesPoint(nil), s.buyers...),
		},
		GeneratedAt: now,
	}
}

func appendPoint(pts []store.SeriesPoint, now time.Time, v float64) []store.SeriesPoint {
	pts = append(pts, store.SeriesPoint{Time: now, Value: v})
	if len(pts) > 20 {
		pts = pts[len(pts)-20:]
	}
	return pts
}
