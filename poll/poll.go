// Package poll drives the background snapshot fetch loop. One fetch runs
// at a time; ticks and manual refreshes that land while a fetch is in
// flight are skipped, never queued. Failures surface as notifications
// through the sink and the loop carries on.
package poll

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"opsdash/clock"
	"opsdash/internal/ratelimit"
	"opsdash/store"
)

// Fetcher retrieves one dashboard snapshot. The second return mirrors a
// conditional GET: false with a nil error means nothing changed upstream.
type Fetcher interface {
	Fetch(ctx context.Context) (store.Snapshot, bool, error)
}

// Sink receives fetch outcomes. *store.Store satisfies it.
type Sink interface {
	ApplySnapshot(store.Snapshot)
	PollFailed(error)
}

// Status is a point-in-time picture of the loop for health displays.
type Status struct {
	Busy        bool
	LastSuccess time.Time
	LastError   string
	LastErrorAt time.Time
	Polls       uint64
	Failures    uint64
	Skipped     uint64
}

// Options configure a Scheduler. Fetcher and Sink are required.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Fetcher  Fetcher
	Sink     Sink
	Clock    clock.Clock
	Logf     func(format string, args ...interface{})
}

type Scheduler struct {
	opts    Options
	clk     clock.Clock
	logf    func(format string, args ...interface{})
	skipLog ratelimit.Counter

	refresh  chan struct{}
	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.Mutex
	busy      bool
	lastOK    time.Time
	lastErr   string
	lastErrAt time.Time

	polls    atomic.Uint64
	failures atomic.Uint64
	skipped  atomic.Uint64
}

func NewScheduler(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Scheduler{
		opts:     opts,
		clk:      clk,
		logf:     logf,
		skipLog:  ratelimit.NewCounter(30 * time.Second),
		refresh:  make(chan struct{}, 1),
		shutdown: make(chan struct{}),
	}
}

// Start fetches once immediately, then once per interval until the context
// is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	s.fetch(ctx, "startup")
	ticker := s.clk.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C():
			s.fetch(ctx, "interval")
		case <-s.refresh:
			s.fetch(ctx, "manual")
		}
	}
}

// Refresh requests an out-of-band fetch, as from the dashboard's refresh
// button. It reports whether the request was accepted; a fetch already in
// flight when the request is picked up still causes a skip.
func (s *Scheduler) Refresh() bool {
	if s == nil {
		return false
	}
	select {
	case s.refresh <- struct{}{}:
		return true
	default:
		return false
	}
}

// Stop ends the loop and waits for any in-flight fetch. Idempotent.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.shutdown) })
	s.wg.Wait()
}

// Status reports loop health and counters.
func (s *Scheduler) Status() Status {
	if s == nil {
		return Status{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Busy:        s.busy,
		LastSuccess: s.lastOK,
		LastError:   s.lastErr,
		LastErrorAt: s.lastErrAt,
		Polls:       s.polls.Load(),
		Failures:    s.failures.Load(),
		Skipped:     s.skipped.Load(),
	}
}

// fetch runs on the loop goroutine. It hands the actual request to a
// worker goroutine so that overlap shows up as busy, not as a queue.
func (s *Scheduler) fetch(ctx context.Context, trigger string) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		s.skipped.Add(1)
		if total, ok := s.skipLog.Inc(); ok {
			s.logf("Poll: %s fetch skipped, previous one still running (%d skipped total)", trigger, total)
		}
		return
	}
	s.busy = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.doFetch(ctx, trigger)
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()
}

func (s *Scheduler) doFetch(ctx context.Context, trigger string) {
	s.polls.Add(1)
	reqCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	snap, updated, err := s.opts.Fetcher.Fetch(reqCtx)
	now := s.clk.Now()
	if err != nil {
		s.failures.Add(1)
		s.mu.Lock()
		s.lastErr = err.Error()
		s.lastErrAt = now
		s.mu.Unlock()
		s.logf("Poll: %s fetch failed: %v", trigger, err)
		s.opts.Sink.PollFailed(err)
		return
	}
	s.mu.Lock()
	s.lastOK = now
	s.mu.Unlock()
	if !updated {
		return
	}
	s.opts.Sink.ApplySnapshot(snap)
}
