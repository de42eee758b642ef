package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Advance fires due timers on the
// caller's goroutine in deadline order, so tests observe every effect
// before Advance returns.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

// NewFake returns a Fake positioned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clock: f, when: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	tk := &fakeTicker{
		clock:    f,
		ch:       make(chan time.Time, 1),
		interval: d,
		next:     f.now.Add(d),
	}
	f.tickers = append(f.tickers, tk)
	return tk
}

// Advance moves the clock forward by d. Timers and ticks due within the
// window fire in deadline order; timer callbacks run synchronously and may
// arm new timers, which also fire if they fall inside the window. Tick
// delivery matches time.Ticker: a slow receiver coalesces missed ticks.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		t := f.nextDueLocked(target)
		if t == nil {
			break
		}
		f.now = t.when
		f.removeTimerLocked(t)
		f.deliverTicksLocked()
		f.mu.Unlock()
		t.fn()
		f.mu.Lock()
	}
	f.now = target
	f.deliverTicksLocked()
	f.mu.Unlock()
}

// Pending returns the number of armed timers. Tickers are not counted.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	var due *fakeTimer
	for _, t := range f.timers {
		if t.when.After(target) {
			continue
		}
		if due == nil || t.when.Before(due.when) {
			due = t
		}
	}
	return due
}

func (f *Fake) removeTimerLocked(t *fakeTimer) {
	for i, cand := range f.timers {
		if cand == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return
		}
	}
}

func (f *Fake) deliverTicksLocked() {
	sort.SliceStable(f.tickers, func(i, j int) bool {
		return f.tickers[i].next.Before(f.tickers[j].next)
	})
	for _, tk := range f.tickers {
		if tk.stopped {
			continue
		}
		for !tk.next.After(f.now) {
			select {
			case tk.ch <- tk.next:
			default:
			}
			tk.next = tk.next.Add(tk.interval)
		}
	}
}

type fakeTimer struct {
	clock *Fake
	when  time.Time
	fn    func()
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	for i, cand := range t.clock.timers {
		if cand == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return true
		}
	}
	return false
}

type fakeTicker struct {
	clock    *Fake
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (tk *fakeTicker) C() <-chan time.Time { return tk.ch }

func (tk *fakeTicker) Stop() {
	tk.clock.mu.Lock()
	defer tk.clock.mu.Unlock()
	tk.stopped = true
}
