// Package notify keeps the dashboard's transient notification feed: a
// small most-recent-first list whose entries expire on their own.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"opsdash/clock"
)

// Severity classifies a notification for display.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one feed entry. Icon carries the display glyph name the
// dashboard renders next to the title.
type Notification struct {
	ID        uint64
	Severity  Severity
	Title     string
	Message   string
	Icon      string
	CreatedAt time.Time
}

// Queue is a bounded most-recent-first notification list. Every entry gets
// one expiry timer; dismissal cancels it, expiry removes the entry, and a
// push beyond the bound drops the oldest entry along with its timer. All
// paths hold one mutex, so the bound is visible at every observable point.
type Queue struct {
	mu       sync.Mutex
	clk      clock.Clock
	max      int
	ttl      time.Duration
	entries  []Notification // newest first
	timers   map[uint64]clock.Timer
	nextID   uint64
	onChange func()
	closed   bool

	expired atomic.Uint64
	dropped atomic.Uint64
}

// New creates a queue holding at most max entries, each expiring after ttl.
// A non-positive ttl disables expiry.
func New(max int, ttl time.Duration, clk clock.Clock) *Queue {
	if max <= 0 {
		max = 1
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Queue{
		clk:    clk,
		max:    max,
		ttl:    ttl,
		timers: make(map[uint64]clock.Timer),
	}
}

// SetOnChange registers a callback invoked after every mutation, including
// timer-driven expiry. Set once during wiring, before the queue is shared.
func (q *Queue) SetOnChange(fn func()) {
	q.mu.Lock()
	q.onChange = fn
	q.mu.Unlock()
}

// Push prepends a notification, assigning its ID and creation time, and
// arms its expiry timer. Returns the stored entry.
func (q *Queue) Push(n Notification) Notification {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Notification{}
	}
	q.nextID++
	n.ID = q.nextID
	n.CreatedAt = q.clk.Now()
	q.entries = append(q.entries, Notification{})
	copy(q.entries[1:], q.entries)
	q.entries[0] = n

	for len(q.entries) > q.max {
		oldest := q.entries[len(q.entries)-1]
		q.entries = q.entries[:len(q.entries)-1]
		q.stopTimerLocked(oldest.ID)
		q.dropped.Add(1)
	}

	if q.ttl > 0 {
		id := n.ID
		q.timers[id] = q.clk.AfterFunc(q.ttl, func() { q.expire(id) })
	}
	fn := q.onChange
	q.mu.Unlock()

	if fn != nil {
		fn()
	}
	return n
}

// Dismiss removes the entry with the given ID and cancels its timer.
// Unknown or already-expired IDs are a no-op; removed reports whether an
// entry actually left the feed.
func (q *Queue) Dismiss(id uint64) (removed bool) {
	q.mu.Lock()
	removed = q.removeLocked(id)
	fn := q.onChange
	q.mu.Unlock()

	if removed && fn != nil {
		fn()
	}
	return removed
}

// List returns a copy of the feed, newest first.
func (q *Queue) List() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Notification, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the current feed length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Counts reports how many entries expired on their own and how many were
// dropped by the bound.
func (q *Queue) Counts() (expired, dropped uint64) {
	return q.expired.Load(), q.dropped.Load()
}

// Close cancels every pending timer and empties the feed. Idempotent; a
// closed queue ignores further pushes.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.entries = nil
}

func (q *Queue) expire(id uint64) {
	q.mu.Lock()
	removed := q.removeLocked(id)
	if removed {
		q.expired.Add(1)
	}
	fn := q.onChange
	q.mu.Unlock()

	if removed && fn != nil {
		fn()
	}
}

func (q *Queue) removeLocked(id uint64) bool {
	q.stopTimerLocked(id)
	for i, n := range q.entries {
		if n.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) stopTimerLocked(id uint64) {
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
}
