package ui

import (
	"sync"
	"sync/atomic"
	"time"
)

// Entry is one activity feed line.
type Entry struct {
	At    time.Time
	Badge string
	Text  string
}

// Feed is a bounded ring of activity entries. Appending beyond the bound
// evicts the oldest entry; over-long texts are truncated rather than
// dropped so the feed never silently loses an event.
// Concurrency: Append may be called by multiple goroutines; Snapshot is
// typically called by the render goroutine.
type Feed struct {
	mu       sync.RWMutex
	entries  []Entry
	head     int
	count    int
	maxCount int
	maxText  int
	seq      atomic.Uint64

	truncated atomic.Uint64
	evicted   atomic.Uint64

	logMu       sync.Mutex
	lastTrimLog time.Time
	logf        func(format string, args ...interface{})
}

// NewFeed creates a feed holding at most maxCount entries, truncating
// texts longer than maxText bytes. A non-positive maxText disables
// truncation.
func NewFeed(maxCount, maxText int, logf func(format string, args ...interface{})) *Feed {
	if maxCount <= 0 {
		maxCount = 1
	}
	return &Feed{
		entries:  make([]Entry, maxCount),
		maxCount: maxCount,
		maxText:  maxText,
		logf:     logf,
	}
}

// Append adds one entry, evicting the oldest when full.
func (f *Feed) Append(e Entry) {
	if f == nil {
		return
	}
	if f.maxText > 0 && len(e.Text) > f.maxText {
		e.Text = e.Text[:f.maxText]
		f.truncated.Add(1)
		f.logTrim(len(e.Text))
	}

	f.mu.Lock()
	for f.count >= f.maxCount && f.count > 0 {
		f.head = (f.head + 1) % len(f.entries)
		f.count--
		f.evicted.Add(1)
	}
	pos := (f.head + f.count) % len(f.entries)
	f.entries[pos] = e
	f.count++
	f.seq.Add(1)
	f.mu.Unlock()
}

// Snapshot copies the entries into dst, oldest first, and returns the
// slice together with the feed's mutation sequence. The caller owns dst.
func (f *Feed) Snapshot(dst []Entry) ([]Entry, uint64) {
	if f == nil {
		return dst[:0], 0
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	if cap(dst) < f.count {
		dst = make([]Entry, f.count)
	} else {
		dst = dst[:f.count]
	}
	for i := 0; i < f.count; i++ {
		dst[i] = f.entries[(f.head+i)%len(f.entries)]
	}
	return dst, f.seq.Load()
}

// Seq returns the mutation sequence, so renderers can skip unchanged
// frames.
func (f *Feed) Seq() uint64 {
	if f == nil {
		return 0
	}
	return f.seq.Load()
}

// Counts reports how many entries were truncated and evicted.
func (f *Feed) Counts() (truncated, evicted uint64) {
	if f == nil {
		return 0, 0
	}
	return f.truncated.Load(), f.evicted.Load()
}

func (f *Feed) logTrim(size int) {
	if f.logf == nil {
		return
	}
	now := time.Now().UTC()
	f.logMu.Lock()
	if !f.lastTrimLog.IsZero() && now.Sub(f.lastTrimLog) < 30*time.Second {
		f.logMu.Unlock()
		return
	}
	f.lastTrimLog = now
	f.logMu.Unlock()
	f.logf("UI: truncated activity entry to %d bytes", size)
}
