// Package series maintains the dashboard's named chart series, each a
// fixed-capacity sliding window of time-ordered points.
package series

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Point is one chart sample.
type Point struct {
	Time  time.Time
	Value float64
}

// Buffer holds named series bounded to a shared window size. Appending to a
// full series evicts its oldest point; unknown names are created on first
// use. Every mutation marks the series dirty so the render scheduler can
// redraw only what moved.
// Concurrency: Append/Replace may be called from multiple goroutines;
// reads return copies the caller owns.
type Buffer struct {
	mu     sync.RWMutex
	window int
	series map[string][]Point
	dirty  map[string]struct{}

	evicted atomic.Uint64
}

// New creates a buffer whose series each hold at most window points.
func New(window int) *Buffer {
	if window <= 0 {
		window = 1
	}
	return &Buffer{
		window: window,
		series: make(map[string][]Point),
		dirty:  make(map[string]struct{}),
	}
}

// Window returns the per-series capacity.
func (b *Buffer) Window() int {
	if b == nil {
		return 0
	}
	return b.window
}

// Append adds one point to the end of the named series. When the series is
// full the oldest point is evicted, so length never exceeds the window.
func (b *Buffer) Append(name string, p Point) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s := append(b.series[name], p)
	if over := len(s) - b.window; over > 0 {
		copy(s, s[over:])
		s = s[:b.window]
		b.evicted.Add(uint64(over))
	}
	b.series[name] = s
	b.dirty[name] = struct{}{}
}

// Replace swaps the named series content wholesale, keeping only the newest
// window points in their given order. Snapshot application uses this.
func (b *Buffer) Replace(name string, points []Point) {
	if b == nil {
		return
	}
	if over := len(points) - b.window; over > 0 {
		points = points[over:]
	}
	owned := make([]Point, len(points))
	copy(owned, points)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.series[name] = owned
	b.dirty[name] = struct{}{}
}

// Read returns an ordered copy of the named series, oldest first. A name
// that was never written yields an empty slice.
func (b *Buffer) Read(name string) []Point {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.series[name]
	out := make([]Point, len(s))
	copy(out, s)
	return out
}

// Len returns the current point count of the named series.
func (b *Buffer) Len(name string) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.series[name])
}

// Names returns the known series names in sorted order.
func (b *Buffer) Names() []string {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.series))
	for name := range b.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DrainDirty returns the series changed since the previous call and clears
// the dirty set.
func (b *Buffer) DrainDirty() []string {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.dirty) == 0 {
		return nil
	}
	names := make([]string, 0, len(b.dirty))
	for name := range b.dirty {
		names = append(names, name)
	}
	b.dirty = make(map[string]struct{})
	sort.Strings(names)
	return names
}

// Evicted returns the total points evicted across all series.
func (b *Buffer) Evicted() uint64 {
	if b == nil {
		return 0
	}
	return b.evicted.Load()
}
