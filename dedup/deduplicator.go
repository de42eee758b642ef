// Package dedup suppresses events that arrive more than once within a
// time window, as when the same backend change rides in over both the
// websocket and MQTT feeds, or a poll lands right after the push copy.
package dedup

import (
	"fmt"
	"sync"
	"time"

	"opsdash/event"

	"github.com/zeebo/xxh3"
)

// shardCount must remain a power of two so shard selection is a mask.
const shardCount = 64

const (
	compactMinPeak     = 1024
	compactShrinkRatio = 0.5
)

// Deduplicator keeps a shard-locked cache of recently seen event
// identities. A zero or negative window disables suppression while
// keeping the pipeline topology intact.
type Deduplicator struct {
	window          time.Duration
	shards          []cacheShard
	cleanupInterval time.Duration
	shutdown        chan struct{}
	stopOnce        sync.Once
}

type cacheShard struct {
	mu             sync.Mutex
	cache          map[uint32]time.Time
	checkedCount   uint64
	duplicateCount uint64
	peak           int
}

func New(window time.Duration) *Deduplicator {
	shards := make([]cacheShard, shardCount)
	for i := range shards {
		shards[i].cache = make(map[uint32]time.Time)
	}
	return &Deduplicator{
		window:          window,
		shards:          shards,
		cleanupInterval: 60 * time.Second,
		shutdown:        make(chan struct{}),
	}
}

// Start launches the periodic cleanup loop that bounds cache memory.
func (d *Deduplicator) Start() {
	go d.cleanupLoop()
}

// Stop ends the cleanup loop. Idempotent.
func (d *Deduplicator) Stop() {
	d.stopOnce.Do(func() { close(d.shutdown) })
}

// Seen records the event's identity and reports whether the same identity
// already passed through within the window. Events whose kind has no
// identity always pass; the router discards those anyway.
func (d *Deduplicator) Seen(ev event.Event) bool {
	if d == nil || d.window <= 0 {
		return false
	}
	key, ok := identityKey(ev)
	if !ok {
		return false
	}
	hash := uint32(xxh3.HashString(key))
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	shard := d.shardFor(hash)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.checkedCount++

	if last, exists := shard.cache[hash]; exists {
		age := at.Sub(last)
		if age < 0 {
			age = -age // out-of-order arrival
		}
		if age < d.window {
			shard.duplicateCount++
			return true
		}
	}
	shard.cache[hash] = at
	if size := len(shard.cache); size > shard.peak {
		shard.peak = size
	}
	return false
}

// Stats returns totals across all shards.
func (d *Deduplicator) Stats() (checked, duplicates uint64, cacheSize int) {
	for i := range d.shards {
		shard := &d.shards[i]
		shard.mu.Lock()
		checked += shard.checkedCount
		duplicates += shard.duplicateCount
		cacheSize += len(shard.cache)
		shard.mu.Unlock()
	}
	return checked, duplicates, cacheSize
}

func (d *Deduplicator) shardFor(hash uint32) *cacheShard {
	idx := hash & (shardCount - 1)
	return &d.shards[idx]
}

func (d *Deduplicator) cleanupLoop() {
	ticker := time.NewTicker(d.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.shutdown:
			return
		case <-ticker.C:
			d.cleanup()
		}
	}
}

// cleanup drops expired entries and reallocates shard maps that have
// shrunk well below their peak, so a burst does not pin memory for good.
func (d *Deduplicator) cleanup() {
	if d.window <= 0 {
		return
	}
	now := time.Now().UTC()
	for i := range d.shards {
		shard := &d.shards[i]
		shard.mu.Lock()
		removed := false
		for hash, when := range shard.cache {
			if now.Sub(when) > d.window {
				delete(shard.cache, hash)
				removed = true
			}
		}
		if removed {
			maybeCompactShardLocked(shard)
		}
		shard.mu.Unlock()
	}
}

func maybeCompactShardLocked(shard *cacheShard) {
	if shard.peak < compactMinPeak {
		return
	}
	threshold := int(float64(shard.peak) * compactShrinkRatio)
	if len(shard.cache) >= threshold {
		return
	}
	next := make(map[uint32]time.Time, len(shard.cache))
	for k, v := range shard.cache {
		next[k] = v
	}
	shard.cache = next
	shard.peak = len(next)
}

// identityKey collapses an event to the fields that make it "the same
// change". Content-bearing fields are included so two genuine updates to
// one record survive dedup.
func identityKey(ev event.Event) (string, bool) {
	switch p := ev.Payload.(type) {
	case event.OrderCreated:
		return fmt.Sprintf("order:%d:%s", p.ID, p.Name), true
	case event.ProductUpdated:
		return fmt.Sprintf("product:%d:%g:%d", p.ID, p.Price, p.Inventory), true
	case event.CustomerSynced:
		return fmt.Sprintf("customer:%d:%s", p.ID, p.Email), true
	case event.ErrorOccurred:
		return fmt.Sprintf("error:%s:%s:%s", p.Origin, p.Code, p.Message), true
	case event.SystemHealth:
		return fmt.Sprintf("health:%s:%d:%d:%d:%g", p.Status, p.PendingJobs, p.FailedJobs, p.QueueDepth, p.SyncLagSeconds), true
	}
	return "", false
}
