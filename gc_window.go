package main

import (
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
)

// gcPauseWindow reports the p99 GC pause among collections that ran since
// the previous snapshot. runStatsLoop owns the instance and calls snapshot
// once per tick, so no locking is needed.
type gcPauseWindow struct {
	lastNumGC   uint32
	initialized bool
}

// snapshot inspects mem for GCs newer than the last call. When more GCs ran
// than the runtime's pause ring holds, only the most recent pauses are
// considered and truncated is true.
func (w *gcPauseWindow) snapshot(mem *runtime.MemStats) (p99 time.Duration, count int, truncated bool) {
	if mem == nil {
		return 0, 0, false
	}
	if !w.initialized {
		w.lastNumGC = mem.NumGC
		w.initialized = true
		return 0, 0, false
	}
	if mem.NumGC <= w.lastNumGC {
		return 0, 0, false
	}
	delta := mem.NumGC - w.lastNumGC
	w.lastNumGC = mem.NumGC

	ringLen := len(mem.PauseNs)
	if ringLen == 0 {
		return 0, 0, false
	}

	needed := int(delta)
	if needed > ringLen {
		needed = ringLen
		truncated = true
	}

	pauses := make([]uint64, 0, needed)
	idx := int((mem.NumGC - 1) % uint32(ringLen))
	for i := 0; i < needed; i++ {
		if v := mem.PauseNs[idx]; v > 0 {
			pauses = append(pauses, v)
		}
		idx--
		if idx < 0 {
			idx = ringLen - 1
		}
	}
	if len(pauses) == 0 {
		return 0, 0, truncated
	}
	sort.Slice(pauses, func(i, j int) bool { return pauses[i] < pauses[j] })
	return time.Duration(pauseP99(pauses)), len(pauses), truncated
}

func pauseP99(pauses []uint64) uint64 {
	if len(pauses) == 0 {
		return 0
	}
	idx := int(float64(len(pauses)-1) * 0.99)
	if idx < 0 {
		idx = 0
	}
	return pauses[idx]
}

// runtimeStatsLine formats the process's memory and GC picture for the
// stats pane.
func runtimeStatsLine(w *gcPauseWindow) string {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	p99, pauses, truncated := w.snapshot(&mem)

	line := fmt.Sprintf("Runtime: heap %s, sys %s, %d goroutines",
		humanize.IBytes(mem.HeapAlloc), humanize.IBytes(mem.Sys), runtime.NumGoroutine())
	if pauses > 0 {
		line += fmt.Sprintf(", gc p99 %s over %d pauses", p99, pauses)
		if truncated {
			line += " (truncated)"
		}
	}
	return line
}
