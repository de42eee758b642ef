package event

import (
	"fmt"
	"sync/atomic"
)

// Handler applies one event to downstream state. Handlers run synchronously
// on the dispatching goroutine.
type Handler func(Event)

// Router dispatches events through a fixed table, one handler per kind. The
// table is completed at construction and never changes afterwards, so
// Dispatch needs no locking.
type Router struct {
	table map[Kind]Handler
	logf  func(format string, args ...interface{})

	dispatched atomic.Uint64
	unmatched  atomic.Uint64
	panics     atomic.Uint64
}

// NewRouter builds a router over the given table. Every kind in the closed
// set must have a handler; a partial table is a construction error rather
// than a silent drop at dispatch time.
func NewRouter(table map[Kind]Handler, logf func(format string, args ...interface{})) (*Router, error) {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	copied := make(map[Kind]Handler, len(table))
	for _, k := range Kinds() {
		h := table[k]
		if h == nil {
			return nil, fmt.Errorf("router: no handler for %s", k)
		}
		copied[k] = h
	}
	return &Router{table: copied, logf: logf}, nil
}

// Dispatch routes one event to its handler. Calls are synchronous, so
// events are applied in exactly the order they arrive. A handler panic is
// recovered at this boundary, logged, and the event becomes a no-op; the
// dispatch loop itself never dies.
func (r *Router) Dispatch(ev Event) {
	h, ok := r.table[ev.Kind()]
	if !ok {
		r.unmatched.Add(1)
		r.logf("Router: no handler for event kind %q, dropping", ev.Kind())
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.panics.Add(1)
			r.logf("Router: %s handler panic: %v", ev.Kind(), rec)
		}
	}()
	r.dispatched.Add(1)
	h(ev)
}

// Counts reports dispatch totals since construction.
func (r *Router) Counts() (dispatched, unmatched, panics uint64) {
	return r.dispatched.Load(), r.unmatched.Load(), r.panics.Load()
}
