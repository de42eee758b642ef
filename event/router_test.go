package event

import (
	"fmt"
	"testing"
	"time"
)

func completeTable(h Handler) map[Kind]Handler {
	table := make(map[Kind]Handler)
	for _, k := range Kinds() {
		table[k] = h
	}
	return table
}

func TestNewRouterRejectsPartialTable(t *testing.T) {
	table := completeTable(func(Event) {})
	delete(table, KindSystemHealth)

	if _, err := NewRouter(table, nil); err == nil {
		t.Fatalf("expected NewRouter to reject a table missing a kind")
	}
}

func TestDispatchPreservesOrder(t *testing.T) {
	var seen []string
	r, err := NewRouter(completeTable(func(ev Event) {
		seen = append(seen, ev.Kind().String())
	}), nil)
	if err != nil {
		t.Fatalf("NewRouter() error: %v", err)
	}

	now := time.Now()
	r.Dispatch(Event{Payload: OrderCreated{ID: 1}, Source: SourcePush, At: now})
	r.Dispatch(Event{Payload: CustomerSynced{ID: 2}, Source: SourcePush, At: now})
	r.Dispatch(Event{Payload: OrderCreated{ID: 3}, Source: SourcePush, At: now})
	r.Dispatch(Event{Payload: ErrorOccurred{Code: "x"}, Source: SourcePush, At: now})

	want := []string{"order_created", "customer_synced", "order_created", "error_occurred"}
	if len(seen) != len(want) {
		t.Fatalf("expected %d dispatches, got %d", len(want), len(seen))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("dispatch %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	var logged []string
	logf := func(format string, args ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}

	delivered := 0
	table := completeTable(func(Event) { delivered++ })
	table[KindOrderCreated] = func(Event) { panic("boom") }
	r, err := NewRouter(table, logf)
	if err != nil {
		t.Fatalf("NewRouter() error: %v", err)
	}

	r.Dispatch(Event{Payload: OrderCreated{ID: 1}, Source: SourcePush, At: time.Now()})
	// The panic must not escape, and later events still dispatch.
	r.Dispatch(Event{Payload: CustomerSynced{ID: 2}, Source: SourcePush, At: time.Now()})

	if delivered != 1 {
		t.Fatalf("expected the event after the panic to dispatch, got %d deliveries", delivered)
	}
	_, _, panics := r.Counts()
	if panics != 1 {
		t.Fatalf("expected 1 recovered panic, got %d", panics)
	}
	if len(logged) == 0 {
		t.Fatalf("expected the panic to be logged")
	}
}

func TestDispatchUnmatchedKindIsNoOp(t *testing.T) {
	var calls int
	r, err := NewRouter(completeTable(func(Event) { calls++ }), nil)
	if err != nil {
		t.Fatalf("NewRouter() error: %v", err)
	}

	r.Dispatch(Event{}) // empty event carries KindUnknown

	if calls != 0 {
		t.Fatalf("expected no handler call for an unknown kind, got %d", calls)
	}
	_, unmatched, _ := r.Counts()
	if unmatched != 1 {
		t.Fatalf("expected unmatched count 1, got %d", unmatched)
	}
}
