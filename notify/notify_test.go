package notify

import (
	"testing"
	"time"

	"opsdash/clock"
)

func newTestQueue(max int, ttl time.Duration) (*Queue, *clock.Fake) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	return New(max, ttl, clk), clk
}

func push(q *Queue, sev Severity, title string) Notification {
	return q.Push(Notification{Severity: sev, Title: title})
}

func TestPushNewestFirst(t *testing.T) {
	q, _ := newTestQueue(10, 0)

	push(q, SeverityInfo, "first")
	push(q, SeveritySuccess, "second")
	push(q, SeverityError, "third")

	got := q.List()
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, want := range []string{"third", "second", "first"} {
		if got[i].Title != want {
			t.Fatalf("entry %d: expected %q, got %q", i, want, got[i].Title)
		}
	}
	if got[0].ID <= got[1].ID || got[1].ID <= got[2].ID {
		t.Fatalf("expected strictly descending IDs, got %d %d %d", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestPushAssignsIdentity(t *testing.T) {
	q, clk := newTestQueue(10, 0)

	n := q.Push(Notification{
		ID:        777, // caller-supplied identity is overwritten
		Severity:  SeveritySuccess,
		Icon:      "fa-shopping-cart",
		Title:     "New order",
		Message:   "S00042",
		CreatedAt: time.Unix(1, 0),
	})
	if n.ID != 1 {
		t.Fatalf("expected assigned ID 1, got %d", n.ID)
	}
	if !n.CreatedAt.Equal(clk.Now()) {
		t.Fatalf("expected CreatedAt from the queue clock, got %s", n.CreatedAt)
	}
	got := q.List()[0]
	if got.Icon != "fa-shopping-cart" || got.Message != "S00042" {
		t.Fatalf("expected icon and message to carry through, got %+v", got)
	}
}

func TestPushEnforcesBound(t *testing.T) {
	q, clk := newTestQueue(10, 5*time.Second)

	for i := 0; i < 15; i++ {
		push(q, SeverityInfo, "n")
	}

	if q.Len() != 10 {
		t.Fatalf("expected bound of 10, got %d", q.Len())
	}
	got := q.List()
	if got[0].ID != 15 || got[9].ID != 6 {
		t.Fatalf("expected newest 15 down to 6, got %d..%d", got[0].ID, got[9].ID)
	}
	if _, dropped := q.Counts(); dropped != 5 {
		t.Fatalf("expected 5 dropped entries, got %d", dropped)
	}
	// Dropped entries must not leave timers behind.
	if clk.Pending() != 10 {
		t.Fatalf("expected 10 armed timers, got %d", clk.Pending())
	}
}

func TestEntriesExpireAfterTTL(t *testing.T) {
	q, clk := newTestQueue(10, 5*time.Second)

	push(q, SeverityWarning, "stale")
	clk.Advance(3 * time.Second)
	push(q, SeverityInfo, "fresh")

	clk.Advance(2 * time.Second) // first entry hits its TTL
	got := q.List()
	if len(got) != 1 || got[0].Title != "fresh" {
		t.Fatalf("expected only the fresh entry, got %v", got)
	}

	clk.Advance(3 * time.Second) // second entry hits its TTL
	if q.Len() != 0 {
		t.Fatalf("expected empty feed after TTLs, got %d", q.Len())
	}
	if expired, _ := q.Counts(); expired != 2 {
		t.Fatalf("expected 2 expirations, got %d", expired)
	}
	if clk.Pending() != 0 {
		t.Fatalf("expected no timers left, got %d", clk.Pending())
	}
}

func TestDismissCancelsTimer(t *testing.T) {
	q, clk := newTestQueue(10, 5*time.Second)

	n := push(q, SeverityInfo, "gone")
	if !q.Dismiss(n.ID) {
		t.Fatalf("expected Dismiss to remove the entry")
	}
	if clk.Pending() != 0 {
		t.Fatalf("expected the timer cancelled on dismissal, got %d pending", clk.Pending())
	}

	clk.Advance(10 * time.Second)
	if expired, _ := q.Counts(); expired != 0 {
		t.Fatalf("expected no expiry after dismissal, got %d", expired)
	}
}

func TestDismissUnknownIsNoOp(t *testing.T) {
	q, _ := newTestQueue(10, 5*time.Second)

	push(q, SeverityInfo, "kept")
	if q.Dismiss(999) {
		t.Fatalf("expected Dismiss of unknown ID to be a no-op")
	}
	if q.Len() != 1 {
		t.Fatalf("expected the feed untouched, got %d", q.Len())
	}

	n := push(q, SeverityInfo, "twice")
	if !q.Dismiss(n.ID) {
		t.Fatalf("expected first Dismiss to remove")
	}
	if q.Dismiss(n.ID) {
		t.Fatalf("expected second Dismiss to be a no-op")
	}
}

func TestOnChangeFiresForExpiry(t *testing.T) {
	q, clk := newTestQueue(10, time.Second)

	var changes int
	q.SetOnChange(func() { changes++ })

	push(q, SeverityInfo, "a")
	if changes != 1 {
		t.Fatalf("expected change callback on push, got %d", changes)
	}
	clk.Advance(time.Second)
	if changes != 2 {
		t.Fatalf("expected change callback on expiry, got %d", changes)
	}
}

func TestCloseCancelsEverything(t *testing.T) {
	q, clk := newTestQueue(10, 5*time.Second)

	push(q, SeverityInfo, "a")
	push(q, SeverityInfo, "b")
	q.Close()
	q.Close() // idempotent

	if clk.Pending() != 0 {
		t.Fatalf("expected all timers cancelled on close, got %d", clk.Pending())
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty feed after close, got %d", q.Len())
	}
	push(q, SeverityInfo, "late")
	if q.Len() != 0 {
		t.Fatalf("expected closed queue to ignore pushes, got %d", q.Len())
	}
}
