package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"opsdash/clock"
	"opsdash/event"
)

type fakeFrame struct {
	msgType int
	data    []byte
}

// fakeConn feeds scripted frames to the read loop and fails when dropped.
type fakeConn struct {
	frames    chan fakeFrame
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan fakeFrame, 32),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		return f.msgType, f.data, nil
	case <-c.closed:
		return 0, nil, errors.New("connection dropped")
	}
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// drop simulates the server side going away.
func (c *fakeConn) drop() { c.Close() }

type dialOutcome struct {
	conn *fakeConn
	err  error
}

// scriptDialer plays back a fixed sequence of dial outcomes.
type scriptDialer struct {
	mu       sync.Mutex
	outcomes []dialOutcome
	calls    int
}

func (d *scriptDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.outcomes) == 0 {
		return nil, errors.New("script exhausted")
	}
	out := d.outcomes[0]
	d.outcomes = d.outcomes[1:]
	if out.err != nil {
		return nil, out.err
	}
	return out.conn, nil
}

func (d *scriptDialer) dialCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestClient(t *testing.T, dialer Dialer, clk clock.Clock, onEvent func(event.Event)) *WSClient {
	t.Helper()
	c := NewWSClient(Options{
		URL:     "ws://dashboard.test/ws",
		Name:    "Push",
		Backoff: FixedBackoff{Interval: 5 * time.Second},
		Dialer:  dialer,
		Clock:   clk,
		Logf:    t.Logf,
		OnEvent: onEvent,
	})
	t.Cleanup(c.Close)
	return c
}

func TestConnectReachesConnected(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{outcomes: []dialOutcome{{conn: conn}}}
	clk := clock.NewFake(time.Unix(1700000000, 0))

	c := newTestClient(t, dialer, clk, nil)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	st := c.Status()
	if st.State != StateConnected {
		t.Fatalf("expected state connected, got %s", st.State)
	}
	if st.Attempt != 0 {
		t.Fatalf("expected attempt counter 0 after a healthy connect, got %d", st.Attempt)
	}
}

func TestDialFailureSchedulesSingleRetryTimer(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{outcomes: []dialOutcome{
		{err: errors.New("refused")},
		{err: errors.New("refused")},
		{conn: conn},
	}}
	clk := clock.NewFake(time.Unix(1700000000, 0))

	c := newTestClient(t, dialer, clk, nil)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	st := c.Status()
	if st.State != StateReconnecting || st.Attempt != 1 {
		t.Fatalf("expected reconnecting attempt 1, got %s attempt %d", st.State, st.Attempt)
	}
	if st.NextRetryIn != 5*time.Second {
		t.Fatalf("expected next retry in 5s, got %s", st.NextRetryIn)
	}
	if clk.Pending() != 1 {
		t.Fatalf("expected exactly one pending retry timer, got %d", clk.Pending())
	}

	clk.Advance(5 * time.Second)
	st = c.Status()
	if st.State != StateReconnecting || st.Attempt != 2 {
		t.Fatalf("expected reconnecting attempt 2, got %s attempt %d", st.State, st.Attempt)
	}
	if clk.Pending() != 1 {
		t.Fatalf("expected exactly one pending retry timer after second failure, got %d", clk.Pending())
	}

	clk.Advance(5 * time.Second)
	st = c.Status()
	if st.State != StateConnected {
		t.Fatalf("expected connected after scripted success, got %s", st.State)
	}
	if st.Attempt != 0 {
		t.Fatalf("expected attempt counter reset on success, got %d", st.Attempt)
	}
	if got := dialer.dialCalls(); got != 3 {
		t.Fatalf("expected 3 dial attempts, got %d", got)
	}
}

func TestReadErrorMovesToReconnecting(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{outcomes: []dialOutcome{{conn: conn}}}
	clk := clock.NewFake(time.Unix(1700000000, 0))

	c := newTestClient(t, dialer, clk, nil)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	conn.drop()

	waitFor(t, "reconnecting state", func() bool {
		return c.Status().State == StateReconnecting
	})
	st := c.Status()
	if st.Attempt != 1 {
		t.Fatalf("expected attempt 1 after read error, got %d", st.Attempt)
	}
	if clk.Pending() != 1 {
		t.Fatalf("expected one pending retry timer, got %d", clk.Pending())
	}
}

func TestCloseCancelsPendingRetry(t *testing.T) {
	dialer := &scriptDialer{outcomes: []dialOutcome{{err: errors.New("refused")}}}
	clk := clock.NewFake(time.Unix(1700000000, 0))

	c := newTestClient(t, dialer, clk, nil)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if c.Status().State != StateReconnecting {
		t.Fatalf("expected reconnecting, got %s", c.Status().State)
	}

	c.Close()
	if got := c.Status().State; got != StateDisconnected {
		t.Fatalf("expected disconnected after close, got %s", got)
	}
	if clk.Pending() != 0 {
		t.Fatalf("expected the retry timer cancelled, got %d pending", clk.Pending())
	}

	// The elapsed timer must not resurrect the client.
	clk.Advance(time.Minute)
	if got := dialer.dialCalls(); got != 1 {
		t.Fatalf("expected no dial after close, got %d calls", got)
	}
	c.Close() // idempotent
	if got := c.Status().State; got != StateDisconnected {
		t.Fatalf("expected disconnected after second close, got %s", got)
	}
}

func TestEventsDeliveredInOrderAndJunkDiscarded(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{outcomes: []dialOutcome{{conn: conn}}}
	clk := clock.NewFake(time.Unix(1700000000, 0))

	events := make(chan event.Event, 16)
	c := newTestClient(t, dialer, clk, func(ev event.Event) { events <- ev })
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	frame := func(s string) fakeFrame { return fakeFrame{msgType: TextMessage, data: []byte(s)} }
	conn.frames <- frame(`{"type":"order_created","payload":{"id":1,"total":10}}`)
	conn.frames <- fakeFrame{msgType: 2, data: []byte{0x1}} // binary frame
	conn.frames <- frame(`{"type":"order_shipped","payload":{}}`)
	conn.frames <- frame(`not json at all`)
	conn.frames <- frame(`{"type":"customer_synced","payload":{"id":2,"name":"Ada"}}`)
	conn.frames <- frame(`{"type":"order_created","payload":{"id":3,"total":30}}`)

	waitFor(t, "counters to settle", func() bool {
		st := c.Status()
		return st.Received == 3 && st.Discarded == 3
	})

	wantKinds := []event.Kind{event.KindOrderCreated, event.KindCustomerSynced, event.KindOrderCreated}
	for i, want := range wantKinds {
		select {
		case ev := <-events:
			if ev.Kind() != want {
				t.Fatalf("event %d: expected %s, got %s", i, want, ev.Kind())
			}
			if ev.Source != event.SourcePush {
				t.Fatalf("event %d: expected push source, got %s", i, ev.Source)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d events delivered, got %d", len(wantKinds), i)
		}
	}
	if c.Status().State != StateConnected {
		t.Fatalf("expected junk frames to leave the connection up, got %s", c.Status().State)
	}
}

func TestConnectMisuse(t *testing.T) {
	conn := newFakeConn()
	dialer := &scriptDialer{outcomes: []dialOutcome{{conn: conn}}}
	clk := clock.NewFake(time.Unix(1700000000, 0))

	c := newTestClient(t, dialer, clk, nil)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := c.Connect(); err == nil {
		t.Fatalf("expected second Connect to be rejected")
	}

	c.Close()
	if err := c.Connect(); err == nil {
		t.Fatalf("expected Connect after Close to be rejected")
	}

	n := NewWSClient(Options{})
	if err := n.Connect(); err == nil {
		t.Fatalf("expected Connect without URL to be rejected")
	}
}
