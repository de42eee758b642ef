package main

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"opsdash/event"
	"opsdash/store"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, rate time.Duration, junk float64) *httptest.Server {
	t.Helper()
	srv := newServer(newShop(1), rate, junk, t.Logf)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts
}

func TestSnapshotHandlerETagRoundTrip(t *testing.T) {
	ts := newTestServer(t, time.Second, 0)

	resp, err := http.Get(ts.URL + "/api/dashboard")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatalf("expected an ETag header")
	}

	var snap store.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Totals.Orders == 0 || len(snap.TopProducts) == 0 {
		t.Fatalf("expected a seeded snapshot, got %+v", snap.Totals)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/dashboard", nil)
	req.Header.Set("If-None-Match", etag)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional get: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304 for unchanged state, got %d", resp2.StatusCode)
	}
}

func TestFeedStreamsDecodableFrames(t *testing.T) {
	ts := newTestServer(t, 5*time.Millisecond, 0)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 5; i++ {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if msgType != websocket.TextMessage {
			t.Fatalf("expected text frame, got type %d", msgType)
		}
		if _, err := event.Decode(frame, event.SourcePush, time.Now()); err != nil {
			t.Fatalf("frame %d not decodable: %v\n%s", i, err, frame)
		}
	}
}

func TestShopStepMutatesSnapshot(t *testing.T) {
	sh := newShop(7)
	before := sh.snapshot(time.Now())

	now := time.Now()
	for i := 0; i < 200; i++ {
		frame, err := sh.step(now)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if _, err := event.Decode(frame, event.SourcePush, now); err != nil {
			t.Fatalf("step %d produced a bad frame: %v\n%s", i, err, frame)
		}
	}

	after := sh.snapshot(time.Now())
	if after.Totals.Orders <= before.Totals.Orders {
		t.Fatalf("expected orders to grow, got %d -> %d", before.Totals.Orders, after.Totals.Orders)
	}
	if after.Totals.Sales <= before.Totals.Sales {
		t.Fatalf("expected sales to grow, got %.2f -> %.2f", before.Totals.Sales, after.Totals.Sales)
	}
	if len(after.Series[store.SeriesSales]) == 0 {
		t.Fatalf("expected sales series points after 200 steps")
	}
}

func TestJunkFramesAreRejectedByDecoder(t *testing.T) {
	for variant := 0; variant < 3; variant++ {
		frame := junkFrame(variant)
		_, err := event.Decode(frame, event.SourcePush, time.Now())
		if err == nil {
			t.Fatalf("variant %d: expected decode failure for %s", variant, frame)
		}
	}

	// The near-miss variant should land close enough for a suggestion.
	var unknown *event.UnknownTypeError
	_, err := event.Decode(junkFrame(0), event.SourcePush, time.Now())
	if !errors.As(err, &unknown) {
		t.Fatalf("expected unknown-type error, got %v", err)
	}
	if got, ok := event.SuggestKind(unknown.Type); !ok || got != "order_created" {
		t.Fatalf("expected order_created suggestion, got %q (ok=%v)", got, ok)
	}
}
