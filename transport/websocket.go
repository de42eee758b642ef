package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"opsdash/clock"
	"opsdash/event"
	"opsdash/internal/ratelimit"
)

// TextMessage is the frame code Conn implementations report for UTF-8 text
// frames. It mirrors the websocket opcode.
const TextMessage = websocket.TextMessage

// Conn is one established push connection. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens push connections. The default dials over websocket; tests
// substitute scripted dialers to drive the state machine.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configure a WSClient. Zero fields get working defaults.
type Options struct {
	URL         string
	Name        string // log prefix
	Backoff     Backoff
	ReadTimeout time.Duration // silence longer than this counts as a dead connection
	DialTimeout time.Duration
	Dialer      Dialer
	Clock       clock.Clock
	Logf        func(format string, args ...interface{})
	OnEvent     func(event.Event)
}

// WSClient owns one push connection and its lifecycle:
//
//	Disconnected -Connect-> Connecting -ok-> Connected
//	Connecting/Connected -error-> Reconnecting -timer-> Connecting
//	any state -Close-> Disconnected (terminal)
//
// At most one retry timer is pending at any moment, and Close cancels it.
// Decoded events are handed to OnEvent from the single read goroutine, so
// downstream sees them in exact arrival order.
type WSClient struct {
	opts    Options
	clk     clock.Clock
	logf    func(format string, args ...interface{})
	dropLog ratelimit.Counter

	mu         sync.Mutex
	state      State
	attempt    int
	reconnects uint64
	retryTimer clock.Timer
	retryAt    time.Time
	conn       Conn
	gen        int // connection generation; stale goroutine callbacks are ignored
	started    bool
	closed     bool
	lastEvent  time.Time

	received atomic.Uint64
}

// NewWSClient builds a client. Connect starts it; Close ends it for good.
func NewWSClient(opts Options) *WSClient {
	if opts.Name == "" {
		opts.Name = "Push"
	}
	if opts.Backoff == nil {
		opts.Backoff = FixedBackoff{Interval: 5 * time.Second}
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = wsDialer{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &WSClient{
		opts:    opts,
		clk:     clk,
		logf:    logf,
		dropLog: ratelimit.NewCounter(30 * time.Second),
	}
}

// Connect performs the first dial and starts the state machine. A failed
// dial is not an error: the client moves to Reconnecting and retries on
// its backoff schedule. Only misuse (no URL, already started, closed)
// returns an error.
func (c *WSClient) Connect() error {
	if c.opts.URL == "" {
		return errors.New("transport: no push URL configured")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("transport: %s client is closed", c.opts.Name)
	}
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("transport: %s client already started", c.opts.Name)
	}
	c.started = true
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.logf("%s: connecting to %s...", c.opts.Name, c.opts.URL)
	c.dial(gen)
	return nil
}

// dial attempts one connection for the given generation and installs the
// outcome into the state machine.
func (c *WSClient) dial(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
	conn, err := c.opts.Dialer.Dial(ctx, c.opts.URL)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.scheduleRetryLocked(err)
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.attempt = 0
	c.logf("%s: connection established", c.opts.Name)
	go c.readLoop(conn, gen)
}

// readLoop consumes frames until the connection dies. It is the only
// goroutine that touches the socket's read side, which is what keeps event
// delivery ordered.
func (c *WSClient) readLoop(conn Conn, gen int) {
	for {
		if c.opts.ReadTimeout > 0 {
			conn.SetReadDeadline(c.clk.Now().Add(c.opts.ReadTimeout))
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.closed || gen != c.gen {
				c.mu.Unlock()
				return
			}
			c.conn = nil
			c.scheduleRetryLocked(err)
			c.mu.Unlock()
			conn.Close()
			return
		}
		if msgType != TextMessage {
			c.discard("non-text frame (type %d)", msgType)
			continue
		}

		ev, err := event.Decode(data, event.SourcePush, c.clk.Now())
		if err != nil {
			var ute *event.UnknownTypeError
			if errors.As(err, &ute) {
				if hint, ok := event.SuggestKind(ute.Type); ok {
					c.discard("unknown event type %q (closest known: %q)", ute.Type, hint)
				} else {
					c.discard("unknown event type %q", ute.Type)
				}
			} else {
				c.discard("malformed frame: %v", err)
			}
			continue
		}

		c.mu.Lock()
		if c.closed || gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.lastEvent = ev.At
		c.mu.Unlock()
		c.received.Add(1)
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(ev)
		}
	}
}

// scheduleRetryLocked moves the machine to Reconnecting and arms the retry
// timer. Any previously pending timer is stopped first, so there is never
// more than one.
func (c *WSClient) scheduleRetryLocked(cause error) {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.attempt++
	c.reconnects++
	delay := c.opts.Backoff.Delay(c.attempt)
	c.state = StateReconnecting
	c.retryAt = c.clk.Now().Add(delay)
	c.logf("%s: connection lost: %v (retry %d in %s)", c.opts.Name, cause, c.attempt, delay)
	c.retryTimer = c.clk.AfterFunc(delay, c.retry)
}

// retry fires when the backoff delay elapses.
func (c *WSClient) retry() {
	c.mu.Lock()
	if c.closed || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.retryAt = time.Time{}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.logf("%s: attempting reconnect...", c.opts.Name)
	c.dial(gen)
}

// Close tears the client down from any state: the pending retry timer is
// cancelled, the socket is closed, and the state lands on Disconnected.
// Idempotent, and the only transition that releases all resources.
func (c *WSClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retryAt = time.Time{}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.logf("%s: closed", c.opts.Name)
}

// Status reports the current connection state and counters.
func (c *WSClient) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:       c.state,
		Attempt:     c.attempt,
		Reconnects:  c.reconnects,
		LastEventAt: c.lastEvent,
		Received:    c.received.Load(),
		Discarded:   c.dropLog.Total(),
	}
	if c.state == StateReconnecting && !c.retryAt.IsZero() {
		if d := c.retryAt.Sub(c.clk.Now()); d > 0 {
			st.NextRetryIn = d
		}
	}
	return st
}

// discard counts a dropped frame and logs it at most once per throttle
// window, so a malformed burst cannot flood the log.
func (c *WSClient) discard(format string, args ...interface{}) {
	if total, ok := c.dropLog.Inc(); ok {
		c.logf("%s: discarded "+format+" (%d discarded total)", append(append([]interface{}{c.opts.Name}, args...), total)...)
	}
}
