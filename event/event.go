// Package event defines the closed set of dashboard events carried by the
// push channel and the router that applies them to the state store.
package event

import (
	"fmt"
	"strings"
	"time"

	lev "github.com/agnivade/levenshtein"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind identifies one event type in the closed set. Adding a kind means
// adding a wire name, a payload struct, and a handler in the router table;
// the router refuses to start with an incomplete table.
type Kind int

const (
	KindUnknown Kind = iota
	KindOrderCreated
	KindProductUpdated
	KindCustomerSynced
	KindErrorOccurred
	KindSystemHealth
)

var wireNames = map[Kind]string{
	KindOrderCreated:   "order_created",
	KindProductUpdated: "product_updated",
	KindCustomerSynced: "customer_synced",
	KindErrorOccurred:  "error_occurred",
	KindSystemHealth:   "system_health",
}

var kindsByWire = func() map[string]Kind {
	m := make(map[string]Kind, len(wireNames))
	for k, name := range wireNames {
		m[name] = k
	}
	return m
}()

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := wireNames[k]; ok {
		return name
	}
	return "unknown"
}

// Kinds returns the closed set, in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindOrderCreated,
		KindProductUpdated,
		KindCustomerSynced,
		KindErrorOccurred,
		KindSystemHealth,
	}
}

// Source identifies which ingest path produced an event.
type Source string

const (
	SourcePush   Source = "push"
	SourcePoll   Source = "poll"
	SourceManual Source = "manual"
)

// Payload is one decoded event body. Exactly the five payload types below
// implement it.
type Payload interface {
	Kind() Kind
}

// OrderCreated announces a new order.
type OrderCreated struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
	Customer string  `json:"customer"`
}

func (OrderCreated) Kind() Kind { return KindOrderCreated }

// ProductUpdated announces a product change, including its current stock.
type ProductUpdated struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Inventory int     `json:"inventory"`
}

func (ProductUpdated) Kind() Kind { return KindProductUpdated }

// CustomerSynced announces a customer record arriving from the shop.
type CustomerSynced struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (CustomerSynced) Kind() Kind { return KindCustomerSynced }

// ErrorOccurred reports a backend-side failure worth surfacing.
type ErrorOccurred struct {
	Origin  string `json:"source"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorOccurred) Kind() Kind { return KindErrorOccurred }

// SystemHealth carries the backend's own health summary. It replaces the
// previous health record wholesale.
type SystemHealth struct {
	Status         string  `json:"status"`
	PendingJobs    int     `json:"pending_jobs"`
	FailedJobs     int     `json:"failed_jobs"`
	QueueDepth     int     `json:"queue_depth"`
	SyncLagSeconds float64 `json:"sync_lag_seconds"`
}

func (SystemHealth) Kind() Kind { return KindSystemHealth }

// Event is one decoded dashboard event. Immutable once built.
type Event struct {
	Payload Payload
	Source  Source
	At      time.Time
}

// Kind returns the payload's kind, or KindUnknown for an empty event.
func (e Event) Kind() Kind {
	if e.Payload == nil {
		return KindUnknown
	}
	return e.Payload.Kind()
}

// UnknownTypeError reports a frame whose type string is outside the closed
// set. Callers discard the frame and may use SuggestKind for diagnostics.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

// Decode parses one wire frame ({"type": ..., "payload": {...}}) into an
// Event tagged with the given source and receive time.
func Decode(frame []byte, src Source, at time.Time) (Event, error) {
	var env struct {
		Type    string              `json:"type"`
		Payload jsoniter.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return Event{}, fmt.Errorf("malformed frame: %w", err)
	}
	name := strings.TrimSpace(env.Type)
	if name == "" {
		return Event{}, fmt.Errorf("malformed frame: missing type")
	}
	kind, ok := kindsByWire[name]
	if !ok {
		return Event{}, &UnknownTypeError{Type: name}
	}

	if len(env.Payload) == 0 {
		return Event{}, fmt.Errorf("malformed frame: missing payload for %q", name)
	}

	var payload Payload
	var err error
	switch kind {
	case KindOrderCreated:
		var p OrderCreated
		err = json.Unmarshal(env.Payload, &p)
		payload = p
	case KindProductUpdated:
		var p ProductUpdated
		err = json.Unmarshal(env.Payload, &p)
		payload = p
	case KindCustomerSynced:
		var p CustomerSynced
		err = json.Unmarshal(env.Payload, &p)
		payload = p
	case KindErrorOccurred:
		var p ErrorOccurred
		err = json.Unmarshal(env.Payload, &p)
		payload = p
	case KindSystemHealth:
		var p SystemHealth
		err = json.Unmarshal(env.Payload, &p)
		payload = p
	}
	if err != nil {
		return Event{}, fmt.Errorf("malformed %s payload: %w", name, err)
	}
	return Event{Payload: payload, Source: src, At: at}, nil
}

// EncodeFrame builds the wire form of a payload, for tools and tests.
func EncodeFrame(p Payload) ([]byte, error) {
	return json.Marshal(struct {
		Type    string  `json:"type"`
		Payload Payload `json:"payload"`
	}{Type: p.Kind().String(), Payload: p})
}

// SuggestKind returns the closest known wire name within two edits of the
// given type string, for discard diagnostics. ok is false when nothing is
// close enough.
func SuggestKind(name string) (suggestion string, ok bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	best := 3
	for wire := range kindsByWire {
		if d := lev.ComputeDistance(name, wire); d < best {
			best = d
			suggestion = wire
			ok = true
		}
	}
	return suggestion, ok
}
