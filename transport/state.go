// Package transport maintains the dashboard's push-channel connections: a
// websocket client with an explicit reconnect state machine, and an
// optional MQTT source feeding the same event handler.
package transport

import "time"

// State names one phase of the push connection lifecycle. All transitions
// happen inside the client; callers only observe states via Status.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "invalid"
	}
}

// Status is a point-in-time view of a push connection.
type Status struct {
	State       State
	Attempt     int           // retries since the last healthy connection
	NextRetryIn time.Duration // zero unless State is StateReconnecting
	LastEventAt time.Time
	Received    uint64
	Discarded   uint64
	Reconnects  uint64 // lifetime retry attempts
}
