package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"opsdash/poll"
	"opsdash/transport"
)

const (
	connHealthInterval  = 30 * time.Second
	connIdleThreshold   = 2 * time.Minute
	connHealthLogPrefix = "Health: "
)

// connHealthSnapshot is a point-in-time view of one feed. Fields a source
// does not track stay zero and are omitted from the log line.
type connHealthSnapshot struct {
	Connected   bool
	Phase       string
	LastEventAt time.Time
	Received    uint64
	Discarded   uint64
	Attempt     int
	Polls       uint64
	Failures    uint64
	Skipped     uint64
}

type connHealthSource struct {
	name     string
	snapshot func() connHealthSnapshot
}

type connHealthState struct {
	connected   bool
	idle        bool
	initialized bool
}

// startConnHealthMonitor logs feed health transitions with low noise: a line
// is emitted only when a source flips connected/disconnected or active/idle,
// plus one initial line per source.
func startConnHealthMonitor(ctx context.Context, sources []connHealthSource) {
	if len(sources) == 0 {
		return
	}
	ticker := time.NewTicker(connHealthInterval)
	go func() {
		defer ticker.Stop()
		states := make(map[string]connHealthState, len(sources))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				evaluateConnHealth(states, sources, time.Now().UTC(), log.Printf)
			}
		}
	}()
}

func evaluateConnHealth(states map[string]connHealthState, sources []connHealthSource, now time.Time, logf func(format string, args ...interface{})) {
	for _, source := range sources {
		if source.snapshot == nil {
			continue
		}
		snap := source.snapshot()
		idle := connIsIdle(snap, now)
		state := states[source.name]
		if !state.initialized || state.connected != snap.Connected || state.idle != idle {
			logf("%s%s", connHealthLogPrefix, formatConnHealthLine(source.name, snap, idle, now))
			states[source.name] = connHealthState{
				connected:   snap.Connected,
				idle:        idle,
				initialized: true,
			}
		}
	}
}

func connIsIdle(snap connHealthSnapshot, now time.Time) bool {
	if snap.LastEventAt.IsZero() {
		return true
	}
	return now.Sub(snap.LastEventAt) > connIdleThreshold
}

func formatConnHealthLine(name string, snap connHealthSnapshot, idle bool, now time.Time) string {
	status := "connected"
	if !snap.Connected {
		status = "disconnected"
	}
	state := "active"
	if idle {
		state = "idle"
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteString(" ")
	b.WriteString(status)
	b.WriteString(" ")
	b.WriteString(state)
	if snap.Phase != "" && snap.Phase != status {
		b.WriteString(" phase=")
		b.WriteString(snap.Phase)
	}
	if !snap.LastEventAt.IsZero() {
		b.WriteString(" last_event=")
		b.WriteString(ageString(now, snap.LastEventAt))
	}
	if snap.Received > 0 {
		b.WriteString(fmt.Sprintf(" received=%d", snap.Received))
	}
	if snap.Polls > 0 {
		b.WriteString(fmt.Sprintf(" polls=%d", snap.Polls))
	}
	if snap.Discarded > 0 {
		b.WriteString(fmt.Sprintf(" discards=%d", snap.Discarded))
	}
	if snap.Failures > 0 {
		b.WriteString(fmt.Sprintf(" failures=%d", snap.Failures))
	}
	if snap.Skipped > 0 {
		b.WriteString(fmt.Sprintf(" skipped=%d", snap.Skipped))
	}
	if snap.Attempt > 0 {
		b.WriteString(fmt.Sprintf(" attempt=%d", snap.Attempt))
	}
	return b.String()
}

func ageString(now time.Time, at time.Time) string {
	if at.IsZero() {
		return "never"
	}
	age := now.Sub(at)
	if age < 0 {
		age = 0
	}
	if age < time.Second {
		return "0s"
	}
	return age.Truncate(time.Second).String()
}

func wsHealthSource(name string, client *transport.WSClient) connHealthSource {
	return connHealthSource{
		name: name,
		snapshot: func() connHealthSnapshot {
			if client == nil {
				return connHealthSnapshot{}
			}
			st := client.Status()
			return connHealthSnapshot{
				Connected:   st.State == transport.StateConnected,
				Phase:       st.State.String(),
				LastEventAt: st.LastEventAt,
				Received:    st.Received,
				Discarded:   st.Discarded,
				Attempt:     st.Attempt,
			}
		},
	}
}

func mqttHealthSource(name string, src *transport.MQTTSource) connHealthSource {
	return connHealthSource{
		name: name,
		snapshot: func() connHealthSnapshot {
			if src == nil {
				return connHealthSnapshot{}
			}
			received, discarded := src.Counts()
			return connHealthSnapshot{
				Connected:   src.Connected(),
				LastEventAt: src.LastEventAt(),
				Received:    received,
				Discarded:   discarded,
			}
		},
	}
}

func pollHealthSource(name string, sched *poll.Scheduler) connHealthSource {
	return connHealthSource{
		name: name,
		snapshot: func() connHealthSnapshot {
			if sched == nil {
				return connHealthSnapshot{}
			}
			st := sched.Status()
			snap := connHealthSnapshot{
				// Healthy means the most recent completed poll succeeded.
				Connected:   !st.LastSuccess.IsZero() && (st.LastErrorAt.IsZero() || st.LastSuccess.After(st.LastErrorAt)),
				LastEventAt: st.LastSuccess,
				Polls:       st.Polls,
				Failures:    st.Failures,
				Skipped:     st.Skipped,
			}
			if st.Busy {
				snap.Phase = "fetching"
			}
			return snap
		},
	}
}
