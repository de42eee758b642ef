package transport

import "time"

// Backoff computes the delay before a reconnect attempt. Implementations
// are pure functions of the attempt number so retry schedules can be
// tested without a connection.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff retries on a constant cadence. This matches the cadence
// operators are used to from the previous dashboard client.
type FixedBackoff struct {
	Interval time.Duration
}

func (b FixedBackoff) Delay(int) time.Duration { return b.Interval }

// ExponentialBackoff doubles the delay with every failed attempt, capped
// at Max. Attempt 1 waits Initial.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Initial
	for i := 1; i < attempt; i++ {
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
