package ui

import (
	"sync"
	"time"

	"github.com/rivo/tview"
)

const drainTimeout = 100 * time.Millisecond

// frameScheduler coalesces pane updates and caps the draw rate. Each pane
// schedules under a fixed id, so a burst of events collapses into the
// latest callback per pane by the next frame.
type frameScheduler struct {
	app          *tview.Application
	pending      map[string]func()
	mu           sync.Mutex
	quit         chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
	frameTime    time.Duration
	observeDelay func(time.Duration)
}

func newFrameScheduler(app *tview.Application, fps int, observeDelay func(time.Duration)) *frameScheduler {
	if fps <= 0 {
		fps = 10
	}
	return &frameScheduler{
		app:          app,
		pending:      make(map[string]func()),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		frameTime:    time.Second / time.Duration(fps),
		observeDelay: observeDelay,
	}
}

func (f *frameScheduler) Start() {
	go f.run()
}

// Stop drains pending work and halts the frame loop. Idempotent.
func (f *frameScheduler) Stop() {
	f.stopOnce.Do(func() { close(f.quit) })
	select {
	case <-f.done:
	case <-time.After(drainTimeout):
	}
}

// Schedule queues fn for the next frame, replacing any callback already
// queued under the same id.
func (f *frameScheduler) Schedule(id string, fn func()) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.pending[id] = fn
	f.mu.Unlock()
}

func (f *frameScheduler) run() {
	defer close(f.done)

	ticker := time.NewTicker(f.frameTime)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-f.quit:
			f.flushBounded(drainTimeout)
			return
		}
	}
}

func (f *frameScheduler) flush() {
	f.flushBounded(0)
}

func (f *frameScheduler) flushBounded(max time.Duration) {
	deadline := time.Time{}
	if max > 0 {
		deadline = time.Now().Add(max)
	}
	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return
		}
		f.mu.Lock()
		if len(f.pending) == 0 {
			f.mu.Unlock()
			return
		}
		batch := make([]func(), 0, len(f.pending))
		for _, fn := range f.pending {
			batch = append(batch, fn)
		}
		for key := range f.pending {
			delete(f.pending, key)
		}
		f.mu.Unlock()

		queuedAt := time.Now()
		run := func() {
			for _, fn := range batch {
				fn()
			}
			if f.observeDelay != nil {
				f.observeDelay(time.Since(queuedAt))
			}
		}
		// No application means a headless run; execute in place.
		if f.app == nil {
			run()
			continue
		}
		f.app.QueueUpdateDraw(run)
	}
}
