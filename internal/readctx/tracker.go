package readctx

import (
	"context"
	"sync"
	"time"
)

// Tracker funnels every "reading position may have changed" producer (viewer
// events, scrolling, the backstop poll) into one debounced call of
// Dispatcher.ReadingPosition. Each Signal cancels the pending timer and
// schedules a new one.
type Tracker struct {
	dispatcher *Dispatcher
	quiet      time.Duration
	poll       time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewTracker creates a tracker using the dispatcher detector's timers.
func NewTracker(d *Dispatcher) *Tracker {
	cfg := d.detector.cfg
	return &Tracker{
		dispatcher: d,
		quiet:      cfg.ScrollQuiet,
		poll:       cfg.BackstopPoll,
	}
}

// Start launches the backstop poll. Signals received before Start are
// dropped.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx != nil || t.stopped {
		return
	}
	t.ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go func(ctx context.Context) {
		defer t.wg.Done()
		ticker := time.NewTicker(t.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Signal()
			}
		}
	}(t.ctx)
}

// Signal (re)arms the debounce timer.
func (t *Tracker) Signal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx == nil || t.stopped {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	ctx := t.ctx
	t.timer = time.AfterFunc(t.quiet, func() {
		if ctx.Err() != nil {
			return
		}
		t.dispatcher.ReadingPosition(ctx)
	})
}

// Stop cancels the pending timer and the backstop poll.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()
	t.wg.Wait()
}
