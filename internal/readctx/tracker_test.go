package readctx

import (
	"context"
	"testing"
	"time"
)

func trackerHarness(t *testing.T, quiet, poll time.Duration) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ScrollQuiet = quiet
	cfg.BackstopPoll = poll
	cfg.PositionCooldown = 0
	h := newHarness(t, cfg)
	h.viewer.texts[1] = bodyPage("page 1")
	return h
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestTracker_DebounceCollapsesBursts(t *testing.T) {
	h := trackerHarness(t, 30*time.Millisecond, time.Hour)
	tr := NewTracker(h.disp)
	tr.Start(context.Background())
	defer tr.Stop()

	for range 5 {
		tr.Signal()
		time.Sleep(2 * time.Millisecond)
	}

	waitFor(t, time.Second, func() bool { return h.viewer.calls() >= 1 })
	time.Sleep(100 * time.Millisecond)
	if got := h.viewer.calls(); got != 1 {
		t.Errorf("expected 1 extraction after a burst, got %d", got)
	}
	if got := len(h.rec.all()); got != 1 {
		t.Errorf("expected 1 forwarded record, got %d", got)
	}
}

func TestTracker_SignalBeforeStartIgnored(t *testing.T) {
	h := trackerHarness(t, 10*time.Millisecond, time.Hour)
	tr := NewTracker(h.disp)

	tr.Signal()
	time.Sleep(50 * time.Millisecond)
	if got := h.viewer.calls(); got != 0 {
		t.Errorf("expected no extraction before Start, got %d", got)
	}
}

func TestTracker_BackstopPollFires(t *testing.T) {
	h := trackerHarness(t, 5*time.Millisecond, 20*time.Millisecond)
	tr := NewTracker(h.disp)
	tr.Start(context.Background())
	defer tr.Stop()

	waitFor(t, time.Second, func() bool { return h.viewer.calls() >= 1 })
}

func TestTracker_StopCancelsPendingSignal(t *testing.T) {
	h := trackerHarness(t, 50*time.Millisecond, time.Hour)
	tr := NewTracker(h.disp)
	tr.Start(context.Background())

	tr.Signal()
	tr.Stop()
	time.Sleep(120 * time.Millisecond)
	if got := h.viewer.calls(); got != 0 {
		t.Errorf("expected pending signal to be cancelled, got %d extractions", got)
	}

	tr.Signal()
	time.Sleep(80 * time.Millisecond)
	if got := h.viewer.calls(); got != 0 {
		t.Errorf("expected Signal after Stop to be ignored, got %d extractions", got)
	}
}

func TestTracker_StopIsIdempotent(t *testing.T) {
	h := trackerHarness(t, 10*time.Millisecond, time.Hour)
	tr := NewTracker(h.disp)
	tr.Start(context.Background())
	tr.Stop()
	tr.Stop()
}
