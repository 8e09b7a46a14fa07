package readctx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State is the arbitration state of a Dispatcher.
type State int

const (
	StatePassive State = iota
	StateSelecting
)

func (s State) String() string {
	switch s {
	case StatePassive:
		return "PASSIVE"
	case StateSelecting:
		return "SELECTING"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Consumer receives context updates. A nil record means the displayed
// context should be cleared.
type Consumer func(rec *Record)

// Stats counts what the dispatcher did with detections.
type Stats struct {
	State     string `json:"state"`
	Forwarded int    `json:"forwarded"`
	Cleared   int    `json:"cleared"`
	Dropped   int    `json:"dropped"`
	Page      int    `json:"page"`
}

// Dispatcher arbitrates between explicit selections and passive reading
// tracking and forwards at most one canonical context to the consumer.
//
// While SELECTING, reading-position requests are dropped without touching the
// viewer. Leaving SELECTING always emits exactly one nil before any later
// passive record. Consumer calls are serialised and must not call back into
// the dispatcher.
type Dispatcher struct {
	detector *Detector
	consumer Consumer
	cooldown time.Duration
	log      *slog.Logger
	now      func() time.Time

	inFlight atomic.Bool

	mu            sync.Mutex
	state         State
	generation    uint64
	selectionPage int
	page          int
	last          *Record
	lastForwardAt time.Time
	stats         Stats
}

// NewDispatcher creates a dispatcher in the PASSIVE state.
func NewDispatcher(detector *Detector, consumer Consumer, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		detector: detector,
		consumer: consumer,
		cooldown: detector.cfg.PositionCooldown,
		log:      log.With("component", "dispatcher", "doc_id", detector.doc.ID),
		now:      time.Now,
	}
}

// State returns the current arbitration state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Snapshot returns a copy of the dispatcher counters.
func (d *Dispatcher) Snapshot() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.State = d.state.String()
	s.Page = d.page
	return s
}

// Current returns the active record, or nil.
func (d *Dispatcher) Current() *Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Attach connects the viewer handle once the viewer is ready.
func (d *Dispatcher) Attach(h ViewerHandle) {
	d.detector.Attach(h)
}

// Select runs selection detection and, if a selection is accepted, switches
// to SELECTING and forwards it.
func (d *Dispatcher) Select(ctx context.Context, sources ...SelectionSource) *Record {
	rec := d.detector.DetectSelection(ctx, sources...)
	if rec == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last != nil && d.last.Source.Kind == KindSelection && d.last.QueryText == rec.QueryText &&
		d.last.Source.PageNumber == rec.Source.PageNumber && d.state == StateSelecting {
		d.stats.Dropped++
		return nil
	}
	if d.state != StateSelecting {
		d.log.Debug("state transition", "from", d.state, "to", StateSelecting)
		d.state = StateSelecting
		d.generation++
	}
	d.selectionPage = rec.Source.PageNumber
	d.page = rec.Source.PageNumber
	d.forwardLocked(rec)
	return rec
}

// ExitSelection leaves SELECTING on an explicit user action.
func (d *Dispatcher) ExitSelection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exitLocked("explicit")
}

// PageChanged records a page reported by the viewer. A move away from the
// selection page while SELECTING ends the selection.
func (d *Dispatcher) PageChanged(page int) {
	if page < 1 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.page = page
	if d.state == StateSelecting && page != d.selectionPage {
		d.exitLocked("page_change")
	}
}

func (d *Dispatcher) exitLocked(reason string) {
	if d.state != StateSelecting {
		return
	}
	d.log.Debug("state transition", "from", d.state, "to", StatePassive, "reason", reason)
	d.state = StatePassive
	d.generation++
	d.selectionPage = 0
	d.detector.ResetCooldown()
	d.forwardLocked(nil)
}

// ReadingPosition runs a reading-position detection and forwards the result
// if the dispatcher is PASSIVE. Calls made while another is in flight are
// dropped.
func (d *Dispatcher) ReadingPosition(ctx context.Context) *Record {
	d.mu.Lock()
	if d.state == StateSelecting {
		d.stats.Dropped++
		d.mu.Unlock()
		return nil
	}
	gen := d.generation
	d.mu.Unlock()

	if !d.inFlight.CompareAndSwap(false, true) {
		d.mu.Lock()
		d.stats.Dropped++
		d.mu.Unlock()
		return nil
	}
	defer d.inFlight.Store(false)

	rec := d.detector.DetectReadingPosition(ctx)
	if rec == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// A selection or an exit happened while the viewer was being queried.
	if d.state != StatePassive || d.generation != gen {
		d.stats.Dropped++
		return nil
	}
	if d.last != nil && d.last.Source.Kind == rec.Source.Kind &&
		d.last.Source.PageNumber == rec.Source.PageNumber &&
		d.now().Sub(d.lastForwardAt) < d.cooldown {
		d.stats.Dropped++
		return nil
	}
	d.page = rec.Source.PageNumber
	d.forwardLocked(rec)
	return rec
}

// Goto navigates the viewer. It is a no-op before the viewer is ready.
func (d *Dispatcher) Goto(ctx context.Context, page int) error {
	h := d.detector.viewer()
	if h == nil {
		return nil
	}
	if page < 1 {
		return fmt.Errorf("invalid page number %d", page)
	}
	callCtx, cancel := context.WithTimeout(ctx, d.detector.cfg.ViewerCallTimeout)
	defer cancel()
	if err := h.GotoPage(callCtx, page); err != nil {
		d.log.Warn("navigation failed", "page", page, "error", err)
		return fmt.Errorf("goto page %d: %w", page, err)
	}
	return nil
}

func (d *Dispatcher) forwardLocked(rec *Record) {
	d.last = rec
	if rec == nil {
		d.stats.Cleared++
	} else {
		d.stats.Forwarded++
		d.lastForwardAt = d.now()
	}
	if d.consumer != nil {
		d.consumer(rec)
	}
}
