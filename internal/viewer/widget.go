// Package viewer holds the server-side state of an embedded document viewer.
// The browser reports what the viewer shows; page text is served from the
// document library.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/synapse/internal/readctx"
)

// ErrNotReady is returned by every handle call before the viewer reported ready.
var ErrNotReady = errors.New("viewer not ready")

// Pages is the page-text source behind the viewer.
type Pages interface {
	PageCount() int
	PageText(page int) (string, error)
}

// Navigator is told when the viewer should move to a page. The browser
// performs the actual navigation.
type Navigator func(page int)

// Widget implements readctx.ViewerHandle from browser reports.
type Widget struct {
	pages    Pages
	navigate Navigator
	now      func() time.Time

	mu        sync.Mutex
	ready     bool
	page      int
	selection readctx.Content
	subs      map[int]func(readctx.Event)
	nextSub   int
}

// New creates a widget that is not ready yet.
func New(pages Pages, navigate Navigator) *Widget {
	return &Widget{
		pages:    pages,
		navigate: navigate,
		now:      time.Now,
		page:     1,
		subs:     make(map[int]func(readctx.Event)),
	}
}

// Ready reports whether the viewer finished initialising.
func (w *Widget) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// Apply ingests one viewer event reported by the browser and notifies
// subscribers. Pages past the end of the document are ignored. It reports
// whether this event made the viewer ready.
func (w *Widget) Apply(ev readctx.Event) (becameReady bool) {
	if ev.At.IsZero() {
		ev.At = w.now()
	}

	w.mu.Lock()
	switch ev.Type {
	case readctx.EventViewerReady, readctx.EventRenderDone:
		becameReady = !w.ready
		w.ready = true
	}
	if ev.Page > 0 {
		if n := w.pages.PageCount(); n > 0 && ev.Page > n {
			ev.Page = 0
		} else {
			w.page = ev.Page
		}
	}
	subs := w.subscribersLocked()
	w.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return becameReady
}

// SetSelection records the viewer's native selection. Empty text clears it.
func (w *Widget) SetSelection(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if text == "" {
		w.selection = readctx.Content{}
		return
	}
	w.selection = readctx.Content{Type: "text", Data: text}
}

func (w *Widget) CurrentPage(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.ready {
		return 0, ErrNotReady
	}
	return w.page, nil
}

func (w *Widget) SelectedContent(ctx context.Context) (readctx.Content, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.ready {
		return readctx.Content{}, ErrNotReady
	}
	return w.selection, nil
}

func (w *Widget) ExtractText(ctx context.Context, page int) (string, error) {
	if !w.Ready() {
		return "", ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return w.pages.PageText(page)
}

// GotoPage moves to page, tells the browser to follow and emits a page
// event to subscribers.
func (w *Widget) GotoPage(ctx context.Context, page int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	if !w.ready {
		w.mu.Unlock()
		return ErrNotReady
	}
	if n := w.pages.PageCount(); n > 0 && page > n {
		w.mu.Unlock()
		return fmt.Errorf("page %d beyond last page %d", page, n)
	}
	w.mu.Unlock()

	if w.navigate != nil {
		w.navigate(page)
	}
	w.Apply(readctx.Event{Type: readctx.EventPageRendered, Page: page})
	return nil
}

func (w *Widget) Subscribe(fn func(readctx.Event)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs, id)
	}
}

func (w *Widget) subscribersLocked() []func(readctx.Event) {
	out := make([]func(readctx.Event), 0, len(w.subs))
	for i := 0; i < w.nextSub; i++ {
		if fn, ok := w.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}
