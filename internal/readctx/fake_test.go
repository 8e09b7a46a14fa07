package readctx

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeViewer struct {
	mu           sync.Mutex
	page         int
	pageErr      error
	selection    Content
	selErr       error
	texts        map[int]string
	extractErr   map[int]error
	extractCalls int
	gotoPages    []int

	// When set, ExtractText signals started and waits for release.
	started chan struct{}
	release chan struct{}
}

func newFakeViewer() *fakeViewer {
	return &fakeViewer{
		page:       1,
		texts:      map[int]string{},
		extractErr: map[int]error{},
	}
}

func (f *fakeViewer) setPage(p int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.page = p
}

func (f *fakeViewer) CurrentPage(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page, f.pageErr
}

func (f *fakeViewer) SelectedContent(ctx context.Context) (Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selection, f.selErr
}

func (f *fakeViewer) ExtractText(ctx context.Context, page int) (string, error) {
	f.mu.Lock()
	f.extractCalls++
	started, release := f.started, f.release
	text, err := f.texts[page], f.extractErr[page]
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, err
}

func (f *fakeViewer) GotoPage(ctx context.Context, page int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotoPages = append(f.gotoPages, page)
	f.page = page
	return nil
}

func (f *fakeViewer) Subscribe(fn func(Event)) func() { return func() {} }

func (f *fakeViewer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extractCalls
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu   sync.Mutex
	recs []*Record
}

func (r *recorder) consume(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
}

func (r *recorder) all() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, len(r.recs))
	copy(out, r.recs)
	return out
}

type harness struct {
	viewer *fakeViewer
	clock  *manualClock
	rec    *recorder
	det    *Detector
	disp   *Dispatcher
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		viewer: newFakeViewer(),
		clock:  &manualClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		rec:    &recorder{},
	}
	h.det = NewDetector(Document{ID: "1", Name: "doc_1_travel.pdf"}, cfg, discardLogger())
	h.det.now = h.clock.now
	h.disp = NewDispatcher(h.det, h.rec.consume, discardLogger())
	h.disp.now = h.clock.now
	h.disp.Attach(h.viewer)
	return h
}

// bodyPage builds page text with a header, three body paragraphs and a footer.
func bodyPage(label string) string {
	return "Header line\n\n" +
		"First body paragraph of " + label + " describing the coastal towns and the trains between them.\n\n" +
		"Second body paragraph of " + label + " with notes about ferries, local food and the best season to go.\n\n" +
		"Third body paragraph of " + label + " about museums, opening hours and a few practical tips for visitors.\n\n" +
		"Page footer"
}
