package readctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Detector turns viewer state into candidate Records. It holds no handle until
// the viewer reports ready; until then every operation returns nil.
type Detector struct {
	doc Document
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu       sync.Mutex
	handle   ViewerHandle
	lastPage int
	lastAt   time.Time
}

// NewDetector creates a detector for one document.
func NewDetector(doc Document, cfg Config, log *slog.Logger) *Detector {
	return &Detector{
		doc: doc,
		cfg: cfg.withDefaults(),
		log: log.With("component", "detector", "doc_id", doc.ID),
		now: time.Now,
	}
}

// Attach hands the detector the viewer's capability object.
func (d *Detector) Attach(h ViewerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handle = h
}

// Detach drops the handle; later detections are no-ops.
func (d *Detector) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handle = nil
}

// Attached reports whether a viewer handle is available.
func (d *Detector) Attached() bool {
	return d.viewer() != nil
}

// ResetCooldown forgets the last detected page so the next reading-position
// detection runs even on the same page.
func (d *Detector) ResetCooldown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastPage = 0
	d.lastAt = time.Time{}
}

func (d *Detector) viewer() ViewerHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle
}

// DetectSelection looks for selected text, trying the viewer first and then
// each extra source in order. The first source that yields text decides: if
// that text is too short the selection is rejected.
func (d *Detector) DetectSelection(ctx context.Context, sources ...SelectionSource) *Record {
	h := d.viewer()
	if h == nil {
		return nil
	}

	chain := make([]SelectionSource, 0, len(sources)+1)
	chain = append(chain, viewerSelection{h: h})
	chain = append(chain, sources...)

	for _, src := range chain {
		text, err := d.selectedText(ctx, src)
		if errors.Is(err, ErrCrossOrigin) {
			continue
		}
		if err != nil {
			d.log.Warn("selection source failed", "source", src.Name(), "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) < d.cfg.SelectionMinChars {
			d.log.Debug("selection too short", "source", src.Name(), "chars", utf8.RuneCountInString(text))
			return nil
		}
		page, err := d.currentPage(ctx, h)
		if err != nil {
			d.log.Warn("current page unavailable, dropping selection", "source", src.Name(), "error", err)
			return nil
		}
		return newRecord(KindSelection, d.doc, page, text, d.now())
	}

	if !d.cfg.SyntheticSelection {
		return nil
	}
	page, err := d.currentPage(ctx, h)
	if err != nil {
		d.log.Warn("current page unavailable, skipping placeholder", "error", err)
		return nil
	}
	text := fmt.Sprintf("Selected passage on page %d of %s", page, DisplayName(d.doc.Name))
	d.log.Info("no selection text found, using placeholder", "page", page)
	return newRecord(KindSelection, d.doc, page, text, d.now())
}

// DetectReadingPosition reports what the user is passively reading. It
// returns nil if the page has not changed within the cooldown window.
func (d *Detector) DetectReadingPosition(ctx context.Context) *Record {
	h := d.viewer()
	if h == nil {
		return nil
	}

	page, err := d.currentPage(ctx, h)
	if err != nil {
		d.log.Warn("current page unavailable", "error", err)
		return nil
	}

	now := d.now()
	d.mu.Lock()
	if page == d.lastPage && now.Sub(d.lastAt) < d.cfg.PositionCooldown {
		d.mu.Unlock()
		return nil
	}
	d.lastPage = page
	d.lastAt = now
	d.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.ViewerCallTimeout)
	text, err := h.ExtractText(callCtx, page)
	cancel()
	if err != nil {
		d.log.Warn("page text extraction failed", "page", page, "error", err)
		text = ""
	}

	if strings.TrimSpace(text) != "" {
		excerpt := d.cfg.Excerpt(text)
		if utf8.RuneCountInString(excerpt) < d.cfg.ReadingMinChars {
			return nil
		}
		return newRecord(KindReadingPosition, d.doc, page, excerpt, now)
	}

	if !d.cfg.TemplateFallback {
		return nil
	}
	return newRecord(KindReadingPosition, d.doc, page, pageTemplate(page, d.doc), now)
}

func pageTemplate(page int, doc Document) string {
	return fmt.Sprintf("Reading page %d of %s. No text could be extracted from this page.", page, DisplayName(doc.Name))
}

func (d *Detector) selectedText(ctx context.Context, src SelectionSource) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.ViewerCallTimeout)
	defer cancel()
	return src.SelectedText(callCtx)
}

func (d *Detector) currentPage(ctx context.Context, h ViewerHandle) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.ViewerCallTimeout)
	defer cancel()
	page, err := h.CurrentPage(callCtx)
	if err != nil {
		return 0, err
	}
	if page < 1 {
		return 0, fmt.Errorf("invalid page number %d", page)
	}
	return page, nil
}

type viewerSelection struct {
	h ViewerHandle
}

func (v viewerSelection) Name() string { return "viewer" }

func (v viewerSelection) SelectedText(ctx context.Context) (string, error) {
	c, err := v.h.SelectedContent(ctx)
	if err != nil {
		return "", err
	}
	return c.Text(), nil
}
