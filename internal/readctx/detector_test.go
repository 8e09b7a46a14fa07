package readctx

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestDetectSelection_ViewerWinsOverHost(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.viewer.selection = Content{Type: "text", Data: "text from the viewer"}

	rec := h.det.DetectSelection(context.Background(), StaticSelection{Label: "host", Text: "text from the host page"})
	if rec == nil || rec.QueryText != "text from the viewer" {
		t.Fatalf("expected viewer selection, got %+v", rec)
	}
}

func TestDetectSelection_FallsThroughToHost(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.viewer.selErr = errors.New("api not ready")

	rec := h.det.DetectSelection(context.Background(),
		StaticSelection{Label: "host", Text: "text from the host page"},
		StaticSelection{Label: "frame", Text: "text from the frame"},
	)
	if rec == nil || rec.QueryText != "text from the host page" {
		t.Fatalf("expected host selection, got %+v", rec)
	}
}

func TestDetectSelection_CrossOriginFrameSkipped(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	rec := h.det.DetectSelection(context.Background(),
		StaticSelection{Label: "host", Text: ""},
		StaticSelection{Label: "frame", Err: ErrCrossOrigin},
		StaticSelection{Label: "frame-2", Text: "text from a same-origin frame"},
	)
	if rec == nil || rec.QueryText != "text from a same-origin frame" {
		t.Fatalf("expected same-origin frame selection, got %+v", rec)
	}
}

func TestDetectSelection_NonTextContentIgnored(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.viewer.selection = Content{Type: "image", Data: "base64..."}

	if rec := h.det.DetectSelection(context.Background()); rec != nil {
		t.Errorf("expected no record for non-text content, got %+v", rec)
	}
}

func TestDetectSelection_AllSourcesEmpty(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	if rec := h.det.DetectSelection(context.Background(), StaticSelection{Label: "host"}); rec != nil {
		t.Errorf("expected nil when nothing is selected, got %+v", rec)
	}
}

func TestDetectSelection_SyntheticPlaceholder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SyntheticSelection = true
	h := newHarness(t, cfg)
	h.viewer.setPage(2)

	rec := h.det.DetectSelection(context.Background())
	if rec == nil {
		t.Fatal("expected a placeholder record")
	}
	if rec.Source.Kind != KindSelection || rec.Source.PageNumber != 2 {
		t.Errorf("unexpected source %+v", rec.Source)
	}
	if !strings.Contains(rec.QueryText, "page 2") || !strings.Contains(rec.QueryText, "travel.pdf") {
		t.Errorf("expected placeholder to mention page and document, got %q", rec.QueryText)
	}
}

func TestDetectSelection_NoRecordWithoutLivePage(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.viewer.setPage(6)
	h.viewer.texts[6] = bodyPage("page 6")
	if rec := h.det.DetectReadingPosition(context.Background()); rec == nil {
		t.Fatal("expected a reading-position record on page 6")
	}

	h.viewer.pageErr = errors.New("timeout")
	if rec := h.det.DetectSelection(context.Background(), StaticSelection{Label: "host", Text: "selected on six"}); rec != nil {
		t.Errorf("expected no record when the viewer cannot report its page, got %+v", rec)
	}

	cfg := DefaultConfig()
	cfg.SyntheticSelection = true
	synth := newHarness(t, cfg)
	synth.viewer.pageErr = errors.New("timeout")
	if rec := synth.det.DetectSelection(context.Background()); rec != nil {
		t.Errorf("expected no placeholder without a live page, got %+v", rec)
	}
}

func TestDetectReadingPosition_MiddleThirdExcerpt(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.viewer.texts[1] = bodyPage("page 1")

	rec := h.det.DetectReadingPosition(context.Background())
	if rec == nil {
		t.Fatal("expected a record")
	}
	if strings.Contains(rec.QueryText, "Header") || strings.Contains(rec.QueryText, "footer") {
		t.Errorf("expected header and footer to be excluded, got %q", rec.QueryText)
	}
	if !strings.HasPrefix(rec.QueryText, "First body paragraph") {
		t.Errorf("expected excerpt to start with the first body paragraph, got %q", rec.QueryText)
	}
	if !strings.Contains(rec.QueryText, "Second body paragraph") {
		t.Errorf("expected two segments joined, got %q", rec.QueryText)
	}
	if strings.Contains(rec.QueryText, "Third body paragraph") {
		t.Errorf("expected at most two segments, got %q", rec.QueryText)
	}
}

func TestDetectReadingPosition_InvalidPage(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.viewer.setPage(0)
	if rec := h.det.DetectReadingPosition(context.Background()); rec != nil {
		t.Errorf("expected nil for page 0, got %+v", rec)
	}
}

func TestDetectReadingPosition_ResetCooldown(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.viewer.texts[1] = bodyPage("page 1")

	if h.det.DetectReadingPosition(context.Background()) == nil {
		t.Fatal("expected first detection")
	}
	h.clock.advance(time.Second)
	if h.det.DetectReadingPosition(context.Background()) != nil {
		t.Fatal("expected cooldown to suppress the repeat")
	}
	h.det.ResetCooldown()
	if h.det.DetectReadingPosition(context.Background()) == nil {
		t.Error("expected detection after reset")
	}
}

func TestDetector_DetachMakesNoop(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.viewer.texts[1] = bodyPage("page 1")
	h.det.Detach()
	if h.det.Attached() {
		t.Fatal("expected detector to be detached")
	}
	if rec := h.det.DetectReadingPosition(context.Background()); rec != nil {
		t.Errorf("expected nil after detach, got %+v", rec)
	}
}

func TestExcerpt_TruncatesToBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcerptChars = 100
	long := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	text := "top\n\n" + long + "\n\n" + long + "\n\nbottom"

	got := cfg.Excerpt(text)
	if n := utf8.RuneCountInString(got); n > 100 {
		t.Errorf("expected at most 100 chars, got %d", n)
	}
	if !strings.HasPrefix(got, "lorem ipsum") {
		t.Errorf("expected body text, got %q", got)
	}
}

func TestExcerpt_NoQualifyingSegmentsUsesWholeText(t *testing.T) {
	got := DefaultConfig().Excerpt("short one\n\nshort two\n\nshort three")
	if got != "short one short two short three" {
		t.Errorf("unexpected excerpt %q", got)
	}
}

func TestExcerpt_SingleParagraph(t *testing.T) {
	text := strings.Repeat("word ", 30)
	got := DefaultConfig().Excerpt(text)
	if got != strings.TrimSpace(text) {
		t.Errorf("expected whole paragraph, got %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"doc_1_travel.pdf":      "travel.pdf",
		"doc_12_my_notes.pdf":   "my_notes.pdf",
		"travel.pdf":            "travel.pdf",
		"doc_x_travel.pdf":      "doc_x_travel.pdf",
		"doc_3_":                "doc_3_",
		"document_1_report.pdf": "document_1_report.pdf",
	}
	for in, want := range cases {
		if got := DisplayName(in); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSelectionKey(t *testing.T) {
	cases := []struct {
		key         string
		shift, ctrl bool
		want        bool
	}{
		{"a", false, true, true},
		{"a", false, false, false},
		{"ArrowRight", true, false, true},
		{"ArrowRight", false, false, false},
		{"End", true, false, true},
		{"Shift", true, false, true},
		{"Enter", false, false, false},
	}
	for _, c := range cases {
		if got := IsSelectionKey(c.key, c.shift, c.ctrl); got != c.want {
			t.Errorf("IsSelectionKey(%q, %v, %v) = %v, want %v", c.key, c.shift, c.ctrl, got, c.want)
		}
	}
}

func TestIsSelectionEvent(t *testing.T) {
	if !IsSelectionEvent(EventSelectionEnd) || !IsSelectionEvent(EventMouseUp) {
		t.Error("expected selection-end and mouse-up to be selection events")
	}
	if IsSelectionEvent(EventScroll) || IsSelectionEvent(EventPageRendered) {
		t.Error("expected scroll and page-rendered not to be selection events")
	}
}
