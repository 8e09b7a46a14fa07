package readctx

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCrossOrigin is returned by a SelectionSource whose selection lives in a
// frame the host page is not allowed to read. The detector skips it silently.
var ErrCrossOrigin = errors.New("cross-origin frame")

// EventType names a viewer or browser event.
type EventType string

const (
	EventRenderStart     EventType = "APP_RENDERING_START"
	EventRenderDone      EventType = "APP_RENDERING_DONE"
	EventViewerReady     EventType = "PDF_VIEWER_READY"
	EventPageRendered    EventType = "PAGE_VIEW"
	EventSelectionEnd    EventType = "TEXT_SELECTION_END"
	EventScroll          EventType = "SCROLL"
	EventMouseUp         EventType = "MOUSE_UP"
	EventDoubleClick     EventType = "DOUBLE_CLICK"
	EventContextMenu     EventType = "CONTEXT_MENU"
	EventKeyUp           EventType = "KEY_UP"
	EventSelectionChange EventType = "SELECTION_CHANGE"
)

// Event is a single notification from the viewer.
type Event struct {
	Type EventType
	Page int
	At   time.Time
}

// Content is what the viewer returns for its current selection. The zero
// value means nothing is selected.
type Content struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Text returns the selected text, or "" when the content is not textual.
func (c Content) Text() string {
	if c.Type != "" && !strings.EqualFold(c.Type, "text") {
		return ""
	}
	return strings.TrimSpace(c.Data)
}

// ViewerHandle is the capability object an embeddable viewer exposes once it
// is ready. Every call may be slow or fail.
type ViewerHandle interface {
	CurrentPage(ctx context.Context) (int, error)
	SelectedContent(ctx context.Context) (Content, error)
	ExtractText(ctx context.Context, page int) (string, error)
	GotoPage(ctx context.Context, page int) error
	Subscribe(fn func(Event)) (unsubscribe func())
}

// SelectionSource yields the user's selected text from one place (the host
// page, an embedded frame, ...).
type SelectionSource interface {
	Name() string
	SelectedText(ctx context.Context) (string, error)
}

// StaticSelection is a SelectionSource whose text was captured elsewhere,
// typically reported by the browser along with the event.
type StaticSelection struct {
	Label string
	Text  string
	Err   error
}

func (s StaticSelection) Name() string { return s.Label }

func (s StaticSelection) SelectedText(ctx context.Context) (string, error) {
	return s.Text, s.Err
}

// IsSelectionEvent reports whether an event type can end a text selection.
func IsSelectionEvent(t EventType) bool {
	switch t {
	case EventSelectionEnd, EventMouseUp, EventDoubleClick, EventContextMenu, EventSelectionChange:
		return true
	}
	return false
}

// IsSelectionKey reports whether a key-up event could have changed the
// selection: shift-extended movement or select-all.
func IsSelectionKey(key string, shift, ctrl bool) bool {
	switch strings.ToLower(key) {
	case "a":
		return ctrl
	case "arrowleft", "arrowright", "arrowup", "arrowdown", "home", "end", "pageup", "pagedown":
		return shift
	case "shift":
		return true
	}
	return false
}
