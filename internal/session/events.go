package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgallion1/synapse/internal/readctx"
)

// ErrInvalidEvent is returned for browser reports that cannot be applied.
var ErrInvalidEvent = errors.New("invalid event")

// FrameSelection is the selection found in one embedded frame.
type FrameSelection struct {
	Text        string `json:"text"`
	CrossOrigin bool   `json:"cross_origin,omitempty"`
}

// BrowserEvent is one report posted by the page hosting the viewer.
type BrowserEvent struct {
	Type readctx.EventType `json:"type"`
	Page int               `json:"page,omitempty"`
	At   time.Time         `json:"at,omitempty"`

	// ViewerSelection is the viewer's native selection when the browser
	// could read it. Nil leaves the previous value.
	ViewerSelection *string          `json:"viewer_selection,omitempty"`
	Selection       string           `json:"selection,omitempty"`
	Frames          []FrameSelection `json:"frames,omitempty"`

	Key   string `json:"key,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
}

func (e BrowserEvent) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidEvent)
	}
	if e.Page < 0 {
		return fmt.Errorf("%w: page %d", ErrInvalidEvent, e.Page)
	}
	return nil
}

// selectionTrigger reports whether the event may have ended a selection.
func (e BrowserEvent) selectionTrigger() bool {
	if e.Type == readctx.EventKeyUp {
		return readctx.IsSelectionKey(e.Key, e.Shift, e.Ctrl)
	}
	return readctx.IsSelectionEvent(e.Type)
}

// sources lists the non-viewer selection sources in priority order: the
// host page, then each frame.
func (e BrowserEvent) sources() []readctx.SelectionSource {
	out := []readctx.SelectionSource{readctx.StaticSelection{Label: "host", Text: e.Selection}}
	for i, f := range e.Frames {
		src := readctx.StaticSelection{Label: fmt.Sprintf("frame-%d", i), Text: f.Text}
		if f.CrossOrigin {
			src.Err = readctx.ErrCrossOrigin
		}
		out = append(out, src)
	}
	return out
}
