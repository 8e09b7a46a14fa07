package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/synapse/internal/connections"
	"github.com/dgallion1/synapse/internal/readctx"
	"github.com/dgallion1/synapse/internal/stream"
	"github.com/dgallion1/synapse/internal/viewer"
	"golang.org/x/sync/errgroup"
)

// Lookup is the backend queried for every new context record.
type Lookup interface {
	Search(ctx context.Context, q connections.SearchQuery) (*connections.SearchResponse, error)
	Insights(ctx context.Context, req connections.InsightsRequest) (*connections.InsightsResponse, error)
}

// Publisher delivers stream messages to the browser.
type Publisher interface {
	Publish(ctx context.Context, msg stream.Message) error
}

// Config tunes one session.
type Config struct {
	Reading             readctx.Config
	TopK                int
	SimilarityThreshold float64
	LookupTimeout       time.Duration
	Insights            bool
}

// outboxSize bounds stream events queued for delivery per session.
const outboxSize = 64

// Document is what a session needs to know about the document it shows.
type Document struct {
	ID         string
	StoredName string
	Pages      viewer.Pages
}

// Session is one reader looking at one document: the viewer widget, the
// context detector and dispatcher driving it, and the lookups triggered by
// each context change.
type Session struct {
	ID        string
	Document  readctx.Document
	CreatedAt time.Time

	widget  *viewer.Widget
	disp    *readctx.Dispatcher
	tracker *readctx.Tracker
	pub     Publisher
	lookup  Lookup
	cfg     Config
	scope   []int
	log     *slog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	outbox      chan stream.Message
	delivered   chan struct{}

	mu           sync.Mutex
	lastSeen     time.Time
	currentID    string
	lookupCancel context.CancelFunc
	lookups      sync.WaitGroup
	closed       bool
}

// ConnectionsPayload is the body of a "connections" stream event.
type ConnectionsPayload struct {
	RecordID string                     `json:"record_id"`
	Query    string                     `json:"query"`
	Results  []connections.SearchResult `json:"results"`
	Insights string                     `json:"insights,omitempty"`
}

// ContextPayload is the body of a "context" stream event. A nil Record
// means the context was cleared.
type ContextPayload struct {
	Record *readctx.Record `json:"record"`
}

// New creates a session in the loading state. scope limits searches to the
// given backend document ids; nil searches everything.
func New(ctx context.Context, id string, doc Document, scope []int, cfg Config, pub Publisher, lookup Lookup, log *slog.Logger) *Session {
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:        id,
		Document:  readctx.Document{ID: doc.ID, Name: doc.StoredName},
		CreatedAt: time.Now(),
		pub:       pub,
		lookup:    lookup,
		cfg:       cfg,
		scope:     scope,
		log:       log.With("session_id", id, "doc_id", doc.ID),
		ctx:       sctx,
		cancel:    cancel,
		lastSeen:  time.Now(),
		outbox:    make(chan stream.Message, outboxSize),
		delivered: make(chan struct{}),
	}

	s.widget = viewer.New(doc.Pages, s.navigate)
	det := readctx.NewDetector(s.Document, cfg.Reading, s.log)
	s.disp = readctx.NewDispatcher(det, s.consume, s.log)
	s.tracker = readctx.NewTracker(s.disp)
	s.unsubscribe = s.widget.Subscribe(s.onViewerEvent)
	go s.deliver()
	return s
}

// onViewerEvent routes viewer notifications into the dispatcher and tracker.
// Any event that carries a page counts as a page report.
func (s *Session) onViewerEvent(ev readctx.Event) {
	if ev.Page > 0 {
		s.disp.PageChanged(ev.Page)
		s.tracker.Signal()
		return
	}
	switch ev.Type {
	case readctx.EventPageRendered, readctx.EventScroll, readctx.EventRenderDone:
		s.tracker.Signal()
	}
}

// HandleEvent applies one browser report.
func (s *Session) HandleEvent(ev BrowserEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	s.touch()

	if ev.ViewerSelection != nil {
		s.widget.SetSelection(*ev.ViewerSelection)
	}
	if s.widget.Apply(readctx.Event{Type: ev.Type, Page: ev.Page, At: ev.At}) {
		s.onReady()
	}

	if ev.selectionTrigger() && s.widget.Ready() {
		s.disp.Select(s.ctx, ev.sources()...)
	}
	return nil
}

func (s *Session) onReady() {
	s.log.Info("viewer ready")
	s.disp.Attach(s.widget)
	s.tracker.Start(s.ctx)
	s.publish(stream.EventStatus, map[string]string{"status": "ready"})
	s.tracker.Signal()
}

// ExitSelection leaves selection mode on an explicit user action.
func (s *Session) ExitSelection() {
	s.touch()
	s.disp.ExitSelection()
}

// Goto navigates the viewer, typically to a search result's page.
func (s *Session) Goto(ctx context.Context, page int) error {
	s.touch()
	if !s.widget.Ready() {
		return viewer.ErrNotReady
	}
	return s.disp.Goto(ctx, page)
}

// Info is a JSON-safe view of the session.
type Info struct {
	ID           string          `json:"id"`
	DocumentID   string          `json:"document_id"`
	DocumentName string          `json:"document_name"`
	Status       string          `json:"status"`
	Context      readctx.Stats   `json:"context"`
	Current      *readctx.Record `json:"current"`
	CreatedAt    time.Time       `json:"created_at"`
	LastSeen     time.Time       `json:"last_seen"`
}

func (s *Session) Info() Info {
	status := "loading"
	if s.widget.Ready() {
		status = "ready"
	}
	s.mu.Lock()
	lastSeen := s.lastSeen
	s.mu.Unlock()
	return Info{
		ID:           s.ID,
		DocumentID:   s.Document.ID,
		DocumentName: readctx.DisplayName(s.Document.Name),
		Status:       status,
		Context:      s.disp.Snapshot(),
		Current:      s.disp.Current(),
		CreatedAt:    s.CreatedAt,
		LastSeen:     lastSeen,
	}
}

// LastSeen returns the time of the last browser interaction.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Close stops timers and pending lookups. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.lookupCancel != nil {
		s.lookupCancel()
	}
	s.mu.Unlock()

	s.cancel()
	s.tracker.Stop()
	s.unsubscribe()
	s.lookups.Wait()
	<-s.delivered
	s.log.Info("session closed")
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

// consume receives every forwarded record from the dispatcher. It runs under
// the dispatcher's lock and must not call back into it.
func (s *Session) consume(rec *readctx.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if rec != nil && rec.ID == s.currentID {
		return
	}

	if s.lookupCancel != nil {
		s.lookupCancel()
		s.lookupCancel = nil
	}
	s.currentID = ""
	if rec != nil {
		s.currentID = rec.ID
	}
	s.publish(stream.EventContext, ContextPayload{Record: rec})
	if rec == nil || s.lookup == nil {
		return
	}

	timeout := s.cfg.LookupTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	lctx, cancel := context.WithTimeout(s.ctx, timeout)
	s.lookupCancel = cancel
	s.lookups.Add(1)
	go func() {
		defer s.lookups.Done()
		defer cancel()
		s.runLookup(lctx, rec)
	}()
}

// runLookup queries search and insights concurrently and publishes the
// combined result unless a newer record superseded this one.
func (s *Session) runLookup(ctx context.Context, rec *readctx.Record) {
	log := s.log.With("record_id", rec.ID)
	payload := ConnectionsPayload{RecordID: rec.ID, Query: rec.QueryText, Results: []connections.SearchResult{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := s.lookup.Search(gctx, connections.SearchQuery{
			QueryText:           rec.QueryText,
			TopK:                s.cfg.TopK,
			DocumentIDs:         s.scope,
			SimilarityThreshold: s.cfg.SimilarityThreshold,
			IncludeMetadata:     true,
		})
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			log.Warn("search failed", "error", err)
			return nil
		}
		payload.Results = resp.Results
		return nil
	})
	if s.cfg.Insights {
		g.Go(func() error {
			resp, err := s.lookup.Insights(gctx, connections.InsightsRequest{
				Text:    rec.QueryText,
				Context: fmt.Sprintf("%s, page %d", rec.Source.DocumentName, rec.Source.PageNumber),
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("insights failed", "error", err)
				return nil
			}
			payload.Insights = resp.Insights
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Debug("lookup abandoned", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.currentID != rec.ID {
		log.Debug("discarding superseded lookup")
		return
	}
	s.publish(stream.EventConnections, payload)
}

func (s *Session) navigate(page int) {
	s.publish(stream.EventNavigate, map[string]int{"page": page})
}

// publish queues a stream event for the deliver goroutine. It never calls
// the publisher itself.
func (s *Session) publish(event string, v any) {
	if s.pub == nil {
		return
	}
	msg, err := stream.NewMessage(s.ID, event, v)
	if err != nil {
		s.log.Error("encode stream event", "event", event, "error", err)
		return
	}
	select {
	case s.outbox <- msg:
	case <-s.ctx.Done():
	}
}

// deliver hands queued events to the publisher in order until the session
// closes.
func (s *Session) deliver() {
	defer close(s.delivered)
	for {
		select {
		case msg := <-s.outbox:
			if err := s.pub.Publish(context.WithoutCancel(s.ctx), msg); err != nil {
				s.log.Warn("publish stream event", "event", msg.Event, "error", err)
			}
		case <-s.ctx.Done():
			return
		}
	}
}
