package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgallion1/synapse/internal/library"
	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrInvalidScope = errors.New("invalid search scope")
)

// Documents resolves library documents for new sessions.
type Documents interface {
	Get(id string) (*library.Document, error)
}

// Registry is a thread-safe set of live sessions with idle eviction.
type Registry struct {
	docs   Documents
	pub    Publisher
	lookup Lookup
	log    *slog.Logger
	cfg    atomic.Pointer[Config]

	mu       sync.Mutex
	sessions map[string]*Session
	idleTTL  time.Duration
	onClose  func(id string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry. Sessions idle longer than idleTTL are
// closed by the cleanup loop started in Start.
func NewRegistry(docs Documents, pub Publisher, lookup Lookup, cfg Config, idleTTL time.Duration, log *slog.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		docs:     docs,
		pub:      pub,
		lookup:   lookup,
		log:      log.With("component", "sessions"),
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
		ctx:      ctx,
		cancel:   cancel,
	}
	r.cfg.Store(&cfg)
	return r
}

// SetConfig replaces the configuration used for sessions created afterwards.
func (r *Registry) SetConfig(cfg Config) {
	r.cfg.Store(&cfg)
}

func (r *Registry) Config() Config {
	return *r.cfg.Load()
}

// OnClose registers fn to run after a session is deleted or expires.
func (r *Registry) OnClose(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = fn
}

func (r *Registry) closeSession(s *Session) {
	s.Close()
	r.mu.Lock()
	fn := r.onClose
	r.mu.Unlock()
	if fn != nil {
		fn(s.ID)
	}
}

// Start launches the idle cleanup loop.
func (r *Registry) Start(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Stop closes every session and waits for the cleanup loop.
func (r *Registry) Stop() {
	r.cancel()
	r.wg.Wait()

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		r.closeSession(s)
	}
}

// Create opens a session on a ready document. scope lists the document ids
// searches are restricted to; empty means all documents.
func (r *Registry) Create(docID string, scope []string) (*Session, error) {
	doc, err := r.docs.Get(docID)
	if err != nil {
		return nil, err
	}
	if !doc.Ready() {
		return nil, fmt.Errorf("document %s: %w", docID, library.ErrNotReady)
	}
	ids, err := parseScope(scope)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := New(r.ctx, id, Document{ID: doc.ID, StoredName: doc.StoredName, Pages: doc}, ids, r.Config(), r.pub, r.lookup, r.log)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	r.log.Info("session created", "session_id", id, "doc_id", doc.ID, "pages", doc.PageCount())
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete closes and removes a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	r.closeSession(s)
	return nil
}

// List returns session infos ordered by creation time.
func (r *Registry) List() []Info {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Cleanup closes sessions idle longer than the TTL.
func (r *Registry) Cleanup() {
	if r.idleTTL <= 0 {
		return
	}
	now := time.Now()
	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.LastSeen()) > r.idleTTL {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		r.log.Info("session expired", "session_id", s.ID)
		r.closeSession(s)
	}
}

func parseScope(scope []string) ([]int, error) {
	if len(scope) == 0 {
		return nil, nil
	}
	ids := make([]int, 0, len(scope))
	for _, raw := range scope {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidScope, raw)
		}
		ids = append(ids, n)
	}
	return ids, nil
}
