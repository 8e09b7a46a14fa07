package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgallion1/synapse/internal/library"
)

type fakeDocs map[string]*library.Document

func (f fakeDocs) Get(id string) (*library.Document, error) {
	doc, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, library.ErrNotFound)
	}
	return doc, nil
}

func newTestRegistry(t *testing.T, ttl time.Duration) *Registry {
	t.Helper()
	pending := &library.Document{ID: "2", StoredName: "doc_2_draft.txt", Status: library.StatusParsing}
	r := NewRegistry(fakeDocs{"1": readyDoc(), "2": pending}, &recorder{}, nil, testConfig(), ttl, discardLogger())
	t.Cleanup(r.Stop)
	return r
}

func TestRegistry_CreateErrors(t *testing.T) {
	r := newTestRegistry(t, time.Hour)

	if _, err := r.Create("missing", nil); !errors.Is(err, library.ErrNotFound) {
		t.Errorf("expected library.ErrNotFound, got %v", err)
	}
	if _, err := r.Create("2", nil); !errors.Is(err, library.ErrNotReady) {
		t.Errorf("expected library.ErrNotReady, got %v", err)
	}
	if _, err := r.Create("1", []string{"3", "abc"}); !errors.Is(err, ErrInvalidScope) {
		t.Errorf("expected ErrInvalidScope, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected no sessions, got %d", r.Len())
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := newTestRegistry(t, time.Hour)
	var closed []string
	r.OnClose(func(id string) { closed = append(closed, id) })

	a, err := r.Create("1", []string{"1", "4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := r.Create("1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("expected distinct session ids")
	}
	if len(a.scope) != 2 || a.scope[1] != 4 {
		t.Errorf("expected parsed scope [1 4], got %v", a.scope)
	}

	got, err := r.Get(a.ID)
	if err != nil || got != a {
		t.Fatalf("expected to get session a, got %v, %v", got, err)
	}
	if list := r.List(); len(list) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(list))
	}

	if err := r.Delete(a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Get(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := r.Delete(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if len(closed) != 1 || closed[0] != a.ID {
		t.Errorf("expected close hook for %s, got %v", a.ID, closed)
	}
}

func TestRegistry_CleanupExpiresIdleSessions(t *testing.T) {
	r := newTestRegistry(t, 30*time.Millisecond)
	idle, _ := r.Create("1", nil)
	time.Sleep(60 * time.Millisecond)
	active, _ := r.Create("1", nil)

	r.Cleanup()
	if _, err := r.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected idle session to expire, got %v", err)
	}
	if _, err := r.Get(active.ID); err != nil {
		t.Errorf("expected active session to survive, got %v", err)
	}
}

func TestRegistry_SetConfigAppliesToNewSessions(t *testing.T) {
	r := newTestRegistry(t, time.Hour)
	before, _ := r.Create("1", nil)

	cfg := r.Config()
	cfg.TopK = 9
	r.SetConfig(cfg)
	after, _ := r.Create("1", nil)

	if before.cfg.TopK != 5 {
		t.Errorf("expected existing session to keep top_k 5, got %d", before.cfg.TopK)
	}
	if after.cfg.TopK != 9 {
		t.Errorf("expected new session to use top_k 9, got %d", after.cfg.TopK)
	}
}

func TestParseScope(t *testing.T) {
	if ids, err := parseScope(nil); err != nil || ids != nil {
		t.Errorf("expected nil scope, got %v, %v", ids, err)
	}
	if ids, err := parseScope([]string{"2", "10"}); err != nil || len(ids) != 2 || ids[1] != 10 {
		t.Errorf("unexpected scope %v, %v", ids, err)
	}
	if _, err := parseScope([]string{"0"}); !errors.Is(err, ErrInvalidScope) {
		t.Errorf("expected ErrInvalidScope for 0, got %v", err)
	}
}
