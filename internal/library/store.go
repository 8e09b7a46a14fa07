package library

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Store is a thread-safe in-memory document registry with a content-hash
// index for duplicate detection.
type Store struct {
	mu     sync.Mutex
	docs   map[string]*Document
	byHash map[string]string
	ttl    time.Duration
}

// NewStore creates a store. Failed documents older than ttl are evicted by
// Cleanup.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		docs:   make(map[string]*Document),
		byHash: make(map[string]string),
		ttl:    ttl,
	}
}

// PutIfAbsent stores doc unless a document with the same content hash
// exists, in which case the existing document is returned.
func (s *Store) PutIfAbsent(doc *Document) (*Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byHash[doc.ContentHash]; ok {
		if existing, ok := s.docs[id]; ok {
			return existing, false
		}
	}
	s.docs[doc.ID] = doc
	s.byHash[doc.ContentHash] = doc.ID
	return doc, true
}

func (s *Store) Get(id string) *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[id]
}

// Delete removes a document. It reports whether the document existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return false
	}
	delete(s.docs, id)
	if s.byHash[doc.ContentHash] == id {
		delete(s.byHash, doc.ContentHash)
	}
	return true
}

// List returns all documents ordered by creation time.
func (s *Store) List() []*Document {
	s.mu.Lock()
	out := make([]*Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b *Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Cleanup removes failed documents that have not changed within the TTL so
// the same file can be uploaded again.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, doc := range s.docs {
		doc.mu.Lock()
		expired := doc.Status == StatusFailed && now.Sub(doc.UpdatedAt) > s.ttl
		hash := doc.ContentHash
		doc.mu.Unlock()
		if !expired {
			continue
		}
		delete(s.docs, id)
		if s.byHash[hash] == id {
			delete(s.byHash, hash)
		}
	}
}
