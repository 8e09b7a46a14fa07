package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgallion1/synapse/internal/chunker"
	"github.com/dgallion1/synapse/internal/parser"
	"github.com/dgallion1/synapse/internal/readctx"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var (
	// ErrUnsupported is returned for file types no parser handles.
	ErrUnsupported = errors.New("unsupported file type")
	// ErrTooLarge is returned for uploads above the configured limit.
	ErrTooLarge = errors.New("file too large")
	// ErrInvalid is returned for empty or corrupt uploads.
	ErrInvalid = errors.New("invalid document")
	// ErrQueueFull is returned when the parse queue cannot take more work.
	ErrQueueFull = errors.New("parse queue is full")
)

// Config controls the parse worker pool and upload limits.
type Config struct {
	Workers              int
	QueueSize            int
	MaxUploadBytes       int64
	FailedTTL            time.Duration
	PDFFallbackPdftotext bool
	Pages                chunker.Config
}

// Library accepts uploads, parses them in the background and serves page
// text to viewers.
type Library struct {
	store *Store
	queue chan *Document
	log   *slog.Logger
	cfg   Config
	seq   atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a library. Call Start to launch the workers.
func New(cfg Config, log *slog.Logger) *Library {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.FailedTTL <= 0 {
		cfg.FailedTTL = time.Hour
	}
	return &Library{
		store: NewStore(cfg.FailedTTL),
		queue: make(chan *Document, cfg.QueueSize),
		log:   log.With("component", "library"),
		cfg:   cfg,
	}
}

// Start launches parse workers and the store cleanup loop.
func (l *Library) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	for range l.cfg.Workers {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case doc, ok := <-l.queue:
					if !ok {
						return
					}
					l.process(workerCtx, doc)
				}
			}
		}()
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				l.store.Cleanup()
			}
		}
	}()
}

// Stop cancels the workers and waits for them to exit.
func (l *Library) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// Submit validates an upload and queues it for parsing. If the same content
// was uploaded before, the existing document is returned with duplicate set.
func (l *Library) Submit(filename string, data []byte) (doc *Document, duplicate bool, err error) {
	name := filepath.Base(filename)
	if !parser.IsSupportedExtension(name) {
		return nil, false, fmt.Errorf("%s: %w", filepath.Ext(name), ErrUnsupported)
	}
	if len(data) == 0 {
		return nil, false, fmt.Errorf("%s is empty: %w", name, ErrInvalid)
	}
	if l.cfg.MaxUploadBytes > 0 && int64(len(data)) > l.cfg.MaxUploadBytes {
		return nil, false, fmt.Errorf("%s is %d bytes, limit %d: %w", name, len(data), l.cfg.MaxUploadBytes, ErrTooLarge)
	}

	declared := 0
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		n, err := api.PageCount(bytes.NewReader(data), nil)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %v: %w", name, err, ErrInvalid)
		}
		declared = n
	}

	id := strconv.FormatInt(l.seq.Add(1), 10)
	stored := fmt.Sprintf("doc_%s_%s", id, name)
	now := time.Now()
	candidate := &Document{
		ID:            id,
		StoredName:    stored,
		DisplayName:   readctx.DisplayName(stored),
		Status:        StatusQueued,
		Phase:         "queued",
		ContentHash:   ContentHashHex(data),
		CreatedAt:     now,
		UpdatedAt:     now,
		declaredPages: declared,
		fileData:      data,
	}

	doc, created := l.store.PutIfAbsent(candidate)
	if !created {
		l.log.Info("duplicate upload", "filename", name, "existing_id", doc.ID)
		return doc, true, nil
	}

	select {
	case l.queue <- doc:
		l.log.Info("document queued", "doc_id", doc.ID, "filename", name, "bytes", len(data))
		return doc, false, nil
	default:
		l.store.Delete(doc.ID)
		return nil, false, fmt.Errorf("%w (%d)", ErrQueueFull, l.cfg.QueueSize)
	}
}

// Get returns a document by ID.
func (l *Library) Get(id string) (*Document, error) {
	doc := l.store.Get(id)
	if doc == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return doc, nil
}

// List returns all documents ordered by upload time.
func (l *Library) List() []*Document {
	return l.store.List()
}

// Delete removes a document.
func (l *Library) Delete(id string) error {
	if !l.store.Delete(id) {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	l.log.Info("document deleted", "doc_id", id)
	return nil
}

// QueueDepth returns current queue depth.
func (l *Library) QueueDepth() int {
	return len(l.queue)
}

// Wait blocks until the document has finished parsing or ctx ends.
func (l *Library) Wait(ctx context.Context, id string) (*Document, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		doc, err := l.Get(id)
		if err != nil {
			return nil, err
		}
		switch doc.Snapshot().Status {
		case StatusReady:
			return doc, nil
		case StatusFailed:
			return doc, fmt.Errorf("document %s failed to parse", id)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
