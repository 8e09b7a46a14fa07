package library

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/synapse/internal/doctree"
)

var (
	// ErrNotFound is returned for unknown document IDs.
	ErrNotFound = errors.New("document not found")
	// ErrNotReady is returned when page text is requested before parsing finished.
	ErrNotReady = errors.New("document not ready")
	// ErrPageRange is returned for page numbers outside the document.
	ErrPageRange = errors.New("page out of range")
)

// Status represents the processing state of an uploaded document.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusParsing Status = "parsing"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Document is one uploaded file and, once parsed, its page texts.
type Document struct {
	mu sync.Mutex

	ID          string `json:"id"`
	StoredName  string `json:"stored_name"`
	DisplayName string `json:"display_name"`

	Status Status `json:"status"`
	Phase  string `json:"phase"`

	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Page count reported by the PDF structure at upload time; 0 for other formats.
	declaredPages int

	fileData []byte
	pages    []doctree.Page
	errors   []string
}

// SetStatus updates document status atomically.
func (d *Document) SetStatus(status Status, phase string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Status = status
	d.Phase = phase
	d.UpdatedAt = time.Now()
}

// AddError records an error.
func (d *Document) AddError(err string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = append(d.errors, err)
	d.UpdatedAt = time.Now()
}

// SetPages stores the parsed pages and releases the raw upload.
func (d *Document) SetPages(pages []doctree.Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages = pages
	d.fileData = nil
	d.UpdatedAt = time.Now()
}

// FileData returns the raw upload, or nil once parsed.
func (d *Document) FileData() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fileData
}

// Ready reports whether page text is available.
func (d *Document) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Status == StatusReady
}

// PageCount returns the number of pages, or 0 before parsing finished.
func (d *Document) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pages)
}

// PageText returns the text of a 1-based page. An empty string is a valid
// result for pages without extractable text.
func (d *Document) PageText(page int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Status != StatusReady {
		return "", ErrNotReady
	}
	if page < 1 || page > len(d.pages) {
		return "", fmt.Errorf("page %d of %d: %w", page, len(d.pages), ErrPageRange)
	}
	return d.pages[page-1].Text, nil
}

// Snapshot is a read-only, JSON-safe copy of document state.
type Snapshot struct {
	ID          string    `json:"id"`
	StoredName  string    `json:"stored_name"`
	DisplayName string    `json:"display_name"`
	Status      Status    `json:"status"`
	Phase       string    `json:"phase"`
	PageCount   int       `json:"page_count"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	Errors      []string  `json:"errors"`
}

// Snapshot returns a JSON-safe copy of the document state.
func (d *Document) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	errs := make([]string, len(d.errors))
	copy(errs, d.errors)
	count := len(d.pages)
	if count == 0 {
		count = d.declaredPages
	}
	return Snapshot{
		ID:          d.ID,
		StoredName:  d.StoredName,
		DisplayName: d.DisplayName,
		Status:      d.Status,
		Phase:       d.Phase,
		PageCount:   count,
		ContentHash: d.ContentHash,
		CreatedAt:   d.CreatedAt,
		Errors:      errs,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
