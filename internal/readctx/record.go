package readctx

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies which signal produced a Record.
type Kind string

const (
	KindSelection       Kind = "selection"
	KindReadingPosition Kind = "reading_position"
)

// Source is the provenance of a Record.
type Source struct {
	Kind         Kind      `json:"kind"`
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	PageNumber   int       `json:"page_number"`
	Timestamp    time.Time `json:"timestamp"`
}

// Record is a single context update handed to the consumer.
type Record struct {
	ID        string `json:"id"`
	QueryText string `json:"query_text"`
	Source    Source `json:"source"`
}

// Document describes the document a viewer is showing.
type Document struct {
	ID   string
	Name string
}

func newRecord(kind Kind, doc Document, page int, text string, at time.Time) *Record {
	return &Record{
		ID:        recordID(kind, doc.ID, page, at),
		QueryText: text,
		Source: Source{
			Kind:         kind,
			DocumentID:   doc.ID,
			DocumentName: DisplayName(doc.Name),
			PageNumber:   page,
			Timestamp:    at,
		},
	}
}

func recordID(kind Kind, docID string, page int, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d-%d", kind, docID, page, at.UnixMilli())
}

// DisplayName strips the "doc_<n>_" storage prefix from a file name.
// "doc_5_travel.pdf" becomes "travel.pdf".
func DisplayName(name string) string {
	if !strings.HasPrefix(name, "doc_") {
		return name
	}
	parts := strings.SplitN(name, "_", 3)
	if len(parts) < 3 || parts[2] == "" {
		return name
	}
	for _, r := range parts[1] {
		if r < '0' || r > '9' {
			return name
		}
	}
	return parts[2]
}
