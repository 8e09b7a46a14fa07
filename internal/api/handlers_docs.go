package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/synapse/internal/library"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.Library.MaxUploadBytes
	// Extra 1MB for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	_, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, code := s.submit(header)
	if res.Error != "" {
		jsonError(w, res.Error, code)
		return
	}
	writeJSON(w, code, res)
}

func (s *Server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Library.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	results := make([]uploadResult, 0, len(files))
	for _, fh := range files {
		res, _ := s.submit(fh)
		results = append(results, res)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"documents": results})
}

type uploadResult struct {
	Filename  string            `json:"filename"`
	Document  *library.Snapshot `json:"document,omitempty"`
	Duplicate bool              `json:"duplicate,omitempty"`
	PollURL   string            `json:"poll_url,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// submit reads one uploaded file into the library and reports the outcome
// with the HTTP status it maps to.
func (s *Server) submit(fh *multipart.FileHeader) (uploadResult, int) {
	filename := sanitizeFilename(fh.Filename)
	res := uploadResult{Filename: filename}

	f, err := fh.Open()
	if err != nil {
		res.Error = "failed to open file"
		return res, http.StatusBadRequest
	}
	maxBytes := s.cfg.Library.MaxUploadBytes
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	f.Close()
	if err != nil {
		res.Error = "failed to read file"
		return res, http.StatusInternalServerError
	}

	doc, dup, err := s.library.Submit(filename, data)
	if err != nil {
		res.Error = err.Error()
		return res, uploadErrorStatus(err)
	}
	snap := doc.Snapshot()
	res.Document = &snap
	res.Duplicate = dup
	res.PollURL = fmt.Sprintf("/api/documents/%s", doc.ID)
	if dup {
		return res, http.StatusOK
	}
	return res, http.StatusAccepted
}

func uploadErrorStatus(err error) int {
	switch {
	case errors.Is(err, library.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, library.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, library.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, library.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.library.List()
	out := make([]library.Snapshot, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":   out,
		"queue_depth": s.library.QueueDepth(),
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.library.Get(chi.URLParam(r, "docID"))
	if err != nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, doc.Snapshot())
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	doc, err := s.library.Get(chi.URLParam(r, "docID"))
	if err != nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		jsonError(w, "page must be a number", http.StatusBadRequest)
		return
	}

	text, err := doc.PageText(page)
	switch {
	case errors.Is(err, library.ErrNotReady):
		jsonError(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, library.ErrPageRange):
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": doc.ID,
		"page_number": page,
		"page_count":  doc.PageCount(),
		"text":        text,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if err := s.library.Delete(docID); err != nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": docID})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
