package connections

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

func testClient(url string) *Client {
	return NewClient(Config{
		BaseURL:    url,
		Attempts:   3,
		RetryDelay: time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSearch_AppliesDefaultsAndCleansNames(t *testing.T) {
	var got SearchQuery
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/search/semantic" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(SearchResponse{
			Query:        got.QueryText,
			TotalResults: 1,
			Results: []SearchResult{{
				ChunkID: 7, DocumentID: 2, DocumentName: "doc_2_guide.pdf",
				SimilarityScore: 0.82, TextChunk: "Trains leave hourly.", PageNumber: 4,
			}},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	resp, err := c.Search(context.Background(), SearchQuery{QueryText: "  trains  ", DocumentIDs: []int{2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.QueryText != "trains" || got.TopK != DefaultTopK || got.SimilarityThreshold != DefaultSimilarityThreshold {
		t.Errorf("expected trimmed query with defaults, got %+v", got)
	}
	if len(got.DocumentIDs) != 1 || got.DocumentIDs[0] != 2 {
		t.Errorf("expected document filter [2], got %v", got.DocumentIDs)
	}
	if len(resp.Results) != 1 || resp.Results[0].DocumentName != "guide.pdf" {
		t.Errorf("expected cleaned document name, got %+v", resp.Results)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	c := testClient("http://127.0.0.1:1")
	if _, err := c.Search(context.Background(), SearchQuery{QueryText: "   "}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestDo_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(InsightsResponse{Insights: "Nice has a rail hub.", Status: "success"})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	resp, err := c.Insights(context.Background(), InsightsRequest{Text: "Nice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Insights != "Nice has a rail hub." {
		t.Errorf("unexpected insights %q", resp.Insights)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestDo_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Insights(context.Background(), InsightsRequest{Text: "Nice"})
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
	if s := c.Stats()["insights"]; s.Count != 1 || s.Errors != 1 {
		t.Errorf("expected one failed call in stats, got %+v", s)
	}
}

func TestDo_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Search(context.Background(), SearchQuery{QueryText: "trains"})
	if err == nil || IsRetryable(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 attempt, got %d", n)
	}
}

func TestInsights_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(InsightsResponse{Status: "error", Error: "model unavailable"})
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).Insights(context.Background(), InsightsRequest{Text: "x"})
	if err == nil {
		t.Fatal("expected error for error status")
	}
	if resp == nil || resp.Error != "model unavailable" {
		t.Errorf("expected response with error detail, got %+v", resp)
	}
}

func TestViewerConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/config/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"adobe_client_id":"abc123"}`))
	}))
	defer srv.Close()

	cfg, err := testClient(srv.URL + "/").ViewerConfig(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ClientID != "abc123" {
		t.Errorf("expected client id %q, got %q", "abc123", cfg.ClientID)
	}
}

func TestRetryableError_Message(t *testing.T) {
	err := &RetryableError{StatusCode: 503, Message: "busy"}
	if err.Error() != "retryable error (status 503): busy" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("expected plain error not to be retryable")
	}
}

func TestRetryableError_TruncatesOnRuneBoundary(t *testing.T) {
	body := "a" + strings.Repeat("é", 150)
	msg := (&RetryableError{StatusCode: 502, Message: body}).Error()
	if !utf8.ValidString(msg) {
		t.Fatalf("expected valid UTF-8, got %q", msg)
	}
	if !strings.HasSuffix(msg, "...") {
		t.Errorf("expected truncation marker, got %q", msg)
	}
	if got := truncate(body, 200); got != "a"+strings.Repeat("é", 99)+"..." {
		t.Errorf("unexpected cut %q", got)
	}
	if got := truncate("short", 200); got != "short" {
		t.Errorf("expected short text unchanged, got %q", got)
	}
}
