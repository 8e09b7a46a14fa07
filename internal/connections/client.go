package connections

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/dgallion1/synapse/internal/readctx"
	"golang.org/x/time/rate"
)

const (
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.3
)

// ErrEmptyQuery is returned by Search for blank query text.
var ErrEmptyQuery = errors.New("query text is empty")

// Config configures the backend client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	Attempts      uint
	RetryDelay    time.Duration
	RatePerSecond float64 // 0 disables throttling.
	Burst         int
	StatsWindow   time.Duration
}

// Client talks to the connections backend: semantic search over the
// document library and generated insights for a passage.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	attempts   uint
	delay      time.Duration
	stats      *Stats
	log        *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		attempts:   cfg.Attempts,
		delay:      cfg.RetryDelay,
		stats:      NewStats(cfg.StatsWindow),
		log:        log.With("component", "connections"),
	}
}

// SearchQuery is the body of POST /api/v1/search/semantic.
type SearchQuery struct {
	QueryText           string  `json:"query_text"`
	TopK                int     `json:"top_k"`
	DocumentIDs         []int   `json:"document_ids,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	IncludeMetadata     bool    `json:"include_metadata"`
}

// SearchResult is one matching chunk.
type SearchResult struct {
	ChunkID         int     `json:"chunk_id"`
	DocumentID      int     `json:"document_id"`
	DocumentName    string  `json:"document_name"`
	SimilarityScore float64 `json:"similarity_score"`
	TextChunk       string  `json:"text_chunk"`
	PageNumber      int     `json:"page_number"`
	ChunkIndex      int     `json:"chunk_index"`
	ChunkType       string  `json:"chunk_type,omitempty"`
	HeadingLevel    string  `json:"heading_level,omitempty"`
	SemanticCluster *int    `json:"semantic_cluster,omitempty"`
}

// SearchResponse is the backend's answer to a SearchQuery.
type SearchResponse struct {
	Query           string         `json:"query"`
	TotalResults    int            `json:"total_results"`
	Results         []SearchResult `json:"results"`
	SearchTimeMs    float64        `json:"search_time_ms"`
	EmbeddingTimeMs *float64       `json:"embedding_time_ms,omitempty"`
}

// InsightsRequest is the body of POST /api/v1/insights/generate.
type InsightsRequest struct {
	Text    string `json:"text"`
	Context string `json:"context"`
}

// InsightsResponse carries generated insights.
type InsightsResponse struct {
	Insights string `json:"insights"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// ViewerConfig is the runtime front-end configuration served by the backend.
type ViewerConfig struct {
	ClientID string `json:"adobe_client_id"`
}

// Search runs a semantic search. Zero TopK and SimilarityThreshold take the
// backend defaults. Document names come back without their storage prefix.
func (c *Client) Search(ctx context.Context, q SearchQuery) (*SearchResponse, error) {
	q.QueryText = strings.TrimSpace(q.QueryText)
	if q.QueryText == "" {
		return nil, ErrEmptyQuery
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.SimilarityThreshold <= 0 {
		q.SimilarityThreshold = DefaultSimilarityThreshold
	}

	var resp SearchResponse
	if err := c.do(ctx, "search", http.MethodPost, "/api/v1/search/semantic", q, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Results {
		resp.Results[i].DocumentName = readctx.DisplayName(resp.Results[i].DocumentName)
	}
	return &resp, nil
}

// Insights asks the backend to generate insights for a passage.
func (c *Client) Insights(ctx context.Context, req InsightsRequest) (*InsightsResponse, error) {
	var resp InsightsResponse
	if err := c.do(ctx, "insights", http.MethodPost, "/api/v1/insights/generate", req, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "error" {
		return &resp, fmt.Errorf("insights: %s", resp.Error)
	}
	return &resp, nil
}

// ViewerConfig fetches the viewer client id from the backend.
func (c *Client) ViewerConfig(ctx context.Context) (ViewerConfig, error) {
	var cfg ViewerConfig
	err := c.do(ctx, "config", http.MethodGet, "/api/v1/config/", nil, &cfg)
	return cfg, err
}

// Stats returns rolling latency stats per endpoint.
func (c *Client) Stats() map[string]LatencySnapshot {
	return c.stats.Snapshot()
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", endpoint, err)
		}
		body = b
	}

	start := time.Now()
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			return c.once(ctx, method, path, body, out)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("retrying backend call", "endpoint", endpoint, "attempt", n+1, "error", err)
		}),
	)
	c.stats.Record(endpoint, time.Since(start), err != nil)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RetryableError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
