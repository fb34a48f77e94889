// CLAUDE:SUMMARY Cross-encoder HTTP scorer: (query, documents) in, relevance scores out, graceful absence.
// Package rerank scores (query, passage) pairs through a cross-encoder
// served behind a /rerank HTTP endpoint (Jina/Cohere-compatible shape).
//
// The model itself is a black box; an unconfigured or unreachable scorer
// degrades to the pre-rerank order at the call site.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/savoir/fault"
)

// Config configures the reranker client.
type Config struct {
	// Endpoint is the base URL of the rerank server. Empty disables
	// reranking entirely.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Model is the cross-encoder model name.
	Model string `json:"model" yaml:"model"`

	// Timeout per request. Default: 30s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Client calls the rerank endpoint.
type Client struct {
	endpoint string
	model    string
	client   *http.Client
}

// New creates a Client. A nil client is returned when no endpoint is
// configured; callers check Available.
func New(cfg Config) *Client {
	cfg.defaults()
	if cfg.Endpoint == "" {
		return nil
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Available reports whether reranking is configured.
func (c *Client) Available() bool { return c != nil }

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score returns one relevance score per document, in document order.
func (c *Client) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if !c.Available() {
		return nil, fault.Transientf("rerank: no endpoint configured")
	}
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Model: c.model, Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fault.Transientf("rerank: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.Transientf("rerank: http %d", resp.StatusCode)
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fault.Transientf("rerank: decode: %v", err)
	}

	scores := make([]float64, len(documents))
	seen := make([]bool, len(documents))
	for _, r := range out.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fault.Transientf("rerank: index %d out of range", r.Index)
		}
		scores[r.Index] = r.RelevanceScore
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fault.Transientf("rerank: missing score for document %d", i)
		}
	}
	return scores, nil
}
