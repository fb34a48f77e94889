// CLAUDE:SUMMARY Ollama-style generate client: prompt in, text out, with per-call model and options.
// Package llm is the text-to-text client for the local or remote LLM
// endpoint.
//
// Callers are query synthesis and competitor discovery in discovery,
// metadata enrichment in the pipeline, and query expansion in retrieval.
// All treat the model as a black box; the JSON-shaped outputs (synthesis,
// competitors, enrichment) degrade on parse failure, they never propagate.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/savoir/fault"
)

// Options tunes a single generation call.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// Client calls an Ollama-compatible /api/generate endpoint.
type Client struct {
	host   string
	client *http.Client
}

// Config configures the LLM client.
type Config struct {
	// Host is the endpoint base URL. Default: http://localhost:11434.
	Host string `json:"host" yaml:"host"`

	// QueryModel is used for query synthesis and expansion.
	QueryModel string `json:"query_model" yaml:"query_model"`

	// EnrichModel is used for metadata enrichment. May equal QueryModel.
	EnrichModel string `json:"enrich_model" yaml:"enrich_model"`

	// Timeout per generation call. Default: 60s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

func (c *Config) Defaults() {
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.QueryModel == "" {
		c.QueryModel = "mistral:7b"
	}
	if c.EnrichModel == "" {
		c.EnrichModel = c.QueryModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.Defaults()
	return &Client{
		host:   cfg.Host,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	System  string   `json:"system,omitempty"`
	Stream  bool     `json:"stream"`
	Options *Options `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate runs one non-streaming completion.
func (c *Client) Generate(ctx context.Context, model, system, prompt string, opts *Options) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  prompt,
		System:  system,
		Stream:  false,
		Options: opts,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fault.Transientf("llm: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fault.Transientf("llm: http %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fault.Transientf("llm: decode: %v", err)
	}
	return out.Response, nil
}
