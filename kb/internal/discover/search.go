// CLAUDE:SUMMARY Web-search provider abstraction and the Brave-style GET adapter with quota logging.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/savoir/fault"
)

// SearchResult is one provider hit.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"description"`
}

// SearchClient abstracts the web-search provider. Swapping providers means
// swapping this one adapter.
type SearchClient interface {
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
}

// CallLogger receives one record per provider call, for quota surfacing.
type CallLogger func(apiName string, success bool, latency time.Duration, remainingQuota *int)

// SearchConfig configures the Brave-style adapter.
type SearchConfig struct {
	// Endpoint is the search API URL.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// APIKey is presented via the subscription token header.
	APIKey string `json:"api_key" yaml:"api_key"`
	// Country biases results. Default: US.
	Country string `json:"country" yaml:"country"`
	// Timeout per request. Default: 10s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

func (c *SearchConfig) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://api.search.brave.com/res/v1/web/search"
	}
	if c.Country == "" {
		c.Country = "US"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// braveClient implements SearchClient against the Brave web-search API
// response shape: {"web": {"results": [{url, title, description}]}}.
type braveClient struct {
	cfg    SearchConfig
	client *http.Client
	log    CallLogger
}

// NewSearchClient creates the provider adapter. logger may be nil.
func NewSearchClient(cfg SearchConfig, logger CallLogger) SearchClient {
	cfg.defaults()
	return &braveClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, log: logger}
}

type braveResponse struct {
	Web struct {
		Results []SearchResult `json:"results"`
	} `json:"web"`
}

func (b *braveClient) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	if b.cfg.APIKey == "" {
		return nil, fault.Permanentf("search: no API key configured")
	}
	if count <= 0 {
		count = 10
	}
	if count > 20 {
		count = 20 // provider limit
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("count", strconv.Itoa(count))
	q.Set("country", b.cfg.Country)

	sep := "?"
	if strings.Contains(b.cfg.Endpoint, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.Endpoint+sep+q.Encode(), nil)
	if err != nil {
		return nil, fault.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("X-Subscription-Token", b.cfg.APIKey)

	start := time.Now()
	resp, err := b.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		b.record(false, latency, nil)
		return nil, fault.Transientf("search: %v", err)
	}
	defer resp.Body.Close()

	quota := remainingQuota(resp)
	if statusErr := fault.FromStatus(resp.StatusCode); statusErr != nil {
		b.record(false, latency, quota)
		return nil, fmt.Errorf("search: %w", statusErr)
	}

	var out braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		b.record(false, latency, quota)
		return nil, fault.Transientf("search: decode: %v", err)
	}

	b.record(true, latency, quota)
	return out.Web.Results, nil
}

func (b *braveClient) record(success bool, latency time.Duration, quota *int) {
	if b.log != nil {
		b.log("web_search", success, latency, quota)
	}
}

// remainingQuota reads the provider's rate-limit header. Brave sends
// "X-RateLimit-Remaining: <second>, <month>"; the monthly budget is the
// interesting one.
func remainingQuota(resp *http.Response) *int {
	header := resp.Header.Get("X-RateLimit-Remaining")
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	n, err := strconv.Atoi(last)
	if err != nil {
		return nil
	}
	return &n
}
