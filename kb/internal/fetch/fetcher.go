// CLAUDE:SUMMARY HTTP fetcher with conditional GET validators, content-hash dedup, bounded bodies, and HEAD cheap checks.
// Package fetch implements HTTP content fetching with conditional GET
// support.
//
// Supports ETag, If-Modified-Since, and content-hash-based change
// detection. The refresher's cheap check uses Head with a short deadline.
package fetch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/savoir/fault"
)

// Result contains the outcome of a fetch.
type Result struct {
	Body        []byte
	StatusCode  int
	Hash        string // SHA-256 of body
	ETag        string // from response header, verbatim
	LastMod     string // from response header, verbatim
	ContentType string
	Changed     bool // false on 304 or when the body hash matches prevHash
}

// Validators are the cheap-check headers from a HEAD probe.
type Validators struct {
	ETag    string
	LastMod string
}

// Config configures the fetcher.
type Config struct {
	// Timeout for a full GET. Default: 30s.
	Timeout time.Duration
	// HeadTimeout for a HEAD probe. Default: 10s.
	HeadTimeout time.Duration
	// MaxBytes caps the response body. Default: 10MB.
	MaxBytes int64
	// UserAgent sent with every request.
	UserAgent string
	// URLValidator validates URLs before fetch and on every redirect hop.
	// Default: ValidateURL.
	URLValidator func(string) error
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HeadTimeout <= 0 {
		c.HeadTimeout = 10 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "savoir/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = ValidateURL
	}
}

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// Fetcher performs HTTP requests with conditional GET.
type Fetcher struct {
	client     *http.Client
	headClient *http.Client
	config     Config
}

// New creates a Fetcher. Redirect targets are validated on every hop.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	checkRedirect := func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return fmt.Errorf("too many redirects (%d)", len(via))
		}
		if err := validate(req.URL.String()); err != nil {
			return fmt.Errorf("redirect blocked: %w", err)
		}
		return nil
	}
	return &Fetcher{
		client:     &http.Client{Timeout: cfg.Timeout, CheckRedirect: checkRedirect},
		headClient: &http.Client{Timeout: cfg.HeadTimeout, CheckRedirect: checkRedirect},
		config:     cfg,
	}
}

// UserAgent returns the configured request User-Agent.
func (f *Fetcher) UserAgent() string { return f.config.UserAgent }

// Fetch retrieves a URL. If etag or lastMod are provided, conditional
// headers are sent and a 304 yields Changed=false. If prevHash matches the
// body hash, Changed is also false. Status classification follows the
// failure taxonomy: 5xx and network errors are transient, 4xx except 429
// permanent.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, etag, lastMod, prevHash string) (*Result, error) {
	if err := f.config.URLValidator(rawURL); err != nil {
		return nil, fault.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fault.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fault.Transientf("http get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{
			StatusCode: http.StatusNotModified,
			Changed:    false,
			ETag:       resp.Header.Get("ETag"),
			LastMod:    resp.Header.Get("Last-Modified"),
		}, nil
	}
	if statusErr := fault.FromStatus(resp.StatusCode); statusErr != nil {
		return &Result{StatusCode: resp.StatusCode}, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, fault.Transientf("read body: %v", err)
	}

	sum := sha256.Sum256(body)
	hash := fmt.Sprintf("%x", sum)

	return &Result{
		Body:        body,
		StatusCode:  resp.StatusCode,
		Hash:        hash,
		ETag:        resp.Header.Get("ETag"),
		LastMod:     resp.Header.Get("Last-Modified"),
		ContentType: resp.Header.Get("Content-Type"),
		Changed:     prevHash == "" || hash != prevHash,
	}, nil
}

// Head probes a URL for its validators, following redirects, with the
// short HEAD deadline. Used by the refresher's cheap check.
func (f *Fetcher) Head(ctx context.Context, rawURL string) (*Validators, error) {
	if err := f.config.URLValidator(rawURL); err != nil {
		return nil, fault.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fault.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.headClient.Do(req)
	if err != nil {
		return nil, fault.Transientf("http head: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if statusErr := fault.FromStatus(resp.StatusCode); statusErr != nil {
		return nil, statusErr
	}
	return &Validators{
		ETag:    resp.Header.Get("ETag"),
		LastMod: resp.Header.Get("Last-Modified"),
	}, nil
}
