// CLAUDE:SUMMARY Bounded same-origin documentation crawler on colly: page cap, soft time bound, path/extension exclusions, sitemap seeding.
// Package crawl enumerates reachable same-origin pages of a documentation
// domain, bounded by a page cap and a soft time limit.
//
// The crawler only extracts links; discovered pages become ordinary pending
// catalog entries fetched later by the queue processor.
package crawl

import (
	"context"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/hazyhaar/savoir/urlnorm"
)

// excludedPathPrefixes are non-content paths never worth indexing.
var excludedPathPrefixes = []string{
	"/login", "/signup", "/search", "/cart",
	"/checkout", "/account", "/admin", "/api/",
}

// excludedExtensions are opaque content types the chunker cannot use.
var excludedExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".ico",
	".mp4", ".avi", ".mov", ".webm", ".mp3", ".wav",
	".zip", ".tar", ".gz", ".rar", ".7z",
	".exe", ".dmg", ".iso", ".msi",
	".pdf", ".doc", ".docx", ".ppt", ".pptx", ".xls", ".xlsx",
	".css", ".js", ".woff", ".woff2", ".ttf",
}

// Config configures a crawl.
type Config struct {
	// MaxPages caps how many pages are visited. Zero means crawl nothing;
	// a negative value selects the default of 1000.
	MaxPages int
	// TimeBound is the soft wall-clock limit. Default: 10 minutes.
	TimeBound time.Duration
	// UserAgent sent with every request.
	UserAgent string
	// RequestTimeout per page. Default: 30s.
	RequestTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.TimeBound <= 0 {
		c.TimeBound = 10 * time.Minute
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "savoir/1.0"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result is the outcome of a crawl.
type Result struct {
	// Discovered holds the normalized same-origin URLs found, including
	// the start URL, in discovery order.
	Discovered []string
	// Visited counts pages actually fetched for link extraction.
	Visited int
}

// Crawl enumerates same-origin pages from startURL. MaxPages set to zero
// completes immediately with no URLs. Individual page failures are logged
// and skipped; the crawl itself only fails on an unusable start URL.
func Crawl(ctx context.Context, startURL string, cfg Config) (*Result, error) {
	cfg.defaults()
	if cfg.MaxPages == 0 {
		return &Result{}, nil
	}
	if cfg.MaxPages < 0 {
		cfg.MaxPages = 1000
	}

	start, err := urlnorm.Normalize(startURL)
	if err != nil {
		return nil, err
	}
	origin, err := url.Parse(start)
	if err != nil {
		return nil, err
	}
	host := origin.Host

	deadline := time.Now().Add(cfg.TimeBound)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var mu sync.Mutex
	seen := make(map[string]bool)
	var discovered []string
	visited := 0

	// Both host forms: colly matches on hostname, local test servers carry
	// an explicit port.
	collector := colly.NewCollector(
		colly.AllowedDomains(host, origin.Hostname()),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.SetRequestTimeout(cfg.RequestTimeout)

	record := func(normalized string) {
		if !seen[normalized] {
			seen[normalized] = true
			discovered = append(discovered, normalized)
		}
	}

	admit := func(raw string) (string, bool) {
		normalized, err := urlnorm.Normalize(raw)
		if err != nil {
			return "", false
		}
		u, err := url.Parse(normalized)
		if err != nil || u.Host != host {
			return "", false
		}
		if Excluded(u.Path) {
			return "", false
		}
		return normalized, true
	}

	collector.OnRequest(func(r *colly.Request) {
		mu.Lock()
		defer mu.Unlock()
		if visited >= cfg.MaxPages || time.Now().After(deadline) || ctx.Err() != nil {
			r.Abort()
			return
		}
		visited++
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		raw := e.Request.AbsoluteURL(e.Attr("href"))
		if raw == "" {
			return
		}
		normalized, ok := admit(raw)
		if !ok {
			return
		}
		mu.Lock()
		known := seen[normalized]
		record(normalized)
		full := len(discovered) >= cfg.MaxPages
		mu.Unlock()
		if known || full {
			return
		}
		e.Request.Visit(normalized)
	})

	collector.OnError(func(r *colly.Response, err error) {
		cfg.Logger.Debug("crawl: page error", "url", r.Request.URL.String(), "error", err)
	})

	mu.Lock()
	record(start)
	mu.Unlock()

	// Seed from the sitemap first: it reaches pages no anchor links to.
	for _, loc := range sitemapURLs(ctx, origin, cfg) {
		if normalized, ok := admit(loc); ok {
			mu.Lock()
			record(normalized)
			full := len(discovered) >= cfg.MaxPages
			mu.Unlock()
			if full {
				break
			}
			collector.Visit(normalized)
		}
	}

	if err := collector.Visit(start); err != nil {
		cfg.Logger.Debug("crawl: start visit", "url", start, "error", err)
	}
	collector.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(discovered) > cfg.MaxPages {
		discovered = discovered[:cfg.MaxPages]
	}
	return &Result{Discovered: discovered, Visited: visited}, nil
}

// Excluded reports whether a path is filtered by prefix or extension.
func Excluded(path string) bool {
	lower := strings.ToLower(path)
	for _, prefix := range excludedPathPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	for _, ext := range excludedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

type sitemap struct {
	URLs     []sitemapEntry `xml:"url"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc string `xml:"loc"`
}

// sitemapURLs fetches /sitemap.xml and returns its locations. Nested
// sitemap indexes are followed one level deep. Absence is normal.
func sitemapURLs(ctx context.Context, origin *url.URL, cfg Config) []string {
	root := origin.Scheme + "://" + origin.Host + "/sitemap.xml"
	locs, nested := fetchSitemap(ctx, root, cfg)
	for _, child := range nested {
		childLocs, _ := fetchSitemap(ctx, child, cfg)
		locs = append(locs, childLocs...)
	}
	return locs
}

func fetchSitemap(ctx context.Context, sitemapURL string, cfg Config) (urls, nested []string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("User-Agent", cfg.UserAgent)

	client := &http.Client{Timeout: cfg.RequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, nil
	}
	var sm sitemap
	if err := xml.Unmarshal(body, &sm); err != nil {
		return nil, nil
	}
	for _, e := range sm.URLs {
		if loc := strings.TrimSpace(e.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	for _, e := range sm.Sitemaps {
		if loc := strings.TrimSpace(e.Loc); loc != "" {
			nested = append(nested, loc)
		}
	}
	return urls, nested
}
