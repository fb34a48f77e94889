// CLAUDE:SUMMARY Web fetcher: conditional GET, sanitize, readability extraction, markdown conversion, headless rendering fallback.
package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/savoir/fault"
	"github.com/hazyhaar/savoir/kb/internal/fetch"
)

// renderThresholdBytes: a static fetch yielding less extracted text than
// this on a JS-heavy site triggers headless rendering when available.
const renderThresholdBytes = 200

// Renderer renders a page in a headless browser and returns its final HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// WebFetcher retrieves web and documentation pages, extracts the main
// content, and converts it to markdown.
type WebFetcher struct {
	fetcher   *fetch.Fetcher
	renderer  Renderer // nil when no browser endpoint is configured
	sanitizer *bluemonday.Policy
	markdown  *converter.Converter
	logger    *slog.Logger
}

// NewWebFetcher creates a WebFetcher. renderer may be nil.
func NewWebFetcher(f *fetch.Fetcher, renderer Renderer, logger *slog.Logger) *WebFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebFetcher{
		fetcher:   f,
		renderer:  renderer,
		sanitizer: bluemonday.UGCPolicy().AllowElements("html", "head", "body", "title", "main", "article", "section", "aside", "nav", "header", "footer", "table", "thead", "tbody", "tr", "td", "th", "figure", "figcaption"),
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: logger,
	}
}

var htmlLangAttr = regexp.MustCompile(`<html[^>]*\blang=["']?([A-Za-z-]+)`)

// Fetch retrieves a page and returns its markdown rendition with HTTP
// validators recorded verbatim.
func (w *WebFetcher) Fetch(ctx context.Context, pageURL string) (*FetchedDocument, error) {
	result, err := w.fetcher.Fetch(ctx, pageURL, "", "", "")
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	if ct := strings.ToLower(result.ContentType); ct != "" &&
		!strings.Contains(ct, "html") && !strings.Contains(ct, "text/plain") && !strings.Contains(ct, "xml") {
		return nil, fault.Permanentf("content-type rejected: %s", result.ContentType)
	}

	html := string(result.Body)
	text, title := w.extract(html, pageURL)

	// JS-heavy pages serve a near-empty shell; re-render when possible.
	if len(text) < renderThresholdBytes && w.renderer != nil {
		rendered, rerr := w.renderer.Render(ctx, pageURL)
		if rerr != nil {
			w.logger.Warn("web: headless render failed", "url", pageURL, "error", rerr)
		} else if rendered != "" {
			if rtext, rtitle := w.extract(rendered, pageURL); len(rtext) > len(text) {
				html, text, title = rendered, rtext, rtitle
			}
		}
	}

	if strings.TrimSpace(text) == "" {
		return nil, fault.Permanentf("no extractable content")
	}

	language := ""
	if m := htmlLangAttr.FindStringSubmatch(html); m != nil {
		language = strings.ToLower(m[1])
	}

	sum := sha256.Sum256([]byte(text))
	return &FetchedDocument{
		Text:        text,
		Title:       title,
		Language:    language,
		ETag:        result.ETag,
		LastMod:     result.LastMod,
		StatusCode:  result.StatusCode,
		ContentType: result.ContentType,
		ContentHash: fmt.Sprintf("%x", sum),
	}, nil
}

// extract sanitizes the HTML, pulls the main content via readability, and
// converts it to markdown. Falls back to the sanitized whole page when
// readability finds no article.
func (w *WebFetcher) extract(html, pageURL string) (text, title string) {
	clean := w.sanitizer.Sanitize(html)

	pageU, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(clean), pageU)
	content := clean
	if err == nil && strings.TrimSpace(article.Content) != "" {
		content = article.Content
		title = strings.TrimSpace(article.Title)
	}

	markdown, err := w.markdown.ConvertString(content, converter.WithDomain(pageURL))
	if err != nil || strings.TrimSpace(markdown) == "" {
		if err == nil && article.TextContent != "" {
			markdown = article.TextContent
		} else {
			w.logger.Debug("web: markdown conversion failed", "url", pageURL, "error", err)
			markdown = ""
		}
	}
	return normalizeWhitespace(markdown), title
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
