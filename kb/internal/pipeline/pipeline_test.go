package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/savoir/chunk"
	"github.com/hazyhaar/savoir/embedder"
	"github.com/hazyhaar/savoir/fault"
	"github.com/hazyhaar/savoir/kb/internal/fetch"
)

func webFetcher() *WebFetcher {
	f := fetch.New(fetch.Config{URLValidator: func(string) error { return nil }})
	return NewWebFetcher(f, nil, nil)
}

func TestWebFetcher_ExtractsMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, `<html lang="en"><head><title>Intro Guide</title></head><body>
			<nav><a href="/x">nav link</a></nav>
			<article>
				<h1>Getting Started</h1>
				<p>`+strings.Repeat("This guide explains the setup process in detail. ", 20)+`</p>
				<p>Second paragraph with more useful content for extraction purposes here.</p>
			</article>
		</body></html>`)
	}))
	defer srv.Close()

	doc, err := webFetcher().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(doc.Text, "Getting Started") {
		t.Errorf("heading lost: %q", truncate(doc.Text, 200))
	}
	if !strings.Contains(doc.Text, "setup process") {
		t.Errorf("body lost: %q", truncate(doc.Text, 200))
	}
	if doc.ETag != `"v1"` {
		t.Errorf("etag: %q", doc.ETag)
	}
	if doc.Language != "en" {
		t.Errorf("language: %q", doc.Language)
	}
	if doc.ContentHash == "" {
		t.Error("content hash empty")
	}
}

func TestWebFetcher_RejectsOpaqueContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	_, err := webFetcher().Fetch(context.Background(), srv.URL)
	if err == nil || !errors.Is(err, fault.ErrPermanent) {
		t.Errorf("pdf must be a permanent failure, got %v", err)
	}
}

func TestWebFetcher_NotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := webFetcher().Fetch(context.Background(), srv.URL)
	if err == nil || fault.IsTransient(err) {
		t.Errorf("404 must be permanent: %v", err)
	}
}

type fakeRenderer struct{ html string }

func (f *fakeRenderer) Render(ctx context.Context, url string) (string, error) {
	return f.html, nil
}

func TestWebFetcher_RendersWhenStaticIsEmpty(t *testing.T) {
	// WHAT: A near-empty static shell triggers the headless renderer.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><div id="app"></div></body></html>`)
	}))
	defer srv.Close()

	rendered := `<html><body><article><h1>Hydrated</h1><p>` +
		strings.Repeat("Rendered client side content appears after hydration. ", 15) + `</p></article></body></html>`
	f := fetch.New(fetch.Config{URLValidator: func(string) error { return nil }})
	wf := NewWebFetcher(f, &fakeRenderer{html: rendered}, nil)

	doc, err := wf.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(doc.Text, "Hydrated") {
		t.Errorf("rendered content not used: %q", truncate(doc.Text, 120))
	}
}

func TestVideoFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("video_id") == "gone" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"video_id": r.URL.Query().Get("video_id"),
			"title":    "Deep Dive",
			"language": "en",
			"duration": 3600.0,
			"segments": []map[string]any{
				{"start": 0.0, "text": "welcome to the course"},
				{"start": 5.5, "text": "today we cover retrieval"},
			},
		})
	}))
	defer srv.Close()

	v := NewVideoFetcher(TranscriptConfig{Endpoint: srv.URL})
	doc, err := v.Fetch(context.Background(), "https://www.youtube.com/watch?v=abc123")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if doc.Title != "Deep Dive" || len(doc.Segments) != 2 || doc.DurationSec != 3600 {
		t.Errorf("doc: %+v", doc)
	}
	if !strings.Contains(doc.Text, "welcome to the course") {
		t.Errorf("text: %q", doc.Text)
	}

	_, err = v.Fetch(context.Background(), "https://www.youtube.com/watch?v=gone")
	if err == nil || !errors.Is(err, fault.ErrPermanent) {
		t.Errorf("missing transcript must be permanent: %v", err)
	}
}

func TestChannelExpander(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/channels":
			if r.URL.Query().Get("forHandle") != "@golang" {
				t.Errorf("handle query: %v", r.URL.Query())
			}
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{
					"contentDetails": map[string]any{"relatedPlaylists": map[string]any{"uploads": "UUgolang"}},
				}},
			})
		case "/playlistItems":
			page := r.URL.Query().Get("pageToken")
			items := []map[string]any{}
			base := 0
			next := "page2"
			if page == "page2" {
				base = 50
				next = ""
			}
			for i := 0; i < 50; i++ {
				items = append(items, map[string]any{
					"contentDetails": map[string]any{"videoId": fmt.Sprintf("vid%03d", base+i)},
				})
			}
			json.NewEncoder(w).Encode(map[string]any{"items": items, "nextPageToken": next})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	e := NewChannelExpander(ChannelConfig{Endpoint: srv.URL, APIKey: "k"})
	urls, err := e.Expand(context.Background(), "https://www.youtube.com/@golang", 75)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(urls) != 75 {
		t.Fatalf("got %d urls, want 75 (bounded pagination)", len(urls))
	}
	if urls[0] != "https://www.youtube.com/watch?v=vid000" {
		t.Errorf("first url: %s", urls[0])
	}
}

func TestChannelExpander_NoKey(t *testing.T) {
	e := NewChannelExpander(ChannelConfig{})
	_, err := e.Expand(context.Background(), "https://www.youtube.com/@x", 10)
	if err == nil || !errors.Is(err, fault.ErrPermanent) {
		t.Errorf("missing key must be permanent: %v", err)
	}
}

func TestProcessor_Build(t *testing.T) {
	p := NewProcessor(embedder.New(embedder.Config{Dimension: 8}), nil,
		chunk.Options{MaxTokens: 40, MinTokens: 5, OverlapTokens: 5}, nil)

	doc := &FetchedDocument{
		Text: "# Title\n\n" + strings.Repeat("Documentation sentence with several tokens inside it. ", 30),
		Title:       "Title",
		ETag:        `"e1"`,
		ContentHash: "hash1",
	}
	records, err := p.Build(context.Background(), "https://docs.example.com/intro", "doc_site_page", doc)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(records) < 2 {
		t.Fatalf("got %d records, want >= 2", len(records))
	}

	total := records[0].TotalChunks
	for i, rec := range records {
		if rec.ChunkIndex != i {
			t.Errorf("record %d: chunk_index=%d", i, rec.ChunkIndex)
		}
		if rec.TotalChunks != total || total != len(records) {
			t.Errorf("record %d: total_chunks=%d, want %d", i, rec.TotalChunks, len(records))
		}
		if rec.DocumentID != records[0].DocumentID {
			t.Error("document id differs across chunks")
		}
		if len(rec.Embedding) != 8 {
			t.Errorf("record %d: embedding dim %d", i, len(rec.Embedding))
		}
		m := rec.Metadata
		if m["source_url"] != "https://docs.example.com/intro" || m["kind"] != "doc_site_page" {
			t.Errorf("record %d metadata: %v", i, m)
		}
		if m["content_hash"] != "hash1" || m["http_etag"] != `"e1"` {
			t.Errorf("record %d validators: %v", i, m)
		}
		if m["chunk_id"] == "" {
			t.Errorf("record %d: missing chunk_id", i)
		}
		if m["domain"] != "docs.example.com" {
			t.Errorf("record %d domain: %q", i, m["domain"])
		}
	}
}

func TestProcessor_EmptyDocumentIsPermanent(t *testing.T) {
	p := NewProcessor(embedder.New(embedder.Config{Dimension: 8}), nil, chunk.Options{}, nil)
	_, err := p.Build(context.Background(), "https://example.com/a", "web_page", &FetchedDocument{Text: "   "})
	if err == nil || !errors.Is(err, fault.ErrPermanent) {
		t.Errorf("empty document: %v", err)
	}
}

func TestRepoReadTree(t *testing.T) {
	// WHAT: readTree concatenates text files with path headers, README
	// first, binaries and oversized files skipped.
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "src"), 0o755)
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Project\nintro"), 0o644)
	os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main"), 0o644)
	os.WriteFile(filepath.Join(dir, "logo.bin"), []byte{0, 1, 2, 3}, 0o644)
	os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("jpegdata"), 0o644)
	os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755)
	os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "index.js"), []byte("skip me"), 0o644)

	r := NewRepoFetcher("", nil)
	text, files, err := r.readTree(dir)
	if err != nil {
		t.Fatalf("read tree: %v", err)
	}
	if files != 2 {
		t.Errorf("files: got %d, want 2", files)
	}
	if !strings.HasPrefix(text, chunk.FileHeaderPrefix+"README.md") {
		t.Errorf("README not first: %q", truncate(text, 80))
	}
	if !strings.Contains(text, chunk.FileHeaderPrefix+"src/main.go") {
		t.Error("source file missing")
	}
	if strings.Contains(text, "skip me") || strings.Contains(text, "jpegdata") {
		t.Error("ignored content leaked into the tree text")
	}
}

func TestLooksBinary(t *testing.T) {
	if looksBinary([]byte("plain text content")) {
		t.Error("text flagged binary")
	}
	if !looksBinary([]byte{'a', 0, 'b'}) {
		t.Error("null byte not flagged")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
