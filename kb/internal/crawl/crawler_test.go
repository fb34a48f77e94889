package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// docsSite serves a small site: / links to /guide and /api-ref, /guide
// links to /deep and to excluded + off-site targets.
func docsSite(t *testing.T, external string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, body)
		}
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		page(`<html><body>
			<a href="/guide">guide</a>
			<a href="/api-ref">api</a>
			<a href="/guide">guide again</a>
		</body></html>`)(w, r)
	})
	mux.HandleFunc("/guide", page(`<html><body>
		<a href="/deep">deep</a>
		<a href="/login">login</a>
		<a href="/logo.png">logo</a>
		<a href="/manual.pdf">manual</a>
		<a href="`+external+`/elsewhere">offsite</a>
	</body></html>`))
	mux.HandleFunc("/api-ref", page(`<html><body>no links</body></html>`))
	mux.HandleFunc("/deep", page(`<html><body><a href="/">home</a></body></html>`))
	return httptest.NewServer(mux)
}

func TestCrawl_SameOriginBounded(t *testing.T) {
	external := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("crawler left the origin: %s", r.URL)
	}))
	defer external.Close()

	srv := docsSite(t, external.URL)
	defer srv.Close()

	res, err := Crawl(context.Background(), srv.URL, Config{MaxPages: 100, TimeBound: 30 * time.Second})
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}

	got := make(map[string]bool)
	for _, u := range res.Discovered {
		parsed, _ := url.Parse(u)
		got[parsed.Path] = true
	}
	for _, want := range []string{"", "/guide", "/api-ref", "/deep"} {
		if !got[want] {
			t.Errorf("missing discovered path %q in %v", want, res.Discovered)
		}
	}
	for _, bad := range []string{"/login", "/logo.png", "/manual.pdf", "/elsewhere"} {
		if got[bad] {
			t.Errorf("excluded path %q was discovered", bad)
		}
	}
	// Start URL included, no duplicates.
	seen := map[string]int{}
	for _, u := range res.Discovered {
		seen[u]++
		if seen[u] > 1 {
			t.Errorf("duplicate discovery: %s", u)
		}
	}
}

func TestCrawl_MaxPagesZero(t *testing.T) {
	// WHAT: max_pages=0 completes immediately and discovers nothing.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server must not be contacted when MaxPages is 0")
	}))
	defer srv.Close()

	res, err := Crawl(context.Background(), srv.URL, Config{MaxPages: 0})
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if len(res.Discovered) != 0 || res.Visited != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestCrawl_PageCap(t *testing.T) {
	// WHAT: A site with endless pages stops at MaxPages.
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		n := strings.TrimPrefix(r.URL.Path, "/p")
		next := 1
		fmt.Sscanf(n, "%d", &next)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><a href="/p%d">next</a></body></html>`, next+1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := Crawl(context.Background(), srv.URL, Config{MaxPages: 5, TimeBound: 30 * time.Second})
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if len(res.Discovered) > 5 {
		t.Errorf("page cap exceeded: %d discovered", len(res.Discovered))
	}
	if res.Visited > 5 {
		t.Errorf("visited %d pages, cap 5", res.Visited)
	}
}

func TestCrawl_SitemapSeeding(t *testing.T) {
	// WHAT: Pages only reachable via sitemap.xml are still discovered.
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>no links here</body></html>`)
	})
	mux.HandleFunc("/orphan", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>orphan page</body></html>`)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0"?><urlset><url><loc>%s/orphan</loc></url></urlset>`, base)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	res, err := Crawl(context.Background(), srv.URL, Config{MaxPages: 100, TimeBound: 30 * time.Second})
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	found := false
	for _, u := range res.Discovered {
		if strings.HasSuffix(u, "/orphan") {
			found = true
		}
	}
	if !found {
		t.Errorf("sitemap-only page not discovered: %v", res.Discovered)
	}
}

func TestExcluded(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/docs/intro", false},
		{"/login", true},
		{"/api/v1/things", true},
		{"/assets/logo.PNG", true},
		{"/paper.pdf", true},
		{"/guide.html", false},
	}
	for _, tc := range cases {
		if got := Excluded(tc.path); got != tc.want {
			t.Errorf("Excluded(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
