package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/savoir/llm"
	"github.com/hazyhaar/savoir/urlnorm"
)

func TestAnalyze(t *testing.T) {
	in := Analyze("index these https://example.org/docs please")
	if in.Kind != InputURLs || len(in.URLs) != 1 {
		t.Fatalf("url input: %+v", in)
	}
	if in.Text != "index these  please" && !strings.Contains(in.Text, "index these") {
		t.Errorf("remaining text: %q", in.Text)
	}

	in = Analyze("build a knowledge base about FastAPI streaming")
	if in.Kind != InputPrompt || in.Text == "" {
		t.Errorf("prompt input: %+v", in)
	}
}

func TestDiscover_DirectURLs(t *testing.T) {
	o := New(nil, nil, Config{}, nil)
	candidates, err := o.Discover(context.Background(),
		"HTTPS://Docs.Example.COM/guide/ and https://github.com/golang/go and https://docs.example.com/guide")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2 (normalized dedup)", len(candidates))
	}
	if candidates[0].URL != "https://docs.example.com/guide" {
		t.Errorf("normalization: %q", candidates[0].URL)
	}
	if candidates[0].Kind != urlnorm.KindDocSitePage || candidates[1].Kind != urlnorm.KindRepo {
		t.Errorf("kinds: %v %v", candidates[0].Kind, candidates[1].Kind)
	}
	for _, c := range candidates {
		if c.Priority != PriorityUserURL {
			t.Errorf("user URL priority: %d", c.Priority)
		}
		if c.DiscoveredFrom != "user_input" {
			t.Errorf("discovered_from: %q", c.DiscoveredFrom)
		}
	}
}

type fakeSearch struct {
	results map[string][]SearchResult
	queries []string
}

func (f *fakeSearch) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results[query], nil
}

func llmServer(t *testing.T, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"response": response, "done": true})
	}))
}

func TestDiscover_PromptSynthesisAndScoring(t *testing.T) {
	srv := llmServer(t, `{"search_queries":["fastapi docs","fastapi videos"],"topics":["fastapi"],"keywords":["python"]}`)
	defer srv.Close()

	search := &fakeSearch{results: map[string][]SearchResult{
		"fastapi docs": {
			{URL: "https://example.com/blog/fastapi-tips"},
			{URL: "https://www.udemy.com/course/fastapi"},
			{URL: "https://fastapi.tiangolo.com/tutorial/"},
		},
		"fastapi videos": {
			{URL: "https://www.youtube.com/@fastapi"},
			{URL: "https://example.com/blog/fastapi-tips"},
		},
	}}

	o := New(llm.New(llm.Config{Host: srv.URL}), search, Config{QueryModel: "m"}, nil)
	candidates, err := o.Discover(context.Background(), "build me a fastapi knowledge base")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	if len(search.queries) != 2 {
		t.Errorf("queries executed: %v", search.queries)
	}
	urls := make([]string, len(candidates))
	for i, c := range candidates {
		urls[i] = c.URL
		if c.Priority != PrioritySearch {
			t.Errorf("search priority: %d for %s", c.Priority, c.URL)
		}
	}
	// Blocklisted promo site filtered; duplicate deduped by normalized form.
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates %v, want 3", len(candidates), urls)
	}
	// Channel (quality 5) ranks before tutorial page (quality 1+).
	if !strings.Contains(candidates[0].URL, "youtube.com/@fastapi") {
		t.Errorf("quality ordering: %v", urls)
	}
	if candidates[0].Kind != urlnorm.KindVideoChannel {
		t.Errorf("channel kind: %v", candidates[0].Kind)
	}
}

func TestDiscover_LLMDownFallsBackToLiteralQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	search := &fakeSearch{results: map[string][]SearchResult{
		"rust async runtimes": {{URL: "https://docs.rs/tokio"}},
	}}
	o := New(llm.New(llm.Config{Host: srv.URL}), search, Config{}, nil)

	candidates, err := o.Discover(context.Background(), "rust async runtimes")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(search.queries) != 1 || search.queries[0] != "rust async runtimes" {
		t.Errorf("literal fallback not used: %v", search.queries)
	}
	if len(candidates) != 1 {
		t.Errorf("candidates: %v", candidates)
	}
}

func TestDiscover_EmptyPrompt(t *testing.T) {
	o := New(nil, nil, Config{}, nil)
	if _, err := o.Discover(context.Background(), "   "); err == nil {
		t.Error("empty prompt must error")
	}
}

func TestBlockedAndQualityScore(t *testing.T) {
	if !Blocked("https://www.udemy.com/course/go") {
		t.Error("promo site not blocked")
	}
	if Blocked("https://go.dev/doc/") {
		t.Error("documentation blocked")
	}
	if QualityScore("https://www.youtube.com/@chan") < 5 {
		t.Error("channel bonus missing")
	}
	if QualityScore("https://github.com/topics/rag") >= 3 {
		t.Error("topic listing must not score as a repository")
	}
	if QualityScore("https://github.com/golang/go") < 3 {
		t.Error("repository bonus missing")
	}
}

func TestExtractTechnologies(t *testing.T) {
	got := extractTechnologies("Use FastAPI with ChromaDB over SIP trunks and FreeSWITCH")
	joined := fmt.Sprint(got)
	for _, want := range []string{"FastAPI", "ChromaDB", "SIP", "FreeSWITCH"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %s in %v", want, got)
		}
	}
}
