package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string   `json:"query"`
			Documents []string `json:"documents"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		type result struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		}
		// Providers return results ranked best-first; the client must map
		// them back to document order.
		results := []result{}
		for i := range req.Documents {
			results = append(results, result{Index: len(req.Documents) - 1 - i, RelevanceScore: float64(len(req.Documents) - i)})
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Model: "ce"})
	scores, err := c.Score(context.Background(), "q", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// Document 2 was ranked first with score 3, document 0 last with 1.
	if scores[2] != 3 || scores[0] != 1 {
		t.Errorf("scores misaligned: %v", scores)
	}
}

func TestScore_MissingScoreIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{{"index": 0, "relevance_score": 1.0}}})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL})
	if _, err := c.Score(context.Background(), "q", []string{"a", "b"}); err == nil {
		t.Error("partial score set must be an error")
	}
}

func TestUnconfigured(t *testing.T) {
	c := New(Config{})
	if c.Available() {
		t.Error("empty endpoint must not be available")
	}
	if _, err := c.Score(context.Background(), "q", []string{"a"}); err == nil {
		t.Error("unconfigured client must error")
	}
}

func TestScore_EmptyDocuments(t *testing.T) {
	c := New(Config{Endpoint: "http://localhost:0"})
	scores, err := c.Score(context.Background(), "q", nil)
	if err != nil || scores != nil {
		t.Errorf("empty documents: scores=%v err=%v", scores, err)
	}
}
