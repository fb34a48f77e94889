// CLAUDE:SUMMARY Hybrid retrieval engine: optional expansion, dense + BM25, RRF fusion, cross-encoder rerank, similarity thresholding.
// Package retrieve answers semantic queries over the chunk stores.
//
// Every stage degrades rather than fails: a missing lexical index falls
// back to semantic-only, an unreachable LLM skips expansion, a dead
// cross-encoder returns the pre-rerank order with a warning marker.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hazyhaar/savoir/embedder"
	"github.com/hazyhaar/savoir/lexical"
	"github.com/hazyhaar/savoir/llm"
	"github.com/hazyhaar/savoir/rerank"
	"github.com/hazyhaar/savoir/vecstore"
)

// RRF fusion constants. K flattens the rank curve; the weights favor the
// dense list.
const (
	rrfK            = 60.0
	semanticWeight  = 0.7
	lexicalWeight   = 0.3
	expansionTokens = 15 // queries longer than this skip expansion
)

// ScoreKind tags what a result's score means.
type ScoreKind string

const (
	ScoreCosine ScoreKind = "cosine_similarity"
	ScoreRRF    ScoreKind = "rrf"
	ScoreRerank ScoreKind = "rerank"
)

// Options toggles pipeline stages per query.
type Options struct {
	K         int               // final result count; default 5
	Filter    map[string]string // metadata equality filter for dense search
	Hybrid    bool              // add BM25 + RRF fusion
	Rerank    bool              // cross-encoder second stage
	Expansion bool              // LLM query expansion for short queries
	// Threshold drops results below this similarity. nil applies the
	// default 0.3 for semantic-only queries and nothing after fusion or
	// rerank.
	Threshold *float64
}

// Result is one ranked passage.
type Result struct {
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata"`
	Score     float64           `json:"score"`
	ScoreKind ScoreKind         `json:"score_kind"`
}

// Lexical is the keyword-index dependency; the service supplies a lazily
// rebuilt implementation.
type Lexical interface {
	Built() bool
	Search(ctx context.Context, query string, k int) ([]lexical.Result, error)
}

// defaultSemanticThreshold applies when only dense retrieval ran.
const defaultSemanticThreshold = 0.3

// Engine runs the retrieval pipeline.
type Engine struct {
	embedder   embedder.Embedder
	vec        *vecstore.Store
	lex        Lexical
	reranker   *rerank.Client
	llm        *llm.Client
	queryModel string
	threshold  float64 // semantic-only default cutoff
	logger     *slog.Logger
}

// New creates an Engine. lex, reranker, and llmClient are each optional;
// threshold <= 0 applies the 0.3 default.
func New(emb embedder.Embedder, vec *vecstore.Store, lex Lexical, reranker *rerank.Client, llmClient *llm.Client, queryModel string, threshold float64, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = defaultSemanticThreshold
	}
	return &Engine{
		embedder:   emb,
		vec:        vec,
		lex:        lex,
		reranker:   reranker,
		llm:        llmClient,
		queryModel: queryModel,
		threshold:  threshold,
		logger:     logger,
	}
}

// Search runs the pipeline and returns ranked passages plus any
// degradation warnings (never errors for optional stages).
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, []string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil, fmt.Errorf("retrieve: empty query")
	}
	if opts.K <= 0 {
		opts.K = 5
	}
	kRetrieval := max(2*opts.K, 20)

	var warnings []string

	searchQuery := query
	if opts.Expansion {
		searchQuery = e.expand(ctx, query)
	}

	queryVec, err := e.embedder.Embed(ctx, searchQuery)
	if err != nil {
		return nil, warnings, fmt.Errorf("retrieve: embed query: %w", err)
	}
	dense, err := e.vec.Search(ctx, queryVec, kRetrieval, opts.Filter)
	if err != nil {
		return nil, warnings, fmt.Errorf("retrieve: dense search: %w", err)
	}

	semantic := make([]Result, len(dense))
	for i, d := range dense {
		semantic[i] = Result{
			Text:      d.Text,
			Metadata:  d.Metadata,
			Score:     1 / (1 + d.Distance),
			ScoreKind: ScoreCosine,
		}
	}

	results := semantic
	fused := false
	if opts.Hybrid {
		if e.lex != nil && e.lex.Built() {
			keyword, err := e.lex.Search(ctx, searchQuery, kRetrieval)
			if err != nil {
				warnings = append(warnings, "lexical search failed; semantic-only results")
				e.logger.Warn("retrieve: lexical search failed", "error", err)
			} else {
				results = fuse(semantic, keyword)
				fused = true
			}
		} else {
			warnings = append(warnings, "lexical index unavailable; semantic-only results")
		}
	}

	reranked := false
	if opts.Rerank && len(results) > 0 {
		if e.reranker.Available() {
			ranked, err := e.rerankResults(ctx, query, results)
			if err != nil {
				warnings = append(warnings, "reranker unavailable; pre-rerank order returned")
				e.logger.Warn("retrieve: rerank failed", "error", err)
			} else {
				results = ranked
				reranked = true
			}
		} else {
			warnings = append(warnings, "reranker not configured; pre-rerank order returned")
		}
	}

	// Thresholding: by default only pure semantic scores are comparable to
	// a similarity cutoff. An explicit caller threshold applies everywhere.
	switch {
	case opts.Threshold != nil:
		results = applyThreshold(results, *opts.Threshold)
	case !fused && !reranked:
		results = applyThreshold(results, e.threshold)
	}

	if len(results) > opts.K {
		results = results[:opts.K]
	}
	return results, warnings, nil
}

// expand widens short queries through the LLM; anything over the token
// bound or any failure returns the original query.
func (e *Engine) expand(ctx context.Context, query string) string {
	if e.llm == nil || len(strings.Fields(query)) > expansionTokens {
		return query
	}

	response, err := e.llm.Generate(ctx, e.queryModel, "",
		fmt.Sprintf(llm.ExpansionPrompt, 10, query),
		&llm.Options{Temperature: 0.3, NumPredict: 50})
	if err != nil {
		e.logger.Debug("retrieve: expansion failed", "error", err)
		return query
	}

	expanded := strings.TrimSpace(response)
	// Reject empty or runaway expansions.
	if expanded == "" || len(strings.Fields(expanded)) > len(strings.Fields(query))+15 {
		return query
	}
	return expanded
}

// fuse merges semantic and keyword lists by Reciprocal Rank Fusion:
// score = w_s/(K+r_s) + w_k/(K+r_k), missing ranks contribute nothing
// (rank infinity). Ties break by semantic rank.
func fuse(semantic []Result, keyword []lexical.Result) []Result {
	type fusedEntry struct {
		result       Result
		score        float64
		semanticRank int // 0 = absent
	}
	entries := make(map[string]*fusedEntry)

	for i, r := range semantic {
		rank := i + 1
		id := chunkIdentity(r.Metadata)
		entries[id] = &fusedEntry{
			result:       r,
			score:        semanticWeight / (rrfK + float64(rank)),
			semanticRank: rank,
		}
	}
	for i, r := range keyword {
		rank := i + 1
		id := chunkIdentity(r.Metadata)
		if f, ok := entries[id]; ok {
			f.score += lexicalWeight / (rrfK + float64(rank))
			continue
		}
		entries[id] = &fusedEntry{
			result: Result{Text: r.Text, Metadata: r.Metadata},
			score:  lexicalWeight / (rrfK + float64(rank)),
		}
	}

	out := make([]*fusedEntry, 0, len(entries))
	for _, f := range entries {
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		ri, rj := out[i].semanticRank, out[j].semanticRank
		if ri == 0 {
			ri = 1 << 20
		}
		if rj == 0 {
			rj = 1 << 20
		}
		return ri < rj
	})

	results := make([]Result, len(out))
	for i, f := range out {
		r := f.result
		r.Score = f.score
		r.ScoreKind = ScoreRRF
		results[i] = r
	}
	return results
}

// rerankResults scores each (query, text) pair with the cross-encoder and
// sorts descending.
func (e *Engine) rerankResults(ctx context.Context, query string, results []Result) ([]Result, error) {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	scores, err := e.reranker.Score(ctx, query, texts)
	if err != nil {
		return nil, err
	}

	ranked := make([]Result, len(results))
	copy(ranked, results)
	for i := range ranked {
		ranked[i].Score = scores[i]
		ranked[i].ScoreKind = ScoreRerank
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}

func applyThreshold(results []Result, threshold float64) []Result {
	out := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// chunkIdentity joins dense and keyword hits on the same chunk. The stored
// chunk_id is authoritative; source_url plus index is the fallback.
func chunkIdentity(meta map[string]string) string {
	if id := meta["chunk_id"]; id != "" {
		return id
	}
	return meta["source_url"] + "#" + meta["chunk_index"]
}
