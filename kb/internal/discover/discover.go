// CLAUDE:SUMMARY Discovery orchestrator: prompt → LLM query synthesis → provider fan-out → dedup, filter, score, type candidates.
package discover

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/hazyhaar/savoir/llm"
	"github.com/hazyhaar/savoir/urlnorm"
)

// Candidate is one discovered URL, typed and prioritized, ready for
// catalog insertion.
type Candidate struct {
	URL            string
	Kind           urlnorm.Kind
	Priority       int
	DiscoveredFrom string
	Quality        int
}

// Priorities per discovery channel.
const (
	PriorityUserURL = 100
	PrioritySearch  = 50
)

// Config configures the orchestrator.
type Config struct {
	// EnableCompetitors adds a second pass asking the LLM for alternative
	// technologies and searching those too.
	EnableCompetitors bool
	// QueryModel is the LLM model used for synthesis.
	QueryModel string
}

// Orchestrator assembles discovery results.
type Orchestrator struct {
	llm    *llm.Client
	search SearchClient
	cfg    Config
	logger *slog.Logger
}

// New creates an Orchestrator. llmClient may be nil (prompt inputs then
// degrade to a single literal query).
func New(llmClient *llm.Client, search SearchClient, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{llm: llmClient, search: search, cfg: cfg, logger: logger}
}

// Discover turns raw input into typed candidates. Direct URLs bypass the
// LLM and the search provider entirely.
func (o *Orchestrator) Discover(ctx context.Context, raw string) ([]Candidate, error) {
	input := Analyze(raw)

	if input.Kind == InputURLs {
		return o.directCandidates(input.URLs), nil
	}
	if input.Text == "" {
		return nil, fmt.Errorf("discover: empty prompt")
	}
	return o.promptCandidates(ctx, input.Text)
}

func (o *Orchestrator) directCandidates(urls []string) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)
	for _, raw := range urls {
		normalized, err := urlnorm.Normalize(raw)
		if err != nil {
			o.logger.Debug("discover: rejecting URL", "url", raw, "error", err)
			continue
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, Candidate{
			URL:            normalized,
			Kind:           urlnorm.DetectKind(normalized),
			Priority:       PriorityUserURL,
			DiscoveredFrom: "user_input",
		})
	}
	return out
}

func (o *Orchestrator) promptCandidates(ctx context.Context, prompt string) ([]Candidate, error) {
	queries := o.synthesizeQueries(ctx, prompt)

	if o.cfg.EnableCompetitors {
		queries = append(queries, o.competitorQueries(ctx, prompt)...)
	}

	// Adaptive per-query result count keeps the total near 40-60 URLs.
	countPerQuery := 3
	switch {
	case len(queries) <= 10:
		countPerQuery = 5
	case len(queries) <= 15:
		countPerQuery = 4
	}

	type scored struct {
		candidate Candidate
		order     int
	}
	var all []scored
	seen := make(map[string]bool)
	searched := 0

	for _, query := range queries {
		if ctx.Err() != nil {
			break
		}
		results, err := o.search.Search(ctx, query, countPerQuery)
		if err != nil {
			// Provider over quota or down: keep whatever was retrieved so
			// far; the failure is visible in the API call log.
			o.logger.Warn("discover: search failed", "query", query, "error", err)
			continue
		}
		searched++
		for _, r := range results {
			if r.URL == "" || Blocked(r.URL) {
				continue
			}
			normalized, err := urlnorm.Normalize(r.URL)
			if err != nil || seen[normalized] {
				continue
			}
			seen[normalized] = true
			all = append(all, scored{
				candidate: Candidate{
					URL:            normalized,
					Kind:           urlnorm.DetectKind(normalized),
					Priority:       PrioritySearch,
					DiscoveredFrom: "web_search",
					Quality:        QualityScore(normalized),
				},
				order: len(all),
			})
		}
	}

	o.logger.Info("discover: search complete",
		"queries", len(queries), "executed", searched, "candidates", len(all))

	// Highest quality first; provider order breaks ties within a level.
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].candidate.Quality != all[j].candidate.Quality {
			return all[i].candidate.Quality > all[j].candidate.Quality
		}
		return all[i].order < all[j].order
	})

	out := make([]Candidate, len(all))
	for i, s := range all {
		out[i] = s.candidate
	}
	return out, nil
}

// synthesizeQueries asks the LLM for a search strategy. Unreachable LLM or
// unparseable output falls back to the prompt as a single literal query.
func (o *Orchestrator) synthesizeQueries(ctx context.Context, prompt string) []string {
	if o.llm == nil {
		return []string{prompt}
	}

	condensed := prompt
	technologies := extractTechnologies(prompt)
	if len(prompt) > 2000 {
		if len(technologies) > 0 {
			condensed = "Technologies: " + strings.Join(capList(technologies, 15), ", ")
		} else {
			condensed = prompt[:500] + "..." + prompt[len(prompt)-200:]
		}
	}

	recommended := max(10, min(25, len(technologies)*2))

	response, err := o.llm.Generate(ctx, o.cfg.QueryModel,
		llm.QuerySynthesisSystem,
		fmt.Sprintf(llm.QuerySynthesisUser, condensed, recommended),
		&llm.Options{Temperature: 0.3, NumPredict: 1000})
	if err != nil {
		o.logger.Warn("discover: query synthesis failed, using literal query", "error", err)
		return []string{prompt}
	}

	strategy, err := llm.ParseStrategy(response)
	if err != nil {
		o.logger.Warn("discover: unparseable strategy, using literal query", "error", err)
		return []string{prompt}
	}
	return strategy.SearchQueries
}

// competitorQueries asks the LLM for alternatives to detected technologies
// and derives three queries per alternative.
func (o *Orchestrator) competitorQueries(ctx context.Context, prompt string) []string {
	if o.llm == nil {
		return nil
	}
	technologies := extractTechnologies(prompt)
	if len(technologies) == 0 {
		return nil
	}

	response, err := o.llm.Generate(ctx, o.cfg.QueryModel,
		"", fmt.Sprintf(llm.CompetitorPrompt, strings.Join(capList(technologies, 10), ", ")),
		&llm.Options{Temperature: 0.2, NumPredict: 300})
	if err != nil {
		o.logger.Warn("discover: competitor pass failed", "error", err)
		return nil
	}
	competitors, err := llm.ParseCompetitors(response)
	if err != nil {
		o.logger.Warn("discover: unparseable competitor map", "error", err)
		return nil
	}

	var queries []string
	for _, alternatives := range competitors {
		for _, alt := range capList(alternatives, 2) {
			queries = append(queries,
				alt+" official documentation",
				alt+" GitHub repository",
				alt+" tutorial video")
		}
	}
	return queries
}

// camelCase matches multi-hump identifiers likely to be product names,
// including those ending in capitals (FastAPI, ChromaDB, FreeSWITCH).
var camelCase = regexp.MustCompile(`\b[A-Z][a-z]+[A-Z][A-Za-z]*\b`)

// upperToken matches short all-caps tokens (SIP, TTS, GPT).
var upperToken = regexp.MustCompile(`\b[A-Z]{2,8}\b`)

// extractTechnologies pulls likely technology names from a prompt by
// shape: CamelCase identifiers and all-caps acronyms.
func extractTechnologies(text string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(tok string) {
		key := strings.ToLower(tok)
		if len(tok) < 3 || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, tok)
	}
	for _, m := range camelCase.FindAllString(text, -1) {
		add(m)
	}
	for _, m := range upperToken.FindAllString(text, -1) {
		add(m)
	}
	return out
}

func capList(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
