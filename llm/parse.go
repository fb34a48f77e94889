// CLAUDE:SUMMARY Parse contracts for LLM JSON output: fence stripping, query strategy, competitor map, enrichment metadata.
package llm

import (
	"encoding/json"
	"strings"
)

// Strategy is the query-synthesis output shape.
type Strategy struct {
	SearchQueries []string `json:"search_queries"`
	Topics        []string `json:"topics"`
	Keywords      []string `json:"keywords"`
}

// Enrichment is the metadata-enrichment output shape. The zero value is the
// graceful-degradation result for unparseable responses.
type Enrichment struct {
	Topics     []string `json:"topics"`
	Keywords   []string `json:"keywords"`
	Summary    string   `json:"summary"`
	Concepts   []string `json:"concepts"`
	Difficulty string   `json:"difficulty"`
	Languages  []string `json:"languages"`
	Frameworks []string `json:"frameworks"`
}

var difficulties = map[string]bool{"beginner": true, "intermediate": true, "advanced": true}

// StripFences removes a surrounding markdown code fence (``` or ```json)
// that models add despite instructions, and trims to the outermost JSON
// object when prose surrounds it.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) >= 2 {
			lines = lines[1:]
			if strings.TrimSpace(lines[len(lines)-1]) == "```" {
				lines = lines[:len(lines)-1]
			}
			s = strings.TrimSpace(strings.Join(lines, "\n"))
		}
	}
	if start := strings.IndexByte(s, '{'); start >= 0 {
		if end := strings.LastIndexByte(s, '}'); end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// ParseStrategy parses the query-synthesis response. An empty query list is
// an error: the caller falls back to a literal query.
func ParseStrategy(response string) (*Strategy, error) {
	var s Strategy
	if err := json.Unmarshal([]byte(StripFences(response)), &s); err != nil {
		return nil, err
	}
	s.SearchQueries = dropEmpty(s.SearchQueries)
	if len(s.SearchQueries) == 0 {
		return nil, errEmptyQueries
	}
	return &s, nil
}

var errEmptyQueries = jsonError("no search queries in response")

type jsonError string

func (e jsonError) Error() string { return string(e) }

// ParseCompetitors parses the competitor-discovery response: a map from
// technology to alternatives.
func ParseCompetitors(response string) (map[string][]string, error) {
	var m map[string][]string
	if err := json.Unmarshal([]byte(StripFences(response)), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseEnrichment parses the enrichment response. Invalid JSON yields the
// zero Enrichment and ok=false; ingestion continues either way.
func ParseEnrichment(response string) (Enrichment, bool) {
	var e Enrichment
	if err := json.Unmarshal([]byte(StripFences(response)), &e); err != nil {
		return Enrichment{}, false
	}
	if !difficulties[e.Difficulty] {
		e.Difficulty = ""
	}
	e.Topics = dropEmpty(e.Topics)
	e.Keywords = dropEmpty(e.Keywords)
	e.Concepts = dropEmpty(e.Concepts)
	e.Languages = dropEmpty(e.Languages)
	e.Frameworks = dropEmpty(e.Frameworks)
	return e, true
}

func dropEmpty(items []string) []string {
	out := items[:0]
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
