// CLAUDE:SUMMARY Input classification: syntactic URLs bypass search, everything else becomes a research prompt.
// Package discover translates free-form input into a deduplicated set of
// candidate URLs: direct URLs pass through, prompts go through LLM query
// synthesis and the web-search provider.
package discover

import (
	"strings"

	"github.com/hazyhaar/savoir/urlnorm"
)

// InputKind classifies what the user handed us.
type InputKind string

const (
	// InputURLs means the text contained explicit URLs; search is skipped.
	InputURLs InputKind = "urls"
	// InputPrompt means free text needing query synthesis and web search.
	InputPrompt InputKind = "prompt"
)

// Input is the analyzed form of raw user text.
type Input struct {
	Kind InputKind
	URLs []string // present for InputURLs
	Text string   // the prompt, or remaining text around URLs
}

// Analyze extracts syntactic URLs from the text. Any valid URL makes the
// input URL-typed; otherwise the whole text is a prompt.
func Analyze(raw string) Input {
	urls := urlnorm.ExtractURLs(raw)
	if len(urls) > 0 {
		rest := raw
		for _, u := range urls {
			rest = strings.ReplaceAll(rest, u, "")
		}
		return Input{Kind: InputURLs, URLs: urls, Text: strings.TrimSpace(rest)}
	}
	return Input{Kind: InputPrompt, Text: strings.TrimSpace(raw)}
}
