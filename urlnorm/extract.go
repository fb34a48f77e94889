// CLAUDE:SUMMARY Syntactic URL extraction from free-form input text.
package urlnorm

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)

// ExtractURLs returns all syntactically valid http(s) URLs found in text,
// in order of appearance, trailing punctuation trimmed.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	var out []string
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?)'\"")
		u, err := url.Parse(m)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
