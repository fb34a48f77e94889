// CLAUDE:SUMMARY Candidate URL filtering and quality scoring: blocklist patterns plus per-host bonuses.
package discover

import "regexp"

// blocklist drops low-quality, promotional, and off-topic URLs before they
// ever reach the catalog.
var blocklist = []*regexp.Regexp{
	regexp.MustCompile(`(?i)best.*courses`),
	regexp.MustCompile(`(?i)top.*courses`),
	regexp.MustCompile(`(?i)learn.*online`),
	regexp.MustCompile(`(?i)udemy\.com`),
	regexp.MustCompile(`(?i)coursera\.org`),
	regexp.MustCompile(`(?i)skillshare\.com`),
	regexp.MustCompile(`(?i)pluralsight\.com`),
	regexp.MustCompile(`(?i)educative\.io`),
	regexp.MustCompile(`(?i)pinterest\.com`),
	regexp.MustCompile(`(?i)instagram\.com`),
	regexp.MustCompile(`(?i)facebook\.com`),
	regexp.MustCompile(`(?i)/news/`),
	regexp.MustCompile(`(?i)press-release`),
}

// qualityPattern awards an integer bonus to URL shapes that historically
// carry indexable content: channels highest, then playlists, then
// videos/repositories/documentation hosts.
type qualityPattern struct {
	re    *regexp.Regexp
	bonus int
}

var qualityPatterns = []qualityPattern{
	{regexp.MustCompile(`(?i)youtube\.com/@`), 5},
	{regexp.MustCompile(`(?i)youtube\.com/c/`), 5},
	{regexp.MustCompile(`(?i)youtube\.com/channel/`), 5},
	{regexp.MustCompile(`(?i)youtube\.com/user/`), 5},
	{regexp.MustCompile(`(?i)youtube\.com/playlist`), 4},
	{regexp.MustCompile(`(?i)youtube\.com/watch`), 3},
	{regexp.MustCompile(`(?i)github\.com/[\w.-]+/[\w.-]+`), 3},
	{regexp.MustCompile(`(?i)readthedocs\.io`), 3},
	{regexp.MustCompile(`(?i)docs\.[^/]+\.(com|org|io)`), 3},
	{regexp.MustCompile(`(?i)stackoverflow\.com/questions`), 2},
	{regexp.MustCompile(`(?i)tutorial`), 1},
	{regexp.MustCompile(`(?i)guide`), 1},
	{regexp.MustCompile(`(?i)example`), 1},
}

// Blocked reports whether a URL matches the blocklist.
func Blocked(url string) bool {
	for _, re := range blocklist {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// topicListing matches code-host aggregation pages that look like
// repositories but are not.
var topicListing = regexp.MustCompile(`(?i)github\.com/(topics|search|trending|marketplace)`)

// QualityScore sums the bonuses of all matching quality patterns.
func QualityScore(url string) int {
	score := 0
	for _, p := range qualityPatterns {
		if p.re.MatchString(url) {
			if p.bonus == 3 && topicListing.MatchString(url) {
				continue
			}
			score += p.bonus
		}
	}
	return score
}
