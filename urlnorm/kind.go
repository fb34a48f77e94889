// CLAUDE:SUMMARY Source-kind detection from normalized URLs: video, channel, repo, doc site, plain web page.
package urlnorm

import (
	"net/url"
	"strings"
)

// Kind classifies a catalog entry by what fetcher handles it.
type Kind string

const (
	KindWebPage      Kind = "web_page"
	KindDocSitePage  Kind = "doc_site_page"
	KindRepo         Kind = "repo"
	KindVideo        Kind = "video"
	KindVideoChannel Kind = "video_channel"
)

var videoHosts = map[string]bool{
	"youtube.com":     true,
	"www.youtube.com": true,
	"m.youtube.com":   true,
	"youtu.be":        true,
}

var repoHosts = map[string]bool{
	"github.com":     true,
	"www.github.com": true,
	"gitlab.com":     true,
	"www.gitlab.com": true,
	"codeberg.org":   true,
	"bitbucket.org":  true,
}

var docHostSuffixes = []string{
	".readthedocs.io",
	".gitbook.io",
	".readme.io",
	".notion.site",
}

var docHostLabels = []string{"docs", "doc", "documentation", "wiki", "confluence"}

var docPathSegments = []string{"docs", "doc", "documentation", "tutorial", "guide", "learn", "blog", "article", "post", "news"}

func isVideoHost(host string) bool {
	return videoHosts[stripPort(host)]
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}

// DetectKind classifies a normalized URL. Web pages matching documentation
// heuristics are promoted to doc_site_page, which makes them crawl-eligible.
func DetectKind(normalized string) Kind {
	u, err := url.Parse(normalized)
	if err != nil {
		return KindWebPage
	}
	host := stripPort(strings.ToLower(u.Host))
	path := strings.ToLower(u.Path)

	if isVideoHost(host) {
		if host == "youtu.be" {
			return KindVideo
		}
		for _, p := range []string{"/channel/", "/c/", "/user/", "/@"} {
			if strings.Contains(path+"/", p) {
				return KindVideoChannel
			}
		}
		if strings.Contains(path, "/watch") || strings.Contains(path, "/shorts/") {
			return KindVideo
		}
		return KindVideo
	}

	if repoHosts[host] {
		if owner, repo := SplitRepoPath(path); owner != "" && repo != "" {
			return KindRepo
		}
		return KindWebPage
	}

	if IsDocumentationURL(normalized) {
		return KindDocSitePage
	}
	return KindWebPage
}

// IsDocumentationURL applies the documentation heuristics: a host label (or
// label prefix) among docs/doc/documentation/wiki/confluence, a known
// documentation-hosting suffix, or a documentation-shaped path segment.
func IsDocumentationURL(normalized string) bool {
	u, err := url.Parse(normalized)
	if err != nil {
		return false
	}
	host := stripPort(strings.ToLower(u.Host))

	for _, label := range strings.Split(host, ".") {
		for _, want := range docHostLabels {
			if label == want || strings.HasPrefix(label, want+"-") {
				return true
			}
		}
	}
	for _, suffix := range docHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		for _, want := range docPathSegments {
			if seg == want {
				return true
			}
		}
	}
	return false
}

// SplitRepoPath extracts owner and repository from a code-hosting path.
// Paths deeper than /owner/repo (tree, blob, issues) still resolve to the
// repository root; reserved first segments are rejected.
func SplitRepoPath(path string) (owner, repo string) {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(parts) < 2 {
		return "", ""
	}
	switch parts[0] {
	case "topics", "orgs", "search", "marketplace", "features", "sponsors", "settings", "explore", "trending", "about":
		return "", ""
	}
	repo = strings.TrimSuffix(parts[1], ".git")
	return parts[0], repo
}

// VideoID extracts the platform video identifier from a video URL.
func VideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := stripPort(strings.ToLower(u.Host))
	switch {
	case host == "youtu.be":
		return strings.Trim(u.Path, "/")
	case strings.Contains(u.Path, "/watch"):
		return u.Query().Get("v")
	case strings.Contains(u.Path, "/shorts/"):
		parts := strings.SplitN(u.Path, "/shorts/", 2)
		return strings.Trim(parts[1], "/")
	}
	return ""
}

// Domain returns the lowercased host of a URL, without port.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return stripPort(strings.ToLower(u.Host))
}
