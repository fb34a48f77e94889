// CLAUDE:SUMMARY URL normalization, hashing, and source-kind detection — the dedup foundation for the whole catalog.
// Package urlnorm provides the canonical URL form used for deduplication,
// the stable hash derived from it, and source-kind detection.
//
// Normalization is in the hot path of every insert and every crawl step:
// two URLs with identical normalized forms must hash identically, or the
// catalog's uniqueness guarantee collapses.
package urlnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// trackingParams are query keys stripped during normalization. They identify
// campaigns, not resources.
var trackingParams = map[string]bool{
	"fbclid":      true,
	"gclid":       true,
	"igshid":      true,
	"mc_cid":      true,
	"mc_eid":      true,
	"ref":         true,
	"ref_src":     true,
	"spm":         true,
	"yclid":       true,
	"_hsenc":      true,
	"_hsmi":       true,
	"mkt_tok":     true,
	"vero_id":     true,
	"wickedid":    true,
	"oly_anon_id": true,
	"oly_enc_id":  true,
}

var repeatedSlashes = regexp.MustCompile(`/{2,}`)

// Normalize returns the canonical form of a URL: lowercase scheme and host,
// default port stripped, fragment removed, tracking parameters dropped,
// remaining query sorted by key, repeated slashes collapsed, trailing slash
// removed except at root. Video URLs keep only the video-id parameter.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host")
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)

	// Strip default ports.
	if scheme == "http" {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":80")
	} else {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":443")
	}

	// Fragments are client-side only.
	parsed.Fragment = ""
	parsed.RawFragment = ""

	// Collapse repeated slashes, strip trailing slash except at root.
	path := repeatedSlashes.ReplaceAllString(parsed.Path, "/")
	path = strings.TrimRight(path, "/")
	parsed.Path = path
	parsed.RawPath = ""

	parsed.RawQuery = normalizeQuery(parsed)

	return parsed.String(), nil
}

// normalizeQuery drops tracking keys and sorts the remainder. For video
// watch URLs only the "v" parameter survives; channel URLs lose their query
// entirely.
func normalizeQuery(u *url.URL) string {
	if isVideoHost(u.Host) {
		if strings.Contains(u.Path, "/watch") {
			if v := u.Query().Get("v"); v != "" {
				return "v=" + url.QueryEscape(v)
			}
			return ""
		}
		return ""
	}

	if u.RawQuery == "" {
		return ""
	}

	params := u.Query()
	keys := make([]string, 0, len(params))
	for k := range params {
		if trackingParams[strings.ToLower(k)] || strings.HasPrefix(strings.ToLower(k), "utm_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf strings.Builder
	for i, k := range keys {
		vals := params[k]
		sort.Strings(vals)
		for j, v := range vals {
			if i > 0 || j > 0 {
				buf.WriteByte('&')
			}
			buf.WriteString(url.QueryEscape(k))
			buf.WriteByte('=')
			buf.WriteString(url.QueryEscape(v))
		}
	}
	return buf.String()
}

// Hash returns the stable hex identity of a URL's normalized form. The
// input is normalized first; passing an already-normalized URL is fine.
func Hash(raw string) (string, error) {
	normalized, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16]), nil
}
