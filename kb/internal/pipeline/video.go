// CLAUDE:SUMMARY Video fetcher: transcript-provider HTTPS call, timestamped segments, permanent failure on missing transcripts.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/savoir/chunk"
	"github.com/hazyhaar/savoir/fault"
	"github.com/hazyhaar/savoir/urlnorm"
)

// TranscriptConfig configures the transcript provider.
type TranscriptConfig struct {
	// Endpoint is the transcript service base URL.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// Languages is the preference order requested. Default: en.
	Languages []string `json:"languages" yaml:"languages"`
	// Timeout per call. Default: 30s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

func (c *TranscriptConfig) defaults() {
	if len(c.Languages) == 0 {
		c.Languages = []string{"en"}
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// VideoFetcher pulls transcripts and metadata from the transcript provider.
// Videos are immutable: a fetched video is never refreshed.
type VideoFetcher struct {
	cfg    TranscriptConfig
	client *http.Client
}

// NewVideoFetcher creates a VideoFetcher.
func NewVideoFetcher(cfg TranscriptConfig) *VideoFetcher {
	cfg.defaults()
	return &VideoFetcher{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// transcriptResponse is the provider's per-video shape.
type transcriptResponse struct {
	VideoID     string          `json:"video_id"`
	Title       string          `json:"title"`
	Language    string          `json:"language"`
	DurationSec float64         `json:"duration"`
	Segments    []chunk.Segment `json:"segments"`
}

// Fetch retrieves the transcript for one video URL. A missing transcript is
// permanent: retrying cannot conjure captions.
func (v *VideoFetcher) Fetch(ctx context.Context, videoURL string) (*FetchedDocument, error) {
	videoID := urlnorm.VideoID(videoURL)
	if videoID == "" {
		return nil, fault.Permanentf("video: no video id in %s", videoURL)
	}
	if v.cfg.Endpoint == "" {
		return nil, fault.Permanentf("video: no transcript provider configured")
	}

	q := url.Values{}
	q.Set("video_id", videoID)
	q.Set("languages", strings.Join(v.cfg.Languages, ","))
	reqURL := strings.TrimRight(v.cfg.Endpoint, "/") + "/transcript?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fault.Permanent(err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fault.Transientf("video: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fault.Permanentf("video: no transcript for %s", videoID)
	case resp.StatusCode != http.StatusOK:
		if statusErr := fault.FromStatus(resp.StatusCode); statusErr != nil {
			return nil, fmt.Errorf("video: %w", statusErr)
		}
	}

	var tr transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fault.Transientf("video: decode: %v", err)
	}
	if len(tr.Segments) == 0 {
		return nil, fault.Permanentf("video: empty transcript for %s", videoID)
	}

	var sb strings.Builder
	for i, seg := range tr.Segments {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.TrimSpace(seg.Text))
	}
	text := sb.String()
	sum := sha256.Sum256([]byte(text))

	return &FetchedDocument{
		Text:        text,
		Title:       tr.Title,
		Language:    tr.Language,
		DurationSec: tr.DurationSec,
		Segments:    tr.Segments,
		ContentHash: fmt.Sprintf("%x", sum),
	}, nil
}
