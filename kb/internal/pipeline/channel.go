// CLAUDE:SUMMARY Channel expander: resolves a channel to its uploads playlist and enumerates bounded video URLs via the platform data API.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/savoir/fault"
)

// ChannelConfig configures the channel expander.
type ChannelConfig struct {
	// Endpoint is the platform data API base. Default: the public v3 API.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// APIKey authenticates data API calls. Empty disables expansion.
	APIKey string `json:"api_key" yaml:"api_key"`
	// MaxVideos bounds a default expansion. Default: 50.
	MaxVideos int `json:"max_videos" yaml:"max_videos"`
	// MaxVideosFull bounds an operator-requested full expansion. Default: 500.
	MaxVideosFull int `json:"max_videos_full" yaml:"max_videos_full"`
	// Timeout per call. Default: 30s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

func (c *ChannelConfig) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://www.googleapis.com/youtube/v3"
	}
	if c.MaxVideos <= 0 {
		c.MaxVideos = 50
	}
	if c.MaxVideosFull <= 0 {
		c.MaxVideosFull = 500
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// ChannelExpander enumerates a channel's recent uploads as video URLs. It
// produces no chunkable document itself; the channel entry is marked
// fetched after successful enumeration.
type ChannelExpander struct {
	cfg    ChannelConfig
	client *http.Client
}

// NewChannelExpander creates a ChannelExpander.
func NewChannelExpander(cfg ChannelConfig) *ChannelExpander {
	cfg.defaults()
	return &ChannelExpander{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// MaxVideos returns the bound for the given mode.
func (e *ChannelExpander) MaxVideos(full bool) int {
	if full {
		return e.cfg.MaxVideosFull
	}
	return e.cfg.MaxVideos
}

// Expand returns up to maxVideos recent video URLs from the channel.
func (e *ChannelExpander) Expand(ctx context.Context, channelURL string, maxVideos int) ([]string, error) {
	if e.cfg.APIKey == "" {
		return nil, fault.Permanentf("channel: no data API key configured")
	}
	if maxVideos <= 0 {
		maxVideos = e.cfg.MaxVideos
	}

	uploads, err := e.uploadsPlaylist(ctx, channelURL)
	if err != nil {
		return nil, err
	}

	ids, err := e.playlistVideoIDs(ctx, uploads, maxVideos)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		urls = append(urls, "https://www.youtube.com/watch?v="+id)
	}
	return urls, nil
}

type channelsResponse struct {
	Items []struct {
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// uploadsPlaylist resolves a channel URL (id, handle, or legacy username
// form) to its uploads playlist id.
func (e *ChannelExpander) uploadsPlaylist(ctx context.Context, channelURL string) (string, error) {
	u, err := url.Parse(channelURL)
	if err != nil {
		return "", fault.Permanent(err)
	}
	path := strings.Trim(u.Path, "/")

	q := url.Values{}
	q.Set("part", "contentDetails")
	switch {
	case strings.HasPrefix(path, "channel/"):
		q.Set("id", strings.TrimPrefix(path, "channel/"))
	case strings.HasPrefix(path, "@"):
		q.Set("forHandle", path)
	case strings.HasPrefix(path, "user/"):
		q.Set("forUsername", strings.TrimPrefix(path, "user/"))
	case strings.HasPrefix(path, "c/"):
		q.Set("forHandle", "@"+strings.TrimPrefix(path, "c/"))
	default:
		return "", fault.Permanentf("channel: unrecognized channel path %q", u.Path)
	}

	var out channelsResponse
	if err := e.call(ctx, "/channels", q, &out); err != nil {
		return "", err
	}
	if len(out.Items) == 0 {
		return "", fault.Permanentf("channel: not found: %s", channelURL)
	}
	uploads := out.Items[0].ContentDetails.RelatedPlaylists.Uploads
	if uploads == "" {
		return "", fault.Permanentf("channel: no uploads playlist: %s", channelURL)
	}
	return uploads, nil
}

type playlistItemsResponse struct {
	Items []struct {
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

func (e *ChannelExpander) playlistVideoIDs(ctx context.Context, playlistID string, maxVideos int) ([]string, error) {
	var ids []string
	pageToken := ""
	for len(ids) < maxVideos {
		q := url.Values{}
		q.Set("part", "contentDetails")
		q.Set("playlistId", playlistID)
		q.Set("maxResults", "50")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var out playlistItemsResponse
		if err := e.call(ctx, "/playlistItems", q, &out); err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			if id := item.ContentDetails.VideoID; id != "" {
				ids = append(ids, id)
				if len(ids) >= maxVideos {
					break
				}
			}
		}
		if out.NextPageToken == "" || len(out.Items) == 0 {
			break
		}
		pageToken = out.NextPageToken
	}
	return ids, nil
}

func (e *ChannelExpander) call(ctx context.Context, path string, q url.Values, out any) error {
	q.Set("key", e.cfg.APIKey)
	reqURL := strings.TrimRight(e.cfg.Endpoint, "/") + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fault.Permanent(err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fault.Transientf("channel: %v", err)
	}
	defer resp.Body.Close()

	if statusErr := fault.FromStatus(resp.StatusCode); statusErr != nil {
		return fmt.Errorf("channel: %w", statusErr)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Transientf("channel: decode: %v", err)
	}
	return nil
}
