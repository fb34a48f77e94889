// CLAUDE:SUMMARY Service configuration tree: YAML-loadable with defaults per section, validated at startup.
package kb

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/savoir/chunk"
	"github.com/hazyhaar/savoir/embedder"
	"github.com/hazyhaar/savoir/fault"
	"github.com/hazyhaar/savoir/llm"
	"github.com/hazyhaar/savoir/rerank"
)

// QueueConfig tunes the batch processor.
type QueueConfig struct {
	BatchSize   int     `json:"batch_size" yaml:"batch_size"`
	Workers     int     `json:"workers" yaml:"workers"`
	MaxRetries  int     `json:"max_retries" yaml:"max_retries"`
	RatePerHost float64 `json:"rate_per_host" yaml:"rate_per_host"`
	ChannelFull bool    `json:"channel_full" yaml:"channel_full"`
}

// CrawlConfig tunes documentation crawling.
type CrawlConfig struct {
	MaxPages  int           `json:"max_pages" yaml:"max_pages"`
	TimeBound time.Duration `json:"time_bound" yaml:"time_bound"`
}

// RefreshConfig tunes the scheduled refresher.
type RefreshConfig struct {
	// Cron is a standard five-field expression. Default: Monday 03:00.
	Cron    string `json:"cron" yaml:"cron"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Limit   int    `json:"limit" yaml:"limit"`
}

// SearchProviderConfig configures the web-search adapter.
type SearchProviderConfig struct {
	Endpoint string        `json:"endpoint" yaml:"endpoint"`
	APIKey   string        `json:"api_key" yaml:"api_key"`
	Country  string        `json:"country" yaml:"country"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// TranscriptConfig configures the transcript provider.
type TranscriptConfig struct {
	Endpoint  string        `json:"endpoint" yaml:"endpoint"`
	Languages []string      `json:"languages" yaml:"languages"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

// ChannelConfig configures channel expansion.
type ChannelConfig struct {
	Endpoint      string `json:"endpoint" yaml:"endpoint"`
	APIKey        string `json:"api_key" yaml:"api_key"`
	MaxVideos     int    `json:"max_videos" yaml:"max_videos"`
	MaxVideosFull int    `json:"max_videos_full" yaml:"max_videos_full"`
}

// ChunkConfig tunes splitting.
type ChunkConfig struct {
	MinTokens     int `json:"min_tokens" yaml:"min_tokens"`
	MaxTokens     int `json:"max_tokens" yaml:"max_tokens"`
	OverlapTokens int `json:"overlap_tokens" yaml:"overlap_tokens"`
}

// Config is the complete service configuration.
type Config struct {
	// CatalogPath is the catalog database file.
	CatalogPath string `json:"catalog_path" yaml:"catalog_path"`
	// VectorDir is the vector store directory. Both roots together form a
	// recoverable snapshot.
	VectorDir string `json:"vector_dir" yaml:"vector_dir"`
	// WorkspaceRoot holds temporary repository clone workspaces.
	WorkspaceRoot string `json:"workspace_root" yaml:"workspace_root"`
	// UserAgent sent on all HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
	// BrowserURL is an optional Chrome control URL for headless
	// rendering. Empty with RenderFallback launches a local instance.
	BrowserURL string `json:"browser_url" yaml:"browser_url"`
	// RenderFallback enables headless rendering of JS-heavy pages.
	RenderFallback bool `json:"render_fallback" yaml:"render_fallback"`
	// EnableCompetitors adds the competitor-discovery search pass.
	EnableCompetitors bool `json:"enable_competitors" yaml:"enable_competitors"`
	// SimilarityThreshold is the default retrieval cutoff.
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
	// LogLevel: debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level"`

	Queue      QueueConfig          `json:"queue" yaml:"queue"`
	Chunk      ChunkConfig          `json:"chunk" yaml:"chunk"`
	Crawl      CrawlConfig          `json:"crawl" yaml:"crawl"`
	Refresh    RefreshConfig        `json:"refresh" yaml:"refresh"`
	Embed      embedder.Config      `json:"embeddings" yaml:"embeddings"`
	LLM        llm.Config           `json:"llm" yaml:"llm"`
	Rerank     rerank.Config        `json:"rerank" yaml:"rerank"`
	Search     SearchProviderConfig `json:"search" yaml:"search"`
	Transcript TranscriptConfig     `json:"transcript" yaml:"transcript"`
	Channel    ChannelConfig        `json:"channel" yaml:"channel"`
}

// Defaults fills every unset option.
func (c *Config) Defaults() {
	if c.CatalogPath == "" {
		c.CatalogPath = "data/catalog.db"
	}
	if c.VectorDir == "" {
		c.VectorDir = "data/vectors"
	}
	if c.UserAgent == "" {
		c.UserAgent = "savoir/1.0 (knowledge base builder)"
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.3
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Queue.BatchSize <= 0 {
		c.Queue.BatchSize = 10
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 3
	}
	if c.Queue.MaxRetries <= 0 {
		c.Queue.MaxRetries = 3
	}
	if c.Queue.RatePerHost <= 0 {
		c.Queue.RatePerHost = 1.0
	}
	if c.Chunk.MinTokens <= 0 {
		c.Chunk.MinTokens = 100
	}
	if c.Chunk.MaxTokens <= 0 {
		c.Chunk.MaxTokens = 512
	}
	if c.Chunk.OverlapTokens <= 0 {
		c.Chunk.OverlapTokens = 50
	}
	if c.Crawl.MaxPages == 0 {
		c.Crawl.MaxPages = 1000
	}
	if c.Crawl.TimeBound <= 0 {
		c.Crawl.TimeBound = 10 * time.Minute
	}
	if c.Refresh.Cron == "" {
		c.Refresh.Cron = "0 3 * * 1"
	}
	if c.Refresh.Limit <= 0 {
		c.Refresh.Limit = 100
	}
	c.LLM.Defaults()
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	if c.CatalogPath == "" || c.VectorDir == "" {
		return fmt.Errorf("%w: catalog_path and vector_dir are required", fault.ErrConfig)
	}
	if c.Embed.Dimension < 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", fault.ErrConfig)
	}
	if c.Chunk.MinTokens > c.Chunk.MaxTokens {
		return fmt.Errorf("%w: chunk min_tokens %d exceeds max_tokens %d",
			fault.ErrConfig, c.Chunk.MinTokens, c.Chunk.MaxTokens)
	}
	return nil
}

// ChunkOptions converts the config section to splitter options.
func (c *Config) ChunkOptions() chunk.Options {
	return chunk.Options{
		MinTokens:     c.Chunk.MinTokens,
		MaxTokens:     c.Chunk.MaxTokens,
		OverlapTokens: c.Chunk.OverlapTokens,
	}
}

// LoadConfig reads a YAML config file and applies defaults. A missing path
// yields the default configuration.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				cfg.Defaults()
				return &cfg, cfg.Validate()
			}
			return nil, fmt.Errorf("%w: read %s: %v", fault.ErrConfig, path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", fault.ErrConfig, path, err)
		}
	}
	cfg.Defaults()
	return &cfg, cfg.Validate()
}
