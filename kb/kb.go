// CLAUDE:SUMMARY Main service orchestrator: wiring, the five exposed operations, maintenance, and the refresh schedule.
// Package kb assembles the knowledge-base service: discovery, the queue
// processor, the refresher, and hybrid retrieval over the catalog and
// vector stores.
//
// The two on-disk roots (catalog database file, vector store directory)
// back up together as one recoverable snapshot.
package kb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hazyhaar/savoir/catalog"
	"github.com/hazyhaar/savoir/embedder"
	"github.com/hazyhaar/savoir/kb/internal/crawl"
	"github.com/hazyhaar/savoir/kb/internal/discover"
	"github.com/hazyhaar/savoir/kb/internal/fetch"
	"github.com/hazyhaar/savoir/kb/internal/pipeline"
	"github.com/hazyhaar/savoir/kb/internal/queue"
	"github.com/hazyhaar/savoir/kb/internal/refresh"
	"github.com/hazyhaar/savoir/kb/internal/retrieve"
	"github.com/hazyhaar/savoir/llm"
	"github.com/hazyhaar/savoir/rerank"
	"github.com/hazyhaar/savoir/urlnorm"
	"github.com/hazyhaar/savoir/vecstore"
)

// Service is the knowledge-base orchestrator.
type Service struct {
	cfg    *Config
	logger *slog.Logger

	catalog *catalog.Store
	vec     *vecstore.Store
	lex     *lazyLexical

	orchestrator *discover.Orchestrator
	runner       *queue.Runner
	refresher    *refresh.Refresher
	engine       *retrieve.Engine

	renderer *pipeline.RodRenderer // nil unless render fallback is on
	cron     *cron.Cron
}

// ServiceOption overrides a collaborator during construction (tests).
type ServiceOption func(*buildState)

type buildState struct {
	search   discover.SearchClient
	validate func(string) error
}

// WithSearchClient replaces the web-search adapter.
func WithSearchClient(c discover.SearchClient) ServiceOption {
	return func(b *buildState) { b.search = c }
}

// WithURLValidator replaces fetch-time URL validation (tests against
// loopback servers).
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(b *buildState) { b.validate = fn }
}

// New opens the stores and wires the service.
func New(cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var build buildState
	for _, opt := range opts {
		opt(&build)
	}

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	// Entries claimed by a previous run re-enter the queue.
	if err := cat.ReleaseClaims(context.Background()); err != nil {
		cat.Close()
		return nil, fmt.Errorf("kb: release claims: %w", err)
	}

	dim := cfg.Embed.Dimension
	if dim <= 0 {
		dim = 768
	}
	vec, err := vecstore.Open(cfg.VectorDir, dim)
	if err != nil {
		cat.Close()
		return nil, err
	}

	lex, err := newLazyLexical(cat, vec, logger)
	if err != nil {
		cat.Close()
		return nil, err
	}

	emb := embedder.New(cfg.Embed)
	llmClient := llm.New(cfg.LLM)
	enricher := llm.NewEnricher(llmClient, cfg.LLM.EnrichModel, logger)
	reranker := rerank.New(cfg.Rerank)

	searchClient := build.search
	if searchClient == nil {
		searchClient = discover.NewSearchClient(discover.SearchConfig{
			Endpoint: cfg.Search.Endpoint,
			APIKey:   cfg.Search.APIKey,
			Country:  cfg.Search.Country,
			Timeout:  cfg.Search.Timeout,
		}, func(apiName string, success bool, latency time.Duration, quota *int) {
			err := cat.LogAPICall(context.Background(), catalog.APICall{
				APIName:        apiName,
				Success:        success,
				LatencyMs:      latency.Milliseconds(),
				RemainingQuota: quota,
			})
			if err != nil {
				logger.Debug("kb: api call log", "error", err)
			}
		})
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent:    cfg.UserAgent,
		URLValidator: build.validate,
	})

	var renderer *pipeline.RodRenderer
	var webRenderer pipeline.Renderer
	if cfg.RenderFallback {
		renderer = pipeline.NewRodRenderer(cfg.BrowserURL, 30*time.Second, logger)
		webRenderer = renderer
	}

	web := pipeline.NewWebFetcher(fetcher, webRenderer, logger)
	repo := pipeline.NewRepoFetcher(cfg.WorkspaceRoot, logger)
	video := pipeline.NewVideoFetcher(pipeline.TranscriptConfig{
		Endpoint:  cfg.Transcript.Endpoint,
		Languages: cfg.Transcript.Languages,
		Timeout:   cfg.Transcript.Timeout,
	})
	expander := pipeline.NewChannelExpander(pipeline.ChannelConfig{
		Endpoint:      cfg.Channel.Endpoint,
		APIKey:        cfg.Channel.APIKey,
		MaxVideos:     cfg.Channel.MaxVideos,
		MaxVideosFull: cfg.Channel.MaxVideosFull,
	})

	processor := pipeline.NewProcessor(emb, enricher, cfg.ChunkOptions(), logger)

	crawlFn := func(ctx context.Context, startURL string) (*crawl.Result, error) {
		return crawl.Crawl(ctx, startURL, crawl.Config{
			MaxPages:  cfg.Crawl.MaxPages,
			TimeBound: cfg.Crawl.TimeBound,
			UserAgent: cfg.UserAgent,
			Logger:    logger,
		})
	}

	svc := &Service{
		cfg:      cfg,
		logger:   logger,
		catalog:  cat,
		vec:      vec,
		lex:      lex,
		renderer: renderer,
	}

	svc.orchestrator = discover.New(llmClient, searchClient, discover.Config{
		EnableCompetitors: cfg.EnableCompetitors,
		QueryModel:        cfg.LLM.QueryModel,
	}, logger)

	svc.runner = queue.New(queue.Deps{
		Catalog:         cat,
		Vec:             vec,
		Web:             web,
		Repo:            repo,
		Video:           video,
		Expander:        expander,
		Process:         processor,
		Crawl:           crawlFn,
		OnIndexMutation: lex.Invalidate,
		Logger:          logger,
	}, queue.Config{
		BatchSize:   cfg.Queue.BatchSize,
		Workers:     cfg.Queue.Workers,
		MaxRetries:  cfg.Queue.MaxRetries,
		RatePerHost: cfg.Queue.RatePerHost,
		ChannelFull: cfg.Queue.ChannelFull,
	})

	svc.refresher = refresh.New(refresh.Deps{
		Catalog:         cat,
		Vec:             vec,
		Head:            fetcher.Head,
		RemoteTip:       repo.RemoteTip,
		Web:             web,
		Repo:            repo,
		Process:         processor,
		OnIndexMutation: lex.Invalidate,
		Logger:          logger,
	}, refresh.Config{Limit: cfg.Refresh.Limit, MaxRetries: cfg.Queue.MaxRetries})

	svc.engine = retrieve.New(emb, vec, lex, reranker, llmClient, cfg.LLM.QueryModel, cfg.SimilarityThreshold, logger)

	return svc, nil
}

// Start launches the refresh schedule when enabled. Non-blocking.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Refresh.Enabled {
		s.logger.Info("kb: auto-refresh disabled")
		return nil
	}
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.cfg.Refresh.Cron, func() {
		stats, err := s.RefreshOnce(ctx)
		if err != nil {
			s.logger.Error("kb: scheduled refresh", "error", err)
			return
		}
		s.logger.Info("kb: scheduled refresh complete",
			"checked", stats.Checked, "unchanged", stats.Unchanged,
			"updated", stats.Updated, "failed", stats.Failed)
	})
	if err != nil {
		return fmt.Errorf("%w: refresh cron %q: %v", ErrInvalidInput, s.cfg.Refresh.Cron, err)
	}
	s.cron.Start()
	s.logger.Info("kb: auto-refresh scheduled", "cron", s.cfg.Refresh.Cron)
	return nil
}

// Close releases every resource.
func (s *Service) Close() error {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.renderer != nil {
		s.renderer.Close()
	}
	s.lex.Close()
	return s.catalog.Close()
}

// AddResult reports an AddSources call.
type AddResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// AddSources performs discovery on the input (URLs or a research prompt)
// and inserts the candidates into the catalog.
func (s *Service) AddSources(ctx context.Context, input string) (AddResult, error) {
	if strings.TrimSpace(input) == "" {
		return AddResult{}, fmt.Errorf("%w: empty input", ErrInvalidInput)
	}

	candidates, err := s.orchestrator.Discover(ctx, input)
	if err != nil {
		return AddResult{}, err
	}

	entries := make([]*catalog.Entry, 0, len(candidates))
	for _, c := range candidates {
		hash, err := urlnorm.Hash(c.URL)
		if err != nil {
			continue
		}
		entries = append(entries, &catalog.Entry{
			URLHash:        hash,
			URL:            c.URL,
			Kind:           string(c.Kind),
			Priority:       c.Priority,
			DiscoveredFrom: c.DiscoveredFrom,
			RefreshPolicy:  queue.RefreshPolicyFor(string(c.Kind)),
		})
	}

	res, err := s.catalog.InsertIfAbsent(ctx, entries)
	if err != nil {
		return AddResult{}, err
	}
	s.logger.Info("kb: sources added", "added", res.Added, "skipped", res.Skipped)
	return AddResult{Added: res.Added, Skipped: res.Skipped}, nil
}

// ProcessQueue drains pending catalog entries. maxBatches <= 0 means run
// until the queue is empty.
func (s *Service) ProcessQueue(ctx context.Context, maxBatches int) (queue.Stats, error) {
	return s.runner.ProcessQueue(ctx, maxBatches)
}

// SearchFlags toggles retrieval stages.
type SearchFlags struct {
	Hybrid    bool     `json:"hybrid"`
	Reranking bool     `json:"reranking"`
	Expansion bool     `json:"expansion"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// Search returns ranked passages for a query, with degradation warnings.
func (s *Service) Search(ctx context.Context, query string, k int, filters map[string]string, flags SearchFlags) ([]retrieve.Result, []string, error) {
	return s.engine.Search(ctx, query, retrieve.Options{
		K:         k,
		Filter:    filters,
		Hybrid:    flags.Hybrid,
		Rerank:    flags.Reranking,
		Expansion: flags.Expansion,
		Threshold: flags.Threshold,
	})
}

// RefreshOnce runs one refresh pass over due entries.
func (s *Service) RefreshOnce(ctx context.Context) (refresh.Stats, error) {
	return s.refresher.RunOnce(ctx)
}

// Status summarizes stores and external API usage.
type Status struct {
	CatalogByStatus map[string]int             `json:"catalog_by_status"`
	CatalogByKind   map[string]int             `json:"catalog_by_kind"`
	Chunks          int                        `json:"chunks"`
	APIUsage        map[string]catalog.APIUsage `json:"api_usage"`
}

// GetStatus reports catalog counts, chunk count, and a 24h API quota
// snapshot.
func (s *Service) GetStatus(ctx context.Context) (*Status, error) {
	byStatus, err := s.catalog.CountsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	byKind, err := s.catalog.CountsByKind(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := s.catalog.APIUsageSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	return &Status{
		CatalogByStatus: byStatus,
		CatalogByKind:   byKind,
		Chunks:          s.vec.Count(),
		APIUsage:        usage,
	}, nil
}

// ClearQueue deletes pending and/or failed entries. Fetched entries are
// never touched.
func (s *Service) ClearQueue(ctx context.Context, statuses ...string) (int, error) {
	if len(statuses) == 0 {
		statuses = []string{catalog.StatusPending, catalog.StatusFailed}
	}
	return s.catalog.Clear(ctx, statuses...)
}

// RetryFailed returns failed entries to the queue with a fresh retry
// budget.
func (s *Service) RetryFailed(ctx context.Context) (int, error) {
	return s.catalog.RetryFailed(ctx)
}

// Reset wipes both persistent roots together.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.catalog.DeleteAll(ctx); err != nil {
		return err
	}
	if err := s.vec.Reset(); err != nil {
		return err
	}
	s.lex.Invalidate()
	s.logger.Warn("kb: catalog and vector store wiped")
	return nil
}
