// CLAUDE:SUMMARY Queue processor: claim batches, dispatch by kind to fetchers/crawler/expander, index chunks, account failures.
// Package queue drains the pending portion of the catalog, producing
// indexed chunks.
//
// Batches are claimed transactionally, partitioned by kind, and dispatched
// to the matching fetcher under a bounded worker pool with per-host rate
// limiting. Failures translate to catalog state per the failure taxonomy;
// the processor itself absorbs them.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/savoir/catalog"
	"github.com/hazyhaar/savoir/fault"
	"github.com/hazyhaar/savoir/kb/internal/crawl"
	"github.com/hazyhaar/savoir/kb/internal/pipeline"
	"github.com/hazyhaar/savoir/urlnorm"
	"github.com/hazyhaar/savoir/vecstore"
)

// Expander enumerates a channel's videos.
type Expander interface {
	Expand(ctx context.Context, channelURL string, maxVideos int) ([]string, error)
	MaxVideos(full bool) int
}

// Crawler enumerates a documentation domain.
type Crawler func(ctx context.Context, startURL string) (*crawl.Result, error)

// Config tunes the processor.
type Config struct {
	// BatchSize entries are claimed per loop iteration. Default: 10.
	BatchSize int
	// Workers bounds concurrent fetches across all hosts. Default: 3.
	Workers int
	// MaxRetries before an entry sticks at failed. Default: 3.
	MaxRetries int
	// RatePerHost is the per-host token emission rate. Default: 1/s.
	RatePerHost float64
	// ChannelFull opts channel expansion into the full bound.
	ChannelFull bool
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RatePerHost <= 0 {
		c.RatePerHost = 1.0
	}
}

// Deps are the collaborators the processor drives.
type Deps struct {
	Catalog  *catalog.Store
	Vec      *vecstore.Store
	Web      pipeline.Fetcher
	Repo     pipeline.Fetcher
	Video    pipeline.Fetcher
	Expander Expander
	Process  *pipeline.Processor
	Crawl    Crawler
	// OnIndexMutation fires after any vector index change (lexical
	// invalidation).
	OnIndexMutation func()
	Logger          *slog.Logger
}

// Stats summarizes one ProcessQueue run.
type Stats struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Runner executes the queue-processing loop.
type Runner struct {
	deps    Deps
	cfg     Config
	limiter *hostLimiter
	logger  *slog.Logger
}

// New creates a Runner.
func New(deps Deps, cfg Config) *Runner {
	cfg.defaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		deps:    deps,
		cfg:     cfg,
		limiter: newHostLimiter(cfg.RatePerHost),
		logger:  logger,
	}
}

// RefreshPolicyFor returns the refresh policy for a kind: videos never
// change, repositories move fast, documentation drifts, everything else is
// monthly.
func RefreshPolicyFor(kind string) string {
	switch urlnorm.Kind(kind) {
	case urlnorm.KindVideo:
		return catalog.RefreshNever
	case urlnorm.KindRepo:
		return catalog.RefreshDays(7)
	case urlnorm.KindDocSitePage:
		return catalog.RefreshDays(14)
	default:
		return catalog.RefreshDays(30)
	}
}

// ProcessQueue drains pending entries until the queue is empty, maxBatches
// is reached (maxBatches <= 0 means unbounded), or the context ends. The
// stop signal is observed between batches and between per-document stages.
func (r *Runner) ProcessQueue(ctx context.Context, maxBatches int) (Stats, error) {
	var stats Stats
	batches := 0

	for {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if maxBatches > 0 && batches >= maxBatches {
			return stats, nil
		}

		batch, err := r.deps.Catalog.ClaimBatch(ctx, r.cfg.BatchSize)
		if err != nil {
			return stats, fmt.Errorf("queue: claim: %w", err)
		}
		if len(batch) == 0 {
			return stats, nil
		}
		batches++

		var mu sync.Mutex
		var wg sync.WaitGroup
		slots := make(chan struct{}, r.cfg.Workers)
		for _, entry := range batch {
			wg.Add(1)
			go func(entry *catalog.Entry) {
				defer wg.Done()
				slots <- struct{}{}
				defer func() { <-slots }()

				outcome := r.processEntry(ctx, entry)
				mu.Lock()
				switch outcome {
				case outcomeSucceeded:
					stats.Succeeded++
				case outcomeFailed:
					stats.Failed++
				default:
					stats.Skipped++
				}
				mu.Unlock()
			}(entry)
		}
		wg.Wait()
	}
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeSkipped
)

// processEntry runs one catalog entry through its kind's pipeline and
// records the result.
func (r *Runner) processEntry(ctx context.Context, entry *catalog.Entry) outcome {
	log := r.logger.With("url", entry.URL, "kind", entry.Kind)
	if ctx.Err() != nil {
		// The claim is released with a fresh context so a cancelled run
		// does not strand the entry.
		r.deps.Catalog.ReleaseClaims(context.Background())
		return outcomeSkipped
	}

	host := urlnorm.Domain(entry.URL)
	if err := r.limiter.Wait(ctx, host); err != nil {
		return outcomeSkipped
	}

	var err error
	switch urlnorm.Kind(entry.Kind) {
	case urlnorm.KindVideoChannel:
		err = r.expandChannel(ctx, entry)
	default:
		err = r.ingest(ctx, entry)
	}

	if err == nil {
		r.limiter.Reset(host)
		return outcomeSucceeded
	}
	if ctx.Err() != nil {
		return outcomeSkipped
	}

	permanent := !fault.IsTransient(err)
	if !permanent {
		r.limiter.Backoff(host)
	}
	if markErr := r.deps.Catalog.MarkFailed(ctx, entry.URLHash, err.Error(), permanent, r.cfg.MaxRetries); markErr != nil {
		log.Error("queue: mark failed", "error", markErr)
	}
	log.Warn("queue: entry failed", "permanent", permanent, "error", err)
	return outcomeFailed
}

// ingest fetches, chunks, embeds, and stores one entry. Crawl-eligible
// documentation pages first expand the catalog, then are fetched normally.
func (r *Runner) ingest(ctx context.Context, entry *catalog.Entry) error {
	if r.crawlEligible(entry) {
		if err := r.runCrawl(ctx, entry); err != nil {
			// Crawl trouble is not fatal to the page itself.
			r.logger.Warn("queue: crawl failed", "url", entry.URL, "error", err)
		}
	}

	fetcher, err := r.fetcherFor(entry.Kind)
	if err != nil {
		return err
	}

	doc, err := fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	records, err := r.deps.Process.Build(ctx, entry.URL, entry.Kind, doc)
	if err != nil {
		return err
	}

	// Replacement: deletion of any previous chunks precedes insertion; on
	// first ingest the delete is a no-op.
	if err := r.deps.Vec.ReplaceSourceURL(ctx, entry.URL, records); err != nil {
		return err
	}
	if r.deps.OnIndexMutation != nil {
		r.deps.OnIndexMutation()
	}

	return r.markFetched(ctx, entry)
}

func (r *Runner) fetcherFor(kind string) (pipeline.Fetcher, error) {
	switch urlnorm.Kind(kind) {
	case urlnorm.KindRepo:
		return r.deps.Repo, nil
	case urlnorm.KindVideo:
		return r.deps.Video, nil
	case urlnorm.KindWebPage, urlnorm.KindDocSitePage:
		return r.deps.Web, nil
	default:
		return nil, fault.Permanentf("no fetcher for kind %q", kind)
	}
}

// crawlEligible: documentation pages not themselves discovered by a crawl.
// The discovered_from marker is the recursion brake.
func (r *Runner) crawlEligible(entry *catalog.Entry) bool {
	if r.deps.Crawl == nil {
		return false
	}
	if urlnorm.Kind(entry.Kind) != urlnorm.KindDocSitePage {
		return false
	}
	return !strings.HasPrefix(entry.DiscoveredFrom, "crawl:")
}

// runCrawl enumerates the documentation domain and inserts discovered
// pages as ordinary pending entries.
func (r *Runner) runCrawl(ctx context.Context, entry *catalog.Entry) error {
	result, err := r.deps.Crawl(ctx, entry.URL)
	if err != nil {
		return err
	}

	entries := make([]*catalog.Entry, 0, len(result.Discovered))
	for _, u := range result.Discovered {
		if u == entry.URL {
			continue
		}
		hash, err := urlnorm.Hash(u)
		if err != nil {
			continue
		}
		entries = append(entries, &catalog.Entry{
			URLHash:        hash,
			URL:            u,
			Kind:           string(urlnorm.KindWebPage),
			Priority:       discoveredPriority,
			DiscoveredFrom: "crawl:" + entry.URL,
			RefreshPolicy:  RefreshPolicyFor(string(urlnorm.KindWebPage)),
		})
	}

	res, err := r.deps.Catalog.InsertIfAbsent(ctx, entries)
	if err != nil {
		return err
	}
	r.logger.Info("queue: crawl complete", "start", entry.URL,
		"discovered", len(result.Discovered), "added", res.Added, "skipped", res.Skipped)
	return nil
}

// discoveredPriority applies to crawler- and channel-discovered entries.
const discoveredPriority = 50

// expandChannel enumerates a channel's videos into pending entries. The
// channel itself yields no chunks and is marked fetched on success.
func (r *Runner) expandChannel(ctx context.Context, entry *catalog.Entry) error {
	if r.deps.Expander == nil {
		return fault.Permanentf("channel expansion not configured")
	}

	maxVideos := r.deps.Expander.MaxVideos(r.cfg.ChannelFull)
	urls, err := r.deps.Expander.Expand(ctx, entry.URL, maxVideos)
	if err != nil {
		return err
	}

	entries := make([]*catalog.Entry, 0, len(urls))
	for _, raw := range urls {
		normalized, err := urlnorm.Normalize(raw)
		if err != nil {
			continue
		}
		hash, err := urlnorm.Hash(normalized)
		if err != nil {
			continue
		}
		entries = append(entries, &catalog.Entry{
			URLHash:        hash,
			URL:            normalized,
			Kind:           string(urlnorm.KindVideo),
			Priority:       discoveredPriority,
			DiscoveredFrom: "channel:" + entry.URL,
			RefreshPolicy:  catalog.RefreshNever,
		})
	}

	res, err := r.deps.Catalog.InsertIfAbsent(ctx, entries)
	if err != nil {
		return err
	}
	r.logger.Info("queue: channel expanded", "channel", entry.URL,
		"videos", len(urls), "added", res.Added, "skipped", res.Skipped)

	return r.markFetched(ctx, entry)
}

func (r *Runner) markFetched(ctx context.Context, entry *catalog.Entry) error {
	now := time.Now()
	var next *time.Time
	if interval, ok := catalog.RefreshInterval(entry.RefreshPolicy); ok {
		t := now.Add(interval)
		next = &t
	}
	return r.deps.Catalog.MarkFetched(ctx, entry.URLHash, now, next)
}
