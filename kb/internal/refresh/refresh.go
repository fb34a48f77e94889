// CLAUDE:SUMMARY Refresher: validator cheap checks (HEAD, remote tip), content-hash confirmation, atomic chunk replacement.
// Package refresh keeps indexed entries current at low cost.
//
// Cheap checks run first: HTTP validators for pages, the remote tip commit
// for repositories. Only a confirmed change (or absent validators followed
// by a differing content hash) touches the vector index, and then always
// as delete-then-add under the store's replacement lock.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/savoir/catalog"
	"github.com/hazyhaar/savoir/fault"
	"github.com/hazyhaar/savoir/kb/internal/fetch"
	"github.com/hazyhaar/savoir/kb/internal/pipeline"
	"github.com/hazyhaar/savoir/urlnorm"
	"github.com/hazyhaar/savoir/vecstore"
)

// Deps are the refresher's collaborators.
type Deps struct {
	Catalog *catalog.Store
	Vec     *vecstore.Store
	// Head probes HTTP validators (10s deadline, redirects followed).
	Head func(ctx context.Context, url string) (*fetch.Validators, error)
	// RemoteTip reads a repository's remote HEAD commit without cloning.
	RemoteTip func(ctx context.Context, url string) (string, error)
	Web       pipeline.Fetcher
	Repo      pipeline.Fetcher
	Process   *pipeline.Processor
	// OnIndexMutation fires after any vector index change.
	OnIndexMutation func()
	Logger          *slog.Logger
}

// Config tunes a refresh pass.
type Config struct {
	// Limit bounds how many due entries one pass claims. Default: 100.
	Limit int
	// MaxRetries before a refreshing entry sticks at failed. Default: 3.
	MaxRetries int
}

func (c *Config) defaults() {
	if c.Limit <= 0 {
		c.Limit = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// Stats summarizes one refresh pass.
type Stats struct {
	Checked   int `json:"checked"`
	Unchanged int `json:"unchanged"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

// Refresher executes refresh passes.
type Refresher struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

// New creates a Refresher.
func New(deps Deps, cfg Config) *Refresher {
	cfg.defaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{deps: deps, cfg: cfg, logger: logger}
}

// RunOnce claims one slice of due entries and refreshes them. The stop
// signal is observed between entries.
func (r *Refresher) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	due, err := r.deps.Catalog.DueForRefresh(ctx, time.Now(), r.cfg.Limit)
	if err != nil {
		return stats, fmt.Errorf("refresh: due: %w", err)
	}

	for _, entry := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++

		updated, err := r.refreshEntry(ctx, entry)
		switch {
		case err != nil:
			stats.Failed++
			permanent := !fault.IsTransient(err)
			if markErr := r.deps.Catalog.MarkFailed(ctx, entry.URLHash, err.Error(), permanent, r.cfg.MaxRetries); markErr != nil {
				r.logger.Error("refresh: mark failed", "url", entry.URL, "error", markErr)
			}
			r.logger.Warn("refresh: entry failed", "url", entry.URL, "error", err)
		case updated:
			stats.Updated++
		default:
			stats.Unchanged++
		}
	}
	return stats, nil
}

// storedValidators reads the validators off a source's stored chunks.
func (r *Refresher) storedValidators(ctx context.Context, url string) (etag, lastMod, commitID, contentHash string, chunks []*vecstore.Chunk) {
	documentID, err := urlnorm.Hash(url)
	if err != nil {
		return "", "", "", "", nil
	}
	chunks, err = r.deps.Vec.GetByDocumentID(ctx, documentID)
	if err != nil {
		r.logger.Warn("refresh: partial chunk set", "url", url, "error", err)
		return "", "", "", "", nil
	}
	if len(chunks) == 0 {
		return "", "", "", "", nil
	}
	meta := chunks[0].Metadata
	return meta["http_etag"], meta["http_last_modified"], meta["commit_id"], meta["content_hash"], chunks
}

// refreshEntry runs the cheap-check → full-fetch → diff → replace sequence
// for one entry. Returns whether the index was updated.
func (r *Refresher) refreshEntry(ctx context.Context, entry *catalog.Entry) (bool, error) {
	etag, lastMod, commitID, contentHash, stored := r.storedValidators(ctx, entry.URL)

	switch urlnorm.Kind(entry.Kind) {
	case urlnorm.KindWebPage, urlnorm.KindDocSitePage:
		if (etag != "" || lastMod != "") && r.deps.Head != nil {
			v, err := r.deps.Head(ctx, entry.URL)
			if err == nil && validatorsMatch(etag, lastMod, v) {
				return false, r.advance(ctx, entry)
			}
			// A failed HEAD is not a failed refresh; fall through to the
			// full fetch.
		}
		return r.fullRefresh(ctx, entry, r.deps.Web, contentHash, stored)

	case urlnorm.KindRepo:
		if commitID != "" && r.deps.RemoteTip != nil {
			tip, err := r.deps.RemoteTip(ctx, entry.URL)
			if err == nil && tip == commitID {
				return false, r.advance(ctx, entry)
			}
		}
		return r.fullRefresh(ctx, entry, r.deps.Repo, contentHash, stored)

	case urlnorm.KindVideo:
		// Videos are immutable and carry policy never; reaching here means
		// an operator bent the policy. Advance without touching anything.
		return false, r.advance(ctx, entry)

	default:
		return false, r.advance(ctx, entry)
	}
}

// fullRefresh re-fetches the content and replaces the source's chunks only
// when the content hash actually changed. A hash match with fresher
// validators rewrites the stored metadata without re-embedding.
func (r *Refresher) fullRefresh(ctx context.Context, entry *catalog.Entry, fetcher pipeline.Fetcher, storedHash string, stored []*vecstore.Chunk) (bool, error) {
	doc, err := fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		return false, err
	}

	if storedHash != "" && doc.ContentHash == storedHash {
		// HEAD validators lied (or were absent) but the content is the
		// same. Refresh the stored validators in place.
		if validatorsChanged(stored, doc) {
			for _, c := range stored {
				c.Metadata["http_etag"] = doc.ETag
				c.Metadata["http_last_modified"] = doc.LastMod
				if doc.CommitID != "" {
					c.Metadata["commit_id"] = doc.CommitID
				}
			}
			if err := r.deps.Vec.ReplaceSourceURL(ctx, entry.URL, stored); err != nil {
				return false, err
			}
		}
		return false, r.advance(ctx, entry)
	}

	records, err := r.deps.Process.Build(ctx, entry.URL, entry.Kind, doc)
	if err != nil {
		return false, err
	}
	if err := r.deps.Vec.ReplaceSourceURL(ctx, entry.URL, records); err != nil {
		return false, err
	}
	if r.deps.OnIndexMutation != nil {
		r.deps.OnIndexMutation()
	}
	return true, r.advance(ctx, entry)
}

// advance moves last_fetched_at and next_refresh_at forward.
func (r *Refresher) advance(ctx context.Context, entry *catalog.Entry) error {
	now := time.Now()
	var next *time.Time
	if interval, ok := catalog.RefreshInterval(entry.RefreshPolicy); ok {
		t := now.Add(interval)
		next = &t
	}
	return r.deps.Catalog.MarkFetched(ctx, entry.URLHash, now, next)
}

// validatorsMatch: either validator matching means unchanged.
func validatorsMatch(etag, lastMod string, v *fetch.Validators) bool {
	if v == nil {
		return false
	}
	if etag != "" && v.ETag == etag {
		return true
	}
	if lastMod != "" && v.LastMod == lastMod {
		return true
	}
	return false
}

func validatorsChanged(stored []*vecstore.Chunk, doc *pipeline.FetchedDocument) bool {
	if len(stored) == 0 {
		return false
	}
	meta := stored[0].Metadata
	return meta["http_etag"] != doc.ETag ||
		meta["http_last_modified"] != doc.LastMod ||
		(doc.CommitID != "" && meta["commit_id"] != doc.CommitID)
}
