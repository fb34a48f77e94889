// CLAUDE:SUMMARY Chunk→enrich→embed stage: kind-aware splitting, bounded enrichment concurrency, vector record assembly.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/savoir/chunk"
	"github.com/hazyhaar/savoir/embedder"
	"github.com/hazyhaar/savoir/fault"
	"github.com/hazyhaar/savoir/llm"
	"github.com/hazyhaar/savoir/urlnorm"
	"github.com/hazyhaar/savoir/vecstore"
)

// Processor turns fetched documents into embedded, enriched vector
// records. Embedding runs batched over all of a document's chunks;
// enrichment runs per chunk under a small concurrency bound so the LLM
// endpoint is never saturated.
type Processor struct {
	Embedder embedder.Embedder
	Enricher *llm.Enricher
	Chunk    chunk.Options
	// EnrichConcurrency bounds parallel enrichment calls. Default: 2.
	EnrichConcurrency int
	Logger            *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(emb embedder.Embedder, enricher *llm.Enricher, chunkOpts chunk.Options, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Embedder:          emb,
		Enricher:          enricher,
		Chunk:             chunkOpts,
		EnrichConcurrency: 2,
		Logger:            logger,
	}
}

// split selects the splitting strategy by kind.
func (p *Processor) split(kind, text string, segments []chunk.Segment) []chunk.Chunk {
	switch kind {
	case "repo":
		return chunk.SplitRepo(text, p.Chunk)
	case "video":
		if len(segments) > 0 {
			return chunk.SplitTranscript(segments, p.Chunk)
		}
		return chunk.Split(text, p.Chunk)
	default:
		return chunk.SplitMarkdown(text, p.Chunk)
	}
}

// Build chunks, enriches, and embeds one fetched document. The returned
// records all share the document's validators and content hash, ready for
// an atomic replace in the vector index.
func (p *Processor) Build(ctx context.Context, sourceURL, kind string, doc *FetchedDocument) ([]*vecstore.Chunk, error) {
	documentID, err := urlnorm.Hash(sourceURL)
	if err != nil {
		return nil, fault.Permanent(err)
	}

	pieces := p.split(kind, doc.Text, doc.Segments)
	if len(pieces) == 0 {
		return nil, fault.Permanentf("no chunks produced")
	}

	texts := make([]string, len(pieces))
	for i, c := range pieces {
		texts[i] = c.Text
	}
	vectors, err := p.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	enrichments := p.enrichAll(ctx, texts)

	fetchedAt := time.Now().UTC().Format(time.RFC3339)
	domain := urlnorm.Domain(sourceURL)
	records := make([]*vecstore.Chunk, len(pieces))
	for i, c := range pieces {
		meta := map[string]string{
			"chunk_id":     uuid.NewString(),
			"source_url":   sourceURL,
			"kind":         kind,
			"domain":       domain,
			"title":        doc.Title,
			"language":     doc.Language,
			"token_count":  strconv.Itoa(c.TokenCount),
			"content_hash": doc.ContentHash,
			"fetched_at":   fetchedAt,
		}
		setIfPresent(meta, "http_etag", doc.ETag)
		setIfPresent(meta, "http_last_modified", doc.LastMod)
		setIfPresent(meta, "commit_id", doc.CommitID)
		setIfPresent(meta, "heading", c.Heading)
		setIfPresent(meta, "file_path", c.FilePath)
		if c.TimestampSec > 0 || (kind == "video" && i == 0) {
			meta["timestamp_sec"] = strconv.FormatFloat(c.TimestampSec, 'f', 1, 64)
		}
		if doc.DurationSec > 0 {
			meta["duration_sec"] = strconv.FormatFloat(doc.DurationSec, 'f', 0, 64)
		}
		if doc.Stars > 0 {
			meta["stars"] = strconv.Itoa(doc.Stars)
		}

		e := enrichments[i]
		setIfPresent(meta, "topics", vecstore.JoinList(e.Topics))
		setIfPresent(meta, "keywords", vecstore.JoinList(e.Keywords))
		setIfPresent(meta, "summary", e.Summary)
		setIfPresent(meta, "concepts", vecstore.JoinList(e.Concepts))
		setIfPresent(meta, "difficulty", e.Difficulty)
		setIfPresent(meta, "languages", vecstore.JoinList(e.Languages))
		setIfPresent(meta, "frameworks", vecstore.JoinList(e.Frameworks))

		records[i] = &vecstore.Chunk{
			ID:          vecstore.ChunkID(documentID, i),
			DocumentID:  documentID,
			ChunkIndex:  i,
			TotalChunks: len(pieces),
			Embedding:   vectors[i],
			Text:        c.Text,
			Metadata:    meta,
		}
	}
	return records, nil
}

// enrichAll runs enrichment for every chunk under the concurrency bound.
// Enrichment never fails a chunk; a nil enricher yields empty metadata.
func (p *Processor) enrichAll(ctx context.Context, texts []string) []llm.Enrichment {
	out := make([]llm.Enrichment, len(texts))
	if p.Enricher == nil {
		return out
	}

	bound := p.EnrichConcurrency
	if bound <= 0 {
		bound = 2
	}
	sem := make(chan struct{}, bound)
	var wg sync.WaitGroup
	for i, text := range texts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			out[i] = p.Enricher.Enrich(ctx, text)
		}(i, text)
	}
	wg.Wait()
	return out
}

func setIfPresent(meta map[string]string, key, value string) {
	if value != "" {
		meta[key] = value
	}
}
