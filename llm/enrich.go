// CLAUDE:SUMMARY LLM-backed metadata enricher: truncated sample, JSON contract, empty metadata on any failure.
package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// enrichSampleBytes caps how much of a chunk is sent for analysis. Topics
// and keywords stabilize within the first kilobyte.
const enrichSampleBytes = 1000

// Enricher extracts topical metadata per chunk through the LLM.
type Enricher struct {
	client *Client
	model  string
	logger *slog.Logger
}

// NewEnricher creates an Enricher using the given generate client and model.
func NewEnricher(client *Client, model string, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{client: client, model: model, logger: logger}
}

// Enrich extracts metadata from chunk text. It never fails the caller: LLM
// errors, timeouts, and unparseable JSON all yield empty metadata and a log
// line.
func (e *Enricher) Enrich(ctx context.Context, text string) Enrichment {
	sample := text
	if len(sample) > enrichSampleBytes {
		sample = sample[:enrichSampleBytes]
	}

	response, err := e.client.Generate(ctx, e.model, "",
		fmt.Sprintf(EnrichmentPrompt, sample),
		&Options{Temperature: 0.3, NumPredict: 300})
	if err != nil {
		e.logger.Warn("enrich: generation failed", "error", err)
		return Enrichment{}
	}

	meta, ok := ParseEnrichment(response)
	if !ok {
		e.logger.Warn("enrich: unparseable metadata JSON", "response_len", len(response))
		return Enrichment{}
	}
	return meta
}
