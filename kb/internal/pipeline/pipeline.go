// CLAUDE:SUMMARY Fetcher variant set and the FetchedDocument contract shared by the queue processor and refresher.
// Package pipeline implements the kind-specific content fetchers and the
// chunk→enrich→embed→store stage behind them.
//
// The variant set is closed: web pages, code repositories, video
// transcripts, and channel expansion. Dispatch happens in the queue
// processor at batch partitioning time, by catalog kind.
package pipeline

import (
	"context"

	"github.com/hazyhaar/savoir/chunk"
)

// FetchedDocument is the normalized output of any fetcher.
type FetchedDocument struct {
	Text     string
	Title    string
	Language string
	Kind     string

	// Validators for the refresher's cheap checks.
	ETag        string
	LastMod     string
	CommitID    string
	StatusCode  int
	ContentType string
	ContentHash string // SHA-256 over the normalized text

	// Kind extras.
	DurationSec float64         // video
	Stars       int             // repo
	Segments    []chunk.Segment // video transcript, timestamped
}

// Fetcher retrieves one URL's content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}
