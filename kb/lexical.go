// CLAUDE:SUMMARY Lazily rebuilt lexical index: invalidated on vector mutations, rebuilt from catalog + stored chunks on demand.
package kb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/savoir/catalog"
	"github.com/hazyhaar/savoir/lexical"
	"github.com/hazyhaar/savoir/urlnorm"
	"github.com/hazyhaar/savoir/vecstore"
)

// lazyLexical rebuilds the BM25 index from the catalog's fetched entries
// and their stored chunks on first hybrid query, and again after any
// vector index mutation. Bounded lag behind the vector index is the
// documented contract.
type lazyLexical struct {
	cat    *catalog.Store
	vec    *vecstore.Store
	logger *slog.Logger

	mu    sync.Mutex
	idx   *lexical.Index
	dirty bool
}

func newLazyLexical(cat *catalog.Store, vec *vecstore.Store, logger *slog.Logger) (*lazyLexical, error) {
	idx, err := lexical.New()
	if err != nil {
		return nil, err
	}
	return &lazyLexical{cat: cat, vec: vec, logger: logger, idx: idx, dirty: true}, nil
}

// Invalidate marks the index stale after an add or delete in the vector
// store.
func (l *lazyLexical) Invalidate() {
	l.mu.Lock()
	l.dirty = true
	l.mu.Unlock()
}

// Built always reports true: availability is decided by Search, which
// rebuilds on demand and surfaces rebuild failures.
func (l *lazyLexical) Built() bool { return true }

// Search rebuilds when stale, then queries.
func (l *lazyLexical) Search(ctx context.Context, query string, k int) ([]lexical.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dirty || !l.idx.Built() {
		if err := l.rebuild(ctx); err != nil {
			return nil, fmt.Errorf("lexical rebuild: %w", err)
		}
		l.dirty = false
	}
	return l.idx.Search(ctx, query, k)
}

// rebuild walks every fetched catalog entry and pulls its stored chunks.
func (l *lazyLexical) rebuild(ctx context.Context) error {
	entries, err := l.cat.ListByStatus(ctx, catalog.StatusFetched)
	if err != nil {
		return err
	}

	var docs []string
	var metas []map[string]string
	for _, e := range entries {
		if urlnorm.Kind(e.Kind) == urlnorm.KindVideoChannel {
			continue // channels carry no chunks
		}
		documentID, err := urlnorm.Hash(e.URL)
		if err != nil {
			continue
		}
		chunks, err := l.vec.GetByDocumentID(ctx, documentID)
		if err != nil {
			l.logger.Warn("lexical: skipping inconsistent document", "url", e.URL, "error", err)
			continue
		}
		for _, c := range chunks {
			docs = append(docs, c.Text)
			metas = append(metas, c.Metadata)
		}
	}

	l.logger.Debug("lexical: rebuilt", "documents", len(docs))
	return l.idx.Build(ctx, docs, metas)
}

func (l *lazyLexical) Close() error { return l.idx.Close() }
