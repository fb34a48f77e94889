// CLAUDE:SUMMARY In-memory BM25 keyword index on SQLite FTS5 (unicode61), rebuilt wholesale from the chunk corpus.
// Package lexical provides BM25 keyword retrieval complementing dense
// search.
//
// The index lives in an in-memory SQLite database using FTS5 with the
// unicode61 tokenizer (lowercasing plus Unicode word segmentation, applied
// identically to build and query). It is cheap to rebuild from scratch and
// is invalidated by the service whenever the vector index mutates.
package lexical

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Result is one keyword search hit.
type Result struct {
	Text     string
	Metadata map[string]string
	// Score is the negated FTS5 bm25() rank: higher is better.
	Score float64
}

// Index is a rebuildable BM25 index.
type Index struct {
	mu    sync.RWMutex
	db    *sql.DB
	metas []map[string]string
	built bool
}

// New creates an empty index. Build must be called before Search returns
// anything.
func New() (*Index, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("lexical: open: %w", err)
	}
	// A pooled second connection would see its own empty memory database.
	db.SetMaxOpenConns(1)
	return &Index{db: db}, nil
}

// Close releases the in-memory database.
func (x *Index) Close() error { return x.db.Close() }

// Build replaces the index contents with the given corpus. documents and
// metadatas run in parallel; a length mismatch is an error.
func (x *Index) Build(ctx context.Context, documents []string, metadatas []map[string]string) error {
	if len(documents) != len(metadatas) {
		return fmt.Errorf("lexical: %d documents but %d metadatas", len(documents), len(metadatas))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, err := x.db.ExecContext(ctx, `DROP TABLE IF EXISTS chunks_fts`); err != nil {
		return fmt.Errorf("lexical: drop: %w", err)
	}
	if _, err := x.db.ExecContext(ctx,
		`CREATE VIRTUAL TABLE chunks_fts USING fts5(text, tokenize='unicode61 remove_diacritics 2')`); err != nil {
		return fmt.Errorf("lexical: create: %w", err)
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lexical: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts(rowid, text) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("lexical: prepare: %w", err)
	}
	defer stmt.Close()

	for i, doc := range documents {
		if _, err := stmt.ExecContext(ctx, i+1, doc); err != nil {
			return fmt.Errorf("lexical: insert %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lexical: commit: %w", err)
	}

	x.metas = metadatas
	x.built = true
	return nil
}

// Built reports whether the index holds a corpus.
func (x *Index) Built() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.built
}

// Search returns up to k documents ranked by BM25, best first. Zero-score
// results are filtered; an unbuilt index returns nothing.
func (x *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = 20
	}
	match := matchExpression(query)
	if match == "" {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.built {
		return nil, nil
	}

	rows, err := x.db.QueryContext(ctx,
		`SELECT rowid, text, bm25(chunks_fts) FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY bm25(chunks_fts)
		LIMIT ?`, match, k)
	if err != nil {
		return nil, fmt.Errorf("lexical: search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var rowid int
		var text string
		var rank float64
		if err := rows.Scan(&rowid, &text, &rank); err != nil {
			return nil, fmt.Errorf("lexical: scan: %w", err)
		}
		idx := rowid - 1
		if idx < 0 || idx >= len(x.metas) {
			continue
		}
		results = append(results, Result{
			Text:     text,
			Metadata: x.metas[idx],
			Score:    -rank,
		})
	}
	return results, rows.Err()
}

// matchExpression turns raw user input into a safe FTS5 MATCH expression:
// each term quoted, joined with OR. Raw input can contain FTS operators
// (quotes, NEAR, -) that would otherwise be syntax errors.
func matchExpression(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'()[]{}.,;:!?`)
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}
