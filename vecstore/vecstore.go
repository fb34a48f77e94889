// CLAUDE:SUMMARY Embedded vector index on chromem-go: cosine top-k, atomic per-source replacement, validator lookup.
// Package vecstore is the persistent embedded vector index.
//
// It wraps a chromem-go collection with the contract the rest of the system
// relies on: cosine metric, delete-then-add replacement that is invisible
// to concurrent searchers, and deterministic chunk IDs
// (document_id:chunk_index) so a source's chunks can be walked without a
// full scan.
package vecstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
)

// CollectionName is the single named collection holding the knowledge base.
const CollectionName = "knowledge_base"

// Chunk is one embedded passage with its metadata.
type Chunk struct {
	ID         string
	DocumentID string
	ChunkIndex int
	TotalChunks int
	Embedding  []float32
	Text       string
	Metadata   map[string]string
}

// Result is one search hit.
type Result struct {
	Text     string
	Metadata map[string]string
	// Distance is 1 - cosine_similarity: 0 identical, 2 opposite.
	Distance float64
}

// Store is the vector index.
type Store struct {
	db        *chromem.DB
	dimension int

	// mu makes the delete-then-add replacement sequence invisible to
	// searchers: readers hold RLock, replacement holds Lock.
	mu         sync.RWMutex
	collection *chromem.Collection
}

// Open opens (creating if needed) the persistent index at dir. dimension is
// the deploy-time embedding dimension; every added vector must match it.
func Open(dir string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("vecstore: dimension must be positive, got %d", dimension)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("vecstore: open %s: %w", dir, err)
	}
	col, err := db.GetOrCreateCollection(CollectionName, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("vecstore: collection: %w", err)
	}
	return &Store{db: db, dimension: dimension, collection: col}, nil
}

// noEmbed rejects implicit embedding: every caller supplies vectors
// computed by the embedder, never text to be embedded by the store.
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("vecstore: embeddings must be precomputed by the caller")
}

// ChunkID builds the deterministic chunk identity.
func ChunkID(documentID string, index int) string {
	return documentID + ":" + strconv.Itoa(index)
}

// Add inserts a batch of chunks. Embeddings are precomputed; a dimension
// mismatch is rejected before anything is written.
func (s *Store) Add(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs, err := s.toDocuments(chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("vecstore: add: %w", err)
	}
	return nil
}

// ReplaceSourceURL atomically replaces all chunks for a source: searchers
// observe either the previous complete set or the new complete set, never a
// union or a partial state.
func (s *Store) ReplaceSourceURL(ctx context.Context, sourceURL string, chunks []*Chunk) error {
	docs, err := s.toDocuments(chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteBySourceLocked(ctx, sourceURL); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("vecstore: replace %s: %w", sourceURL, err)
	}
	return nil
}

// DeleteBySourceURL removes all chunks with the given source_url.
// All-or-nothing with respect to concurrent searches.
func (s *Store) DeleteBySourceURL(ctx context.Context, sourceURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteBySourceLocked(ctx, sourceURL)
}

func (s *Store) deleteBySourceLocked(ctx context.Context, sourceURL string) error {
	if err := s.collection.Delete(ctx, map[string]string{"source_url": sourceURL}, nil); err != nil {
		return fmt.Errorf("vecstore: delete %s: %w", sourceURL, err)
	}
	return nil
}

// Search returns the k nearest chunks by cosine similarity, optionally
// restricted by metadata equality filters. k is clamped to the collection
// size; an empty index returns no results and no error.
func (s *Store) Search(ctx context.Context, queryVec []float32, k int, filter map[string]string) ([]Result, error) {
	if len(queryVec) != s.dimension {
		return nil, fmt.Errorf("vecstore: query dimension %d, index dimension %d", len(queryVec), s.dimension)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	if k <= 0 {
		return nil, nil
	}

	hits, err := s.collection.QueryEmbedding(ctx, queryVec, k, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("vecstore: search: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			Text:     h.Content,
			Metadata: h.Metadata,
			Distance: 1 - float64(h.Similarity),
		})
	}
	return results, nil
}

// GetByDocumentID returns all stored chunks for one document id in order,
// or nil when the document is absent. The document id is the hash of the
// normalized source URL, so "all chunks for a source" is this call with
// urlnorm.Hash(url). An error indicates a partial set, which violates the
// replacement invariant.
func (s *Store) GetByDocumentID(ctx context.Context, documentID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	first, err := s.collection.GetByID(ctx, ChunkID(documentID, 0))
	if err != nil {
		return nil, nil
	}
	total, _ := strconv.Atoi(first.Metadata["total_chunks"])
	if total <= 0 {
		total = 1
	}
	chunks := make([]*Chunk, 0, total)
	chunks = append(chunks, fromDocument(first))
	for i := 1; i < total; i++ {
		doc, err := s.collection.GetByID(ctx, ChunkID(documentID, i))
		if err != nil {
			return nil, fmt.Errorf("vecstore: document %s holds a partial chunk set (%d of %d)", documentID, i, total)
		}
		chunks = append(chunks, fromDocument(doc))
	}
	return chunks, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count()
}

// Dimension returns the configured embedding dimension.
func (s *Store) Dimension() int { return s.dimension }

// Reset drops and recreates the collection. Only meaningful when paired
// with a catalog wipe.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(CollectionName); err != nil {
		return fmt.Errorf("vecstore: reset: %w", err)
	}
	col, err := s.db.GetOrCreateCollection(CollectionName, nil, noEmbed)
	if err != nil {
		return fmt.Errorf("vecstore: recreate: %w", err)
	}
	s.collection = col
	return nil
}

func (s *Store) toDocuments(chunks []*Chunk) ([]chromem.Document, error) {
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != s.dimension {
			return nil, fmt.Errorf("vecstore: chunk %s embedding dimension %d, index dimension %d",
				c.ID, len(c.Embedding), s.dimension)
		}
		meta := make(map[string]string, len(c.Metadata)+3)
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta["document_id"] = c.DocumentID
		meta["chunk_index"] = strconv.Itoa(c.ChunkIndex)
		meta["total_chunks"] = strconv.Itoa(c.TotalChunks)
		id := c.ID
		if id == "" {
			id = ChunkID(c.DocumentID, c.ChunkIndex)
		}
		docs = append(docs, chromem.Document{
			ID:        id,
			Metadata:  meta,
			Embedding: c.Embedding,
			Content:   c.Text,
		})
	}
	return docs, nil
}

func fromDocument(doc chromem.Document) *Chunk {
	index, _ := strconv.Atoi(doc.Metadata["chunk_index"])
	total, _ := strconv.Atoi(doc.Metadata["total_chunks"])
	return &Chunk{
		ID:          doc.ID,
		DocumentID:  doc.Metadata["document_id"],
		ChunkIndex:  index,
		TotalChunks: total,
		Embedding:   doc.Embedding,
		Text:        doc.Content,
		Metadata:    doc.Metadata,
	}
}

// JoinList flattens a string list into the single-valued metadata form the
// index stores (comma-separated).
func JoinList(items []string) string {
	return strings.Join(items, ",")
}

// SplitList reverses JoinList.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
