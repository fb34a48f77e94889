package vecstore

import (
	"context"
	"testing"
)

const testDim = 4

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), testDim)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func vec(vals ...float32) []float32 { return vals }

func testChunk(docID string, index, total int, text string, embedding []float32, sourceURL string) *Chunk {
	return &Chunk{
		DocumentID:  docID,
		ChunkIndex:  index,
		TotalChunks: total,
		Embedding:   embedding,
		Text:        text,
		Metadata:    map[string]string{"source_url": sourceURL, "kind": "web_page"},
	}
}

func TestAddAndSearch_CosineOrder(t *testing.T) {
	// WHAT: Search returns nearest-first under cosine; distance is
	// 1 - similarity.
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Add(ctx, []*Chunk{
		testChunk("d1", 0, 2, "aligned", vec(1, 0, 0, 0), "http://a"),
		testChunk("d1", 1, 2, "orthogonal", vec(0, 1, 0, 0), "http://a"),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	results, err := s.Search(ctx, vec(1, 0, 0, 0), 2, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Text != "aligned" {
		t.Errorf("nearest: got %q, want aligned", results[0].Text)
	}
	if results[0].Distance > 0.001 {
		t.Errorf("identical vector distance: got %v, want ~0", results[0].Distance)
	}
	if results[1].Distance < 0.9 {
		t.Errorf("orthogonal distance: got %v, want ~1", results[1].Distance)
	}
}

func TestSearch_MetadataFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Add(ctx, []*Chunk{
		testChunk("d1", 0, 1, "web", vec(1, 0, 0, 0), "http://a"),
		{DocumentID: "d2", ChunkIndex: 0, TotalChunks: 1, Embedding: vec(1, 0, 0, 0),
			Text: "repo", Metadata: map[string]string{"source_url": "http://b", "kind": "repo"}},
	})

	results, err := s.Search(ctx, vec(1, 0, 0, 0), 5, map[string]string{"kind": "repo"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Text != "repo" {
		t.Errorf("filter failed: %+v", results)
	}
}

func TestSearch_ClampsKAndHandlesEmpty(t *testing.T) {
	// WHAT: k beyond the collection size is clamped; empty index returns
	// no results and no error.
	s := openTestStore(t)
	ctx := context.Background()

	if results, err := s.Search(ctx, vec(1, 0, 0, 0), 10, nil); err != nil || results != nil {
		t.Errorf("empty index: results=%v err=%v", results, err)
	}

	s.Add(ctx, []*Chunk{testChunk("d1", 0, 1, "only", vec(1, 0, 0, 0), "http://a")})
	results, err := s.Search(ctx, vec(1, 0, 0, 0), 10, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestAdd_DimensionMismatchRejected(t *testing.T) {
	// WHY: Mixing dimensions in one collection corrupts every search.
	s := openTestStore(t)
	err := s.Add(context.Background(), []*Chunk{
		testChunk("d1", 0, 1, "bad", vec(1, 0), "http://a"),
	})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if s.Count() != 0 {
		t.Error("rejected batch must not be partially written")
	}
}

func TestDeleteBySourceURL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Add(ctx, []*Chunk{
		testChunk("d1", 0, 2, "a0", vec(1, 0, 0, 0), "http://a"),
		testChunk("d1", 1, 2, "a1", vec(0, 1, 0, 0), "http://a"),
		testChunk("d2", 0, 1, "b0", vec(0, 0, 1, 0), "http://b"),
	})

	if err := s.DeleteBySourceURL(ctx, "http://a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := s.Count(); got != 1 {
		t.Errorf("count after delete: got %d, want 1", got)
	}
	if chunks, _ := s.GetByDocumentID(ctx, "d1"); chunks != nil {
		t.Errorf("deleted document still readable: %v", chunks)
	}
	if chunks, _ := s.GetByDocumentID(ctx, "d2"); len(chunks) != 1 {
		t.Errorf("unrelated document affected: %v", chunks)
	}
}

func TestReplaceSourceURL(t *testing.T) {
	// WHAT: After replacement the visible set is exactly the new chunks.
	// WHY: Searchers must never observe a union of old and new.
	s := openTestStore(t)
	ctx := context.Background()

	s.Add(ctx, []*Chunk{
		testChunk("d1", 0, 2, "old0", vec(1, 0, 0, 0), "http://a"),
		testChunk("d1", 1, 2, "old1", vec(0, 1, 0, 0), "http://a"),
	})

	err := s.ReplaceSourceURL(ctx, "http://a", []*Chunk{
		testChunk("d1", 0, 1, "new0", vec(0, 0, 1, 0), "http://a"),
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	chunks, err := s.GetByDocumentID(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "new0" {
		t.Errorf("replacement incomplete: %+v", chunks)
	}
	if s.Count() != 1 {
		t.Errorf("count: got %d, want 1", s.Count())
	}
}

func TestGetByDocumentID_OrderAndAbsence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Add(ctx, []*Chunk{
		testChunk("d1", 1, 3, "one", vec(0, 1, 0, 0), "http://a"),
		testChunk("d1", 0, 3, "zero", vec(1, 0, 0, 0), "http://a"),
		testChunk("d1", 2, 3, "two", vec(0, 0, 1, 0), "http://a"),
	})

	chunks, err := s.GetByDocumentID(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []string{"zero", "one", "two"}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if c.Text != want[i] {
			t.Errorf("chunk[%d]: got %q, want %q", i, c.Text, want[i])
		}
		if c.ChunkIndex != i {
			t.Errorf("chunk[%d]: index=%d", i, c.ChunkIndex)
		}
	}

	if absent, err := s.GetByDocumentID(ctx, "nope"); err != nil || absent != nil {
		t.Errorf("absent document: chunks=%v err=%v", absent, err)
	}
}

func TestPersistence(t *testing.T) {
	// WHAT: Chunks survive a close-and-reopen cycle.
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := Open(dir, testDim)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s1.Add(ctx, []*Chunk{testChunk("d1", 0, 1, "persisted", vec(1, 0, 0, 0), "http://a")})

	s2, err := Open(dir, testDim)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := s2.Count(); got != 1 {
		t.Fatalf("count after reopen: got %d, want 1", got)
	}
	chunks, _ := s2.GetByDocumentID(ctx, "d1")
	if len(chunks) != 1 || chunks[0].Text != "persisted" {
		t.Errorf("persisted chunk wrong: %+v", chunks)
	}
}

func TestReset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Add(ctx, []*Chunk{testChunk("d1", 0, 1, "gone", vec(1, 0, 0, 0), "http://a")})
	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("count after reset: got %d", s.Count())
	}
	// The store stays usable after a reset.
	if err := s.Add(ctx, []*Chunk{testChunk("d2", 0, 1, "back", vec(0, 1, 0, 0), "http://b")}); err != nil {
		t.Errorf("add after reset: %v", err)
	}
}

func TestJoinSplitList(t *testing.T) {
	got := SplitList(JoinList([]string{"go", "sqlite", "rag"}))
	if len(got) != 3 || got[0] != "go" || got[2] != "rag" {
		t.Errorf("round trip: %v", got)
	}
	if SplitList("") != nil {
		t.Error("empty list must split to nil")
	}
}
