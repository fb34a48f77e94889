package refresh

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/savoir/catalog"
	"github.com/hazyhaar/savoir/chunk"
	"github.com/hazyhaar/savoir/embedder"
	"github.com/hazyhaar/savoir/fault"
	"github.com/hazyhaar/savoir/kb/internal/fetch"
	"github.com/hazyhaar/savoir/kb/internal/pipeline"
	"github.com/hazyhaar/savoir/urlnorm"
	"github.com/hazyhaar/savoir/vecstore"
)

type fakeFetcher struct {
	calls atomic.Int32
	fetch func(url string) (*pipeline.FetchedDocument, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*pipeline.FetchedDocument, error) {
	f.calls.Add(1)
	return f.fetch(url)
}

type harness struct {
	cat       *catalog.Store
	vec       *vecstore.Store
	refresher *Refresher
	web       *fakeFetcher
	headCalls atomic.Int32
	headETag  string
	mutations atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "cat.db"))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	vec, err := vecstore.Open(t.TempDir(), 8)
	if err != nil {
		t.Fatalf("vecstore: %v", err)
	}

	h := &harness{cat: cat, vec: vec}
	h.web = &fakeFetcher{fetch: func(url string) (*pipeline.FetchedDocument, error) {
		return &pipeline.FetchedDocument{Text: "fresh content for " + url, ContentHash: "new-hash", ETag: `"v2"`}, nil
	}}

	proc := pipeline.NewProcessor(embedder.New(embedder.Config{Dimension: 8}), nil,
		chunk.Options{MaxTokens: 64, MinTokens: 2, OverlapTokens: 4}, nil)

	h.refresher = New(Deps{
		Catalog: cat,
		Vec:     vec,
		Head: func(ctx context.Context, url string) (*fetch.Validators, error) {
			h.headCalls.Add(1)
			return &fetch.Validators{ETag: h.headETag}, nil
		},
		RemoteTip: func(ctx context.Context, url string) (string, error) {
			return "tip-commit", nil
		},
		Web:             h.web,
		Repo:            h.web,
		Process:         proc,
		OnIndexMutation: func() { h.mutations.Add(1) },
	}, Config{Limit: 100})
	return h
}

// seed indexes one fetched entry of the given kind due for refresh, with
// the given stored validators.
func (h *harness) seed(t *testing.T, rawURL, kind, etag, contentHash string) string {
	t.Helper()
	ctx := context.Background()
	u, _ := urlnorm.Normalize(rawURL)
	hash, _ := urlnorm.Hash(u)

	h.cat.InsertIfAbsent(ctx, []*catalog.Entry{{
		URLHash: hash, URL: u, Kind: kind, Priority: 50,
		RefreshPolicy: catalog.RefreshDays(14),
	}})
	past := time.Now().Add(-time.Hour)
	h.cat.MarkFetched(ctx, hash, time.Now().Add(-15*24*time.Hour), &past)

	docID, _ := urlnorm.Hash(u)
	meta := map[string]string{
		"source_url": u, "kind": kind, "content_hash": contentHash,
	}
	if etag != "" {
		meta["http_etag"] = etag
	}
	if kind == "repo" {
		meta["commit_id"] = "tip-commit"
	}
	err := h.vec.Add(ctx, []*vecstore.Chunk{{
		DocumentID: docID, ChunkIndex: 0, TotalChunks: 1,
		Embedding: make([]float32, 8), Text: "stored text", Metadata: meta,
	}})
	if err != nil {
		t.Fatalf("seed vec: %v", err)
	}
	return hash
}

func TestRunOnce_UnchangedETagSkipsFetch(t *testing.T) {
	// WHAT: A matching ETag means zero index writes and
	// zero full fetches, while the timestamps advance.
	h := newHarness(t)
	h.headETag = `"abc"`
	hash := h.seed(t, "https://docs.example.com/page", "doc_site_page", `"abc"`, "stored-hash")

	before, _ := h.cat.Get(context.Background(), hash)
	stats, err := h.refresher.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Checked != 1 || stats.Unchanged != 1 || stats.Updated != 0 {
		t.Errorf("stats: %+v", stats)
	}
	if h.web.calls.Load() != 0 {
		t.Error("full fetch ran despite matching validator")
	}
	if h.mutations.Load() != 0 {
		t.Error("vector index touched despite unchanged content")
	}

	after, _ := h.cat.Get(context.Background(), hash)
	if *after.LastFetchedAt <= *before.LastFetchedAt {
		t.Error("last_fetched_at did not advance")
	}
	if *after.NextRefreshAt <= *before.NextRefreshAt {
		t.Error("next_refresh_at did not advance")
	}
}

func TestRunOnce_ChangedContentReplaces(t *testing.T) {
	h := newHarness(t)
	h.headETag = `"different"`
	hash := h.seed(t, "https://docs.example.com/page", "doc_site_page", `"abc"`, "stored-hash")

	stats, err := h.refresher.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Updated != 1 {
		t.Errorf("stats: %+v", stats)
	}
	if h.web.calls.Load() != 1 {
		t.Errorf("fetch calls: %d", h.web.calls.Load())
	}

	docID, _ := urlnorm.Hash("https://docs.example.com/page")
	chunks, err := h.vec.GetByDocumentID(context.Background(), docID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(chunks) == 0 || chunks[0].Metadata["content_hash"] != "new-hash" {
		t.Errorf("replacement incomplete: %+v", chunks)
	}

	entry, _ := h.cat.Get(context.Background(), hash)
	if entry.Status != catalog.StatusFetched {
		t.Errorf("status: %q", entry.Status)
	}
}

func TestRunOnce_HashCatchesLyingValidators(t *testing.T) {
	// WHAT: Validators differ but the fetched body hashes identically:
	// no re-embed, validators rewritten in place, entry unchanged.
	h := newHarness(t)
	h.headETag = `"v2"`
	h.web.fetch = func(url string) (*pipeline.FetchedDocument, error) {
		return &pipeline.FetchedDocument{Text: "same", ContentHash: "stored-hash", ETag: `"v2"`}, nil
	}
	h.seed(t, "https://docs.example.com/page", "doc_site_page", `"v1"`, "stored-hash")

	stats, err := h.refresher.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Unchanged != 1 || stats.Updated != 0 {
		t.Errorf("stats: %+v", stats)
	}

	docID, _ := urlnorm.Hash("https://docs.example.com/page")
	chunks, _ := h.vec.GetByDocumentID(context.Background(), docID)
	if chunks[0].Metadata["http_etag"] != `"v2"` {
		t.Errorf("validators not refreshed: %v", chunks[0].Metadata)
	}
	if chunks[0].Text != "stored text" {
		t.Error("content replaced despite identical hash")
	}
}

func TestRunOnce_RepoTipMatchSkips(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "https://github.com/acme/widget", "repo", "", "stored-hash")

	stats, err := h.refresher.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Unchanged != 1 {
		t.Errorf("stats: %+v", stats)
	}
	if h.web.calls.Load() != 0 {
		t.Error("clone ran despite matching tip")
	}
}

func TestRunOnce_FetchFailureMarks(t *testing.T) {
	h := newHarness(t)
	h.headETag = `"different"`
	h.web.fetch = func(url string) (*pipeline.FetchedDocument, error) {
		return nil, fault.Permanentf("http 410")
	}
	hash := h.seed(t, "https://docs.example.com/dead", "doc_site_page", `"abc"`, "stored-hash")

	stats, err := h.refresher.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("stats: %+v", stats)
	}
	entry, _ := h.cat.Get(context.Background(), hash)
	if entry.Status != catalog.StatusFailed {
		t.Errorf("status: %q", entry.Status)
	}
}

func TestRunOnce_NothingDue(t *testing.T) {
	h := newHarness(t)
	stats, err := h.refresher.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats != (Stats{}) {
		t.Errorf("stats: %+v", stats)
	}
}
