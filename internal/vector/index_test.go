package vector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/trialscope/trialscope/internal/trial"
)

// stubEmbedder returns canned vectors per text so similarity ordering is
// fully under test control.
type stubEmbedder struct {
	vectors map[string][]float32
	dim     int
}

func newStubEmbedder(dim int) *stubEmbedder {
	return &stubEmbedder{vectors: make(map[string][]float32), dim: dim}
}

func (s *stubEmbedder) set(text string, vec []float32) {
	s.vectors[text] = vec
}

func (s *stubEmbedder) Embed(_ context.Context, input []string) ([][]float32, error) {
	out := make([][]float32, len(input))
	for i, text := range input {
		if vec, ok := s.vectors[text]; ok {
			out[i] = vec
			continue
		}
		vec := make([]float32, s.dim)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func openTestIndex(t *testing.T, embedder Embedder) *Index {
	t.Helper()
	idx, err := Open(Config{Path: filepath.Join(t.TempDir(), "index.db")}, embedder)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func testChunk(id string, position int, text string) trial.Chunk {
	return trial.Chunk{
		ID:       trial.ChunkID(id, position),
		TrialID:  id,
		Position: position,
		Text:     text,
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	idx := openTestIndex(t, newStubEmbedder(3))
	if _, err := idx.Query(context.Background(), []float32{1, 0, 0}, 5, Filter{}); !errors.Is(err, ErrIndexEmpty) {
		t.Fatalf("expected ErrIndexEmpty, got %v", err)
	}
}

func TestQueryOrdersByScore(t *testing.T) {
	emb := newStubEmbedder(3)
	emb.set("close", []float32{1, 0, 0})
	emb.set("mid", []float32{1, 1, 0})
	emb.set("far", []float32{0, 1, 0})
	idx := openTestIndex(t, emb)

	chunks := []trial.Chunk{
		testChunk("NCT00000001", 0, "far"),
		testChunk("NCT00000002", 0, "close"),
		testChunk("NCT00000003", 0, "mid"),
	}
	if err := idx.Upsert(context.Background(), chunks); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	results, err := idx.Query(context.Background(), []float32{1, 0, 0}, 2, Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.TrialID != "NCT00000002" || results[1].Chunk.TrialID != "NCT00000003" {
		t.Fatalf("unexpected order: %s, %s", results[0].Chunk.TrialID, results[1].Chunk.TrialID)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("scores not descending: %f, %f", results[0].Score, results[1].Score)
	}
}

func TestQueryTieBreaksByInsertionOrder(t *testing.T) {
	emb := newStubEmbedder(3)
	emb.set("twin-a", []float32{1, 0, 0})
	emb.set("twin-b", []float32{1, 0, 0})
	idx := openTestIndex(t, emb)

	first := []trial.Chunk{testChunk("NCT00000010", 0, "twin-a")}
	second := []trial.Chunk{testChunk("NCT00000011", 0, "twin-b")}
	if err := idx.Upsert(context.Background(), first); err != nil {
		t.Fatalf("upsert first: %v", err)
	}
	if err := idx.Upsert(context.Background(), second); err != nil {
		t.Fatalf("upsert second: %v", err)
	}
	results, err := idx.Query(context.Background(), []float32{1, 0, 0}, 2, Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if results[0].Chunk.TrialID != "NCT00000010" {
		t.Fatalf("tie should break toward earlier insertion, got %s first", results[0].Chunk.TrialID)
	}

	// Re-upserting the earlier chunk must not demote it.
	if err := idx.Upsert(context.Background(), first); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	results, err = idx.Query(context.Background(), []float32{1, 0, 0}, 2, Filter{})
	if err != nil {
		t.Fatalf("query after re-upsert: %v", err)
	}
	if results[0].Chunk.TrialID != "NCT00000010" {
		t.Fatalf("re-upsert changed tie order, got %s first", results[0].Chunk.TrialID)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	idx := openTestIndex(t, newStubEmbedder(3))
	chunks := []trial.Chunk{
		testChunk("NCT00000020", 0, "alpha"),
		testChunk("NCT00000020", 1, "beta"),
	}
	for i := 0; i < 3; i++ {
		if err := idx.Upsert(context.Background(), chunks); err != nil {
			t.Fatalf("upsert round %d: %v", i, err)
		}
	}
	if idx.Len() != 2 {
		t.Fatalf("expected 2 entries after repeated upsert, got %d", idx.Len())
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	emb := newStubEmbedder(3)
	emb.set("short", []float32{1, 0})
	idx := openTestIndex(t, emb)
	if err := idx.Upsert(context.Background(), []trial.Chunk{testChunk("NCT00000030", 0, "ok")}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	err := idx.Upsert(context.Background(), []trial.Chunk{testChunk("NCT00000031", 0, "short")})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("failed batch must not change the index, got %d entries", idx.Len())
	}
}

func TestQueryFilters(t *testing.T) {
	emb := newStubEmbedder(3)
	emb.set("recruiting text", []float32{1, 0, 0})
	emb.set("completed text", []float32{1, 0, 0})
	idx := openTestIndex(t, emb)

	recruiting := testChunk("NCT00000040", 0, "recruiting text")
	recruiting.Status = "RECRUITING"
	recruiting.Phase = "PHASE3"
	recruiting.StartDate = "2024-02-01"
	completed := testChunk("NCT00000041", 0, "completed text")
	completed.Status = "COMPLETED"
	completed.Phase = "PHASE2"
	completed.StartDate = "2021-05-01"
	if err := idx.Upsert(context.Background(), []trial.Chunk{recruiting, completed}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := idx.Query(context.Background(), []float32{1, 0, 0}, 5, Filter{Statuses: []string{"RECRUITING"}})
	if err != nil {
		t.Fatalf("status filter: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.TrialID != "NCT00000040" {
		t.Fatalf("status filter results: %+v", results)
	}

	results, err = idx.Query(context.Background(), []float32{1, 0, 0}, 5, Filter{Phases: []string{"PHASE2"}})
	if err != nil {
		t.Fatalf("phase filter: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.TrialID != "NCT00000041" {
		t.Fatalf("phase filter results: %+v", results)
	}

	results, err = idx.Query(context.Background(), []float32{1, 0, 0}, 5, Filter{StartAfter: "2023-01-01"})
	if err != nil {
		t.Fatalf("date filter: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.TrialID != "NCT00000040" {
		t.Fatalf("date filter results: %+v", results)
	}

	results, err = idx.Query(context.Background(), []float32{1, 0, 0}, 5, Filter{Statuses: []string{"SUSPENDED"}})
	if err != nil {
		t.Fatalf("no-match filter: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestChunksForTrialOrdering(t *testing.T) {
	idx := openTestIndex(t, newStubEmbedder(3))
	chunks := []trial.Chunk{
		testChunk("NCT00000050", 2, "third"),
		testChunk("NCT00000050", 0, "first"),
		testChunk("NCT00000050", 1, "second"),
		testChunk("NCT00000051", 0, "other"),
	}
	if err := idx.Upsert(context.Background(), chunks); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got := idx.ChunksForTrial("NCT00000050")
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, chunk := range got {
		if chunk.Position != i {
			t.Fatalf("chunk %d out of order: position %d", i, chunk.Position)
		}
	}
}

func TestIndexPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")
	emb := newStubEmbedder(3)
	emb.set("persisted", []float32{0, 1, 0})

	idx, err := Open(Config{Path: path}, emb)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Upsert(context.Background(), []trial.Chunk{testChunk("NCT00000060", 0, "persisted")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(Config{Path: path}, emb)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Len() != 1 || reopened.Dimension() != 3 {
		t.Fatalf("snapshot not restored: len=%d dim=%d", reopened.Len(), reopened.Dimension())
	}
	results, err := reopened.Query(context.Background(), []float32{0, 1, 0}, 1, Filter{})
	if err != nil {
		t.Fatalf("query after reopen: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Text != "persisted" {
		t.Fatalf("unexpected results after reopen: %+v", results)
	}
}

func TestClear(t *testing.T) {
	idx := openTestIndex(t, newStubEmbedder(3))
	if err := idx.Upsert(context.Background(), []trial.Chunk{testChunk("NCT00000070", 0, "gone")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if idx.Len() != 0 || idx.Dimension() != 0 {
		t.Fatalf("index not cleared: len=%d dim=%d", idx.Len(), idx.Dimension())
	}
	if _, err := idx.Query(context.Background(), []float32{1, 0, 0}, 1, Filter{}); !errors.Is(err, ErrIndexEmpty) {
		t.Fatalf("expected ErrIndexEmpty after clear, got %v", err)
	}
}
