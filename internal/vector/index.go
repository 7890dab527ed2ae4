package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/trialscope/trialscope/internal/common"
	"github.com/trialscope/trialscope/internal/trial"
)

var (
	// ErrIndexEmpty is returned by Query when no chunks have been upserted.
	ErrIndexEmpty = errors.New("vector index is empty")
	// ErrDimensionMismatch marks an embedding whose length differs from the
	// dimension fixed at first use. It is fatal for the ingestion batch.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder turns text into fixed-length vectors. The index treats it as an
// opaque capability and only checks the output dimensionality.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// Filter restricts a query to chunks whose source document matches. Zero
// value matches everything. Dates are compared as ISO strings, which the
// registry date formats order correctly.
type Filter struct {
	TrialIDs    []string
	Statuses    []string
	Phases      []string
	StartAfter  string
	StartBefore string
}

// IsZero reports whether the filter constrains anything.
func (f Filter) IsZero() bool {
	return len(f.TrialIDs) == 0 && len(f.Statuses) == 0 && len(f.Phases) == 0 &&
		f.StartAfter == "" && f.StartBefore == ""
}

// SearchResult pairs a chunk with its similarity to the query vector.
type SearchResult struct {
	Chunk trial.Chunk `json:"chunk"`
	Score float64     `json:"score"`
}

type entry struct {
	chunk trial.Chunk
	vec   []float32
	seq   int64
}

// Index owns the embedding store: it computes vectors on upsert, persists
// them to SQLite and answers k-nearest-neighbor queries from an in-memory
// snapshot. Writes are serialized; readers see either the pre- or
// post-write state, never a mix.
type Index struct {
	db       *sqlx.DB
	embedder Embedder

	mu      sync.RWMutex
	entries map[string]*entry
	dim     int
	nextSeq int64
}

// Open loads (or creates) the index database at cfg.Path and restores the
// in-memory snapshot, so a reopened index answers queries exactly as it did
// before shutdown.
func Open(cfg Config, embedder Embedder) (*Index, error) {
	cfg.applyDefaults()
	if embedder == nil {
		return nil, errors.New("embedder required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve index path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	busy := int(cfg.BusyTimeout / time.Millisecond)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", abs, busy)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	idx := &Index{db: db, embedder: embedder, entries: make(map[string]*entry)}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := idx.load(); err != nil {
		db.Close()
		return nil, err
	}
	common.Logger().Info("vector: index opened", "path", abs, "chunks", len(idx.entries), "dim", idx.dim)
	return idx, nil
}

func (x *Index) migrate() error {
	_, err := x.db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
                id TEXT PRIMARY KEY,
                trial_id TEXT NOT NULL,
                position INTEGER NOT NULL,
                text TEXT NOT NULL,
                title TEXT,
                status TEXT,
                phase TEXT,
                study_type TEXT,
                start_date TEXT,
                embedding BLOB NOT NULL,
                seq INTEGER NOT NULL
        );
        CREATE INDEX IF NOT EXISTS chunks_trial ON chunks(trial_id);`)
	if err != nil {
		return fmt.Errorf("migrate index schema: %w", err)
	}
	return nil
}

type chunkRow struct {
	ID        string `db:"id"`
	TrialID   string `db:"trial_id"`
	Position  int    `db:"position"`
	Text      string `db:"text"`
	Title     string `db:"title"`
	Status    string `db:"status"`
	Phase     string `db:"phase"`
	StudyType string `db:"study_type"`
	StartDate string `db:"start_date"`
	Embedding []byte `db:"embedding"`
	Seq       int64  `db:"seq"`
}

func (x *Index) load() error {
	var rows []chunkRow
	if err := x.db.Select(&rows, `SELECT id, trial_id, position, text, title, status, phase, study_type, start_date, embedding, seq FROM chunks ORDER BY seq`); err != nil {
		return fmt.Errorf("load index rows: %w", err)
	}
	for _, row := range rows {
		vec := decodeVector(row.Embedding)
		if x.dim == 0 {
			x.dim = len(vec)
		}
		x.entries[row.ID] = &entry{chunk: rowToChunk(row), vec: vec, seq: row.Seq}
		if row.Seq >= x.nextSeq {
			x.nextSeq = row.Seq + 1
		}
	}
	return nil
}

func rowToChunk(row chunkRow) trial.Chunk {
	return trial.Chunk{
		ID:        row.ID,
		TrialID:   row.TrialID,
		Position:  row.Position,
		Text:      row.Text,
		Title:     row.Title,
		Status:    row.Status,
		Phase:     row.Phase,
		StudyType: row.StudyType,
		StartDate: row.StartDate,
	}
}

// Close releases the database handle.
func (x *Index) Close() error {
	if x == nil || x.db == nil {
		return nil
	}
	return x.db.Close()
}

// Len reports the number of indexed chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Dimension reports the fixed embedding dimension, or zero before first use.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// Upsert embeds the chunks and inserts or replaces index entries keyed by
// chunk id. Re-upserting the same chunks is idempotent: text, vector and
// insertion order all come out identical. The database commit happens before
// the in-memory snapshot changes, so a crash never leaves memory ahead of
// disk.
func (x *Index) Upsert(ctx context.Context, chunks []trial.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	dim := x.dim
	for _, vec := range vectors {
		if len(vec) == 0 {
			return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
		}
		if dim == 0 {
			dim = len(vec)
			continue
		}
		if len(vec) != dim {
			return fmt.Errorf("%w: got %d, index uses %d", ErrDimensionMismatch, len(vec), dim)
		}
	}

	tx, err := x.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	type staged struct {
		chunk trial.Chunk
		vec   []float32
		seq   int64
	}
	stagedEntries := make([]staged, 0, len(chunks))
	seq := x.nextSeq
	for i, chunk := range chunks {
		assigned := seq
		if existing, ok := x.entries[chunk.ID]; ok {
			// Replacement keeps the original insertion order so tie
			// breaking stays stable across re-ingestion.
			assigned = existing.seq
		} else {
			seq++
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunks
                        (id, trial_id, position, text, title, status, phase, study_type, start_date, embedding, seq)
                        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT(id) DO UPDATE SET
                        trial_id=excluded.trial_id, position=excluded.position, text=excluded.text,
                        title=excluded.title, status=excluded.status, phase=excluded.phase,
                        study_type=excluded.study_type, start_date=excluded.start_date,
                        embedding=excluded.embedding, seq=excluded.seq`,
			chunk.ID, chunk.TrialID, chunk.Position, chunk.Text, chunk.Title,
			chunk.Status, chunk.Phase, chunk.StudyType, chunk.StartDate,
			encodeVector(vectors[i]), assigned); err != nil {
			tx.Rollback()
			return fmt.Errorf("persist chunk %s: %w", chunk.ID, err)
		}
		stagedEntries = append(stagedEntries, staged{chunk: chunk, vec: vectors[i], seq: assigned})
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	for _, st := range stagedEntries {
		x.entries[st.chunk.ID] = &entry{chunk: st.chunk, vec: st.vec, seq: st.seq}
	}
	x.dim = dim
	x.nextSeq = seq
	common.Logger().Debug("vector: upsert complete", "chunks", len(chunks), "total", len(x.entries))
	return nil
}

// Query returns the k chunks closest to the vector under cosine similarity,
// optionally restricted by filter. Ties break toward the earlier-ingested
// chunk. An empty index yields ErrIndexEmpty.
func (x *Index) Query(ctx context.Context, vec []float32, k int, filter Filter) ([]SearchResult, error) {
	if k <= 0 {
		k = 5
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.entries) == 0 {
		return nil, ErrIndexEmpty
	}
	if x.dim > 0 && len(vec) != x.dim {
		return nil, fmt.Errorf("%w: query vector %d, index uses %d", ErrDimensionMismatch, len(vec), x.dim)
	}
	type scored struct {
		res SearchResult
		seq int64
	}
	matches := make([]scored, 0, len(x.entries))
	for _, ent := range x.entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if !matchesFilter(ent.chunk, filter) {
			continue
		}
		score := cosineSimilarity(vec, ent.vec)
		matches = append(matches, scored{res: SearchResult{Chunk: ent.chunk, Score: score}, seq: ent.seq})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].res.Score == matches[j].res.Score {
			return matches[i].seq < matches[j].seq
		}
		return matches[i].res.Score > matches[j].res.Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	out := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.res)
	}
	return out, nil
}

// ChunksForTrial returns every indexed chunk of one trial in position order.
func (x *Index) ChunksForTrial(trialID string) []trial.Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var chunks []trial.Chunk
	for _, ent := range x.entries {
		if strings.EqualFold(ent.chunk.TrialID, trialID) {
			chunks = append(chunks, ent.chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	return chunks
}

// Clear removes every entry. The delete commits before the in-memory state
// resets, so concurrent queries observe either the full or the empty index.
func (x *Index) Clear(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, err := x.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	x.entries = make(map[string]*entry)
	x.dim = 0
	x.nextSeq = 0
	common.Logger().Info("vector: index cleared")
	return nil
}

func matchesFilter(chunk trial.Chunk, filter Filter) bool {
	if filter.IsZero() {
		return true
	}
	if len(filter.TrialIDs) > 0 && !containsFold(filter.TrialIDs, chunk.TrialID) {
		return false
	}
	if len(filter.Statuses) > 0 && !containsFold(filter.Statuses, chunk.Status) {
		return false
	}
	if len(filter.Phases) > 0 {
		matched := false
		for _, phase := range filter.Phases {
			if phase != "" && strings.Contains(strings.ToUpper(chunk.Phase), strings.ToUpper(phase)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if filter.StartAfter != "" {
		if chunk.StartDate == "" || chunk.StartDate < filter.StartAfter {
			return false
		}
	}
	if filter.StartBefore != "" {
		if chunk.StartDate == "" || chunk.StartDate >= filter.StartBefore {
			return false
		}
	}
	return true
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(target)) {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
