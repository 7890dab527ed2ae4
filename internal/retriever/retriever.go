package retriever

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/trialscope/trialscope/internal/common"
	"github.com/trialscope/trialscope/internal/query"
	"github.com/trialscope/trialscope/internal/vector"
)

// Config bounds a retrieval pass. Zero values are replaced by defaults.
type Config struct {
	TopK          int
	PerTrialLimit int
	OverFetch     int
	MinScore      float64
	minScoreSet   bool
}

// LoadConfig builds a Config from the environment.
func LoadConfig() Config {
	cfg := Config{}
	if raw := os.Getenv("TRIALSCOPE_RETRIEVER_TOP_K"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			cfg.TopK = parsed
		}
	}
	if raw := os.Getenv("TRIALSCOPE_RETRIEVER_PER_TRIAL"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			cfg.PerTrialLimit = parsed
		}
	}
	if raw := os.Getenv("TRIALSCOPE_RETRIEVER_MIN_SCORE"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.MinScore = parsed
			cfg.minScoreSet = true
		}
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.PerTrialLimit <= 0 {
		c.PerTrialLimit = 2
	}
	if c.OverFetch <= 0 {
		c.OverFetch = 3
	}
	if c.MinScore == 0 && !c.minScoreSet {
		c.MinScore = 0.15
	}
}

// Retriever turns an analyzed intent into scored chunks from the index.
type Retriever struct {
	index    *vector.Index
	embedder vector.Embedder
	cfg      Config
}

// New constructs a Retriever over the given index and embedder.
func New(index *vector.Index, embedder vector.Embedder, cfg Config) *Retriever {
	cfg.applyDefaults()
	return &Retriever{index: index, embedder: embedder, cfg: cfg}
}

// Retrieve runs the retrieval pass for an intent with the configured limits.
func (r *Retriever) Retrieve(ctx context.Context, intent query.Intent) ([]vector.SearchResult, error) {
	return r.RetrieveWithLimits(ctx, intent, 0, 0)
}

// RetrieveWithLimits overrides TopK and the per-trial cap for one call;
// non-positive values keep the configured limits. Filters are applied as a
// hard pre-filter before ranking. An empty index yields an empty result set
// rather than an error so callers can answer with an explicit refusal.
func (r *Retriever) RetrieveWithLimits(ctx context.Context, intent query.Intent, topK, perTrial int) ([]vector.SearchResult, error) {
	cfg := r.cfg
	if topK > 0 {
		cfg.TopK = topK
	}
	if perTrial > 0 {
		cfg.PerTrialLimit = perTrial
	}
	if len(intent.Filters.NCTIDs) > 0 {
		return r.lookupTrials(intent.Filters.NCTIDs), nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{intent.Question})
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("retriever: embedder returned no vector")
	}

	filter := vector.Filter{
		Statuses:    intent.Filters.Statuses,
		Phases:      intent.Filters.Phases,
		StartAfter:  intent.Filters.StartAfter,
		StartBefore: intent.Filters.StartBefore,
	}
	fetch := cfg.TopK * cfg.OverFetch
	results, err := r.index.Query(ctx, vectors[0], fetch, filter)
	if err != nil {
		if errors.Is(err, vector.ErrIndexEmpty) {
			common.Logger().Warn("retriever: index empty", "question", intent.Question)
			return nil, nil
		}
		return nil, fmt.Errorf("retriever: query index: %w", err)
	}
	return rank(results, cfg), nil
}

// lookupTrials is the fast path for queries naming NCT ids directly: the
// trial's chunks are returned in document order without vector scoring.
func (r *Retriever) lookupTrials(ids []string) []vector.SearchResult {
	var results []vector.SearchResult
	for _, id := range ids {
		for _, chunk := range r.index.ChunksForTrial(id) {
			results = append(results, vector.SearchResult{Chunk: chunk, Score: 1.0})
		}
	}
	return results
}

// rank applies the score floor and per-trial cap, then keeps the global
// top-k. Input is already ordered by score descending with stable ties.
func rank(results []vector.SearchResult, cfg Config) []vector.SearchResult {
	perTrial := make(map[string]int)
	kept := make([]vector.SearchResult, 0, cfg.TopK)
	for _, result := range results {
		if result.Score < cfg.MinScore {
			continue
		}
		if perTrial[result.Chunk.TrialID] >= cfg.PerTrialLimit {
			continue
		}
		perTrial[result.Chunk.TrialID]++
		kept = append(kept, result)
		if len(kept) >= cfg.TopK {
			break
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	return kept
}
