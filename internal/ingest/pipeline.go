package ingest

import (
	"context"
	"fmt"

	"github.com/trialscope/trialscope/internal/common"
	"github.com/trialscope/trialscope/internal/corpus"
	"github.com/trialscope/trialscope/internal/registry"
	"github.com/trialscope/trialscope/internal/trial"
	"github.com/trialscope/trialscope/internal/vector"
)

// Fetcher pulls raw studies from the registry.
type Fetcher interface {
	FetchStudies(ctx context.Context, params registry.FetchParams) ([]trial.RawStudy, error)
}

// Request describes one ingestion run.
type Request struct {
	registry.FetchParams
	// ForceRefresh clears the catalog and index before ingesting.
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

// Summary reports what an ingestion run accomplished.
type Summary struct {
	Fetched  int `json:"fetched"`
	Ingested int `json:"ingested"`
	Skipped  int `json:"skipped"`
	Chunks   int `json:"chunks"`
}

// Pipeline runs fetch, normalize, catalog, chunk, and index as one pass.
type Pipeline struct {
	fetcher       Fetcher
	store         *corpus.Store
	index         *vector.Index
	maxTokens     int
	overlapTokens int
}

// New constructs a Pipeline. Non-positive chunking bounds use the defaults.
func New(fetcher Fetcher, store *corpus.Store, index *vector.Index, maxTokens, overlapTokens int) *Pipeline {
	if maxTokens <= 0 {
		maxTokens = trial.DefaultMaxTokens
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		overlapTokens = trial.DefaultOverlapTokens
	}
	return &Pipeline{fetcher: fetcher, store: store, index: index, maxTokens: maxTokens, overlapTokens: overlapTokens}
}

// Run executes one ingestion pass. A malformed or failing record is logged
// and skipped; it never aborts the rest of the batch. The returned summary
// counts what made it through each stage.
func (p *Pipeline) Run(ctx context.Context, req Request) (Summary, error) {
	logger := common.Logger()
	if req.ForceRefresh {
		if err := p.store.Clear(ctx); err != nil {
			return Summary{}, fmt.Errorf("ingest: clear catalog: %w", err)
		}
		if err := p.index.Clear(ctx); err != nil {
			return Summary{}, fmt.Errorf("ingest: clear index: %w", err)
		}
		logger.Info("ingest: cleared catalog and index before refresh")
	}

	raw, err := p.fetcher.FetchStudies(ctx, req.FetchParams)
	if err != nil {
		return Summary{}, fmt.Errorf("ingest: fetch studies: %w", err)
	}
	return p.IngestStudies(ctx, raw)
}

// IngestStudies runs the normalize, catalog, chunk and index stages over an
// already-fetched batch.
func (p *Pipeline) IngestStudies(ctx context.Context, raw []trial.RawStudy) (Summary, error) {
	logger := common.Logger()
	summary := Summary{Fetched: len(raw)}
	for _, study := range raw {
		doc, err := trial.Normalize(study)
		if err != nil {
			logger.Warn("ingest: skipping malformed study", "error", err)
			summary.Skipped++
			continue
		}
		if err := p.ingestOne(ctx, doc, &summary); err != nil {
			logger.Warn("ingest: skipping study", "nct_id", doc.NCTID, "error", err)
			summary.Skipped++
		}
	}
	logger.Info("ingest: run complete",
		"fetched", summary.Fetched, "ingested", summary.Ingested,
		"skipped", summary.Skipped, "chunks", summary.Chunks)
	return summary, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, doc trial.TrialDocument, summary *Summary) error {
	if err := p.store.Upsert(ctx, doc); err != nil {
		return err
	}
	chunks := trial.ChunkDocument(doc, p.maxTokens, p.overlapTokens)
	if len(chunks) > 0 {
		if err := p.index.Upsert(ctx, chunks); err != nil {
			return err
		}
	}
	summary.Ingested++
	summary.Chunks += len(chunks)
	return nil
}
