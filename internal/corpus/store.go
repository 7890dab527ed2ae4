package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/trialscope/trialscope/internal/trial"
)

// Store is the SQLite-backed catalog of normalized trial documents. It is
// the system of record for statistics and re-indexing; the vector index
// keeps its own copy of chunk text.
type Store struct {
	db *sqlx.DB
}

// Open constructs a Store backed by the SQLite database at cfg.Path. The
// schema is migrated on first use.
func Open(cfg Config) (*Store, error) {
	cfg.applyDefaults()
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}
	busy := int(cfg.BusyTimeout / time.Millisecond)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", abs, busy)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BusyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS trials (
                nct_id TEXT PRIMARY KEY,
                title TEXT NOT NULL DEFAULT '',
                official_title TEXT NOT NULL DEFAULT '',
                organization TEXT NOT NULL DEFAULT '',
                status TEXT NOT NULL DEFAULT '',
                why_stopped TEXT NOT NULL DEFAULT '',
                phase TEXT NOT NULL DEFAULT '',
                study_type TEXT NOT NULL DEFAULT '',
                sponsor TEXT NOT NULL DEFAULT '',
                conditions TEXT NOT NULL DEFAULT '',
                start_date TEXT NOT NULL DEFAULT '',
                completion_date TEXT NOT NULL DEFAULT '',
                last_update TEXT NOT NULL DEFAULT '',
                enrollment INTEGER NOT NULL DEFAULT 0,
                full_text TEXT NOT NULL DEFAULT '',
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE INDEX IF NOT EXISTS idx_trials_status ON trials(status);`,
	`CREATE INDEX IF NOT EXISTS idx_trials_study_type ON trials(study_type);`,
}

const upsertTrial = `INSERT INTO trials (
        nct_id, title, official_title, organization, status, why_stopped,
        phase, study_type, sponsor, conditions, start_date, completion_date,
        last_update, enrollment, full_text, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(nct_id) DO UPDATE SET
        title = excluded.title,
        official_title = excluded.official_title,
        organization = excluded.organization,
        status = excluded.status,
        why_stopped = excluded.why_stopped,
        phase = excluded.phase,
        study_type = excluded.study_type,
        sponsor = excluded.sponsor,
        conditions = excluded.conditions,
        start_date = excluded.start_date,
        completion_date = excluded.completion_date,
        last_update = excluded.last_update,
        enrollment = excluded.enrollment,
        full_text = excluded.full_text,
        updated_at = CURRENT_TIMESTAMP`

// Upsert writes a trial document keyed by its NCT id.
func (s *Store) Upsert(ctx context.Context, doc trial.TrialDocument) error {
	if strings.TrimSpace(doc.NCTID) == "" {
		return errors.New("corpus: trial missing nct id")
	}
	_, err := s.db.ExecContext(ctx, upsertTrial,
		doc.NCTID, doc.Title, doc.OfficialTitle, doc.Organization, doc.Status,
		doc.WhyStopped, doc.Phase, doc.StudyType, doc.Sponsor,
		strings.Join(doc.Conditions, "|"), doc.StartDate, doc.CompletionDate,
		doc.LastUpdate, doc.Enrollment, doc.FullText)
	if err != nil {
		return fmt.Errorf("upsert trial %s: %w", doc.NCTID, err)
	}
	return nil
}

type trialRow struct {
	trial.TrialDocument
	ConditionsRaw string `db:"conditions"`
}

const selectTrials = `SELECT nct_id, title, official_title, organization, status,
        why_stopped, phase, study_type, sponsor, conditions, start_date,
        completion_date, last_update, enrollment, full_text
FROM trials`

// List returns every catalogued trial ordered by NCT id.
func (s *Store) List(ctx context.Context) ([]trial.TrialDocument, error) {
	var rows []trialRow
	if err := s.db.SelectContext(ctx, &rows, selectTrials+" ORDER BY nct_id"); err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	docs := make([]trial.TrialDocument, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.document())
	}
	return docs, nil
}

// Get fetches a single trial by NCT id. Missing trials return sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, nctID string) (trial.TrialDocument, error) {
	var row trialRow
	if err := s.db.GetContext(ctx, &row, selectTrials+" WHERE nct_id = ?", nctID); err != nil {
		return trial.TrialDocument{}, fmt.Errorf("get trial %s: %w", nctID, err)
	}
	return row.document(), nil
}

// Count reports the number of catalogued trials.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM trials`); err != nil {
		return 0, fmt.Errorf("count trials: %w", err)
	}
	return count, nil
}

// Clear removes every catalogued trial.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM trials`); err != nil {
		return fmt.Errorf("clear trials: %w", err)
	}
	return nil
}

func (r trialRow) document() trial.TrialDocument {
	doc := r.TrialDocument
	if r.ConditionsRaw != "" {
		doc.Conditions = strings.Split(r.ConditionsRaw, "|")
	}
	return doc
}
