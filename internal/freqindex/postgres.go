package freqindex

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
	"github.com/IskanderBlue/CodeChronicle/pkg/postgres"
	"github.com/lib/pq"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS term_frequency_sets (
		content_set TEXT PRIMARY KEY,
		generation  BIGINT NOT NULL,
		total_docs  INTEGER NOT NULL,
		built_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS term_frequencies (
		content_set TEXT NOT NULL REFERENCES term_frequency_sets(content_set) ON DELETE CASCADE,
		term        TEXT NOT NULL,
		doc_count   INTEGER NOT NULL,
		PRIMARY KEY (content_set, term)
	)`,
}

// PostgresStore persists snapshots. Entries of a set are replaced wholesale
// inside one transaction.
type PostgresStore struct {
	db *postgres.Client
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ReplaceEntries(ctx context.Context, snap *Snapshot) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO term_frequency_sets (content_set, generation, total_docs, built_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (content_set) DO UPDATE
			 SET generation = EXCLUDED.generation,
			     total_docs = EXCLUDED.total_docs,
			     built_at = EXCLUDED.built_at`,
			snap.ContentSetID, int64(snap.Generation), snap.TotalDocs, snap.BuiltAt,
		)
		if err != nil {
			return fmt.Errorf("upserting frequency set %s: %w", snap.ContentSetID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM term_frequencies WHERE content_set = $1`, snap.ContentSetID,
		); err != nil {
			return fmt.Errorf("clearing frequencies of %s: %w", snap.ContentSetID, err)
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("term_frequencies", "content_set", "term", "doc_count"))
		if err != nil {
			return fmt.Errorf("preparing frequency copy: %w", err)
		}
		for _, e := range snap.Entries() {
			if _, err := stmt.ExecContext(ctx, snap.ContentSetID, e.Term, e.DocCount); err != nil {
				stmt.Close()
				return fmt.Errorf("copying frequency %s/%s: %w", snap.ContentSetID, e.Term, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("flushing frequency copy: %w", err)
		}
		return stmt.Close()
	})
}

// Load reads the stored header and counts of contentSetID from one snapshot,
// so the generation always labels the counts returned with it.
func (s *PostgresStore) Load(ctx context.Context, contentSetID string) (*Snapshot, error) {
	var snap *Snapshot
	err := s.db.InReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		snap, err = loadSnapshot(ctx, tx, contentSetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func loadSnapshot(ctx context.Context, tx *sql.Tx, contentSetID string) (*Snapshot, error) {
	var (
		generation int64
		totalDocs  int
		snap       = &Snapshot{ContentSetID: contentSetID, counts: make(map[string]int)}
	)
	err := tx.QueryRowContext(ctx,
		`SELECT generation, total_docs, built_at FROM term_frequency_sets WHERE content_set = $1`,
		contentSetID,
	).Scan(&generation, &totalDocs, &snap.BuiltAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrIndexUnavailable, 503, "no stored frequencies for %q", contentSetID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying frequency set %s: %w", contentSetID, err)
	}
	snap.Generation = uint64(generation)
	snap.TotalDocs = totalDocs

	rows, err := tx.QueryContext(ctx,
		`SELECT term, doc_count FROM term_frequencies WHERE content_set = $1`, contentSetID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying frequencies of %s: %w", contentSetID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var term string
		var n int
		if err := rows.Scan(&term, &n); err != nil {
			return nil, fmt.Errorf("scanning frequency row: %w", err)
		}
		snap.counts[term] = n
	}
	return snap, rows.Err()
}
