package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
	"github.com/IskanderBlue/CodeChronicle/pkg/postgres"
	"github.com/lib/pq"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS code_maps (
		map_code   TEXT PRIMARY KEY,
		code_name  TEXT NOT NULL DEFAULT '',
		generation BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS code_map_nodes (
		map_code  TEXT NOT NULL REFERENCES code_maps(map_code) ON DELETE CASCADE,
		node_id   TEXT NOT NULL,
		position  INTEGER NOT NULL,
		title     TEXT NOT NULL DEFAULT '',
		page      INTEGER,
		page_end  INTEGER,
		body      TEXT NOT NULL DEFAULT '',
		keywords  TEXT[] NOT NULL DEFAULT '{}',
		bbox      JSONB,
		parent_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (map_code, node_id)
	)`,
	`CREATE INDEX IF NOT EXISTS code_map_nodes_keywords_gin ON code_map_nodes USING GIN (keywords)`,
}

// PostgresStore is the authoritative passage store.
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "corpus-postgres"),
	}
}

// ContentSet reads the header and passages of id from one snapshot, so the
// generation always labels the passages returned with it.
func (s *PostgresStore) ContentSet(ctx context.Context, id string) (*ContentSet, error) {
	var set *ContentSet
	err := s.db.InReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		set, err = readContentSet(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

func readContentSet(ctx context.Context, tx *sql.Tx, id string) (*ContentSet, error) {
	set := &ContentSet{ID: id}
	err := tx.QueryRowContext(ctx,
		`SELECT code_name, generation FROM code_maps WHERE map_code = $1`, id,
	).Scan(&set.CodeName, &set.Generation)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrContentSetNotFound, 404, "content set %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying content set %s: %w", id, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT node_id, title, page, page_end, body, keywords, bbox, parent_id
		 FROM code_map_nodes
		 WHERE map_code = $1
		 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying passages of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p       = Passage{ContentSet: id}
			page    sql.NullInt64
			pageEnd sql.NullInt64
			bbox    []byte
		)
		if err := rows.Scan(&p.ID, &p.Title, &page, &pageEnd, &p.Body, pq.Array(&p.Keywords), &bbox, &p.ParentID); err != nil {
			return nil, fmt.Errorf("scanning passage row: %w", err)
		}
		if page.Valid || pageEnd.Valid || len(bbox) > 0 {
			p.Location = &Location{Page: intPtr(page), PageEnd: intPtr(pageEnd), BBox: bbox}
		}
		set.Passages = append(set.Passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passages of %s: %w", id, err)
	}
	return set, nil
}

// Replace swaps the passages of id in one transaction and returns the new
// generation.
func (s *PostgresStore) Replace(ctx context.Context, id, codeName string, passages []Passage) (uint64, error) {
	passages = normalizePassages(id, passages)
	var gen uint64
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO code_maps (map_code, code_name, generation)
			 VALUES ($1, $2, 1)
			 ON CONFLICT (map_code) DO UPDATE
			 SET code_name = EXCLUDED.code_name,
			     generation = code_maps.generation + 1,
			     updated_at = NOW()
			 RETURNING generation`,
			id, codeName,
		).Scan(&gen)
		if err != nil {
			return fmt.Errorf("upserting map %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM code_map_nodes WHERE map_code = $1`, id); err != nil {
			return fmt.Errorf("clearing passages of %s: %w", id, err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO code_map_nodes (map_code, node_id, position, title, page, page_end, body, keywords, bbox, parent_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		)
		if err != nil {
			return fmt.Errorf("preparing passage insert: %w", err)
		}
		defer stmt.Close()
		for i, p := range passages {
			var page, pageEnd sql.NullInt64
			var bbox sql.NullString
			if p.Location != nil {
				page, pageEnd = nullInt(p.Location.Page), nullInt(p.Location.PageEnd)
				bbox = sql.NullString{String: string(p.Location.BBox), Valid: len(p.Location.BBox) > 0}
			}
			if _, err := stmt.ExecContext(ctx, id, p.ID, i, p.Title, page, pageEnd, p.Body,
				pq.Array(p.Keywords), bbox, p.ParentID); err != nil {
				return fmt.Errorf("inserting passage %s/%s: %w", id, p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("content set replaced", "content_set", id, "passages", len(passages), "generation", gen)
	return gen, nil
}

// IDs returns every stored content set id, sorted.
func (s *PostgresStore) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT map_code FROM code_maps ORDER BY map_code`)
	if err != nil {
		return nil, fmt.Errorf("listing content sets: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning content set id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
