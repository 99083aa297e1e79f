package quota

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/IskanderBlue/CodeChronicle/pkg/postgres"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS quota_usage (
		identity TEXT NOT NULL,
		day      DATE NOT NULL,
		count    INTEGER NOT NULL,
		PRIMARY KEY (identity, day)
	)`,
}

// PostgresStore keeps counters in quota_usage. The conditional upsert locks
// only the (identity, day) row.
type PostgresStore struct {
	db *postgres.Client
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) IncrementIfBelow(ctx context.Context, identity string, day time.Time, limit int) (int, bool, error) {
	if limit <= 0 {
		used, err := s.Usage(ctx, identity, day)
		return used, false, err
	}
	var used int
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO quota_usage (identity, day, count) VALUES ($1, $2, 1)
		 ON CONFLICT (identity, day) DO UPDATE
		 SET count = quota_usage.count + 1
		 WHERE quota_usage.count < $3
		 RETURNING count`,
		identity, DayKey(day), limit,
	).Scan(&used)
	if err == sql.ErrNoRows {
		used, err := s.Usage(ctx, identity, day)
		return used, false, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("incrementing quota for %s: %w", identity, err)
	}
	return used, true, nil
}

func (s *PostgresStore) Increment(ctx context.Context, identity string, day time.Time) (int, error) {
	var used int
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO quota_usage (identity, day, count) VALUES ($1, $2, 1)
		 ON CONFLICT (identity, day) DO UPDATE SET count = quota_usage.count + 1
		 RETURNING count`,
		identity, DayKey(day),
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("recording usage for %s: %w", identity, err)
	}
	return used, nil
}

func (s *PostgresStore) Usage(ctx context.Context, identity string, day time.Time) (int, error) {
	var used int
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT count FROM quota_usage WHERE identity = $1 AND day = $2`,
		identity, DayKey(day),
	).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading quota for %s: %w", identity, err)
	}
	return used, nil
}

// PurgeBefore deletes counters of days before day.
func (s *PostgresStore) PurgeBefore(ctx context.Context, day time.Time) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM quota_usage WHERE day < $1`, DayKey(day))
	if err != nil {
		return 0, fmt.Errorf("purging quota usage: %w", err)
	}
	return res.RowsAffected()
}
