package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInReadTxSeesOneSnapshot(t *testing.T) {
	db := NewForTest(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx,
		`CREATE TABLE IF NOT EXISTS read_tx_test (id INTEGER PRIMARY KEY, n INTEGER NOT NULL)`,
	))
	_, err := db.DB.ExecContext(ctx, `INSERT INTO read_tx_test (id, n) VALUES (1, 1)
		ON CONFLICT (id) DO UPDATE SET n = 1`)
	require.NoError(t, err)

	var before, after int
	err = db.InReadTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT n FROM read_tx_test WHERE id = 1`).Scan(&before); err != nil {
			return err
		}
		if err := db.InTx(ctx, func(w *sql.Tx) error {
			_, err := w.ExecContext(ctx, `UPDATE read_tx_test SET n = n + 1 WHERE id = 1`)
			return err
		}); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT n FROM read_tx_test WHERE id = 1`).Scan(&after)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, before)
	assert.Equal(t, before, after, "commit from another connection is invisible inside the read transaction")
}

func TestInReadTxRejectsWrites(t *testing.T) {
	db := NewForTest(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx,
		`CREATE TABLE IF NOT EXISTS read_tx_test (id INTEGER PRIMARY KEY, n INTEGER NOT NULL)`,
	))
	err := db.InReadTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE read_tx_test SET n = 0`)
		return err
	})
	assert.Error(t, err)
}
