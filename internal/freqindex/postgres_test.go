package freqindex

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IskanderBlue/CodeChronicle/internal/corpus"
	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
	"github.com/IskanderBlue/CodeChronicle/pkg/postgres"
)

func TestPostgresStoreReplaceEntries(t *testing.T) {
	db := postgres.NewForTest(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx, Schema...))

	store := NewPostgresStore(db)
	_, err := store.Load(ctx, "missing_set")
	assert.True(t, apperrors.Is(err, apperrors.ErrIndexUnavailable))

	set := &corpus.ContentSet{ID: "freq_test", Generation: 3, Passages: passages(
		[]string{"fire", "exit"}, []string{"fire"},
	)}
	require.NoError(t, store.ReplaceEntries(ctx, Compute(set)))

	set.Generation = 4
	set.Passages = passages([]string{"stair"})
	want := Compute(set)
	require.NoError(t, store.ReplaceEntries(ctx, want))

	got, err := store.Load(ctx, "freq_test")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), got.Generation)
	assert.Equal(t, 1, got.TotalDocs)
	assert.Equal(t, want.Entries(), got.Entries())
}

func TestPostgresStoreLoadIgnoresConcurrentReplace(t *testing.T) {
	db := postgres.NewForTest(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx, Schema...))

	store := NewPostgresStore(db)
	set := &corpus.ContentSet{ID: "freq_snapshot", Generation: 1, Passages: passages([]string{"fire"})}
	require.NoError(t, store.ReplaceEntries(ctx, Compute(set)))

	err := db.InReadTx(ctx, func(tx *sql.Tx) error {
		first, err := loadSnapshot(ctx, tx, "freq_snapshot")
		if err != nil {
			return err
		}
		next := &corpus.ContentSet{ID: "freq_snapshot", Generation: 2, Passages: passages([]string{"exit"}, []string{"stair"})}
		if err := store.ReplaceEntries(ctx, Compute(next)); err != nil {
			return err
		}
		second, err := loadSnapshot(ctx, tx, "freq_snapshot")
		if err != nil {
			return err
		}
		assert.Equal(t, uint64(1), second.Generation)
		assert.Equal(t, first.Entries(), second.Entries())
		return nil
	})
	require.NoError(t, err)

	got, err := store.Load(ctx, "freq_snapshot")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Generation)
	assert.Equal(t, 2, got.TotalDocs)
}
