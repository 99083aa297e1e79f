package corpus

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
	"github.com/IskanderBlue/CodeChronicle/pkg/postgres"
)

func TestPostgresStoreReplaceAndRead(t *testing.T) {
	db := postgres.NewForTest(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx, Schema...))
	_, err := db.DB.ExecContext(ctx, `DELETE FROM code_maps WHERE map_code = 'test_map'`)
	require.NoError(t, err)

	store := NewPostgresStore(db)
	_, err = store.ContentSet(ctx, "test_map")
	assert.True(t, apperrors.Is(err, apperrors.ErrContentSetNotFound))

	m, err := LoadMapFile(strings.NewReader(mapJSON), "test_map")
	require.NoError(t, err)

	gen1, err := store.Replace(ctx, m.MapCode, m.CodeName, m.Passages)
	require.NoError(t, err)
	gen2, err := store.Replace(ctx, m.MapCode, m.CodeName, m.Passages)
	require.NoError(t, err)
	assert.Equal(t, gen1+1, gen2)

	set, err := store.ContentSet(ctx, "test_map")
	require.NoError(t, err)
	assert.Equal(t, gen2, set.Generation)
	assert.Equal(t, "OBC_2012_v38", set.CodeName)
	require.Len(t, set.Passages, 2)
	assert.Equal(t, m.Passages[0].Keywords, set.Passages[0].Keywords)
	require.NotNil(t, set.Passages[0].Location)
	assert.Equal(t, 12, *set.Passages[0].Location.Page)
	assert.Nil(t, set.Passages[1].Location)

	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "test_map")
}

func TestPostgresStoreReadIgnoresConcurrentReplace(t *testing.T) {
	db := postgres.NewForTest(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx, Schema...))
	_, err := db.DB.ExecContext(ctx, `DELETE FROM code_maps WHERE map_code = 'test_snapshot'`)
	require.NoError(t, err)

	store := NewPostgresStore(db)
	m, err := LoadMapFile(strings.NewReader(mapJSON), "test_snapshot")
	require.NoError(t, err)
	gen, err := store.Replace(ctx, m.MapCode, m.CodeName, m.Passages)
	require.NoError(t, err)

	err = db.InReadTx(ctx, func(tx *sql.Tx) error {
		first, err := readContentSet(ctx, tx, "test_snapshot")
		if err != nil {
			return err
		}
		if _, err := store.Replace(ctx, m.MapCode, m.CodeName, m.Passages[:1]); err != nil {
			return err
		}
		second, err := readContentSet(ctx, tx, "test_snapshot")
		if err != nil {
			return err
		}
		assert.Equal(t, gen, first.Generation)
		assert.Equal(t, first.Generation, second.Generation)
		assert.Len(t, second.Passages, len(first.Passages))
		return nil
	})
	require.NoError(t, err)

	set, err := store.ContentSet(ctx, "test_snapshot")
	require.NoError(t, err)
	assert.Equal(t, gen+1, set.Generation)
	assert.Len(t, set.Passages, 1)
}
