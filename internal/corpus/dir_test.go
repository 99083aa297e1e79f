package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
)

func TestDirReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "OBC_Vol1.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"code":"OBC","version":"2024","sections":[
		{"id":"9.10.1","title":"Fire separations","keywords":["Fire"," separation "]}]}`), 0o644))
	r := NewDirReader(dir)
	ctx := context.Background()

	set, err := r.ContentSet(ctx, "OBC_Vol1")
	require.NoError(t, err)
	assert.Equal(t, "OBC_2024", set.CodeName)
	require.Len(t, set.Passages, 1)
	assert.Equal(t, []string{"fire", "separation"}, set.Passages[0].Keywords)

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	again, err := r.ContentSet(ctx, "OBC_Vol1")
	require.NoError(t, err)
	assert.Greater(t, again.Generation, set.Generation)

	for _, id := range []string{"missing", "../OBC_Vol1", ""} {
		_, err = r.ContentSet(ctx, id)
		assert.True(t, apperrors.Is(err, apperrors.ErrContentSetNotFound), id)
	}
}
