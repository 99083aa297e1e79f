package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IskanderBlue/CodeChronicle/pkg/postgres"
)

func TestPostgresStoreConcurrentAdmissions(t *testing.T) {
	db := postgres.NewForTest(t)
	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx, Schema...))
	_, err := db.DB.ExecContext(ctx, `DELETE FROM quota_usage WHERE identity LIKE 'test:%'`)
	require.NoError(t, err)

	c := NewCounter(NewPostgresStore(db), DefaultLimits(), Options{}, nil)
	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := c.TryAdmit(ctx, "test:pg", TierFree, today)
			if assert.NoError(t, err) && d.Admitted {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(3), admitted.Load())

	d, err := c.TryAdmit(ctx, "test:pg", TierFree, today)
	require.NoError(t, err)
	assert.False(t, d.Admitted)
	assert.Equal(t, 3, d.Used)

	store := NewPostgresStore(db)
	_, err = store.Increment(ctx, "test:old", today.AddDate(0, 0, -3))
	require.NoError(t, err)
	n, err := store.PurgeBefore(ctx, today.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}
