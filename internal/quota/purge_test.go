package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartPurgeLoop(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now().UTC()
	_, err := s.Increment(ctx, "user:1", now.AddDate(0, 0, -5))
	require.NoError(t, err)
	_, err = s.Increment(ctx, "user:1", now)
	require.NoError(t, err)

	StartPurgeLoop(ctx, s, time.Hour, 2)
	require.Eventually(t, func() bool {
		n, _ := s.Usage(ctx, "user:1", now.AddDate(0, 0, -5))
		return n == 0
	}, time.Second, 5*time.Millisecond)

	n, err := s.Usage(ctx, "user:1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
