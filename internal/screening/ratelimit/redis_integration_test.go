//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertyvet/internal/screening/models"
	"propertyvet/pkg/testutil/containers"
)

// Runs the Lua admission script against a real server; miniredis covers the
// rest.
func TestRedisLimiterAgainstRedis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	const limit = 25
	limiter := NewRedis(rc.Client, Limits{models.ProviderCredit: limit}, WithCallTimeout(5*time.Second))

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			ok, err := limiter.Acquire(ctx, models.ProviderCredit)
			assert.NoError(t, err)
			if ok {
				admitted.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load())

	q, err := limiter.Status(ctx, models.ProviderCredit)
	require.NoError(t, err)
	assert.Equal(t, limit, q.Used)
	assert.Equal(t, 0, q.Remaining)
	assert.False(t, q.ResetAt.IsZero())
}
