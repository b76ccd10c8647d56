package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shuvam-mohapatra/URL-Shortner/internal/testutils"
)

func TestCheckRateLimit_FixedWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	rdb := testutils.NewRedis(t)
	repo := New(nil, rdb, zap.NewNop())
	ctx := context.Background()
	user := uuid.New()

	for i := 0; i < 5; i++ {
		result, err := repo.CheckRateLimit(ctx, user, 5, time.Hour)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5-i-1, result.Remaining)
	}

	result, err := repo.CheckRateLimit(ctx, user, 5, time.Hour)
	require.NoError(t, err)
	assert.False(t, result.Allowed, "6th request should be denied")
	assert.Equal(t, 0, result.Remaining)
	assert.Positive(t, result.RetryAfter)

	// 其他用户不受影响
	other, err := repo.CheckRateLimit(ctx, uuid.New(), 5, time.Hour)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	// 计数器 key 带过期时间
	keys, err := rdb.Keys(ctx, rateLimitPrefix+":"+user.String()+":*").Result()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	ttl, err := rdb.TTL(ctx, keys[0]).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
	assert.LessOrEqual(t, ttl, time.Hour+time.Second)
}
