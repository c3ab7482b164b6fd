package payments

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessmod/lead-marketplace/pkg/logging"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return mr, client, func() {
		client.Close()
		mr.Close()
	}
}

func TestVelocityChecker_CheckPurchaseVelocity(t *testing.T) {
	_, redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	config := DefaultVelocityConfig()
	config.MaxPurchasesPerContractor = 2
	checker := NewVelocityChecker(redisClient, config, logging.Discard())
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		res, err := checker.CheckPurchaseVelocity(ctx, "contractor_1")
		require.NoError(t, err)
		assert.Equal(t, want, res.Allowed, "attempt %d", i+1)
		assert.Equal(t, i+1, res.CurrentCount)
	}

	other, err := checker.CheckPurchaseVelocity(ctx, "contractor_2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestVelocityChecker_WindowExpires(t *testing.T) {
	mr, redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	config := DefaultVelocityConfig()
	config.MaxPurchasesPerContractor = 1
	config.PurchaseWindow = time.Minute
	checker := NewVelocityChecker(redisClient, config, logging.Discard())
	ctx := context.Background()

	allowed, err := checker.Allow(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, _ = checker.Allow(ctx, "c1")
	assert.False(t, allowed)

	mr.FastForward(2 * time.Minute)
	allowed, _ = checker.Allow(ctx, "c1")
	assert.True(t, allowed)
}

func TestVelocityChecker_FailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()
	mr.Close()

	checker := NewVelocityChecker(redisClient, DefaultVelocityConfig(), logging.Discard())
	res, err := checker.CheckPurchaseVelocity(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "velocity check unavailable", res.Message)
}

func TestVelocityChecker_StatsAndReset(t *testing.T) {
	_, redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	checker := NewVelocityChecker(redisClient, DefaultVelocityConfig(), logging.Discard())
	ctx := context.Background()

	stats, err := checker.GetPurchaseStats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.CurrentCount)

	_, _ = checker.CheckPurchaseVelocity(ctx, "c1")
	_, _ = checker.CheckPurchaseVelocity(ctx, "c1")
	stats, err = checker.GetPurchaseStats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CurrentCount)

	require.NoError(t, checker.ResetPurchaseVelocity(ctx, "c1"))
	stats, _ = checker.GetPurchaseStats(ctx, "c1")
	assert.Equal(t, 0, stats.CurrentCount)
}

func TestVelocityChecker_Disabled(t *testing.T) {
	checker := NewVelocityChecker(nil, VelocityConfig{Enabled: false}, logging.Discard())
	allowed, err := checker.Allow(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, allowed)
}
