package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasiran/backend/internal/domain"
)

func TestNoopDashboardCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := NoopDashboardCache{}

	require.NoError(t, c.Set(ctx, DashboardKey("main"), &domain.Dashboard{SalesCount: 3}, time.Minute))
	got, ok, err := c.Get(ctx, DashboardKey("main"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx, DashboardKey("main")))
}

func TestDashboardKeyIsPerStore(t *testing.T) {
	assert.Equal(t, "kasiran:dashboard:main-store", DashboardKey("main-store"))
	assert.NotEqual(t, DashboardKey("a"), DashboardKey("b"))
}

func TestRedisDashboardCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("KASIRAN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set KASIRAN_TEST_REDIS_ADDR to run redis integration test")
	}
	ctx := context.Background()
	c := NewRedisDashboardCache(addr, "", 0)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	key := DashboardKey("it-" + time.Now().Format("150405.000000"))
	t.Cleanup(func() { _ = c.Invalidate(ctx, key) })

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, key, &domain.Dashboard{TotalRevenue: 52155, SalesCount: 1}, time.Minute))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(52155), got.TotalRevenue)

	require.NoError(t, c.Invalidate(ctx, key))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
