package cache

import (
	"context"
	"time"

	"kasiran/backend/internal/domain"
)

// DashboardKeyPrefix namespaces dashboard snapshots per store.
const DashboardKeyPrefix = "kasiran:dashboard:"

func DashboardKey(storeID string) string {
	return DashboardKeyPrefix + storeID
}

// DashboardCache holds computed dashboard snapshots. A miss is reported with
// ok=false and a nil error.
type DashboardCache interface {
	Get(ctx context.Context, key string) (*domain.Dashboard, bool, error)
	Set(ctx context.Context, key string, value *domain.Dashboard, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ string) (*domain.Dashboard, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ string, _ *domain.Dashboard, _ time.Duration) error {
	return nil
}

func (NoopDashboardCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
