package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasiran/backend/internal/assistant"
	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/pricing"
	"kasiran/backend/internal/store"
	"kasiran/backend/internal/store/memory"
)

var fixedNow = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Name: "Admin", Role: domain.RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "kasir", Name: "Kasir", Role: domain.RoleCashier})
}

type testEnv struct {
	svc   *Service
	repo  *memory.Store
	cache *recordingCache
	ai    *fakeAssistant
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := memory.New()
	return newTestEnvWithRepo(t, repo, repo)
}

func newTestEnvWithRepo(t *testing.T, mem *memory.Store, repo store.Repository) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:  mem,
		cache: newRecordingCache(),
		ai:    &fakeAssistant{},
	}
	env.svc = New(repo, env.cache, env.ai, Options{
		StoreID:         "main-store",
		StoreName:       "Toko Uji",
		DiscountPercent: pricing.DefaultDiscountPercent,
		DashboardTTL:    time.Minute,
		Clock:           func() time.Time { return fixedNow },
	})
	return env
}

// recordingCache is an in-process DashboardCache that counts invalidations.
type recordingCache struct {
	mu          sync.Mutex
	values      map[string]domain.Dashboard
	invalidated int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{values: map[string]domain.Dashboard{}}
}

func (c *recordingCache) Get(_ context.Context, key string) (*domain.Dashboard, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *recordingCache) Set(_ context.Context, key string, value *domain.Dashboard, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = *value
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	c.invalidated++
	return nil
}

type fakeAssistant struct {
	extracted   *domain.ExtractedSale
	suggestions []string
	summary     string
	err         error

	gotExisting []string
	gotQuery    string
	gotItems    []domain.SaleItem
}

func (f *fakeAssistant) Ready() bool { return true }

func (f *fakeAssistant) ExtractSale(_ context.Context, pdfDataURI string) (*domain.ExtractedSale, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := assistant.ValidatePDFDataURI(pdfDataURI); err != nil {
		return nil, err
	}
	return f.extracted, nil
}

func (f *fakeAssistant) SuggestExpenses(_ context.Context, existing []string, query string) ([]string, error) {
	f.gotExisting = existing
	f.gotQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return assistant.FilterSuggestions(existing, f.suggestions, 5), nil
}

func (f *fakeAssistant) SummarizePurchase(_ context.Context, items []domain.SaleItem) (string, error) {
	f.gotItems = items
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func sampleCart() []domain.SaleItem {
	return []domain.SaleItem{
		{ProductID: "prd-nasi", Name: "Nasi Goreng", Price: 25000, Quantity: 1, Cost: 15000},
		{ProductID: "prd-kopi", Name: "Kopi Susu", Price: 18000, Quantity: 2, Cost: 10000},
	}
}

func cogsEntries(t *testing.T, repo store.Repository) []domain.CashFlowEntry {
	t.Helper()
	entries, err := repo.ListCashFlow(context.Background(), domain.CashFlowFilter{})
	require.NoError(t, err)
	var out []domain.CashFlowEntry
	for _, e := range entries {
		if e.Category == domain.COGSCategory {
			out = append(out, e)
		}
	}
	return out
}

func TestNewFallsBackToDefaultDiscount(t *testing.T) {
	svc := New(memory.New(), nil, nil, Options{DiscountPercent: decimal.NewFromInt(150)})

	settings := svc.Settings(context.Background())
	assert.True(t, settings.DiscountPercent.Equal(pricing.DefaultDiscountPercent))
	assert.Equal(t, "Kasiran App", settings.StoreName)
	assert.False(t, settings.AssistantReady)
}

func TestListAuditLogsRecordsMutations(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)

	_, err = env.svc.ListAuditLogs(cashierCtx(), "", "", 10)
	assert.ErrorIs(t, err, ErrForbidden)

	logs, err := env.svc.ListAuditLogs(adminCtx(), "", fixedNow.Format("2006-01-02"), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "sale_create", logs[0].Action)
	assert.Equal(t, "kasir", logs[0].ActorUsername)

	_, err = env.svc.ListAuditLogs(adminCtx(), "", "10-05-2024", 10)
	assert.ErrorIs(t, err, store.ErrValidation)
}
