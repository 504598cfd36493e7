package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/store"
)

func ptr[T any](v T) *T { return &v }

func TestProductLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := adminCtx()

	created, err := env.svc.CreateProduct(ctx, domain.ProductCreateRequest{SKU: " kop-01 ", Name: "Kopi Susu", Category: "Minuman", Price: 18000, Cost: 10000, Stock: 20})
	require.NoError(t, err)
	assert.Equal(t, "KOP-01", created.SKU)
	assert.Equal(t, fixedNow, created.CreatedAt)

	_, err = env.svc.CreateProduct(ctx, domain.ProductCreateRequest{SKU: "KOP-01", Name: "Kopi Hitam", Price: 15000})
	assert.ErrorIs(t, err, store.ErrConflict)

	updated, err := env.svc.UpdateProduct(ctx, created.ID, domain.ProductUpdateRequest{Price: ptr(int64(20000)), Name: ptr("Kopi Susu Gula Aren")})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), updated.Price)
	assert.Equal(t, "Kopi Susu Gula Aren", updated.Name)
	assert.Equal(t, int64(10000), updated.Cost)

	_, err = env.svc.UpdateProduct(ctx, created.ID, domain.ProductUpdateRequest{Price: ptr(int64(0))})
	assert.ErrorIs(t, err, store.ErrValidation)

	got, err := env.svc.GetProduct(cashierCtx(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kopi Susu Gula Aren", got.Name)

	require.NoError(t, env.svc.DeleteProduct(ctx, created.ID))
	_, err = env.svc.GetProduct(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProductWritesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{Name: "Teh", Price: 5000})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.svc.DeleteAllProducts(cashierCtx())
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestProductValidation(t *testing.T) {
	env := newTestEnv(t)
	for name, req := range map[string]domain.ProductCreateRequest{
		"no name":        {Price: 1000},
		"zero price":     {Name: "Teh", Price: 0},
		"negative cost":  {Name: "Teh", Price: 1000, Cost: -1},
		"negative stock": {Name: "Teh", Price: 1000, Stock: -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.CreateProduct(adminCtx(), req)
			assert.ErrorIs(t, err, store.ErrValidation)
		})
	}
}

func TestDeleteAllProductsLeavesSalesAlone(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{Name: "Teh", Price: 5000})
	require.NoError(t, err)
	_, err = env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)

	n, err := env.svc.DeleteAllProducts(adminCtx())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sales, err := env.svc.ListSales(adminCtx(), "", "", 0)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestCustomerLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.svc.CreateCustomer(cashierCtx(), domain.CustomerRequest{Name: ptr(" Budi "), Email: ptr("Budi@Example.com"), Phone: ptr("0812")})
	require.NoError(t, err)
	assert.Equal(t, "Budi", created.Name)
	assert.Equal(t, "budi@example.com", created.Email)
	assert.Equal(t, fixedNow, created.JoinedDate)

	_, err = env.svc.CreateCustomer(cashierCtx(), domain.CustomerRequest{Name: ptr("Ani"), Email: ptr("not-an-email")})
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = env.svc.CreateCustomer(cashierCtx(), domain.CustomerRequest{})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = env.svc.UpdateCustomer(cashierCtx(), created.ID, domain.CustomerRequest{Phone: ptr("0813")})
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := env.svc.UpdateCustomer(adminCtx(), created.ID, domain.CustomerRequest{Phone: ptr("0813"), TotalSpent: ptr(int64(150000))})
	require.NoError(t, err)
	assert.Equal(t, "0813", updated.Phone)
	assert.Equal(t, "budi@example.com", updated.Email)
	assert.Equal(t, int64(150000), updated.TotalSpent)

	customers, err := env.svc.ListCustomers(cashierCtx())
	require.NoError(t, err)
	assert.Len(t, customers, 1)

	require.NoError(t, env.svc.DeleteCustomer(adminCtx(), created.ID))
	_, err = env.svc.GetCustomer(adminCtx(), created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := env.svc.DeleteAllCustomers(adminCtx())
	require.NoError(t, err)
	assert.Zero(t, n)
}
