package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/store"
	"kasiran/backend/internal/store/memory"
)

// faultyRepo wraps a repository so that chosen writes inside an atomic unit fail.
type faultyRepo struct {
	store.Repository
	failInsertSale     error
	failInsertCashFlow error
	failUpdateCashFlow error
	failDeleteCashFlow error
	failResetSequence  error
}

func (r *faultyRepo) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return r.Repository.RunInTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx, r: r})
	})
}

type faultyTx struct {
	store.Tx
	r *faultyRepo
}

func (t *faultyTx) InsertSale(ctx context.Context, sale domain.SaleRecord) error {
	if t.r.failInsertSale != nil {
		return t.r.failInsertSale
	}
	return t.Tx.InsertSale(ctx, sale)
}

func (t *faultyTx) InsertCashFlow(ctx context.Context, entry domain.CashFlowEntry) error {
	if t.r.failInsertCashFlow != nil {
		return t.r.failInsertCashFlow
	}
	return t.Tx.InsertCashFlow(ctx, entry)
}

func (t *faultyTx) UpdateCashFlow(ctx context.Context, entry domain.CashFlowEntry) error {
	if t.r.failUpdateCashFlow != nil {
		return t.r.failUpdateCashFlow
	}
	return t.Tx.UpdateCashFlow(ctx, entry)
}

func (t *faultyTx) DeleteCashFlow(ctx context.Context, id string) error {
	if t.r.failDeleteCashFlow != nil {
		return t.r.failDeleteCashFlow
	}
	return t.Tx.DeleteCashFlow(ctx, id)
}

func (t *faultyTx) ResetSequence(ctx context.Context, name string) error {
	if t.r.failResetSequence != nil {
		return t.r.failResetSequence
	}
	return t.Tx.ResetSequence(ctx, name)
}

func newFaultyEnv(t *testing.T) (*testEnv, *faultyRepo) {
	t.Helper()
	mem := memory.New()
	faulty := &faultyRepo{Repository: mem}
	return newTestEnvWithRepo(t, mem, faulty), faulty
}

func TestCheckoutComputesTotalsAndWritesCOGS(t *testing.T) {
	env := newTestEnv(t)

	sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)

	assert.Equal(t, "TRX-00001", sale.TransactionID)
	assert.Equal(t, int64(61000), sale.Subtotal)
	assert.Equal(t, int64(8845), sale.DiscountAmount)
	assert.Equal(t, int64(52155), sale.Total)
	assert.Equal(t, int64(35000), sale.TotalCost)
	assert.Equal(t, "kasir", sale.CashierID)
	assert.Equal(t, "Kasir", sale.CashierName)
	assert.Equal(t, domain.DefaultPaymentMethod, sale.PaymentMethod)
	assert.Equal(t, fixedNow, sale.Date)

	stored, err := env.repo.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.Total, stored.Total)

	cogs := cogsEntries(t, env.repo)
	require.Len(t, cogs, 1)
	assert.Equal(t, "COGS TRX-00001", cogs[0].Description)
	assert.Equal(t, domain.CashFlowExpense, cogs[0].Type)
	assert.Equal(t, int64(35000), cogs[0].Amount)
	assert.Equal(t, sale.Date, cogs[0].Date)
	assert.Equal(t, sale.ID, cogs[0].SaleID)

	value, err := env.repo.SequenceValue(context.Background(), domain.SalesSequence)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)
	assert.Equal(t, 1, env.cache.invalidated)
}

func TestCheckoutWithoutCostWritesNoCOGS(t *testing.T) {
	env := newTestEnv(t)
	date := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items:         []domain.SaleItem{{Name: "Air Mineral", Price: 5000, Quantity: 3}},
		Date:          &date,
		PaymentMethod: " QRIS ",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), sale.TotalCost)
	assert.Equal(t, date, sale.Date)
	assert.Equal(t, "QRIS", sale.PaymentMethod)
	assert.Empty(t, cogsEntries(t, env.repo))
}

func TestCheckoutNumbersSequentially(t *testing.T) {
	env := newTestEnv(t)
	for _, want := range []string{"TRX-00001", "TRX-00002", "TRX-00003"} {
		sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
		require.NoError(t, err)
		assert.Equal(t, want, sale.TransactionID)
	}
}

func TestCheckoutValidation(t *testing.T) {
	cases := map[string][]domain.SaleItem{
		"empty cart":     nil,
		"zero quantity":  {{Name: "Teh", Price: 5000, Quantity: 0}},
		"negative price": {{Name: "Teh", Price: -1, Quantity: 1}},
		"negative cost":  {{Name: "Teh", Price: 5000, Quantity: 1, Cost: -5}},
		"missing name":   {{Name: "  ", Price: 5000, Quantity: 1}},
		"huge quantity":  {{Name: "Teh", Price: 5000, Quantity: maxItemQuantity + 1}},
		"huge price":     {{Name: "Teh", Price: maxUnitAmount + 1, Quantity: 1}},
		"huge cost":      {{Name: "Teh", Price: 5000, Quantity: 1, Cost: maxUnitAmount + 1}},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: items})
			require.ErrorIs(t, err, store.ErrValidation)

			value, err := env.repo.SequenceValue(context.Background(), domain.SalesSequence)
			require.NoError(t, err)
			assert.Equal(t, int64(0), value)
		})
	}
}

func TestCheckoutRejectsCartsThatWouldWrap(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: []domain.SaleItem{
		{Name: "Emas", Price: math.MaxInt64 / 2, Quantity: 3, Cost: math.MaxInt64 / 2},
	}})
	require.ErrorIs(t, err, store.ErrValidation)

	// Each line is within bounds but the cart as a whole is not.
	line := domain.SaleItem{Name: "Emas", Price: maxUnitAmount, Quantity: maxItemQuantity, Cost: maxUnitAmount}
	items := make([]domain.SaleItem, 10)
	for i := range items {
		items[i] = line
	}
	_, err = env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: items})
	require.ErrorIs(t, err, store.ErrValidation)
	assertNothingPersisted(t, env.repo)

	sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: []domain.SaleItem{line}})
	require.NoError(t, err)
	assert.Equal(t, int64(maxUnitAmount*maxItemQuantity), sale.Subtotal)
	assert.Equal(t, sale.Subtotal, sale.TotalCost)
	assert.Positive(t, sale.Total)
	require.Len(t, cogsEntries(t, env.repo), 1)

	_, err = env.svc.EditSale(adminCtx(), sale.ID, domain.SaleEditRequest{Items: items})
	require.ErrorIs(t, err, store.ErrValidation)
	stored, err := env.repo.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.Subtotal, stored.Subtotal)
}

func TestCheckoutRequiresActor(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Checkout(context.Background(), domain.CheckoutRequest{Items: sampleCart()})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestConcurrentCheckoutsGetDistinctNumbers(t *testing.T) {
	env := newTestEnv(t)
	const workers = 25

	var wg sync.WaitGroup
	ids := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
			if err != nil {
				t.Errorf("checkout: %v", err)
				return
			}
			ids <- sale.TransactionID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
	require.Len(t, seen, workers)
	for n := int64(1); n <= workers; n++ {
		assert.True(t, seen[domain.FormatTransactionID(n)], "missing %d", n)
	}
	assert.Len(t, cogsEntries(t, env.repo), workers)
}

func TestTwoConcurrentCheckoutsOnEmptyCounter(t *testing.T) {
	env := newTestEnv(t)

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
			if err == nil {
				results[i] = sale.TransactionID
			}
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"TRX-00001", "TRX-00002"}, results)
}

func TestCheckoutFailureLeavesCounterUnchanged(t *testing.T) {
	boom := errors.New("disk full")

	t.Run("sale insert fails", func(t *testing.T) {
		env, faulty := newFaultyEnv(t)
		faulty.failInsertSale = boom

		_, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
		require.ErrorIs(t, err, boom)
		assertNothingPersisted(t, env.repo)
		assert.Zero(t, env.cache.invalidated)
	})

	t.Run("cogs insert fails", func(t *testing.T) {
		env, faulty := newFaultyEnv(t)
		faulty.failInsertCashFlow = boom

		_, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
		require.ErrorIs(t, err, boom)
		assertNothingPersisted(t, env.repo)
	})

	t.Run("next checkout reuses the number", func(t *testing.T) {
		env, faulty := newFaultyEnv(t)
		faulty.failInsertSale = boom
		_, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
		require.Error(t, err)

		faulty.failInsertSale = nil
		sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
		require.NoError(t, err)
		assert.Equal(t, "TRX-00001", sale.TransactionID)
	})
}

func assertNothingPersisted(t *testing.T, repo store.Repository) {
	t.Helper()
	ctx := context.Background()
	value, err := repo.SequenceValue(ctx, domain.SalesSequence)
	require.NoError(t, err)
	assert.Equal(t, int64(0), value)

	sales, err := repo.ListSales(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)

	entries, err := repo.ListCashFlow(ctx, domain.CashFlowFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEditSaleUpdatesCOGS(t *testing.T) {
	env := newTestEnv(t)
	sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)

	edited, err := env.svc.EditSale(adminCtx(), sale.ID, domain.SaleEditRequest{Items: sampleCart()[:1]})
	require.NoError(t, err)

	assert.Equal(t, int64(25000), edited.Subtotal)
	assert.Equal(t, int64(3625), edited.DiscountAmount)
	assert.Equal(t, int64(21375), edited.Total)
	assert.Equal(t, int64(15000), edited.TotalCost)
	assert.Equal(t, sale.TransactionID, edited.TransactionID)
	assert.Equal(t, sale.Date, edited.Date)

	cogs := cogsEntries(t, env.repo)
	require.Len(t, cogs, 1)
	assert.Equal(t, int64(15000), cogs[0].Amount)
	assert.Equal(t, "COGS TRX-00001", cogs[0].Description)
}

func TestEditSaleToZeroCostDeletesCOGS(t *testing.T) {
	env := newTestEnv(t)
	sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)

	edited, err := env.svc.EditSale(adminCtx(), sale.ID, domain.SaleEditRequest{
		Items: []domain.SaleItem{{Name: "Jasa Antar", Price: 10000, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), edited.TotalCost)
	assert.Empty(t, cogsEntries(t, env.repo))
}

func TestEditSaleCreatesMissingCOGS(t *testing.T) {
	env := newTestEnv(t)
	sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items: []domain.SaleItem{{Name: "Jasa Antar", Price: 10000, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Empty(t, cogsEntries(t, env.repo))

	newDate := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	_, err = env.svc.EditSale(adminCtx(), sale.ID, domain.SaleEditRequest{Items: sampleCart(), Date: &newDate})
	require.NoError(t, err)

	cogs := cogsEntries(t, env.repo)
	require.Len(t, cogs, 1)
	assert.Equal(t, int64(35000), cogs[0].Amount)
	assert.Equal(t, newDate, cogs[0].Date)
}

func TestEditSaleZeroCostStaysWithoutCOGS(t *testing.T) {
	env := newTestEnv(t)
	sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		Items: []domain.SaleItem{{Name: "Jasa Antar", Price: 10000, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = env.svc.EditSale(adminCtx(), sale.ID, domain.SaleEditRequest{
		Items: []domain.SaleItem{{Name: "Jasa Antar", Price: 12000, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Empty(t, cogsEntries(t, env.repo))
}

func TestEditSaleKeepsIdentifiers(t *testing.T) {
	env := newTestEnv(t)
	sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)

	method := "Transfer"
	edited, err := env.svc.EditSale(adminCtx(), sale.ID, domain.SaleEditRequest{Items: sampleCart(), PaymentMethod: &method})
	require.NoError(t, err)

	assert.Equal(t, sale.TransactionID, edited.TransactionID)
	assert.Equal(t, "kasir", edited.CashierID)
	assert.Equal(t, "Kasir", edited.CashierName)
	assert.Equal(t, "Transfer", edited.PaymentMethod)

	value, err := env.repo.SequenceValue(context.Background(), domain.SalesSequence)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)
}

func TestEditSaleErrors(t *testing.T) {
	env := newTestEnv(t)
	sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)

	_, err = env.svc.EditSale(adminCtx(), "missing", domain.SaleEditRequest{Items: sampleCart()})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = env.svc.EditSale(adminCtx(), sale.ID, domain.SaleEditRequest{})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = env.svc.EditSale(cashierCtx(), sale.ID, domain.SaleEditRequest{Items: sampleCart()})
	assert.ErrorIs(t, err, ErrForbidden)

	empty := " "
	_, err = env.svc.EditSale(adminCtx(), sale.ID, domain.SaleEditRequest{Items: sampleCart(), PaymentMethod: &empty})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestEditSaleFailureRollsBackSale(t *testing.T) {
	env, faulty := newFaultyEnv(t)
	sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)

	faulty.failUpdateCashFlow = errors.New("write timeout")
	_, err = env.svc.EditSale(adminCtx(), sale.ID, domain.SaleEditRequest{Items: sampleCart()[:1]})
	require.Error(t, err)

	stored, err := env.repo.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(52155), stored.Total)
	assert.Len(t, stored.Items, 2)

	cogs := cogsEntries(t, env.repo)
	require.Len(t, cogs, 1)
	assert.Equal(t, int64(35000), cogs[0].Amount)
}

func TestDeleteSaleRemovesCOGSAndKeepsCounter(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)
	_, err = env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteSale(adminCtx(), first.ID))

	_, err = env.repo.GetSale(context.Background(), first.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	cogs := cogsEntries(t, env.repo)
	require.Len(t, cogs, 1)
	assert.Equal(t, "COGS TRX-00002", cogs[0].Description)

	next, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)
	assert.Equal(t, "TRX-00003", next.TransactionID)

	assert.ErrorIs(t, env.svc.DeleteSale(adminCtx(), first.ID), store.ErrNotFound)
	assert.ErrorIs(t, env.svc.DeleteSale(cashierCtx(), next.ID), ErrForbidden)
}

func TestDeleteSaleFailureKeepsBoth(t *testing.T) {
	env, faulty := newFaultyEnv(t)
	sale, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)

	faulty.failDeleteCashFlow = errors.New("lock timeout")
	require.Error(t, env.svc.DeleteSale(adminCtx(), sale.ID))

	_, err = env.repo.GetSale(context.Background(), sale.ID)
	assert.NoError(t, err)
	assert.Len(t, cogsEntries(t, env.repo), 1)
}

func TestDeleteAllSalesAndCashFlowResetsCounter(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		_, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{
			Items: []domain.SaleItem{{Name: "Teh", Price: 5000, Quantity: 1}},
		})
		require.NoError(t, err)
	}
	for _, desc := range []string{"Listrik", "Sewa Toko"} {
		_, err := env.svc.CreateCashFlowEntry(adminCtx(), domain.CashFlowRequest{Type: domain.CashFlowExpense, Description: desc, Amount: 100000})
		require.NoError(t, err)
	}

	result, err := env.svc.DeleteAllSalesAndCashFlow(adminCtx())
	require.NoError(t, err)
	assert.Equal(t, domain.DeleteAllResult{SalesDeleted: 3, CashFlowDeleted: 2}, result)

	value, err := env.repo.SequenceValue(context.Background(), domain.SalesSequence)
	require.NoError(t, err)
	assert.Equal(t, int64(0), value)
	assertNothingPersisted(t, env.repo)

	next, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)
	assert.Equal(t, "TRX-00001", next.TransactionID)
}

func TestDeleteAllSalesAndCashFlowIsAtomic(t *testing.T) {
	env, faulty := newFaultyEnv(t)
	_, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart()})
	require.NoError(t, err)

	faulty.failResetSequence = errors.New("connection reset")
	_, err = env.svc.DeleteAllSalesAndCashFlow(adminCtx())
	require.Error(t, err)

	sales, err := env.repo.ListSales(context.Background(), domain.SaleFilter{})
	require.NoError(t, err)
	assert.Len(t, sales, 1)
	assert.Len(t, cogsEntries(t, env.repo), 1)

	_, err = env.svc.DeleteAllSalesAndCashFlow(cashierCtx())
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListSalesFiltersByDay(t *testing.T) {
	env := newTestEnv(t)
	for _, day := range []int{1, 2, 3} {
		date := time.Date(2024, 5, day, 15, 0, 0, 0, time.UTC)
		_, err := env.svc.Checkout(cashierCtx(), domain.CheckoutRequest{Items: sampleCart(), Date: &date})
		require.NoError(t, err)
	}

	sales, err := env.svc.ListSales(adminCtx(), "2024-05-02", "2024-05-03", 0)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "TRX-00003", sales[0].TransactionID)

	_, err = env.svc.ListSales(adminCtx(), "2024-05-04", "2024-05-01", 0)
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = env.svc.ListSales(cashierCtx(), "", "", 0)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := env.svc.GetSale(adminCtx(), sales[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "TRX-00002", got.TransactionID)
}
