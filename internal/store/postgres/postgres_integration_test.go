package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("KASIRAN_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KASIRAN_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))

	reset := func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_flow_entries`)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales`)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sequence_counters`)
	}
	reset()
	t.Cleanup(reset)
	return s
}

func TestSequenceCommitsOnlyWithUnit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("insert failed")

	err := s.RunInTx(ctx, func(tx store.Tx) error {
		n, err := tx.NextSequence(ctx, domain.SalesSequence)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return boom
	})
	require.ErrorIs(t, err, boom)

	value, err := s.SequenceValue(ctx, domain.SalesSequence)
	require.NoError(t, err)
	assert.Equal(t, int64(0), value)
}

func TestConcurrentUnitsDrawDistinctNumbers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	const workers = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int64]bool{}
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var drawn int64
			err := s.RunInTx(ctx, func(tx store.Tx) error {
				n, err := tx.NextSequence(ctx, domain.SalesSequence)
				drawn = n
				return err
			})
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			seen[drawn] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)

	failures := 0
	for err := range errs {
		require.ErrorIs(t, err, store.ErrConflict)
		failures++
	}
	assert.Len(t, seen, workers-failures)

	value, err := s.SequenceValue(ctx, domain.SalesSequence)
	require.NoError(t, err)
	assert.Equal(t, int64(workers-failures), value)
}

func TestSaleWithCOGSRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	sale := domain.SaleRecord{
		ID:             "sale-it-1",
		TransactionID:  "TRX-00001",
		Date:           now,
		Items:          []domain.SaleItem{{Name: "Kopi", Price: 20000, Quantity: 2, Cost: 8000}},
		Subtotal:       40000,
		DiscountAmount: 5800,
		Total:          34200,
		TotalCost:      16000,
		PaymentMethod:  domain.DefaultPaymentMethod,
		CashierID:      "kasir",
		CashierName:    "Kasir",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, s.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		return tx.InsertCashFlow(ctx, domain.CashFlowEntry{
			ID: "cf-it-1", Date: now, Type: domain.CashFlowExpense,
			Description: domain.COGSDescription(sale.TransactionID), Category: domain.COGSCategory,
			Amount: 16000, SaleID: sale.ID, CreatedAt: now, UpdatedAt: now,
		})
	}))

	got, err := s.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.Items, got.Items)
	assert.Equal(t, int64(34200), got.Total)

	err = s.DeleteCashFlowEntry(ctx, "cf-it-1")
	assert.ErrorIs(t, err, store.ErrDerivedEntry)

	require.NoError(t, s.RunInTx(ctx, func(tx store.Tx) error {
		entry, err := tx.FindCashFlowByDescription(ctx, "COGS TRX-00001")
		if err != nil {
			return err
		}
		entry.Amount = 9000
		return tx.UpdateCashFlow(ctx, *entry)
	}))
	entry, err := s.GetCashFlowEntry(ctx, "cf-it-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9000), entry.Amount)
}

func TestDuplicateTransactionIDIsConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insert := func(id string) error {
		return s.RunInTx(ctx, func(tx store.Tx) error {
			return tx.InsertSale(ctx, domain.SaleRecord{
				ID: id, TransactionID: "TRX-00042", Date: now, PaymentMethod: "Cash",
				CashierID: "kasir", CashierName: "Kasir", CreatedAt: now, UpdatedAt: now,
			})
		})
	}
	require.NoError(t, insert("sale-a"))
	assert.ErrorIs(t, insert("sale-b"), store.ErrConflict)
}

func TestNegativeSaleAmountsAreRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.RunInTx(ctx, func(tx store.Tx) error {
		return tx.InsertSale(ctx, domain.SaleRecord{
			ID: "sale-neg", TransactionID: "TRX-00099", Date: now, PaymentMethod: "Cash",
			Subtotal: -5, Total: -5, TotalCost: -5,
			CashierID: "kasir", CashierName: "Kasir", CreatedAt: now, UpdatedAt: now,
		})
	})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestFindCashFlowByDescriptionSkipsIncome(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.RunInTx(ctx, func(tx store.Tx) error {
		for _, row := range []domain.CashFlowEntry{
			{ID: "cf-x-a", Type: domain.CashFlowIncome, Description: "COGS TRX-00007", Amount: 1, CreatedAt: at.Add(-time.Hour)},
			{ID: "cf-x-c", Type: domain.CashFlowExpense, Description: "COGS TRX-00007", Amount: 3, CreatedAt: at},
			{ID: "cf-x-b", Type: domain.CashFlowExpense, Description: "COGS TRX-00007", Amount: 2, CreatedAt: at},
		} {
			row.Date, row.UpdatedAt = at, at
			if err := tx.InsertCashFlow(ctx, row); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.RunInTx(ctx, func(tx store.Tx) error {
		entry, err := tx.FindCashFlowByDescription(ctx, "COGS TRX-00007")
		if err != nil {
			return err
		}
		assert.Equal(t, "cf-x-b", entry.ID)
		return nil
	}))
}
