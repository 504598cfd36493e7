package memory

import (
	"context"
	"maps"

	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/store"
)

// RunInTx holds the write lock for the whole unit and works on copies of the
// sales, cash flow and counter maps. The copies replace the live maps only
// when fn succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := &memTx{
		sales:     maps.Clone(s.sales),
		cashFlow:  maps.Clone(s.cashFlow),
		sequences: maps.Clone(s.sequences),
	}
	if err := fn(staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.sales = staged.sales
	s.cashFlow = staged.cashFlow
	s.sequences = staged.sequences
	return nil
}

type memTx struct {
	sales     map[string]domain.SaleRecord
	cashFlow  map[string]domain.CashFlowEntry
	sequences map[string]int64
}

func (t *memTx) NextSequence(_ context.Context, name string) (int64, error) {
	next := t.sequences[name] + 1
	t.sequences[name] = next
	return next, nil
}

func (t *memTx) ResetSequence(_ context.Context, name string) error {
	t.sequences[name] = 0
	return nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.SaleRecord) error {
	if sale.ID == "" || sale.TransactionID == "" {
		return store.ErrValidation
	}
	if _, exists := t.sales[sale.ID]; exists {
		return store.ErrConflict
	}
	for _, existing := range t.sales {
		if existing.TransactionID == sale.TransactionID {
			return store.ErrConflict
		}
	}
	t.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (t *memTx) GetSaleForUpdate(_ context.Context, id string) (*domain.SaleRecord, error) {
	sale, ok := t.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (t *memTx) UpdateSale(_ context.Context, sale domain.SaleRecord) error {
	existing, ok := t.sales[sale.ID]
	if !ok {
		return store.ErrNotFound
	}
	sale.TransactionID = existing.TransactionID
	sale.CashierID = existing.CashierID
	sale.CashierName = existing.CashierName
	sale.CreatedAt = existing.CreatedAt
	t.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (t *memTx) DeleteSale(_ context.Context, id string) error {
	if _, ok := t.sales[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.sales, id)
	return nil
}

func (t *memTx) DeleteAllSales(_ context.Context) (int, error) {
	n := len(t.sales)
	t.sales = make(map[string]domain.SaleRecord)
	return n, nil
}

func (t *memTx) FindCashFlowByDescription(_ context.Context, description string) (*domain.CashFlowEntry, error) {
	var found *domain.CashFlowEntry
	for _, entry := range t.cashFlow {
		if entry.Type != domain.CashFlowExpense || entry.Description != description {
			continue
		}
		if found == nil || entry.CreatedAt.Before(found.CreatedAt) ||
			(entry.CreatedAt.Equal(found.CreatedAt) && entry.ID < found.ID) {
			e := entry
			found = &e
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (t *memTx) InsertCashFlow(_ context.Context, entry domain.CashFlowEntry) error {
	if entry.ID == "" {
		return store.ErrValidation
	}
	if _, exists := t.cashFlow[entry.ID]; exists {
		return store.ErrConflict
	}
	if entry.SaleID != "" {
		for _, existing := range t.cashFlow {
			if existing.SaleID == entry.SaleID {
				return store.ErrConflict
			}
		}
	}
	t.cashFlow[entry.ID] = entry
	return nil
}

func (t *memTx) UpdateCashFlow(_ context.Context, entry domain.CashFlowEntry) error {
	existing, ok := t.cashFlow[entry.ID]
	if !ok {
		return store.ErrNotFound
	}
	entry.CreatedAt = existing.CreatedAt
	t.cashFlow[entry.ID] = entry
	return nil
}

func (t *memTx) DeleteCashFlow(_ context.Context, id string) error {
	if _, ok := t.cashFlow[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.cashFlow, id)
	return nil
}

func (t *memTx) DeleteAllCashFlow(_ context.Context) (int, error) {
	n := len(t.cashFlow)
	t.cashFlow = make(map[string]domain.CashFlowEntry)
	return n, nil
}
