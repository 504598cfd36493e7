package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/pricing"
	"kasiran/backend/internal/store"
	"kasiran/backend/internal/xid"
)

// Checkout records a sale. The transaction number, the sale and its COGS
// entry are written in one unit; if any step fails none of them persist and
// the counter keeps its prior value.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.SaleRecord, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	items, err := normalizeSaleItems(req.Items)
	if err != nil {
		return domain.SaleRecord{}, err
	}

	now := s.now()
	date := now
	if req.Date != nil && !req.Date.IsZero() {
		date = req.Date.UTC()
	}
	paymentMethod := strings.TrimSpace(req.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = domain.DefaultPaymentMethod
	}

	var sale domain.SaleRecord
	err = s.repo.RunInTx(ctx, func(tx store.Tx) error {
		n, err := tx.NextSequence(ctx, domain.SalesSequence)
		if err != nil {
			return err
		}

		sale = domain.SaleRecord{
			ID:            xid.New("sale"),
			TransactionID: domain.FormatTransactionID(n),
			Date:          date,
			Items:         items,
			PaymentMethod: paymentMethod,
			CashierID:     actor.Username,
			CashierName:   actor.DisplayName(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		totals := pricing.Apply(&sale, s.discountPercent)

		if err := tx.InsertSale(ctx, sale); err != nil {
			return fmt.Errorf("insert sale %s: %w", sale.TransactionID, err)
		}
		if totals.TotalCost > 0 {
			if err := tx.InsertCashFlow(ctx, cogsEntry(sale, now)); err != nil {
				return fmt.Errorf("insert cogs for %s: %w", sale.TransactionID, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[service] WARN: checkout failed cashier=%s: %v", actor.Username, err)
		return domain.SaleRecord{}, err
	}

	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "sale_create", "sale", sale.ID, fmt.Sprintf("trx=%s,total=%d,cost=%d", sale.TransactionID, sale.Total, sale.TotalCost))
	return sale, nil
}

// EditSale replaces the cart of an existing sale, recomputes its money fields
// and brings its COGS entry in line with the new total cost. The transaction
// id and cashier never change.
func (s *Service) EditSale(ctx context.Context, saleID string, req domain.SaleEditRequest) (domain.SaleRecord, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.SaleRecord{}, err
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.SaleRecord{}, invalid("sale id is required")
	}
	items, err := normalizeSaleItems(req.Items)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	var paymentMethod string
	if req.PaymentMethod != nil {
		paymentMethod = strings.TrimSpace(*req.PaymentMethod)
		if paymentMethod == "" {
			return domain.SaleRecord{}, invalid("payment method cannot be empty")
		}
	}

	now := s.now()
	var sale domain.SaleRecord
	err = s.repo.RunInTx(ctx, func(tx store.Tx) error {
		existing, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}

		updated := *existing
		updated.Items = items
		if req.Date != nil && !req.Date.IsZero() {
			updated.Date = req.Date.UTC()
		}
		if paymentMethod != "" {
			updated.PaymentMethod = paymentMethod
		}
		updated.UpdatedAt = now
		pricing.Apply(&updated, s.discountPercent)

		if err := tx.UpdateSale(ctx, updated); err != nil {
			return fmt.Errorf("update sale %s: %w", existing.TransactionID, err)
		}
		if err := reconcileCOGS(ctx, tx, updated, now); err != nil {
			return fmt.Errorf("reconcile cogs for %s: %w", existing.TransactionID, err)
		}
		sale = updated
		return nil
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[service] WARN: edit sale id=%s failed: %v", saleID, err)
		}
		return domain.SaleRecord{}, err
	}

	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "sale_edit", "sale", sale.ID, fmt.Sprintf("trx=%s,total=%d,cost=%d", sale.TransactionID, sale.Total, sale.TotalCost))
	return sale, nil
}

// reconcileCOGS leaves exactly one COGS entry for sale when its total cost is
// positive and none otherwise.
func reconcileCOGS(ctx context.Context, tx store.Tx, sale domain.SaleRecord, now time.Time) error {
	entry, err := tx.FindCashFlowByDescription(ctx, domain.COGSDescription(sale.TransactionID))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	exists := err == nil

	switch {
	case exists && sale.TotalCost > 0:
		entry.Amount = sale.TotalCost
		entry.Date = sale.Date
		entry.SaleID = sale.ID
		entry.UpdatedAt = now
		return tx.UpdateCashFlow(ctx, *entry)
	case exists:
		return tx.DeleteCashFlow(ctx, entry.ID)
	case sale.TotalCost > 0:
		return tx.InsertCashFlow(ctx, cogsEntry(sale, now))
	}
	return nil
}

func cogsEntry(sale domain.SaleRecord, now time.Time) domain.CashFlowEntry {
	return domain.CashFlowEntry{
		ID:          xid.New("cf"),
		Date:        sale.Date,
		Type:        domain.CashFlowExpense,
		Description: domain.COGSDescription(sale.TransactionID),
		Category:    domain.COGSCategory,
		Amount:      sale.TotalCost,
		SaleID:      sale.ID,
		CreatedBy:   sale.CashierID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// DeleteSale removes one sale together with its COGS entry. The counter is
// left alone so deleted numbers are never handed out again.
func (s *Service) DeleteSale(ctx context.Context, saleID string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return invalid("sale id is required")
	}

	var transactionID string
	err := s.repo.RunInTx(ctx, func(tx store.Tx) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		transactionID = sale.TransactionID

		entry, err := tx.FindCashFlowByDescription(ctx, domain.COGSDescription(sale.TransactionID))
		switch {
		case err == nil:
			if err := tx.DeleteCashFlow(ctx, entry.ID); err != nil {
				return err
			}
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		return tx.DeleteSale(ctx, sale.ID)
	})
	if err != nil {
		return err
	}

	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "sale_delete", "sale", saleID, "trx="+transactionID)
	return nil
}

// DeleteAllSalesAndCashFlow wipes every sale and cash-flow entry and resets
// the sales counter, so the next checkout is TRX-00001.
func (s *Service) DeleteAllSalesAndCashFlow(ctx context.Context) (domain.DeleteAllResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.DeleteAllResult{}, err
	}

	var result domain.DeleteAllResult
	err := s.repo.RunInTx(ctx, func(tx store.Tx) error {
		cashFlow, err := tx.DeleteAllCashFlow(ctx)
		if err != nil {
			return err
		}
		sales, err := tx.DeleteAllSales(ctx)
		if err != nil {
			return err
		}
		if err := tx.ResetSequence(ctx, domain.SalesSequence); err != nil {
			return err
		}
		result = domain.DeleteAllResult{SalesDeleted: sales, CashFlowDeleted: cashFlow}
		return nil
	})
	if err != nil {
		log.Printf("[service] WARN: delete-all failed: %v", err)
		return domain.DeleteAllResult{}, err
	}

	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "sales_delete_all", "sale", "*", fmt.Sprintf("sales=%d,cash_flow=%d", result.SalesDeleted, result.CashFlowDeleted))
	return result, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.SaleRecord, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.SaleRecord{}, err
	}
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.SaleRecord{}, err
	}
	return *sale, nil
}

// ListSales returns sales newest first. from and to are inclusive days in
// YYYY-MM-DD form; either may be empty.
func (s *Service) ListSales(ctx context.Context, from string, to string, limit int) ([]domain.SaleRecord, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	filter, err := dayRangeFilter(from, to)
	if err != nil {
		return nil, err
	}
	if limit < 0 || limit > 1000 {
		limit = 1000
	}
	filter.Limit = limit
	return s.repo.ListSales(ctx, filter)
}

func dayRangeFilter(from string, to string) (domain.SaleFilter, error) {
	var filter domain.SaleFilter
	if strings.TrimSpace(from) != "" {
		day, err := parseDay(from)
		if err != nil {
			return filter, err
		}
		filter.From = day
	}
	if strings.TrimSpace(to) != "" {
		day, err := parseDay(to)
		if err != nil {
			return filter, err
		}
		filter.To = day.Add(24 * time.Hour)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return filter, invalid("from must not be after to")
	}
	return filter, nil
}

// normalizeSaleItems validates a cart and returns a trimmed copy of it.
const (
	maxItemQuantity = 1_000_000
	maxUnitAmount   = 1_000_000_000_000
	maxSaleAmount   = 1_000_000_000_000_000_000
)

func normalizeSaleItems(items []domain.SaleItem) ([]domain.SaleItem, error) {
	if len(items) == 0 {
		return nil, invalid("cart is empty")
	}
	out := make([]domain.SaleItem, 0, len(items))
	var subtotal, totalCost int64
	for i, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
		item.ProductID = strings.TrimSpace(item.ProductID)
		switch {
		case item.Name == "":
			return nil, invalid("item %d: name is required", i+1)
		case item.Quantity < 1:
			return nil, invalid("item %d: quantity must be at least 1", i+1)
		case item.Price < 0:
			return nil, invalid("item %d: price cannot be negative", i+1)
		case item.Cost < 0:
			return nil, invalid("item %d: cost cannot be negative", i+1)
		case item.Quantity > maxItemQuantity:
			return nil, invalid("item %d: quantity cannot exceed %d", i+1, maxItemQuantity)
		case item.Price > maxUnitAmount || item.Cost > maxUnitAmount:
			return nil, invalid("item %d: price and cost cannot exceed %d", i+1, int64(maxUnitAmount))
		}
		// Line amounts fit int64 under the bounds above; the running sums must
		// stay within maxSaleAmount so no total can wrap.
		price, cost := item.Price*int64(item.Quantity), item.Cost*int64(item.Quantity)
		if price > maxSaleAmount-subtotal || cost > maxSaleAmount-totalCost {
			return nil, invalid("cart total cannot exceed %d", int64(maxSaleAmount))
		}
		subtotal += price
		totalCost += cost
		out = append(out, item)
	}
	return out, nil
}
