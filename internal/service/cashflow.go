package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/store"
	"kasiran/backend/internal/xid"
)

const expenseHistoryLimit = 50

func (s *Service) CreateCashFlowEntry(ctx context.Context, req domain.CashFlowRequest) (domain.CashFlowEntry, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CashFlowEntry{}, err
	}

	now := s.now()
	entry := domain.CashFlowEntry{
		ID:        xid.New("cf"),
		Date:      now,
		CreatedBy: actor.Username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := applyCashFlowRequest(&entry, req); err != nil {
		return domain.CashFlowEntry{}, err
	}
	if actor.Role != domain.RoleAdmin && entry.Type != domain.CashFlowExpense {
		return domain.CashFlowEntry{}, fmt.Errorf("%w: cashiers may only record expenses", ErrForbidden)
	}

	created, err := s.repo.CreateCashFlowEntry(ctx, entry)
	if err != nil {
		return domain.CashFlowEntry{}, err
	}

	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "cash_flow_create", "cash_flow", created.ID, fmt.Sprintf("type=%s,amount=%d", created.Type, created.Amount))
	return *created, nil
}

func (s *Service) UpdateCashFlowEntry(ctx context.Context, id string, req domain.CashFlowRequest) (domain.CashFlowEntry, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.CashFlowEntry{}, err
	}

	existing, err := s.repo.GetCashFlowEntry(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.CashFlowEntry{}, err
	}
	if existing.Derived() {
		return domain.CashFlowEntry{}, store.ErrDerivedEntry
	}

	updated := *existing
	if err := applyCashFlowRequest(&updated, req); err != nil {
		return domain.CashFlowEntry{}, err
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateCashFlowEntry(ctx, updated)
	if err != nil {
		return domain.CashFlowEntry{}, err
	}

	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "cash_flow_update", "cash_flow", saved.ID, fmt.Sprintf("amount:%d->%d", existing.Amount, saved.Amount))
	return *saved, nil
}

func (s *Service) DeleteCashFlowEntry(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteCashFlowEntry(ctx, id); err != nil {
		return err
	}

	s.invalidateDashboard(ctx)
	s.logAudit(ctx, "cash_flow_delete", "cash_flow", id, "")
	return nil
}

// CashFlowLedger lists cash flow for [from, to]. Admins see every stored entry
// plus one income row per sale; cashiers only see hand-entered expenses.
func (s *Service) CashFlowLedger(ctx context.Context, from string, to string, entryType string) (domain.CashFlowLedger, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CashFlowLedger{}, err
	}
	saleFilter, err := dayRangeFilter(from, to)
	if err != nil {
		return domain.CashFlowLedger{}, err
	}
	if strings.TrimSpace(entryType) != "" {
		entryType, err = normalizeCashFlowType(entryType)
		if err != nil {
			return domain.CashFlowLedger{}, err
		}
	}

	entries, err := s.repo.ListCashFlow(ctx, domain.CashFlowFilter{From: saleFilter.From, To: saleFilter.To, Type: entryType})
	if err != nil {
		return domain.CashFlowLedger{}, err
	}

	if actor.Role != domain.RoleAdmin {
		visible := make([]domain.CashFlowEntry, 0, len(entries))
		var totalExpense int64
		for _, entry := range entries {
			if entry.Type != domain.CashFlowExpense || isCOGSEntry(entry) {
				continue
			}
			visible = append(visible, entry)
			totalExpense += entry.Amount
		}
		return domain.CashFlowLedger{Entries: visible, TotalExpense: totalExpense}, nil
	}

	if entryType == "" || entryType == domain.CashFlowIncome {
		sales, err := s.repo.ListSales(ctx, saleFilter)
		if err != nil {
			return domain.CashFlowLedger{}, err
		}
		for _, sale := range sales {
			entries = append(entries, saleIncomeEntry(sale))
		}
	}
	slices.SortStableFunc(entries, func(a, b domain.CashFlowEntry) int {
		return b.Date.Compare(a.Date)
	})

	var income, expense int64
	for _, entry := range entries {
		if entry.Type == domain.CashFlowIncome {
			income += entry.Amount
		} else {
			expense += entry.Amount
		}
	}
	net := income - expense
	return domain.CashFlowLedger{
		Entries:      entries,
		TotalIncome:  &income,
		TotalExpense: expense,
		NetCashFlow:  &net,
	}, nil
}

// SuggestExpenses asks the assistant for new expense descriptions that are
// not already in the expense history.
func (s *Service) SuggestExpenses(ctx context.Context, req domain.ExpenseSuggestionRequest) ([]string, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	existing, err := s.repo.ListExpenseDescriptions(ctx, expenseHistoryLimit)
	if err != nil {
		return nil, err
	}
	return s.assistant.SuggestExpenses(ctx, existing, strings.TrimSpace(req.Query))
}

func saleIncomeEntry(sale domain.SaleRecord) domain.CashFlowEntry {
	return domain.CashFlowEntry{
		ID:          sale.ID,
		Date:        sale.Date,
		Type:        domain.CashFlowIncome,
		Description: domain.SaleIncomePrefix + sale.TransactionID,
		Category:    domain.SaleIncomeCategory,
		Amount:      sale.Total,
		SaleID:      sale.ID,
		CreatedBy:   sale.CashierID,
		CreatedAt:   sale.CreatedAt,
		UpdatedAt:   sale.UpdatedAt,
	}
}

func isCOGSEntry(entry domain.CashFlowEntry) bool {
	return entry.Derived() || entry.Category == domain.COGSCategory || strings.HasPrefix(entry.Description, domain.COGSDescriptionPrefix)
}

func applyCashFlowRequest(entry *domain.CashFlowEntry, req domain.CashFlowRequest) error {
	entryType, err := normalizeCashFlowType(req.Type)
	if err != nil {
		return err
	}
	description := strings.TrimSpace(req.Description)
	switch {
	case description == "":
		return invalid("description is required")
	case strings.HasPrefix(strings.ToUpper(description), strings.ToUpper(domain.COGSDescriptionPrefix)):
		return invalid("descriptions starting with %q are reserved for sales", domain.COGSDescriptionPrefix)
	case req.Amount < 1:
		return invalid("amount must be positive")
	}

	entry.Type = entryType
	entry.Description = description
	entry.Category = strings.TrimSpace(req.Category)
	entry.Amount = req.Amount
	if req.Date != nil && !req.Date.IsZero() {
		entry.Date = req.Date.UTC()
	}
	return nil
}

func normalizeCashFlowType(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "income", "pemasukan":
		return domain.CashFlowIncome, nil
	case "expense", "pengeluaran":
		return domain.CashFlowExpense, nil
	}
	return "", invalid("type must be Income or Expense")
}
