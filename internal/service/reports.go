package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"kasiran/backend/internal/cache"
	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/pricing"
)

const (
	recentSalesCount = 5
	trendDays        = 7
)

// Dashboard summarises all sales and cash flow. Snapshots are cached until
// the next write or the cache TTL, whichever comes first.
func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Dashboard{}, err
	}

	key := cache.DashboardKey(s.defaultStoreID)
	if cached, ok, err := s.dashboardCache.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: dashboard cache read failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{})
	if err != nil {
		return domain.Dashboard{}, err
	}
	entries, err := s.repo.ListCashFlow(ctx, domain.CashFlowFilter{})
	if err != nil {
		return domain.Dashboard{}, err
	}

	dashboard := buildDashboard(sales, entries, s.now())
	if err := s.dashboardCache.Set(ctx, key, &dashboard, s.dashboardTTL); err != nil {
		log.Printf("[service] WARN: dashboard cache write failed: %v", err)
	}
	return dashboard, nil
}

// buildDashboard expects sales newest first.
func buildDashboard(sales []domain.SaleRecord, entries []domain.CashFlowEntry, now time.Time) domain.Dashboard {
	dashboard := domain.Dashboard{
		SalesCount:  len(sales),
		RecentSales: make([]domain.RecentSale, 0, recentSalesCount),
		Last7Days:   make([]domain.DailyRevenue, 0, trendDays),
		GeneratedAt: now,
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	firstDay := today.AddDate(0, 0, -(trendDays - 1))
	perDay := make(map[string]int64, trendDays)

	for i, sale := range sales {
		dashboard.TotalRevenue += sale.Total
		dashboard.ItemsSold += sale.ItemCount()
		if i < recentSalesCount {
			dashboard.RecentSales = append(dashboard.RecentSales, domain.RecentSale{
				ID:            sale.ID,
				TransactionID: sale.TransactionID,
				Date:          sale.Date,
				CashierName:   sale.CashierName,
				Total:         sale.Total,
			})
		}
		if !sale.Date.Before(firstDay) {
			perDay[sale.Date.UTC().Format("2006-01-02")] += sale.Total
		}
	}
	for _, entry := range entries {
		switch entry.Type {
		case domain.CashFlowIncome:
			dashboard.TotalRevenue += entry.Amount
		case domain.CashFlowExpense:
			dashboard.TotalExpense += entry.Amount
		}
	}
	dashboard.NetCashFlow = dashboard.TotalRevenue - dashboard.TotalExpense

	for d := 0; d < trendDays; d++ {
		day := firstDay.AddDate(0, 0, d).Format("2006-01-02")
		dashboard.Last7Days = append(dashboard.Last7Days, domain.DailyRevenue{Date: day, Revenue: perDay[day]})
	}
	return dashboard
}

// SalesReport lists sales between two inclusive days, oldest first.
func (s *Service) SalesReport(ctx context.Context, from string, to string) (domain.SalesReport, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.SalesReport{}, err
	}
	filter, err := dayRangeFilter(from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}

	sales, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.SalesReport{}, err
	}
	slices.Reverse(sales)

	report := domain.SalesReport{
		From:      strings.TrimSpace(from),
		To:        strings.TrimSpace(to),
		StoreName: s.storeName,
		Rows:      make([]domain.SalesReportRow, 0, len(sales)),
	}
	for _, sale := range sales {
		report.Rows = append(report.Rows, domain.SalesReportRow{
			ID:             sale.ID,
			TransactionID:  sale.TransactionID,
			Date:           sale.Date,
			ItemCount:      sale.ItemCount(),
			Subtotal:       sale.Subtotal,
			DiscountAmount: sale.DiscountAmount,
			Total:          sale.Total,
			TotalCost:      sale.TotalCost,
			CashierName:    sale.CashierName,
			PaymentMethod:  sale.PaymentMethod,
		})
		report.Subtotal += sale.Subtotal
		report.DiscountAmount += sale.DiscountAmount
		report.Total += sale.Total
		report.TotalCost += sale.TotalCost
	}
	report.Transactions = len(report.Rows)
	report.GrossMargin = report.Total - report.TotalCost
	return report, nil
}

// BuildReceipt renders a sale as printable text and as ESC/POS bytes for a
// thermal printer.
func (s *Service) BuildReceipt(ctx context.Context, saleID string) (domain.Receipt, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Receipt{}, err
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Receipt{}, invalid("sale id is required")
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Receipt{}, err
	}
	totals := pricing.Compute(sale.Items, sale.DiscountPercent)

	lines := []string{
		s.storeName,
		"========================",
		"No   : " + sale.TransactionID,
		"Tgl  : " + sale.Date.Format("2006-01-02 15:04"),
		"Kasir: " + sale.CashierName,
		"------------------------",
	}
	for _, item := range sale.Items {
		lines = append(lines, fmt.Sprintf("%d x %s", item.Quantity, item.Name))
		lines = append(lines, fmt.Sprintf("  @%d = %d", item.Price, item.Price*int64(item.Quantity)))
	}
	lines = append(lines,
		"------------------------",
		fmt.Sprintf("Subtotal : %d", totals.Subtotal),
		fmt.Sprintf("Diskon %s%% : %d", sale.DiscountPercent.String(), totals.DiscountAmount),
		fmt.Sprintf("Total    : %d", totals.Total),
		"Bayar    : "+sale.PaymentMethod,
		"========================",
		"Terima kasih",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.Receipt{
		SaleID:        sale.ID,
		TransactionID: sale.TransactionID,
		EscposBase64:  base64.StdEncoding.EncodeToString(escpos),
		PreviewText:   strings.Join(lines, "\n"),
		FileName:      fmt.Sprintf("receipt-%s.bin", sale.TransactionID),
	}, nil
}
