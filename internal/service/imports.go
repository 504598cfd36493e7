package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/store"
	"kasiran/backend/internal/xid"
)

// MatchExtractedItems turns extracted receipt lines into cart items. A line
// matches a product by SKU first and by normalized name second. Lines that
// match nothing keep their extracted name and price, carry cost 0 and are
// flagged unmatched.
func MatchExtractedItems(catalog []domain.Product, extracted []domain.ExtractedItem) ([]domain.SaleItem, int) {
	bySKU := make(map[string]domain.Product, len(catalog))
	byName := make(map[string]domain.Product, len(catalog))
	for _, p := range catalog {
		if sku := normalizeSKU(p.SKU); sku != "" {
			if _, dup := bySKU[sku]; !dup {
				bySKU[sku] = p
			}
		}
		if name := normalizeName(p.Name); name != "" {
			if _, dup := byName[name]; !dup {
				byName[name] = p
			}
		}
	}

	items := make([]domain.SaleItem, 0, len(extracted))
	unmatched := 0
	for _, e := range extracted {
		quantity := e.Quantity
		if quantity < 1 {
			quantity = 1
		}

		var product domain.Product
		ok := false
		if sku := normalizeSKU(e.SKU); sku != "" {
			product, ok = bySKU[sku]
		}
		if !ok {
			product, ok = byName[normalizeName(e.Name)]
		}
		if !ok {
			unmatched++
			items = append(items, domain.SaleItem{
				Name:      strings.TrimSpace(e.Name),
				SKU:       normalizeSKU(e.SKU),
				Price:     max(e.Price, 0),
				Quantity:  quantity,
				Unmatched: true,
			})
			continue
		}

		price := product.Price
		if e.Price > 0 {
			price = e.Price
		}
		items = append(items, domain.SaleItem{
			ProductID: product.ID,
			Name:      product.Name,
			SKU:       product.SKU,
			Price:     price,
			Quantity:  quantity,
			Cost:      product.Cost,
		})
	}
	return items, unmatched
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// ImportSaleFromPDF reads a receipt PDF into a cart ready for Checkout. It
// does not record anything.
func (s *Service) ImportSaleFromPDF(ctx context.Context, req domain.SaleImportRequest) (domain.SaleDraft, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.SaleDraft{}, err
	}

	extracted, err := s.assistant.ExtractSale(ctx, req.PDFDataURI)
	if err != nil {
		return domain.SaleDraft{}, err
	}
	if len(extracted.Items) == 0 {
		return domain.SaleDraft{}, invalid("no sale items found in document")
	}

	catalog, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.SaleDraft{}, err
	}
	items, unmatched := MatchExtractedItems(catalog, extracted.Items)

	draft := domain.SaleDraft{Items: items, Unmatched: unmatched}
	if date, ok := parseExtractedDate(extracted.Date); ok {
		draft.Date = &date
	}
	return draft, nil
}

func parseExtractedDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (s *Service) SummarizePurchase(ctx context.Context, saleID string) (domain.PurchaseSummary, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.PurchaseSummary{}, err
	}
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.PurchaseSummary{}, err
	}
	summary, err := s.assistant.SummarizePurchase(ctx, sale.Items)
	if err != nil {
		return domain.PurchaseSummary{}, err
	}
	return domain.PurchaseSummary{SaleID: sale.ID, Summary: summary}, nil
}

var productColumnAliases = map[string][]string{
	"name":     {"nama prodak", "nama produk", "name"},
	"price":    {"harga jual", "price"},
	"cost":     {"harga modal", "cost"},
	"sku":      {"sku"},
	"stock":    {"stok", "stock"},
	"category": {"kategori", "category"},
}

// ImportProducts reads products from the first sheet of an xlsx workbook.
// Rows without a name or with a non-numeric price or cost are skipped and
// reported by their sheet row number. The remaining rows are stored in one
// batch.
func (s *Service) ImportProducts(ctx context.Context, r io.Reader) (domain.ProductImportResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ProductImportResult{}, err
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return domain.ProductImportResult{}, invalid("file is not a valid xlsx workbook")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return domain.ProductImportResult{}, invalid("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return domain.ProductImportResult{}, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return domain.ProductImportResult{}, invalid("workbook is empty")
	}

	columns := mapProductColumns(rows[0])
	for _, required := range []string{"name", "price", "cost"} {
		if _, ok := columns[required]; !ok {
			return domain.ProductImportResult{}, invalid("missing column %q", productColumnAliases[required][0])
		}
	}

	now := s.now()
	result := domain.ProductImportResult{SkippedRows: []int{}}
	products := make([]domain.Product, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rowNumber := i + 2
		product, ok := productFromRow(row, columns)
		if !ok {
			if !rowIsBlank(row) {
				result.SkippedRows = append(result.SkippedRows, rowNumber)
			}
			continue
		}
		product.ID = xid.New("prd")
		product.CreatedAt = now
		product.UpdatedAt = now
		products = append(products, product)
	}
	if len(products) == 0 {
		return domain.ProductImportResult{}, invalid("no valid product rows; check the column names")
	}

	if err := s.repo.CreateProducts(ctx, products); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.ProductImportResult{}, fmt.Errorf("%w: a SKU in the file already exists", store.ErrConflict)
		}
		return domain.ProductImportResult{}, err
	}
	result.Imported = len(products)

	s.logAudit(ctx, "product_import", "product", "*", fmt.Sprintf("imported=%d,skipped=%d", result.Imported, len(result.SkippedRows)))
	return result, nil
}

func mapProductColumns(header []string) map[string]int {
	columns := make(map[string]int, len(productColumnAliases))
	for idx, cell := range header {
		label := normalizeName(cell)
		for field, aliases := range productColumnAliases {
			if _, taken := columns[field]; taken {
				continue
			}
			for _, alias := range aliases {
				if label == alias {
					columns[field] = idx
				}
			}
		}
	}
	return columns
}

func productFromRow(row []string, columns map[string]int) (domain.Product, bool) {
	cell := func(field string) string {
		idx, ok := columns[field]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	name := cell("name")
	price, okPrice := parseAmount(cell("price"))
	cost, okCost := parseAmount(cell("cost"))
	if name == "" || !okPrice || !okCost || price < 1 {
		return domain.Product{}, false
	}
	stock, ok := parseAmount(cell("stock"))
	if !ok {
		stock = 0
	}

	return domain.Product{
		SKU:      normalizeSKU(cell("sku")),
		Name:     name,
		Category: cell("category"),
		Price:    price,
		Cost:     cost,
		Stock:    int(stock),
	}, true
}

// parseAmount accepts whole non-negative numbers, optionally prefixed with Rp
// and grouped with commas.
func parseAmount(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(strings.TrimPrefix(value, "Rp"), "rp")
	value = strings.ReplaceAll(strings.ReplaceAll(value, ",", ""), " ", "")
	if value == "" {
		return 0, false
	}
	amount, err := decimal.NewFromString(value)
	if err != nil || amount.IsNegative() {
		return 0, false
	}
	return amount.Round(0).IntPart(), true
}

func rowIsBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
