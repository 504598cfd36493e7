package httpapi

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kasiran/backend/internal/domain"
)

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	dashboard, err := a.service.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	report, err := a.service.SalesReport(r.Context(), query.Get("from"), query.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(query.Get("format"))) {
	case "", "json":
		writeJSON(w, http.StatusOK, report)
	case "csv":
		body, err := salesReportToCSV(report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reportFileName(report, "csv")))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	case "html":
		body, err := salesReportToPrintableHTML(report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	default:
		writeError(w, http.StatusBadRequest, errors.New("format must be json, csv or html"))
	}
}

func reportFileName(report domain.SalesReport, ext string) string {
	from, to := report.From, report.To
	if from == "" {
		from = "all"
	}
	if to == "" {
		to = "now"
	}
	return fmt.Sprintf("sales-report-%s-%s.%s", from, to, ext)
}

var salesReportHeader = []string{
	"transaction_id", "date", "cashier", "payment_method", "items",
	"subtotal", "discount", "total", "cost",
}

func salesReportToCSV(report domain.SalesReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(salesReportHeader); err != nil {
		return nil, err
	}
	for _, row := range report.Rows {
		record := []string{
			row.TransactionID,
			row.Date.UTC().Format(time.RFC3339),
			row.CashierName,
			row.PaymentMethod,
			strconv.Itoa(row.ItemCount),
			strconv.FormatInt(row.Subtotal, 10),
			strconv.FormatInt(row.DiscountAmount, 10),
			strconv.FormatInt(row.Total, 10),
			strconv.FormatInt(row.TotalCost, 10),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	err := writer.Write([]string{
		"TOTAL", "", "", "", strconv.Itoa(report.Transactions),
		strconv.FormatInt(report.Subtotal, 10),
		strconv.FormatInt(report.DiscountAmount, 10),
		strconv.FormatInt(report.Total, 10),
		strconv.FormatInt(report.TotalCost, 10),
	})
	if err != nil {
		return nil, err
	}
	writer.Flush()
	return buf.Bytes(), writer.Error()
}

var salesReportHTMLTmpl = template.Must(template.New("sales-report").Funcs(template.FuncMap{
	"datetime": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Laporan Penjualan {{.StoreName}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    h2 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Laporan Penjualan {{.StoreName}}</h2>
  <p>Periode: {{if .From}}{{.From}}{{else}}awal{{end}} s/d {{if .To}}{{.To}}{{else}}sekarang{{end}}</p>
  <p>Transaksi: {{.Transactions}} | Subtotal: {{.Subtotal}} | Diskon: {{.DiscountAmount}} | Total: {{.Total}} | Modal: {{.TotalCost}} | Laba Kotor: {{.GrossMargin}}</p>
  <table>
    <thead><tr><th>No</th><th>Tanggal</th><th>Kasir</th><th>Bayar</th><th>Item</th><th>Subtotal</th><th>Diskon</th><th>Total</th></tr></thead>
    <tbody>{{range .Rows}}<tr><td>{{.TransactionID}}</td><td>{{datetime .Date}}</td><td>{{.CashierName}}</td><td>{{.PaymentMethod}}</td><td class="num">{{.ItemCount}}</td><td class="num">{{.Subtotal}}</td><td class="num">{{.DiscountAmount}}</td><td class="num">{{.Total}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func salesReportToPrintableHTML(report domain.SalesReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := salesReportHTMLTmpl.Execute(&buf, report); err != nil {
		return nil, fmt.Errorf("render sales report: %w", err)
	}
	return buf.Bytes(), nil
}
