package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/store"
)

const (
	maxTxAttempts  = 5
	txRetryBackoff = 25 * time.Millisecond
)

// RunInTx runs fn inside a SERIALIZABLE transaction and retries the whole
// unit when Postgres reports a serialization failure or deadlock.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return classify(err)
		}
		lastErr = err
		log.Printf("[postgres] serialization conflict attempt=%d/%d: %v", attempt, maxTxAttempts, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * txRetryBackoff):
		}
	}
	return fmt.Errorf("%w: retries exhausted: %v", store.ErrConflict, lastErr)
}

func (s *Store) runOnce(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) NextSequence(ctx context.Context, name string) (int64, error) {
	var next int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO sequence_counters (name, last_number)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET last_number = sequence_counters.last_number + 1
		RETURNING last_number
	`, name).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return next, nil
}

func (t *pgTx) ResetSequence(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sequence_counters (name, last_number)
		VALUES ($1, 0)
		ON CONFLICT (name) DO UPDATE SET last_number = 0
	`, name)
	if err != nil {
		return fmt.Errorf("reset sequence %s: %w", name, err)
	}
	return nil
}

func (t *pgTx) InsertSale(ctx context.Context, sale domain.SaleRecord) error {
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, transaction_id, sale_date, items, subtotal, discount_percent, discount_amount,
			total, total_cost, payment_method, cashier_id, cashier_name, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.TransactionID, sale.Date, items, sale.Subtotal, sale.DiscountPercent, sale.DiscountAmount,
		sale.Total, sale.TotalCost, sale.PaymentMethod, sale.CashierID, sale.CashierName, sale.CreatedAt, sale.UpdatedAt)
	return err
}

func (t *pgTx) GetSaleForUpdate(ctx context.Context, id string) (*domain.SaleRecord, error) {
	sale, err := scanSale(t.tx.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

// UpdateSale never writes transaction_id or the cashier columns.
func (t *pgTx) UpdateSale(ctx context.Context, sale domain.SaleRecord) error {
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE sales
		SET sale_date = $2, items = $3, subtotal = $4, discount_percent = $5, discount_amount = $6,
			total = $7, total_cost = $8, payment_method = $9, updated_at = $10
		WHERE id = $1
	`, sale.ID, sale.Date, items, sale.Subtotal, sale.DiscountPercent, sale.DiscountAmount,
		sale.Total, sale.TotalCost, sale.PaymentMethod, sale.UpdatedAt)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) DeleteSale(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) DeleteAllSales(ctx context.Context) (int, error) {
	return execCount(t.tx.ExecContext(ctx, `DELETE FROM sales`))
}

func (t *pgTx) FindCashFlowByDescription(ctx context.Context, description string) (*domain.CashFlowEntry, error) {
	entry, err := scanCashFlow(t.tx.QueryRowContext(ctx, `
		SELECT `+cashFlowColumns+`
		FROM cash_flow_entries
		WHERE type = 'Expense' AND description = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE
	`, description))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (t *pgTx) InsertCashFlow(ctx context.Context, entry domain.CashFlowEntry) error {
	return insertCashFlow(ctx, t.tx, entry)
}

func (t *pgTx) UpdateCashFlow(ctx context.Context, entry domain.CashFlowEntry) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cash_flow_entries
		SET entry_date = $2, type = $3, description = $4, category = $5, amount = $6, sale_id = $7, updated_at = $8
		WHERE id = $1
	`, entry.ID, entry.Date, entry.Type, entry.Description, entry.Category, entry.Amount, nullIfEmpty(entry.SaleID), entry.UpdatedAt)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) DeleteCashFlow(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM cash_flow_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (t *pgTx) DeleteAllCashFlow(ctx context.Context) (int, error) {
	return execCount(t.tx.ExecContext(ctx, `DELETE FROM cash_flow_entries`))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCashFlow(ctx context.Context, db execer, entry domain.CashFlowEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO cash_flow_entries (
			id, entry_date, type, description, category, amount, sale_id, created_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.Date, entry.Type, entry.Description, entry.Category, entry.Amount,
		nullIfEmpty(entry.SaleID), nullIfEmpty(entry.CreatedBy), entry.CreatedAt, entry.UpdatedAt)
	return classify(err)
}

const saleColumns = `id, transaction_id, sale_date, items, subtotal, discount_percent, discount_amount,
	total, total_cost, payment_method, cashier_id, cashier_name, created_at, updated_at`

func scanSale(row interface{ Scan(...any) error }) (domain.SaleRecord, error) {
	var sale domain.SaleRecord
	var items []byte
	err := row.Scan(&sale.ID, &sale.TransactionID, &sale.Date, &items, &sale.Subtotal, &sale.DiscountPercent, &sale.DiscountAmount,
		&sale.Total, &sale.TotalCost, &sale.PaymentMethod, &sale.CashierID, &sale.CashierName, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return domain.SaleRecord{}, fmt.Errorf("decode items of sale %s: %w", sale.ID, err)
	}
	sale.Date = sale.Date.UTC()
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	return sale, nil
}

const cashFlowColumns = `id, entry_date, type, description, category, amount,
	COALESCE(sale_id, ''), COALESCE(created_by, ''), created_at, updated_at`

func scanCashFlow(row interface{ Scan(...any) error }) (domain.CashFlowEntry, error) {
	var entry domain.CashFlowEntry
	err := row.Scan(&entry.ID, &entry.Date, &entry.Type, &entry.Description, &entry.Category, &entry.Amount,
		&entry.SaleID, &entry.CreatedBy, &entry.CreatedAt, &entry.UpdatedAt)
	entry.Date = entry.Date.UTC()
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return entry, err
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func execCount(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// classify maps driver errors onto the store sentinels. Errors that already
// carry a sentinel, and context errors, pass through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrValidation), errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrUnavailable),
		errors.Is(err, store.ErrDerivedEntry):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case isUniqueViolation(err), isSerializationFailure(err):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case isCheckViolation(err):
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	case isUnavailable(err):
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isCheckViolation(err error) bool {
	return pgCode(err) == "23514"
}

// isSerializationFailure matches serialization_failure and deadlock_detected.
func isSerializationFailure(err error) bool {
	code := pgCode(err)
	return code == "40001" || code == "40P01"
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || pgconn.Timeout(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if code := pgCode(err); strings.HasPrefix(code, "08") || code == "57P01" || code == "53300" {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
