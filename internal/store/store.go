package store

import (
	"context"
	"errors"
	"time"

	"kasiran/backend/internal/domain"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("concurrent modification")
	ErrUnavailable  = errors.New("store unavailable")
	ErrDerivedEntry = errors.New("cash flow entry is derived from a sale")
)

// Repository is the persistent state of the POS. Writes that span sales, the
// sales counter and sale-derived cash flow go through RunInTx only.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProducts(ctx context.Context, products []domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	DeleteAllProducts(ctx context.Context) (int, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	DeleteAllCustomers(ctx context.Context) (int, error)

	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleRecord, error)
	GetSale(ctx context.Context, id string) (*domain.SaleRecord, error)
	SequenceValue(ctx context.Context, name string) (int64, error)

	ListCashFlow(ctx context.Context, filter domain.CashFlowFilter) ([]domain.CashFlowEntry, error)
	GetCashFlowEntry(ctx context.Context, id string) (*domain.CashFlowEntry, error)
	CreateCashFlowEntry(ctx context.Context, entry domain.CashFlowEntry) (*domain.CashFlowEntry, error)
	// UpdateCashFlowEntry and DeleteCashFlowEntry refuse sale-derived rows with ErrDerivedEntry.
	UpdateCashFlowEntry(ctx context.Context, entry domain.CashFlowEntry) (*domain.CashFlowEntry, error)
	DeleteCashFlowEntry(ctx context.Context, id string) error
	ListExpenseDescriptions(ctx context.Context, limit int) ([]string, error)

	// RunInTx executes fn as one atomic unit. If fn returns an error nothing
	// it did is visible afterwards. Implementations may call fn more than once
	// when the unit loses a serialization race, so fn must not have side
	// effects outside tx.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Tx is the view of the store inside an atomic unit.
type Tx interface {
	// NextSequence advances the named counter and returns the new value.
	// A counter that was never used starts at 0.
	NextSequence(ctx context.Context, name string) (int64, error)
	ResetSequence(ctx context.Context, name string) error

	InsertSale(ctx context.Context, sale domain.SaleRecord) error
	// GetSaleForUpdate reads a sale and holds it against concurrent writers
	// until the unit ends.
	GetSaleForUpdate(ctx context.Context, id string) (*domain.SaleRecord, error)
	UpdateSale(ctx context.Context, sale domain.SaleRecord) error
	DeleteSale(ctx context.Context, id string) error
	DeleteAllSales(ctx context.Context) (int, error)

	// FindCashFlowByDescription returns the earliest Expense row with the
	// description, ties broken by id, or ErrNotFound.
	FindCashFlowByDescription(ctx context.Context, description string) (*domain.CashFlowEntry, error)
	InsertCashFlow(ctx context.Context, entry domain.CashFlowEntry) error
	UpdateCashFlow(ctx context.Context, entry domain.CashFlowEntry) error
	DeleteCashFlow(ctx context.Context, id string) error
	DeleteAllCashFlow(ctx context.Context) (int, error)
}
