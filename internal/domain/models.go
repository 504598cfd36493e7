package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SalesSequence is the counter that numbers sale transaction ids.
const SalesSequence = "sales"

const (
	CashFlowIncome  = "Income"
	CashFlowExpense = "Expense"
)

const (
	COGSCategory          = "COGS"
	COGSDescriptionPrefix = "COGS "
	SaleIncomeCategory    = "Sales"
	SaleIncomePrefix      = "Sale "
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const DefaultPaymentMethod = "Cash"

// FormatTransactionID renders a counter value as TRX-00001.
func FormatTransactionID(n int64) string {
	return fmt.Sprintf("TRX-%05d", n)
}

// COGSDescription is the description carried by the cost-of-goods row of a sale.
func COGSDescription(transactionID string) string {
	return COGSDescriptionPrefix + transactionID
}

type Product struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku,omitempty"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Price     int64     `json:"price"`
	Cost      int64     `json:"cost"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    int64  `json:"price"`
	Cost     int64  `json:"cost"`
	Stock    int    `json:"stock"`
}

type ProductUpdateRequest struct {
	SKU      *string `json:"sku,omitempty"`
	Name     *string `json:"name,omitempty"`
	Category *string `json:"category,omitempty"`
	Price    *int64  `json:"price,omitempty"`
	Cost     *int64  `json:"cost,omitempty"`
	Stock    *int    `json:"stock,omitempty"`
}

type ProductImportResult struct {
	Imported    int   `json:"imported"`
	SkippedRows []int `json:"skipped_rows"`
}

type Customer struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	TotalSpent int64     `json:"total_spent"`
	JoinedDate time.Time `json:"joined_date"`
}

type CustomerRequest struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	TotalSpent *int64  `json:"total_spent,omitempty"`
}

// SaleItem is a line of a sale. Price and Cost are snapshots taken when the
// line was written.
type SaleItem struct {
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Cost      int64  `json:"cost"`
	Unmatched bool   `json:"unmatched,omitempty"`
}

type SaleRecord struct {
	ID              string          `json:"id"`
	TransactionID   string          `json:"transaction_id"`
	Date            time.Time       `json:"date"`
	Items           []SaleItem      `json:"items"`
	Subtotal        int64           `json:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  int64           `json:"discount_amount"`
	Total           int64           `json:"total"`
	TotalCost       int64           `json:"total_cost"`
	PaymentMethod   string          `json:"payment_method"`
	CashierID       string          `json:"cashier_id"`
	CashierName     string          `json:"cashier_name"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (s SaleRecord) ItemCount() int {
	count := 0
	for _, item := range s.Items {
		count += item.Quantity
	}
	return count
}

type CheckoutRequest struct {
	Items         []SaleItem `json:"items"`
	Date          *time.Time `json:"date,omitempty"`
	PaymentMethod string     `json:"payment_method"`
}

type SaleEditRequest struct {
	Items         []SaleItem `json:"items"`
	Date          *time.Time `json:"date,omitempty"`
	PaymentMethod *string    `json:"payment_method,omitempty"`
}

type SaleFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

type DeleteAllResult struct {
	SalesDeleted    int `json:"sales_deleted"`
	CashFlowDeleted int `json:"cash_flow_deleted"`
}

type CashFlowEntry struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Amount      int64     `json:"amount"`
	SaleID      string    `json:"sale_id,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Derived reports whether the entry is owned by a sale rather than entered by hand.
func (e CashFlowEntry) Derived() bool {
	return e.SaleID != ""
}

type CashFlowRequest struct {
	Date        *time.Time `json:"date,omitempty"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Amount      int64      `json:"amount"`
}

type CashFlowFilter struct {
	From time.Time
	To   time.Time
	Type string
}

type CashFlowLedger struct {
	Entries      []CashFlowEntry `json:"entries"`
	TotalIncome  *int64          `json:"total_income,omitempty"`
	TotalExpense int64           `json:"total_expense"`
	NetCashFlow  *int64          `json:"net_cash_flow,omitempty"`
}

type ExpenseSuggestionRequest struct {
	Query string `json:"query"`
}

type ExtractedItem struct {
	Name     string `json:"name" jsonschema:"description=The full name of the product or item sold."`
	SKU      string `json:"sku" jsonschema:"description=The SKU of the product if printed, otherwise an empty string."`
	Quantity int    `json:"quantity" jsonschema:"description=The quantity of the item sold. Use 1 when unknown."`
	Price    int64  `json:"price" jsonschema:"description=The price of a single unit of the item in whole currency units."`
}

type ExtractedSale struct {
	Items []ExtractedItem `json:"items" jsonschema:"description=Line items extracted from the receipt. Empty when the document is not a receipt."`
	Date  string          `json:"date" jsonschema:"description=The transaction date in ISO 8601 format, or an empty string when absent."`
}

type SaleImportRequest struct {
	PDFDataURI string `json:"pdf_data_uri"`
}

// SaleDraft is a cart built from an extracted document, ready for checkout.
type SaleDraft struct {
	Items     []SaleItem `json:"items"`
	Date      *time.Time `json:"date,omitempty"`
	Unmatched int        `json:"unmatched"`
}

type PurchaseSummary struct {
	SaleID  string `json:"sale_id"`
	Summary string `json:"summary"`
}

type RecentSale struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Date          time.Time `json:"date"`
	CashierName   string    `json:"cashier_name"`
	Total         int64     `json:"total"`
}

type DailyRevenue struct {
	Date    string `json:"date"`
	Revenue int64  `json:"revenue"`
}

type Dashboard struct {
	TotalRevenue int64          `json:"total_revenue"`
	TotalExpense int64          `json:"total_expense"`
	NetCashFlow  int64          `json:"net_cash_flow"`
	SalesCount   int            `json:"sales_count"`
	ItemsSold    int            `json:"items_sold"`
	RecentSales  []RecentSale   `json:"recent_sales"`
	Last7Days    []DailyRevenue `json:"last_7_days"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

type SalesReportRow struct {
	ID             string    `json:"id"`
	TransactionID  string    `json:"transaction_id"`
	Date           time.Time `json:"date"`
	ItemCount      int       `json:"item_count"`
	Subtotal       int64     `json:"subtotal"`
	DiscountAmount int64     `json:"discount_amount"`
	Total          int64     `json:"total"`
	TotalCost      int64     `json:"total_cost"`
	CashierName    string    `json:"cashier_name"`
	PaymentMethod  string    `json:"payment_method"`
}

type SalesReport struct {
	From           string           `json:"from"`
	To             string           `json:"to"`
	StoreName      string           `json:"store_name"`
	Rows           []SalesReportRow `json:"rows"`
	Transactions   int              `json:"transactions"`
	Subtotal       int64            `json:"subtotal"`
	DiscountAmount int64            `json:"discount_amount"`
	Total          int64            `json:"total"`
	TotalCost      int64            `json:"total_cost"`
	GrossMargin    int64            `json:"gross_margin"`
}

type Receipt struct {
	SaleID        string `json:"sale_id"`
	TransactionID string `json:"transaction_id"`
	EscposBase64  string `json:"escpos_base64"`
	PreviewText   string `json:"preview_text"`
	FileName      string `json:"file_name"`
}

type Settings struct {
	StoreName       string          `json:"store_name"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	AssistantReady  bool            `json:"assistant_ready"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated user behind a request. Username doubles as the
// cashier id on sales.
type Actor struct {
	Username string
	Name     string
	Role     string
}

func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Username
}

type UserAccount struct {
	Username    string    `json:"username"`
	Password    string    `json:"-"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type CashierCreateRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type CashierUser struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type DeleteAllRequest struct {
	ManagerPIN string `json:"manager_pin"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
