package memory

import (
	"context"
	"log"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/store"
	"kasiran/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	customers       map[string]domain.Customer
	sales           map[string]domain.SaleRecord
	cashFlow        map[string]domain.CashFlowEntry
	sequences       map[string]int64
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// New returns an empty store with no users.
func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		customers:       make(map[string]domain.Customer),
		sales:           make(map[string]domain.SaleRecord),
		cashFlow:        make(map[string]domain.CashFlowEntry),
		sequences:       make(map[string]int64),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		name     string
		role     string
	}{
		{"admin", adminPwd, "Admin", domain.RoleAdmin},
		{"cashier", cashierPwd, "Kasir", domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:    u.username,
			Password:    string(hash),
			DisplayName: u.name,
			Role:        u.role,
			Active:      true,
			CreatedAt:   now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo users and a small catalog.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", Category: "grocery", Price: 3500, Cost: 2700, Stock: 120},
		{SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", Category: "grocery", Price: 26500, Cost: 23000, Stock: 40},
		{SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", Category: "dairy", Price: 18900, Cost: 13600, Stock: 60},
		{SKU: "SKU-ROTI-01", Name: "Roti Tawar", Category: "bakery", Price: 17800, Cost: 12500, Stock: 30},
		{SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Category: "beverage", Price: 2600, Cost: 1700, Stock: 200},
		{SKU: "SKU-GULA-01", Name: "Gula 1kg", Category: "grocery", Price: 17400, Cost: 15300, Stock: 50},
		{SKU: "SKU-TEH-01", Name: "Teh Celup", Category: "beverage", Price: 9800, Cost: 7300, Stock: 80},
		{SKU: "SKU-AIR-01", Name: "Air Mineral 600ml", Category: "beverage", Price: 3900, Cost: 3200, Stock: 240},
		{SKU: "SKU-KERIPIK-01", Name: "Keripik Singkong", Category: "snack", Price: 12800, Cost: 8100, Stock: 45},
		{SKU: "SKU-SABUN-01", Name: "Sabun Mandi", Category: "household", Price: 7400, Cost: 5000, Stock: 70},
	} {
		p.ID = xid.New("prd")
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := slices.Collect(maps.Values(s.products))
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := cmpString(a.Category, b.Category); c != 0 {
			return c
		}
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

// CreateProducts inserts the batch or nothing.
func (s *Store) CreateProducts(_ context.Context, products []domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		if p.ID == "" || strings.TrimSpace(p.Name) == "" {
			return store.ErrValidation
		}
		if _, exists := s.products[p.ID]; exists {
			return store.ErrConflict
		}
		if p.SKU == "" {
			continue
		}
		if _, dup := seen[p.SKU]; dup || s.skuTakenLocked(p.SKU, "") {
			return store.ErrConflict
		}
		seen[p.SKU] = struct{}{}
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.SKU != "" && s.skuTakenLocked(product.SKU, product.ID) {
		return nil, store.ErrConflict
	}
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) DeleteAllProducts(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.products)
	clear(s.products)
	return n, nil
}

func (s *Store) skuTakenLocked(sku string, exceptID string) bool {
	for id, p := range s.products {
		if id != exceptID && p.SKU == sku {
			return true
		}
	}
	return false
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := slices.Collect(maps.Values(s.customers))
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrConflict
	}
	if customer.JoinedDate.IsZero() {
		customer.JoinedDate = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.JoinedDate = existing.JoinedDate
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) DeleteAllCustomers(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.customers)
	clear(s.customers)
	return n, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SaleRecord, 0, len(s.sales))
	for _, sale := range s.sales {
		if !inRange(sale.Date, filter.From, filter.To) {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.SaleRecord) int {
		if !a.Date.Equal(b.Date) {
			return b.Date.Compare(a.Date)
		}
		return cmpString(b.TransactionID, a.TransactionID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) SequenceValue(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sequences[name], nil
}

func (s *Store) ListCashFlow(_ context.Context, filter domain.CashFlowFilter) ([]domain.CashFlowEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashFlowEntry, 0, len(s.cashFlow))
	for _, entry := range s.cashFlow {
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		if !inRange(entry.Date, filter.From, filter.To) {
			continue
		}
		result = append(result, entry)
	}
	sortCashFlow(result)
	return result, nil
}

func (s *Store) GetCashFlowEntry(_ context.Context, id string) (*domain.CashFlowEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cashFlow[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &entry, nil
}

func (s *Store) CreateCashFlowEntry(_ context.Context, entry domain.CashFlowEntry) (*domain.CashFlowEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.SaleID != "" {
		return nil, store.ErrDerivedEntry
	}
	if entry.ID == "" {
		entry.ID = xid.New("cf")
	}
	if _, exists := s.cashFlow[entry.ID]; exists {
		return nil, store.ErrConflict
	}
	s.cashFlow[entry.ID] = entry
	return &entry, nil
}

func (s *Store) UpdateCashFlowEntry(_ context.Context, entry domain.CashFlowEntry) (*domain.CashFlowEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.cashFlow[entry.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.Derived() || entry.SaleID != "" {
		return nil, store.ErrDerivedEntry
	}
	entry.CreatedAt = existing.CreatedAt
	entry.CreatedBy = existing.CreatedBy
	s.cashFlow[entry.ID] = entry
	return &entry, nil
}

func (s *Store) DeleteCashFlowEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.cashFlow[id]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Derived() {
		return store.ErrDerivedEntry
	}
	delete(s.cashFlow, id)
	return nil
}

func (s *Store) ListExpenseDescriptions(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.CashFlowEntry, 0, len(s.cashFlow))
	for _, entry := range s.cashFlow {
		if entry.Type == domain.CashFlowExpense && !entry.Derived() {
			expenses = append(expenses, entry)
		}
	}
	sortCashFlow(expenses)

	seen := make(map[string]struct{}, len(expenses))
	result := make([]string, 0, len(expenses))
	for _, entry := range expenses {
		key := strings.ToLower(entry.Description)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, entry.Description)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if !inRange(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := slices.Collect(maps.Values(s.usersByUsername))
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// inRange treats a zero bound as open; to is exclusive.
func inRange(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func sortCashFlow(entries []domain.CashFlowEntry) {
	slices.SortFunc(entries, func(a, b domain.CashFlowEntry) int {
		if !a.Date.Equal(b.Date) {
			return b.Date.Compare(a.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return b.CreatedAt.Compare(a.CreatedAt)
		}
		return cmpString(b.ID, a.ID)
	})
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src domain.SaleRecord) domain.SaleRecord {
	dup := src
	dup.Items = slices.Clone(src.Items)
	return dup
}
