package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"kasiran/backend/internal/domain"
	"kasiran/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	product := domain.Product{
		ID:        xid.New("prd"),
		SKU:       normalizeSKU(req.SKU),
		Name:      strings.TrimSpace(req.Name),
		Category:  strings.TrimSpace(req.Category),
		Price:     req.Price,
		Cost:      req.Cost,
		Stock:     req.Stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}
	if err := s.repo.CreateProducts(ctx, []domain.Product{product}); err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", product.ID, fmt.Sprintf("name=%s,price=%d,cost=%d", product.Name, product.Price, product.Cost))
	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.SKU != nil {
		updated.SKU = normalizeSKU(*req.SKU)
	}
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.Cost != nil {
		updated.Cost = *req.Cost
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if err := validateProduct(updated); err != nil {
		return domain.Product{}, err
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("price:%d->%d,cost:%d->%d", existing.Price, saved.Price, existing.Cost, saved.Cost))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) DeleteAllProducts(ctx context.Context) (int, error) {
	if err := requireAdmin(ctx); err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteAllProducts(ctx)
	if err != nil {
		return 0, err
	}
	s.logAudit(ctx, "products_delete_all", "product", "*", fmt.Sprintf("deleted=%d", n))
	return n, nil
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

func validateProduct(p domain.Product) error {
	switch {
	case p.Name == "":
		return invalid("product name is required")
	case p.Price < 1:
		return invalid("product price must be positive")
	case p.Cost < 0:
		return invalid("product cost cannot be negative")
	case p.Stock < 0:
		return invalid("product stock cannot be negative")
	}
	return nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Customer{}, err
	}

	customer := domain.Customer{
		ID:         xid.New("cus"),
		JoinedDate: s.now(),
	}
	applyCustomerRequest(&customer, req)
	if err := validateCustomer(customer); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerRequest) (domain.Customer, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Customer{}, err
	}

	existing, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	updated := *existing
	applyCustomerRequest(&updated, req)
	if err := validateCustomer(updated); err != nil {
		return domain.Customer{}, err
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_update", "customer", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "customer_delete", "customer", id, "")
	return nil
}

func (s *Service) DeleteAllCustomers(ctx context.Context) (int, error) {
	if err := requireAdmin(ctx); err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteAllCustomers(ctx)
	if err != nil {
		return 0, err
	}
	s.logAudit(ctx, "customers_delete_all", "customer", "*", fmt.Sprintf("deleted=%d", n))
	return n, nil
}

func applyCustomerRequest(c *domain.Customer, req domain.CustomerRequest) {
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		c.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Phone != nil {
		c.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.TotalSpent != nil {
		c.TotalSpent = *req.TotalSpent
	}
}

func validateCustomer(c domain.Customer) error {
	if c.Name == "" {
		return invalid("customer name is required")
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return invalid("customer email %q is not valid", c.Email)
		}
	}
	if c.TotalSpent < 0 {
		return invalid("customer total spent cannot be negative")
	}
	return nil
}
