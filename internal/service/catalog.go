package service

import (
	"context"
	"fmt"
	"strings"

	"mercadinho/backend/internal/cache"
	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/store"
	"mercadinho/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return readThrough(ctx, s, cache.EntityProducts, cache.Key("all"), s.repo.ListProducts)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.Invalid("id", "is required")
	}
	return readThrough(ctx, s, cache.EntityProducts, cache.Key("id", id), func(ctx context.Context) (domain.Product, error) {
		product, err := s.repo.GetProduct(ctx, id)
		if err != nil {
			return domain.Product{}, err
		}
		return *product, nil
	})
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}
	if req.ID == "" {
		req.ID = xid.New("prd")
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:         req.ID,
		Name:       req.Name,
		Category:   req.Category,
		PriceCents: req.PriceCents,
		Stock:      req.InitialStock,
	})
	if err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}

	s.invalidate(ctx, cache.EntityProducts)
	s.log.Zerolog(ctx).Info().Str("product_id", created.ID).Int("stock", created.Stock).Msg("product created")
	return *created, nil
}

// UpdateProduct applies the fields present in req. Stock set here is an
// absolute count, e.g. after a delivery or a stock take.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.Invalid("name", "must not be blank")
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.Invalid("category", "must not be blank")
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		updated.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product %s: %w", updated.ID, err)
	}

	s.invalidate(ctx, cache.EntityProducts)
	s.log.Zerolog(ctx).Info().
		Str("product_id", saved.ID).
		Int64("price_cents", saved.PriceCents).
		Int("stock", saved.Stock).
		Msg("product updated")
	return *saved, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return readThrough(ctx, s, cache.EntityCustomers, cache.Key("all"), s.repo.ListCustomers)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Customer{}, store.Invalid("id", "is required")
	}
	return readThrough(ctx, s, cache.EntityCustomers, cache.Key("id", id), func(ctx context.Context) (domain.Customer, error) {
		customer, err := s.repo.GetCustomer(ctx, id)
		if err != nil {
			return domain.Customer{}, err
		}
		return *customer, nil
	})
}

// CreateCustomer registers a customer with no purchases. Totals and raffle
// eligibility only ever change through recorded sales.
func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:    xid.New("cus"),
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		return domain.Customer{}, fmt.Errorf("create customer: %w", err)
	}

	s.invalidate(ctx, cache.EntityCustomers)
	s.log.Zerolog(ctx).Info().Str("customer_id", created.ID).Msg("customer created")
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}

	existing, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}

	name, phone := existing.Name, existing.Phone
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, store.Invalid("name", "must not be blank")
		}
	}
	if req.Phone != nil {
		phone = strings.TrimSpace(*req.Phone)
	}

	saved, err := s.repo.UpdateCustomerContact(ctx, existing.ID, name, phone)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("update customer %s: %w", existing.ID, err)
	}

	s.invalidate(ctx, cache.EntityCustomers)
	return *saved, nil
}
