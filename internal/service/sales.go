package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mercadinho/backend/internal/cache"
	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/reconcile"
	"mercadinho/backend/internal/store"
)

// RecordSale validates and persists a sale. Stock decrement, session stamp,
// id assignment and the customer credit happen in one repository call, so a
// failure anywhere leaves nothing behind.
func (s *Service) RecordSale(ctx context.Context, req domain.RecordSaleRequest) (domain.RecordSaleResult, error) {
	if err := s.check(req); err != nil {
		return domain.RecordSaleResult{}, err
	}

	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.RecordSaleResult{}, store.Invalid("payment_method", err.Error())
	}

	customerID := domain.None[string]()
	if id, ok := req.CustomerID.Get(); ok {
		id = strings.TrimSpace(id)
		if id == "" {
			return domain.RecordSaleResult{}, store.Invalid("customer_id", "must not be blank")
		}
		customerID = domain.Some(id)
	}

	items, err := buildItems(req.Items)
	if err != nil {
		return domain.RecordSaleResult{}, err
	}
	total := domain.SumSubtotals(items)

	sale := domain.Sale{
		Status:          domain.SaleStatusActive,
		PaymentMethod:   method,
		CreatedAt:       s.timestamp(),
		TotalCents:      total,
		AmountPaidCents: req.AmountPaidCents,
		ChangeCents:     domain.ChangeDue(method, req.AmountPaidCents, total),
		CustomerID:      customerID,
		Items:           items,
		IdempotencyKey:  strings.TrimSpace(req.IdempotencyKey),
	}

	created, duplicate, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.RecordSaleResult{}, err
	}
	if duplicate {
		s.log.Zerolog(ctx).Info().
			Int64("sale_id", created.ID).
			Str("idempotency_key", created.IdempotencyKey).
			Msg("duplicate sale request, returning existing sale")
		return domain.RecordSaleResult{Sale: *created, Duplicate: true}, nil
	}

	s.invalidate(ctx, cache.EntitySales, cache.EntityCustomers, cache.EntityProducts)
	s.metrics.SaleRecorded(string(created.PaymentMethod), created.TotalCents)

	event := s.log.Zerolog(ctx).Info().
		Int64("sale_id", created.ID).
		Str("payment_method", string(created.PaymentMethod)).
		Int64("total_cents", created.TotalCents)
	if sessionID, ok := created.SessionID.Get(); ok {
		event.Int64("session_id", sessionID).Msg("sale recorded")
	} else {
		event.Msg("sale recorded")
		s.log.Zerolog(ctx).Warn().Int64("sale_id", created.ID).Msg("sale recorded with no open register session")
	}

	return domain.RecordSaleResult{Sale: *created}, nil
}

// GetSale returns None when the sale does not exist.
func (s *Service) GetSale(ctx context.Context, id int64) (domain.Optional[domain.Sale], error) {
	return readThrough(ctx, s, cache.EntitySales, cache.Key("id", id), func(ctx context.Context) (domain.Optional[domain.Sale], error) {
		sale, err := s.repo.GetSale(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return domain.None[domain.Sale](), nil
		}
		if err != nil {
			return domain.None[domain.Sale](), err
		}
		return domain.Some(*sale), nil
	})
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return readThrough(ctx, s, cache.EntitySales, cache.Key("all"), s.repo.ListSales)
}

func (s *Service) ListSalesByCustomer(ctx context.Context, customerID string) ([]domain.Sale, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, store.Invalid("customer_id", "is required")
	}
	return readThrough(ctx, s, cache.EntitySales, cache.Key("customer", customerID), func(ctx context.Context) ([]domain.Sale, error) {
		return s.repo.ListSalesByCustomer(ctx, customerID)
	})
}

// GetActiveSales lists every sale whose status is active.
func (s *Service) GetActiveSales(ctx context.Context) ([]domain.Sale, error) {
	return readThrough(ctx, s, cache.EntitySales, cache.Key("active"), s.repo.ListActiveSales)
}

// ListSalesBySession returns every sale stamped with sessionID, cancelled
// ones included.
func (s *Service) ListSalesBySession(ctx context.Context, sessionID int64) ([]domain.Sale, error) {
	if sessionID <= 0 {
		return nil, store.Invalid("session_id", "must be greater than 0")
	}
	sales, err := s.ListSales(ctx)
	if err != nil {
		return nil, err
	}
	return reconcile.FilterSalesBySession(sales, sessionID), nil
}

// DeleteSale physically removes a sale. It is admin only and, unlike cancel,
// leaves no edit log.
func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return fmt.Errorf("delete sale %d: %w", id, err)
	}

	s.invalidate(ctx, cache.EntitySales)
	s.log.Zerolog(ctx).Warn().Int64("sale_id", id).Str("editor", editorFrom(ctx)).Msg("sale hard deleted")
	return nil
}
