package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mercadinho/backend/internal/cache"
	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/store"
)

// CancelSaleToday marks a sale cancelled and logs the change. It returns
// false without error when the sale is unknown, already cancelled, or was
// not created today in the reference timezone. Stock and customer totals
// are left as they are.
func (s *Service) CancelSaleToday(ctx context.Context, saleID int64) (bool, error) {
	today := s.timestamp()
	return s.mutate(ctx, store.SaleMutation{
		SaleID: saleID,
		Editor: editorFrom(ctx),
		Action: domain.EditActionCancel,
		At:     today,
		Mutate: func(current domain.Sale) (domain.Sale, bool) {
			if !s.editable(current, today) {
				return current, false
			}
			current.Status = domain.SaleStatusCancelled
			return current, true
		},
	})
}

// EditSaleToday replaces the payment method and item list of a sale created
// today. Total and change are recomputed from the new lines; stock and the
// customer's purchase total are not adjusted.
func (s *Service) EditSaleToday(ctx context.Context, saleID int64, req domain.EditSaleRequest) (bool, error) {
	if err := s.check(req); err != nil {
		return false, err
	}
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return false, store.Invalid("payment_method", err.Error())
	}

	items, err := buildItems(req.Items)
	if err != nil {
		return false, err
	}
	total := domain.SumSubtotals(items)

	today := s.timestamp()
	current, err := s.repo.GetSale(ctx, saleID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("edit sale %d: %w", saleID, err)
	}
	if err != nil || !s.editable(*current, today) {
		s.metrics.SaleMutation(string(domain.EditActionEdit), false)
		return false, nil
	}
	if err := s.fillItemNames(ctx, items); err != nil {
		return false, err
	}

	return s.mutate(ctx, store.SaleMutation{
		SaleID: saleID,
		Editor: editorFrom(ctx),
		Action: domain.EditActionEdit,
		At:     today,
		Mutate: func(current domain.Sale) (domain.Sale, bool) {
			if !s.editable(current, today) {
				return current, false
			}
			current.PaymentMethod = method
			current.Items = items
			current.TotalCents = total
			current.ChangeCents = domain.ChangeDue(method, current.AmountPaidCents, total)
			return current, true
		},
	})
}

func (s *Service) editable(sale domain.Sale, now time.Time) bool {
	if sale.IsCancelled() {
		return false
	}
	return s.sameDay(sale.CreatedAt, now)
}

func (s *Service) mutate(ctx context.Context, m store.SaleMutation) (bool, error) {
	updated, applied, err := s.repo.MutateSale(ctx, m)
	if errors.Is(err, store.ErrNotFound) {
		applied, err = false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s sale %d: %w", m.Action, m.SaleID, err)
	}

	s.metrics.SaleMutation(string(m.Action), applied)
	if !applied {
		s.log.Zerolog(ctx).Info().
			Int64("sale_id", m.SaleID).
			Str("action", string(m.Action)).
			Msg("sale mutation rejected")
		return false, nil
	}

	s.invalidate(ctx, cache.EntitySales, cache.EntitySaleEditLogs)
	s.log.Zerolog(ctx).Info().
		Int64("sale_id", updated.ID).
		Str("action", string(m.Action)).
		Str("editor", m.Editor).
		Int64("total_cents", updated.TotalCents).
		Msg("sale mutated")
	return true, nil
}

// buildItems snapshots the request lines and reports an unrepresentable line
// as a validation error on that line.
func buildItems(inputs []domain.SaleItemInput) ([]domain.SaleItem, error) {
	items, err := domain.BuildSaleItems(inputs)
	var rangeErr *domain.LineRangeError
	if errors.As(err, &rangeErr) {
		return nil, store.Invalid(fmt.Sprintf("items[%d].%s", rangeErr.Index, rangeErr.Field), "is out of range")
	}
	return items, err
}

// fillItemNames completes blank line names from the catalog. Unknown products
// are rejected the same way recording a sale rejects them.
func (s *Service) fillItemNames(ctx context.Context, items []domain.SaleItem) error {
	for i := range items {
		if items[i].ProductName != "" {
			continue
		}
		product, err := s.repo.GetProduct(ctx, items[i].ProductID)
		if err != nil {
			return fmt.Errorf("product %s: %w", items[i].ProductID, err)
		}
		items[i].ProductName = product.Name
	}
	return nil
}

func (s *Service) GetSaleEditLogsBySale(ctx context.Context, saleID int64) ([]domain.SaleEditLog, error) {
	return readThrough(ctx, s, cache.EntitySaleEditLogs, cache.Key("sale", saleID), func(ctx context.Context) ([]domain.SaleEditLog, error) {
		return s.repo.ListSaleEditLogsBySale(ctx, saleID)
	})
}

func (s *Service) GetSaleEditLogsByEditor(ctx context.Context, editor string) ([]domain.SaleEditLog, error) {
	editor = strings.TrimSpace(editor)
	if editor == "" {
		return nil, store.Invalid("editor", "is required")
	}
	return readThrough(ctx, s, cache.EntitySaleEditLogs, cache.Key("editor", editor), func(ctx context.Context) ([]domain.SaleEditLog, error) {
		return s.repo.ListSaleEditLogsByEditor(ctx, editor)
	})
}
