package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("MERCADINHO_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set MERCADINHO_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedProduct(t *testing.T, s *Store, stock int) string {
	t.Helper()
	ctx := context.Background()
	id := fmt.Sprintf("it-%d", time.Now().UnixNano())
	if _, err := s.CreateProduct(ctx, domain.Product{ID: id, Name: "Produto IT", Category: "teste", PriceCents: 1000, Stock: stock}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE items @> $1::jsonb`, fmt.Sprintf(`[{"product_id":%q}]`, id))
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	})
	return id
}

func TestCreateSaleIsAtomicAndIdempotent(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	plenty := seedProduct(t, s, 10)
	scarce := seedProduct(t, s, 1)

	line := func(id string, qty int) domain.SaleItem {
		return domain.SaleItem{ProductID: id, Quantity: qty, UnitPriceCents: 1000, SubtotalCents: int64(qty) * 1000}
	}
	sale := domain.Sale{
		Status:        domain.SaleStatusActive,
		PaymentMethod: domain.PaymentPix,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
		Items:         []domain.SaleItem{line(plenty, 3), line(scarce, 2)},
		TotalCents:    5000,
	}

	_, _, err := s.CreateSale(ctx, sale)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	p, _ := s.GetProduct(ctx, plenty)
	if p.Stock != 10 {
		t.Fatalf("expected stock untouched at 10, got %d", p.Stock)
	}

	sale.Items = []domain.SaleItem{line(plenty, 3)}
	sale.TotalCents = 3000
	sale.IdempotencyKey = fmt.Sprintf("it-idem-%d", time.Now().UnixNano())
	created, dup, err := s.CreateSale(ctx, sale)
	if err != nil || dup {
		t.Fatalf("expected new sale, got dup=%t err=%v", dup, err)
	}
	if created.Items[0].ProductName != "Produto IT" {
		t.Fatalf("expected catalog name snapshot, got %q", created.Items[0].ProductName)
	}

	again, dup, err := s.CreateSale(ctx, sale)
	if err != nil || !dup || again.ID != created.ID {
		t.Fatalf("expected duplicate of %d, got %+v dup=%t err=%v", created.ID, again, dup, err)
	}
	p, _ = s.GetProduct(ctx, plenty)
	if p.Stock != 7 {
		t.Fatalf("expected one decrement to 7, got %d", p.Stock)
	}

	updated, applied, err := s.MutateSale(ctx, store.SaleMutation{
		SaleID: created.ID,
		Editor: "it",
		Action: domain.EditActionCancel,
		At:     time.Now().UTC(),
		Mutate: func(current domain.Sale) (domain.Sale, bool) {
			current.Status = domain.SaleStatusCancelled
			return current, true
		},
	})
	if err != nil || !applied || !updated.IsCancelled() {
		t.Fatalf("expected cancel to apply, got applied=%t err=%v", applied, err)
	}
	logs, err := s.ListSaleEditLogsBySale(ctx, created.ID)
	if err != nil || len(logs) != 1 {
		t.Fatalf("expected one edit log, got %d err=%v", len(logs), err)
	}
	if logs[0].Previous.Status != domain.SaleStatusActive || logs[0].New.Status != domain.SaleStatusCancelled {
		t.Fatalf("unexpected snapshots: %+v", logs[0])
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_edit_logs WHERE sale_id = $1`, created.ID)
	})
}

func TestRegisterSessionSingleOpen(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	if open, err := s.GetOpenRegisterSession(ctx); err == nil {
		t.Skipf("session %d already open in the test database", open.ID)
	}

	session, err := s.OpenRegisterSession(ctx, 5000, time.Now().UTC())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.OpenRegisterSession(ctx, 100, time.Now().UTC()); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second open, got %v", err)
	}
	if _, _, err := s.CloseRegisterSession(ctx, session.ID+1000, 0, time.Now().UTC()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for wrong id, got %v", err)
	}

	closed, record, err := s.CloseRegisterSession(ctx, session.ID, 12500, time.Now().UTC())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.IsOpen || record.FinalBalanceCents != 12500 || record.SessionID != session.ID {
		t.Fatalf("unexpected close result: %+v %+v", closed, record)
	}
	if _, _, err := s.CloseRegisterSession(ctx, session.ID, 0, time.Now().UTC()); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict with nothing open, got %v", err)
	}
}
