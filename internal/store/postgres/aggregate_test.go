package postgres

import (
	"errors"
	"math"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/store"
)

func TestAggregateQuantitiesSaturatesInsteadOfWrapping(t *testing.T) {
	needed, order, err := aggregateQuantities([]domain.SaleItem{
		{ProductID: "arroz-5kg", Quantity: math.MaxInt},
		{ProductID: "feijao-1kg", Quantity: 3},
		{ProductID: "arroz-5kg", Quantity: math.MaxInt},
		{ProductID: "arroz-5kg", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(order) != 2 || order[0] != "arroz-5kg" || order[1] != "feijao-1kg" {
		t.Fatalf("expected first-seen order, got %v", order)
	}
	if needed["arroz-5kg"] != math.MaxInt {
		t.Fatalf("expected saturated sum, got %d", needed["arroz-5kg"])
	}
	if needed["feijao-1kg"] != 3 {
		t.Fatalf("expected 3 feijao, got %d", needed["feijao-1kg"])
	}
}

func TestAggregateQuantitiesRejectsNonPositiveLines(t *testing.T) {
	_, _, err := aggregateQuantities([]domain.SaleItem{
		{ProductID: "arroz-5kg", Quantity: 1},
		{ProductID: "arroz-5kg", Quantity: 0},
	})
	var verr *store.ValidationError
	if !errors.As(err, &verr) || verr.Field != "items[1].quantity" {
		t.Fatalf("expected validation error on items[1].quantity, got %v", err)
	}
}

func TestTranslateTxErrorMapsSerializationFailures(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		err := translateTxError(&pgconn.PgError{Code: code})
		if !errors.Is(err, store.ErrConflict) {
			t.Fatalf("code %s: expected conflict, got %v", code, err)
		}
	}
	plain := errors.New("boom")
	if got := translateTxError(plain); got != plain {
		t.Fatalf("expected other errors to pass through, got %v", got)
	}
}
