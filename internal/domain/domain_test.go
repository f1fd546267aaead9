package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePaymentMethod(t *testing.T) {
	method, err := ParsePaymentMethod("  PIX ")
	require.NoError(t, err)
	assert.Equal(t, PaymentPix, method)

	_, err = ParsePaymentMethod("card")
	assert.Error(t, err, "v1 label must not be silently mapped")

	_, err = ParsePaymentMethod("")
	assert.Error(t, err)
}

func TestChangeDueOnlyForCash(t *testing.T) {
	assert.Equal(t, int64(500), ChangeDue(PaymentCash, 2500, 2000))
	assert.Equal(t, int64(0), ChangeDue(PaymentCash, 1500, 2000))
	assert.Equal(t, int64(0), ChangeDue(PaymentCredit, 2500, 2000))
	assert.Equal(t, int64(0), ChangeDue(PaymentPix, 9999, 2000))
}

func TestApplyPurchaseEligibilityIsMonotonic(t *testing.T) {
	c := Customer{ID: "c1", TotalPurchasesCents: 4999}
	assert.False(t, c.EligibleForRaffle)

	c.ApplyPurchase(1)
	assert.Equal(t, int64(5000), c.TotalPurchasesCents)
	assert.True(t, c.EligibleForRaffle)

	c.TotalPurchasesCents = 0
	c.ApplyPurchase(0)
	assert.True(t, c.EligibleForRaffle)
}

func TestBuildSaleItemsComputesSubtotals(t *testing.T) {
	items, err := BuildSaleItems([]SaleItemInput{
		{ProductID: " p1 ", Name: "Arroz", Quantity: 3, UnitPriceCents: 250},
		{ProductID: "p2", Name: "Feijao", Quantity: 1, UnitPriceCents: 899},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, int64(750), items[0].SubtotalCents)
	assert.Equal(t, int64(1649), SumSubtotals(items))
}

func TestBuildSaleItemsRejectsOutOfRangeLines(t *testing.T) {
	cases := map[string]struct {
		inputs []SaleItemInput
		index  int
		field  string
	}{
		"huge quantity": {
			inputs: []SaleItemInput{{ProductID: "p1", Quantity: 1, UnitPriceCents: 100}, {ProductID: "p1", Quantity: math.MaxInt, UnitPriceCents: 100}},
			index:  1,
			field:  "quantity",
		},
		"zero quantity": {
			inputs: []SaleItemInput{{ProductID: "p1", Quantity: 0, UnitPriceCents: 100}},
			field:  "quantity",
		},
		"price that overflows the subtotal": {
			inputs: []SaleItemInput{{ProductID: "p1", Quantity: 2, UnitPriceCents: math.MaxInt64/2 + 1}},
			field:  "unit_price_cents",
		},
		"negative price": {
			inputs: []SaleItemInput{{ProductID: "p1", Quantity: 1, UnitPriceCents: -1}},
			field:  "unit_price_cents",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			items, err := BuildSaleItems(tc.inputs)
			assert.Nil(t, items)
			assert.True(t, errors.Is(err, ErrOutOfRange))

			var rangeErr *LineRangeError
			require.True(t, errors.As(err, &rangeErr))
			assert.Equal(t, tc.index, rangeErr.Index)
			assert.Equal(t, tc.field, rangeErr.Field)
		})
	}
}

func TestBuildSaleItemsAcceptsLargestBoundedSale(t *testing.T) {
	inputs := make([]SaleItemInput, MaxSaleItems)
	for i := range inputs {
		inputs[i] = SaleItemInput{ProductID: "p1", Quantity: MaxItemQuantity, UnitPriceCents: MaxUnitPriceCents}
	}
	items, err := BuildSaleItems(inputs)
	require.NoError(t, err)

	want := int64(MaxSaleItems) * int64(MaxItemQuantity) * MaxUnitPriceCents
	assert.Equal(t, want, SumSubtotals(items))
	assert.Positive(t, SumSubtotals(items))
}

func TestOptionalJSON(t *testing.T) {
	type payload struct {
		CustomerID Optional[string] `json:"customer_id"`
		SessionID  Optional[int64]  `json:"session_id"`
	}

	out, err := json.Marshal(payload{CustomerID: Some("c-1")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"customer_id":"c-1","session_id":null}`, string(out))

	var in payload
	require.NoError(t, json.Unmarshal([]byte(`{"customer_id":null,"session_id":7}`), &in))
	assert.False(t, in.CustomerID.IsSome())
	id, ok := in.SessionID.Get()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	var missing payload
	require.NoError(t, json.Unmarshal([]byte(`{}`), &missing))
	assert.False(t, missing.SessionID.IsSome())
	assert.Nil(t, missing.SessionID.Ptr())
}

func TestSaleCloneDoesNotShareItems(t *testing.T) {
	original := Sale{Items: []SaleItem{{ProductID: "p1", Quantity: 1}}}
	clone := original.Clone()
	clone.Items[0].Quantity = 9
	assert.Equal(t, 1, original.Items[0].Quantity)
}
