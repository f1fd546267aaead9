package domain

import (
	"fmt"
	"strings"
)

// PaymentMethod is the label recorded on a sale. No money moves through it.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCredit PaymentMethod = "credit"
	PaymentDebit  PaymentMethod = "debit"
	PaymentPix    PaymentMethod = "pix"
)

// PaymentMethodsVersion is bumped whenever the closed set below changes shape.
// Version 1 had a single "card" label; version 2 split it into credit and debit
// and added pix.
const PaymentMethodsVersion = 2

var validPaymentMethods = []PaymentMethod{
	PaymentCash,
	PaymentCredit,
	PaymentDebit,
	PaymentPix,
}

// PaymentMethods returns the accepted methods in reporting order.
func PaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(validPaymentMethods))
	copy(out, validPaymentMethods)
	return out
}

func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value belongs to the current set.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsChangeGiving reports whether paying more than the total produces change.
func (p PaymentMethod) IsChangeGiving() bool {
	return p == PaymentCash
}

// ParsePaymentMethod converts raw input into a PaymentMethod. Unknown labels,
// including ones from older versions of the set, are rejected.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := PaymentMethod(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("unknown payment method %q (v%d accepts cash, credit, debit, pix)", value, PaymentMethodsVersion)
}

// ChangeDue returns the change owed for a payment. Only change-giving methods
// ever return a positive amount.
func ChangeDue(method PaymentMethod, amountPaidCents int64, totalCents int64) int64 {
	if !method.IsChangeGiving() {
		return 0
	}
	if amountPaidCents <= totalCents {
		return 0
	}
	return amountPaidCents - totalCents
}
