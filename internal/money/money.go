// Package money converts integer cent amounts to and from the decimal strings
// used by presentation layers (CSV exports, operator input). Everything
// inside the service works in int64 cents.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Cents int64

var ErrInvalidAmount = errors.New("invalid amount")

// FromDecimalString parses "50", "50.5" or "50.50" into cents. A comma is
// accepted as the decimal separator. More than two fractional digits is an
// error rather than a silent rounding.
func FromDecimalString(raw string) (Cents, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	trimmed = strings.Replace(trimmed, ",", ".", 1)

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidAmount, raw)
	}
	return Cents(d.Shift(2).IntPart()), nil
}

func (c Cents) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(c)).Shift(-2)
}

// String renders the amount with a dot separator, e.g. "50.00".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Format renders the amount with a currency prefix and comma separator,
// e.g. "R$ 50,00".
func (c Cents) Format(prefix string) string {
	text := strings.Replace(c.String(), ".", ",", 1)
	if prefix == "" {
		return text
	}
	return prefix + " " + text
}
