package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// RaffleThresholdCents is the lifetime spend that makes a customer eligible
// for the raffle (R$ 50,00).
const RaffleThresholdCents int64 = 5000

type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
}

type ProductCreateRequest struct {
	ID           string `json:"id" validate:"omitempty,max=64"`
	Name         string `json:"name" validate:"required,max=120"`
	Category     string `json:"category" validate:"required,max=60"`
	PriceCents   int64  `json:"price_cents" validate:"gte=0,lte=100000000"`
	InitialStock int    `json:"initial_stock" validate:"gte=0,lte=1000000000"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Category   *string `json:"category,omitempty" validate:"omitempty,min=1,max=60"`
	PriceCents *int64  `json:"price_cents,omitempty" validate:"omitempty,gte=0,lte=100000000"`
	Stock      *int    `json:"stock,omitempty" validate:"omitempty,gte=0,lte=1000000000"`
}

type Customer struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Phone               string `json:"phone"`
	TotalPurchasesCents int64  `json:"total_purchases_cents"`
	EligibleForRaffle   bool   `json:"eligible_for_raffle"`
}

// ApplyPurchase adds a completed sale to the customer's running total and
// re-evaluates raffle eligibility. Eligibility never goes back to false.
func (c *Customer) ApplyPurchase(totalCents int64) {
	c.TotalPurchasesCents += totalCents
	if c.TotalPurchasesCents >= RaffleThresholdCents {
		c.EligibleForRaffle = true
	}
}

type CustomerCreateRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"max=32"`
}

type CustomerUpdateRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

type SaleStatus string

const (
	SaleStatusActive    SaleStatus = "active"
	SaleStatusCancelled SaleStatus = "cancelled"
)

// SaleItem is a snapshot of a line at sale time. Name and unit price are not
// re-read from the catalog afterwards.
type SaleItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type SaleItemInput struct {
	ProductID      string `json:"product_id" validate:"required"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity" validate:"gt=0,lte=100000"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"gte=0,lte=100000000"`
}

type Sale struct {
	ID              int64            `json:"id"`
	Status          SaleStatus       `json:"status"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
	CreatedAt       time.Time        `json:"created_at"`
	TotalCents      int64            `json:"total_cents"`
	AmountPaidCents int64            `json:"amount_paid_cents"`
	ChangeCents     int64            `json:"change_cents"`
	CustomerID      Optional[string] `json:"customer_id"`
	SessionID       Optional[int64]  `json:"session_id"`
	Items           []SaleItem       `json:"items"`
	IdempotencyKey  string           `json:"idempotency_key,omitempty"`
}

func (s Sale) IsCancelled() bool {
	return s.Status == SaleStatusCancelled
}

// Clone returns a deep copy so snapshots never share an item slice.
func (s Sale) Clone() Sale {
	out := s
	out.Items = append([]SaleItem(nil), s.Items...)
	return out
}

// Input bounds for a sale. They keep quantities inside the INTEGER stock
// column and every derived amount far from int64 overflow. The validate tags
// on the request types repeat these values.
const (
	MaxItemQuantity    = 100_000
	MaxUnitPriceCents  = 100_000_000
	MaxAmountPaidCents = 10_000_000_000
	MaxSaleItems       = 500
)

var ErrOutOfRange = errors.New("out of range")

// LineRangeError names the sale line whose field could not be represented.
type LineRangeError struct {
	Index int
	Field string
}

func (e *LineRangeError) Error() string {
	return fmt.Sprintf("items[%d].%s: %v", e.Index, e.Field, ErrOutOfRange)
}

func (e *LineRangeError) Unwrap() error { return ErrOutOfRange }

// BuildSaleItems turns caller input into line snapshots. Quantities and
// prices outside the sale bounds, or a running total that would overflow,
// are reported as a LineRangeError.
func BuildSaleItems(inputs []SaleItemInput) ([]SaleItem, error) {
	items := make([]SaleItem, 0, len(inputs))
	var total int64
	for i, in := range inputs {
		if in.Quantity <= 0 || in.Quantity > MaxItemQuantity {
			return nil, &LineRangeError{Index: i, Field: "quantity"}
		}
		if in.UnitPriceCents < 0 || in.UnitPriceCents > MaxUnitPriceCents {
			return nil, &LineRangeError{Index: i, Field: "unit_price_cents"}
		}
		qty := int64(in.Quantity)
		if in.UnitPriceCents > math.MaxInt64/qty {
			return nil, &LineRangeError{Index: i, Field: "unit_price_cents"}
		}
		subtotal := qty * in.UnitPriceCents
		if total > math.MaxInt64-subtotal {
			return nil, &LineRangeError{Index: i, Field: "subtotal_cents"}
		}
		total += subtotal

		items = append(items, SaleItem{
			ProductID:      strings.TrimSpace(in.ProductID),
			ProductName:    strings.TrimSpace(in.Name),
			Quantity:       in.Quantity,
			UnitPriceCents: in.UnitPriceCents,
			SubtotalCents:  subtotal,
		})
	}
	return items, nil
}

// SumSubtotals is the only way a sale total is derived.
func SumSubtotals(items []SaleItem) int64 {
	var total int64
	for _, item := range items {
		total += item.SubtotalCents
	}
	return total
}

type RecordSaleRequest struct {
	CustomerID      Optional[string] `json:"customer_id"`
	Items           []SaleItemInput  `json:"items" validate:"required,min=1,max=500,dive"`
	PaymentMethod   string           `json:"payment_method" validate:"required"`
	AmountPaidCents int64            `json:"amount_paid_cents" validate:"gte=0,lte=10000000000"`
	IdempotencyKey  string           `json:"-"`
}

type RecordSaleResult struct {
	Sale      Sale
	Duplicate bool
}

type EditSaleRequest struct {
	PaymentMethod string          `json:"payment_method" validate:"required"`
	Items         []SaleItemInput `json:"items" validate:"required,min=1,max=500,dive"`
}

type EditAction string

const (
	EditActionEdit   EditAction = "edit"
	EditActionCancel EditAction = "cancel"
)

// SaleEditLog is append-only. Previous and New are full snapshots.
type SaleEditLog struct {
	ID        int64      `json:"id"`
	SaleID    int64      `json:"sale_id"`
	Editor    string     `json:"editor"`
	Action    EditAction `json:"action"`
	Previous  Sale       `json:"previous"`
	New       Sale       `json:"new"`
	CreatedAt time.Time  `json:"created_at"`
}

type CashRegisterSession struct {
	ID                int64               `json:"id"`
	OpenTime          time.Time           `json:"open_time"`
	InitialFloatCents int64               `json:"initial_float_cents"`
	IsOpen            bool                `json:"is_open"`
	CloseTime         Optional[time.Time] `json:"close_time"`
	FinalBalanceCents Optional[int64]     `json:"final_balance_cents"`
}

type ClosingRecord struct {
	ID                int64     `json:"id"`
	SessionID         int64     `json:"session_id"`
	CloseTime         time.Time `json:"close_time"`
	FinalBalanceCents int64     `json:"final_balance_cents"`
}

type OpenRegisterRequest struct {
	InitialFloatCents int64 `json:"initial_float_cents" validate:"gte=0"`
}

type CloseRegisterRequest struct {
	SessionID         int64 `json:"session_id"`
	FinalBalanceCents int64 `json:"final_balance_cents"`
}

// PaymentBreakdown is the per-method total of a set of active sales.
// UnbucketedCents holds sales whose method is outside the current set; they
// count towards TotalCents but towards no method.
type PaymentBreakdown struct {
	PerMethod       map[PaymentMethod]int64 `json:"per_method"`
	UnbucketedCents int64                   `json:"unbucketed_cents"`
	TotalCents      int64                   `json:"total_cents"`
}

// SessionReport is the close-out view of one register session. Difference is
// only present once the session has a recorded final balance.
type SessionReport struct {
	Session           CashRegisterSession `json:"session"`
	SalesCount        int                 `json:"sales_count"`
	Breakdown         PaymentBreakdown    `json:"breakdown"`
	GrandTotalCents   int64               `json:"grand_total_cents"`
	ExpectedCashCents int64               `json:"expected_cash_cents"`
	DifferenceCents   Optional[int64]     `json:"difference_cents"`
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type Actor struct {
	Username string
	Role     string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=32"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=admin user"`
}

// UserView is an account without its credential.
type UserView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
