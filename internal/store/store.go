package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"mercadinho/backend/internal/domain"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ValidationError describes malformed input. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError names the first product whose stock could not cover
// the requested quantity. It matches ErrInsufficientStock.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// AddQuantity adds a line quantity to a per-product running sum. The sum
// saturates at math.MaxInt, so it can only grow and never wraps below a
// product's stock.
func AddQuantity(sum int, qty int) int {
	if qty > math.MaxInt-sum {
		return math.MaxInt
	}
	return sum + qty
}

// SaleMutator is evaluated inside the repository's critical section with the
// current state of a sale. Returning false leaves the sale untouched and
// writes no log entry.
type SaleMutator func(current domain.Sale) (next domain.Sale, apply bool)

// SaleMutation describes one audited change to a sale.
type SaleMutation struct {
	SaleID int64
	Editor string
	Action domain.EditAction
	At     time.Time
	Mutate SaleMutator
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomerContact(ctx context.Context, id string, name string, phone string) (*domain.Customer, error)

	// CreateSale decrements stock for every line, stamps the open session,
	// assigns the next sale id and credits the customer, all or nothing.
	// A sale whose idempotency key already exists is returned with
	// duplicate set and no other effect.
	CreateSale(ctx context.Context, sale domain.Sale) (created *domain.Sale, duplicate bool, err error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	ListSalesByCustomer(ctx context.Context, customerID string) ([]domain.Sale, error)
	ListActiveSales(ctx context.Context) ([]domain.Sale, error)
	// MutateSale applies an audited change and appends the edit log in the
	// same unit of work. It returns ErrNotFound for an unknown sale.
	MutateSale(ctx context.Context, mutation SaleMutation) (*domain.Sale, bool, error)
	DeleteSale(ctx context.Context, id int64) error

	ListSaleEditLogsBySale(ctx context.Context, saleID int64) ([]domain.SaleEditLog, error)
	ListSaleEditLogsByEditor(ctx context.Context, editor string) ([]domain.SaleEditLog, error)

	// OpenRegisterSession returns ErrConflict when a session is already open.
	OpenRegisterSession(ctx context.Context, initialFloatCents int64, openedAt time.Time) (*domain.CashRegisterSession, error)
	// CloseRegisterSession returns ErrConflict when nothing is open and
	// ErrNotFound when sessionID is not the open session.
	CloseRegisterSession(ctx context.Context, sessionID int64, finalBalanceCents int64, closedAt time.Time) (*domain.CashRegisterSession, *domain.ClosingRecord, error)
	GetOpenRegisterSession(ctx context.Context) (*domain.CashRegisterSession, error)
	GetRegisterSession(ctx context.Context, id int64) (*domain.CashRegisterSession, error)
	ListRegisterSessions(ctx context.Context) ([]domain.CashRegisterSession, error)
	ListClosingRecords(ctx context.Context) ([]domain.ClosingRecord, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
