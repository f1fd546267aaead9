package memory

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/store"
	"mercadinho/backend/internal/xid"
)

// Store keeps every entity behind one lock, so recording a sale, mutating it
// and opening or closing the register are each a single critical section.
type Store struct {
	mu sync.RWMutex

	products  map[string]domain.Product
	customers map[string]domain.Customer

	sales       map[int64]domain.Sale
	salesByIdem map[string]int64
	editLogs    []domain.SaleEditLog

	sessions       map[int64]domain.CashRegisterSession
	openSessionID  int64
	closingRecords []domain.ClosingRecord

	users map[string]domain.UserAccount

	lastSaleID    int64
	lastLogID     int64
	lastSessionID int64
	lastClosingID int64
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:    make(map[string]domain.Product),
		customers:   make(map[string]domain.Customer),
		sales:       make(map[int64]domain.Sale),
		salesByIdem: make(map[string]int64),
		sessions:    make(map[int64]domain.CashRegisterSession),
		users:       make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with a small catalog, two customers and the
// default dev accounts.
func NewSeeded() *Store {
	s := New()
	for _, p := range []domain.Product{
		{ID: "arroz-5kg", Name: "Arroz Tipo 1 5kg", Category: "mercearia", PriceCents: 2890},
		{ID: "feijao-1kg", Name: "Feijao Carioca 1kg", Category: "mercearia", PriceCents: 899},
		{ID: "cafe-500g", Name: "Cafe Torrado 500g", Category: "mercearia", PriceCents: 1790},
		{ID: "leite-1l", Name: "Leite Integral 1L", Category: "laticinios", PriceCents: 549},
		{ID: "pao-forma", Name: "Pao de Forma", Category: "padaria", PriceCents: 899},
		{ID: "refri-2l", Name: "Refrigerante 2L", Category: "bebidas", PriceCents: 999},
		{ID: "agua-500ml", Name: "Agua Mineral 500ml", Category: "bebidas", PriceCents: 250},
		{ID: "sabao-po", Name: "Sabao em Po 1kg", Category: "limpeza", PriceCents: 1450},
	} {
		p.Stock = 120
		s.products[p.ID] = p
	}
	for _, c := range []domain.Customer{
		{ID: "cus-maria", Name: "Maria Silva", Phone: "+55 11 91234-5678"},
		{ID: "cus-joao", Name: "Joao Souza", Phone: "+55 21 99876-5432"},
	} {
		s.customers[c.ID] = c
	}
	s.users = seedUsers()
	return s
}

// seedUsers builds the dev accounts. Passwords come from SEED_ADMIN_PASSWORD
// and SEED_USER_PASSWORD, with fixed dev defaults when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	userPwd := envOr("SEED_USER_PASSWORD", "caixa123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_USER_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_USER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := make(map[string]domain.UserAccount, 2)
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"caixa", userPwd, domain.RoleUser},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := strings.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.Invalid("product", "requires a name and non-negative price and stock")
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("product %s: %w", product.ID, store.ErrConflict)
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Stock < 0 || product.PriceCents < 0 {
		return nil, store.Invalid("product", "price and stock must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.Invalid("name", "is required")
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	customer.TotalPurchasesCents = 0
	customer.EligibleForRaffle = false

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[customer.ID]; exists {
		return nil, fmt.Errorf("customer %s: %w", customer.ID, store.ErrConflict)
	}
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) UpdateCustomerContact(_ context.Context, id string, name string, phone string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c.Name = name
	c.Phone = phone
	s.customers[id] = c
	return &c, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, bool, error) {
	if len(sale.Items) == 0 {
		return nil, false, store.Invalid("items", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.IdempotencyKey != "" {
		if id, ok := s.salesByIdem[sale.IdempotencyKey]; ok {
			existing := s.sales[id].Clone()
			return &existing, true, nil
		}
	}

	// Validate every line before touching stock so a failure leaves no trace.
	needed := make(map[string]int, len(sale.Items))
	order := make([]string, 0, len(sale.Items))
	for i, item := range sale.Items {
		product, ok := s.products[item.ProductID]
		if !ok {
			return nil, false, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		if item.Quantity <= 0 {
			return nil, false, store.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be greater than 0")
		}
		if sale.Items[i].ProductName == "" {
			sale.Items[i].ProductName = product.Name
		}
		if _, seen := needed[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		needed[item.ProductID] = store.AddQuantity(needed[item.ProductID], item.Quantity)
	}
	for _, id := range order {
		product := s.products[id]
		if product.Stock < needed[id] {
			return nil, false, &store.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   needed[id],
				Available:   product.Stock,
			}
		}
	}

	var customer *domain.Customer
	if customerID, ok := sale.CustomerID.Get(); ok {
		c, exists := s.customers[customerID]
		if !exists {
			return nil, false, fmt.Errorf("customer %s: %w", customerID, store.ErrNotFound)
		}
		customer = &c
	}

	for _, id := range order {
		product := s.products[id]
		product.Stock -= needed[id]
		s.products[id] = product
	}

	sale.SessionID = domain.None[int64]()
	if s.openSessionID != 0 {
		sale.SessionID = domain.Some(s.openSessionID)
	}
	s.lastSaleID++
	sale.ID = s.lastSaleID
	s.sales[sale.ID] = sale.Clone()
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = sale.ID
	}

	if customer != nil {
		customer.ApplyPurchase(sale.TotalCents)
		s.customers[customer.ID] = *customer
	}

	created := sale.Clone()
	return &created, false, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := sale.Clone()
	return &out, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	return s.filterSales(func(domain.Sale) bool { return true }), nil
}

func (s *Store) ListSalesByCustomer(_ context.Context, customerID string) ([]domain.Sale, error) {
	return s.filterSales(func(sale domain.Sale) bool {
		id, ok := sale.CustomerID.Get()
		return ok && id == customerID
	}), nil
}

func (s *Store) ListActiveSales(_ context.Context) ([]domain.Sale, error) {
	return s.filterSales(func(sale domain.Sale) bool {
		return sale.Status == domain.SaleStatusActive
	}), nil
}

func (s *Store) filterSales(keep func(domain.Sale) bool) []domain.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if keep(sale) {
			sales = append(sales, sale.Clone())
		}
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return sales
}

func (s *Store) MutateSale(_ context.Context, m store.SaleMutation) (*domain.Sale, bool, error) {
	if m.Mutate == nil {
		return nil, false, store.Invalid("mutation", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sales[m.SaleID]
	if !ok {
		return nil, false, store.ErrNotFound
	}

	next, apply := m.Mutate(current.Clone())
	if !apply {
		return nil, false, nil
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt

	s.lastLogID++
	s.editLogs = append(s.editLogs, domain.SaleEditLog{
		ID:        s.lastLogID,
		SaleID:    current.ID,
		Editor:    m.Editor,
		Action:    m.Action,
		Previous:  current.Clone(),
		New:       next.Clone(),
		CreatedAt: m.At,
	})
	s.sales[current.ID] = next.Clone()

	updated := next.Clone()
	return &updated, true, nil
}

func (s *Store) DeleteSale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return store.ErrNotFound
	}
	if sale.IdempotencyKey != "" {
		delete(s.salesByIdem, sale.IdempotencyKey)
	}
	delete(s.sales, id)
	return nil
}

func (s *Store) ListSaleEditLogsBySale(_ context.Context, saleID int64) ([]domain.SaleEditLog, error) {
	return s.filterLogs(func(entry domain.SaleEditLog) bool { return entry.SaleID == saleID }), nil
}

func (s *Store) ListSaleEditLogsByEditor(_ context.Context, editor string) ([]domain.SaleEditLog, error) {
	return s.filterLogs(func(entry domain.SaleEditLog) bool { return entry.Editor == editor }), nil
}

func (s *Store) filterLogs(keep func(domain.SaleEditLog) bool) []domain.SaleEditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.SaleEditLog, 0, 8)
	for _, entry := range s.editLogs {
		if keep(entry) {
			entry.Previous = entry.Previous.Clone()
			entry.New = entry.New.Clone()
			logs = append(logs, entry)
		}
	}
	return logs
}

func (s *Store) OpenRegisterSession(_ context.Context, initialFloatCents int64, openedAt time.Time) (*domain.CashRegisterSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openSessionID != 0 {
		return nil, fmt.Errorf("register session %d already open: %w", s.openSessionID, store.ErrConflict)
	}

	s.lastSessionID++
	session := domain.CashRegisterSession{
		ID:                s.lastSessionID,
		OpenTime:          openedAt,
		InitialFloatCents: initialFloatCents,
		IsOpen:            true,
	}
	s.sessions[session.ID] = session
	s.openSessionID = session.ID
	return &session, nil
}

func (s *Store) CloseRegisterSession(_ context.Context, sessionID int64, finalBalanceCents int64, closedAt time.Time) (*domain.CashRegisterSession, *domain.ClosingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openSessionID == 0 {
		return nil, nil, fmt.Errorf("no register session open: %w", store.ErrConflict)
	}
	if s.openSessionID != sessionID {
		return nil, nil, fmt.Errorf("register session %d is not the open session: %w", sessionID, store.ErrNotFound)
	}

	session := s.sessions[sessionID]
	session.IsOpen = false
	session.CloseTime = domain.Some(closedAt)
	session.FinalBalanceCents = domain.Some(finalBalanceCents)
	s.sessions[sessionID] = session
	s.openSessionID = 0

	s.lastClosingID++
	record := domain.ClosingRecord{
		ID:                s.lastClosingID,
		SessionID:         sessionID,
		CloseTime:         closedAt,
		FinalBalanceCents: finalBalanceCents,
	}
	s.closingRecords = append(s.closingRecords, record)
	return &session, &record, nil
}

func (s *Store) GetOpenRegisterSession(_ context.Context) (*domain.CashRegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.openSessionID == 0 {
		return nil, store.ErrNotFound
	}
	session := s.sessions[s.openSessionID]
	return &session, nil
}

func (s *Store) GetRegisterSession(_ context.Context, id int64) (*domain.CashRegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &session, nil
}

func (s *Store) ListRegisterSessions(_ context.Context) ([]domain.CashRegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]domain.CashRegisterSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	slices.SortFunc(sessions, func(a, b domain.CashRegisterSession) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return sessions, nil
}

func (s *Store) ListClosingRecords(_ context.Context) ([]domain.ClosingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.closingRecords), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.Invalid("user", "requires username and password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return fmt.Errorf("user %s: %w", username, store.ErrConflict)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.Invalid("user", "requires username and password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}
