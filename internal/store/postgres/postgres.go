package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mercadinho/backend/internal/domain"
	"mercadinho/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, stock
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Stock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price_cents, stock
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.Invalid("product", "requires an id, a name and non-negative price and stock")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price_cents, stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
	`, product.ID, product.Name, product.Category, product.PriceCents, product.Stock)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("product %s: %w", product.ID, store.ErrConflict)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Stock < 0 || product.PriceCents < 0 {
		return nil, store.Invalid("product", "price and stock must not be negative")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, stock = $5, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.PriceCents, product.Stock)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}

	updated := product
	return &updated, nil
}

const customerColumns = `id, name, phone, total_purchases_cents, eligible_for_raffle`

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.TotalPurchasesCents, &c.EligibleForRaffle)
	return c, err
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" {
		return nil, store.Invalid("customer", "requires an id and a name")
	}
	customer.TotalPurchasesCents = 0
	customer.EligibleForRaffle = false

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, total_purchases_cents, eligible_for_raffle, created_at, updated_at)
		VALUES ($1,$2,$3,0,false,now(),now())
	`, customer.ID, customer.Name, customer.Phone)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("customer %s: %w", customer.ID, store.ErrConflict)
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) UpdateCustomerContact(ctx context.Context, id string, name string, phone string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+customerColumns, id, name, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

const saleColumns = `id, status, payment_method, created_at, total_cents, amount_paid_cents,
	change_cents, customer_id, session_id, items, idempotency_key`

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		sale       domain.Sale
		customerID sql.NullString
		sessionID  sql.NullInt64
		items      []byte
		idemKey    sql.NullString
	)
	err := row.Scan(
		&sale.ID,
		&sale.Status,
		&sale.PaymentMethod,
		&sale.CreatedAt,
		&sale.TotalCents,
		&sale.AmountPaidCents,
		&sale.ChangeCents,
		&customerID,
		&sessionID,
		&items,
		&idemKey,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if customerID.Valid {
		sale.CustomerID = domain.Some(customerID.String)
	}
	if sessionID.Valid {
		sale.SessionID = domain.Some(sessionID.Int64)
	}
	sale.IdempotencyKey = idemKey.String
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return domain.Sale{}, fmt.Errorf("decode items of sale %d: %w", sale.ID, err)
	}
	return sale, nil
}

func (s *Store) querySales(ctx context.Context, where string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// CreateSale runs the whole sale in one serializable transaction. Product and
// customer rows are locked before any write, so a failing line leaves stock,
// customer totals and the sales table untouched.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, bool, error) {
	if len(sale.Items) == 0 {
		return nil, false, store.Invalid("items", "must not be empty")
	}

	if sale.IdempotencyKey != "" {
		existing, err := s.saleByIdempotencyKey(ctx, sale.IdempotencyKey)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	needed, order, err := aggregateQuantities(sale.Items)
	if err != nil {
		return nil, false, err
	}
	products, err := lockProducts(ctx, tx, order)
	if err != nil {
		return nil, false, translateTxError(err)
	}

	for i, item := range sale.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, false, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		if sale.Items[i].ProductName == "" {
			sale.Items[i].ProductName = product.Name
		}
	}
	for _, id := range order {
		product := products[id]
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
		c, err := scanCustomer(tx.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, customerID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, false, fmt.Errorf("customer %s: %w", customerID, store.ErrNotFound)
			}
			return nil, false, translateTxError(err)
		}
		customer = &c
	}

	for _, id := range order {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = now()
			WHERE id = $1
		`, id, needed[id]); err != nil {
			return nil, false, translateTxError(err)
		}
	}

	var openSession sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT id FROM register_sessions WHERE is_open`).Scan(&openSession)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, translateTxError(err)
	}
	sale.SessionID = domain.None[int64]()
	if openSession.Valid {
		sale.SessionID = domain.Some(openSession.Int64)
	}

	items, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, false, err
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (
			status, payment_method, created_at, total_cents, amount_paid_cents,
			change_cents, customer_id, session_id, items, idempotency_key
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, sale.Status, sale.PaymentMethod, sale.CreatedAt, sale.TotalCents, sale.AmountPaidCents,
		sale.ChangeCents, sale.CustomerID.Ptr(), sale.SessionID.Ptr(), items, nullIfEmpty(sale.IdempotencyKey),
	).Scan(&sale.ID)
	if err != nil {
		if isUniqueViolation(err) && sale.IdempotencyKey != "" {
			_ = tx.Rollback()
			existing, lookupErr := s.saleByIdempotencyKey(ctx, sale.IdempotencyKey)
			if lookupErr == nil {
				return existing, true, nil
			}
		}
		return nil, false, translateTxError(err)
	}

	if customer != nil {
		customer.ApplyPurchase(sale.TotalCents)
		if _, err := tx.ExecContext(ctx, `
			UPDATE customers
			SET total_purchases_cents = $2, eligible_for_raffle = $3, updated_at = now()
			WHERE id = $1
		`, customer.ID, customer.TotalPurchasesCents, customer.EligibleForRaffle); err != nil {
			return nil, false, translateTxError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, translateTxError(err)
	}
	created := sale.Clone()
	return &created, false, nil
}

func lockProducts(ctx context.Context, tx *sql.Tx, ids []string) (map[string]domain.Product, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, category, price_cents, stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, sorted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Stock); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// aggregateQuantities sums repeated lines per product, keeping first-seen
// order so stock errors name the first short product.
func aggregateQuantities(items []domain.SaleItem) (map[string]int, []string, error) {
	needed := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, nil, store.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be greater than 0")
		}
		if _, seen := needed[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		needed[item.ProductID] = store.AddQuantity(needed[item.ProductID], item.Quantity)
	}
	return needed, order, nil
}

func (s *Store) saleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.querySales(ctx, "")
}

func (s *Store) ListSalesByCustomer(ctx context.Context, customerID string) ([]domain.Sale, error) {
	return s.querySales(ctx, "WHERE customer_id = $1", customerID)
}

func (s *Store) ListActiveSales(ctx context.Context) ([]domain.Sale, error) {
	return s.querySales(ctx, "WHERE status = $1", domain.SaleStatusActive)
}

func (s *Store) MutateSale(ctx context.Context, m store.SaleMutation) (*domain.Sale, bool, error) {
	if m.Mutate == nil {
		return nil, false, store.Invalid("mutation", "is required")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanSale(tx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, m.SaleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, store.ErrNotFound
		}
		return nil, false, err
	}

	next, apply := m.Mutate(current.Clone())
	if !apply {
		return nil, false, nil
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt

	items, err := json.Marshal(next.Items)
	if err != nil {
		return nil, false, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, payment_method = $3, total_cents = $4, change_cents = $5, items = $6
		WHERE id = $1
	`, next.ID, next.Status, next.PaymentMethod, next.TotalCents, next.ChangeCents, items); err != nil {
		return nil, false, translateTxError(err)
	}

	previousJSON, err := json.Marshal(current)
	if err != nil {
		return nil, false, err
	}
	nextJSON, err := json.Marshal(next)
	if err != nil {
		return nil, false, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sale_edit_logs (sale_id, editor, action, previous, new, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, current.ID, m.Editor, m.Action, previousJSON, nextJSON, m.At); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, translateTxError(err)
	}
	return &next, true, nil
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) ListSaleEditLogsBySale(ctx context.Context, saleID int64) ([]domain.SaleEditLog, error) {
	return s.queryEditLogs(ctx, "WHERE sale_id = $1", saleID)
}

func (s *Store) ListSaleEditLogsByEditor(ctx context.Context, editor string) ([]domain.SaleEditLog, error) {
	return s.queryEditLogs(ctx, "WHERE editor = $1", editor)
}

func (s *Store) queryEditLogs(ctx context.Context, where string, args ...any) ([]domain.SaleEditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, editor, action, previous, new, created_at
		FROM sale_edit_logs `+where+`
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.SaleEditLog, 0, 16)
	for rows.Next() {
		var (
			entry    domain.SaleEditLog
			previous []byte
			next     []byte
		)
		if err := rows.Scan(&entry.ID, &entry.SaleID, &entry.Editor, &entry.Action, &previous, &next, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(previous, &entry.Previous); err != nil {
			return nil, fmt.Errorf("decode edit log %d: %w", entry.ID, err)
		}
		if err := json.Unmarshal(next, &entry.New); err != nil {
			return nil, fmt.Errorf("decode edit log %d: %w", entry.ID, err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

const sessionColumns = `id, open_time, initial_float_cents, is_open, close_time, final_balance_cents`

func scanSession(row rowScanner) (domain.CashRegisterSession, error) {
	var (
		session   domain.CashRegisterSession
		closeTime sql.NullTime
		final     sql.NullInt64
	)
	if err := row.Scan(&session.ID, &session.OpenTime, &session.InitialFloatCents, &session.IsOpen, &closeTime, &final); err != nil {
		return domain.CashRegisterSession{}, err
	}
	session.OpenTime = session.OpenTime.UTC()
	if closeTime.Valid {
		session.CloseTime = domain.Some(closeTime.Time.UTC())
	}
	if final.Valid {
		session.FinalBalanceCents = domain.Some(final.Int64)
	}
	return session, nil
}

// OpenRegisterSession relies on the partial unique index over open sessions;
// two concurrent opens cannot both commit.
func (s *Store) OpenRegisterSession(ctx context.Context, initialFloatCents int64, openedAt time.Time) (*domain.CashRegisterSession, error) {
	if initialFloatCents < 0 {
		return nil, store.Invalid("initial_float_cents", "must not be negative")
	}

	session, err := scanSession(s.db.QueryRowContext(ctx, `
		INSERT INTO register_sessions (open_time, initial_float_cents, is_open)
		VALUES ($1,$2,true)
		RETURNING `+sessionColumns, openedAt, initialFloatCents))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("register session already open: %w", store.ErrConflict)
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) CloseRegisterSession(ctx context.Context, sessionID int64, finalBalanceCents int64, closedAt time.Time) (*domain.CashRegisterSession, *domain.ClosingRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var openID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM register_sessions WHERE is_open FOR UPDATE`).Scan(&openID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("no register session open: %w", store.ErrConflict)
		}
		return nil, nil, err
	}
	if openID != sessionID {
		return nil, nil, fmt.Errorf("register session %d is not the open session: %w", sessionID, store.ErrNotFound)
	}

	session, err := scanSession(tx.QueryRowContext(ctx, `
		UPDATE register_sessions
		SET is_open = false, close_time = $2, final_balance_cents = $3
		WHERE id = $1 AND is_open
		RETURNING `+sessionColumns, sessionID, closedAt, finalBalanceCents))
	if err != nil {
		return nil, nil, translateTxError(err)
	}

	record := domain.ClosingRecord{
		SessionID:         sessionID,
		CloseTime:         closedAt.UTC(),
		FinalBalanceCents: finalBalanceCents,
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO closing_records (session_id, close_time, final_balance_cents)
		VALUES ($1,$2,$3)
		RETURNING id
	`, record.SessionID, record.CloseTime, record.FinalBalanceCents).Scan(&record.ID); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, translateTxError(err)
	}
	return &session, &record, nil
}

func (s *Store) GetOpenRegisterSession(ctx context.Context) (*domain.CashRegisterSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM register_sessions WHERE is_open`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) GetRegisterSession(ctx context.Context, id int64) (*domain.CashRegisterSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM register_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) ListRegisterSessions(ctx context.Context) ([]domain.CashRegisterSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM register_sessions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.CashRegisterSession, 0, 32)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) ListClosingRecords(ctx context.Context) ([]domain.ClosingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, close_time, final_balance_cents
		FROM closing_records
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ClosingRecord, 0, 32)
	for rows.Next() {
		var r domain.ClosingRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.CloseTime, &r.FinalBalanceCents); err != nil {
			return nil, err
		}
		r.CloseTime = r.CloseTime.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.Invalid("user", "requires username and password")
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Username, store.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.Invalid("user", "requires username and password")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// translateTxError reports serialization failures as conflicts. The caller
// may retry; with an idempotency key a retried sale is never recorded twice.
func translateTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("concurrent update, retry: %w", store.ErrConflict)
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
