package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.Repository using SQLite. Prices, accounts,
// holdings, orders, and the trade ledger all live in one file so settlement
// can run as a single transaction.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/paper_trader.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL for concurrent readers; immediate transactions so settlement takes
	// the write lock up front instead of failing mid-commit
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// single connection: the go driver serializes access, SQLite does the rest
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// Monetary columns are TEXT: decimals round-trip exactly, REAL would not.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		cash_balance TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holdings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		quantity TEXT NOT NULL,
		avg_price TEXT NOT NULL,
		UNIQUE (user_id, symbol)
	);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		order_type TEXT NOT NULL,
		side TEXT NOT NULL,
		status TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT,
		client_order_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		holding_id INTEGER,
		tx_type TEXT NOT NULL,
		symbol TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		execution_time TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stock_prices (
		symbol TEXT NOT NULL,
		instant TIMESTAMP NOT NULL,
		open TEXT NOT NULL,
		high TEXT NOT NULL,
		low TEXT NOT NULL,
		close TEXT NOT NULL,
		volume INTEGER NOT NULL,
		PRIMARY KEY (symbol, instant)
	);

	CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders (user_id, status);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status);
	CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions (user_id, execution_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- Transactions ---

type txKey struct{}

// dbtx is the subset of *sql.DB and *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// conn returns the transaction carried in ctx, or the plain connection.
func (r *Repository) conn(ctx context.Context) dbtx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return r.db
}

// WithinTx runs fn inside one database transaction. Repository calls made
// with the context passed to fn join the transaction; an error from fn rolls
// everything back.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		// already inside a transaction, just join it
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrDBConnection, err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error(ctx, rbErr, "transaction rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w: %w", ports.ErrUpdateFailed, err)
	}
	return nil
}

// --- PricePointRepository Implementation ---

// UpsertPricePoint inserts a bar, replacing any bar already stored for the
// same (symbol, instant) key so replays are harmless.
func (r *Repository) UpsertPricePoint(ctx context.Context, p domain.PricePoint) error {
	const query = `
	INSERT INTO stock_prices (symbol, instant, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, instant) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low,
		close = excluded.close, volume = excluded.volume`

	_, err := r.conn(ctx).ExecContext(ctx, query,
		p.Symbol, p.Instant.UTC(), p.Open.String(), p.High.String(), p.Low.String(), p.Close.String(), p.Volume)
	if err != nil {
		return fmt.Errorf("failed to upsert price point for %s: %w", p.Symbol, err)
	}
	return nil
}

// PricePointsInRange returns bars for a symbol within [start, end], oldest first.
func (r *Repository) PricePointsInRange(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	const query = `
	SELECT symbol, instant, open, high, low, close, volume
	FROM stock_prices
	WHERE symbol = ? AND instant >= ? AND instant <= ?
	ORDER BY instant ASC`

	rows, err := r.conn(ctx).QueryContext(ctx, query, symbol, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query price points for %s: %w", symbol, err)
	}
	defer rows.Close()

	points := make([]domain.PricePoint, 0)
	for rows.Next() {
		p, err := scanPricePoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price point rows: %w", err)
	}
	return points, nil
}

// --- UserRepository Implementation ---

// GetUser retrieves an account by ID.
func (r *Repository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	const query = `SELECT id, username, cash_balance FROM users WHERE id = ?`

	u, err := scanUser(r.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, ports.ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to query user %d: %w", id, err)
	}
	return u, nil
}

// CreateUser saves a new account and returns its assigned ID. A zero balance
// is replaced with the default starting cash.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) (int64, error) {
	if user.CashBalance.IsZero() {
		user.CashBalance = domain.DefaultStartingCash
	}
	const query = `INSERT INTO users (username, cash_balance) VALUES (?, ?)`
	result, err := r.conn(ctx).ExecContext(ctx, query, user.Username, user.CashBalance.String())
	if err != nil {
		return 0, fmt.Errorf("failed to insert user %s: %w", user.Username, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for user %s: %w", user.Username, err)
	}
	user.ID = id
	r.logger.Debug(ctx, "User created", map[string]interface{}{"userID": id, "username": user.Username})
	return id, nil
}

// UpdateCashBalance writes the user's current balance.
func (r *Repository) UpdateCashBalance(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users SET cash_balance = ? WHERE id = ?`

	result, err := r.conn(ctx).ExecContext(ctx, query, user.CashBalance.String(), user.ID)
	if err != nil {
		return fmt.Errorf("failed to update balance for user %d: %w", user.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for user %d: %w", user.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("user %d not found for balance update: %w", user.ID, ports.ErrUserNotFound)
	}
	return nil
}

// --- HoldingRepository Implementation ---

// GetHolding retrieves a user's position in one symbol.
func (r *Repository) GetHolding(ctx context.Context, userID int64, symbol string) (*domain.Holding, error) {
	const query = `SELECT id, user_id, symbol, quantity, avg_price FROM holdings WHERE user_id = ? AND symbol = ?`

	h, err := scanHolding(r.conn(ctx).QueryRowContext(ctx, query, userID, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("holding %s for user %d: %w", symbol, userID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query holding %s for user %d: %w", symbol, userID, err)
	}
	return h, nil
}

// GetHoldings retrieves all of a user's positions.
func (r *Repository) GetHoldings(ctx context.Context, userID int64) ([]*domain.Holding, error) {
	const query = `SELECT id, user_id, symbol, quantity, avg_price FROM holdings WHERE user_id = ? ORDER BY symbol`

	rows, err := r.conn(ctx).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings for user %d: %w", userID, err)
	}
	defer rows.Close()

	holdings := make([]*domain.Holding, 0)
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holding rows: %w", err)
	}
	return holdings, nil
}

// SaveHolding inserts or updates the position keyed by (user, symbol).
func (r *Repository) SaveHolding(ctx context.Context, h *domain.Holding) (int64, error) {
	const query = `
	INSERT INTO holdings (user_id, symbol, quantity, avg_price)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (user_id, symbol) DO UPDATE SET
		quantity = excluded.quantity, avg_price = excluded.avg_price`

	_, err := r.conn(ctx).ExecContext(ctx, query, h.UserID, h.Symbol, h.Quantity.String(), h.AvgPrice.String())
	if err != nil {
		return 0, fmt.Errorf("failed to save holding %s for user %d: %w", h.Symbol, h.UserID, err)
	}

	// the upsert may have hit the conflict branch, so read the real row id back
	var id int64
	err = r.conn(ctx).QueryRowContext(ctx,
		`SELECT id FROM holdings WHERE user_id = ? AND symbol = ?`, h.UserID, h.Symbol).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve holding ID for %s user %d: %w", h.Symbol, h.UserID, err)
	}
	h.ID = id
	return id, nil
}

// DeleteHolding removes a fully sold-off position.
func (r *Repository) DeleteHolding(ctx context.Context, id int64) error {
	result, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM holdings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete holding %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for holding %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("holding %d not found for delete: %w", id, ports.ErrNotFound)
	}
	return nil
}

// HeldSymbols lists every symbol with an open position across all users.
func (r *Repository) HeldSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, `SELECT DISTINCT symbol FROM holdings ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query held symbols: %w", err)
	}
	defer rows.Close()

	symbols := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan held symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating held symbol rows: %w", err)
	}
	return symbols, nil
}

// --- OrderRepository Implementation ---

// CreateOrder saves a new order and returns its assigned ID.
func (r *Repository) CreateOrder(ctx context.Context, o *domain.Order) (int64, error) {
	const query = `
	INSERT INTO orders (user_id, symbol, order_type, side, status, quantity, price, client_order_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var price sql.NullString
	if !o.Price.IsZero() {
		price = sql.NullString{String: o.Price.String(), Valid: true}
	}

	result, err := r.conn(ctx).ExecContext(ctx, query,
		o.UserID, o.Symbol, o.Type, o.Side, o.Status, o.Quantity.String(), price, o.ClientOrderID, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order for user %d symbol %s: %w", o.UserID, o.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for order: %w", err)
	}
	o.ID = id
	r.logger.Debug(ctx, "Order created", map[string]interface{}{"orderID": id, "symbol": o.Symbol, "type": o.Type, "side": o.Side})
	return id, nil
}

// GetOrder retrieves an order by ID.
func (r *Repository) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	const query = `
	SELECT id, user_id, symbol, order_type, side, status, quantity, COALESCE(price, '0'), COALESCE(client_order_id, ''), created_at, updated_at
	FROM orders WHERE id = ?`

	o, err := scanOrder(r.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", id, ports.ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed to query order %d: %w", id, err)
	}
	return o, nil
}

// GetOrdersByUser retrieves all of a user's orders, newest first.
func (r *Repository) GetOrdersByUser(ctx context.Context, userID int64) ([]*domain.Order, error) {
	const query = `
	SELECT id, user_id, symbol, order_type, side, status, quantity, COALESCE(price, '0'), COALESCE(client_order_id, ''), created_at, updated_at
	FROM orders WHERE user_id = ? ORDER BY created_at DESC`

	return r.queryOrders(ctx, query, userID)
}

// GetOrdersByUserAndStatus retrieves a user's orders in the given state, newest first.
func (r *Repository) GetOrdersByUserAndStatus(ctx context.Context, userID int64, status domain.OrderStatus) ([]*domain.Order, error) {
	const query = `
	SELECT id, user_id, symbol, order_type, side, status, quantity, COALESCE(price, '0'), COALESCE(client_order_id, ''), created_at, updated_at
	FROM orders WHERE user_id = ? AND status = ? ORDER BY created_at DESC`

	return r.queryOrders(ctx, query, userID, status)
}

// GetOrdersByStatus retrieves all orders in the given state, oldest first so
// sweeps execute in arrival order.
func (r *Repository) GetOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	const query = `
	SELECT id, user_id, symbol, order_type, side, status, quantity, COALESCE(price, '0'), COALESCE(client_order_id, ''), created_at, updated_at
	FROM orders WHERE status = ? ORDER BY created_at ASC`

	return r.queryOrders(ctx, query, status)
}

// UpdateOrder persists status, price, and updated-at changes.
func (r *Repository) UpdateOrder(ctx context.Context, o *domain.Order) error {
	const query = `UPDATE orders SET status = ?, price = ?, updated_at = ? WHERE id = ?`

	var price sql.NullString
	if !o.Price.IsZero() {
		price = sql.NullString{String: o.Price.String(), Valid: true}
	}

	result, err := r.conn(ctx).ExecContext(ctx, query, o.Status, price, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("failed to update order %d: %w", o.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for order %d: %w", o.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("order %d not found for update: %w", o.ID, ports.ErrOrderNotFound)
	}
	return nil
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

// --- TransactionRepository Implementation ---

// CreateTransaction appends a ledger entry and returns its assigned ID.
func (r *Repository) CreateTransaction(ctx context.Context, t *domain.Transaction) (int64, error) {
	const query = `
	INSERT INTO transactions (user_id, holding_id, tx_type, symbol, quantity, price, total_amount, execution_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var holdingID sql.NullInt64
	if t.HoldingID != nil {
		holdingID = sql.NullInt64{Int64: *t.HoldingID, Valid: true}
	}

	result, err := r.conn(ctx).ExecContext(ctx, query,
		t.UserID, holdingID, t.Type, t.Symbol, t.Quantity.String(), t.Price.String(), t.TotalAmount.String(), t.ExecutionTime)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction for user %d symbol %s: %w", t.UserID, t.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for transaction: %w", err)
	}
	t.ID = id
	return id, nil
}

// GetTransactionsByUser retrieves a user's ledger, newest first.
func (r *Repository) GetTransactionsByUser(ctx context.Context, userID int64) ([]*domain.Transaction, error) {
	const query = `
	SELECT id, user_id, holding_id, tx_type, symbol, quantity, price, total_amount, execution_time
	FROM transactions WHERE user_id = ? ORDER BY execution_time DESC`

	rows, err := r.conn(ctx).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txs, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func scanPricePoint(s scanner) (domain.PricePoint, error) {
	var p domain.PricePoint
	var open, high, low, closePrice string
	if err := s.Scan(&p.Symbol, &p.Instant, &open, &high, &low, &closePrice, &p.Volume); err != nil {
		return domain.PricePoint{}, err
	}
	var err error
	if p.Open, err = scanDecimal(open); err != nil {
		return domain.PricePoint{}, err
	}
	if p.High, err = scanDecimal(high); err != nil {
		return domain.PricePoint{}, err
	}
	if p.Low, err = scanDecimal(low); err != nil {
		return domain.PricePoint{}, err
	}
	if p.Close, err = scanDecimal(closePrice); err != nil {
		return domain.PricePoint{}, err
	}
	p.Instant = p.Instant.UTC()
	return p, nil
}

func scanUser(s scanner) (*domain.User, error) {
	u := &domain.User{}
	var balance string
	if err := s.Scan(&u.ID, &u.Username, &balance); err != nil {
		return nil, err
	}
	var err error
	if u.CashBalance, err = scanDecimal(balance); err != nil {
		return nil, err
	}
	return u, nil
}

func scanHolding(s scanner) (*domain.Holding, error) {
	h := &domain.Holding{}
	var quantity, avgPrice string
	if err := s.Scan(&h.ID, &h.UserID, &h.Symbol, &quantity, &avgPrice); err != nil {
		return nil, err
	}
	var err error
	if h.Quantity, err = scanDecimal(quantity); err != nil {
		return nil, err
	}
	if h.AvgPrice, err = scanDecimal(avgPrice); err != nil {
		return nil, err
	}
	return h, nil
}

func scanOrder(s scanner) (*domain.Order, error) {
	o := &domain.Order{}
	var orderType, side, status, quantity, price string
	if err := s.Scan(&o.ID, &o.UserID, &o.Symbol, &orderType, &side, &status, &quantity, &price, &o.ClientOrderID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Type = domain.OrderType(orderType)
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	var err error
	if o.Quantity, err = scanDecimal(quantity); err != nil {
		return nil, err
	}
	if o.Price, err = scanDecimal(price); err != nil {
		return nil, err
	}
	return o, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var holdingID sql.NullInt64
	var txType, quantity, price, total string
	if err := s.Scan(&t.ID, &t.UserID, &holdingID, &txType, &t.Symbol, &quantity, &price, &total, &t.ExecutionTime); err != nil {
		return nil, err
	}
	if holdingID.Valid {
		t.HoldingID = &holdingID.Int64
	}
	t.Type = domain.TransactionType(txType)
	var err error
	if t.Quantity, err = scanDecimal(quantity); err != nil {
		return nil, err
	}
	if t.Price, err = scanDecimal(price); err != nil {
		return nil, err
	}
	if t.TotalAmount, err = scanDecimal(total); err != nil {
		return nil, err
	}
	return t, nil
}
