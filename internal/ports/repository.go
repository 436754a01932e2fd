package ports

import (
	"context"
	"time"

	"paperTrader/internal/domain"
)

// PricePointRepository persists the durable tier of market data.
type PricePointRepository interface {
	// UpsertPricePoint inserts a bar, replacing any existing bar for the same
	// (symbol, instant) key. Replays are therefore harmless.
	UpsertPricePoint(ctx context.Context, p domain.PricePoint) error
	// PricePointsInRange returns bars for a symbol within [start, end],
	// ordered by instant ascending.
	PricePointsInRange(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error)
}

// UserRepository manages trading accounts.
type UserRepository interface {
	// GetUser returns ErrUserNotFound when no such account exists.
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) (int64, error)
	// UpdateCashBalance writes the user's current balance.
	UpdateCashBalance(ctx context.Context, user *domain.User) error
}

// HoldingRepository manages per-symbol positions.
type HoldingRepository interface {
	// GetHolding returns ErrNotFound when the user has no position in the symbol.
	GetHolding(ctx context.Context, userID int64, symbol string) (*domain.Holding, error)
	GetHoldings(ctx context.Context, userID int64) ([]*domain.Holding, error)
	SaveHolding(ctx context.Context, h *domain.Holding) (int64, error)
	DeleteHolding(ctx context.Context, id int64) error
	// HeldSymbols lists every symbol with an open position across all users.
	HeldSymbols(ctx context.Context) ([]string, error)
}

// OrderRepository manages order records and their status lifecycle.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *domain.Order) (int64, error)
	// GetOrder returns ErrOrderNotFound when no such order exists.
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]*domain.Order, error)
	GetOrdersByUserAndStatus(ctx context.Context, userID int64, status domain.OrderStatus) ([]*domain.Order, error)
	// GetOrdersByStatus returns all orders in the given state, oldest first.
	GetOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
	// UpdateOrder persists status, price, and updated-at changes.
	UpdateOrder(ctx context.Context, o *domain.Order) error
}

// TransactionRepository appends to the immutable trade ledger.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, t *domain.Transaction) (int64, error)
	GetTransactionsByUser(ctx context.Context, userID int64) ([]*domain.Transaction, error)
}

// TxRunner executes a function inside a single database transaction.
// Repository calls made with the context passed to fn join that transaction;
// any error from fn rolls the whole unit back.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repository aggregates every persistence surface the engines need.
type Repository interface {
	PricePointRepository
	UserRepository
	HoldingRepository
	OrderRepository
	TransactionRepository
	TxRunner
}
