package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

const defaultRescanInterval = time.Minute

// Engine owns the order lifecycle: placement, validation, settlement, and
// the periodic rescan of pending orders.
type Engine struct {
	repo     ports.Repository
	quotes   PriceQuoter
	calendar ports.MarketCalendar
	logger   ports.Logger

	rescanInterval time.Duration

	// locks serializes settlement per (user, symbol)
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup

	// now is swapped out in tests
	now func() time.Time
}

// Config holds the engine's collaborators and tuning knobs.
type Config struct {
	Repo           ports.Repository
	Quotes         PriceQuoter
	Calendar       ports.MarketCalendar
	Logger         ports.Logger
	RescanInterval time.Duration
}

// NewEngine creates an order execution engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Repo == nil || cfg.Quotes == nil || cfg.Calendar == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("repository, quoter, calendar, and logger are required for order engine")
	}
	interval := cfg.RescanInterval
	if interval <= 0 {
		interval = defaultRescanInterval
	}
	return &Engine{
		repo:           cfg.Repo,
		quotes:         cfg.Quotes,
		calendar:       cfg.Calendar,
		logger:         cfg.Logger,
		rescanInterval: interval,
		locks:          make(map[string]*sync.Mutex),
		stop:           make(chan struct{}),
		now:            time.Now,
	}, nil
}

// PlaceRequest is the caller-facing order submission.
type PlaceRequest struct {
	UserID     int64
	Symbol     string
	Type       domain.OrderType
	Side       domain.OrderSide
	Quantity   decimal.Decimal
	LimitPrice decimal.Decimal // required for LIMIT, ignored for MARKET
}

// PlaceOrder validates and persists an order. Market orders placed during
// the trading session execute before returning; everything else stays
// PENDING for the rescan loop.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceRequest) (*domain.Order, error) {
	op := "PlaceOrder"
	if req.Symbol == "" || !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%s failed: %w: symbol and a positive quantity are required", op, ports.ErrInvalidRequest)
	}
	if req.Side != domain.Buy && req.Side != domain.Sell {
		return nil, fmt.Errorf("%s failed: %w: unknown side %q", op, ports.ErrInvalidRequest, req.Side)
	}

	now := e.now().UTC()
	order := &domain.Order{
		UserID:        req.UserID,
		Symbol:        req.Symbol,
		Type:          req.Type,
		Side:          req.Side,
		Status:        domain.StatusPending,
		Quantity:      req.Quantity,
		Price:         req.LimitPrice,
		ClientOrderID: uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	request, err := newOrderRequest(order, e.quotes)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	if err := e.validate(ctx, order, request); err != nil {
		return nil, err
	}

	if _, err := e.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrQueryFailed, err)
	}
	e.logger.Info(ctx, "order placed", map[string]interface{}{
		"orderID": order.ID, "userID": order.UserID, "symbol": order.Symbol,
		"type": order.Type, "side": order.Side, "quantity": order.Quantity.String(),
	})

	if order.Type == domain.Market {
		open, err := e.calendar.IsOpen(ctx)
		if err != nil {
			e.logger.Warn(ctx, "market clock unavailable, leaving order pending", map[string]interface{}{"orderID": order.ID, "error": err.Error()})
			return order, nil
		}
		if open {
			if err := e.Execute(ctx, order); err != nil {
				return order, err
			}
		}
	}
	return order, nil
}

// validate rejects orders the account cannot honor before anything is
// persisted.
func (e *Engine) validate(ctx context.Context, order *domain.Order, request orderRequest) error {
	op := "ValidateOrder"
	user, err := e.repo.GetUser(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	switch order.Side {
	case domain.Buy:
		price, err := request.FillPrice(ctx)
		if err != nil {
			return fmt.Errorf("%s failed: %w", op, err)
		}
		if !user.CanAfford(order.Notional(price)) {
			return fmt.Errorf("%s failed: %w: need %s, have %s", op,
				ports.ErrInsufficientFunds, order.Notional(price).StringFixed(2), user.CashBalance.StringFixed(2))
		}
	case domain.Sell:
		holding, err := e.repo.GetHolding(ctx, order.UserID, order.Symbol)
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			// infrastructure failure, not a business rejection
			return fmt.Errorf("%s failed: %w", op, err)
		}
		have := decimal.Zero
		if err == nil {
			have = holding.Quantity
		}
		if have.LessThan(order.Quantity) {
			return fmt.Errorf("%s failed: %w: need %s, have %s", op,
				ports.ErrInsufficientShares, order.Quantity.String(), have.String())
		}
	}
	return nil
}

// Execute settles a pending order: one keyed lock, one database
// transaction covering cash, holding, ledger, and the status flip.
// Settlement failure flips the order to FAILED and returns the error.
func (e *Engine) Execute(ctx context.Context, order *domain.Order) error {
	op := "ExecuteOrder"
	if !order.CanTransition(domain.StatusExecuted) {
		return fmt.Errorf("%s failed: %w: order %d is %s", op, ports.ErrInvalidOrderState, order.ID, order.Status)
	}

	request, err := newOrderRequest(order, e.quotes)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	price, err := request.FillPrice(ctx)
	if err != nil {
		return e.fail(ctx, order, fmt.Errorf("%s failed: %w", op, err))
	}

	lock := e.lockFor(order.UserID, order.Symbol)
	lock.Lock()
	defer lock.Unlock()

	err = e.repo.WithinTx(ctx, func(ctx context.Context) error {
		return e.settle(ctx, order, price)
	})
	if err != nil {
		// the transaction rolled back; the struct may have been flipped
		// before the commit failed
		order.Status = domain.StatusPending
		return e.fail(ctx, order, fmt.Errorf("%s failed: %w", op, err))
	}

	e.logger.Info(ctx, "order executed", map[string]interface{}{
		"orderID": order.ID, "symbol": order.Symbol, "side": order.Side,
		"price": price.String(), "quantity": order.Quantity.String(),
	})
	return nil
}

// settle applies the fill inside the caller's transaction.
func (e *Engine) settle(ctx context.Context, order *domain.Order, price decimal.Decimal) error {
	user, err := e.repo.GetUser(ctx, order.UserID)
	if err != nil {
		return err
	}
	total := order.Notional(price)

	var holdingID *int64
	switch order.Side {
	case domain.Buy:
		if !user.CanAfford(total) {
			return fmt.Errorf("%w: need %s, have %s", ports.ErrInsufficientFunds, total.StringFixed(2), user.CashBalance.StringFixed(2))
		}
		holding, err := e.repo.GetHolding(ctx, order.UserID, order.Symbol)
		if err != nil {
			if !errors.Is(err, ports.ErrNotFound) {
				return err
			}
			holding = &domain.Holding{UserID: order.UserID, Symbol: order.Symbol, Quantity: decimal.Zero, AvgPrice: decimal.Zero}
		}
		holding.ApplyBuy(order.Quantity, price)
		id, err := e.repo.SaveHolding(ctx, holding)
		if err != nil {
			return err
		}
		holdingID = &id

		user.Debit(total)
	case domain.Sell:
		holding, err := e.repo.GetHolding(ctx, order.UserID, order.Symbol)
		if err != nil {
			return fmt.Errorf("%w: no position in %s", ports.ErrInsufficientShares, order.Symbol)
		}
		if holding.Quantity.LessThan(order.Quantity) {
			return fmt.Errorf("%w: need %s, have %s", ports.ErrInsufficientShares, order.Quantity.String(), holding.Quantity.String())
		}
		holding.ApplySell(order.Quantity)
		if holding.IsEmpty() {
			if err := e.repo.DeleteHolding(ctx, holding.ID); err != nil {
				return err
			}
		} else {
			if _, err := e.repo.SaveHolding(ctx, holding); err != nil {
				return err
			}
			holdingID = &holding.ID
		}

		user.Credit(total)
	}

	if err := e.repo.UpdateCashBalance(ctx, user); err != nil {
		return err
	}

	tx := &domain.Transaction{
		UserID:        order.UserID,
		HoldingID:     holdingID,
		Type:          domain.TransactionType(order.Side),
		Symbol:        order.Symbol,
		Quantity:      order.Quantity,
		Price:         price,
		TotalAmount:   total,
		ExecutionTime: e.now().UTC(),
	}
	if _, err := e.repo.CreateTransaction(ctx, tx); err != nil {
		return err
	}

	order.Status = domain.StatusExecuted
	order.Price = price
	order.UpdatedAt = e.now().UTC()
	return e.repo.UpdateOrder(ctx, order)
}

// fail flips the order to FAILED with its own write, outside any rolled
// back transaction, then returns the settlement error.
func (e *Engine) fail(ctx context.Context, order *domain.Order, cause error) error {
	if order.ID != 0 && order.CanTransition(domain.StatusFailed) {
		order.Status = domain.StatusFailed
		order.UpdatedAt = e.now().UTC()
		if err := e.repo.UpdateOrder(ctx, order); err != nil {
			e.logger.Error(ctx, err, "marking order failed did not persist", map[string]interface{}{"orderID": order.ID})
		}
	}
	e.logger.Error(ctx, cause, "order execution failed", map[string]interface{}{"orderID": order.ID, "symbol": order.Symbol})
	return cause
}

// Cancel moves a pending order to CANCELED. Orders in any other state are
// rejected.
func (e *Engine) Cancel(ctx context.Context, orderID int64) (*domain.Order, error) {
	op := "CancelOrder"
	order, err := e.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	if !order.CanTransition(domain.StatusCanceled) {
		return nil, fmt.Errorf("%s failed: %w: order %d is %s", op, ports.ErrInvalidOrderState, order.ID, order.Status)
	}
	order.Status = domain.StatusCanceled
	order.UpdatedAt = e.now().UTC()
	if err := e.repo.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	e.logger.Info(ctx, "order canceled", map[string]interface{}{"orderID": order.ID})
	return order, nil
}

// GetOrder returns one order by ID.
func (e *Engine) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return e.repo.GetOrder(ctx, orderID)
}

// UserOrders returns all of a user's orders, newest first.
func (e *Engine) UserOrders(ctx context.Context, userID int64) ([]*domain.Order, error) {
	return e.repo.GetOrdersByUser(ctx, userID)
}

// UserOrdersByStatus returns a user's orders in one state, newest first.
func (e *Engine) UserOrdersByStatus(ctx context.Context, userID int64, status domain.OrderStatus) ([]*domain.Order, error) {
	return e.repo.GetOrdersByUserAndStatus(ctx, userID, status)
}

// Start launches the pending-order rescan loop.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.rescanLoop(ctx)
}

// Stop terminates the rescan loop and waits for it to exit.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
}

func (e *Engine) rescanLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.RescanPending(ctx)
		}
	}
}

// RescanPending executes every pending order whose conditions are met. It
// is a no-op while the market is closed.
func (e *Engine) RescanPending(ctx context.Context) {
	open, err := e.calendar.IsOpen(ctx)
	if err != nil {
		e.logger.Warn(ctx, "market clock unavailable, skipping rescan", map[string]interface{}{"error": err.Error()})
		return
	}
	if !open {
		return
	}

	pending, err := e.repo.GetOrdersByStatus(ctx, domain.StatusPending)
	if err != nil {
		e.logger.Error(ctx, err, "loading pending orders failed")
		return
	}

	for _, order := range pending {
		request, err := newOrderRequest(order, e.quotes)
		if err != nil {
			e.logger.Error(ctx, err, "skipping unprocessable order", map[string]interface{}{"orderID": order.ID})
			continue
		}

		if order.Type == domain.Limit {
			current, err := e.quotes.CurrentPrice(ctx, order.Symbol, time.UTC)
			if err != nil {
				e.logger.Warn(ctx, "price unavailable, keeping order pending", map[string]interface{}{"orderID": order.ID, "error": err.Error()})
				continue
			}
			if !request.Triggered(current.Close) {
				continue
			}
		}

		if err := e.Execute(ctx, order); err != nil {
			e.logger.Warn(ctx, "pending order execution failed", map[string]interface{}{"orderID": order.ID, "error": err.Error()})
		}
	}
}

func (e *Engine) lockFor(userID int64, symbol string) *sync.Mutex {
	key := fmt.Sprintf("%d|%s", userID, symbol)
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	return lock
}
