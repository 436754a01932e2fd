package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a request to trade a quantity of a symbol for a user.
// Price carries the limit threshold for LIMIT orders and the realized fill
// price once a MARKET order executes.
type Order struct {
	ID            int64
	UserID        int64
	Symbol        string
	Type          OrderType
	Side          OrderSide
	Status        OrderStatus
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	ClientOrderID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// legal status transitions; terminal states have no outgoing edges.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending: {StatusExecuted, StatusCanceled, StatusFailed},
}

// CanTransition reports whether moving the order to the given status is a
// legal lifecycle step.
func (o *Order) CanTransition(to OrderStatus) bool {
	for _, s := range orderTransitions[o.Status] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order can no longer change state.
func (o *Order) IsTerminal() bool {
	return len(orderTransitions[o.Status]) == 0
}

// Notional is the cash value of the order at the given fill price.
func (o *Order) Notional(price decimal.Decimal) decimal.Decimal {
	return price.Mul(o.Quantity)
}
