// Package orders implements order placement, settlement, and the pending
// order rescan loop.
package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

// PriceQuoter is the slice of the price engine the order flow needs.
type PriceQuoter interface {
	CurrentPrice(ctx context.Context, symbol string, loc *time.Location) (domain.PricePoint, error)
}

// orderRequest resolves the price an order fills at. The two variants are
// the closed set of supported order types; adding a type means adding a
// factory to requestFactories.
type orderRequest interface {
	// FillPrice returns the price the order settles at. It may hit the
	// price engine, so it can fail.
	FillPrice(ctx context.Context) (decimal.Decimal, error)
	// Triggered reports whether the order should execute at the given
	// market price.
	Triggered(current decimal.Decimal) bool
}

type requestFactory func(o *domain.Order, quotes PriceQuoter) (orderRequest, error)

// requestFactories is the closed dispatch table for order pricing.
var requestFactories = map[domain.OrderType]requestFactory{
	domain.Market: newMarketRequest,
	domain.Limit:  newLimitRequest,
}

// newOrderRequest builds the pricing strategy for an order.
func newOrderRequest(o *domain.Order, quotes PriceQuoter) (orderRequest, error) {
	factory, ok := requestFactories[o.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported order type %q: %w", o.Type, ports.ErrInvalidRequest)
	}
	return factory(o, quotes)
}

// marketRequest fills at the market quote, resolved lazily on first read so
// validation and settlement see the same price.
type marketRequest struct {
	symbol string
	quotes PriceQuoter

	once  sync.Once
	price decimal.Decimal
	err   error
}

func newMarketRequest(o *domain.Order, quotes PriceQuoter) (orderRequest, error) {
	if quotes == nil {
		return nil, fmt.Errorf("price quoter is required for market orders: %w", ports.ErrInvalidRequest)
	}
	return &marketRequest{symbol: o.Symbol, quotes: quotes}, nil
}

func (r *marketRequest) FillPrice(ctx context.Context) (decimal.Decimal, error) {
	r.once.Do(func() {
		p, err := r.quotes.CurrentPrice(ctx, r.symbol, time.UTC)
		if err != nil {
			r.err = err
			return
		}
		r.price = p.Close
	})
	return r.price, r.err
}

// A market order executes at whatever the market offers.
func (r *marketRequest) Triggered(decimal.Decimal) bool { return true }

// limitRequest fills at exactly the caller's threshold price.
type limitRequest struct {
	side  domain.OrderSide
	limit decimal.Decimal
}

func newLimitRequest(o *domain.Order, _ PriceQuoter) (orderRequest, error) {
	if !o.Price.IsPositive() {
		return nil, fmt.Errorf("limit orders require a positive limit price: %w", ports.ErrInvalidRequest)
	}
	return &limitRequest{side: o.Side, limit: o.Price}, nil
}

func (r *limitRequest) FillPrice(context.Context) (decimal.Decimal, error) {
	return r.limit, nil
}

// A limit buy waits for the market to come down to the threshold; a limit
// sell waits for it to rise.
func (r *limitRequest) Triggered(current decimal.Decimal) bool {
	if r.side == domain.Buy {
		return current.LessThanOrEqual(r.limit)
	}
	return current.GreaterThanOrEqual(r.limit)
}
