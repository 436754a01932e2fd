package ports

import (
	"context"
	"time"
)

// MarketClock is a snapshot of the trading session state.
type MarketClock struct {
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// MarketCalendar answers whether the exchange is currently trading.
type MarketCalendar interface {
	// IsOpen reports whether the regular trading session is in progress.
	IsOpen(ctx context.Context) (bool, error)
	// Clock returns the full session snapshot.
	Clock(ctx context.Context) (MarketClock, error)
}
