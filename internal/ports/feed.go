package ports

import (
	"context"
	"time"

	"paperTrader/internal/domain"
)

// MarketFeed defines the synchronous interface to the upstream market data
// provider's REST API.
type MarketFeed interface {
	// LatestBar fetches the most recent bar for a symbol, falling through the
	// provider's data feeds until one returns a usable bar.
	LatestBar(ctx context.Context, symbol string) (domain.PricePoint, error)
	// HistoricalBars fetches bars of the given resolution over [start, end],
	// following provider pagination until the window is exhausted.
	HistoricalBars(ctx context.Context, symbol, barSize string, start, end time.Time) ([]domain.PricePoint, error)
}

// BarHandler consumes realtime bars pushed by a stream.
type BarHandler func(domain.PricePoint)

// BarStream defines the interface to the upstream realtime bar feed.
// A stream is single-use: once Done is closed the caller must discard it and
// dial a fresh one.
type BarStream interface {
	// Connect dials the stream and authenticates. It returns once the
	// connection is established; bars flow to the handler asynchronously.
	Connect(ctx context.Context) error
	// Subscribe registers symbols for bar delivery. Already-subscribed
	// symbols are skipped without a wire round trip.
	Subscribe(symbols ...string) error
	// Subscribed returns the currently subscribed symbols.
	Subscribed() []string
	// Done is closed when the stream has terminally disconnected.
	Done() <-chan struct{}
	// Close tears the connection down.
	Close() error
}
