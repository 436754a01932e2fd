package pricesync

import (
	"sync"
	"time"

	"paperTrader/internal/domain"
)

// seriesKey identifies one derived chart series.
type seriesKey struct {
	symbol    string
	timeframe domain.Timeframe
	tz        string
}

type seriesEntry struct {
	points    []domain.PricePoint
	expiresAt time.Time
}

// PriceCache holds the two in-memory tiers: last-bar-wins realtime quotes
// and TTL-bound derived chart series. The durable tier lives in the
// repository and is composed by the engine, not here.
type PriceCache struct {
	realtime sync.Map // symbol -> domain.PricePoint

	mu     sync.Mutex
	series map[seriesKey]seriesEntry

	// now is swapped out in tests
	now func() time.Time
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{
		series: make(map[seriesKey]seriesEntry),
		now:    time.Now,
	}
}

// SetRealtime stores the freshest bar for a symbol. Last write wins.
func (c *PriceCache) SetRealtime(p domain.PricePoint) {
	c.realtime.Store(p.Symbol, p)
}

// Realtime returns the freshest bar for a symbol, if one has been seen.
func (c *PriceCache) Realtime(symbol string) (domain.PricePoint, bool) {
	v, ok := c.realtime.Load(symbol)
	if !ok {
		return domain.PricePoint{}, false
	}
	return v.(domain.PricePoint), true
}

// PutSeries caches a derived series under the timeframe's TTL.
func (c *PriceCache) PutSeries(symbol string, tf domain.Timeframe, tz string, points []domain.PricePoint) {
	entry := seriesEntry{
		points:    append([]domain.PricePoint(nil), points...),
		expiresAt: c.now().Add(tf.TTL()),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series[seriesKey{symbol: symbol, timeframe: tf, tz: tz}] = entry
}

// Series returns a cached derived series, treating expired entries as
// misses. The returned slice is a copy; callers may append freely.
func (c *PriceCache) Series(symbol string, tf domain.Timeframe, tz string) ([]domain.PricePoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.series[seriesKey{symbol: symbol, timeframe: tf, tz: tz}]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return append([]domain.PricePoint(nil), entry.points...), true
}

// FlushAll drops every derived series. Run at the daily boundary so stale
// day windows never survive into the next session.
func (c *PriceCache) FlushAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series = make(map[seriesKey]seriesEntry)
}

// FlushIntraday drops derived series for session-clipped timeframes. Run at
// market open and close, when those windows change shape.
func (c *PriceCache) FlushIntraday() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.series {
		if key.timeframe.Intraday() {
			delete(c.series, key)
		}
	}
}

// InvalidateSymbol drops the intraday derived series for one symbol, called
// whenever a fresh realtime bar lands for it.
func (c *PriceCache) InvalidateSymbol(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.series {
		if key.symbol == symbol && key.timeframe.Intraday() {
			delete(c.series, key)
		}
	}
}
