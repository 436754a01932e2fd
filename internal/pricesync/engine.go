package pricesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

const (
	defaultRefreshInterval = 10 * time.Minute
	// minimum durable bars before the engine trusts the database over the feed
	defaultDurableThreshold = 10

	sessionOpenHour, sessionOpenMinute = 9, 30
	sessionCloseHour                   = 16
)

// SubscribeFunc forwards symbols to the active realtime stream. The engine
// calls it on every new tracked symbol; the stream supervisor swaps it out
// when connections are replaced.
type SubscribeFunc func(symbols ...string) error

// HeldSymbolSource lists symbols with open positions. The engine unions them
// into its tracking set so holdings keep refreshing across restarts, not just
// symbols someone has quoted since boot.
type HeldSymbolSource interface {
	HeldSymbols(ctx context.Context) ([]string, error)
}

// Engine keeps market data synchronized across the cache tiers and serves
// price reads. All background work (periodic refresh, eviction sweeps) is
// owned by Start/Stop.
type Engine struct {
	feed     ports.MarketFeed
	repo     ports.PricePointRepository
	holdings HeldSymbolSource
	cache    *PriceCache
	bus      *ObserverBus
	logger   ports.Logger

	marketTZ         *time.Location
	refreshInterval  time.Duration
	durableThreshold int

	tracked sync.Map // symbol -> struct{}

	subMu     sync.RWMutex
	subscribe SubscribeFunc

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup

	// now is swapped out in tests
	now func() time.Time
}

// Config holds the engine's collaborators and tuning knobs.
type Config struct {
	Feed             ports.MarketFeed
	Repo             ports.PricePointRepository
	Holdings         HeldSymbolSource // optional; seeds tracking from open positions
	Cache            *PriceCache
	Bus              *ObserverBus
	Logger           ports.Logger
	MarketTZ         *time.Location // defaults to America/New_York
	RefreshInterval  time.Duration
	DurableThreshold int
}

// NewEngine creates a price sync engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Feed == nil || cfg.Repo == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("feed, repository, and logger are required for price sync engine")
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewPriceCache()
	}
	bus := cfg.Bus
	if bus == nil {
		bus = NewObserverBus()
	}
	tz := cfg.MarketTZ
	if tz == nil {
		var err error
		tz, err = time.LoadLocation("America/New_York")
		if err != nil {
			return nil, fmt.Errorf("failed to load market timezone: %w", err)
		}
	}
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	threshold := cfg.DurableThreshold
	if threshold <= 0 {
		threshold = defaultDurableThreshold
	}
	return &Engine{
		feed:             cfg.Feed,
		repo:             cfg.Repo,
		holdings:         cfg.Holdings,
		cache:            cache,
		bus:              bus,
		logger:           cfg.Logger,
		marketTZ:         tz,
		refreshInterval:  interval,
		durableThreshold: threshold,
		stop:             make(chan struct{}),
		now:              time.Now,
	}, nil
}

// Bus exposes the engine's observer bus for listener registration.
func (e *Engine) Bus() *ObserverBus { return e.bus }

// Cache exposes the cache, mainly for eviction wiring in tests.
func (e *Engine) Cache() *PriceCache { return e.cache }

// SetSubscribeFunc installs (or replaces) the stream subscription hook.
// Already-tracked symbols are replayed through the new hook immediately.
func (e *Engine) SetSubscribeFunc(fn SubscribeFunc) {
	e.subMu.Lock()
	e.subscribe = fn
	e.subMu.Unlock()

	if fn == nil {
		return
	}
	if symbols := e.TrackedSymbols(); len(symbols) > 0 {
		if err := fn(symbols...); err != nil {
			e.logger.Warn(context.Background(), "replaying tracked symbols to stream failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// TrackedSymbols returns every symbol the engine is keeping fresh.
func (e *Engine) TrackedSymbols() []string {
	var symbols []string
	e.tracked.Range(func(key, _ interface{}) bool {
		symbols = append(symbols, key.(string))
		return true
	})
	return symbols
}

// Track registers a symbol for realtime subscription and periodic refresh.
func (e *Engine) Track(symbol string) {
	if _, loaded := e.tracked.LoadOrStore(symbol, struct{}{}); loaded {
		return
	}
	e.subMu.RLock()
	fn := e.subscribe
	e.subMu.RUnlock()
	if fn != nil {
		if err := fn(symbol); err != nil {
			e.logger.Warn(context.Background(), "stream subscription failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		}
	}
}

// CurrentPrice returns the freshest price for a symbol, projected into loc.
// A realtime-tier hit is served as-is; a miss falls through to the feed and
// the fetched bar is persisted and published before returning.
func (e *Engine) CurrentPrice(ctx context.Context, symbol string, loc *time.Location) (domain.PricePoint, error) {
	e.Track(symbol)

	if p, ok := e.cache.Realtime(symbol); ok {
		return p.In(loc), nil
	}

	p, err := e.feed.LatestBar(ctx, symbol)
	if err != nil {
		return domain.PricePoint{}, err
	}

	e.cache.SetRealtime(p)
	if err := e.repo.UpsertPricePoint(ctx, p); err != nil {
		e.logger.Error(ctx, err, "persisting fetched price failed", map[string]interface{}{"symbol": symbol})
	}
	e.bus.Publish(p)

	return p.In(loc), nil
}

// SeriesFor returns the chart series for a symbol and timeframe, projected
// into loc. Reads fall through derived cache, durable store, then the feed;
// whatever the feed returns is persisted before serving.
func (e *Engine) SeriesFor(ctx context.Context, symbol string, tf domain.Timeframe, loc *time.Location) ([]domain.PricePoint, error) {
	e.Track(symbol)
	if loc == nil {
		loc = time.UTC
	}
	tz := loc.String()

	if points, ok := e.cache.Series(symbol, tf, tz); ok {
		return e.withRealtimeTail(symbol, points, loc), nil
	}

	points, err := e.loadSeries(ctx, symbol, tf)
	if err != nil {
		return nil, err
	}

	points = e.shapeSeries(points, tf, loc)
	e.cache.PutSeries(symbol, tf, tz, points)
	return e.withRealtimeTail(symbol, points, loc), nil
}

// loadSeries reads the durable tier, falling through to the feed when the
// database holds too few bars to chart honestly.
func (e *Engine) loadSeries(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.PricePoint, error) {
	start, end := tf.Range(e.now().UTC())

	stored, err := e.repo.PricePointsInRange(ctx, symbol, start, end)
	if err != nil {
		e.logger.Error(ctx, err, "durable price read failed, falling through to feed", map[string]interface{}{"symbol": symbol})
	}
	if len(stored) >= e.durableThreshold {
		return stored, nil
	}

	fetched, err := e.feed.HistoricalBars(ctx, symbol, tf.BarSize(), start, end)
	if err != nil {
		return nil, err
	}
	for _, p := range fetched {
		if err := e.repo.UpsertPricePoint(ctx, p); err != nil {
			e.logger.Error(ctx, err, "persisting historical bar failed", map[string]interface{}{"symbol": symbol})
			break
		}
	}
	return fetched, nil
}

// shapeSeries applies the session filter and change math, and projects
// instants into the requested timezone.
func (e *Engine) shapeSeries(points []domain.PricePoint, tf domain.Timeframe, loc *time.Location) []domain.PricePoint {
	if tf.Intraday() {
		points = e.filterSession(points)
	}
	if len(points) == 0 {
		return points
	}
	reference := points[0].Close
	out := make([]domain.PricePoint, 0, len(points))
	for _, p := range points {
		out = append(out, p.WithChangeFrom(reference).In(loc))
	}
	return out
}

// filterSession keeps bars inside regular trading hours of the market
// timezone: 09:30 inclusive through 16:00 exclusive.
func (e *Engine) filterSession(points []domain.PricePoint) []domain.PricePoint {
	out := points[:0:0]
	for _, p := range points {
		t := p.Instant.In(e.marketTZ)
		h, m := t.Hour(), t.Minute()
		afterOpen := h > sessionOpenHour || (h == sessionOpenHour && m >= sessionOpenMinute)
		beforeClose := h < sessionCloseHour
		if afterOpen && beforeClose {
			out = append(out, p)
		}
	}
	return out
}

// withRealtimeTail appends the realtime bar when it is strictly newer than
// the series tail, recomputing its change against the series origin.
func (e *Engine) withRealtimeTail(symbol string, points []domain.PricePoint, loc *time.Location) []domain.PricePoint {
	live, ok := e.cache.Realtime(symbol)
	if !ok || len(points) == 0 {
		return points
	}
	if !live.Instant.After(points[len(points)-1].Instant) {
		return points
	}
	reference := points[0].Close
	// the first point carries its change relative to itself, so its stored
	// close is still the series origin
	if !points[0].Change.IsZero() {
		reference = points[0].Close.Sub(points[0].Change)
	}
	return append(points, live.WithChangeFrom(reference).In(loc))
}

// HandleBar is the realtime stream sink. It must stay cheap: cache write,
// durable upsert, eviction, publish.
func (e *Engine) HandleBar(p domain.PricePoint) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.cache.SetRealtime(p)
	if err := e.repo.UpsertPricePoint(ctx, p); err != nil {
		e.logger.Error(ctx, err, "persisting streamed bar failed", map[string]interface{}{"symbol": p.Symbol})
	}
	e.cache.InvalidateSymbol(p.Symbol)
	e.bus.Publish(p)
}

// Start seeds tracking from open positions and launches the refresh and
// eviction loops.
func (e *Engine) Start(ctx context.Context) {
	e.trackHeldSymbols(ctx)
	e.wg.Add(2)
	go e.refreshLoop(ctx)
	go e.evictionLoop(ctx)
}

// Stop terminates background loops and waits for them to exit.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
}

func (e *Engine) refreshLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.refreshTracked(ctx)
		}
	}
}

// trackHeldSymbols unions open positions into the tracking set. Positions
// acquired through another process instance would otherwise go stale here.
func (e *Engine) trackHeldSymbols(ctx context.Context) {
	if e.holdings == nil {
		return
	}
	symbols, err := e.holdings.HeldSymbols(ctx)
	if err != nil {
		e.logger.Warn(ctx, "listing held symbols failed", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, sym := range symbols {
		e.Track(sym)
	}
}

// refreshTracked re-fetches every tracked symbol so quotes stay usable even
// when the realtime stream is quiet. Held positions are re-unioned first so
// fills that happened since the last pass join the refresh set.
func (e *Engine) refreshTracked(ctx context.Context) {
	e.trackHeldSymbols(ctx)
	for _, symbol := range e.TrackedSymbols() {
		p, err := e.feed.LatestBar(ctx, symbol)
		if err != nil {
			e.logger.Warn(ctx, "tracked symbol refresh failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			continue
		}
		e.cache.SetRealtime(p)
		if err := e.repo.UpsertPricePoint(ctx, p); err != nil {
			e.logger.Error(ctx, err, "persisting refreshed price failed", map[string]interface{}{"symbol": symbol})
		}
		e.bus.Publish(p)
	}
}

// evictionLoop checks once a minute for cache boundary events: the daily
// rollover flushes everything, session open and close flush the
// session-clipped timeframes.
func (e *Engine) evictionLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var lastMinute string
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			now := e.now().In(e.marketTZ)
			minute := now.Format("2006-01-02 15:04")
			if minute == lastMinute {
				continue
			}
			lastMinute = minute

			if now.Hour() == 0 && now.Minute() == 0 {
				e.cache.FlushAll()
				e.logger.Info(ctx, "derived cache flushed at daily rollover")
				continue
			}
			if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			atOpen := now.Hour() == sessionOpenHour && now.Minute() == sessionOpenMinute
			atClose := now.Hour() == sessionCloseHour && now.Minute() == 0
			if atOpen || atClose {
				e.cache.FlushIntraday()
				e.logger.Info(ctx, "intraday cache flushed at session boundary")
			}
		}
	}
}
