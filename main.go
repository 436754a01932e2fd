package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpillora/backoff"

	"paperTrader/config"
	"paperTrader/internal/adapters/alpaca"
	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/adapters/marketcal"
	"paperTrader/internal/adapters/sqlite"
	"paperTrader/internal/orders"
	"paperTrader/internal/pricesync"
	"paperTrader/internal/ratelimit"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Market Data Client (Alpaca Adapter)
	limiter := ratelimit.New(cfg.RateLimitPerMinute, time.Minute)
	feedClient, err := alpaca.NewClient(alpaca.Config{
		APIKey:      cfg.APIKey,
		SecretKey:   cfg.SecretKey,
		DataBaseURL: cfg.DataBaseURL,
		APIBaseURL:  cfg.APIBaseURL,
		Limiter:     limiter,
		Logger:      appLogger,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize market data client")
		log.Fatalf("FATAL: Failed to initialize market data client: %v", err)
	}

	// 5. Market calendar: upstream clock first, local holiday calendar as backup
	calendar := &marketcal.Chained{
		Primary:  feedClient,
		Fallback: marketcal.New(cfg.MarketMIC),
		Logger:   appLogger,
	}

	// 6. Initialize Price Sync Engine
	marketTZ, err := time.LoadLocation(cfg.MarketTimezone)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load market timezone")
		log.Fatalf("FATAL: Failed to load market timezone: %v", err)
	}
	priceEngine, err := pricesync.NewEngine(pricesync.Config{
		Feed:             feedClient,
		Repo:             repo,
		Holdings:         repo,
		Logger:           appLogger,
		MarketTZ:         marketTZ,
		RefreshInterval:  cfg.RefreshInterval,
		DurableThreshold: cfg.DurableThreshold,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize price sync engine")
		log.Fatalf("FATAL: Failed to initialize price sync engine: %v", err)
	}

	// 7. Initialize Order Execution Engine
	orderEngine, err := orders.NewEngine(orders.Config{
		Repo:           repo,
		Quotes:         priceEngine,
		Calendar:       calendar,
		Logger:         appLogger,
		RescanInterval: cfg.RescanInterval,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize order engine")
		log.Fatalf("FATAL: Failed to initialize order engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 8. Stream supervisor: dial, wire the engine, redial with backoff when
	// the connection drops. Streams are single-use so each attempt builds a
	// fresh one.
	go superviseStream(ctx, cfg, appLogger, priceEngine)

	// 9. Start background loops
	priceEngine.Start(ctx)
	orderEngine.Start(ctx)
	appLogger.Info(ctx, "Engines started")

	// 10. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	appLogger.Info(ctx, "Shutdown signal received", map[string]interface{}{"signal": sig.String()})

	cancel()
	orderEngine.Stop()
	priceEngine.Stop()
	appLogger.Info(context.Background(), "Shutdown complete")
}

// superviseStream keeps a realtime stream alive, backing off between
// redials and replaying tracked symbols on every fresh connection.
func superviseStream(ctx context.Context, cfg *config.Config, appLogger *logger.StdLogger, engine *pricesync.Engine) {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := alpaca.NewStream(alpaca.StreamConfig{
			URL:       cfg.StreamURL,
			APIKey:    cfg.APIKey,
			SecretKey: cfg.SecretKey,
			Logger:    appLogger,
			Handler:   engine.HandleBar,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: stream construction failed")
			return
		}

		if err := stream.Connect(ctx); err != nil {
			d := b.Duration()
			appLogger.Warn(ctx, "stream connect failed, backing off", map[string]interface{}{"delay": d.String(), "error": err.Error()})
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
			}
			continue
		}
		b.Reset()
		engine.SetSubscribeFunc(stream.Subscribe)

		select {
		case <-ctx.Done():
			engine.SetSubscribeFunc(nil)
			_ = stream.Close()
			return
		case <-stream.Done():
			engine.SetSubscribeFunc(nil)
			d := b.Duration()
			appLogger.Warn(ctx, "stream dropped, redialing", map[string]interface{}{"delay": d.String()})
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
			}
		}
	}
}
