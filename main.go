package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cryptoRiskEngine/config"
	"cryptoRiskEngine/internal/adapters/binanceclient"
	"cryptoRiskEngine/internal/adapters/httpapi"
	"cryptoRiskEngine/internal/adapters/logger"
	"cryptoRiskEngine/internal/adapters/redisfeed"
	"cryptoRiskEngine/internal/adapters/sqlite"
	"cryptoRiskEngine/internal/app"
	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/execution"
	"cryptoRiskEngine/internal/ledger"
	"cryptoRiskEngine/internal/metrics"
	"cryptoRiskEngine/internal/ports"
)

const (
	dashboardRateLimit  = 120
	dashboardRateWindow = time.Minute
	shutdownTimeout     = 10 * time.Second
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})
	if cfg.PaperForced {
		appLogger.Warn(context.Background(), "Live trading requested without exchange credentials, running in paper mode")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Client when orders or prices come from Binance
	var exchange *binanceclient.Client
	if !cfg.PaperTrading || cfg.UseExchangePrices {
		exchange, err = binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
			log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
		}
		if !cfg.PaperTrading {
			if err := exchange.SetServerTime(ctx); err != nil {
				appLogger.Warn(ctx, "Failed to synchronize exchange server time", map[string]interface{}{"error": err.Error()})
			}
		}
		appLogger.Info(ctx, "Binance client initialized", map[string]interface{}{"testnet": cfg.IsTestnet})
	}

	// 5. Initialize Execution Venue
	executor, err := newExecutor(cfg, appLogger, exchange)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize executor")
		log.Fatalf("FATAL: Failed to initialize executor: %v", err)
	}

	// 6. Initialize Ledger
	book := ledger.New(ledger.Config{
		StartingCapital: decimal.NewFromFloat(cfg.StartingCapital),
		AllowMultiple:   cfg.AllowMultiplePositions,
		Location:        cfg.DailyResetLocation,
	})

	// 7. Resolve Risk Limits
	riskCfg, err := cfg.EffectiveRiskConfig()
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Invalid risk configuration")
		log.Fatalf("FATAL: Invalid risk configuration: %v", err)
	}

	// 8. Initialize Event Fan-out
	hub := httpapi.NewHub(appLogger, cfg.WSPushInterval)
	var feed *redisfeed.Publisher
	if cfg.RedisAddr != "" {
		feed, err = redisfeed.NewPublisher(ctx, redisfeed.Config{
			Addr:   cfg.RedisAddr,
			Stream: cfg.RedisStream,
			Logger: appLogger,
		})
		if err != nil {
			// The event stream is optional; trading continues without it.
			appLogger.Warn(ctx, "Redis event stream unavailable", map[string]interface{}{"error": err.Error()})
			feed = nil
		} else {
			defer feed.Close()
		}
	}
	sinks := []ports.EventPublisher{hub}
	if feed != nil {
		sinks = append(sinks, feed)
	}
	bus := app.NewEventBus(appLogger, 0, sinks...)

	// 9. Initialize Application Service
	deps := app.Dependencies{
		Logger:       appLogger,
		Ledger:       book,
		Executor:     executor,
		Repo:         repo,
		Audit:        repo,
		Events:       bus,
		Risk:         riskCfg,
		PaperTrading: cfg.PaperTrading,

		MaxConsecutiveFailures:  cfg.MaxConsecutiveFailures,
		BalanceAsset:            cfg.BalanceAsset,
		BalanceTolerancePercent: decimal.NewFromFloat(cfg.BalanceMismatchTolerance),
	}
	if exchange != nil {
		deps.Market = exchange
		if !cfg.PaperTrading {
			deps.Balances = exchange
		}
	}
	service, err := app.NewOrderService(deps)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize order service")
		log.Fatalf("FATAL: Failed to initialize order service: %v", err)
	}
	if err := service.Restore(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to restore ledger state")
		log.Fatalf("FATAL: Failed to restore ledger state: %v", err)
	}
	metrics.ObserveSnapshot(service.Snapshot())

	// 10. Initialize HTTP Server
	apiCfg := httpapi.Config{
		Engine:          service,
		Logger:          appLogger,
		Hub:             hub,
		APIKey:          cfg.ClientAPIKey,
		AdminToken:      cfg.AdminToken,
		MetricsHandler:  metrics.Handler(nil),
		RateLimit:       dashboardRateLimit,
		RateLimitWindow: dashboardRateWindow,
	}
	if cfg.RiskConfigPath != "" {
		apiCfg.RiskLoader = func() (domain.RiskConfig, error) {
			return config.LoadRiskConfig(cfg.RiskConfigPath, cfg.RiskConfig())
		}
	}
	if feed != nil {
		apiCfg.Events = feed
	}
	api, err := httpapi.NewServer(apiCfg)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize HTTP server")
		log.Fatalf("FATAL: Failed to initialize HTTP server: %v", err)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 11. Run until a signal arrives
	appLogger.Info(ctx, "Risk engine starting", map[string]interface{}{
		"addr":         cfg.HTTPAddr,
		"venue":        service.Venue(),
		"paperTrading": cfg.PaperTrading,
		"eventStream":  feed != nil,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(gctx) })
	g.Go(func() error { return bus.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx, service) })
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error(context.Background(), err, "Risk engine exited with error")
		log.Fatalf("FATAL: Risk engine exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

// newExecutor builds the execution venue and wraps it with the retry policy.
func newExecutor(cfg *config.Config, appLogger ports.Logger, exchange *binanceclient.Client) (ports.Executor, error) {
	var venue ports.Executor
	if cfg.PaperTrading {
		paper, err := execution.NewPaperExecutor(execution.PaperConfig{
			FeeRate:     decimal.NewFromFloat(cfg.PaperFeeRate),
			SlippageBps: decimal.NewFromFloat(cfg.PaperSlippageBps),
			Logger:      appLogger,
		})
		if err != nil {
			return nil, err
		}
		venue = paper
	} else {
		live, err := execution.NewLiveExecutor(execution.LiveConfig{
			Client:  exchange,
			Logger:  appLogger,
			Timeout: cfg.ExecutionTimeout,
			FeeRate: decimal.NewFromFloat(cfg.LiveFeeRate),
		})
		if err != nil {
			return nil, err
		}
		venue = live
	}
	return execution.NewRetryingExecutor(venue, execution.RetryConfig{
		MaxAttempts: cfg.ExecutionMaxRetries,
		BaseDelay:   cfg.ExecutionRetryBase,
		Logger:      appLogger,
	})
}
