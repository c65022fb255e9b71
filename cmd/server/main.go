package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/billingops/payment-orchestrator/internal/adapters/banktransfer"
	"github.com/billingops/payment-orchestrator/internal/adapters/comgate"
	"github.com/billingops/payment-orchestrator/internal/adapters/hostbill"
	"github.com/billingops/payment-orchestrator/internal/config"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
	paymentHandler "github.com/billingops/payment-orchestrator/internal/handlers/payment"
	"github.com/billingops/payment-orchestrator/internal/ledger"
	"github.com/billingops/payment-orchestrator/internal/services/orchestration"
	pkghttp "github.com/billingops/payment-orchestrator/pkg/http"
	"github.com/billingops/payment-orchestrator/pkg/observability"
	"github.com/billingops/payment-orchestrator/pkg/resilience"
)

func main() {
	// Load configuration from environment
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fallback, _ := zap.NewDevelopment()
		fallback.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize logger
	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("Starting payment orchestrator",
		zap.String("version", "0.1.0"),
	)

	ctx := context.Background()

	// Resolve credential refs through the configured secret backend
	secretSource := initSecretSource(ctx, cfg, logger)
	if err := resolveSecrets(ctx, cfg, secretSource); err != nil {
		logger.Fatal("Failed to resolve secrets", zap.Error(err))
	}

	// Initialize the attempt ledger: durable when a DSN is configured,
	// in-memory otherwise
	var attemptLedger ports.Ledger
	var dbPool *pgxpool.Pool
	if cfg.Database.DSN != "" {
		dbPool, err = initDatabase(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer dbPool.Close()

		if err := ledger.Migrate(ctx, dbPool); err != nil {
			logger.Fatal("Failed to migrate ledger schema", zap.Error(err))
		}
		attemptLedger = ledger.NewPostgresLedger(dbPool)
		logger.Info("Durable ledger enabled")
	} else {
		attemptLedger = ledger.NewMemoryLedger()
		logger.Warn("In-memory ledger enabled; attempts do not survive restarts")
	}

	timeouts := resilience.DefaultTimeoutConfig()

	// Billing system client
	billingTimeout := timeouts.BillingAPI
	if cfg.Billing.Timeout > 0 {
		billingTimeout = time.Duration(cfg.Billing.Timeout) * time.Second
	}
	billingClient := hostbill.NewClient(
		hostbill.Config{
			BaseURL: cfg.Billing.BaseURL,
			APIID:   cfg.Billing.APIID,
			APIKey:  cfg.Billing.APIKey,
		},
		pkghttp.NewClient(pkghttp.BillingClientConfig(), billingTimeout),
		logger,
	)

	// Gateway adapters
	adapters := initGateways(cfg, timeouts, logger)
	if len(adapters) == 0 {
		logger.Fatal("No payment gateways configured")
	}

	service := orchestration.New(
		billingClient,
		attemptLedger,
		adapters,
		cfg.AllowedCurrencies,
		resilience.PollingPolicy{
			MaxAttempts:       cfg.Verification.MaxAttempts,
			InitialDelay:      cfg.Verification.InitialDelay,
			BackoffMultiplier: cfg.Verification.BackoffMultiplier,
			MaxDelay:          cfg.Verification.MaxDelay,
			Jitter:            0.1,
		},
		orchestration.CallbackURLs{
			ReturnURL:  cfg.URLs.ReturnURL,
			CancelURL:  cfg.URLs.CancelURL,
			PendingURL: cfg.URLs.PendingURL,
		},
		logger,
	)

	// HTTP API
	mux := http.NewServeMux()
	paymentHandler.NewHandler(service, logger).Register(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      observability.Middleware("api", mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: timeouts.HTTPHandler,
		IdleTimeout:  60 * time.Second,
	}

	// Metrics and health endpoints on their own port
	healthChecker := observability.NewHealthChecker(dbPool)
	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker)

	go func() {
		logger.Info("HTTP server listening",
			zap.String("address", httpServer.Addr),
			zap.Int("metrics_port", cfg.Server.MetricsPort),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := observability.ShutdownMetricsServer(metricsServer); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	logger.Info("Servers stopped")
}

// initLogger builds the logger from LOG_LEVEL / LOG_DEVELOPMENT
func initLogger(cfg config.LoggerConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, _ := zapCfg.Build()
	return logger
}

// initDatabase initializes the PostgreSQL connection pool backing the ledger
func initDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Database connection established")
	return pool, nil
}

// initGateways builds the adapter set from configuration. A gateway with no
// credentials is skipped rather than registered broken.
func initGateways(cfg *config.Config, timeouts *resilience.TimeoutConfig, logger *zap.Logger) []ports.GatewayAdapter {
	var adapters []ports.GatewayAdapter

	if cfg.Comgate.MerchantID != "" && cfg.Comgate.Secret != "" {
		adapters = append(adapters, comgate.NewAdapter(
			comgate.Config{
				BaseURL:    cfg.Comgate.BaseURL,
				MerchantID: cfg.Comgate.MerchantID,
				Secret:     cfg.Comgate.Secret,
				Test:       cfg.Comgate.Test,
			},
			pkghttp.NewClient(pkghttp.GatewayClientConfig(), timeouts.GatewayAPI),
			logger,
		))
		logger.Info("Gateway registered", zap.String("method", comgate.MethodName))
	} else {
		logger.Warn("ComGate gateway not configured; method disabled")
	}

	if cfg.BankTransfer.AccountNumber != "" || cfg.BankTransfer.IBAN != "" {
		adapters = append(adapters, banktransfer.NewAdapter(
			banktransfer.Config{
				AccountName:   cfg.BankTransfer.AccountName,
				AccountNumber: cfg.BankTransfer.AccountNumber,
				BankCode:      cfg.BankTransfer.BankCode,
				IBAN:          cfg.BankTransfer.IBAN,
				SwiftBIC:      cfg.BankTransfer.SwiftBIC,
			},
			logger,
		))
		logger.Info("Gateway registered", zap.String("method", banktransfer.MethodName))
	}

	return adapters
}
