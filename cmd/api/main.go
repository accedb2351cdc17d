package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/authpay/server/internal/challenge"
	"github.com/authpay/server/internal/config"
	"github.com/authpay/server/internal/db"
	httphandler "github.com/authpay/server/internal/http"
	"github.com/authpay/server/internal/http/handlers"
	"github.com/authpay/server/internal/merchant"
	"github.com/authpay/server/internal/notify"
	"github.com/authpay/server/internal/provider"
	"github.com/authpay/server/internal/receipt"
	"github.com/authpay/server/internal/risk"
	"github.com/authpay/server/internal/verifier"
)

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	// Open the database when any component needs it
	var database *sql.DB
	if cfg.DatabaseURL != "" {
		database, err = db.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		defer database.Close()

		if err := runMigrations(database); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	store, err := newStore(cfg, database)
	if err != nil {
		logger.Fatal("failed to create challenge store", zap.Error(err))
	}
	logger.Info("challenge store ready", zap.String("backend", cfg.ChallengeStore))

	var merchants merchant.Validator
	if len(cfg.MerchantKeys) > 0 {
		merchants = merchant.NewStaticValidator(cfg.MerchantKeys)
	} else {
		merchants = merchant.NewPostgresValidator(database)
	}

	dispatcher := notify.NewDispatcher(newSender(cfg, logger), logger)
	defer dispatcher.Close()

	var providerClient provider.Client
	if cfg.ProviderBaseURL != "" {
		providerClient = provider.NewHTTPClient(cfg.ProviderBaseURL)
	} else if len(cfg.ProviderCards) > 0 {
		providerClient = provider.NewStaticDirectory(cfg.ProviderCards, nil)
	}

	evaluator := risk.NewEvaluator(cfg.MFAAmountThreshold, cfg.HighRiskCountries, cfg.HomeCountry, cfg.DisposableFragments)
	receipts := receipt.NewSigner(cfg.ReceiptSecret, cfg.ReceiptTTL)
	service := challenge.NewService(store, merchants, evaluator, verifier.AnyProof{}, dispatcher,
		providerClient, receipts, cfg.SupportedCurrencies, cfg.MaxAmount, logger)
	sweeper := challenge.NewSweeper(store, cfg.SweepInterval, logger)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go sweeper.Run(sweepCtx)

	challengeHandler := handlers.NewChallengeHandler(service, providerClient, logger)
	healthHandler := handlers.NewHealthHandler(store, sweeper, logger)
	router := httphandler.NewRouter(challengeHandler, healthHandler, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// newStore builds the configured challenge store backend.
func newStore(cfg *config.Config, database *sql.DB) (challenge.Store, error) {
	switch cfg.ChallengeStore {
	case config.StoreMemory:
		return challenge.NewMemoryStore(cfg.ChallengeTTL), nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return challenge.NewRedisStore(client, cfg.ChallengeTTL), nil
	case config.StorePostgres:
		return challenge.NewPostgresStore(database, cfg.ChallengeTTL), nil
	default:
		return nil, fmt.Errorf("unknown challenge store %q", cfg.ChallengeStore)
	}
}

// newSender builds the configured notification backend.
func newSender(cfg *config.Config, logger *zap.Logger) notify.Sender {
	switch cfg.EmailBackend {
	case config.EmailFile:
		return &notify.FileSender{Dir: cfg.EmailFilePath, From: cfg.SenderEmail, Company: cfg.CompanyName}
	case config.EmailSMTP:
		return &notify.SMTPSender{
			Server:  cfg.SMTPServer,
			Port:    cfg.SMTPPort,
			From:    cfg.SenderEmail,
			Pass:    cfg.SenderPass,
			Company: cfg.CompanyName,
		}
	default:
		return &notify.LogSender{Log: logger}
	}
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
