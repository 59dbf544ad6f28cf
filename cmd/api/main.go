package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"delivery-wallet-engine/config"
	httpHandler "delivery-wallet-engine/internal/adapter/http/handler"
	"delivery-wallet-engine/internal/adapter/provider/momo"
	memStorage "delivery-wallet-engine/internal/adapter/storage/memory"
	pgStorage "delivery-wallet-engine/internal/adapter/storage/postgres"
	redisStorage "delivery-wallet-engine/internal/adapter/storage/redis"
	"delivery-wallet-engine/internal/core/ports"
	"delivery-wallet-engine/internal/service"
	"delivery-wallet-engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// storage bundles whichever wallet store backend was configured.
type storage struct {
	wallets      ports.WalletRepository
	transactions ports.TransactionRepository
	transactor   ports.DBTransactor
	health       ports.HealthChecker
	close        func()
}

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./config.yaml or ./config/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting Delivery Wallet Engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise wallet store")
	}
	defer store.close()

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	callbackCache := redisStorage.NewCallbackCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)

	provider := momo.NewClient(cfg.Provider.MoMo, sigSvc, nil, log)

	walletSvc := service.NewWalletService(store.wallets, log)
	ledgerSvc := service.NewLedgerService(store.transactions, store.wallets, store.transactor, cfg.Ledger, log)
	escrowSvc := service.NewEscrowService(walletSvc, store.wallets, store.transactions, store.transactor, log)
	distributionSvc := service.NewDistributionService(walletSvc, store.wallets, store.transactions, store.transactor, log)
	paymentSvc := service.NewPaymentService(walletSvc, ledgerSvc, provider, callbackCache, cfg.Ledger.CallbackCacheTTL, log)

	if cfg.Sweeper.Enabled {
		sweeper := service.NewSweeper(store.transactions, ledgerSvc, cfg.Sweeper, log)
		go sweeper.Start(ctx)
		log.Info().Dur("interval", cfg.Sweeper.Interval).Msg("Sweeper started")
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Wallets:        walletSvc,
		Ledger:         ledgerSvc,
		Escrow:         escrowSvc,
		Distribution:   distributionSvc,
		Payments:       paymentSvc,
		SigSvc:         sigSvc,
		NonceStore:     nonceStore,
		TokenSvc:       tokenSvc,
		RateLimiter:    rateLimitStore,
		Internal:       cfg.Internal,
		HealthCheckers: []ports.HealthChecker{store.health, redisStorage.NewHealthCheck(rdb)},
		MetricsPath:    metricsPath,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("Using in-memory wallet store, balances are lost on restart")
		s := memStorage.NewStore()
		return &storage{
			wallets:      s.Wallets(),
			transactions: s.Transactions(),
			transactor:   s,
			health:       s,
			close:        func() {},
		}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := pgStorage.Migrate(ctx, cfg.Database.DSN(), "up", log); err != nil {
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("PostgreSQL connected")

	return &storage{
		wallets:      pgStorage.NewWalletRepo(pool),
		transactions: pgStorage.NewTransactionRepo(pool),
		transactor:   pgStorage.NewTransactor(pool, cfg.Database, log),
		health:       pgStorage.NewHealthCheck(pool),
		close:        pool.Close,
	}, nil
}
