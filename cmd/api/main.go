package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"settlement-engine/config"
	"settlement-engine/internal/adapter/gateway/mpesa"
	httpHandler "settlement-engine/internal/adapter/http/handler"
	"settlement-engine/internal/adapter/storage/memory"
	pgStorage "settlement-engine/internal/adapter/storage/postgres"
	redisStorage "settlement-engine/internal/adapter/storage/redis"
	"settlement-engine/internal/core/domain"
	"settlement-engine/internal/core/ports"
	"settlement-engine/internal/service"
	"settlement-engine/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// repositories bundles the persistence ports for whichever storage driver
// is configured.
type repositories struct {
	payments       ports.PaymentRequestRepository
	accounts       ports.AccountRepository
	assets         ports.AssetRepository
	holdings       ports.HoldingRepository
	ledger         ports.LedgerRepository
	grants         ports.GrantRepository
	gatewayConfigs ports.GatewayConfigRepository
	audit          ports.AuditRepository
	transactor     ports.DBTransactor
	health         ports.HealthChecker
	close          func()
}

func main() {
	// A .env file is optional; real deployments set SES_* directly.
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("gateway_config", cfg.Gateway.ConfigSource).
		Msg("Starting Settlement Engine")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	repos, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer repos.close()

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Redis stores
	callbackCache := redisStorage.NewCallbackCache(rdb)
	tokenCache := redisStorage.NewTokenCache(rdb)
	initiationLock := redisStorage.NewInitiationLock(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Crypto services
	encSvc, err := service.NewSecretCipher(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSigner()
	hashSvc := service.NewArgon2Hasher()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Gateway access
	gatewayClient := mpesa.NewClient(&http.Client{}, cfg.Gateway.Timeout, log)
	resolver := gatewayResolver(cfg, repos.gatewayConfigs, encSvc, log)
	tokenProvider := service.NewGatewayTokenProvider(gatewayClient, tokenCache, log)

	// Business services
	auditSvc := service.NewAuditService(repos.audit, log)
	alertSvc := service.NewAlertService(
		cfg.Alert.WebhookURL,
		cfg.Alert.Secret,
		sigSvc,
		&http.Client{Timeout: 10 * time.Second},
		log,
	)
	settlementRouter := service.NewSettlementRouter(
		repos.accounts,
		repos.assets,
		repos.holdings,
		repos.ledger,
		repos.grants,
		decimal.NewFromInt(cfg.Settlement.GrantBonus),
		log,
	)
	initiator := service.NewPaymentInitiator(
		repos.payments,
		repos.assets,
		repos.grants,
		repos.transactor,
		resolver,
		gatewayClient,
		tokenProvider,
		initiationLock,
		auditSvc,
		service.InitiatorLimits{
			MinDeposit:       cfg.Settlement.MinDeposit,
			MinAssetPurchase: cfg.Settlement.MinAssetPurchase,
		},
		log,
	)
	reconciler := service.NewCallbackReconciler(
		repos.payments,
		repos.transactor,
		settlementRouter,
		callbackCache,
		alertSvc,
		auditSvc,
		resolver,
		gatewayClient,
		tokenProvider,
		service.ReconcilerConfig{
			MaxAttempts: cfg.Settlement.MaxAttempts,
			BatchSize:   cfg.Redrive.BatchSize,
		},
		log,
	)
	statusSvc := service.NewStatusService(repos.payments, repos.accounts, repos.holdings)

	if cfg.Redrive.Enabled {
		worker := service.NewRedriveWorker(reconciler, cfg.Redrive.Interval, log)
		go worker.Run(ctx)
		log.Info().Dur("interval", cfg.Redrive.Interval).Msg("Redrive worker started")
	}

	var openAPISpec []byte
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		openAPISpec = specBytes
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Initiator:         initiator,
		Reconciler:        reconciler,
		RedriveSvc:        reconciler,
		StatusSvc:         statusSvc,
		AccountSvc:        statusSvc,
		TokenSvc:          tokenSvc,
		HashSvc:           hashSvc,
		CallbackTokenHash: cfg.Gateway.CallbackTokenHash,
		RateLimitStore:    rateLimitStore,
		HealthCheckers:    []ports.HealthChecker{repos.health, redisStorage.NewHealthCheck(rdb)},
		AuditSvc:          auditSvc,
		OpenAPISpec:       openAPISpec,
		Mode:              ginMode(cfg.Server.Mode),
		Logger:            log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// Stop the redrive worker before the storage it sweeps is closed.
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repositories, error) {
	if cfg.Storage.Driver == "memory" {
		store := memory.NewStore()
		seedDemoData(store, log)
		log.Warn().Msg("Using in-memory storage; all data is lost on exit")
		return &repositories{
			payments:       store.Payments(),
			accounts:       store.Accounts(),
			assets:         store.Assets(),
			holdings:       store.Holdings(),
			ledger:         store.Ledger(),
			grants:         store.Grants(),
			gatewayConfigs: store.GatewayConfigs(),
			audit:          store.Audit(),
			transactor:     store,
			health:         store,
			close:          func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("PostgreSQL connected")
	return &repositories{
		payments:       pgStorage.NewPaymentRequestRepo(pool),
		accounts:       pgStorage.NewAccountRepo(pool),
		assets:         pgStorage.NewAssetRepo(pool),
		holdings:       pgStorage.NewHoldingRepo(pool),
		ledger:         pgStorage.NewLedgerRepo(pool),
		grants:         pgStorage.NewGrantRepo(pool),
		gatewayConfigs: pgStorage.NewGatewayConfigRepo(pool),
		audit:          pgStorage.NewAuditRepository(pool),
		transactor:     pgStorage.NewTransactor(pool),
		health:         pgStorage.NewHealthCheck(pool),
		close:          pool.Close,
	}, nil
}

// seedDemoData gives a memory-backed instance one purchasable asset.
func seedDemoData(store *memory.Store, log zerolog.Logger) {
	asset := store.SeedAsset(domain.Asset{
		Symbol:              "DEMO",
		Name:                "Demo Asset",
		BasePrice:           decimal.RequireFromString("0.001"),
		PriceIncrement:      decimal.RequireFromString("0.00000001"),
		TotalSupply:         decimal.NewFromInt(1_000_000_000),
		GraduationThreshold: decimal.NewFromInt(10_000_000),
	})
	log.Info().Str("asset_id", asset.ID.String()).Str("symbol", asset.Symbol).Msg("Seeded demo asset")
}

func gatewayResolver(cfg *config.Config, repo ports.GatewayConfigRepository, encSvc ports.EncryptionService, log zerolog.Logger) ports.GatewayConfigResolver {
	if cfg.Gateway.ConfigSource == "database" {
		return service.NewDBGatewayConfigResolver(repo, encSvc, cfg.Gateway.BaseURL, log)
	}
	return service.NewStaticGatewayConfigResolver(domain.GatewayConfig{
		BaseURL:         cfg.Gateway.BaseURL,
		ShortCode:       cfg.Gateway.ShortCode,
		TillNumber:      cfg.Gateway.TillNumber,
		TransactionType: cfg.Gateway.TransactionType,
		ConsumerKey:     cfg.Gateway.ConsumerKey,
		ConsumerSecret:  cfg.Gateway.ConsumerSecret,
		Passkey:         cfg.Gateway.Passkey,
		CallbackURL:     cfg.Gateway.CallbackURL,
	})
}

func ginMode(serverMode string) string {
	switch serverMode {
	case "debug", "test":
		return serverMode
	}
	return "release"
}
