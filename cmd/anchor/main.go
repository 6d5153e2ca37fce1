package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/josh-kwaku/anchor-gateway/internal/asset"
	"github.com/josh-kwaku/anchor-gateway/internal/config"
	"github.com/josh-kwaku/anchor-gateway/internal/handler"
	"github.com/josh-kwaku/anchor-gateway/internal/index"
	"github.com/josh-kwaku/anchor-gateway/internal/ledger"
	"github.com/josh-kwaku/anchor-gateway/internal/logging"
	"github.com/josh-kwaku/anchor-gateway/internal/notify"
	"github.com/josh-kwaku/anchor-gateway/internal/repository"
	"github.com/josh-kwaku/anchor-gateway/internal/server"
	"github.com/josh-kwaku/anchor-gateway/internal/service/custody"
	"github.com/josh-kwaku/anchor-gateway/internal/service/observer"
	"github.com/josh-kwaku/anchor-gateway/internal/service/reconcile"
	"github.com/josh-kwaku/anchor-gateway/internal/service/rpc"
	"github.com/josh-kwaku/anchor-gateway/internal/service/transfer"
	"github.com/josh-kwaku/anchor-gateway/internal/statemachine"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("anchor-gateway", cfg.LogLevel, cfg.AppEnv)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := asset.Load(cfg.AssetsFile)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	pool, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer pool.Close()

	transfers := repository.NewTransferRepository(pool)
	reconciliations := repository.NewReconciliationRepository(pool)
	custodyTxs := repository.NewCustodyTransactionRepository(pool)
	custodyEvents := repository.NewCustodyEventRepository(pool)
	idempotency := repository.NewIdempotencyRepository(pool)

	idx, err := newIndex(ctx, cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	active, err := transfers.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("run: list active transfers: %w", err)
	}
	if err := idx.Rebuild(ctx, active); err != nil {
		return fmt.Errorf("run: rebuild index: %w", err)
	}
	logger.Info("active transfer index rebuilt", "transfers", len(active))

	notifier, closeNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer closeNotifier()

	svc := transfer.NewService(transfer.Deps{
		Store:           transfers,
		Machine:         statemachine.New(),
		Index:           idx,
		Notifier:        notifier,
		Reconciliations: reconciliations,
		Custody:         custodyTxs,
		MaxRetries:      cfg.TransferRetries,
	})

	dispatcher := rpc.NewDispatcher(svc, rpc.NewHandlers(catalog), cfg.RPCBatchSizeLimit, cfg.RPCCallTimeout)

	ledgerClient := ledger.NewClient(cfg.LedgerHorizonURL, cfg.LedgerTimeout)
	obs := observer.New(
		ledgerClient,
		repository.NewCursorRepository(pool),
		repository.NewObservedPaymentRepository(pool),
		idx,
		observer.Config{
			SyncInterval:    cfg.ObserverSyncInterval,
			PageTimeout:     cfg.ObserverPageTimeout,
			PollInterval:    cfg.ObserverPollInterval,
			ListenerRetries: cfg.ObserverListenerRetries,
			MaxBackoff:      cfg.ObserverMaxBackoff,
		},
		observer.NewTransferListener(idx, svc, observer.NewMatcher(catalog)),
	)

	if cfg.CustodyPublicKey == "" {
		return errors.New("run: CUSTODY_PUBLIC_KEY is required")
	}
	verifier, err := custody.NewRSAVerifier(cfg.CustodyPublicKey)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	intake := custody.NewIntake(verifier, custodyEvents)
	processor := custody.NewProcessor(
		repository.NewDB(pool), custodyEvents, custodyTxs, ledgerClient, idx, svc,
		logger.With("component", "custody_processor"), cfg.CustodyPollEvery,
	)

	var custodyStatus reconcile.CustodyStatusClient
	if cfg.CustodyAPIKey != "" && cfg.CustodySecretKey != "" {
		client, err := custody.NewClient(cfg.CustodyAPIURL, cfg.CustodyAPIKey, cfg.CustodySecretKey)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		custodyStatus = client
	} else {
		logger.Warn("custody api credentials not set, timeout job will not poll provider status")
	}

	runner := reconcile.NewRunner(logger.With("component", "reconcile"),
		reconcile.NewTrustlineJob(reconciliations, ledgerClient, svc, reconcile.TrustlineConfig{
			Interval:       cfg.TrustlineCheckInterval,
			Timeout:        cfg.TrustlineCheckDuration,
			TimeoutMessage: cfg.TrustlineTimeoutMessage,
		}),
		reconcile.NewCustodyTimeoutJob(reconciliations, custodyTxs, custodyStatus, intake, svc, reconcile.CustodyTimeoutConfig{
			Interval:       cfg.CustodyCheckInterval,
			Timeout:        cfg.CustodyCheckDuration,
			TimeoutMessage: cfg.CustodyTimeoutMessage,
		}),
		reconcile.NewIdempotencyCleanupJob(idempotency, cfg.IdempotencyCleanupEvery),
	)

	router := server.NewRouter(server.Handlers{
		RPC:     handler.NewRPCHandler(dispatcher),
		Webhook: handler.NewWebhookHandler(intake),
		Health:  handler.NewHealthHandler(pool, obs),
	}, idempotency, server.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		IdempotencyTTL: cfg.IdempotencyTTL,
		RequestTimeout: cfg.RequestTimeout,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return obs.Run(gctx)
	})
	g.Go(func() error {
		processor.Start(gctx)
		return nil
	})
	g.Go(func() error {
		runner.Start(gctx)
		return nil
	})

	return g.Wait()
}

func newIndex(ctx context.Context, cfg *config.Config) (index.Index, error) {
	if cfg.RedisURL == "" {
		return index.NewMemory(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("newIndex: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("newIndex: ping redis: %w", err)
	}
	return index.NewRedis(client, "anchor:index"), nil
}

func newNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, func(), error) {
	var multi notify.Multi
	closeFn := func() {}

	if cfg.NotifyAMQPURL != "" {
		publisher, err := notify.NewAMQP(cfg.NotifyAMQPURL, cfg.NotifyExchange, logger.With("component", "amqp_notifier"))
		if err != nil {
			return nil, nil, fmt.Errorf("newNotifier: %w", err)
		}
		multi = append(multi, publisher)
		closeFn = publisher.Close
	}
	if cfg.NotifyCallbackURL != "" {
		multi = append(multi, notify.NewHTTPCallback(cfg.NotifyCallbackURL, cfg.NotifyToken, cfg.NotifyTimeout))
	}

	if len(multi) == 0 {
		logger.Warn("no notifier configured, status changes will not be published")
		return notify.Noop{}, closeFn, nil
	}
	return multi, closeFn, nil
}
