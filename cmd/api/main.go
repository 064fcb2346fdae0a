package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/homevault/payments/internal/bootstrap"
	"github.com/homevault/payments/internal/controller"
	"github.com/homevault/payments/internal/gateway"
	infraRedis "github.com/homevault/payments/internal/infrastructure/redis"
	"github.com/homevault/payments/internal/ledger"
	"github.com/homevault/payments/internal/orchestrator"
	"github.com/homevault/payments/internal/reconciler"
	"github.com/homevault/payments/internal/repository/postgres"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "homevault-payments-api", "homevault")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	paymentRepo := postgres.NewPaymentRepository(app.Pool)
	transactionRepo := postgres.NewTransactionRepository(app.Pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)

	// --- Gateways ---
	registry := gateway.NewRegistryFromConfig(app.Config.Gateways)
	app.Logger.Info().
		Int("providers", len(registry.Providers())).
		Msg("Gateway registry built")

	// --- Services ---
	txManager := postgres.NewTxManager(app.Pool)
	ldg := ledger.New(transactionRepo, txManager)
	orch := orchestrator.New(paymentRepo, subscriptionRepo, ldg, registry, app.Logger)
	locker := infraRedis.NewLockManager(app.Redis)
	rec := reconciler.New(registry, paymentRepo, ldg, locker, txManager, app.Logger)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:            app.Pool,
		RedisClient:     app.Redis,
		Ledger:          ldg,
		Orchestrator:    orch,
		Reconciler:      rec,
		IdempotencyRepo: idempotencyRepo,
		Metrics:         app.Metrics,
		CORSConfig:      app.Config.Server.CORS,
	})

	// Purge expired idempotency keys in the background.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := idempotencyRepo.Cleanup(ctx); err != nil {
					app.Logger.Warn().Err(err).Msg("Idempotency cleanup failed")
				} else if n > 0 {
					app.Logger.Debug().Int64("removed", n).Msg("Expired idempotency keys purged")
				}
			}
		}
	}()

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
