package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/homevault/payments/internal/billing"
	"github.com/homevault/payments/internal/bootstrap"
	"github.com/homevault/payments/internal/domain/payment"
	"github.com/homevault/payments/internal/gateway"
	infraRedis "github.com/homevault/payments/internal/infrastructure/redis"
	"github.com/homevault/payments/internal/ledger"
	"github.com/homevault/payments/internal/orchestrator"
	"github.com/homevault/payments/internal/repository/postgres"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "homevault-payments-billing", "homevault")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	paymentRepo := postgres.NewPaymentRepository(app.Pool)
	transactionRepo := postgres.NewTransactionRepository(app.Pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(app.Pool)

	// --- Services ---
	registry := gateway.NewRegistryFromConfig(app.Config.Gateways)
	ldg := ledger.New(transactionRepo, postgres.NewTxManager(app.Pool))
	orch := orchestrator.New(paymentRepo, subscriptionRepo, ldg, registry, app.Logger)
	locker := infraRedis.NewLockManager(app.Redis)

	billingCfg := app.Config.Billing
	scheduler := billing.New(
		subscriptionRepo,
		orch,
		locker,
		billing.Config{
			BatchSize:       billingCfg.BatchSize,
			Parallelism:     billingCfg.Parallelism,
			DefaultMethod:   payment.Method(billingCfg.DefaultMethod),
			DefaultProvider: payment.Provider(billingCfg.DefaultProvider),
		},
		app.Logger,
		app.Metrics,
	)

	app.Logger.Info().
		Dur("interval", billingCfg.Interval).
		Int("batch_size", billingCfg.BatchSize).
		Int("parallelism", billingCfg.Parallelism).
		Msg("Billing scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Bill anything already overdue, then keep running on the interval.
	g.Go(func() error {
		if summary, err := scheduler.RunOnce(gCtx, time.Now()); err != nil {
			app.Logger.Error().Err(err).Msg("Initial billing run failed")
		} else {
			app.Logger.Info().
				Int("due", summary.Due).
				Int64("charged", summary.Charged).
				Int64("failed", summary.Failed).
				Int64("skipped", summary.Skipped).
				Msg("Initial billing run complete")
		}
		scheduler.Run(gCtx, billingCfg.Interval)
		return nil
	})

	// 2. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down billing scheduler...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Billing scheduler error")
	}
	app.Logger.Info().Msg("Billing scheduler exited")
}
