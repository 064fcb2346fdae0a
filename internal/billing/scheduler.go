package billing

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/homevault/payments/internal/domain/payment"
	"github.com/homevault/payments/internal/domain/subscription"
	"github.com/homevault/payments/internal/infrastructure/observability"
	"github.com/homevault/payments/internal/orchestrator"
)

const subscriptionLockTTL = 30 * time.Second

// Locker serializes billing per subscription across scheduler instances.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Config holds the scheduler's batch and charge policy.
type Config struct {
	BatchSize       int
	Parallelism     int
	DefaultMethod   payment.Method
	DefaultProvider payment.Provider
}

// Summary reports one billing run.
type Summary struct {
	Due     int
	Charged int64
	Failed  int64
	Skipped int64
}

// Scheduler charges due subscriptions in bounded-parallel batches. A failed
// charge marks its subscription past due and never aborts the batch.
type Scheduler struct {
	subscriptionRepo subscription.Repository
	orchestrator     *orchestrator.Orchestrator
	locker           Locker
	cfg              Config
	logger           zerolog.Logger
	metrics          *observability.Metrics
}

// New creates a Scheduler. metrics may be nil.
func New(
	subscriptionRepo subscription.Repository,
	orch *orchestrator.Orchestrator,
	locker Locker,
	cfg Config,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 5
	}
	if cfg.DefaultMethod == "" {
		cfg.DefaultMethod = payment.MethodCard
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = payment.ProviderStripe
	}
	return &Scheduler{
		subscriptionRepo: subscriptionRepo,
		orchestrator:     orch,
		locker:           locker,
		cfg:              cfg,
		logger:           logger.With().Str("component", "billing").Logger(),
		metrics:          metrics,
	}
}

// Run bills due subscriptions on the given interval until the context is
// cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := s.RunOnce(ctx, time.Now())
			if err != nil {
				s.logger.Error().Err(err).Msg("billing run failed")
				continue
			}
			s.logger.Info().
				Int("due", summary.Due).
				Int64("charged", summary.Charged).
				Int64("failed", summary.Failed).
				Int64("skipped", summary.Skipped).
				Msg("billing run complete")
		}
	}
}

// RunOnce bills every subscription due at the given time. Each subscription
// is processed independently; the returned error covers only the batch query.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (Summary, error) {
	start := time.Now()
	due, err := s.subscriptionRepo.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		if s.metrics != nil {
			s.metrics.BillingRunsTotal.WithLabelValues("error").Inc()
		}
		return Summary{}, err
	}

	var charged, failed, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for _, sub := range due {
		sub := sub
		g.Go(func() error {
			switch s.billOne(gctx, sub, now) {
			case billOutcomeCharged:
				charged.Add(1)
			case billOutcomeFailed:
				failed.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	// Workers always return nil; Wait only observes context cancellation.
	_ = g.Wait()

	if s.metrics != nil {
		s.metrics.BillingRunsTotal.WithLabelValues("success").Inc()
		s.metrics.BillingSubscriptionsTotal.WithLabelValues("charged").Add(float64(charged.Load()))
		s.metrics.BillingSubscriptionsTotal.WithLabelValues("failed").Add(float64(failed.Load()))
		s.metrics.BillingSubscriptionsTotal.WithLabelValues("skipped").Add(float64(skipped.Load()))
		s.metrics.BillingRunDuration.Observe(time.Since(start).Seconds())
	}

	return Summary{
		Due:     len(due),
		Charged: charged.Load(),
		Failed:  failed.Load(),
		Skipped: skipped.Load(),
	}, ctx.Err()
}

type billOutcome int

const (
	billOutcomeSkipped billOutcome = iota
	billOutcomeCharged
	billOutcomeFailed
)

func (s *Scheduler) billOne(ctx context.Context, sub *subscription.Subscription, now time.Time) billOutcome {
	outcome := billOutcomeSkipped
	lockKey := "billing:subscription:" + sub.ID.String()

	err := s.locker.WithLock(ctx, lockKey, subscriptionLockTTL, func(ctx context.Context) error {
		// Re-read under the lock: another instance may have billed it already.
		fresh, err := s.subscriptionRepo.GetByID(ctx, sub.ID)
		if err != nil {
			return err
		}
		if !fresh.IsDue(now) {
			return nil
		}

		result, chargeErr := s.orchestrator.ProcessSubscriptionPayment(ctx, fresh.ID, s.cfg.DefaultMethod, s.cfg.DefaultProvider)
		if chargeErr != nil || result.Payment == nil || !result.Payment.IsCaptured() {
			fresh.MarkPastDue()
			if err := s.subscriptionRepo.Update(ctx, fresh); err != nil {
				return err
			}
			outcome = billOutcomeFailed
			s.logger.Warn().Err(chargeErr).
				Str("subscription_id", fresh.ID.String()).
				Int("failed_payments", fresh.FailedPaymentCount).
				Msg("subscription charge failed, marked past due")
			return nil
		}

		fresh.AdvanceBillingDate()
		if err := s.subscriptionRepo.Update(ctx, fresh); err != nil {
			return err
		}
		outcome = billOutcomeCharged
		s.logger.Info().
			Str("subscription_id", fresh.ID.String()).
			Str("payment_id", result.Payment.ID.String()).
			Time("next_billing_date", fresh.NextBillingDate).
			Msg("subscription billed")
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("subscription_id", sub.ID.String()).
			Msg("billing attempt errored")
		return billOutcomeFailed
	}
	return outcome
}
