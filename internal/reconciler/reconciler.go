package reconciler

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	domainErrors "github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
	"github.com/homevault/payments/internal/domain/transaction"
	"github.com/homevault/payments/internal/gateway"
	"github.com/homevault/payments/internal/ledger"
)

const lockTTL = 10 * time.Second

// Locker serializes webhook application per payment.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Outcome classifies how a webhook delivery was handled.
type Outcome string

const (
	// OutcomeApplied means the event changed state.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the event id was seen before; acknowledged, no-op.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means an authenticated delivery could not be applied
	// (malformed payload or unknown payment); acknowledged so the provider
	// stops retrying.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeRejected means the delivery failed authentication or named an
	// unsupported provider.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means a transient internal error; the provider should
	// redeliver.
	OutcomeFailed Outcome = "failed"
)

// Result reports the reconciliation of one webhook delivery.
type Result struct {
	Outcome   Outcome
	Provider  payment.Provider
	EventID   string
	EventType string
	PaymentID string
	Status    payment.Status
	Err       error
}

// Reconciler applies gateway webhook events to payments: verify first, parse
// second, deduplicate by event id, then move the payment and cascade to the
// owning transaction.
type Reconciler struct {
	registry    *gateway.Registry
	paymentRepo payment.Repository
	ledger      *ledger.Ledger
	locker      Locker
	atomic      ledger.AtomicRunner
	logger      zerolog.Logger
}

// New creates a Reconciler. atomic may be nil, in which case event
// application runs without transactional guarantees.
func New(
	registry *gateway.Registry,
	paymentRepo payment.Repository,
	ldg *ledger.Ledger,
	locker Locker,
	atomic ledger.AtomicRunner,
	logger zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		registry:    registry,
		paymentRepo: paymentRepo,
		ledger:      ldg,
		locker:      locker,
		atomic:      atomic,
		logger:      logger.With().Str("component", "reconciler").Logger(),
	}
}

func (r *Reconciler) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.atomic == nil {
		return fn(ctx)
	}
	return r.atomic.WithTransaction(ctx, fn)
}

// ProcessWebhook runs the full reconciliation pipeline for one raw delivery.
// The signature is verified against the exact raw body before any parsing.
func (r *Reconciler) ProcessWebhook(ctx context.Context, provider payment.Provider, rawBody []byte, header http.Header) Result {
	adapter, _, err := r.registry.Get(provider)
	if err != nil {
		return Result{Outcome: OutcomeRejected, Provider: provider, Err: err}
	}

	if !adapter.VerifySignature(ctx, rawBody, header) {
		r.logger.Warn().
			Str("provider", string(provider)).
			Int("body_bytes", len(rawBody)).
			Msg("webhook signature verification failed")
		return Result{Outcome: OutcomeRejected, Provider: provider, Err: domainErrors.ErrSignatureInvalid}
	}

	event, err := adapter.ParseEvent(rawBody)
	if err != nil {
		// Authenticated but unusable. Log and acknowledge; retrying the same
		// body cannot succeed.
		r.logger.Error().Err(err).
			Str("provider", string(provider)).
			Msg("authenticated webhook could not be parsed")
		return Result{Outcome: OutcomeIgnored, Provider: provider, Err: err}
	}

	res := Result{
		Provider:  provider,
		EventID:   event.ID,
		EventType: event.Type,
		PaymentID: event.PaymentID.String(),
	}

	p, err := r.paymentRepo.GetByID(ctx, event.PaymentID)
	if err != nil {
		if stderrors.Is(err, domainErrors.ErrPaymentNotFound) {
			r.logger.Warn().
				Str("provider", string(provider)).
				Str("event_id", event.ID).
				Str("payment_id", event.PaymentID.String()).
				Msg("webhook references unknown payment")
			res.Outcome = OutcomeIgnored
			res.Err = err
			return res
		}
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	lockKey := "webhook:payment:" + p.ID.String()
	err = r.locker.WithLock(ctx, lockKey, lockTTL, func(ctx context.Context) error {
		outcome, status, applyErr := r.apply(ctx, adapter, event)
		res.Outcome = outcome
		res.Status = status
		return applyErr
	})
	if err != nil {
		res.Err = err
		if res.Outcome == "" || res.Outcome == OutcomeApplied {
			res.Outcome = OutcomeFailed
		}
		return res
	}
	return res
}

// apply runs the locked portion of the pipeline inside one transaction. The
// dedupe insert must commit together with the payment update: if it committed
// alone and the update then failed, the provider's redelivery would be
// classified duplicate and the event lost.
func (r *Reconciler) apply(ctx context.Context, adapter gateway.Adapter, event *gateway.Event) (Outcome, payment.Status, error) {
	var (
		outcome Outcome
		status  payment.Status
	)
	err := r.atomically(ctx, func(ctx context.Context) error {
		var applyErr error
		outcome, status, applyErr = r.applyEvent(ctx, adapter, event)
		return applyErr
	})
	if err != nil {
		return OutcomeFailed, "", err
	}
	return outcome, status, nil
}

// applyEvent deduplicates, records the delivery, moves the payment and
// cascades to the owning transaction.
func (r *Reconciler) applyEvent(ctx context.Context, adapter gateway.Adapter, event *gateway.Event) (Outcome, payment.Status, error) {
	inserted, err := r.paymentRepo.MarkEventProcessed(ctx, event.PaymentID, event.ID)
	if err != nil {
		return OutcomeFailed, "", err
	}
	if !inserted {
		r.logger.Debug().
			Str("event_id", event.ID).
			Str("payment_id", event.PaymentID.String()).
			Msg("duplicate webhook event, acknowledging")
		return OutcomeDuplicate, "", nil
	}

	// Reload under the lock so we apply against current state.
	p, err := r.paymentRepo.GetByID(ctx, event.PaymentID)
	if err != nil {
		return OutcomeFailed, "", err
	}

	sanitized := gateway.Sanitize(event.Raw)
	p.RecordWebhook(event.ID, sanitized)
	if event.GatewayTransactionID != "" && p.GatewayTransactionID == nil {
		p.SetGatewayResult(event.GatewayTransactionID, "", nil)
	}

	// Unrecognized event types map to pending; those are recorded for audit
	// but never move the payment.
	newStatus := adapter.MapEventToStatus(event.Type)
	moved := false
	if newStatus != payment.StatusPending && newStatus != p.Status && p.CanTransitionTo(newStatus) {
		if err := p.TransitionTo(newStatus); err != nil {
			return OutcomeFailed, "", err
		}
		moved = true
	}

	if err := r.paymentRepo.Update(ctx, p); err != nil {
		return OutcomeFailed, "", err
	}

	if moved {
		r.cascade(ctx, p, event)
	}

	r.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("payment_id", p.ID.String()).
		Str("status", string(p.Status)).
		Bool("moved", moved).
		Msg("webhook applied")
	return OutcomeApplied, p.Status, nil
}

// cascade completes or fails the owning transaction after a payment-moving
// event. Transactions already terminal are left alone.
func (r *Reconciler) cascade(ctx context.Context, p *payment.Payment, event *gateway.Event) {
	var target transaction.Status
	switch {
	case p.IsCaptured():
		target = transaction.StatusCompleted
	case p.Status == payment.StatusFailed:
		target = transaction.StatusFailed
	default:
		return
	}

	_, err := r.ledger.UpdateStatus(ctx, p.TransactionID, target, map[string]any{
		"completed_via": "webhook",
		"provider":      string(p.Provider),
		"event_id":      event.ID,
	})
	if err != nil {
		if stderrors.Is(err, domainErrors.ErrInvalidTransition) {
			return
		}
		r.logger.Error().Err(err).
			Str("transaction_id", p.TransactionID.String()).
			Str("event_id", event.ID).
			Msg("failed to cascade webhook to transaction")
	}
}
