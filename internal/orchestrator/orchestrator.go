package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domainErrors "github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
	"github.com/homevault/payments/internal/domain/subscription"
	"github.com/homevault/payments/internal/domain/transaction"
	"github.com/homevault/payments/internal/gateway"
	"github.com/homevault/payments/internal/ledger"
)

// Orchestrator coordinates the payment state machine across gateways: it
// persists first, talks to the gateway second, and writes the outcome back.
type Orchestrator struct {
	paymentRepo      payment.Repository
	subscriptionRepo subscription.Repository
	ledger           *ledger.Ledger
	registry         *gateway.Registry
	logger           zerolog.Logger
}

// New creates an Orchestrator.
func New(
	paymentRepo payment.Repository,
	subscriptionRepo subscription.Repository,
	ldg *ledger.Ledger,
	registry *gateway.Registry,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		paymentRepo:      paymentRepo,
		subscriptionRepo: subscriptionRepo,
		ledger:           ldg,
		registry:         registry,
		logger:           logger.With().Str("component", "orchestrator").Logger(),
	}
}

// InitiatePaymentRequest holds the input for creating a payment attempt.
type InitiatePaymentRequest struct {
	TransactionID uuid.UUID
	AmountMinor   int64
	Currency      string
	Method        payment.Method
	Provider      payment.Provider
	Metadata      map[string]any
}

// InitiatePayment creates a payment attempt against an existing transaction.
// The record is persisted before any gateway call; intent creation at the
// gateway is best effort and never fails the initiation.
func (o *Orchestrator) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*payment.Payment, error) {
	t, err := o.ledger.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}

	amount := payment.Amount{ValueMinor: req.AmountMinor, Currency: req.Currency}
	if amount.ValueMinor == 0 {
		amount = t.Amount
	}

	p, err := payment.NewPayment(t.ID, amount, req.Method, req.Provider)
	if err != nil {
		return nil, err
	}
	if err := o.paymentRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	if o.wantsIntent(req.Provider, req.Method) {
		o.createIntent(ctx, p, req.Metadata)
	}
	return p, nil
}

func (o *Orchestrator) wantsIntent(provider payment.Provider, method payment.Method) bool {
	return provider != payment.ProviderCash && method != payment.MethodBankTransfer
}

// createIntent registers the upcoming charge at the gateway. Failure here is
// logged and swallowed: the payment stays initiated and the charge path can
// still proceed without a pre-created intent.
func (o *Orchestrator) createIntent(ctx context.Context, p *payment.Payment, metadata map[string]any) {
	adapter, breaker, err := o.registry.Get(p.Provider)
	if err != nil {
		o.logger.Warn().Err(err).
			Str("payment_id", p.ID.String()).
			Str("provider", string(p.Provider)).
			Msg("intent skipped: no adapter for provider")
		return
	}

	result, err := breaker.Execute(func() (*gateway.Result, error) {
		return adapter.CreateIntent(ctx, gateway.Request{
			PaymentID:   p.ID,
			AmountMinor: p.Amount.ValueMinor,
			Currency:    p.Amount.Currency,
			Method:      p.Method,
			Metadata:    metadata,
		})
	})
	if err != nil {
		o.logger.Warn().Err(err).
			Str("payment_id", p.ID.String()).
			Str("provider", string(p.Provider)).
			Msg("intent creation failed, continuing without intent")
		return
	}

	p.SetGatewayResult(result.GatewayTransactionID, result.GatewayReference, result.Raw)
	if err := o.paymentRepo.Update(ctx, p); err != nil {
		o.logger.Error().Err(err).
			Str("payment_id", p.ID.String()).
			Msg("failed to persist gateway intent")
	}
}

// ProcessPayment executes the charge for an initiated payment. A gateway
// outage leaves the payment pending and is safe to retry; a business decline
// marks it failed.
func (o *Orchestrator) ProcessPayment(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error) {
	p, err := o.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != payment.StatusInitiated && p.Status != payment.StatusPending {
		return nil, domainErrors.NewDomainError(
			"precondition_failed",
			"payment "+p.ID.String()+" is "+string(p.Status)+", cannot process",
			domainErrors.ErrPreconditionFailed,
		)
	}

	adapter, breaker, err := o.registry.Get(p.Provider)
	if err != nil {
		return nil, err
	}

	if p.Status == payment.StatusInitiated {
		if err := p.TransitionTo(payment.StatusPending); err != nil {
			return nil, err
		}
		if err := o.paymentRepo.Update(ctx, p); err != nil {
			return nil, err
		}
	}

	// Mark the ledger side as in flight. Best effort: the transaction may
	// already be processing from an earlier attempt.
	if t, tErr := o.ledger.GetTransaction(ctx, p.TransactionID); tErr == nil && t.Status == transaction.StatusPending {
		if _, uErr := o.ledger.UpdateStatus(ctx, p.TransactionID, transaction.StatusProcessing, nil); uErr != nil {
			o.logger.Warn().Err(uErr).
				Str("transaction_id", p.TransactionID.String()).
				Msg("failed to mark transaction processing")
		}
	}

	result, err := breaker.Execute(func() (*gateway.Result, error) {
		return adapter.Charge(ctx, gateway.Request{
			PaymentID:   p.ID,
			AmountMinor: p.Amount.ValueMinor,
			Currency:    p.Amount.Currency,
			Method:      p.Method,
			Metadata:    o.chargeMetadata(p),
		})
	})
	if err != nil {
		return o.handleChargeError(ctx, p, err)
	}

	p.SetGatewayResult(result.GatewayTransactionID, result.GatewayReference, result.Raw)
	if result.Status != p.Status && p.CanTransitionTo(result.Status) {
		if tErr := p.TransitionTo(result.Status); tErr != nil {
			return nil, tErr
		}
	}
	if err := o.paymentRepo.Update(ctx, p); err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("payment_id", p.ID.String()).
		Str("provider", string(p.Provider)).
		Str("status", string(p.Status)).
		Msg("payment processed")
	return p, nil
}

// chargeMetadata threads previously stored gateway identifiers into the
// charge request so adapters can continue an existing intent.
func (o *Orchestrator) chargeMetadata(p *payment.Payment) map[string]any {
	md := make(map[string]any)
	if p.GatewayTransactionID != nil {
		md["gateway_transaction_id"] = *p.GatewayTransactionID
	}
	if v, ok := p.GatewayResponse["gateway_payment_id"].(string); ok {
		md["gateway_payment_id"] = v
	}
	return md
}

func (o *Orchestrator) handleChargeError(ctx context.Context, p *payment.Payment, chargeErr error) (*payment.Payment, error) {
	if stderrors.Is(chargeErr, domainErrors.ErrGatewayRejected) {
		if err := p.MarkFailed(chargeErr.Error()); err != nil {
			return nil, err
		}
		if err := o.paymentRepo.Update(ctx, p); err != nil {
			return nil, err
		}
		if _, err := o.ledger.UpdateStatus(ctx, p.TransactionID, transaction.StatusFailed, map[string]any{
			"failure_reason": chargeErr.Error(),
		}); err != nil {
			o.logger.Warn().Err(err).
				Str("transaction_id", p.TransactionID.String()).
				Msg("failed to mark transaction failed")
		}
		o.logger.Info().
			Str("payment_id", p.ID.String()).
			Str("provider", string(p.Provider)).
			Msg("charge declined by gateway")
		return nil, chargeErr
	}

	// Outage, timeout or open breaker: the payment stays pending so the
	// caller can retry, or a webhook can settle it later.
	o.logger.Error().Err(chargeErr).
		Str("payment_id", p.ID.String()).
		Str("provider", string(p.Provider)).
		Msg("charge failed, payment left pending")
	return nil, fmt.Errorf("charge payment %s: %w", p.ID, chargeErr)
}

// CapturePayment captures a previously authorized payment. The precondition
// is checked before any gateway call.
func (o *Orchestrator) CapturePayment(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error) {
	p, err := o.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.CanCapture() {
		return nil, domainErrors.NewDomainError(
			"precondition_failed",
			"payment "+p.ID.String()+" is "+string(p.Status)+", capture requires authorized",
			domainErrors.ErrPreconditionFailed,
		)
	}

	adapter, breaker, err := o.registry.Get(p.Provider)
	if err != nil {
		return nil, err
	}

	result, err := breaker.Execute(func() (*gateway.Result, error) {
		return adapter.Capture(ctx, gateway.CaptureRequest{
			PaymentID:            p.ID,
			GatewayTransactionID: derefOrEmpty(p.GatewayTransactionID),
			AmountMinor:          p.Amount.ValueMinor,
			Currency:             p.Amount.Currency,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("capture payment %s: %w", p.ID, err)
	}

	p.SetGatewayResult(result.GatewayTransactionID, result.GatewayReference, result.Raw)
	if err := p.TransitionTo(payment.StatusCaptured); err != nil {
		return nil, err
	}
	if err := o.paymentRepo.Update(ctx, p); err != nil {
		return nil, err
	}

	o.logger.Info().Str("payment_id", p.ID.String()).Msg("payment captured")
	return p, nil
}

// RefundPayment refunds a captured or settled payment. The precondition is
// checked before any gateway call.
func (o *Orchestrator) RefundPayment(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error) {
	p, err := o.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.CanRefund() {
		return nil, domainErrors.NewDomainError(
			"precondition_failed",
			"payment "+p.ID.String()+" is "+string(p.Status)+", refund requires captured or settled",
			domainErrors.ErrPreconditionFailed,
		)
	}

	adapter, breaker, err := o.registry.Get(p.Provider)
	if err != nil {
		return nil, err
	}

	result, err := breaker.Execute(func() (*gateway.Result, error) {
		return adapter.Refund(ctx, gateway.RefundRequest{
			PaymentID:            p.ID,
			GatewayTransactionID: derefOrEmpty(p.GatewayTransactionID),
			AmountMinor:          p.Amount.ValueMinor,
			Currency:             p.Amount.Currency,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("refund payment %s: %w", p.ID, err)
	}

	p.SetGatewayResult("", result.GatewayReference, result.Raw)
	if p.GatewayResponse == nil {
		p.GatewayResponse = make(map[string]any)
	}
	p.GatewayResponse["refund_id"] = result.GatewayTransactionID
	if err := p.TransitionTo(payment.StatusRefunded); err != nil {
		return nil, err
	}
	if err := o.paymentRepo.Update(ctx, p); err != nil {
		return nil, err
	}

	if _, err := o.ledger.UpdateStatus(ctx, p.TransactionID, transaction.StatusCancelled, map[string]any{
		"refund_id": result.GatewayTransactionID,
	}); err != nil && !stderrors.Is(err, domainErrors.ErrInvalidTransition) {
		o.logger.Warn().Err(err).
			Str("transaction_id", p.TransactionID.String()).
			Msg("failed to cancel transaction after refund")
	}

	o.logger.Info().Str("payment_id", p.ID.String()).Msg("payment refunded")
	return p, nil
}

// CancelPayment cancels a payment that has not completed.
func (o *Orchestrator) CancelPayment(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error) {
	p, err := o.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := p.TransitionTo(payment.StatusCancelled); err != nil {
		return nil, err
	}
	if err := o.paymentRepo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPayment loads a payment by id.
func (o *Orchestrator) GetPayment(ctx context.Context, paymentID uuid.UUID) (*payment.Payment, error) {
	return o.paymentRepo.GetByID(ctx, paymentID)
}

// ListPayments returns payments matching the filter.
func (o *Orchestrator) ListPayments(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	return o.paymentRepo.List(ctx, filter)
}

// SubscriptionChargeResult bundles the ledger and payment records produced by
// one billing attempt.
type SubscriptionChargeResult struct {
	Transaction *transaction.Transaction
	Payment     *payment.Payment
}

// ProcessSubscriptionPayment creates and charges one billing-cycle payment
// for a subscription.
func (o *Orchestrator) ProcessSubscriptionPayment(ctx context.Context, subscriptionID uuid.UUID, method payment.Method, provider payment.Provider) (*SubscriptionChargeResult, error) {
	sub, err := o.subscriptionRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	subID := sub.ID
	t, err := o.ledger.CreateTransaction(ctx, ledger.CreateTransactionRequest{
		UserID:         sub.UserID,
		AmountMinor:    sub.Plan.PriceMinor,
		Currency:       sub.Plan.Currency,
		Type:           transaction.TypeSubscriptionPayment,
		SubscriptionID: &subID,
		Metadata: map[string]any{
			"subscription_id": subID.String(),
			"plan_id":         sub.Plan.ID.String(),
			"billing_date":    sub.NextBillingDate.Format("2006-01-02"),
		},
	})
	if err != nil {
		return nil, err
	}

	p, err := o.InitiatePayment(ctx, InitiatePaymentRequest{
		TransactionID: t.ID,
		Method:        method,
		Provider:      provider,
	})
	if err != nil {
		return nil, err
	}

	charged, err := o.ProcessPayment(ctx, p.ID)
	if err != nil {
		return &SubscriptionChargeResult{Transaction: t, Payment: p}, err
	}

	if charged.IsCaptured() {
		if _, err := o.UpdateTransactionStatus(ctx, t.ID, transaction.StatusCompleted, map[string]any{
			"completed_via": "orchestrator",
		}); err != nil {
			o.logger.Warn().Err(err).
				Str("transaction_id", t.ID.String()).
				Msg("failed to complete subscription transaction")
		}
	}
	return &SubscriptionChargeResult{Transaction: t, Payment: charged}, nil
}

// UpdateTransactionStatus forwards a lifecycle update to the ledger.
func (o *Orchestrator) UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status transaction.Status, metadata map[string]any) (*transaction.Transaction, error) {
	return o.ledger.UpdateStatus(ctx, transactionID, status, metadata)
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
