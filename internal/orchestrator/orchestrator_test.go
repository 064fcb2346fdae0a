package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
	"github.com/homevault/payments/internal/domain/subscription"
	"github.com/homevault/payments/internal/domain/transaction"
	"github.com/homevault/payments/internal/gateway"
	"github.com/homevault/payments/internal/ledger"
	"github.com/homevault/payments/internal/orchestrator"
	"github.com/homevault/payments/internal/testutil"
)

type fixture struct {
	orch             *orchestrator.Orchestrator
	ledger           *ledger.Ledger
	paymentRepo      *testutil.MockPaymentRepository
	transactionRepo  *testutil.MockTransactionRepository
	subscriptionRepo *testutil.MockSubscriptionRepository
	stripe           *testutil.MockAdapter
	cash             *testutil.MockAdapter
}

func newFixture() *fixture {
	paymentRepo := testutil.NewMockPaymentRepository()
	transactionRepo := testutil.NewMockTransactionRepository()
	subscriptionRepo := testutil.NewMockSubscriptionRepository()
	stripe := testutil.NewMockAdapter(payment.ProviderStripe)
	cash := testutil.NewMockAdapter(payment.ProviderCash)
	ldg := ledger.New(transactionRepo, nil)
	registry := gateway.NewRegistry(stripe, cash)

	return &fixture{
		orch:             orchestrator.New(paymentRepo, subscriptionRepo, ldg, registry, zerolog.Nop()),
		ledger:           ldg,
		paymentRepo:      paymentRepo,
		transactionRepo:  transactionRepo,
		subscriptionRepo: subscriptionRepo,
		stripe:           stripe,
		cash:             cash,
	}
}

func (f *fixture) createTransaction(t *testing.T) *transaction.Transaction {
	t.Helper()
	tx, err := f.ledger.CreateTransaction(context.Background(), ledger.CreateTransactionRequest{
		UserID:      uuid.New(),
		AmountMinor: 50_000,
		Currency:    "USD",
		Type:        transaction.TypePropertyPurchase,
	})
	require.NoError(t, err)
	return tx
}

func TestInitiatePayment(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t)

	p, err := f.orch.InitiatePayment(context.Background(), orchestrator.InitiatePaymentRequest{
		TransactionID: tx.ID,
		AmountMinor:   50_000,
		Currency:      "USD",
		Method:        payment.MethodCard,
		Provider:      payment.ProviderStripe,
	})
	require.NoError(t, err)

	assert.Equal(t, payment.StatusInitiated, p.Status)
	assert.Equal(t, 1, f.stripe.IntentCalls)
	require.NotNil(t, p.GatewayTransactionID)
}

func TestInitiatePayment_DefaultsAmountFromTransaction(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t)

	p, err := f.orch.InitiatePayment(context.Background(), orchestrator.InitiatePaymentRequest{
		TransactionID: tx.ID,
		Method:        payment.MethodCard,
		Provider:      payment.ProviderStripe,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), p.Amount.ValueMinor)
	assert.Equal(t, "USD", p.Amount.Currency)
}

func TestInitiatePayment_NoIntentForCash(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t)

	_, err := f.orch.InitiatePayment(context.Background(), orchestrator.InitiatePaymentRequest{
		TransactionID: tx.ID,
		Method:        payment.MethodCash,
		Provider:      payment.ProviderCash,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.cash.IntentCalls)
}

func TestInitiatePayment_IntentFailureIsSwallowed(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t)
	f.stripe.CreateIntentFunc = func(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
		return nil, domainErrors.ErrGatewayUnavailable
	}

	p, err := f.orch.InitiatePayment(context.Background(), orchestrator.InitiatePaymentRequest{
		TransactionID: tx.ID,
		Method:        payment.MethodCard,
		Provider:      payment.ProviderStripe,
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusInitiated, p.Status)
	assert.Nil(t, p.GatewayTransactionID)
}

func TestInitiatePayment_UnknownTransaction(t *testing.T) {
	f := newFixture()

	_, err := f.orch.InitiatePayment(context.Background(), orchestrator.InitiatePaymentRequest{
		TransactionID: uuid.New(),
		Method:        payment.MethodCard,
		Provider:      payment.ProviderStripe,
	})
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
}

func initiate(t *testing.T, f *fixture, method payment.Method, provider payment.Provider) *payment.Payment {
	t.Helper()
	tx := f.createTransaction(t)
	p, err := f.orch.InitiatePayment(context.Background(), orchestrator.InitiatePaymentRequest{
		TransactionID: tx.ID,
		Method:        method,
		Provider:      provider,
	})
	require.NoError(t, err)
	return p
}

func TestProcessPayment_CashEndToEnd(t *testing.T) {
	f := newFixture()
	p := initiate(t, f, payment.MethodCash, payment.ProviderCash)

	processed, err := f.orch.ProcessPayment(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Equal(t, payment.StatusCaptured, processed.Status)
	assert.Equal(t, 1, f.cash.ChargeCalls)

	// The ledger side moved to processing before the charge.
	tx, err := f.ledger.GetTransaction(context.Background(), p.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusProcessing, tx.Status)
}

func TestProcessPayment_GatewayRejectedMarksFailed(t *testing.T) {
	f := newFixture()
	p := initiate(t, f, payment.MethodCard, payment.ProviderStripe)
	f.stripe.ChargeFunc = func(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
		return nil, domainErrors.NewDomainError("gateway_rejected", "card declined", domainErrors.ErrGatewayRejected)
	}

	_, err := f.orch.ProcessPayment(context.Background(), p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrGatewayRejected)

	stored, err := f.paymentRepo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, stored.Status)
	require.NotNil(t, stored.LastError)

	tx, err := f.ledger.GetTransaction(context.Background(), p.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, tx.Status)
	assert.Contains(t, tx.Metadata["failure_reason"], "card declined")
}

func TestProcessPayment_OutageLeavesPending(t *testing.T) {
	f := newFixture()
	p := initiate(t, f, payment.MethodCard, payment.ProviderStripe)
	f.stripe.ChargeFunc = func(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
		return nil, domainErrors.ErrGatewayUnavailable
	}

	_, err := f.orch.ProcessPayment(context.Background(), p.ID)
	require.Error(t, err)

	stored, err := f.paymentRepo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, stored.Status)
}

func TestProcessPayment_RejectedFromCaptured(t *testing.T) {
	f := newFixture()
	p := initiate(t, f, payment.MethodCash, payment.ProviderCash)
	_, err := f.orch.ProcessPayment(context.Background(), p.ID)
	require.NoError(t, err)

	_, err = f.orch.ProcessPayment(context.Background(), p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrPreconditionFailed)
	assert.Equal(t, 1, f.cash.ChargeCalls)
}

func TestProcessPayment_ThreadsGatewayIntentID(t *testing.T) {
	f := newFixture()
	p := initiate(t, f, payment.MethodCard, payment.ProviderStripe)

	var gotIntentID string
	f.stripe.ChargeFunc = func(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
		gotIntentID, _ = req.Metadata["gateway_transaction_id"].(string)
		return &gateway.Result{GatewayTransactionID: gotIntentID, Status: payment.StatusCaptured}, nil
	}

	_, err := f.orch.ProcessPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "mock_intent_"+p.ID.String(), gotIntentID)
}

func TestCapturePayment_RequiresAuthorized(t *testing.T) {
	f := newFixture()
	p := initiate(t, f, payment.MethodCard, payment.ProviderStripe)

	_, err := f.orch.CapturePayment(context.Background(), p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrPreconditionFailed)
	// The precondition is checked before any gateway call.
	assert.Equal(t, 0, f.stripe.CaptureCalls)
}

func TestCapturePayment(t *testing.T) {
	f := newFixture()
	p := initiate(t, f, payment.MethodCard, payment.ProviderStripe)
	p.Status = payment.StatusAuthorized
	require.NoError(t, f.paymentRepo.Update(context.Background(), p))

	captured, err := f.orch.CapturePayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCaptured, captured.Status)
	assert.Equal(t, 1, f.stripe.CaptureCalls)
}

func TestRefundPayment(t *testing.T) {
	f := newFixture()
	p := initiate(t, f, payment.MethodCash, payment.ProviderCash)
	_, err := f.orch.ProcessPayment(context.Background(), p.ID)
	require.NoError(t, err)

	refunded, err := f.orch.RefundPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, refunded.Status)
	assert.Equal(t, 1, f.cash.RefundCalls)
	assert.NotEmpty(t, refunded.GatewayResponse["refund_id"])

	tx, err := f.ledger.GetTransaction(context.Background(), p.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCancelled, tx.Status)
}

func TestRefundPayment_RequiresCaptured(t *testing.T) {
	f := newFixture()
	p := initiate(t, f, payment.MethodCard, payment.ProviderStripe)

	_, err := f.orch.RefundPayment(context.Background(), p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrPreconditionFailed)
	assert.Equal(t, 0, f.stripe.RefundCalls)
}

func TestCancelPayment(t *testing.T) {
	f := newFixture()
	p := initiate(t, f, payment.MethodCard, payment.ProviderStripe)

	cancelled, err := f.orch.CancelPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, cancelled.Status)
}

func TestCancelPayment_TerminalRejected(t *testing.T) {
	f := newFixture()
	p := initiate(t, f, payment.MethodCash, payment.ProviderCash)
	_, err := f.orch.ProcessPayment(context.Background(), p.ID)
	require.NoError(t, err)

	_, err = f.orch.CancelPayment(context.Background(), p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidTransition)
}

func activeSubscription() *subscription.Subscription {
	now := time.Now()
	return &subscription.Subscription{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Plan: subscription.Plan{
			ID:                 uuid.New(),
			Name:               "Pro Listing",
			PriceMinor:         2_999,
			Currency:           "USD",
			BillingCycleMonths: 1,
		},
		Status:          subscription.StatusActive,
		NextBillingDate: now.Add(-time.Hour),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestProcessSubscriptionPayment(t *testing.T) {
	f := newFixture()
	sub := activeSubscription()
	f.subscriptionRepo.AddSubscription(sub)

	result, err := f.orch.ProcessSubscriptionPayment(context.Background(), sub.ID, payment.MethodCash, payment.ProviderCash)
	require.NoError(t, err)

	require.NotNil(t, result.Payment)
	assert.Equal(t, payment.StatusCaptured, result.Payment.Status)
	assert.Equal(t, int64(2_999), result.Payment.Amount.ValueMinor)

	tx, err := f.ledger.GetTransaction(context.Background(), result.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, tx.Status)
	assert.Equal(t, transaction.TypeSubscriptionPayment, tx.Type)
	assert.Equal(t, sub.ID.String(), tx.Metadata["subscription_id"])
	assert.Equal(t, "orchestrator", tx.Metadata["completed_via"])
}

func TestProcessSubscriptionPayment_ChargeErrorReturnsPartialResult(t *testing.T) {
	f := newFixture()
	sub := activeSubscription()
	f.subscriptionRepo.AddSubscription(sub)
	f.stripe.ChargeFunc = func(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
		return nil, domainErrors.ErrGatewayUnavailable
	}

	result, err := f.orch.ProcessSubscriptionPayment(context.Background(), sub.ID, payment.MethodCard, payment.ProviderStripe)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.NotNil(t, result.Transaction)
	assert.NotNil(t, result.Payment)
}

func TestProcessSubscriptionPayment_UnknownSubscription(t *testing.T) {
	f := newFixture()
	_, err := f.orch.ProcessSubscriptionPayment(context.Background(), uuid.New(), payment.MethodCard, payment.ProviderStripe)
	assert.ErrorIs(t, err, domainErrors.ErrSubscriptionNotFound)
}
