package payment_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
)

func validAmount() payment.Amount {
	return payment.Amount{ValueMinor: 10_000, Currency: "USD"}
}

func TestNewPayment_Valid(t *testing.T) {
	txID := uuid.New()
	p, err := payment.NewPayment(txID, validAmount(), payment.MethodCard, payment.ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusInitiated, p.Status)
	assert.Equal(t, txID, p.TransactionID)
	assert.Equal(t, int64(10_000), p.Amount.ValueMinor)
	assert.Equal(t, "USD", p.Amount.Currency)
	assert.NotNil(t, p.GatewayResponse)
	assert.False(t, p.WebhookReceived)
}

func TestNewPayment_InvalidAmount(t *testing.T) {
	_, err := payment.NewPayment(uuid.New(), payment.Amount{ValueMinor: -1000, Currency: "USD"}, payment.MethodCard, payment.ProviderStripe)
	assert.Error(t, err)
}

func TestNewPayment_ZeroAmount(t *testing.T) {
	_, err := payment.NewPayment(uuid.New(), payment.Amount{ValueMinor: 0, Currency: "USD"}, payment.MethodCard, payment.ProviderStripe)
	assert.Error(t, err)
}

func TestNewPayment_InvalidCurrencyLength(t *testing.T) {
	_, err := payment.NewPayment(uuid.New(), payment.Amount{ValueMinor: 1000, Currency: "US"}, payment.MethodCard, payment.ProviderStripe)
	assert.Error(t, err)
}

func TestNewPayment_EmptyTransactionID(t *testing.T) {
	_, err := payment.NewPayment(uuid.Nil, validAmount(), payment.MethodCard, payment.ProviderStripe)
	assert.Error(t, err)
}

func TestNewPayment_InvalidMethod(t *testing.T) {
	_, err := payment.NewPayment(uuid.New(), validAmount(), payment.Method("check"), payment.ProviderStripe)
	assert.ErrorIs(t, err, errors.ErrInvalidMethod)
}

func TestAmount_String(t *testing.T) {
	a := payment.Amount{ValueMinor: 10_050, Currency: "USD"}
	assert.Equal(t, "100.50 USD", a.String())
}

func newTestPayment(t *testing.T, status payment.Status) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(uuid.New(), validAmount(), payment.MethodCard, payment.ProviderStripe)
	require.NoError(t, err)
	p.Status = status
	return p
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    payment.Status
		to      payment.Status
		allowed bool
	}{
		{"initiated to pending", payment.StatusInitiated, payment.StatusPending, true},
		{"initiated to captured", payment.StatusInitiated, payment.StatusCaptured, true},
		{"initiated to failed", payment.StatusInitiated, payment.StatusFailed, true},
		{"initiated to cancelled", payment.StatusInitiated, payment.StatusCancelled, true},
		{"initiated to authorized", payment.StatusInitiated, payment.StatusAuthorized, false},
		{"initiated to settled", payment.StatusInitiated, payment.StatusSettled, false},
		{"initiated to refunded", payment.StatusInitiated, payment.StatusRefunded, false},
		{"pending to authorized", payment.StatusPending, payment.StatusAuthorized, true},
		{"pending to captured", payment.StatusPending, payment.StatusCaptured, true},
		{"pending to settled", payment.StatusPending, payment.StatusSettled, true},
		{"pending to failed", payment.StatusPending, payment.StatusFailed, true},
		{"pending to cancelled", payment.StatusPending, payment.StatusCancelled, true},
		{"pending to refunded", payment.StatusPending, payment.StatusRefunded, false},
		{"pending to initiated", payment.StatusPending, payment.StatusInitiated, false},
		{"authorized to captured", payment.StatusAuthorized, payment.StatusCaptured, true},
		{"authorized to settled", payment.StatusAuthorized, payment.StatusSettled, true},
		{"authorized to failed", payment.StatusAuthorized, payment.StatusFailed, true},
		{"authorized to cancelled", payment.StatusAuthorized, payment.StatusCancelled, true},
		{"authorized to refunded", payment.StatusAuthorized, payment.StatusRefunded, false},
		{"captured to refunded", payment.StatusCaptured, payment.StatusRefunded, true},
		{"captured to failed", payment.StatusCaptured, payment.StatusFailed, false},
		{"captured to settled", payment.StatusCaptured, payment.StatusSettled, false},
		{"settled to refunded", payment.StatusSettled, payment.StatusRefunded, true},
		{"settled to captured", payment.StatusSettled, payment.StatusCaptured, false},
		{"failed is terminal", payment.StatusFailed, payment.StatusPending, false},
		{"cancelled is terminal", payment.StatusCancelled, payment.StatusPending, false},
		{"refunded is terminal", payment.StatusRefunded, payment.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPayment(t, tt.from)
			assert.Equal(t, tt.allowed, p.CanTransitionTo(tt.to))
		})
	}
}

func TestTransitionTo_Invalid(t *testing.T) {
	p := newTestPayment(t, payment.StatusCaptured)
	err := p.TransitionTo(payment.StatusFailed)
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	assert.Equal(t, payment.StatusCaptured, p.Status)
}

func TestCanCapture(t *testing.T) {
	assert.True(t, newTestPayment(t, payment.StatusAuthorized).CanCapture())
	assert.False(t, newTestPayment(t, payment.StatusPending).CanCapture())
	assert.False(t, newTestPayment(t, payment.StatusCaptured).CanCapture())
}

func TestCanRefund(t *testing.T) {
	assert.True(t, newTestPayment(t, payment.StatusCaptured).CanRefund())
	assert.True(t, newTestPayment(t, payment.StatusSettled).CanRefund())
	assert.False(t, newTestPayment(t, payment.StatusAuthorized).CanRefund())
	assert.False(t, newTestPayment(t, payment.StatusRefunded).CanRefund())
}

func TestIsCaptured(t *testing.T) {
	assert.True(t, newTestPayment(t, payment.StatusCaptured).IsCaptured())
	assert.True(t, newTestPayment(t, payment.StatusSettled).IsCaptured())
	assert.False(t, newTestPayment(t, payment.StatusPending).IsCaptured())
}

func TestMarkFailed(t *testing.T) {
	p := newTestPayment(t, payment.StatusPending)
	require.NoError(t, p.MarkFailed("card declined"))
	assert.Equal(t, payment.StatusFailed, p.Status)
	require.NotNil(t, p.LastError)
	assert.Equal(t, "card declined", *p.LastError)
}

func TestMarkFailed_FromTerminal(t *testing.T) {
	p := newTestPayment(t, payment.StatusRefunded)
	assert.Error(t, p.MarkFailed("too late"))
	assert.Nil(t, p.LastError)
}

func TestSetGatewayResult(t *testing.T) {
	p := newTestPayment(t, payment.StatusPending)
	p.SetGatewayResult("pi_123", "ref_456", map[string]any{"provider_status": "succeeded"})

	require.NotNil(t, p.GatewayTransactionID)
	assert.Equal(t, "pi_123", *p.GatewayTransactionID)
	require.NotNil(t, p.GatewayReference)
	assert.Equal(t, "ref_456", *p.GatewayReference)
	assert.Equal(t, "succeeded", p.GatewayResponse["provider_status"])
}

func TestSetGatewayResult_EmptyIDsLeaveExisting(t *testing.T) {
	p := newTestPayment(t, payment.StatusPending)
	p.SetGatewayResult("pi_123", "", nil)
	p.SetGatewayResult("", "", nil)

	require.NotNil(t, p.GatewayTransactionID)
	assert.Equal(t, "pi_123", *p.GatewayTransactionID)
	assert.Nil(t, p.GatewayReference)
}

func TestRecordWebhook(t *testing.T) {
	p := newTestPayment(t, payment.StatusPending)

	assert.False(t, p.HasProcessedWebhook("evt_1"))
	p.RecordWebhook("evt_1", map[string]any{"type": "payment_intent.succeeded"})

	assert.True(t, p.HasProcessedWebhook("evt_1"))
	assert.False(t, p.HasProcessedWebhook("evt_2"))
	assert.True(t, p.WebhookReceived)
	assert.Equal(t, 1, p.WebhookAttempts)
	require.NotNil(t, p.WebhookProcessedAt)

	p.RecordWebhook("evt_2", nil)
	assert.Equal(t, 2, p.WebhookAttempts)
	assert.Len(t, p.ProcessedWebhookIDs, 2)
}
