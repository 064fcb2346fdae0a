package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
)

// CashAdapter handles manual/offline payments. It never calls out to a
// network: a charge is captured immediately after a synchronous processing
// delay, and there are no webhooks.
type CashAdapter struct {
	processingDelay time.Duration
}

// NewCashAdapter creates a cash adapter.
func NewCashAdapter(processingDelay time.Duration) *CashAdapter {
	return &CashAdapter{processingDelay: processingDelay}
}

func (a *CashAdapter) Provider() payment.Provider { return payment.ProviderCash }

// CreateIntent is unsupported: there is no external party to prepare.
func (a *CashAdapter) CreateIntent(_ context.Context, _ Request) (*Result, error) {
	return nil, errors.NewDomainError(
		"unsupported_operation",
		"cash payments have no gateway intent",
		errors.ErrUnsupportedOperation,
	)
}

// Charge records the cash receipt and captures immediately.
func (a *CashAdapter) Charge(ctx context.Context, req Request) (*Result, error) {
	if a.processingDelay > 0 {
		select {
		case <-time.After(a.processingDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	receiptID := fmt.Sprintf("cash_%s", uuid.New().String()[:8])
	return &Result{
		GatewayTransactionID: receiptID,
		ProviderStatus:       "received",
		Status:               payment.StatusCaptured,
		Raw: map[string]any{
			"receipt_id": receiptID,
			"payment_id": req.PaymentID.String(),
			"status":     "received",
		},
	}, nil
}

// Capture is unsupported: cash charges capture immediately.
func (a *CashAdapter) Capture(_ context.Context, _ CaptureRequest) (*Result, error) {
	return nil, errors.NewDomainError(
		"unsupported_operation",
		"cash payments capture on charge",
		errors.ErrUnsupportedOperation,
	)
}

// Refund records a manual refund.
func (a *CashAdapter) Refund(_ context.Context, req RefundRequest) (*Result, error) {
	refundID := fmt.Sprintf("cashrefund_%s", uuid.New().String()[:8])
	return &Result{
		GatewayTransactionID: refundID,
		ProviderStatus:       "refunded",
		Status:               payment.StatusRefunded,
		Raw: map[string]any{
			"refund_id":  refundID,
			"receipt_id": req.GatewayTransactionID,
			"status":     "refunded",
		},
	}, nil
}

// VerifySignature always fails: cash has no webhook channel.
func (a *CashAdapter) VerifySignature(_ context.Context, _ []byte, _ http.Header) bool {
	return false
}

// ParseEvent always fails: cash has no webhook channel.
func (a *CashAdapter) ParseEvent(_ []byte) (*Event, error) {
	return nil, errors.ErrMalformedEvent
}

// MapEventToStatus returns the safe default for the empty vocabulary.
func (a *CashAdapter) MapEventToStatus(_ string) payment.Status {
	return payment.StatusPending
}
