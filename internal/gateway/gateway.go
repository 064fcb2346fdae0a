package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/homevault/payments/internal/domain/payment"
)

// Request holds the normalized input for creating an intent or charging.
type Request struct {
	PaymentID   uuid.UUID
	AmountMinor int64 // in the currency's minor unit (e.g. cents)
	Currency    string
	Method      payment.Method
	Metadata    map[string]any
}

// CaptureRequest holds the input for capturing an authorized payment.
type CaptureRequest struct {
	PaymentID            uuid.UUID
	GatewayTransactionID string
	AmountMinor          int64
	Currency             string
}

// RefundRequest holds the input for refunding a captured payment.
type RefundRequest struct {
	PaymentID            uuid.UUID
	GatewayTransactionID string
	AmountMinor          int64
	Currency             string
}

// Result is the normalized outcome of a gateway call.
type Result struct {
	GatewayTransactionID string
	GatewayReference     string
	ProviderStatus       string
	Status               payment.Status
	Raw                  map[string]any
}

// Event is a provider webhook event decoded at the parsing boundary. Each
// adapter extracts its own correlation field (metadata, custom_id, notes or
// reference string) into PaymentID.
type Event struct {
	// ID is the stable webhook-event identifier used for idempotency: the
	// provider's own event/delivery id, or its transaction reference as a
	// fallback.
	ID                   string
	Type                 string
	PaymentID            uuid.UUID
	GatewayTransactionID string
	Raw                  map[string]any
}

// Adapter encapsulates provider-specific request construction, response
// parsing and webhook signature verification for one gateway.
type Adapter interface {
	Provider() payment.Provider

	CreateIntent(ctx context.Context, req Request) (*Result, error)
	Charge(ctx context.Context, req Request) (*Result, error)
	Capture(ctx context.Context, req CaptureRequest) (*Result, error)
	Refund(ctx context.Context, req RefundRequest) (*Result, error)

	// VerifySignature authenticates the exact raw bytes of a webhook body.
	// Missing required headers is a verification failure, not an error.
	VerifySignature(ctx context.Context, rawBody []byte, header http.Header) bool

	// ParseEvent decodes a verified raw body into the canonical event shape.
	ParseEvent(rawBody []byte) (*Event, error)

	// MapEventToStatus is a total function from the provider's event
	// vocabulary to {captured, failed, cancelled, pending}. Unrecognized
	// event types map to pending, since providers add new types over time.
	MapEventToStatus(eventType string) payment.Status
}

// minorToDecimalString formats a minor-unit amount as the "major.minor"
// decimal string most provider APIs expect.
func minorToDecimalString(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// stringField digs a string out of a decoded JSON object.
func stringField(m map[string]any, keys ...string) string {
	cur := any(m)
	for i, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		if i == len(keys)-1 {
			s, _ := obj[k].(string)
			return s
		}
		cur = obj[k]
	}
	return ""
}
