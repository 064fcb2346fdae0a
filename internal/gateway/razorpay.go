package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
)

// RazorpayConfig holds the credentials for the Razorpay adapter.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
}

// RazorpayAdapter drives payments through Razorpay's orders API. Webhooks
// correlate back to our Payment via notes.payment_id.
type RazorpayAdapter struct {
	cfg RazorpayConfig
	api *apiClient
}

// Razorpay event vocabulary handled by the reconciler.
const (
	razorpayEventCaptured   = "payment.captured"
	razorpayEventFailed     = "payment.failed"
	razorpayEventAuthorized = "payment.authorized"
	razorpayEventRefunded   = "refund.processed"
	razorpayEventOrderPaid  = "order.paid"
)

// NewRazorpayAdapter creates a Razorpay adapter.
func NewRazorpayAdapter(cfg RazorpayConfig) *RazorpayAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.razorpay.com"
	}
	return &RazorpayAdapter{
		cfg: cfg,
		api: newAPIClient(cfg.BaseURL, 30*time.Second),
	}
}

func (a *RazorpayAdapter) Provider() payment.Provider { return payment.ProviderRazorpay }

func (a *RazorpayAdapter) authHeaders() map[string]string {
	basic := base64.StdEncoding.EncodeToString([]byte(a.cfg.KeyID + ":" + a.cfg.KeySecret))
	return map[string]string{"Authorization": "Basic " + basic}
}

// CreateIntent creates an order carrying our payment id in notes.
func (a *RazorpayAdapter) CreateIntent(ctx context.Context, req Request) (*Result, error) {
	body := map[string]any{
		"amount":   req.AmountMinor,
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.PaymentID.String(),
		"notes":    map[string]any{"payment_id": req.PaymentID.String()},
	}

	resp, err := a.api.postJSON(ctx, "/v1/orders", a.authHeaders(), body)
	if err != nil {
		return nil, err
	}
	return a.toResult(resp), nil
}

// Charge captures an authorized payment, or reports its current state when
// the buyer-side authorization has not completed yet.
func (a *RazorpayAdapter) Charge(ctx context.Context, req Request) (*Result, error) {
	razorpayPaymentID, _ := req.Metadata["gateway_payment_id"].(string)
	if razorpayPaymentID == "" {
		// Authorization is buyer-driven; until the webhook delivers the
		// razorpay payment entity the charge stays pending.
		orderID, _ := req.Metadata["gateway_transaction_id"].(string)
		return &Result{
			GatewayTransactionID: orderID,
			ProviderStatus:       "created",
			Status:               payment.StatusPending,
			Raw:                  map[string]any{"status": "created"},
		}, nil
	}

	body := map[string]any{
		"amount":   req.AmountMinor,
		"currency": strings.ToUpper(req.Currency),
	}
	resp, err := a.api.postJSON(ctx, "/v1/payments/"+razorpayPaymentID+"/capture", a.authHeaders(), body)
	if err != nil {
		return nil, err
	}
	return a.toResult(resp), nil
}

// Capture captures an authorized razorpay payment.
func (a *RazorpayAdapter) Capture(ctx context.Context, req CaptureRequest) (*Result, error) {
	body := map[string]any{
		"amount":   req.AmountMinor,
		"currency": strings.ToUpper(req.Currency),
	}

	resp, err := a.api.postJSON(ctx, "/v1/payments/"+req.GatewayTransactionID+"/capture", a.authHeaders(), body)
	if err != nil {
		return nil, err
	}
	return a.toResult(resp), nil
}

// Refund refunds a captured payment.
func (a *RazorpayAdapter) Refund(ctx context.Context, req RefundRequest) (*Result, error) {
	body := map[string]any{"amount": req.AmountMinor}

	resp, err := a.api.postJSON(ctx, "/v1/payments/"+req.GatewayTransactionID+"/refund", a.authHeaders(), body)
	if err != nil {
		return nil, err
	}
	r := a.toResult(resp)
	r.Status = payment.StatusRefunded
	return r, nil
}

// VerifySignature checks the X-Razorpay-Signature header: a hex HMAC-SHA256
// of the raw body keyed with the webhook secret, compared in constant time.
func (a *RazorpayAdapter) VerifySignature(_ context.Context, rawBody []byte, header http.Header) bool {
	sig := header.Get("X-Razorpay-Signature")
	if sig == "" {
		return false
	}
	decoded, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(rawBody)
	return hmac.Equal(decoded, mac.Sum(nil))
}

// ParseEvent decodes a Razorpay webhook envelope.
func (a *RazorpayAdapter) ParseEvent(rawBody []byte) (*Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
	}

	eventType := stringField(raw, "event")
	entityID := stringField(raw, "payload", "payment", "entity", "id")
	paymentRef := stringField(raw, "payload", "payment", "entity", "notes", "payment_id")

	// Razorpay events carry no top-level event id; fall back to the payment
	// entity id, which is stable across redeliveries of the same event.
	eventID := stringField(raw, "id")
	if eventID == "" && entityID != "" {
		eventID = entityID + ":" + eventType
	}
	if eventID == "" || eventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", errors.ErrMalformedEvent)
	}

	paymentID, err := uuid.Parse(paymentRef)
	if err != nil {
		return nil, fmt.Errorf("%w: bad notes.payment_id %q", errors.ErrMalformedEvent, paymentRef)
	}

	return &Event{
		ID:                   eventID,
		Type:                 eventType,
		PaymentID:            paymentID,
		GatewayTransactionID: entityID,
		Raw:                  raw,
	}, nil
}

// MapEventToStatus maps Razorpay's event vocabulary to the canonical status.
func (a *RazorpayAdapter) MapEventToStatus(eventType string) payment.Status {
	switch eventType {
	case razorpayEventCaptured, razorpayEventOrderPaid:
		return payment.StatusCaptured
	case razorpayEventFailed:
		return payment.StatusFailed
	case razorpayEventAuthorized, razorpayEventRefunded:
		return payment.StatusPending
	default:
		return payment.StatusPending
	}
}

func (a *RazorpayAdapter) toResult(resp map[string]any) *Result {
	providerStatus := stringField(resp, "status")
	return &Result{
		GatewayTransactionID: stringField(resp, "id"),
		ProviderStatus:       providerStatus,
		Status:               razorpayStatusToCanonical(providerStatus),
		Raw:                  Sanitize(resp),
	}
}

func razorpayStatusToCanonical(status string) payment.Status {
	switch status {
	case "captured":
		return payment.StatusCaptured
	case "authorized":
		return payment.StatusAuthorized
	case "failed":
		return payment.StatusFailed
	case "refunded":
		return payment.StatusRefunded
	default:
		return payment.StatusPending
	}
}
