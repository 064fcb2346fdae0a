package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
)

// StripeConfig holds the credentials for the Stripe adapter.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
}

// StripeAdapter drives card payments through Stripe's payment-intent API.
// Webhooks correlate back to our Payment via metadata.payment_id.
type StripeAdapter struct {
	cfg StripeConfig
	api *apiClient
}

// Stripe event vocabulary handled by the reconciler.
const (
	stripeEventSucceeded        = "payment_intent.succeeded"
	stripeEventAmountCapturable = "payment_intent.amount_capturable_updated"
	stripeEventPaymentFailed    = "payment_intent.payment_failed"
	stripeEventCanceled         = "payment_intent.canceled"
	stripeEventProcessing       = "payment_intent.processing"
	stripeEventRequiresAction   = "payment_intent.requires_action"
	stripeEventChargeDisputed   = "charge.dispute.created"
	stripeSignatureTolerance    = 5 * time.Minute
)

// NewStripeAdapter creates a Stripe adapter.
func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stripe.com"
	}
	return &StripeAdapter{
		cfg: cfg,
		api: newAPIClient(cfg.BaseURL, 30*time.Second),
	}
}

func (a *StripeAdapter) Provider() payment.Provider { return payment.ProviderStripe }

func (a *StripeAdapter) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.cfg.APIKey}
}

// CreateIntent creates a manual-capture payment intent.
func (a *StripeAdapter) CreateIntent(ctx context.Context, req Request) (*Result, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("capture_method", "manual")
	form.Set("metadata[payment_id]", req.PaymentID.String())

	resp, err := a.api.postForm(ctx, "/v1/payment_intents", a.authHeaders(), form)
	if err != nil {
		return nil, err
	}
	return a.toResult(resp), nil
}

// Charge confirms the payment intent, moving it toward authorization/capture.
func (a *StripeAdapter) Charge(ctx context.Context, req Request) (*Result, error) {
	intentID, _ := req.Metadata["gateway_transaction_id"].(string)
	if intentID == "" {
		// No prior intent (initiation was retried past a gateway outage):
		// create an auto-capture intent and confirm in one round-trip.
		form := url.Values{}
		form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
		form.Set("currency", strings.ToLower(req.Currency))
		form.Set("confirm", "true")
		form.Set("metadata[payment_id]", req.PaymentID.String())
		resp, err := a.api.postForm(ctx, "/v1/payment_intents", a.authHeaders(), form)
		if err != nil {
			return nil, err
		}
		return a.toResult(resp), nil
	}

	resp, err := a.api.postForm(ctx, "/v1/payment_intents/"+intentID+"/confirm", a.authHeaders(), url.Values{})
	if err != nil {
		return nil, err
	}
	return a.toResult(resp), nil
}

// Capture captures a previously authorized payment intent.
func (a *StripeAdapter) Capture(ctx context.Context, req CaptureRequest) (*Result, error) {
	form := url.Values{}
	form.Set("amount_to_capture", strconv.FormatInt(req.AmountMinor, 10))

	resp, err := a.api.postForm(ctx, "/v1/payment_intents/"+req.GatewayTransactionID+"/capture", a.authHeaders(), form)
	if err != nil {
		return nil, err
	}
	return a.toResult(resp), nil
}

// Refund refunds a captured payment intent.
func (a *StripeAdapter) Refund(ctx context.Context, req RefundRequest) (*Result, error) {
	form := url.Values{}
	form.Set("payment_intent", req.GatewayTransactionID)
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))

	resp, err := a.api.postForm(ctx, "/v1/refunds", a.authHeaders(), form)
	if err != nil {
		return nil, err
	}
	r := a.toResult(resp)
	r.Status = payment.StatusRefunded
	return r, nil
}

// VerifySignature checks the Stripe-Signature header: an HMAC-SHA256 of
// "<timestamp>.<raw body>" keyed with the webhook secret, compared in
// constant time.
func (a *StripeAdapter) VerifySignature(_ context.Context, rawBody []byte, header http.Header) bool {
	sigHeader := header.Get("Stripe-Signature")
	if sigHeader == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if d := time.Since(time.Unix(ts, 0)); d > stripeSignatureTolerance || d < -stripeSignatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return true
		}
	}
	return false
}

// ParseEvent decodes a Stripe webhook envelope.
func (a *StripeAdapter) ParseEvent(rawBody []byte) (*Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
	}

	eventID := stringField(raw, "id")
	eventType := stringField(raw, "type")
	objectID := stringField(raw, "data", "object", "id")
	paymentRef := stringField(raw, "data", "object", "metadata", "payment_id")

	if eventID == "" {
		eventID = objectID
	}
	if eventID == "" || eventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", errors.ErrMalformedEvent)
	}

	paymentID, err := uuid.Parse(paymentRef)
	if err != nil {
		return nil, fmt.Errorf("%w: bad metadata.payment_id %q", errors.ErrMalformedEvent, paymentRef)
	}

	return &Event{
		ID:                   eventID,
		Type:                 eventType,
		PaymentID:            paymentID,
		GatewayTransactionID: objectID,
		Raw:                  raw,
	}, nil
}

// MapEventToStatus maps Stripe's event vocabulary to the canonical status.
func (a *StripeAdapter) MapEventToStatus(eventType string) payment.Status {
	switch eventType {
	case stripeEventSucceeded:
		return payment.StatusCaptured
	case stripeEventPaymentFailed, stripeEventChargeDisputed:
		return payment.StatusFailed
	case stripeEventCanceled:
		return payment.StatusCancelled
	case stripeEventAmountCapturable, stripeEventProcessing, stripeEventRequiresAction:
		return payment.StatusPending
	default:
		return payment.StatusPending
	}
}

func (a *StripeAdapter) toResult(resp map[string]any) *Result {
	providerStatus := stringField(resp, "status")
	return &Result{
		GatewayTransactionID: stringField(resp, "id"),
		GatewayReference:     stringField(resp, "client_secret"),
		ProviderStatus:       providerStatus,
		Status:               stripeStatusToCanonical(providerStatus),
		Raw:                  Sanitize(resp),
	}
}

func stripeStatusToCanonical(status string) payment.Status {
	switch status {
	case "succeeded":
		return payment.StatusCaptured
	case "requires_capture":
		return payment.StatusAuthorized
	case "canceled":
		return payment.StatusCancelled
	default:
		return payment.StatusPending
	}
}
