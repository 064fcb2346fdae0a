package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
)

// PayPalConfig holds the credentials for the PayPal adapter.
type PayPalConfig struct {
	ClientID  string
	Secret    string
	WebhookID string
	BaseURL   string
}

// PayPalAdapter drives payments through PayPal's orders API. Access tokens
// are exchanged lazily via OAuth client credentials and cached; webhooks
// correlate back to our Payment via the purchase unit's custom_id.
type PayPalAdapter struct {
	cfg   PayPalConfig
	api   *apiClient
	creds *CredentialCache
}

// PayPal event vocabulary handled by the reconciler.
const (
	paypalEventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	paypalEventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	paypalEventCaptureDeclined  = "PAYMENT.CAPTURE.DECLINED"
	paypalEventCaptureRefunded  = "PAYMENT.CAPTURE.REFUNDED"
	paypalEventOrderApproved    = "CHECKOUT.ORDER.APPROVED"
	paypalEventOrderVoided      = "CHECKOUT.ORDER.VOIDED"
)

var paypalTransmissionHeaders = []string{
	"Paypal-Transmission-Id",
	"Paypal-Transmission-Time",
	"Paypal-Transmission-Sig",
	"Paypal-Cert-Url",
	"Paypal-Auth-Algo",
}

// NewPayPalAdapter creates a PayPal adapter with a lazy token cache.
func NewPayPalAdapter(cfg PayPalConfig) *PayPalAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-m.paypal.com"
	}
	a := &PayPalAdapter{
		cfg: cfg,
		api: newAPIClient(cfg.BaseURL, 30*time.Second),
	}
	a.creds = NewCredentialCache(a.fetchToken)
	return a
}

func (a *PayPalAdapter) Provider() payment.Provider { return payment.ProviderPayPal }

func (a *PayPalAdapter) fetchToken(ctx context.Context) (string, time.Duration, error) {
	basic := base64.StdEncoding.EncodeToString([]byte(a.cfg.ClientID + ":" + a.cfg.Secret))
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	resp, err := a.api.postForm(ctx, "/v1/oauth2/token", map[string]string{
		"Authorization": "Basic " + basic,
	}, form)
	if err != nil {
		return "", 0, fmt.Errorf("paypal token exchange: %w", err)
	}

	token := stringField(resp, "access_token")
	if token == "" {
		return "", 0, fmt.Errorf("paypal token exchange: empty access_token")
	}
	ttl := 5 * time.Minute
	if expires, ok := resp["expires_in"].(float64); ok && expires > 0 {
		ttl = time.Duration(expires) * time.Second
	}
	return token, ttl, nil
}

// call performs an authenticated request, refreshing the token once on 401.
func (a *PayPalAdapter) call(ctx context.Context, path string, body any) (map[string]any, error) {
	token, err := a.creds.Token(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := a.api.postJSON(ctx, path, map[string]string{"Authorization": "Bearer " + token}, body)
	if isUnauthorized(err) {
		a.creds.Invalidate()
		token, tErr := a.creds.Token(ctx)
		if tErr != nil {
			return nil, tErr
		}
		return a.api.postJSON(ctx, path, map[string]string{"Authorization": "Bearer " + token}, body)
	}
	return resp, err
}

// CreateIntent creates an order carrying our payment id as custom_id.
func (a *PayPalAdapter) CreateIntent(ctx context.Context, req Request) (*Result, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"custom_id": req.PaymentID.String(),
			"amount": map[string]any{
				"currency_code": strings.ToUpper(req.Currency),
				"value":         minorToDecimalString(req.AmountMinor),
			},
		}},
	}

	resp, err := a.call(ctx, "/v2/checkout/orders", body)
	if err != nil {
		return nil, err
	}
	return a.toResult(resp), nil
}

// Charge captures an approved order.
func (a *PayPalAdapter) Charge(ctx context.Context, req Request) (*Result, error) {
	orderID, _ := req.Metadata["gateway_transaction_id"].(string)
	if orderID == "" {
		return nil, errors.NewDomainError(
			"missing_order",
			"paypal charge requires a previously created order",
			errors.ErrGatewayRejected,
		)
	}

	resp, err := a.call(ctx, "/v2/checkout/orders/"+orderID+"/capture", nil)
	if err != nil {
		return nil, err
	}
	return a.toResult(resp), nil
}

// Capture captures a standing authorization.
func (a *PayPalAdapter) Capture(ctx context.Context, req CaptureRequest) (*Result, error) {
	body := map[string]any{
		"amount": map[string]any{
			"currency_code": strings.ToUpper(req.Currency),
			"value":         minorToDecimalString(req.AmountMinor),
		},
		"final_capture": true,
	}

	resp, err := a.call(ctx, "/v2/payments/authorizations/"+req.GatewayTransactionID+"/capture", body)
	if err != nil {
		return nil, err
	}
	return a.toResult(resp), nil
}

// Refund refunds a completed capture.
func (a *PayPalAdapter) Refund(ctx context.Context, req RefundRequest) (*Result, error) {
	body := map[string]any{
		"amount": map[string]any{
			"currency_code": strings.ToUpper(req.Currency),
			"value":         minorToDecimalString(req.AmountMinor),
		},
	}

	resp, err := a.call(ctx, "/v2/payments/captures/"+req.GatewayTransactionID+"/refund", body)
	if err != nil {
		return nil, err
	}
	r := a.toResult(resp)
	r.Status = payment.StatusRefunded
	return r, nil
}

// VerifySignature validates PayPal's multi-header transmission signature by
// calling the verify-webhook-signature API with the exact raw body.
func (a *PayPalAdapter) VerifySignature(ctx context.Context, rawBody []byte, header http.Header) bool {
	for _, h := range paypalTransmissionHeaders {
		if header.Get(h) == "" {
			return false
		}
	}

	body := map[string]any{
		"transmission_id":   header.Get("Paypal-Transmission-Id"),
		"transmission_time": header.Get("Paypal-Transmission-Time"),
		"transmission_sig":  header.Get("Paypal-Transmission-Sig"),
		"cert_url":          header.Get("Paypal-Cert-Url"),
		"auth_algo":         header.Get("Paypal-Auth-Algo"),
		"webhook_id":        a.cfg.WebhookID,
		"webhook_event":     json.RawMessage(rawBody),
	}

	resp, err := a.call(ctx, "/v1/notifications/verify-webhook-signature", body)
	if err != nil {
		return false
	}
	return stringField(resp, "verification_status") == "SUCCESS"
}

// ParseEvent decodes a PayPal webhook envelope.
func (a *PayPalAdapter) ParseEvent(rawBody []byte) (*Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
	}

	eventID := stringField(raw, "id")
	eventType := stringField(raw, "event_type")
	resourceID := stringField(raw, "resource", "id")
	paymentRef := stringField(raw, "resource", "custom_id")
	if paymentRef == "" {
		// Order-level events nest custom_id under purchase_units.
		if units, ok := raw["resource"].(map[string]any); ok {
			if list, ok := units["purchase_units"].([]any); ok && len(list) > 0 {
				if unit, ok := list[0].(map[string]any); ok {
					paymentRef, _ = unit["custom_id"].(string)
				}
			}
		}
	}

	if eventID == "" {
		eventID = resourceID
	}
	if eventID == "" || eventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", errors.ErrMalformedEvent)
	}

	paymentID, err := uuid.Parse(paymentRef)
	if err != nil {
		return nil, fmt.Errorf("%w: bad custom_id %q", errors.ErrMalformedEvent, paymentRef)
	}

	return &Event{
		ID:                   eventID,
		Type:                 eventType,
		PaymentID:            paymentID,
		GatewayTransactionID: resourceID,
		Raw:                  raw,
	}, nil
}

// MapEventToStatus maps PayPal's event vocabulary to the canonical status.
func (a *PayPalAdapter) MapEventToStatus(eventType string) payment.Status {
	switch eventType {
	case paypalEventCaptureCompleted:
		return payment.StatusCaptured
	case paypalEventCaptureDenied, paypalEventCaptureDeclined:
		return payment.StatusFailed
	case paypalEventOrderVoided:
		return payment.StatusCancelled
	case paypalEventOrderApproved, paypalEventCaptureRefunded:
		return payment.StatusPending
	default:
		return payment.StatusPending
	}
}

func (a *PayPalAdapter) toResult(resp map[string]any) *Result {
	providerStatus := stringField(resp, "status")
	return &Result{
		GatewayTransactionID: stringField(resp, "id"),
		ProviderStatus:       providerStatus,
		Status:               paypalStatusToCanonical(providerStatus),
		Raw:                  Sanitize(resp),
	}
}

func paypalStatusToCanonical(status string) payment.Status {
	switch status {
	case "COMPLETED":
		return payment.StatusCaptured
	case "VOIDED", "DECLINED":
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}
