package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
)

// FlutterwaveConfig holds the credentials for the Flutterwave adapter.
type FlutterwaveConfig struct {
	SecretKey string
	VerifHash string
	BaseURL   string
}

// FlutterwaveAdapter drives payments through Flutterwave. The provider
// captures immediately on charge, so an explicit capture step is unsupported.
// Webhooks correlate back to our Payment via the caller-chosen tx_ref.
type FlutterwaveAdapter struct {
	cfg FlutterwaveConfig
	api *apiClient
}

// Flutterwave event vocabulary handled by the reconciler.
const (
	flutterwaveEventChargeCompleted   = "charge.completed"
	flutterwaveEventChargeFailed      = "charge.failed"
	flutterwaveEventTransferCompleted = "transfer.completed"
)

// NewFlutterwaveAdapter creates a Flutterwave adapter.
func NewFlutterwaveAdapter(cfg FlutterwaveConfig) *FlutterwaveAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.flutterwave.com"
	}
	return &FlutterwaveAdapter{
		cfg: cfg,
		api: newAPIClient(cfg.BaseURL, 30*time.Second),
	}
}

func (a *FlutterwaveAdapter) Provider() payment.Provider { return payment.ProviderFlutterwave }

func (a *FlutterwaveAdapter) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.cfg.SecretKey}
}

// CreateIntent initializes a hosted payment with our payment id as tx_ref.
func (a *FlutterwaveAdapter) CreateIntent(ctx context.Context, req Request) (*Result, error) {
	body := map[string]any{
		"tx_ref":   req.PaymentID.String(),
		"amount":   minorToDecimalString(req.AmountMinor),
		"currency": strings.ToUpper(req.Currency),
	}

	resp, err := a.api.postJSON(ctx, "/v3/payments", a.authHeaders(), body)
	if err != nil {
		return nil, err
	}
	return a.toResult(resp), nil
}

// Charge runs an immediate-capture charge.
func (a *FlutterwaveAdapter) Charge(ctx context.Context, req Request) (*Result, error) {
	body := map[string]any{
		"tx_ref":   req.PaymentID.String(),
		"amount":   minorToDecimalString(req.AmountMinor),
		"currency": strings.ToUpper(req.Currency),
	}

	resp, err := a.api.postJSON(ctx, "/v3/charges?type="+chargeType(req.Method), a.authHeaders(), body)
	if err != nil {
		return nil, err
	}
	return a.toResult(resp), nil
}

// Capture is unsupported: Flutterwave always captures on charge.
func (a *FlutterwaveAdapter) Capture(_ context.Context, _ CaptureRequest) (*Result, error) {
	return nil, errors.NewDomainError(
		"unsupported_operation",
		"flutterwave captures immediately on charge",
		errors.ErrUnsupportedOperation,
	)
}

// Refund refunds a completed charge.
func (a *FlutterwaveAdapter) Refund(ctx context.Context, req RefundRequest) (*Result, error) {
	body := map[string]any{"amount": minorToDecimalString(req.AmountMinor)}

	resp, err := a.api.postJSON(ctx, "/v3/transactions/"+req.GatewayTransactionID+"/refund", a.authHeaders(), body)
	if err != nil {
		return nil, err
	}
	r := a.toResult(resp)
	r.Status = payment.StatusRefunded
	return r, nil
}

// VerifySignature compares the verif-hash header against the configured
// shared secret in constant time.
func (a *FlutterwaveAdapter) VerifySignature(_ context.Context, _ []byte, header http.Header) bool {
	got := header.Get("Verif-Hash")
	if got == "" || a.cfg.VerifHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(a.cfg.VerifHash)) == 1
}

// ParseEvent decodes a Flutterwave webhook envelope.
func (a *FlutterwaveAdapter) ParseEvent(rawBody []byte) (*Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
	}

	eventType := stringField(raw, "event")
	txRef := stringField(raw, "data", "tx_ref")
	gatewayID := ""
	if id, ok := raw["data"].(map[string]any); ok {
		switch v := id["id"].(type) {
		case float64:
			gatewayID = fmt.Sprintf("%.0f", v)
		case string:
			gatewayID = v
		}
	}

	// No dedicated delivery id: the transaction reference plus event type is
	// stable across redeliveries.
	eventID := stringField(raw, "id")
	if eventID == "" && txRef != "" {
		eventID = txRef + ":" + eventType
	}
	if eventID == "" || eventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", errors.ErrMalformedEvent)
	}

	paymentID, err := uuid.Parse(txRef)
	if err != nil {
		return nil, fmt.Errorf("%w: bad tx_ref %q", errors.ErrMalformedEvent, txRef)
	}

	return &Event{
		ID:                   eventID,
		Type:                 eventType,
		PaymentID:            paymentID,
		GatewayTransactionID: gatewayID,
		Raw:                  raw,
	}, nil
}

// MapEventToStatus maps Flutterwave's event vocabulary to the canonical status.
func (a *FlutterwaveAdapter) MapEventToStatus(eventType string) payment.Status {
	switch eventType {
	case flutterwaveEventChargeCompleted, flutterwaveEventTransferCompleted:
		return payment.StatusCaptured
	case flutterwaveEventChargeFailed:
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}

func (a *FlutterwaveAdapter) toResult(resp map[string]any) *Result {
	providerStatus := stringField(resp, "status")
	gatewayID := stringField(resp, "data", "id")
	if gatewayID == "" {
		if data, ok := resp["data"].(map[string]any); ok {
			if v, ok := data["id"].(float64); ok {
				gatewayID = fmt.Sprintf("%.0f", v)
			}
		}
	}
	return &Result{
		GatewayTransactionID: gatewayID,
		GatewayReference:     stringField(resp, "data", "link"),
		ProviderStatus:       providerStatus,
		Status:               flutterwaveStatusToCanonical(stringField(resp, "data", "status"), providerStatus),
		Raw:                  Sanitize(resp),
	}
}

func flutterwaveStatusToCanonical(dataStatus, envelopeStatus string) payment.Status {
	switch dataStatus {
	case "successful":
		return payment.StatusCaptured
	case "failed":
		return payment.StatusFailed
	}
	if envelopeStatus == "error" {
		return payment.StatusFailed
	}
	return payment.StatusPending
}

func chargeType(m payment.Method) string {
	switch m {
	case payment.MethodBankTransfer:
		return "bank_transfer"
	case payment.MethodWallet:
		return "mobile_money"
	default:
		return "card"
	}
}
