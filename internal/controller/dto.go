package controller

import (
	"time"

	"github.com/google/uuid"

	"github.com/homevault/payments/internal/domain/payment"
	"github.com/homevault/payments/internal/domain/subscription"
	"github.com/homevault/payments/internal/domain/transaction"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (minor units for money, string for IDs,
// validation tags). Controllers convert these to service layer DTOs before
// calling business logic.

// CreateTransactionRequest holds the input for creating a transaction.
type CreateTransactionRequest struct {
	UserID                string         `json:"user_id" validate:"required,uuid"`
	AmountMinor           int64          `json:"amount_minor" validate:"required,gt=0"`
	Currency              string         `json:"currency" validate:"required,len=3"`
	Type                  string         `json:"type" validate:"required,oneof=property_purchase subscription_payment commission_payment other"`
	PropertyID            *string        `json:"property_id,omitempty"`
	SubscriptionID        *string        `json:"subscription_id,omitempty"`
	ParentTransactionID   *string        `json:"parent_transaction_id,omitempty"`
	CommissionRecipientID *string        `json:"commission_recipient_id,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// UpdateTransactionStatusRequest holds the input for a lifecycle update.
type UpdateTransactionStatusRequest struct {
	Status   string         `json:"status" validate:"required,oneof=pending processing completed failed cancelled"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CalculateCommissionRequest holds the input for a commission calculation.
type CalculateCommissionRequest struct {
	RateBps     *int    `json:"rate_bps,omitempty"`
	RecipientID *string `json:"recipient_id,omitempty"`
}

// SettleCommissionRequest holds the input for a commission settlement.
type SettleCommissionRequest struct {
	RateBps     *int   `json:"rate_bps,omitempty"`
	RecipientID string `json:"recipient_id" validate:"required,uuid"`
}

// InitiatePaymentRequest holds the input for creating a payment attempt.
type InitiatePaymentRequest struct {
	TransactionID string         `json:"transaction_id" validate:"required,uuid"`
	AmountMinor   int64          `json:"amount_minor" validate:"gte=0"`
	Currency      string         `json:"currency" validate:"omitempty,len=3"`
	Method        string         `json:"method" validate:"required,oneof=card wallet bank_transfer cash"`
	Provider      string         `json:"provider" validate:"required,oneof=paypal stripe razorpay flutterwave cash"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ChargeSubscriptionRequest holds the input for one subscription charge.
type ChargeSubscriptionRequest struct {
	Method   string `json:"method" validate:"required,oneof=card wallet bank_transfer cash"`
	Provider string `json:"provider" validate:"required,oneof=paypal stripe razorpay flutterwave cash"`
}

// --- Response DTOs ---

// TransactionResponse represents a transaction in API responses.
type TransactionResponse struct {
	ID                    string         `json:"id"`
	UserID                string         `json:"user_id"`
	AmountMinor           int64          `json:"amount_minor"`
	Currency              string         `json:"currency"`
	Type                  string         `json:"type"`
	Status                string         `json:"status"`
	PropertyID            *string        `json:"property_id,omitempty"`
	SubscriptionID        *string        `json:"subscription_id,omitempty"`
	ParentTransactionID   *string        `json:"parent_transaction_id,omitempty"`
	CommissionAmountMinor *int64         `json:"commission_amount_minor,omitempty"`
	CommissionRateBps     *int           `json:"commission_rate_bps,omitempty"`
	CommissionRecipientID *string        `json:"commission_recipient_id,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	CompletedAt           *time.Time     `json:"completed_at,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID                   string         `json:"id"`
	TransactionID        string         `json:"transaction_id"`
	AmountMinor          int64          `json:"amount_minor"`
	Currency             string         `json:"currency"`
	Method               string         `json:"method"`
	Provider             string         `json:"provider"`
	Status               string         `json:"status"`
	GatewayTransactionID *string        `json:"gateway_transaction_id,omitempty"`
	GatewayReference     *string        `json:"gateway_reference,omitempty"`
	GatewayResponse      map[string]any `json:"gateway_response,omitempty"`
	WebhookReceived      bool           `json:"webhook_received"`
	WebhookProcessedAt   *time.Time     `json:"webhook_processed_at,omitempty"`
	LastError            *string        `json:"last_error,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// CommissionResponse represents a commission calculation result.
type CommissionResponse struct {
	TransactionID         string `json:"transaction_id"`
	CommissionAmountMinor int64  `json:"commission_amount_minor"`
	RateBps               int    `json:"rate_bps"`
}

// StatsResponse is one aggregation bucket of the transaction stats endpoint.
type StatsResponse struct {
	Status     string `json:"status"`
	Count      int64  `json:"count"`
	TotalMinor int64  `json:"total_minor"`
}

// SubscriptionResponse represents a subscription in API responses.
type SubscriptionResponse struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	PlanID             string    `json:"plan_id"`
	PlanName           string    `json:"plan_name"`
	PriceMinor         int64     `json:"price_minor"`
	Currency           string    `json:"currency"`
	Status             string    `json:"status"`
	NextBillingDate    time.Time `json:"next_billing_date"`
	FailedPaymentCount int       `json:"failed_payment_count"`
}

// WebhookAckResponse acknowledges a webhook delivery.
type WebhookAckResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromTransaction converts a domain transaction to API response.
func FromTransaction(t *transaction.Transaction) *TransactionResponse {
	resp := &TransactionResponse{
		ID:                    t.ID.String(),
		UserID:                t.UserID.String(),
		AmountMinor:           t.Amount.ValueMinor,
		Currency:              t.Amount.Currency,
		Type:                  string(t.Type),
		Status:                string(t.Status),
		CommissionAmountMinor: t.CommissionAmountMinor,
		CommissionRateBps:     t.CommissionRateBps,
		Metadata:              t.Metadata,
		CompletedAt:           t.CompletedAt,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
	resp.PropertyID = uuidToString(t.PropertyID)
	resp.SubscriptionID = uuidToString(t.SubscriptionID)
	resp.ParentTransactionID = uuidToString(t.ParentTransactionID)
	resp.CommissionRecipientID = uuidToString(t.CommissionRecipientID)
	return resp
}

// FromPayment converts a domain payment to API response.
func FromPayment(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:                   p.ID.String(),
		TransactionID:        p.TransactionID.String(),
		AmountMinor:          p.Amount.ValueMinor,
		Currency:             p.Amount.Currency,
		Method:               string(p.Method),
		Provider:             string(p.Provider),
		Status:               string(p.Status),
		GatewayTransactionID: p.GatewayTransactionID,
		GatewayReference:     p.GatewayReference,
		GatewayResponse:      p.GatewayResponse,
		WebhookReceived:      p.WebhookReceived,
		WebhookProcessedAt:   p.WebhookProcessedAt,
		LastError:            p.LastError,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

// FromSubscription converts a domain subscription to API response.
func FromSubscription(s *subscription.Subscription) *SubscriptionResponse {
	return &SubscriptionResponse{
		ID:                 s.ID.String(),
		UserID:             s.UserID.String(),
		PlanID:             s.Plan.ID.String(),
		PlanName:           s.Plan.Name,
		PriceMinor:         s.Plan.PriceMinor,
		Currency:           s.Plan.Currency,
		Status:             string(s.Status),
		NextBillingDate:    s.NextBillingDate,
		FailedPaymentCount: s.FailedPaymentCount,
	}
}

// parseUUID parses a UUID string, returning nil if invalid.
func parseUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func uuidToString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
