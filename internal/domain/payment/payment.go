package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/homevault/payments/internal/domain/errors"
)

// Method represents how the buyer pays.
type Method string

const (
	MethodCard         Method = "card"
	MethodWallet       Method = "wallet"
	MethodBankTransfer Method = "bank_transfer"
	MethodCash         Method = "cash"
)

// Provider represents the external payment gateway handling a payment.
type Provider string

const (
	ProviderPayPal      Provider = "paypal"
	ProviderStripe      Provider = "stripe"
	ProviderRazorpay    Provider = "razorpay"
	ProviderFlutterwave Provider = "flutterwave"
	ProviderCash        Provider = "cash"
)

// Status represents the payment status in the state machine.
type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusCaptured   Status = "captured"
	StatusSettled    Status = "settled"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Amount represents a monetary amount in the smallest currency unit (e.g. cents).
type Amount struct {
	ValueMinor int64
	Currency   string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.ValueMinor / 100
	frac := a.ValueMinor % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	return validateAmount(a)
}

// Payment is one attempt to move money for a Transaction through one gateway.
// The payment ID doubles as the idempotency/reference key sent to the gateway.
type Payment struct {
	ID                   uuid.UUID
	TransactionID        uuid.UUID
	Amount               Amount
	Method               Method
	Provider             Provider
	Status               Status
	GatewayTransactionID *string
	GatewayReference     *string
	GatewayResponse      map[string]any
	WebhookReceived      bool
	WebhookProcessedAt   *time.Time
	WebhookAttempts      int
	ProcessedWebhookIDs  []string
	LastError            *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewPayment creates a payment attempt for a transaction.
func NewPayment(transactionID uuid.UUID, amount Amount, method Method, provider Provider) (*Payment, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if transactionID == uuid.Nil {
		return nil, errors.NewValidationError("transaction_id", "cannot be empty")
	}
	switch method {
	case MethodCard, MethodWallet, MethodBankTransfer, MethodCash:
	default:
		return nil, errors.ErrInvalidMethod
	}

	now := time.Now()
	return &Payment{
		ID:              uuid.New(),
		TransactionID:   transactionID,
		Amount:          amount,
		Method:          method,
		Provider:        provider,
		Status:          StatusInitiated,
		GatewayResponse: make(map[string]any),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CanTransitionTo checks if the payment can transition to the given status.
func (p *Payment) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusInitiated: {
			StatusPending,
			StatusCaptured, // cash and always-capture providers skip pending
			StatusFailed,
			StatusCancelled,
		},
		StatusPending: {
			StatusAuthorized,
			StatusCaptured,
			StatusSettled,
			StatusFailed,
			StatusCancelled,
		},
		StatusAuthorized: {
			StatusCaptured,
			StatusSettled,
			StatusFailed,
			StatusCancelled,
		},
		StatusCaptured: {
			StatusRefunded,
		},
		StatusSettled: {
			StatusRefunded,
		},
		StatusFailed:    {}, // terminal
		StatusCancelled: {}, // terminal
		StatusRefunded:  {}, // terminal
	}

	allowed, exists := transitions[p.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo transitions the payment to a new status.
func (p *Payment) TransitionTo(newStatus Status) error {
	if !p.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidTransition,
		)
	}
	p.Status = newStatus
	p.UpdatedAt = time.Now()
	return nil
}

// CanCapture reports whether an explicit capture is allowed.
func (p *Payment) CanCapture() bool {
	return p.Status == StatusAuthorized
}

// CanRefund reports whether a refund is allowed.
func (p *Payment) CanRefund() bool {
	return p.Status == StatusCaptured || p.Status == StatusSettled
}

// IsTerminal checks if the payment is in a terminal state.
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusFailed ||
		p.Status == StatusCancelled ||
		p.Status == StatusRefunded
}

// IsCaptured reports whether money has been successfully taken.
func (p *Payment) IsCaptured() bool {
	return p.Status == StatusCaptured || p.Status == StatusSettled
}

// MarkFailed transitions the payment to failed with a reason.
func (p *Payment) MarkFailed(errorMsg string) error {
	if err := p.TransitionTo(StatusFailed); err != nil {
		return err
	}
	p.LastError = &errorMsg
	return nil
}

// SetGatewayResult records the normalized gateway response on the payment.
func (p *Payment) SetGatewayResult(gatewayTxID, gatewayRef string, sanitized map[string]any) {
	if gatewayTxID != "" {
		p.GatewayTransactionID = &gatewayTxID
	}
	if gatewayRef != "" {
		p.GatewayReference = &gatewayRef
	}
	if p.GatewayResponse == nil {
		p.GatewayResponse = make(map[string]any)
	}
	for k, v := range sanitized {
		p.GatewayResponse[k] = v
	}
	p.UpdatedAt = time.Now()
}

// HasProcessedWebhook reports whether the given webhook event id was already applied.
func (p *Payment) HasProcessedWebhook(eventID string) bool {
	for _, id := range p.ProcessedWebhookIDs {
		if id == eventID {
			return true
		}
	}
	return false
}

// RecordWebhook appends a processed webhook event and updates the bookkeeping fields.
func (p *Payment) RecordWebhook(eventID string, sanitizedPayload map[string]any) {
	now := time.Now()
	p.ProcessedWebhookIDs = append(p.ProcessedWebhookIDs, eventID)
	p.WebhookAttempts++
	p.WebhookReceived = true
	p.WebhookProcessedAt = &now
	if p.GatewayResponse == nil {
		p.GatewayResponse = make(map[string]any)
	}
	p.GatewayResponse["webhook"] = sanitizedPayload
	p.UpdatedAt = now
}

func validateAmount(amount Amount) error {
	if amount.ValueMinor <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if amount.Currency == "" {
		return errors.NewValidationError("currency", "cannot be empty")
	}
	// Simple currency validation (3-letter code)
	if len(amount.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}
