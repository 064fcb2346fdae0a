package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
)

// Type represents the business purpose of a transaction.
type Type string

const (
	TypePropertyPurchase    Type = "property_purchase"
	TypeSubscriptionPayment Type = "subscription_payment"
	TypeCommissionPayment   Type = "commission_payment"
	TypeOther               Type = "other"
)

// Status represents the transaction status. It only moves forward:
// pending -> processing -> completed | failed | cancelled.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Default commission rates in basis points, keyed by transaction type.
const (
	RatePropertyPurchase    = 500  // 5%
	RateSubscriptionPayment = 200  // 2%
	RateCommissionPayment   = 1000 // 10%
	RateDefault             = 300  // 3%
)

// Transaction is the business-level unit of value movement. A transaction may
// span multiple Payment attempts; financial records are soft-retained, never
// physically deleted.
type Transaction struct {
	ID                    uuid.UUID
	UserID                uuid.UUID
	Amount                payment.Amount
	Type                  Type
	Status                Status
	PropertyID            *uuid.UUID
	SubscriptionID        *uuid.UUID
	ParentTransactionID   *uuid.UUID
	CommissionAmountMinor *int64
	CommissionRateBps     *int
	CommissionRecipientID *uuid.UUID
	Metadata              map[string]any
	CompletedAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DeletedAt             *time.Time
}

// New creates a transaction in pending status.
func New(userID uuid.UUID, amount payment.Amount, txType Type) (*Transaction, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	if userID == uuid.Nil {
		return nil, errors.NewValidationError("user_id", "cannot be empty")
	}
	switch txType {
	case TypePropertyPurchase, TypeSubscriptionPayment, TypeCommissionPayment, TypeOther:
	default:
		return nil, errors.ErrInvalidType
	}

	now := time.Now()
	return &Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Type:      txType,
		Status:    StatusPending,
		Metadata:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsTerminal checks if the transaction is in a terminal state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted ||
		t.Status == StatusFailed ||
		t.Status == StatusCancelled
}

// CanTransitionTo checks the forward-only status invariant.
func (t *Transaction) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusPending: {
			StatusProcessing,
			StatusCompleted,
			StatusFailed,
			StatusCancelled,
		},
		StatusProcessing: {
			StatusCompleted,
			StatusFailed,
			StatusCancelled,
		},
		StatusCompleted: {}, // terminal
		StatusFailed:    {}, // terminal
		StatusCancelled: {}, // terminal
	}

	allowed, exists := transitions[t.Status]
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

// TransitionTo transitions the transaction to a new status.
func (t *Transaction) TransitionTo(newStatus Status) error {
	if !t.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(t.Status)+" to "+string(newStatus),
			errors.ErrInvalidTransition,
		)
	}
	t.Status = newStatus
	t.UpdatedAt = time.Now()
	if newStatus == StatusCompleted || newStatus == StatusFailed || newStatus == StatusCancelled {
		now := time.Now()
		t.CompletedAt = &now
	}
	return nil
}

// MergeMetadata merges the given keys into the transaction metadata without
// overwriting unrelated entries.
func (t *Transaction) MergeMetadata(m map[string]any) {
	if len(m) == 0 {
		return
	}
	if t.Metadata == nil {
		t.Metadata = make(map[string]any)
	}
	for k, v := range m {
		t.Metadata[k] = v
	}
	t.UpdatedAt = time.Now()
}

// DefaultCommissionRate returns the default commission rate in basis points
// for the transaction type.
func (t *Transaction) DefaultCommissionRate() int {
	switch t.Type {
	case TypePropertyPurchase:
		return RatePropertyPurchase
	case TypeSubscriptionPayment:
		return RateSubscriptionPayment
	case TypeCommissionPayment:
		return RateCommissionPayment
	default:
		return RateDefault
	}
}

// SetCommission computes and stores the commission for the given rate.
// Calling it again recomputes and overwrites (admin correction use case).
func (t *Transaction) SetCommission(rateBps int, recipientID *uuid.UUID) (amountMinor int64) {
	amountMinor = t.Amount.ValueMinor * int64(rateBps) / 10000
	t.CommissionAmountMinor = &amountMinor
	t.CommissionRateBps = &rateBps
	if recipientID != nil {
		t.CommissionRecipientID = recipientID
	}
	t.UpdatedAt = time.Now()
	return amountMinor
}

// CanCarryCommission reports whether a commission payout may be settled
// against this transaction. Settling a commission on a commission payout
// would chain payouts off payouts.
func (t *Transaction) CanCarryCommission() bool {
	return t.Type != TypeCommissionPayment
}
