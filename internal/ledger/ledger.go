package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
	"github.com/homevault/payments/internal/domain/transaction"
)

// AtomicRunner executes fn atomically. The postgres TxManager satisfies it.
type AtomicRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Ledger owns Transaction records, their lifecycle transitions and commission
// bookkeeping. It rejects status updates out of a terminal state; ordering of
// the non-terminal transitions is the caller's responsibility.
type Ledger struct {
	transactionRepo transaction.Repository
	atomic          AtomicRunner
}

// New creates a Ledger. atomic may be nil, in which case multi-write
// operations run without transactional guarantees.
func New(transactionRepo transaction.Repository, atomic AtomicRunner) *Ledger {
	return &Ledger{transactionRepo: transactionRepo, atomic: atomic}
}

func (l *Ledger) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.atomic == nil {
		return fn(ctx)
	}
	return l.atomic.WithTransaction(ctx, fn)
}

// CreateTransactionRequest holds the input for creating a transaction.
type CreateTransactionRequest struct {
	UserID                uuid.UUID
	AmountMinor           int64
	Currency              string
	Type                  transaction.Type
	PropertyID            *uuid.UUID
	SubscriptionID        *uuid.UUID
	ParentTransactionID   *uuid.UUID
	CommissionRecipientID *uuid.UUID
	Metadata              map[string]any
}

// CreateTransaction validates the request and persists a pending transaction.
func (l *Ledger) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*transaction.Transaction, error) {
	t, err := transaction.New(req.UserID, payment.Amount{
		ValueMinor: req.AmountMinor,
		Currency:   req.Currency,
	}, req.Type)
	if err != nil {
		return nil, err
	}

	t.PropertyID = req.PropertyID
	t.SubscriptionID = req.SubscriptionID
	t.CommissionRecipientID = req.CommissionRecipientID
	if req.Type == transaction.TypeCommissionPayment {
		if req.ParentTransactionID == nil {
			return nil, domainErrors.NewValidationError("parent_transaction_id", "required for commission payments")
		}
		t.ParentTransactionID = req.ParentTransactionID
	}
	t.MergeMetadata(req.Metadata)

	if err := l.transactionRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTransaction loads a transaction by id.
func (l *Ledger) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return l.transactionRepo.GetByID(ctx, id)
}

// UpdateStatus moves a transaction to a new status, merging the given
// metadata. Transitions out of a terminal status are rejected.
func (l *Ledger) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus transaction.Status, mergeMetadata map[string]any) (*transaction.Transaction, error) {
	t, err := l.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if t.IsTerminal() {
		return nil, domainErrors.NewDomainError(
			"invalid_transition",
			"transaction "+id.String()+" is already "+string(t.Status),
			domainErrors.ErrInvalidTransition,
		)
	}

	t.Status = newStatus
	t.UpdatedAt = time.Now()
	if t.IsTerminal() {
		now := time.Now()
		t.CompletedAt = &now
	}
	t.MergeMetadata(mergeMetadata)

	if err := l.transactionRepo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CommissionResult holds a computed commission.
type CommissionResult struct {
	AmountMinor int64
	RateBps     int
}

// CalculateCommission computes the commission for a transaction, defaulting
// the rate by transaction type when no override is given, and stores it back
// on the transaction. Calling it twice recomputes and overwrites; that is the
// admin correction path, not a bug. Commission payouts get the default rate
// of their own type like any other transaction; only settlement refuses to
// chain payouts.
func (l *Ledger) CalculateCommission(ctx context.Context, id uuid.UUID, rateOverrideBps *int, recipientID *uuid.UUID) (*CommissionResult, error) {
	t, err := l.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rate := t.DefaultCommissionRate()
	if rateOverrideBps != nil {
		if *rateOverrideBps < 0 || *rateOverrideBps > 10000 {
			return nil, domainErrors.NewValidationError("rate", "must be between 0 and 10000 basis points")
		}
		rate = *rateOverrideBps
	}

	amount := t.SetCommission(rate, recipientID)
	if err := l.transactionRepo.Update(ctx, t); err != nil {
		return nil, err
	}

	return &CommissionResult{AmountMinor: amount, RateBps: rate}, nil
}

// SettleCommission computes the commission and creates the linked
// commission-payout transaction for the recipient. The parent update and the
// payout creation commit together.
func (l *Ledger) SettleCommission(ctx context.Context, id uuid.UUID, rateOverrideBps *int, recipientID uuid.UUID) (*transaction.Transaction, error) {
	parent, err := l.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if parent.Status != transaction.StatusCompleted {
		return nil, domainErrors.NewDomainError(
			"commission_not_due",
			"commission settles only on completed transactions",
			domainErrors.ErrPreconditionFailed,
		)
	}
	if !parent.CanCarryCommission() {
		return nil, domainErrors.NewDomainError(
			"commission_not_allowed",
			"commission payouts cannot settle a further commission",
			domainErrors.ErrPreconditionFailed,
		)
	}

	var payout *transaction.Transaction
	err = l.atomically(ctx, func(ctx context.Context) error {
		result, err := l.CalculateCommission(ctx, id, rateOverrideBps, &recipientID)
		if err != nil {
			return err
		}

		parentID := parent.ID
		payout, err = l.CreateTransaction(ctx, CreateTransactionRequest{
			UserID:              recipientID,
			AmountMinor:         result.AmountMinor,
			Currency:            parent.Amount.Currency,
			Type:                transaction.TypeCommissionPayment,
			ParentTransactionID: &parentID,
			Metadata: map[string]any{
				"source_transaction_id": parentID.String(),
				"commission_rate_bps":   result.RateBps,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// ListTransactions returns the filtered transaction history.
func (l *Ledger) ListTransactions(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	return l.transactionRepo.List(ctx, filter)
}

// Stats returns the read-side aggregation by status.
func (l *Ledger) Stats(ctx context.Context, userID *uuid.UUID) ([]transaction.StatsRow, error) {
	return l.transactionRepo.Stats(ctx, userID)
}
