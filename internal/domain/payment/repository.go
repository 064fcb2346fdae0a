package payment

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter holds optional filters for listing payments.
type ListFilter struct {
	TransactionID *uuid.UUID
	Status        *Status
	Provider      *Provider
	Limit         int
	Offset        int
	SortBy        string
	SortOrder     string
}

// Repository defines the persistence interface for payments.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	List(ctx context.Context, filter ListFilter) ([]*Payment, error)
	// MarkEventProcessed atomically records a webhook event id for a payment.
	// It returns false when the (payment, event) pair was already recorded,
	// closing the race between two concurrent deliveries of the same event.
	MarkEventProcessed(ctx context.Context, paymentID uuid.UUID, eventID string) (bool, error)
}
