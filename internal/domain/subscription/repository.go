package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the read-mostly persistence interface the payment core
// needs from the subscription store.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// ListDue returns active subscriptions with next_billing_date <= now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
}
