package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/subscription"
)

// SubscriptionRepository implements subscription.Repository using PostgreSQL.
// Plans are denormalized into the select so a subscription loads in one query.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

func (r *SubscriptionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

const subscriptionSelect = `SELECT s.id, s.user_id, s.status, s.next_billing_date, s.failed_payment_count,
        s.created_at, s.updated_at,
        p.id, p.name, p.price_minor, p.currency, p.billing_cycle_months
 FROM subscriptions s
 JOIN plans p ON p.id = s.plan_id`

// GetByID retrieves a subscription with its plan.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	return r.scanSubscription(r.db(ctx).QueryRow(ctx,
		subscriptionSelect+` WHERE s.id = $1`, id))
}

// ListDue returns active subscriptions whose next billing date has passed.
func (r *SubscriptionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*subscription.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db(ctx).Query(ctx,
		subscriptionSelect+`
 WHERE s.status = $1 AND s.next_billing_date <= $2
 ORDER BY s.next_billing_date ASC
 LIMIT $3`,
		string(subscription.StatusActive), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*subscription.Subscription
	for rows.Next() {
		s, err := r.scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Update updates the billing state of a subscription.
func (r *SubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE subscriptions SET
		  status=$1, next_billing_date=$2, failed_payment_count=$3, updated_at=$4
		 WHERE id=$5`,
		string(s.Status), s.NextBillingDate, s.FailedPaymentCount, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrSubscriptionNotFound
	}
	return nil
}

func (r *SubscriptionRepository) scanSubscription(s scanner) (*subscription.Subscription, error) {
	sub := &subscription.Subscription{}
	var status string
	err := s.Scan(
		&sub.ID, &sub.UserID, &status, &sub.NextBillingDate, &sub.FailedPaymentCount,
		&sub.CreatedAt, &sub.UpdatedAt,
		&sub.Plan.ID, &sub.Plan.Name, &sub.Plan.PriceMinor, &sub.Plan.Currency, &sub.Plan.BillingCycleMonths,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.Status = subscription.Status(status)
	return sub, nil
}
