package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the subscription lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
)

// Plan is the billing plan a subscription is attached to.
type Plan struct {
	ID                 uuid.UUID
	Name               string
	PriceMinor         int64
	Currency           string
	BillingCycleMonths int
}

// Subscription is a recurring billing agreement for a user.
type Subscription struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Plan               Plan
	Status             Status
	NextBillingDate    time.Time
	FailedPaymentCount int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsDue reports whether the subscription should be billed at the given time.
func (s *Subscription) IsDue(now time.Time) bool {
	return s.Status == StatusActive && !s.NextBillingDate.After(now)
}

// AdvanceBillingDate moves the next billing date forward by one billing cycle
// and clears the failure counter.
func (s *Subscription) AdvanceBillingDate() {
	months := s.Plan.BillingCycleMonths
	if months <= 0 {
		months = 1
	}
	s.NextBillingDate = s.NextBillingDate.AddDate(0, months, 0)
	s.FailedPaymentCount = 0
	s.UpdatedAt = time.Now()
}

// MarkPastDue flips the subscription to past_due and counts the failure.
func (s *Subscription) MarkPastDue() {
	s.Status = StatusPastDue
	s.FailedPaymentCount++
	s.UpdatedAt = time.Now()
}
