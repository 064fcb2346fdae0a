package transaction

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter holds optional filters for listing transactions.
type ListFilter struct {
	UserID    *uuid.UUID
	Status    *Status
	Type      *Type
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// StatsRow is one aggregation bucket of the read-side stats query.
type StatsRow struct {
	Status     Status
	Count      int64
	TotalMinor int64
}

// Repository defines the persistence interface for transactions.
// Updates merge the metadata column rather than overwriting it; rows are
// soft-deleted only.
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	Update(ctx context.Context, t *Transaction) error
	List(ctx context.Context, filter ListFilter) ([]*Transaction, error)
	Stats(ctx context.Context, userID *uuid.UUID) ([]StatsRow, error)
}
