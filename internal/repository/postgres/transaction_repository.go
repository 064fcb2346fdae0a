package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/transaction"
)

// allowedTransactionSortColumns is a whitelist of columns valid for ORDER BY.
var allowedTransactionSortColumns = map[string]string{
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"amount_minor": "amount_minor",
	"status":       "status",
}

// TransactionRepository implements transaction.Repository using PostgreSQL.
// Rows are soft-deleted: every read filters deleted_at IS NULL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

const transactionColumns = `id, user_id, amount_minor, currency, type, status,
        property_id, subscription_id, parent_transaction_id,
        commission_amount_minor, commission_rate_bps, commission_recipient_id,
        metadata, completed_at, created_at, updated_at, deleted_at`

// Create inserts a new transaction.
func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO transactions
		 (id, user_id, amount_minor, currency, type, status,
		  property_id, subscription_id, parent_transaction_id,
		  commission_amount_minor, commission_rate_bps, commission_recipient_id,
		  metadata, completed_at, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		t.ID, t.UserID, t.Amount.ValueMinor, t.Amount.Currency, string(t.Type), string(t.Status),
		t.PropertyID, t.SubscriptionID, t.ParentTransactionID,
		t.CommissionAmountMinor, t.CommissionRateBps, t.CommissionRecipientID,
		metadata, t.CompletedAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by its ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return r.scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND deleted_at IS NULL`, id))
}

// Update updates an existing transaction. The metadata column is merged with
// the in-memory map so concurrent writers cannot drop each other's keys.
func (r *TransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE transactions SET
		  status=$1,
		  commission_amount_minor=$2, commission_rate_bps=$3, commission_recipient_id=$4,
		  metadata = COALESCE(metadata, '{}'::jsonb) || $5::jsonb,
		  completed_at=$6, updated_at=$7
		 WHERE id=$8 AND deleted_at IS NULL`,
		string(t.Status),
		t.CommissionAmountMinor, t.CommissionRateBps, t.CommissionRecipientID,
		metadata, t.CompletedAt, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrTransactionNotFound
	}
	return nil
}

// List lists transactions with optional filters.
func (r *TransactionRepository) List(ctx context.Context, f transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE deleted_at IS NULL`
	args := []any{}
	argIdx := 1

	if f.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, *f.UserID)
		argIdx++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.Type != nil {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, string(*f.Type))
		argIdx++
	}

	// Strict whitelist for sort column
	sortBy := "created_at"
	if col, ok := allowedTransactionSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*transaction.Transaction
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// Stats aggregates live transactions by status, optionally scoped to a user.
func (r *TransactionRepository) Stats(ctx context.Context, userID *uuid.UUID) ([]transaction.StatsRow, error) {
	query := `SELECT status, COUNT(*), COALESCE(SUM(amount_minor), 0)
	 FROM transactions WHERE deleted_at IS NULL`
	args := []any{}
	if userID != nil {
		query += " AND user_id = $1"
		args = append(args, *userID)
	}
	query += " GROUP BY status"

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transaction stats: %w", err)
	}
	defer rows.Close()

	var stats []transaction.StatsRow
	for rows.Next() {
		var row transaction.StatsRow
		var status string
		if err := rows.Scan(&status, &row.Count, &row.TotalMinor); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		row.Status = transaction.Status(status)
		stats = append(stats, row)
	}
	return stats, rows.Err()
}

// --- scanning helpers ---

func (r *TransactionRepository) scanTransaction(s scanner) (*transaction.Transaction, error) {
	t := &transaction.Transaction{}
	var (
		txType   string
		status   string
		metadata []byte
	)
	err := s.Scan(
		&t.ID, &t.UserID, &t.Amount.ValueMinor, &t.Amount.Currency, &txType, &status,
		&t.PropertyID, &t.SubscriptionID, &t.ParentTransactionID,
		&t.CommissionAmountMinor, &t.CommissionRateBps, &t.CommissionRecipientID,
		&metadata, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	t.Type = transaction.Type(txType)
	t.Status = transaction.Status(status)
	t.Metadata = make(map[string]any)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal transaction metadata: %w", err)
		}
	}
	return t, nil
}
