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
	"github.com/homevault/payments/internal/domain/payment"
)

// allowedPaymentSortColumns is a whitelist of columns valid for ORDER BY.
var allowedPaymentSortColumns = map[string]string{
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"amount_minor": "amount_minor",
	"status":       "status",
}

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const paymentColumns = `id, transaction_id, amount_minor, currency, method, provider, status,
        gateway_transaction_id, gateway_reference, gateway_response,
        webhook_received, webhook_processed_at, webhook_attempts, processed_webhook_ids,
        last_error, created_at, updated_at`

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	response, err := json.Marshal(p.GatewayResponse)
	if err != nil {
		return fmt.Errorf("marshal gateway response: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO payments
		 (id, transaction_id, amount_minor, currency, method, provider, status,
		  gateway_transaction_id, gateway_reference, gateway_response,
		  webhook_received, webhook_processed_at, webhook_attempts, processed_webhook_ids,
		  last_error, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		p.ID, p.TransactionID, p.Amount.ValueMinor, p.Amount.Currency,
		string(p.Method), string(p.Provider), string(p.Status),
		p.GatewayTransactionID, p.GatewayReference, response,
		p.WebhookReceived, p.WebhookProcessedAt, p.WebhookAttempts, p.ProcessedWebhookIDs,
		p.LastError, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// Update updates an existing payment.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	response, err := json.Marshal(p.GatewayResponse)
	if err != nil {
		return fmt.Errorf("marshal gateway response: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments SET
		  status=$1, gateway_transaction_id=$2, gateway_reference=$3, gateway_response=$4,
		  webhook_received=$5, webhook_processed_at=$6, webhook_attempts=$7, processed_webhook_ids=$8,
		  last_error=$9, updated_at=$10
		 WHERE id=$11`,
		string(p.Status), p.GatewayTransactionID, p.GatewayReference, response,
		p.WebhookReceived, p.WebhookProcessedAt, p.WebhookAttempts, p.ProcessedWebhookIDs,
		p.LastError, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrPaymentNotFound
	}
	return nil
}

// List lists payments with optional filters.
func (r *PaymentRepository) List(ctx context.Context, f payment.ListFilter) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.TransactionID != nil {
		query += fmt.Sprintf(" AND transaction_id = $%d", argIdx)
		args = append(args, *f.TransactionID)
		argIdx++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.Provider != nil {
		query += fmt.Sprintf(" AND provider = $%d", argIdx)
		args = append(args, string(*f.Provider))
		argIdx++
	}

	// Strict whitelist for sort column
	sortBy := "created_at"
	if col, ok := allowedPaymentSortColumns[f.SortBy]; ok {
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
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// MarkEventProcessed records a webhook event id for a payment. The unique
// constraint on (payment_id, event_id) makes the insert the idempotency
// check: a second delivery of the same event inserts nothing.
func (r *PaymentRepository) MarkEventProcessed(ctx context.Context, paymentID uuid.UUID, eventID string) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO webhook_events (payment_id, event_id, received_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (payment_id, event_id) DO NOTHING`,
		paymentID, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// --- scanning helpers ---

// scanPayment scans a payment from any source implementing the scanner interface.
func (r *PaymentRepository) scanPayment(s scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var (
		method   string
		provider string
		status   string
		response []byte
	)
	err := s.Scan(
		&p.ID, &p.TransactionID, &p.Amount.ValueMinor, &p.Amount.Currency,
		&method, &provider, &status,
		&p.GatewayTransactionID, &p.GatewayReference, &response,
		&p.WebhookReceived, &p.WebhookProcessedAt, &p.WebhookAttempts, &p.ProcessedWebhookIDs,
		&p.LastError, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.Method = payment.Method(method)
	p.Provider = payment.Provider(provider)
	p.Status = payment.Status(status)
	p.GatewayResponse = make(map[string]any)
	if len(response) > 0 {
		if err := json.Unmarshal(response, &p.GatewayResponse); err != nil {
			return nil, fmt.Errorf("unmarshal gateway response: %w", err)
		}
	}
	return p, nil
}
