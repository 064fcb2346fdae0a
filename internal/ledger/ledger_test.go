package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/transaction"
	"github.com/homevault/payments/internal/ledger"
	"github.com/homevault/payments/internal/testutil"
)

func newLedger() (*ledger.Ledger, *testutil.MockTransactionRepository) {
	repo := testutil.NewMockTransactionRepository()
	return ledger.New(repo, nil), repo
}

func createTransaction(t *testing.T, l *ledger.Ledger, txType transaction.Type) *transaction.Transaction {
	t.Helper()
	tx, err := l.CreateTransaction(context.Background(), ledger.CreateTransactionRequest{
		UserID:      uuid.New(),
		AmountMinor: 1_000_000,
		Currency:    "USD",
		Type:        txType,
	})
	require.NoError(t, err)
	return tx
}

func TestCreateTransaction(t *testing.T) {
	l, repo := newLedger()

	tx := createTransaction(t, l, transaction.TypePropertyPurchase)
	assert.Equal(t, transaction.StatusPending, tx.Status)

	stored, err := repo.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, stored.ID)
}

func TestCreateTransaction_InvalidAmount(t *testing.T) {
	l, _ := newLedger()

	_, err := l.CreateTransaction(context.Background(), ledger.CreateTransactionRequest{
		UserID:      uuid.New(),
		AmountMinor: 0,
		Currency:    "USD",
		Type:        transaction.TypeOther,
	})
	assert.Error(t, err)
}

func TestCreateTransaction_CommissionRequiresParent(t *testing.T) {
	l, _ := newLedger()

	_, err := l.CreateTransaction(context.Background(), ledger.CreateTransactionRequest{
		UserID:      uuid.New(),
		AmountMinor: 1000,
		Currency:    "USD",
		Type:        transaction.TypeCommissionPayment,
	})
	require.Error(t, err)
	var validationErr *domainErrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestUpdateStatus(t *testing.T) {
	l, _ := newLedger()
	tx := createTransaction(t, l, transaction.TypeOther)

	updated, err := l.UpdateStatus(context.Background(), tx.ID, transaction.StatusProcessing, map[string]any{"note": "charging"})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusProcessing, updated.Status)
	assert.Equal(t, "charging", updated.Metadata["note"])
	assert.Nil(t, updated.CompletedAt)
}

func TestUpdateStatus_TerminalSetsCompletedAt(t *testing.T) {
	l, _ := newLedger()
	tx := createTransaction(t, l, transaction.TypeOther)

	updated, err := l.UpdateStatus(context.Background(), tx.ID, transaction.StatusCompleted, nil)
	require.NoError(t, err)
	assert.NotNil(t, updated.CompletedAt)
}

func TestUpdateStatus_RejectsOutOfTerminal(t *testing.T) {
	l, _ := newLedger()
	tx := createTransaction(t, l, transaction.TypeOther)

	_, err := l.UpdateStatus(context.Background(), tx.ID, transaction.StatusCompleted, nil)
	require.NoError(t, err)

	_, err = l.UpdateStatus(context.Background(), tx.ID, transaction.StatusFailed, nil)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidTransition)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	l, _ := newLedger()
	_, err := l.UpdateStatus(context.Background(), uuid.New(), transaction.StatusCompleted, nil)
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
}

func TestCalculateCommission_DefaultRate(t *testing.T) {
	l, _ := newLedger()
	tx := createTransaction(t, l, transaction.TypePropertyPurchase)

	result, err := l.CalculateCommission(context.Background(), tx.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 500, result.RateBps)
	assert.Equal(t, int64(50_000), result.AmountMinor)
}

func TestCalculateCommission_Override(t *testing.T) {
	l, repo := newLedger()
	tx := createTransaction(t, l, transaction.TypePropertyPurchase)
	rate := 1000
	recipient := uuid.New()

	result, err := l.CalculateCommission(context.Background(), tx.ID, &rate, &recipient)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), result.AmountMinor)

	stored, err := repo.GetByID(context.Background(), tx.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CommissionRecipientID)
	assert.Equal(t, recipient, *stored.CommissionRecipientID)
}

func TestCalculateCommission_InvalidOverride(t *testing.T) {
	l, _ := newLedger()
	tx := createTransaction(t, l, transaction.TypeOther)

	for _, rate := range []int{-1, 10001} {
		r := rate
		_, err := l.CalculateCommission(context.Background(), tx.ID, &r, nil)
		assert.Error(t, err)
	}
}

func TestCalculateCommission_CommissionPaymentDefaultRate(t *testing.T) {
	l, _ := newLedger()
	parent := createTransaction(t, l, transaction.TypeOther)

	parentID := parent.ID
	child, err := l.CreateTransaction(context.Background(), ledger.CreateTransactionRequest{
		UserID:              uuid.New(),
		AmountMinor:         200_000,
		Currency:            "USD",
		Type:                transaction.TypeCommissionPayment,
		ParentTransactionID: &parentID,
	})
	require.NoError(t, err)

	result, err := l.CalculateCommission(context.Background(), child.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1000, result.RateBps)
	assert.Equal(t, int64(20_000), result.AmountMinor)
}

func TestSettleCommission_RejectsCommissionPaymentParent(t *testing.T) {
	l, _ := newLedger()
	parent := createTransaction(t, l, transaction.TypeOther)

	parentID := parent.ID
	child, err := l.CreateTransaction(context.Background(), ledger.CreateTransactionRequest{
		UserID:              uuid.New(),
		AmountMinor:         200_000,
		Currency:            "USD",
		Type:                transaction.TypeCommissionPayment,
		ParentTransactionID: &parentID,
	})
	require.NoError(t, err)

	_, err = l.UpdateStatus(context.Background(), child.ID, transaction.StatusCompleted, nil)
	require.NoError(t, err)

	_, err = l.SettleCommission(context.Background(), child.ID, nil, uuid.New())
	assert.ErrorIs(t, err, domainErrors.ErrPreconditionFailed)
}

func TestSettleCommission(t *testing.T) {
	l, _ := newLedger()
	tx := createTransaction(t, l, transaction.TypePropertyPurchase)
	recipient := uuid.New()

	_, err := l.UpdateStatus(context.Background(), tx.ID, transaction.StatusCompleted, nil)
	require.NoError(t, err)

	payout, err := l.SettleCommission(context.Background(), tx.ID, nil, recipient)
	require.NoError(t, err)

	assert.Equal(t, transaction.TypeCommissionPayment, payout.Type)
	assert.Equal(t, recipient, payout.UserID)
	assert.Equal(t, int64(50_000), payout.Amount.ValueMinor)
	assert.Equal(t, "USD", payout.Amount.Currency)
	require.NotNil(t, payout.ParentTransactionID)
	assert.Equal(t, tx.ID, *payout.ParentTransactionID)
	assert.Equal(t, tx.ID.String(), payout.Metadata["source_transaction_id"])
	assert.Equal(t, 500, payout.Metadata["commission_rate_bps"])
}

func TestSettleCommission_RequiresCompletedParent(t *testing.T) {
	l, _ := newLedger()
	tx := createTransaction(t, l, transaction.TypePropertyPurchase)

	_, err := l.SettleCommission(context.Background(), tx.ID, nil, uuid.New())
	assert.ErrorIs(t, err, domainErrors.ErrPreconditionFailed)
}

func TestStats(t *testing.T) {
	l, _ := newLedger()
	createTransaction(t, l, transaction.TypeOther)
	tx := createTransaction(t, l, transaction.TypeOther)
	_, err := l.UpdateStatus(context.Background(), tx.ID, transaction.StatusCompleted, nil)
	require.NoError(t, err)

	rows, err := l.Stats(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
