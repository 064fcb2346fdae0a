package testutil

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
	"github.com/homevault/payments/internal/domain/subscription"
	"github.com/homevault/payments/internal/domain/transaction"
	"github.com/homevault/payments/internal/gateway"
)

// --- Payment Repository Mock ---

// MockPaymentRepository is a mock implementation of payment.Repository.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*payment.Payment
	events   map[string]bool

	CreateFunc             func(ctx context.Context, p *payment.Payment) error
	GetByIDFunc            func(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	UpdateFunc             func(ctx context.Context, p *payment.Payment) error
	ListFunc               func(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error)
	MarkEventProcessedFunc func(ctx context.Context, paymentID uuid.UUID, eventID string) (bool, error)
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[uuid.UUID]*payment.Payment),
		events:   make(map[string]bool),
	}
}

// AddPayment pre-populates the mock with a payment.
func (m *MockPaymentRepository) AddPayment(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return p, nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		return domainErrors.ErrPaymentNotFound
	}
	m.payments[p.ID] = p
	return nil
}

func (m *MockPaymentRepository) List(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*payment.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		result = append(result, p)
	}
	return result, nil
}

func (m *MockPaymentRepository) MarkEventProcessed(ctx context.Context, paymentID uuid.UUID, eventID string) (bool, error) {
	if m.MarkEventProcessedFunc != nil {
		return m.MarkEventProcessedFunc(ctx, paymentID, eventID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := paymentID.String() + ":" + eventID
	if m.events[key] {
		return false, nil
	}
	m.events[key] = true
	return true, nil
}

// --- Transaction Repository Mock ---

// MockTransactionRepository is a mock implementation of transaction.Repository.
type MockTransactionRepository struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*transaction.Transaction

	CreateFunc  func(ctx context.Context, t *transaction.Transaction) error
	GetByIDFunc func(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	UpdateFunc  func(ctx context.Context, t *transaction.Transaction) error
	ListFunc    func(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error)
	StatsFunc   func(ctx context.Context, userID *uuid.UUID) ([]transaction.StatsRow, error)
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		transactions: make(map[uuid.UUID]*transaction.Transaction),
	}
}

// AddTransaction pre-populates the mock with a transaction.
func (m *MockTransactionRepository) AddTransaction(t *transaction.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[t.ID] = t
}

func (m *MockTransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[t.ID] = t
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return t, nil
}

func (m *MockTransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[t.ID]; !ok {
		return domainErrors.ErrTransactionNotFound
	}
	m.transactions[t.ID] = t
	return nil
}

func (m *MockTransactionRepository) List(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*transaction.Transaction, 0, len(m.transactions))
	for _, t := range m.transactions {
		result = append(result, t)
	}
	return result, nil
}

func (m *MockTransactionRepository) Stats(ctx context.Context, userID *uuid.UUID) ([]transaction.StatsRow, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buckets := make(map[transaction.Status]*transaction.StatsRow)
	for _, t := range m.transactions {
		if userID != nil && t.UserID != *userID {
			continue
		}
		row, ok := buckets[t.Status]
		if !ok {
			row = &transaction.StatsRow{Status: t.Status}
			buckets[t.Status] = row
		}
		row.Count++
		row.TotalMinor += t.Amount.ValueMinor
	}
	result := make([]transaction.StatsRow, 0, len(buckets))
	for _, row := range buckets {
		result = append(result, *row)
	}
	return result, nil
}

// --- Subscription Repository Mock ---

// MockSubscriptionRepository is a mock implementation of subscription.Repository.
type MockSubscriptionRepository struct {
	mu            sync.Mutex
	subscriptions map[uuid.UUID]*subscription.Subscription

	GetByIDFunc func(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error)
	ListDueFunc func(ctx context.Context, now time.Time, limit int) ([]*subscription.Subscription, error)
	UpdateFunc  func(ctx context.Context, s *subscription.Subscription) error
}

func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{
		subscriptions: make(map[uuid.UUID]*subscription.Subscription),
	}
}

// AddSubscription pre-populates the mock with a subscription.
func (m *MockSubscriptionRepository) AddSubscription(s *subscription.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[s.ID] = s
}

func (m *MockSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscriptions[id]
	if !ok {
		return nil, domainErrors.ErrSubscriptionNotFound
	}
	return s, nil
}

func (m *MockSubscriptionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*subscription.Subscription, error) {
	if m.ListDueFunc != nil {
		return m.ListDueFunc(ctx, now, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*subscription.Subscription, 0)
	for _, s := range m.subscriptions {
		if s.IsDue(now) {
			result = append(result, s)
		}
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[s.ID]; !ok {
		return domainErrors.ErrSubscriptionNotFound
	}
	m.subscriptions[s.ID] = s
	return nil
}

// --- Gateway Adapter Mock ---

// MockAdapter is a configurable gateway.Adapter with call counters.
type MockAdapter struct {
	ProviderValue payment.Provider

	mu           sync.Mutex
	IntentCalls  int
	ChargeCalls  int
	CaptureCalls int
	RefundCalls  int

	CreateIntentFunc     func(ctx context.Context, req gateway.Request) (*gateway.Result, error)
	ChargeFunc           func(ctx context.Context, req gateway.Request) (*gateway.Result, error)
	CaptureFunc          func(ctx context.Context, req gateway.CaptureRequest) (*gateway.Result, error)
	RefundFunc           func(ctx context.Context, req gateway.RefundRequest) (*gateway.Result, error)
	VerifySignatureFunc  func(ctx context.Context, rawBody []byte, header http.Header) bool
	ParseEventFunc       func(rawBody []byte) (*gateway.Event, error)
	MapEventToStatusFunc func(eventType string) payment.Status
}

func NewMockAdapter(p payment.Provider) *MockAdapter {
	return &MockAdapter{ProviderValue: p}
}

func (m *MockAdapter) Provider() payment.Provider { return m.ProviderValue }

func (m *MockAdapter) CreateIntent(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	m.mu.Lock()
	m.IntentCalls++
	m.mu.Unlock()
	if m.CreateIntentFunc != nil {
		return m.CreateIntentFunc(ctx, req)
	}
	return &gateway.Result{
		GatewayTransactionID: "mock_intent_" + req.PaymentID.String(),
		Status:               payment.StatusPending,
	}, nil
}

func (m *MockAdapter) Charge(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	m.mu.Lock()
	m.ChargeCalls++
	m.mu.Unlock()
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, req)
	}
	return &gateway.Result{
		GatewayTransactionID: "mock_charge_" + req.PaymentID.String(),
		Status:               payment.StatusCaptured,
	}, nil
}

func (m *MockAdapter) Capture(ctx context.Context, req gateway.CaptureRequest) (*gateway.Result, error) {
	m.mu.Lock()
	m.CaptureCalls++
	m.mu.Unlock()
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, req)
	}
	return &gateway.Result{
		GatewayTransactionID: req.GatewayTransactionID,
		Status:               payment.StatusCaptured,
	}, nil
}

func (m *MockAdapter) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.Result, error) {
	m.mu.Lock()
	m.RefundCalls++
	m.mu.Unlock()
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, req)
	}
	return &gateway.Result{
		GatewayTransactionID: "mock_refund_" + req.PaymentID.String(),
		Status:               payment.StatusRefunded,
	}, nil
}

func (m *MockAdapter) VerifySignature(ctx context.Context, rawBody []byte, header http.Header) bool {
	if m.VerifySignatureFunc != nil {
		return m.VerifySignatureFunc(ctx, rawBody, header)
	}
	return true
}

func (m *MockAdapter) ParseEvent(rawBody []byte) (*gateway.Event, error) {
	if m.ParseEventFunc != nil {
		return m.ParseEventFunc(rawBody)
	}
	return nil, domainErrors.ErrMalformedEvent
}

func (m *MockAdapter) MapEventToStatus(eventType string) payment.Status {
	if m.MapEventToStatusFunc != nil {
		return m.MapEventToStatusFunc(eventType)
	}
	return payment.StatusPending
}

// --- Locker Mock ---

// NoopLocker runs the callback without any locking.
type NoopLocker struct {
	WithLockFunc func(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

func (l *NoopLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if l.WithLockFunc != nil {
		return l.WithLockFunc(ctx, key, ttl, fn)
	}
	return fn(ctx)
}
