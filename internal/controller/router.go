package controller

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/homevault/payments/internal/infrastructure/config"
	"github.com/homevault/payments/internal/infrastructure/observability"
	"github.com/homevault/payments/internal/ledger"
	customMW "github.com/homevault/payments/internal/middleware"
	"github.com/homevault/payments/internal/orchestrator"
	"github.com/homevault/payments/internal/reconciler"
	"github.com/homevault/payments/internal/repository/postgres"
)

type RouterDeps struct {
	Pool            *pgxpool.Pool
	RedisClient     *redis.Client
	Ledger          *ledger.Ledger
	Orchestrator    *orchestrator.Orchestrator
	Reconciler      *reconciler.Reconciler
	IdempotencyRepo *postgres.IdempotencyRepository
	Metrics         *observability.Metrics
	CORSConfig      config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(customMW.SecurityHeaders())
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	transactionH := NewTransactionController(deps.Ledger)
	paymentH := NewPaymentController(deps.Orchestrator)
	webhookH := NewWebhookController(deps.Reconciler)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for mutating endpoints.
		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo)

		// Transactions
		r.With(idempotencyMW).Post("/transactions", transactionH.CreateTransaction)
		r.Get("/transactions", transactionH.ListTransactions)
		r.Get("/transactions/stats", transactionH.Stats)
		r.Get("/transactions/{id}", transactionH.GetTransaction)
		r.Patch("/transactions/{id}/status", transactionH.UpdateStatus)
		r.Post("/transactions/{id}/commission", transactionH.CalculateCommission)
		r.With(idempotencyMW).Post("/transactions/{id}/commission/settle", transactionH.SettleCommission)

		// Payments
		r.With(idempotencyMW).Post("/payments", paymentH.InitiatePayment)
		r.Get("/payments", paymentH.ListPayments)
		r.Get("/payments/{id}", paymentH.GetPayment)
		r.Post("/payments/{id}/process", paymentH.ProcessPayment)
		r.Post("/payments/{id}/capture", paymentH.CapturePayment)
		r.Post("/payments/{id}/refund", paymentH.RefundPayment)
		r.Post("/payments/{id}/cancel", paymentH.CancelPayment)

		// Subscriptions
		r.With(idempotencyMW).Post("/subscriptions/{id}/charge", paymentH.ChargeSubscription)

		// Webhooks: raw body, provider-authenticated, no idempotency middleware
		// (the reconciler deduplicates by event id).
		r.Post("/webhooks/{provider}", webhookH.Receive)
	})

	return r
}
