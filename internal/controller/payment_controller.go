package controller

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/homevault/payments/internal/domain/payment"
	"github.com/homevault/payments/internal/orchestrator"
)

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	orchestrator *orchestrator.Orchestrator
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(orch *orchestrator.Orchestrator) *PaymentController {
	return &PaymentController{orchestrator: orch}
}

// InitiatePayment handles POST /api/v1/payments
func (h *PaymentController) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	transactionID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid transaction_id", Code: "invalid_id"})
		return
	}

	p, err := h.orchestrator.InitiatePayment(r.Context(), orchestrator.InitiatePaymentRequest{
		TransactionID: transactionID,
		AmountMinor:   req.AmountMinor,
		Currency:      req.Currency,
		Method:        payment.Method(req.Method),
		Provider:      payment.Provider(req.Provider),
		Metadata:      req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromPayment(p))
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return
	}

	p, err := h.orchestrator.GetPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}

// ListPayments handles GET /api/v1/payments
func (h *PaymentController) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter := payment.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		status := payment.Status(s)
		filter.Status = &status
	}
	if s := r.URL.Query().Get("transaction_id"); s != "" {
		filter.TransactionID = parseUUID(s)
	}
	if s := r.URL.Query().Get("provider"); s != "" {
		prov := payment.Provider(s)
		filter.Provider = &prov
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	filter.SortBy = r.URL.Query().Get("sort_by")
	filter.SortOrder = r.URL.Query().Get("sort_order")

	payments, err := h.orchestrator.ListPayments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, FromPayment(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ProcessPayment handles POST /api/v1/payments/{id}/process
func (h *PaymentController) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return
	}

	p, err := h.orchestrator.ProcessPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}

// CapturePayment handles POST /api/v1/payments/{id}/capture
func (h *PaymentController) CapturePayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return
	}

	p, err := h.orchestrator.CapturePayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}

// RefundPayment handles POST /api/v1/payments/{id}/refund
func (h *PaymentController) RefundPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return
	}

	p, err := h.orchestrator.RefundPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}

// CancelPayment handles POST /api/v1/payments/{id}/cancel
func (h *PaymentController) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return
	}

	p, err := h.orchestrator.CancelPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}

// ChargeSubscription handles POST /api/v1/subscriptions/{id}/charge
func (h *PaymentController) ChargeSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid subscription id", Code: "invalid_id"})
		return
	}

	var req ChargeSubscriptionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.orchestrator.ProcessSubscriptionPayment(r.Context(), id,
		payment.Method(req.Method), payment.Provider(req.Provider))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Transaction *TransactionResponse `json:"transaction"`
		Payment     *PaymentResponse     `json:"payment"`
	}{
		Transaction: FromTransaction(result.Transaction),
		Payment:     FromPayment(result.Payment),
	})
}
