package controller

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	domainErrors "github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/transaction"
	"github.com/homevault/payments/internal/ledger"
)

// TransactionController handles transaction-related HTTP requests.
type TransactionController struct {
	ledger *ledger.Ledger
}

// NewTransactionController creates a new TransactionController.
func NewTransactionController(ldg *ledger.Ledger) *TransactionController {
	return &TransactionController{ledger: ldg}
}

// CreateTransaction handles POST /api/v1/transactions
func (h *TransactionController) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid user_id", Code: "invalid_id"})
		return
	}

	t, err := h.ledger.CreateTransaction(r.Context(), ledger.CreateTransactionRequest{
		UserID:                userID,
		AmountMinor:           req.AmountMinor,
		Currency:              req.Currency,
		Type:                  transaction.Type(req.Type),
		PropertyID:            parseOptionalUUID(req.PropertyID),
		SubscriptionID:        parseOptionalUUID(req.SubscriptionID),
		ParentTransactionID:   parseOptionalUUID(req.ParentTransactionID),
		CommissionRecipientID: parseOptionalUUID(req.CommissionRecipientID),
		Metadata:              req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromTransaction(t))
}

// GetTransaction handles GET /api/v1/transactions/{id}
func (h *TransactionController) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid transaction id", Code: "invalid_id"})
		return
	}

	t, err := h.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromTransaction(t))
}

// ListTransactions handles GET /api/v1/transactions
func (h *TransactionController) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter := transaction.ListFilter{}

	if s := r.URL.Query().Get("user_id"); s != "" {
		filter.UserID = parseUUID(s)
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := transaction.Status(s)
		filter.Status = &status
	}
	if s := r.URL.Query().Get("type"); s != "" {
		txType := transaction.Type(s)
		filter.Type = &txType
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	filter.SortBy = r.URL.Query().Get("sort_by")
	filter.SortOrder = r.URL.Query().Get("sort_order")

	transactions, err := h.ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*TransactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp = append(resp, FromTransaction(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus handles PATCH /api/v1/transactions/{id}/status
func (h *TransactionController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid transaction id", Code: "invalid_id"})
		return
	}

	var req UpdateTransactionStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	t, err := h.ledger.UpdateStatus(r.Context(), id, transaction.Status(req.Status), req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromTransaction(t))
}

// CalculateCommission handles POST /api/v1/transactions/{id}/commission
func (h *TransactionController) CalculateCommission(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid transaction id", Code: "invalid_id"})
		return
	}

	var req CalculateCommissionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var recipientID *uuid.UUID
	if req.RecipientID != nil {
		recipientID = parseUUID(*req.RecipientID)
		if recipientID == nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid recipient_id", Code: "invalid_id"})
			return
		}
	}

	result, err := h.ledger.CalculateCommission(r.Context(), id, req.RateBps, recipientID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CommissionResponse{
		TransactionID:         id.String(),
		CommissionAmountMinor: result.AmountMinor,
		RateBps:               result.RateBps,
	})
}

// SettleCommission handles POST /api/v1/transactions/{id}/commission/settle
func (h *TransactionController) SettleCommission(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid transaction id", Code: "invalid_id"})
		return
	}

	var req SettleCommissionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid recipient_id", Code: "invalid_id"})
		return
	}

	payout, err := h.ledger.SettleCommission(r.Context(), id, req.RateBps, recipientID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromTransaction(payout))
}

// Stats handles GET /api/v1/transactions/stats
func (h *TransactionController) Stats(w http.ResponseWriter, r *http.Request) {
	var userID *uuid.UUID
	if s := r.URL.Query().Get("user_id"); s != "" {
		userID = parseUUID(s)
		if userID == nil {
			writeError(w, domainErrors.NewValidationError("user_id", "must be a valid uuid"))
			return
		}
	}

	stats, err := h.ledger.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]StatsResponse, 0, len(stats))
	for _, row := range stats {
		resp = append(resp, StatsResponse{
			Status:     string(row.Status),
			Count:      row.Count,
			TotalMinor: row.TotalMinor,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseOptionalUUID(s *string) *uuid.UUID {
	if s == nil {
		return nil
	}
	return parseUUID(*s)
}
