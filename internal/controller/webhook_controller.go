package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	domainErrors "github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
	"github.com/homevault/payments/internal/reconciler"
)

// maxWebhookBodySize bounds how much of a delivery we read. The raw bytes are
// needed verbatim for signature verification, so no decoding happens before
// the reconciler.
const maxWebhookBodySize = 1 << 20

// WebhookController receives gateway webhook deliveries.
type WebhookController struct {
	reconciler *reconciler.Reconciler
}

// NewWebhookController creates a new WebhookController.
func NewWebhookController(rec *reconciler.Reconciler) *WebhookController {
	return &WebhookController{reconciler: rec}
}

// Receive handles POST /api/v1/webhooks/{provider}
func (h *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	provider := payment.Provider(chi.URLParam(r, "provider"))

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "failed to read body", Code: "bad_request"})
		return
	}

	result := h.reconciler.ProcessWebhook(r.Context(), provider, rawBody, r.Header)

	switch result.Outcome {
	case reconciler.OutcomeRejected:
		if errors.Is(result.Err, domainErrors.ErrSignatureInvalid) {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "signature verification failed", Code: "signature_invalid"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unsupported provider", Code: "unsupported_gateway"})
	case reconciler.OutcomeFailed:
		// Transient failure: a non-2xx makes the provider redeliver.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal_error"})
	default:
		writeJSON(w, http.StatusOK, WebhookAckResponse{Received: true, Outcome: string(result.Outcome)})
	}
}
