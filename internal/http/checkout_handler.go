package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/creamsy-pos/internal/checkout"
	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Checkouter interface {
	Checkout(ctx context.Context, amountPaid decimal.Decimal) (*domain.Transaction, error)
	LastAttempt() (checkout.Attempt, bool)
}

type CheckoutHandler struct {
	checkout Checkouter
	timeout  time.Duration
}

func NewCheckoutHandler(c Checkouter, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: c,
		timeout:  timeout,
	}
}

type CheckoutRequestDTO struct {
	AmountPaid *decimal.Decimal `json:"amount_paid"`
}

type AttemptResponseDTO struct {
	State       string              `json:"state"`
	Error       string              `json:"error,omitempty"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.AmountPaid == nil {
		respondError(w, http.StatusBadRequest, "missing_amount_paid", "amount_paid is required")
		return
	}

	tx, err := h.checkout.Checkout(ctx, *req.AmountPaid)
	if err != nil {
		handleError(w, err)
		return
	}

	log.WithFields(log.Fields{
		"user_id":        getUserIDFromContext(r.Context()),
		"transaction_id": tx.ID,
	}).Info("sale recorded")
	respondJSON(w, http.StatusCreated, tx)
}

// GET /api/v1/checkout/last
func (h *CheckoutHandler) LastAttempt(w http.ResponseWriter, r *http.Request) {
	a, ok := h.checkout.LastAttempt()
	if !ok {
		respondError(w, http.StatusNotFound, "no_attempt", "no checkout has been attempted yet")
		return
	}

	resp := AttemptResponseDTO{
		State:       a.State.String(),
		Transaction: a.Transaction,
		StartedAt:   a.StartedAt,
	}
	if a.Err != nil {
		resp.Error = a.Err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}
