package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/creamsy-pos/internal/cart"
	"github.com/fjod/creamsy-pos/internal/checkout"
	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/fjod/creamsy-pos/internal/gateway"
	"github.com/fjod/creamsy-pos/internal/session"
	log "github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type shortfallDetails struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type commitDetails struct {
	Step          string `json:"step"`
	ProductID     string `json:"product_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps errors from the POS packages to HTTP responses.
func handleError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var shortfall *checkout.StockShortfallError
	var commitErr *checkout.CommitError
	switch {
	case errors.As(err, &shortfall):
		resp.Details = shortfallDetails{
			ProductID: shortfall.ProductID,
			Name:      shortfall.Name,
			Requested: shortfall.Requested,
			Available: shortfall.Available,
		}
	case errors.As(err, &commitErr):
		resp.Code = "commit_failed"
		resp.Details = commitDetails{
			Step:          string(commitErr.Step),
			ProductID:     commitErr.ProductID,
			TransactionID: commitErr.TransactionID,
		}
	}

	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("code", resp.Code).Error("request failed")
	}
	respondJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotSignedIn):
		return http.StatusUnauthorized, "not_signed_in"
	case errors.Is(err, gateway.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, gateway.ErrTokenRejected):
		return http.StatusUnauthorized, "token_rejected"

	case errors.Is(err, checkout.ErrCheckoutInProgress):
		return http.StatusConflict, "checkout_in_progress"
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusConflict, "empty_cart"
	case errors.Is(err, checkout.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, checkout.ErrInsufficientPayment):
		return http.StatusBadRequest, "insufficient_payment"

	case errors.Is(err, cart.ErrOutOfStock):
		return http.StatusConflict, "out_of_stock"
	case errors.Is(err, cart.ErrNotInCart):
		return http.StatusConflict, "not_in_cart"
	case errors.Is(err, cart.ErrUnknownProduct):
		return http.StatusNotFound, "unknown_product"
	case errors.Is(err, domain.ErrInvalidProduct):
		return http.StatusBadRequest, "invalid_product"

	case errors.Is(err, gateway.ErrNetwork):
		return http.StatusServiceUnavailable, "backend_unavailable"
	case errors.Is(err, gateway.ErrBadRequest):
		return http.StatusBadRequest, "backend_rejected"
	case errors.Is(err, gateway.ErrServerError):
		return http.StatusBadGateway, "backend_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
