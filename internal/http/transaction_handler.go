package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/fjod/creamsy-pos/internal/gateway"
	"github.com/fjod/creamsy-pos/internal/history"
	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

type HistoryService interface {
	List(ctx context.Context) ([]domain.Transaction, error)
	Items(ctx context.Context, transactionID string) ([]domain.LineItemDetail, error)
	DeleteSelected(ctx context.Context, ids []string) error
	DeleteAll(ctx context.Context) (int, error)
}

// HistoryCache is the background copy kept by the reloader.
type HistoryCache interface {
	Latest() ([]domain.Transaction, time.Time)
	Reload(ctx context.Context) error
}

type TransactionHandler struct {
	history HistoryService
	cached  HistoryCache
	timeout time.Duration
}

func NewTransactionHandler(svc HistoryService, cached HistoryCache, timeout time.Duration) *TransactionHandler {
	return &TransactionHandler{
		history: svc,
		cached:  cached,
		timeout: timeout,
	}
}

type TransactionsResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	Count        int                  `json:"count"`
	Stale        bool                 `json:"stale,omitempty"`
	LoadedAt     *time.Time           `json:"loaded_at,omitempty"`
}

type ItemsResponse struct {
	TransactionID string                  `json:"transaction_id"`
	Items         []domain.LineItemDetail `json:"items"`
}

type DeleteRequestDTO struct {
	IDs []string `json:"ids"`
}

type DeleteResponseDTO struct {
	Deleted int `json:"deleted"`
}

// GET /api/v1/transactions
// While the backend is unreachable the last list loaded in the background is
// served and marked stale.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	txs, err := h.history.List(ctx)
	if err != nil {
		if errors.Is(err, gateway.ErrNetwork) {
			if cached, at := h.cached.Latest(); !at.IsZero() {
				respondJSON(w, http.StatusOK, TransactionsResponse{
					Transactions: cached,
					Count:        len(cached),
					Stale:        true,
					LoadedAt:     &at,
				})
				return
			}
		}
		handleError(w, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	respondJSON(w, http.StatusOK, TransactionsResponse{Transactions: txs, Count: len(txs)})
}

// GET /api/v1/transactions/{id}/items
func (h *TransactionHandler) Items(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	items, err := h.history.Items(ctx, id)
	if err != nil {
		handleError(w, err)
		return
	}
	if items == nil {
		items = []domain.LineItemDetail{}
	}
	respondJSON(w, http.StatusOK, ItemsResponse{TransactionID: id, Items: items})
}

// DELETE /api/v1/transactions
// An empty body or an empty id list deletes the whole history.
func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req DeleteRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var (
		deleted int
		err     error
	)
	if len(req.IDs) == 0 {
		deleted, err = h.history.DeleteAll(ctx)
	} else {
		deleted, err = len(req.IDs), h.history.DeleteSelected(ctx, req.IDs)
	}
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.cached.Reload(ctx); err != nil {
		log.WithError(err).Warn("history reload after delete failed")
	}
	respondJSON(w, http.StatusOK, DeleteResponseDTO{Deleted: deleted})
}

// GET /api/v1/transactions/report
func (h *TransactionHandler) Report(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	txs, err := h.history.List(ctx)
	if err != nil {
		handleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, history.Report(txs)); err != nil {
		log.WithError(err).Error("failed to write report")
	}
}
