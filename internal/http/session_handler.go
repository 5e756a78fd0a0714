package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/creamsy-pos/internal/domain"
	log "github.com/sirupsen/logrus"
)

type SessionService interface {
	SignIn(ctx context.Context, email, password string) (domain.Session, error)
	SignOut(ctx context.Context) error
	Current() (domain.Session, bool)
}

// SessionCatalog is the part of the catalog that follows the session.
type SessionCatalog interface {
	WarmStart(ctx context.Context) ([]domain.Product, bool, error)
	Reset(ctx context.Context)
}

type CartClearer interface {
	Clear()
}

type HistoryForgetter interface {
	Forget()
}

type SessionHandler struct {
	sessions SessionService
	catalog  SessionCatalog
	cart     CartClearer
	history  HistoryForgetter
	timeout  time.Duration
}

func NewSessionHandler(sessions SessionService, catalog SessionCatalog, c CartClearer, history HistoryForgetter, timeout time.Duration) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		catalog:  catalog,
		cart:     c,
		history:  history,
		timeout:  timeout,
	}
}

type SignInRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponseDTO struct {
	SignedIn  bool       `json:"signed_in"`
	UserID    string     `json:"user_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func sessionResponse(sess domain.Session, ok bool) SessionResponseDTO {
	if !ok {
		return SessionResponseDTO{}
	}
	expiresAt := sess.ExpiresAt
	return SessionResponseDTO{SignedIn: true, UserID: sess.UserID, ExpiresAt: &expiresAt}
}

// POST /api/v1/session/signin
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SignInRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "missing_credentials", "email and password are required")
		return
	}

	sess, err := h.sessions.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		handleError(w, err)
		return
	}

	// a previous user's cart must not leak into this session
	h.cart.Clear()
	h.history.Forget()
	if _, fromCache, err := h.catalog.WarmStart(ctx); err != nil {
		log.WithError(err).Warn("catalog not loaded after sign in")
	} else if fromCache {
		log.Info("catalog served from snapshot after sign in")
	}

	respondJSON(w, http.StatusOK, sessionResponse(sess, true))
}

// POST /api/v1/session/signout
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.cart.Clear()
	h.catalog.Reset(ctx)
	h.history.Forget()

	if err := h.sessions.SignOut(ctx); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.Current()
	respondJSON(w, http.StatusOK, sessionResponse(sess, ok))
}
