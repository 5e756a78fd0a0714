package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers groups everything the router serves.
type Handlers struct {
	Session     *SessionHandler
	Products    *ProductHandler
	Cart        *CartHandler
	Checkout    *CheckoutHandler
	Transaction *TransactionHandler
	Users       UserSource
}

func NewRouter(h Handlers, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.Session.Get)
			r.Post("/signin", h.Session.SignIn)
			r.Post("/signout", h.Session.SignOut)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireSession(h.Users))

			r.Route("/products", func(r chi.Router) {
				r.Get("/", h.Products.List)
				r.Post("/", h.Products.Create)
				r.Post("/refresh", h.Products.Refresh)
				r.Post("/images", h.Products.UploadImage)
				r.Put("/{id}", h.Products.Update)
				r.Delete("/{id}", h.Products.Delete)
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Post("/items", h.Cart.AddItem)
				r.Delete("/items/{product_id}", h.Cart.RemoveItem)
			})

			r.Post("/checkout", h.Checkout.Checkout)
			r.Get("/checkout/last", h.Checkout.LastAttempt)

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", h.Transaction.List)
				r.Delete("/", h.Transaction.Delete)
				r.Get("/report", h.Transaction.Report)
				r.Get("/{id}/items", h.Transaction.Items)
			})
		})
	})

	return r
}
