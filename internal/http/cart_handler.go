package http

import (
	"encoding/json"
	"net/http"

	"github.com/fjod/creamsy-pos/internal/cart"
	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Cart interface {
	AddUnit(product domain.Product) error
	RemoveUnit(productID string) error
	Snapshot() cart.Snapshot
}

type ProductLookup interface {
	FindByID(id string) (domain.Product, bool)
}

type CartHandler struct {
	cart     Cart
	products ProductLookup
}

func NewCartHandler(c Cart, products ProductLookup) *CartHandler {
	return &CartHandler{
		cart:     c,
		products: products,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
}

type CartLineDTO struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartResponseDTO struct {
	Lines     []CartLineDTO   `json:"lines"`
	Count     int             `json:"count"`
	Total     decimal.Decimal `json:"total"`
	Formatted string          `json:"formatted_total"`
}

func cartResponse(snap cart.Snapshot) CartResponseDTO {
	lines := snap.Lines()
	dto := make([]CartLineDTO, len(lines))
	for i, l := range lines {
		dto[i] = CartLineDTO{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Subtotal:  l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
		}
	}
	return CartResponseDTO{
		Lines:     dto,
		Count:     snap.Len(),
		Total:     snap.Total,
		Formatted: domain.FormatMoney(snap.Total),
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, cartResponse(h.cart.Snapshot()))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "missing_product_id", "product_id is required")
		return
	}

	product, ok := h.products.FindByID(req.ProductID)
	if !ok {
		handleError(w, cart.ErrUnknownProduct)
		return
	}
	if err := h.cart.AddUnit(product); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cartResponse(h.cart.Snapshot()))
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.RemoveUnit(chi.URLParam(r, "product_id")); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(h.cart.Snapshot()))
}
