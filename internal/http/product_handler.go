package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxImageSize = 5 << 20

type Catalog interface {
	Products() []domain.Product
	Refresh(ctx context.Context) ([]domain.Product, error)
	Create(ctx context.Context, p domain.Product) error
	Update(ctx context.Context, p domain.Product) error
	Delete(ctx context.Context, id string) error
	UploadImage(ctx context.Context, data []byte, fileName, contentType string) (string, error)
}

type ProductHandler struct {
	catalog Catalog
	timeout time.Duration
}

func NewProductHandler(catalog Catalog, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		timeout: timeout,
	}
}

type ProductsResponse struct {
	Products []domain.Product `json:"products"`
	Count    int              `json:"count"`
}

type ProductRequestDTO struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	ImageURL string          `json:"image_url"`
}

type ImageResponseDTO struct {
	URL string `json:"url"`
}

func productsResponse(products []domain.Product) *ProductsResponse {
	return &ProductsResponse{Products: products, Count: len(products)}
}

// GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, productsResponse(h.catalog.Products()))
}

// POST /api/v1/products/refresh
func (h *ProductHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.catalog.Refresh(ctx)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, productsResponse(products))
}

// POST /api/v1/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ProductRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	p := domain.Product{Name: req.Name, Price: req.Price, Stock: req.Stock, ImageURL: req.ImageURL}
	if err := h.catalog.Create(ctx, p); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, productsResponse(h.catalog.Products()))
}

// PUT /api/v1/products/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ProductRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	p := domain.Product{
		ID:       chi.URLParam(r, "id"),
		Name:     req.Name,
		Price:    req.Price,
		Stock:    req.Stock,
		ImageURL: req.ImageURL,
	}
	if err := h.catalog.Update(ctx, p); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, productsResponse(h.catalog.Products()))
}

// DELETE /api/v1/products/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.catalog.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/products/images?name=<file name>
// The body is the raw image.
func (h *ProductHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "image_too_large", "image exceeds 5MB")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "could not read image")
		return
	}

	url, err := h.catalog.UploadImage(ctx, data, r.URL.Query().Get("name"), r.Header.Get("Content-Type"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ImageResponseDTO{URL: url})
}
