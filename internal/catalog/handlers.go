package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
)

// Reader is the read side used by the HTTP handlers.
type Reader interface {
	List(ctx context.Context, query string) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, error)
}

// Handler exposes catalog browsing endpoints.
type Handler struct {
	Products Reader
	// CartCount reports the badge count for the current request. Optional.
	CartCount func(*http.Request) int
}

// ProductView is the JSON representation of a product.
type ProductView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

// NewProductView converts a Product for rendering.
func NewProductView(p Product) ProductView {
	return ProductView{ID: p.ID, Name: p.Name, Price: p.PriceString(), Description: p.Description}
}

// List renders products ordered by name, optionally filtered by the q parameter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Products == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	products, err := h.Products.List(r.Context(), q)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list products", nil)
		return
	}
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, NewProductView(p))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": views,
		"meta": map[string]any{
			"q":          q,
			"cart_count": h.cartCount(r),
		},
	})
}

// Detail renders a single product.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	if h.Products == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	p, err := h.Products.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load product", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": NewProductView(p),
		"meta": map[string]any{"cart_count": h.cartCount(r)},
	})
}

func (h *Handler) cartCount(r *http.Request) int {
	if h.CartCount == nil {
		return 0
	}
	return h.CartCount(r)
}
