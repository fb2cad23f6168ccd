package cart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/session"
)

// Committer persists a modified session and refreshes its cookie.
type Committer interface {
	Commit(ctx context.Context, w http.ResponseWriter, s *session.Session) error
}

// Handler exposes the cart over HTTP.
type Handler struct {
	Catalog  Catalog
	Sessions Committer
	Logger   zerolog.Logger
}

var validate = validator.New()

// NewHandler wires a cart handler.
func NewHandler(catalog Catalog, sessions Committer, logger zerolog.Logger) *Handler {
	return &Handler{Catalog: catalog, Sessions: sessions, Logger: logger}
}

type qtyPayload struct {
	Qty *int `json:"qty" validate:"omitempty,min=-1000,max=1000"`
}

// LineView is the JSON rendering of a reconciled cart line.
type LineView struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int    `json:"qty"`
	LineTotal string `json:"line_total"`
}

// View is the JSON rendering of a reconciled cart.
type View struct {
	Items     []LineView `json:"items"`
	Total     string     `json:"total"`
	CartCount int        `json:"cart_count"`
}

// NewView renders a reconciliation.
func NewView(rec Reconciliation) View {
	items := make([]LineView, 0, len(rec.Items))
	for _, it := range rec.Items {
		items = append(items, LineView{
			ProductID: it.Product.ID,
			Name:      it.Product.Name,
			Price:     it.Product.PriceString(),
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal.StringFixed(2),
		})
	}
	return View{Items: items, Total: rec.Total.StringFixed(2), CartCount: rec.Cart.Count()}
}

// BadgeCount returns the cart item count for the request's session.
func BadgeCount(r *http.Request) int {
	return Count(session.FromContext(r.Context()))
}

// View renders the reconciled cart, persisting any pruning of stale products.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	sess := session.FromContext(r.Context())
	rec, err := ReconcileSession(r.Context(), sess, h.Catalog)
	if err != nil {
		h.Logger.Error().Err(err).Msg("reconcile cart")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load cart", nil)
		return
	}
	if rec.Pruned && !h.commit(w, r, sess) {
		return
	}
	common.JSONData(w, http.StatusOK, NewView(rec))
}

// Add increments a product's quantity. Unknown products yield 404 and leave the cart untouched.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	productID, ok := common.ParseID(chi.URLParam(r, "productID"))
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	found, err := h.Catalog.FindByIDs(r.Context(), []int64{productID})
	if err != nil {
		h.Logger.Error().Err(err).Int64("product_id", productID).Msg("lookup product")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load product", nil)
		return
	}
	if _, exists := found[productID]; !exists {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	qty, err := h.readQty(r, DefaultQty)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	sess := session.FromContext(r.Context())
	c := Add(sess, productID, qty)
	obs.CountCartMutation("add")
	if !h.commit(w, r, sess) {
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{"cart": c, "cart_count": c.Count()})
}

// Update sets a product's quantity; a missing qty means 1 and qty <= 0 removes the line.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	productID, ok := common.ParseID(chi.URLParam(r, "productID"))
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	qty, err := h.readQty(r, DefaultQty)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	sess := session.FromContext(r.Context())
	c := SetQty(sess, productID, qty)
	obs.CountCartMutation("set")
	if !h.commit(w, r, sess) {
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{"cart": c, "cart_count": c.Count()})
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	c := Clear(sess)
	obs.CountCartMutation("clear")
	if !h.commit(w, r, sess) {
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{"cart": c, "cart_count": 0})
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if h.Sessions == nil {
		return true
	}
	if err := h.Sessions.Commit(r.Context(), w, sess); err != nil {
		h.Logger.Error().Err(err).Str("session_id", sess.ID()).Msg("commit session")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save cart", nil)
		return false
	}
	return true
}

var errBadQty = common.NewAppError("VALIDATION_ERROR", "qty must be an integer", http.StatusBadRequest, nil)

// readQty reads qty from a JSON body or form field, returning def when absent.
func (h *Handler) readQty(r *http.Request, def int) (int, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var payload qtyPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			if errors.Is(err, io.EOF) {
				return def, nil
			}
			return 0, errBadQty
		}
		if err := validate.Struct(payload); err != nil {
			return 0, common.NewAppError("VALIDATION_ERROR", "qty out of range", http.StatusBadRequest, err)
		}
		if payload.Qty == nil {
			return def, nil
		}
		return *payload.Qty, nil
	}
	raw := strings.TrimSpace(r.FormValue("qty"))
	if raw == "" {
		return def, nil
	}
	qty, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errBadQty
	}
	if err := validate.Var(qty, "min=-1000,max=1000"); err != nil {
		return 0, common.NewAppError("VALIDATION_ERROR", "qty out of range", http.StatusBadRequest, err)
	}
	return qty, nil
}

