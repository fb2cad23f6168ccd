package checkout

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/session"
)

// Handler exposes the checkout lifecycle over HTTP.
type Handler struct {
	Svc      *Service
	Sessions cart.Committer
	// CartPath is where an empty checkout is sent back to.
	CartPath string
	Logger   zerolog.Logger
}

func (h *Handler) cartPath() string {
	if h.CartPath == "" {
		return "/cart"
	}
	return h.CartPath
}

// Start submits the cart to the payment provider and redirects the browser there.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	sess := session.FromContext(r.Context())

	sub, err := h.Svc.Start(r.Context(), sess, userID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoItems):
		if !h.commit(w, r, sess) {
			return
		}
		common.SeeOther(w, r, h.cartPath())
		return
	case errors.Is(err, ErrPaymentProvider):
		if sub.Pruned && !h.commit(w, r, sess) {
			return
		}
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_PROVIDER_ERROR", "could not start checkout, please try again", nil)
		return
	default:
		h.Logger.Error().Err(err).Msg("start checkout")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to start checkout", nil)
		return
	}
	if !h.commit(w, r, sess) {
		return
	}
	common.SeeOther(w, r, sub.RedirectURL)
}

// Success completes the checkout and clears the cart.
func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	sess := session.FromContext(r.Context())
	providerID := strings.TrimSpace(r.URL.Query().Get("session_id"))

	rec, err := h.Svc.Complete(r.Context(), sess, userID, providerID)
	switch {
	case err == nil:
	case errors.Is(err, ErrPaymentNotConfirmed):
		common.JSONError(w, http.StatusConflict, "PAYMENT_NOT_CONFIRMED", "payment has not been confirmed", nil)
		return
	case errors.Is(err, ErrPaymentProvider):
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_PROVIDER_ERROR", "could not confirm payment", nil)
		return
	default:
		h.Logger.Error().Err(err).Msg("complete checkout")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to complete checkout", nil)
		return
	}
	if !h.commit(w, r, sess) {
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{
		"status":              rec.State,
		"provider_session_id": rec.ProviderSessionID,
		"cart_count":          0,
	})
}

// Cancel records the abandoned checkout; the cart is kept for another attempt.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	sess := session.FromContext(r.Context())
	rec, err := h.Svc.Cancel(r.Context(), sess)
	if err != nil {
		h.Logger.Error().Err(err).Msg("cancel checkout")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to cancel checkout", nil)
		return
	}
	if !h.commit(w, r, sess) {
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{
		"status":     rec.State,
		"cart_count": cart.Count(sess),
	})
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if h.Sessions == nil {
		return true
	}
	if err := h.Sessions.Commit(r.Context(), w, sess); err != nil {
		h.Logger.Error().Err(err).Msg("commit session")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save session", nil)
		return false
	}
	return true
}
