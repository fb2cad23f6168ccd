package auth

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/session"
)

// Sessions is the session lifecycle used around login and logout.
type Sessions interface {
	Rotate(ctx context.Context, s *session.Session) error
	Commit(ctx context.Context, w http.ResponseWriter, s *session.Session) error
	Destroy(ctx context.Context, w http.ResponseWriter, s *session.Session) error
}

// Handler exposes signup, login, logout and account endpoints.
type Handler struct {
	Service          *Service
	Sessions         Sessions
	CartCount        func(*http.Request) int
	AccessCookieName string
	CookieSecure     bool
	CookieSameSite   http.SameSite
	Logger           zerolog.Logger
}

// Signup creates an account and logs the new user in.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	var in SignupInput
	if err := bind(r, &in, map[string]*string{
		"username": &in.Username, "email": &in.Email,
		"password": &in.Password, "password_confirm": &in.PasswordConfirm,
	}); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	user, err := h.Service.Register(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.Service.Issue(user)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !h.startSession(w, r, result) {
		return
	}
	common.JSONData(w, http.StatusCreated, result.User)
}

// Login verifies credentials, issues the access cookie and follows a safe "next".
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	var in LoginInput
	if err := bind(r, &in, map[string]*string{"username": &in.Username, "password": &in.Password}); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	result, err := h.Service.Login(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !h.startSession(w, r, result) {
		return
	}
	if next := r.URL.Query().Get("next"); SafeNext(next) {
		common.SeeOther(w, r, next)
		return
	}
	common.JSONData(w, http.StatusOK, result)
}

// Logout drops the access cookie and the whole session, cart included.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.setAccessCookie(w, "", time.Time{}, -1)
	if h.Sessions != nil {
		if err := h.Sessions.Destroy(r.Context(), w, session.FromContext(r.Context())); err != nil {
			h.Logger.Error().Err(err).Msg("destroy session")
		}
	}
	common.JSONData(w, http.StatusOK, map[string]any{"logged_out": true})
}

// Account returns the current user with the cart badge count.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	id, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	user, err := h.Service.Me(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			return
		}
		h.writeError(w, err)
		return
	}
	count := 0
	if h.CartCount != nil {
		count = h.CartCount(r)
	}
	common.JSONData(w, http.StatusOK, map[string]any{"user": user, "cart_count": count})
}

// startSession rotates the session id (keeping its cart), sets the access cookie and
// persists the session.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, result LoginResult) bool {
	if h.Sessions != nil {
		sess := session.FromContext(r.Context())
		if err := h.Sessions.Rotate(r.Context(), sess); err != nil {
			h.Logger.Error().Err(err).Msg("rotate session")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to start session", nil)
			return false
		}
		if err := h.Sessions.Commit(r.Context(), w, sess); err != nil {
			h.Logger.Error().Err(err).Msg("commit session")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to start session", nil)
			return false
		}
	}
	maxAge := int(time.Until(result.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = 1
	}
	h.setAccessCookie(w, result.AccessToken, result.ExpiresAt, maxAge)
	h.Logger.Info().Int64("user_id", result.User.ID).Msg("login")
	return true
}

func (h *Handler) setAccessCookie(w http.ResponseWriter, value string, expires time.Time, maxAge int) {
	if h.AccessCookieName == "" {
		return
	}
	sameSite := h.CookieSameSite
	if sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.AccessCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: sameSite,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if !common.IsAppError(err) {
		h.Logger.Error().Err(err).Msg("auth request failed")
	}
	common.WriteError(w, err)
}

// bind fills dst from a JSON body, or from form fields named by the keys of fields.
func bind(r *http.Request, dst any, fields map[string]*string) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return json.NewDecoder(r.Body).Decode(dst)
	}
	if err := r.ParseForm(); err != nil {
		return err
	}
	for name, ptr := range fields {
		*ptr = r.PostForm.Get(name)
	}
	return nil
}
