package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/obs"
)

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Service      *Service
	AccessCookie string
	// LoginPath receives unauthenticated visitors of protected routes.
	LoginPath string
}

// Authenticate attaches the user to the request context when a valid token is
// present. Requests without one continue anonymously.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Service == nil {
			next.ServeHTTP(w, r)
			return
		}
		token := m.extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := m.Service.ParseAccessToken(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		obs.AnnotateUser(r.Context(), claims.UserID)
		next.ServeHTTP(w, r.WithContext(common.WithUser(r.Context(), claims.UserID, claims.Username)))
	})
}

// RequireLogin redirects anonymous requests to the login path with the original
// URI in "next". No handler logic runs for them.
func (m Middleware) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.UserID(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		common.SeeOther(w, r, LoginRedirect(m.loginPath(), r.URL.RequestURI()))
	})
}

func (m Middleware) loginPath() string {
	if strings.TrimSpace(m.LoginPath) == "" {
		return "/login"
	}
	return m.LoginPath
}

// LoginRedirect builds "<loginPath>?next=<requestURI>".
func LoginRedirect(loginPath, requestURI string) string {
	return loginPath + "?" + url.Values{"next": {requestURI}}.Encode()
}

// SafeNext reports whether next is a local path safe to redirect to after login.
func SafeNext(next string) bool {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return false
	}
	u, err := url.Parse(next)
	return err == nil && u.Host == "" && u.Scheme == ""
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.AccessCookie != "" {
		if cookie, err := r.Cookie(m.AccessCookie); err == nil {
			return strings.TrimSpace(cookie.Value)
		}
	}
	return ""
}
