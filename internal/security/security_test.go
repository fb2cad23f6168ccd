package security

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestBodyLimit(t *testing.T) {
	var captured string
	handler := BodyLimit{Max: 10}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		captured = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/cart/add/1", strings.NewReader("qty=2")))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "qty=2", captured)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/cart/add/1", strings.NewReader("qty=2&pad=xxxxxxx")))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")

	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader("short"))
	req.ContentLength = 100
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestHeadersMiddleware(t *testing.T) {
	handler := Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true, ContentSecurityPolicy: "default-src 'self'"}.Middleware(okHandler)

	req := httptest.NewRequest(http.MethodGet, "https://shop.example/products", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "max-age=31536000; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))
	require.Equal(t, "default-src 'self'", rr.Header().Get("Content-Security-Policy"))

	rr = httptest.NewRecorder()
	Headers{}.Middleware(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, rr.Header().Get("X-Content-Type-Options"))
}

func TestCORS(t *testing.T) {
	handler := CORS("https://shop.example, https://admin.example")(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/cart/", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, "https://shop.example", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	bad := httptest.NewRequest(http.MethodOptions, "/cart/", nil)
	bad.Header.Set("Origin", "https://evil.example")
	bad.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, bad)
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestSameOrigin(t *testing.T) {
	handler := SameOrigin{Trusted: []string{"checkout.example"}}.Middleware(okHandler)

	cases := []struct {
		name   string
		method string
		header map[string]string
		want   int
	}{
		{"safe method", http.MethodGet, map[string]string{"Origin": "https://evil.example"}, http.StatusOK},
		{"same host", http.MethodPost, map[string]string{"Origin": "https://shop.example"}, http.StatusOK},
		{"trusted host", http.MethodPost, map[string]string{"Origin": "https://checkout.example"}, http.StatusOK},
		{"referer fallback", http.MethodPost, map[string]string{"Referer": "https://shop.example/cart/"}, http.StatusOK},
		{"no source", http.MethodPost, nil, http.StatusOK},
		{"bearer", http.MethodPost, map[string]string{"Origin": "https://evil.example", "Authorization": "Bearer abc"}, http.StatusOK},
		{"cross site", http.MethodPost, map[string]string{"Origin": "https://evil.example"}, http.StatusForbidden},
		{"cross site referer", http.MethodPost, map[string]string{"Referer": "https://evil.example/x"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "https://shop.example/cart/add/1", nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.want, rr.Code)
		})
	}
}
