package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestMiddlewareEnforcesLimit(t *testing.T) {
	lim, err := New("2-M", nil, "test")
	require.NoError(t, err)
	h := Handler{Limiter: lim, Key: ClientKey("login")}.Middleware(okHandler())

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, send("10.0.0.1").Code)
	second := send("10.0.0.1")
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "2", second.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))

	third := send("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, third.Code)
	require.NotEmpty(t, third.Header().Get("Retry-After"))
	require.Contains(t, third.Body.String(), "RATE_LIMITED")

	require.Equal(t, http.StatusOK, send("10.0.0.2").Code, "other clients are unaffected")
}

func TestNewRejectsBadRate(t *testing.T) {
	_, err := New("ten-per-minute", nil, "")
	require.Error(t, err)
}

func TestMiddlewareWithoutLimiterPassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler{}.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/signup", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
