package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/auth"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/payment"
)

type shelf map[int64]catalog.Product

func (s shelf) FindByIDs(_ context.Context, ids []int64) (map[int64]catalog.Product, error) {
	out := map[int64]catalog.Product{}
	for _, id := range ids {
		if p, ok := s[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s shelf) List(context.Context, string) ([]catalog.Product, error) {
	return []catalog.Product{s[1], s[2]}, nil
}

func (s shelf) Get(_ context.Context, id int64) (catalog.Product, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return catalog.Product{}, catalog.ErrNotFound
}

type userStore struct {
	mu     sync.Mutex
	users  map[string]auth.User
	hashes map[string]string
}

func (u *userStore) CreateUser(_ context.Context, username, email, hash string) (auth.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.users[username]; ok {
		return auth.User{}, auth.ErrUsernameTaken
	}
	user := auth.User{ID: int64(len(u.users) + 1), Username: username, Email: email, CreatedAt: time.Now()}
	u.users[username] = user
	u.hashes[username] = hash
	return user, nil
}

func (u *userStore) UserByUsername(_ context.Context, username string) (auth.User, string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[username]
	if !ok {
		return auth.User{}, "", auth.ErrUserNotFound
	}
	return user, u.hashes[username], nil
}

func (u *userStore) UserByID(_ context.Context, id int64) (auth.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.ID == id {
			return user, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:          "test-secret",
		SessionCookieName:  "sessionid",
		SessionTTL:         time.Hour,
		CookieSameSite:     http.SameSiteLaxMode,
		AccessTokenTTL:     time.Hour,
		AccessCookieName:   "access_token",
		LoginPath:          "/login",
		Currency:           "gbp",
		RateLimitAuth:      "100-M",
		MaxBodyBytes:       1 << 20,
		CheckoutSuccessURL: "http://shop.test/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CheckoutCancelURL:  "http://shop.test/checkout/cancel",
	}
}

type harness struct {
	srv      *httptest.Server
	client   *http.Client
	provider *payment.Sandbox
	registry *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	products := shelf{
		1: {ID: 1, Name: "Amethyst Point Crystal 50-60mm", Price: decimal.RequireFromString("18.00")},
		2: {ID: 2, Name: "Rose Quartz Crystal Point", Price: decimal.RequireFromString("16.00")},
	}
	reg := prometheus.NewRegistry()
	provider := &payment.Sandbox{BaseURL: "http://pay.test"}
	server, err := NewServer(Dependencies{
		Config:     testConfig(),
		Redis:      rdb,
		Products:   products,
		Lookup:     products,
		Users:      &userStore{users: map[string]auth.User{}, hashes: map[string]string{}},
		Provider:   provider,
		Metrics:    obs.NewHTTPMetrics("storefront", nil, reg),
		Gatherer:   reg,
		HashParams: &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler)
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &harness{srv: srv, client: client, provider: provider, registry: reg}
}

func (h *harness) do(t *testing.T, method, path string, form url.Values) *http.Response {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, h.srv.URL+path, body)
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeData(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env.Data
}

func TestAnonymousMutationRedirectsToLogin(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/cart/add/1", url.Values{})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/login?next=%2Fcart%2Fadd%2F1", resp.Header.Get("Location"))

	view := h.do(t, http.MethodGet, "/cart", nil)
	require.Equal(t, http.StatusOK, view.StatusCode)
	require.EqualValues(t, 0, decodeData(t, view)["cart_count"])
}

func TestShoppingFlow(t *testing.T) {
	h := newHarness(t)

	signup := h.do(t, http.MethodPost, "/signup", url.Values{
		"username": {"ada"}, "password": {"correct-horse"}, "password_confirm": {"correct-horse"},
	})
	require.Equal(t, http.StatusCreated, signup.StatusCode)

	require.Less(t, h.do(t, http.MethodPost, "/cart/add/1", url.Values{}).StatusCode, 300)
	require.Less(t, h.do(t, http.MethodPost, "/cart/add/2", url.Values{"qty": {"2"}}).StatusCode, 300)
	require.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/cart/add/99", url.Values{}).StatusCode)

	view := decodeData(t, h.do(t, http.MethodGet, "/cart", nil))
	require.Equal(t, "50.00", view["total"])
	require.EqualValues(t, 3, view["cart_count"])

	start := h.do(t, http.MethodPost, "/checkout", url.Values{})
	require.Equal(t, http.StatusSeeOther, start.StatusCode)
	payURL, err := url.Parse(start.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "pay.test", payURL.Host)

	reqs := h.provider.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, int64(1800), reqs[0].Items[0].UnitAmount)
	require.Equal(t, int64(1600), reqs[0].Items[1].UnitAmount)
	require.Equal(t, int64(5000), reqs[0].Amount())

	pay := h.do(t, http.MethodGet, "/sandbox"+payURL.Path, nil)
	require.Equal(t, http.StatusSeeOther, pay.StatusCode)
	success, err := url.Parse(pay.Header.Get("Location"))
	require.NoError(t, err)

	done := h.do(t, http.MethodGet, success.RequestURI(), nil)
	require.Equal(t, http.StatusOK, done.StatusCode)
	require.EqualValues(t, 0, decodeData(t, done)["cart_count"])

	after := decodeData(t, h.do(t, http.MethodGet, "/cart", nil))
	require.EqualValues(t, 0, after["cart_count"])
	require.Equal(t, "0.00", after["total"])

	empty := h.do(t, http.MethodPost, "/checkout", url.Values{})
	require.Equal(t, http.StatusSeeOther, empty.StatusCode)
	require.Equal(t, "/cart", empty.Header.Get("Location"))
	require.Len(t, h.provider.Requests(), 1)
}

func TestCheckoutIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/signup", url.Values{
		"username": {"grace"}, "password": {"correct-horse"}, "password_confirm": {"correct-horse"},
	})
	h.do(t, http.MethodPost, "/cart/add/1", url.Values{})

	send := func() *http.Response {
		req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/checkout", nil)
		require.NoError(t, err)
		req.Header.Set("Idempotency-Key", "k-1")
		resp, err := h.client.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}
	require.Equal(t, http.StatusSeeOther, send().StatusCode)
	require.Equal(t, http.StatusConflict, send().StatusCode)
	require.Len(t, h.provider.Requests(), 1)
}

func TestCrossSiteFormRejected(t *testing.T) {
	h := newHarness(t)
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/cart/clear", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOpsEndpoints(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health/live", nil).StatusCode)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health/ready", nil).StatusCode)
	h.do(t, http.MethodGet, "/", nil)

	metrics := h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, metrics.StatusCode)
	body, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "storefront_http_requests_total")
}
