package payment_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/payment"
)

func newStripe(t *testing.T, h http.HandlerFunc) *payment.Stripe {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := payment.NewStripe(payment.StripeConfig{
		SecretKey:  "sk_test_123",
		APIURL:     srv.URL,
		HTTPClient: srv.Client(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return p
}

func TestStripeCreateCheckoutSession(t *testing.T) {
	var form map[string]string
	p := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.test/c/pay/cs_test_1"}`))
	})

	sess, err := p.CreateCheckoutSession(context.Background(), payment.CheckoutRequest{
		Currency: "gbp",
		Items: []payment.LineItem{
			{Name: "Amethyst Point Crystal 50-60mm", UnitAmount: 1800, Quantity: 1},
			{Name: "Rose Quartz Crystal Point", UnitAmount: 1600, Quantity: 2},
		},
		SuccessURL:      "http://localhost/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:       "http://localhost/checkout/cancel",
		ClientReference: "42",
	})
	require.NoError(t, err)
	require.Equal(t, "cs_test_1", sess.ID)
	require.Equal(t, "https://checkout.stripe.test/c/pay/cs_test_1", sess.URL)

	require.Equal(t, "payment", form["mode"])
	require.Equal(t, "42", form["client_reference_id"])
	require.Equal(t, "gbp", form["line_items[0][price_data][currency]"])
	require.Equal(t, "1800", form["line_items[0][price_data][unit_amount]"])
	require.Equal(t, "Amethyst Point Crystal 50-60mm", form["line_items[0][price_data][product_data][name]"])
	require.Equal(t, "1", form["line_items[0][quantity]"])
	require.Equal(t, "1600", form["line_items[1][price_data][unit_amount]"])
	require.Equal(t, "2", form["line_items[1][quantity]"])
	require.Equal(t, "http://localhost/checkout/cancel", form["cancel_url"])
}

func TestStripeCreateCheckoutSessionError(t *testing.T) {
	calls := 0
	p := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"parameter_invalid_integer","message":"Invalid integer"}}`))
	})

	_, err := p.CreateCheckoutSession(context.Background(), payment.CheckoutRequest{
		Currency: "gbp",
		Items:    []payment.LineItem{{Name: "x", UnitAmount: 1, Quantity: 1}},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid integer")
	require.Equal(t, 1, calls)
}

func TestStripeCheckoutSessionPaid(t *testing.T) {
	p := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/checkout/sessions/cs_paid":
			_, _ = w.Write([]byte(`{"id":"cs_paid","object":"checkout.session","payment_status":"paid"}`))
		default:
			_, _ = w.Write([]byte(`{"id":"cs_open","object":"checkout.session","payment_status":"unpaid"}`))
		}
	})

	paid, err := p.CheckoutSessionPaid(context.Background(), "cs_paid")
	require.NoError(t, err)
	require.True(t, paid)

	paid, err = p.CheckoutSessionPaid(context.Background(), "cs_open")
	require.NoError(t, err)
	require.False(t, paid)
}

func TestNewStripeRequiresKey(t *testing.T) {
	_, err := payment.NewStripe(payment.StripeConfig{})
	require.True(t, errors.Is(err, payment.ErrNotConfigured))
}

func TestSandboxProvider(t *testing.T) {
	sb := &payment.Sandbox{BaseURL: "http://pay.local/"}
	req := payment.CheckoutRequest{Currency: "gbp", Items: []payment.LineItem{{Name: "a", UnitAmount: 950, Quantity: 2}}}
	sess, err := sb.CreateCheckoutSession(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "http://pay.local/pay/"+sess.ID, sess.URL)
	require.Equal(t, int64(1900), sb.Requests()[0].Amount())

	paid, err := sb.CheckoutSessionPaid(context.Background(), sess.ID)
	require.NoError(t, err)
	require.True(t, paid)

	_, err = sb.CreateCheckoutSession(context.Background(), payment.CheckoutRequest{Currency: "gbp"})
	require.Error(t, err)
}

func TestSandboxPayRedirectsToSuccess(t *testing.T) {
	sb := &payment.Sandbox{BaseURL: "http://shop.local/sandbox"}
	sess, err := sb.CreateCheckoutSession(context.Background(), payment.CheckoutRequest{
		Currency:   "gbp",
		Items:      []payment.LineItem{{Name: "a", UnitAmount: 1800, Quantity: 1}},
		SuccessURL: "http://shop.local/checkout/success?session_id={CHECKOUT_SESSION_ID}",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sb.Pay(rec, httptest.NewRequest(http.MethodGet, "/sandbox/pay/"+sess.ID, nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "http://shop.local/checkout/success?session_id="+sess.ID, rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	sb.Pay(rec, httptest.NewRequest(http.MethodGet, "/sandbox/pay/cs_sandbox_unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
