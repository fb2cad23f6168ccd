package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/storefront/internal/obs"
)

// StripeConfig configures the Stripe provider.
type StripeConfig struct {
	SecretKey string
	// APIURL overrides the Stripe API base, e.g. for stripe-mock or tests.
	APIURL     string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Stripe implements Provider with Stripe Checkout Sessions in payment mode.
type Stripe struct {
	api *client.API
}

// NewStripe builds a Stripe provider. The backend never retries: a retried
// session create would open a second checkout.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, ErrNotConfigured
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     stripeLogger{cfg.Logger},
		EnableTelemetry:   stripe.Bool(false),
	}
	if u := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"); u != "" {
		backendCfg.URL = stripe.String(u)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Stripe{api: api}, nil
}

// CreateCheckoutSession opens a hosted checkout with inline price data.
func (s *Stripe) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if s == nil || s.api == nil {
		return CheckoutSession{}, ErrNotConfigured
	}
	ctx, span := otel.Tracer("payment.Stripe").Start(ctx, "Stripe.CreateCheckoutSession")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.currency", req.Currency),
		attribute.Int("payment.items", len(req.Items)),
		attribute.Int64("payment.amount", req.Amount()),
	)

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if req.ClientReference != "" {
		params.ClientReferenceID = stripe.String(req.ClientReference)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for _, it := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(it.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(it.Name),
				},
			},
			Quantity: stripe.Int64(it.Quantity),
		})
	}

	start := time.Now()
	sess, err := s.api.CheckoutSessions.New(params)
	observe("create", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create checkout session")
		return CheckoutSession{}, fmt.Errorf("stripe create checkout session: %w", describe(err))
	}
	span.SetAttributes(attribute.String("payment.session_id", sess.ID))
	return CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CheckoutSessionPaid reports whether the checkout's payment has been collected.
func (s *Stripe) CheckoutSessionPaid(ctx context.Context, sessionID string) (bool, error) {
	if s == nil || s.api == nil {
		return false, ErrNotConfigured
	}
	ctx, span := otel.Tracer("payment.Stripe").Start(ctx, "Stripe.CheckoutSessionPaid")
	defer span.End()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	start := time.Now()
	sess, err := s.api.CheckoutSessions.Get(sessionID, params)
	observe("retrieve", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve checkout session")
		return false, fmt.Errorf("stripe retrieve checkout session: %w", describe(err))
	}
	return sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired, nil
}

func observe(op string, start time.Time, err error) {
	if obs.PaymentProviderLatency == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	obs.PaymentProviderLatency.WithLabelValues(op, result).Observe(obs.DurationMillis(time.Since(start)))
}

// describe keeps the Stripe error code and message while preserving the chain.
func describe(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		return fmt.Errorf("%s (status %d, code %q): %w", serr.Msg, serr.HTTPStatusCode, serr.Code, err)
	}
	return err
}

type stripeLogger struct{ l zerolog.Logger }

func (s stripeLogger) Debugf(format string, v ...interface{}) { s.l.Debug().Msgf(format, v...) }
func (s stripeLogger) Infof(format string, v ...interface{})  { s.l.Debug().Msgf(format, v...) }
func (s stripeLogger) Warnf(format string, v ...interface{})  { s.l.Warn().Msgf(format, v...) }
func (s stripeLogger) Errorf(format string, v ...interface{}) { s.l.Error().Msgf(format, v...) }
