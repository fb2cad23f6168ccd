package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/notify"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/payment"
)

var (
	// ErrPaymentProvider wraps any failure from the payment provider.
	ErrPaymentProvider = errors.New("checkout: payment provider error")
	// ErrPaymentNotConfirmed is returned by Complete when verification is enabled and
	// the provider does not report the session as paid.
	ErrPaymentNotConfirmed = errors.New("checkout: payment not confirmed")
)

// ReceiptQueue accepts receipt jobs for completed checkouts.
type ReceiptQueue interface {
	EnqueueReceipt(ctx context.Context, r notify.Receipt) error
}

// Submission is the outcome of a started checkout.
type Submission struct {
	ProviderSessionID string
	RedirectURL       string
	AmountMinor       int64
	Pruned            bool
}

// Service runs the checkout lifecycle against the session cart.
type Service struct {
	Catalog    cart.Catalog
	Provider   payment.Provider
	Receipts   ReceiptQueue
	Currency   string
	SuccessURL string
	CancelURL  string
	// VerifyPayment makes Complete ask the provider before clearing the cart.
	VerifyPayment bool
	Logger        zerolog.Logger
	Now           func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Start reconciles the cart, submits it to the provider and returns the redirect target.
// The cart itself is never modified beyond pruning stale products.
func (s *Service) Start(ctx context.Context, sess Session, userID int64) (Submission, error) {
	if s == nil || s.Catalog == nil || s.Provider == nil {
		return Submission{}, errors.New("checkout service not configured")
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Start")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	rec, err := cart.ReconcileSession(ctx, sess, s.Catalog)
	if err != nil {
		span.RecordError(err)
		return Submission{}, err
	}
	sub := Submission{Pruned: rec.Pruned}

	req, err := BuildRequest(rec.Items, s.Currency)
	if err != nil {
		obs.CountCheckout(string(StateBuilding), "rejected")
		return sub, err
	}
	req.SuccessURL = s.SuccessURL
	req.CancelURL = s.CancelURL
	if userID > 0 {
		req.ClientReference = strconv.FormatInt(userID, 10)
	}
	sub.AmountMinor = req.Amount()
	span.SetAttributes(attribute.Int64("checkout.amount_minor", sub.AmountMinor), attribute.Int("checkout.items", len(req.Items)))

	ps, err := s.Provider.CreateCheckoutSession(ctx, req)
	if err == nil && ps.URL == "" {
		err = errors.New("provider returned no redirect url")
	}
	if err != nil {
		obs.CountCheckout(string(StateSubmitted), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "create checkout session")
		s.Logger.Error().Err(err).Int64("user_id", userID).Int64("amount_minor", sub.AmountMinor).Msg("checkout_submit_failed")
		return sub, fmt.Errorf("%w: %w", ErrPaymentProvider, err)
	}

	sub.ProviderSessionID = ps.ID
	sub.RedirectURL = ps.URL
	if err := saveRecord(sess, Record{
		ProviderSessionID: ps.ID,
		State:             StateSubmitted,
		Currency:          req.Currency,
		AmountMinor:       sub.AmountMinor,
		UpdatedAt:         s.now(),
	}); err != nil {
		return sub, err
	}
	obs.CountCheckout(string(StateSubmitted), "ok")
	s.Logger.Info().Int64("user_id", userID).Str("provider_session_id", ps.ID).Int64("amount_minor", sub.AmountMinor).Msg("checkout_submitted")
	return sub, nil
}

// Complete marks the checkout succeeded and clears the cart. Arrival on the success
// path is trusted unless VerifyPayment is set. providerSessionID may be empty, in
// which case the id recorded by Start is used.
func (s *Service) Complete(ctx context.Context, sess Session, userID int64, providerSessionID string) (Record, error) {
	if s == nil {
		return Record{}, errors.New("checkout service not configured")
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Complete")
	defer span.End()

	prev, _ := loadRecord(sess)
	id := providerSessionID
	if id == "" {
		id = prev.ProviderSessionID
	}
	span.SetAttributes(attribute.String("payment.session_id", id), attribute.Bool("checkout.verify", s.VerifyPayment))

	if s.VerifyPayment {
		if id == "" || s.Provider == nil {
			obs.CountCheckout(string(StateSucceeded), "unverified")
			return prev, ErrPaymentNotConfirmed
		}
		paid, err := s.Provider.CheckoutSessionPaid(ctx, id)
		if err != nil {
			obs.CountCheckout(string(StateSucceeded), "error")
			span.RecordError(err)
			return prev, fmt.Errorf("%w: %w", ErrPaymentProvider, err)
		}
		if !paid {
			obs.CountCheckout(string(StateSucceeded), "unverified")
			return prev, ErrPaymentNotConfirmed
		}
	}

	cart.Clear(sess)
	obs.CountCartMutation("clear")

	repeat := prev.State == StateSucceeded && prev.ProviderSessionID == id
	next := Record{
		ProviderSessionID: id,
		State:             StateSucceeded,
		Currency:          prev.Currency,
		AmountMinor:       prev.AmountMinor,
		UpdatedAt:         s.now(),
	}
	if providerSessionID != "" && providerSessionID != prev.ProviderSessionID {
		next.Currency, next.AmountMinor = "", 0
	}
	if err := saveRecord(sess, next); err != nil {
		return next, err
	}
	obs.CountCheckout(string(StateSucceeded), "ok")
	s.Logger.Info().Int64("user_id", userID).Str("provider_session_id", id).Bool("repeat", repeat).Msg("checkout_succeeded")

	if !repeat && s.Receipts != nil && userID > 0 {
		receipt := notify.Receipt{
			UserID:            userID,
			ProviderSessionID: id,
			Currency:          next.Currency,
			AmountMinor:       next.AmountMinor,
			CompletedAt:       next.UpdatedAt,
		}
		if err := s.Receipts.EnqueueReceipt(ctx, receipt); err != nil {
			s.Logger.Warn().Err(err).Str("provider_session_id", id).Msg("enqueue receipt")
		}
	}
	return next, nil
}

// Cancel records that the user abandoned the provider checkout. The cart is kept.
func (s *Service) Cancel(ctx context.Context, sess Session) (Record, error) {
	if s == nil {
		return Record{}, errors.New("checkout service not configured")
	}
	_, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Cancel")
	defer span.End()

	prev, _ := loadRecord(sess)
	next := Record{
		ProviderSessionID: prev.ProviderSessionID,
		State:             StateCancelled,
		Currency:          prev.Currency,
		AmountMinor:       prev.AmountMinor,
		UpdatedAt:         s.now(),
	}
	if err := saveRecord(sess, next); err != nil {
		return prev, err
	}
	obs.CountCheckout(string(StateCancelled), "ok")
	return next, nil
}
