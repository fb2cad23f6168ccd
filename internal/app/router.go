package app

import (
	"net/http"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/auth"
	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/checkout"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/health"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/payment"
	"github.com/noah-isme/storefront/internal/ratelimit"
	"github.com/noah-isme/storefront/internal/security"
	"github.com/noah-isme/storefront/internal/session"
)

const checkoutIdempotencyTTL = 10 * time.Minute

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Redis    *redis.Client
	Products catalog.Reader
	Lookup   cart.Catalog
	Users    auth.Store
	Provider payment.Provider
	// Receipts is optional; without it completed checkouts send no receipt.
	Receipts checkout.ReceiptQueue
	Probes   []health.Probe

	Metrics  *obs.HTTPMetrics
	Gatherer prometheus.Gatherer
	Tracing  bool
	// HashParams overrides the argon2id cost, used by tests.
	HashParams *argon2id.Params
}

// Server is the assembled HTTP surface.
type Server struct {
	Handler  http.Handler
	Health   *health.Handler
	Sessions *session.Manager
}

// NewServer builds the router and every handler behind it.
func NewServer(d Dependencies) (*Server, error) {
	cfg := d.Config
	logger := d.Logger

	sessions := &session.Manager{
		Client:     d.Redis,
		TTL:        cfg.SessionTTL,
		CookieName: cfg.SessionCookieName,
		Secure:     cfg.CookieSecure,
		SameSite:   cfg.CookieSameSite,
		Logger:     logger,
	}

	authSvc, err := auth.NewService(auth.Config{
		Store:          d.Users,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
		HashParams:     d.HashParams,
	})
	if err != nil {
		return nil, err
	}
	authMW := auth.Middleware{Service: authSvc, AccessCookie: cfg.AccessCookieName, LoginPath: cfg.LoginPath}
	authHandler := &auth.Handler{
		Service:          authSvc,
		Sessions:         sessions,
		CartCount:        cart.BadgeCount,
		AccessCookieName: cfg.AccessCookieName,
		CookieSecure:     cfg.CookieSecure,
		CookieSameSite:   cfg.CookieSameSite,
		Logger:           logger,
	}

	authLimiter, err := ratelimit.New(cfg.RateLimitAuth, d.Redis, "ratelimit:auth")
	if err != nil {
		return nil, err
	}
	limitAuth := func(scope string) func(http.Handler) http.Handler {
		return ratelimit.Handler{
			Limiter: authLimiter,
			Key:     ratelimit.ClientKey(scope),
			OnError: func(err error) { logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable") },
		}.Middleware
	}

	catalogHandler := &catalog.Handler{Products: d.Products, CartCount: cart.BadgeCount}
	cartHandler := cart.NewHandler(d.Lookup, sessions, logger)

	checkoutSvc := &checkout.Service{
		Catalog:       d.Lookup,
		Provider:      d.Provider,
		Receipts:      d.Receipts,
		Currency:      cfg.Currency,
		SuccessURL:    cfg.CheckoutSuccessURL,
		CancelURL:     cfg.CheckoutCancelURL,
		VerifyPayment: cfg.CheckoutVerifyPayment,
		Logger:        logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Sessions: sessions, Logger: logger}
	idem := common.Idem{
		R:   d.Redis,
		TTL: checkoutIdempotencyTTL,
		Scope: func(r *http.Request) string {
			return session.FromContext(r.Context()).ID()
		},
	}

	healthHandler := health.NewHandler(d.Probes...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction(), HSTSIncludeSubdomains: true}.Middleware)
	if cfg.CORSAllowedOrigins != "" {
		r.Use(security.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}
	if sb, ok := d.Provider.(*payment.Sandbox); ok {
		r.Get("/sandbox/pay/{sessionID}", sb.Pay)
	}

	r.Group(func(web chi.Router) {
		web.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
		web.Use(security.SameOrigin{Trusted: cfg.TrustedOrigins}.Middleware)
		web.Use(sessions.Middleware)
		web.Use(authMW.Authenticate)

		web.Get("/", catalogHandler.List)
		web.Get("/products/{productID}", catalogHandler.Detail)
		web.Route("/api/v1/products", func(p chi.Router) {
			p.Get("/", catalogHandler.List)
			p.Get("/{productID}", catalogHandler.Detail)
		})
		web.Get("/cart", cartHandler.View)

		web.With(limitAuth("signup")).Post("/signup", authHandler.Signup)
		web.With(limitAuth("login")).Post("/login", authHandler.Login)
		web.Post("/logout", authHandler.Logout)

		web.Group(func(member chi.Router) {
			member.Use(authMW.RequireLogin)
			member.Post("/cart/add/{productID}", cartHandler.Add)
			member.Post("/cart/update/{productID}", cartHandler.Update)
			member.Post("/cart/clear", cartHandler.Clear)
			member.With(idem.Middleware).Post("/checkout", checkoutHandler.Start)
			member.Get("/checkout/success", checkoutHandler.Success)
			member.Get("/checkout/cancel", checkoutHandler.Cancel)
			member.Get("/account", authHandler.Account)
		})
	})

	return &Server{Handler: r, Health: healthHandler, Sessions: sessions}, nil
}
