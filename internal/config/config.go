// Package config loads storefront settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins string
	AutoMigrate        bool

	SessionCookieName string
	SessionTTL        time.Duration
	CookieSecure      bool
	CookieSameSite    http.SameSite
	AccessTokenTTL    time.Duration
	AccessCookieName  string
	LoginPath         string

	Currency        string
	CatalogCacheTTL time.Duration

	StripeSecretKey       string
	StripeAPIURL          string
	PaymentTimeout        time.Duration
	CheckoutSuccessURL    string
	CheckoutCancelURL     string
	CheckoutVerifyPayment bool
	CircuitMinRequests    int
	CircuitFailureRatio   float64
	CircuitOpenFor        time.Duration

	RateLimitAuth     string
	MaxBodyBytes      int64
	TrustedOrigins    []string
	ReceiptsEnabled   bool
	WorkerConcurrency int

	Obs ObsConfig
}

// ObsConfig groups logging, metrics and tracing settings.
type ObsConfig struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	OTLPEndpoint     string
	TracingExporter  string
	ServiceName      string
	SamplingRatio    float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		CORSAllowedOrigins: strings.TrimSpace(k.String("CORS_ALLOWED_ORIGINS")),
		AutoMigrate:        parseBool(k.String("AUTO_MIGRATE")),

		SessionCookieName: valueOrDefault(k.String("SESSION_COOKIE_NAME"), "sessionid"),
		SessionTTL:        parseDuration(k.String("SESSION_TTL"), "336h"),
		CookieSecure:      parseBool(k.String("SESSION_COOKIE_SECURE")),
		CookieSameSite:    parseSameSite(k.String("COOKIE_SAMESITE")),
		AccessTokenTTL:    parseDuration(k.String("ACCESS_TOKEN_TTL"), "336h"),
		AccessCookieName:  valueOrDefault(k.String("ACCESS_COOKIE_NAME"), "access_token"),
		LoginPath:         valueOrDefault(k.String("LOGIN_PATH"), "/login"),

		Currency:        strings.ToLower(valueOrDefault(k.String("CURRENCY_CODE"), "gbp")),
		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),

		StripeSecretKey:       strings.TrimSpace(k.String("STRIPE_SECRET_KEY")),
		StripeAPIURL:          strings.TrimSpace(k.String("STRIPE_API_URL")),
		PaymentTimeout:        parseDuration(k.String("PAYMENT_TIMEOUT"), "10s"),
		CheckoutSuccessURL:    valueOrDefault(k.String("CHECKOUT_SUCCESS_URL"), "http://localhost:8080/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:     valueOrDefault(k.String("CHECKOUT_CANCEL_URL"), "http://localhost:8080/checkout/cancel"),
		CheckoutVerifyPayment: parseBool(k.String("CHECKOUT_VERIFY_PAYMENT")),
		CircuitMinRequests:    parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 5),
		CircuitFailureRatio:   parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:        parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		RateLimitAuth:     valueOrDefault(k.String("RATE_LIMIT_AUTH"), "10-M"),
		MaxBodyBytes:      int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),
		TrustedOrigins:    splitAndTrim(k.String("TRUSTED_ORIGINS")),
		ReceiptsEnabled:   parseBool(k.String("RECEIPTS_ENABLED")),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),

		Obs: ObsConfig{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "storefront"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS"),
			TracingEnabled:   parseBool(k.String("OBS_TRACING_ENABLED")),
			OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			ServiceName:      valueOrDefault(k.String("OBS_SERVICE_NAME"), "storefront"),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLE_RATIO"), 1),
		},
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.CircuitFailureRatio <= 0 || cfg.CircuitFailureRatio > 1 {
		return nil, fmt.Errorf("CIRCUIT_FAILURE_RATIO must be in (0,1], got %v", cfg.CircuitFailureRatio)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
