package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// WebhookEndpoint holds the per-mode webhook credentials: the signing secret
// used for signature verification and the optional configured webhook
// identity that disambiguates multiple endpoints on one Stripe account.
type WebhookEndpoint struct {
	SigningSecret string
	WebhookID     string
}

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins []string

	StripeMode          string
	StripeAPIBaseURL    string
	StripeSecretKeyLive string
	StripeSecretKeyTest string
	WebhookLive         WebhookEndpoint
	WebhookTest         WebhookEndpoint
	WebhookTolerance    time.Duration
	WebhookReplayTTL    time.Duration

	SessionIntentTTL  time.Duration
	CheckoutRateLimit string
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
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		StripeMode:          normaliseMode(k.String("STRIPE_MODE")),
		StripeAPIBaseURL:    strings.TrimSpace(k.String("STRIPE_API_BASE_URL")),
		StripeSecretKeyLive: k.String("STRIPE_SECRET_KEY_LIVE"),
		StripeSecretKeyTest: k.String("STRIPE_SECRET_KEY_TEST"),
		WebhookLive: WebhookEndpoint{
			SigningSecret: k.String("STRIPE_WEBHOOK_SECRET_LIVE"),
			WebhookID:     strings.TrimSpace(k.String("STRIPE_WEBHOOK_ID_LIVE")),
		},
		WebhookTest: WebhookEndpoint{
			SigningSecret: k.String("STRIPE_WEBHOOK_SECRET_TEST"),
			WebhookID:     strings.TrimSpace(k.String("STRIPE_WEBHOOK_ID_TEST")),
		},
		WebhookTolerance: parseDuration(k.String("STRIPE_WEBHOOK_TOLERANCE"), "600s"),
		WebhookReplayTTL: parseDuration(k.String("STRIPE_WEBHOOK_REPLAY_TTL"), "24h"),

		SessionIntentTTL:  parseDuration(k.String("SESSION_INTENT_TTL"), "24h"),
		CheckoutRateLimit: valueOrDefault(k.String("CHECKOUT_RATE_LIMIT"), "60-M"),
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
	if cfg.SecretKey() == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY_%s is required for mode %q", strings.ToUpper(cfg.StripeMode), cfg.StripeMode)
	}

	return cfg, nil
}

// SecretKey returns the Stripe API key for the configured mode.
func (c *Config) SecretKey() string {
	if c.StripeMode == "live" {
		return c.StripeSecretKeyLive
	}
	return c.StripeSecretKeyTest
}

// WebhookEndpointFor returns the webhook credentials matching the payload mode.
func (c *Config) WebhookEndpointFor(live bool) WebhookEndpoint {
	if live {
		return c.WebhookLive
	}
	return c.WebhookTest
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

func normaliseMode(value string) string {
	if strings.ToLower(strings.TrimSpace(value)) == "live" {
		return "live"
	}
	return "test"
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
		return value
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

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
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
