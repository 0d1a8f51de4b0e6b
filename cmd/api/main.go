package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/storefront-payments/internal/auth"
	"github.com/noah-isme/storefront-payments/internal/checkout"
	"github.com/noah-isme/storefront-payments/internal/config"
	"github.com/noah-isme/storefront-payments/internal/health"
	"github.com/noah-isme/storefront-payments/internal/intent"
	"github.com/noah-isme/storefront-payments/internal/obs"
	"github.com/noah-isme/storefront-payments/internal/ratelimit"
	"github.com/noah-isme/storefront-payments/internal/store"
	"github.com/noah-isme/storefront-payments/internal/stripe"
	"github.com/noah-isme/storefront-payments/internal/tasks"
	"github.com/noah-isme/storefront-payments/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "storefront")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	if envBool("OBS_ENABLE_TRACING", true) {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "storefront-payments-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	var gatewayOpts []stripe.Option
	if cfg.StripeAPIBaseURL != "" {
		gatewayOpts = append(gatewayOpts, stripe.WithBaseURL(cfg.StripeAPIBaseURL))
	}
	gateway := stripe.NewClient(cfg.SecretKey(), gatewayOpts...)

	orders := store.Orders{Pool: pool}
	sessions := store.Sessions{R: redisClient, TTL: cfg.SessionIntentTTL}
	customers := store.Customers{Pool: pool, Mode: cfg.StripeMode}

	manager := &intent.Manager{
		Gateway:   gateway,
		Handlers:  intent.DefaultHandlers(),
		Customers: intent.StoreResolver{Customers: customers, Gateway: gateway},
		Logger:    logger.With().Str("component", "intent").Logger(),
	}

	taskClient := mustInitTaskClient(cfg, logger)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	orderEvents := webhook.OrderEvents{
		Orders: orders,
		Tasks:  tasks.Enqueuer{Client: taskClient},
		Logger: logger.With().Str("component", "webhook").Logger(),
	}
	gate := &webhook.Gate{
		Live:      cfg.WebhookLive,
		Test:      cfg.WebhookTest,
		Tolerance: cfg.WebhookTolerance,
		Registry:  webhook.DefaultRegistry(orderEvents),
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
		Logger:    logger.With().Str("component", "webhook").Logger(),
	}
	webhookHandler := webhook.HTTPHandler{Gate: gate}

	checkoutHandler := &checkout.Handler{
		Manager:  manager,
		Orders:   orders,
		Sessions: sessions,
		Gateway:  gateway,
		Validate: validator.New(),
		Logger:   logger.With().Str("component", "checkout").Logger(),
	}

	authMiddleware := auth.Middleware{Secret: []byte(cfg.JWTSecret), ClockSkew: 30 * time.Second}

	checkoutLimit, err := ratelimit.NewRedisMiddleware(redisClient, cfg.CheckoutRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure rate limiter")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.SessionHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)

	probes := health.Probes{DB: pool, Redis: redisClient}
	r.Get("/healthz", probes.Live)
	r.Get("/readyz", probes.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/checkout", func(c chi.Router) {
			c.Use(authMiddleware.Authenticate)
			c.Use(checkoutLimit)
			c.Post("/payment-intent", checkoutHandler.PaymentIntentFromCart)
			c.Post("/order/payment-intent", checkoutHandler.PaymentIntentFromOrder)
			c.Post("/setup-intent", checkoutHandler.SetupIntent)
			c.Post("/sync-payment-intent", checkoutHandler.SyncPaymentIntent)
		})
		v.Post("/webhooks/stripe", webhookHandler.Post)
		v.Get("/webhooks/stripe", webhookHandler.Get)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           otelhttp.NewHandler(r, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("mode", cfg.StripeMode).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "storefront-payments-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func mustInitTaskClient(cfg *config.Config, logger zerolog.Logger) *asynq.Client {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	return asynq.NewClient(opt)
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return fallback
	}
	return parsed
}
