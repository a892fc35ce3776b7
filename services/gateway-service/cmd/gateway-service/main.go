package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/zapagenda/libs/config"
	"github.com/md-rashed-zaman/zapagenda/libs/grpcx"
	"github.com/md-rashed-zaman/zapagenda/libs/httpx"
	otelx "github.com/md-rashed-zaman/zapagenda/libs/otel"
	"github.com/md-rashed-zaman/zapagenda/libs/runtime"
)

const businessHeader = "X-Business-Id"

type gatewaySettings struct {
	Port              string
	BookingURL        *url.URL
	BusinessURL       *url.URL
	BookingGRPCAddr   string
	BodyLimit         int64
	RequestTimeout    time.Duration
	RateLimit         int
	RateLimitFailOpen bool
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	CORS              httpx.CORSPolicy
}

func loadGatewaySettings() (gatewaySettings, error) {
	var (
		s    gatewaySettings
		errs []error
		err  error
	)
	collect := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	s.Port, err = config.Port("PORT", "8080")
	collect(err)
	s.BookingURL, err = parseUpstream("BOOKING_URL", "http://booking-service:8083")
	collect(err)
	s.BusinessURL, err = parseUpstream("BUSINESS_URL", "http://business-service:8082")
	collect(err)
	s.BookingGRPCAddr = config.String("BOOKING_GRPC_ADDR", "booking-service:9093")

	limit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	collect(err)
	s.BodyLimit = int64(limit)
	s.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	collect(err)

	s.RateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 120)
	collect(err)
	s.RateLimitFailOpen, err = config.Bool("RATE_LIMIT_FAIL_OPEN", true)
	collect(err)
	s.RedisAddr = strings.TrimSpace(config.String("REDIS_ADDR", ""))
	s.RedisPassword = config.String("REDIS_PASSWORD", "")
	s.RedisDB, err = config.Int("REDIS_DB", 0)
	collect(err)

	allowCredentials, err := config.Bool("CORS_ALLOW_CREDENTIALS", false)
	collect(err)
	maxAge, err := config.Duration("CORS_MAX_AGE", 10*time.Minute)
	collect(err)
	s.CORS = httpx.CORSPolicy{
		AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS"),
		AllowedMethods:   listOr("CORS_ALLOWED_METHODS", "GET", "POST", "PUT", "DELETE", "OPTIONS"),
		AllowedHeaders:   listOr("CORS_ALLOWED_HEADERS", "Content-Type", httpx.RequestIDHeader, "Idempotency-Key", businessHeader),
		ExposedHeaders:   []string{httpx.RequestIDHeader, "Retry-After"},
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	}

	if s.BodyLimit <= 0 {
		errs = append(errs, errors.New("REQUEST_BODY_LIMIT_BYTES must be positive"))
	}
	if s.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if s.RateLimit <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	return s, errors.Join(errs...)
}

func listOr(key string, fallback ...string) []string {
	if v := config.List(key); len(v) > 0 {
		return v
	}
	return fallback
}

func parseUpstream(key, fallback string) (*url.URL, error) {
	raw := config.String(key, fallback)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New(key + " must be an absolute url")
	}
	return u, nil
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "gateway-service")
	logger := runtime.NewLogger(service)

	cfg, err := loadGatewaySettings()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		panic(err)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	checks := []runtime.ReadyCheck{
		{Name: "booking", Check: grpcx.HealthCheck(cfg.BookingGRPCAddr, "")},
	}

	var rateLimitMW httpx.Middleware
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, cfg.RateLimitFailOpen)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimit, "redis_addr", cfg.RedisAddr)
	} else {
		rl := httpx.NewRateLimiter(cfg.RateLimit, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimit)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	registerRoutes(mux, logger, cfg.BookingURL, cfg.BusinessURL, cfg.RequestTimeout)

	handler := httpx.Chain(mux,
		httpx.WithCORS(cfg.CORS),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, "/healthz", "/readyz"),
		httpx.WithBodyLimit(cfg.BodyLimit),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	_ = runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}

func registerRoutes(mux *http.ServeMux, logger *slog.Logger, bookingURL, businessURL *url.URL, timeout time.Duration) {
	bookingProxy := newProxy(bookingURL, logger)
	businessProxy := newProxy(businessURL, logger)

	// The availability stream is long lived and must not inherit the request deadline.
	registerProxy(mux, "/api/v1/public/availability/stream", bookingProxy)
	registerProxy(mux, "/api/v1/public", withTimeout(bookingProxy, timeout))
	// Company creation happens at signup, before a business id exists.
	registerProxy(mux, "/api/v1/business/companies", withTimeout(businessProxy, timeout))
	registerProxy(mux, "/api/v1/business", requireBusiness(withTimeout(businessProxy, timeout)))
	registerProxy(mux, "/api/v1/appointments", requireBusiness(withTimeout(bookingProxy, timeout)))
	registerProxy(mux, "/api/v1/clients", requireBusiness(withTimeout(bookingProxy, timeout)))
}

func newProxy(target *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		status, code := http.StatusBadGateway, "BAD_GATEWAY"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(r.Context().Err(), context.DeadlineExceeded) {
			status, code = http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
		}
		logger.WarnContext(r.Context(), "upstream request failed",
			"upstream", target.Host,
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, status, code, "upstream unavailable", nil)
	}
	return proxy
}

func withTimeout(next http.Handler, d time.Duration) http.Handler {
	return httpx.WithTimeout(d)(next)
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

// requireBusiness rejects admin requests that arrive without the business
// identity set by the upstream identity layer.
func requireBusiness(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get(businessHeader)) == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing "+businessHeader, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
