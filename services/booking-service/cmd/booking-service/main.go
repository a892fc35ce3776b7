package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/md-rashed-zaman/zapagenda/libs/config"
	"github.com/md-rashed-zaman/zapagenda/libs/db"
	"github.com/md-rashed-zaman/zapagenda/libs/grpcx"
	"github.com/md-rashed-zaman/zapagenda/libs/httpx"
	"github.com/md-rashed-zaman/zapagenda/libs/kafkax"
	otelx "github.com/md-rashed-zaman/zapagenda/libs/otel"
	"github.com/md-rashed-zaman/zapagenda/libs/runtime"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/clients"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/limits"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/storage"
)

// store is everything the booking core needs from persistence. Both
// storage.Repository and storage.Memory implement it.
type store interface {
	booking.Store
	availability.Store
	limits.Store
	clients.Store
	clients.DedupStore
	handlers.AppointmentLister
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service)

	cfg, err := loadSettings()
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		st     store
		pool   *db.Pool
		checks []runtime.ReadyCheck
	)
	switch cfg.StorageDriver {
	case driverMemory:
		logger.Warn("using in-memory storage; data is lost on restart", "demo_slug", demoSlug)
		st = seedDemo()
	default:
		poolSettings, err := db.PoolSettingsFromEnv(service)
		if err != nil {
			panic(err)
		}
		pool, err = db.Open(ctx, cfg.DatabaseURL, poolSettings)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		st = storage.NewRepository(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	}

	var cache availability.Cache = availability.NewMemoryCache(cfg.SlotCacheTTL, nil)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		redisCache := availability.NewRedisCache(rdb, cfg.SlotCacheTTL)
		cache = redisCache
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisCache.Ping})
		logger.Info("slot cache enabled (redis)", "ttl", cfg.SlotCacheTTL, "redis_addr", cfg.RedisAddr)
	}

	broker := availability.NewBroker()
	resolver := schedule.NewResolver(st, logger, time.Now, cfg.DefaultTimezone)
	slots := availability.NewService(st, resolver, cache, broker, logger, m, time.Now, availability.Config{
		LeadTime:        cfg.LeadTime,
		DefaultTimezone: cfg.DefaultTimezone,
	})
	bookingSvc := booking.NewService(booking.Deps{
		Store:        st,
		Availability: slots,
		Resolver:     resolver,
		Guard:        limits.NewGuard(st, logger, time.Now, cfg.DefaultTimezone),
		Checker:      availability.NewChecker(st, logger),
		Upserter:     clients.NewUpserter(st, logger, m, cfg.UpsertAttempts, cfg.UpsertBackoff),
		Logger:       logger,
		Metrics:      m,
	})
	dedup := clients.NewDeduplicator(st, logger, m)

	if pool != nil && cfg.KafkaBrokers != "" {
		publisher := outbox.NewPublisher(pool, outbox.NewRepository(pool), logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: cfg.OutboxPollInterval,
			BatchSize: 50,
		})
		go publisher.Run(ctx)

		invalidations := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: instanceGroup(cfg.KafkaGroupID),
			Topics:  outbox.AvailabilityTopics,
		}, consumer.InvalidationHandler(slots, logger))
		go invalidations.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	} else if cfg.KafkaBrokers != "" {
		logger.Warn("kafka configured without postgres storage; cross-instance invalidation disabled")
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	handlers.NewBookingHandler(bookingSvc, slots, st, dedup, broker, logger).Register(mux)

	middleware := []httpx.Middleware{
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader, handlers.IdempotencyHeader, handlers.BusinessHeader},
			MaxAge:         10 * time.Minute,
		}),
	}
	middleware = append(middleware, httpx.WithRequestID, httpx.WithAccessLog(logger, "/healthz", "/readyz", "/metrics"))
	if cfg.RateLimitPerMinute > 0 {
		middleware = append(middleware, httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware())
	}
	httpHandler := otelhttp.NewHandler(httpx.Chain(mux, middleware...), "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(grpc.ChainUnaryInterceptor(grpcx.UnaryServerLoggingInterceptor(logger)))
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		<-ctx.Done()
		health.Shutdown()
	}()

	if err := runtime.ServeHTTP(ctx, logger, srv, 10*time.Second); err != nil {
		stop()
	}
	grpcSrv.GracefulStop()
	logger.Info("grpc server stopped")
}
