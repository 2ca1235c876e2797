package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/propertyhub/libs/auth"
	"github.com/md-rashed-zaman/propertyhub/libs/db"
	"github.com/md-rashed-zaman/propertyhub/libs/es"
	"github.com/md-rashed-zaman/propertyhub/libs/es/pgstore"
	"github.com/md-rashed-zaman/propertyhub/libs/httpx"
	"github.com/md-rashed-zaman/propertyhub/libs/kafkax"
	otelx "github.com/md-rashed-zaman/propertyhub/libs/otel"
	"github.com/md-rashed-zaman/propertyhub/libs/outbox"
	"github.com/md-rashed-zaman/propertyhub/libs/outbox/admin"
	"github.com/md-rashed-zaman/propertyhub/libs/runtime"
	"github.com/md-rashed-zaman/propertyhub/services/organization-service/internal/handlers"
	"github.com/md-rashed-zaman/propertyhub/services/organization-service/internal/organization"
	"github.com/md-rashed-zaman/propertyhub/services/organization-service/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelCfg, err := otelx.ConfigFromEnv(cfg.Service)
	if err != nil {
		panic(err)
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if _, err := db.Migrate(ctx, pool, migrations.FS, logger); err != nil {
			logger.Error("db migration failed", "err", err)
			panic(err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store := pgstore.New(pool)
	repo := es.NewRepository(organization.Kind, store, es.RepositoryConfig{Logger: logger})
	svc := organization.NewService(repo, store)

	outboxRepo := outbox.NewRepository(pool)
	var sender outbox.Sender
	if cfg.KafkaBrokers != "" {
		producer := kafkax.NewProducer(kafkax.ProducerConfig{
			Brokers:  kafkax.SplitBrokers(cfg.KafkaBrokers),
			ClientID: cfg.Service,
		})
		defer producer.Close()
		sender = outbox.NewKafkaSender(producer)
	}
	publisher := outbox.NewPublisher(outboxRepo, sender, logger, outbox.NewMetrics(reg), cfg.Outbox)
	go publisher.Run(ctx)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkax.SplitBrokers(cfg.KafkaBrokers))})
	}

	verifier := auth.NewVerifier(cfg.ServiceSecret)
	limit := httpx.NewRateLimiter(cfg.SnapshotRateLimit, cfg.SnapshotRateWindow, auth.ServiceKey).Middleware()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		limit = httpx.NewRedisRateLimiter(rdb, cfg.SnapshotRateLimit, cfg.SnapshotRateWindow, "rl:"+cfg.Service, auth.ServiceKey).
			Middleware(logger, true)
	}
	internal := func(next http.Handler) http.Handler {
		return verifier.RequireService()(limit(next))
	}

	mux := runtime.NewBaseMux(reg, checks...)
	handlers.New(svc, logger).Register(mux, internal)
	admin.New(outboxRepo, logger).Register(mux, internal)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "organization")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, logger, srv, 10*time.Second)
}
