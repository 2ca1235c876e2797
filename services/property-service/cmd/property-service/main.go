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
	"github.com/md-rashed-zaman/propertyhub/libs/refsync"
	"github.com/md-rashed-zaman/propertyhub/libs/runtime"
	"github.com/md-rashed-zaman/propertyhub/services/property-service/internal/consumer"
	"github.com/md-rashed-zaman/propertyhub/services/property-service/internal/handlers"
	"github.com/md-rashed-zaman/propertyhub/services/property-service/internal/inbox"
	"github.com/md-rashed-zaman/propertyhub/services/property-service/internal/property"
	"github.com/md-rashed-zaman/propertyhub/services/property-service/internal/refs"
	"github.com/md-rashed-zaman/propertyhub/services/property-service/migrations"
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

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var locker refsync.Locker = refsync.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		locker = refsync.NewRedisLocker(rdb, "refsync:"+cfg.Service, cfg.SyncLockTTL)
	}

	orgRefs := refs.NewRepository(pool.SQL())
	merger := refsync.NewMerger(orgRefs, locker)
	validator, err := refs.NewOrganizationValidator()
	if err != nil {
		panic(err)
	}

	signer := auth.NewSigner(cfg.ServiceSecret, cfg.Service, 5*time.Minute)
	syncer := refsync.NewSynchronizer(
		refsync.NewHTTPSource(refsync.HTTPSourceConfig{
			URL:               cfg.OrganizationSnapshotURL,
			Token:             signer.Token,
			RequestsPerSecond: float64(cfg.SyncRequestsPerSecond),
		}),
		validator,
		merger,
		refsync.Config{
			Name:     "organizations",
			Interval: cfg.SyncInterval,
			Leader:   refsync.AdvisoryLeader{Pool: pool, Key: int64(cfg.SyncLeaderKey)},
			Logger:   logger,
			Metrics:  refsync.NewMetrics(reg, "organizations"),
		},
	)
	go syncer.Run(ctx)

	store := pgstore.New(pool)
	repo := es.NewRepository(property.Kind, store, es.RepositoryConfig{Logger: logger})
	svc := property.NewService(repo, store, orgRefs)

	outboxRepo := outbox.NewRepository(pool)
	var sender outbox.Sender
	if cfg.KafkaBrokers != "" {
		producer := kafkax.NewProducer(kafkax.ProducerConfig{
			Brokers:  kafkax.SplitBrokers(cfg.KafkaBrokers),
			ClientID: cfg.Service,
		})
		defer producer.Close()
		sender = outbox.NewKafkaSender(producer)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkax.SplitBrokers(cfg.KafkaBrokers))})

		gate, err := kafkax.NewVersionGate("^1")
		if err != nil {
			panic(err)
		}
		orgEvents := consumer.NewOrganizationHandler(gate, validator, merger, logger)
		eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topics:  consumer.OrganizationTopics(),
		}, orgEvents.Handle)
		go eventConsumer.Run(ctx)
	}
	publisher := outbox.NewPublisher(outboxRepo, sender, logger, outbox.NewMetrics(reg), cfg.Outbox)
	go publisher.Run(ctx)

	verifier := auth.NewVerifier(cfg.ServiceSecret)
	internal := verifier.RequireService()

	mux := runtime.NewBaseMux(reg, checks...)
	handlers.New(svc, orgRefs, syncer, logger).Register(mux, internal)
	admin.New(outboxRepo, logger).Register(mux, internal)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "property")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, logger, srv, 10*time.Second)
}
