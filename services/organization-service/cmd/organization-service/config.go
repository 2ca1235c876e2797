package main

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/propertyhub/libs/config"
	"github.com/md-rashed-zaman/propertyhub/libs/outbox"
)

type Config struct {
	Service       string
	Port          string
	DatabaseURL   string
	AutoMigrate   bool
	KafkaBrokers  string
	RedisAddr     string
	ServiceSecret string
	// SnapshotRateLimit is requests per caller per SnapshotRateWindow on the snapshot endpoint.
	SnapshotRateLimit  int
	SnapshotRateWindow time.Duration
	Outbox             outbox.PublisherConfig
}

func loadConfig() (Config, error) {
	cfg := Config{
		Service:      config.String("SERVICE_NAME", "organization-service"),
		AutoMigrate:  config.Bool("DB_AUTO_MIGRATE", true),
		KafkaBrokers: config.String("KAFKA_BROKERS", ""),
		RedisAddr:    config.String("REDIS_ADDR", ""),
	}
	var errs []error
	var err error
	cfg.Port, err = config.Port("PORT", "8081")
	errs = append(errs, err)
	cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL")
	errs = append(errs, err)
	cfg.ServiceSecret, err = config.RequiredString("SERVICE_TOKEN_SECRET")
	errs = append(errs, err)
	cfg.SnapshotRateLimit, err = config.Int("SNAPSHOT_RATE_LIMIT", 60)
	errs = append(errs, err)
	cfg.SnapshotRateWindow, err = config.Duration("SNAPSHOT_RATE_WINDOW", time.Minute)
	errs = append(errs, err)
	cfg.Outbox, err = outbox.PublisherConfigFromEnv()
	errs = append(errs, err)
	return cfg, errors.Join(errs...)
}
