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
	KafkaGroupID  string
	RedisAddr     string
	ServiceSecret string

	// OrganizationSnapshotURL is organization-service's /internal/organizations/snapshot.
	OrganizationSnapshotURL string
	SyncInterval            time.Duration
	SyncRequestsPerSecond   int
	// SyncLeaderKey is the advisory lock key shared by every replica.
	SyncLeaderKey int
	SyncLockTTL   time.Duration

	Outbox outbox.PublisherConfig
}

func loadConfig() (Config, error) {
	cfg := Config{
		Service:      config.String("SERVICE_NAME", "property-service"),
		AutoMigrate:  config.Bool("DB_AUTO_MIGRATE", true),
		KafkaBrokers: config.String("KAFKA_BROKERS", ""),
		KafkaGroupID: config.String("KAFKA_GROUP_ID", "property-service"),
		RedisAddr:    config.String("REDIS_ADDR", ""),
	}
	var errs []error
	var err error
	cfg.Port, err = config.Port("PORT", "8082")
	errs = append(errs, err)
	cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL")
	errs = append(errs, err)
	cfg.ServiceSecret, err = config.RequiredString("SERVICE_TOKEN_SECRET")
	errs = append(errs, err)
	cfg.OrganizationSnapshotURL, err = config.RequiredString("ORGANIZATION_SNAPSHOT_URL")
	errs = append(errs, err)
	cfg.SyncInterval, err = config.Duration("ORGANIZATION_SYNC_INTERVAL", 5*time.Minute)
	errs = append(errs, err)
	cfg.SyncRequestsPerSecond, err = config.Int("ORGANIZATION_SYNC_RPS", 1)
	errs = append(errs, err)
	cfg.SyncLeaderKey, err = config.Int("ORGANIZATION_SYNC_LOCK_KEY", 4242)
	errs = append(errs, err)
	cfg.SyncLockTTL, err = config.Duration("REFSYNC_LOCK_TTL", 10*time.Second)
	errs = append(errs, err)
	cfg.Outbox, err = outbox.PublisherConfigFromEnv()
	errs = append(errs, err)
	return cfg, errors.Join(errs...)
}
