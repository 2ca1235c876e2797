package outbox

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/propertyhub/libs/config"
)

// PublisherConfigFromEnv reads the OUTBOX_* variables. Unset values fall back to the
// publisher defaults.
func PublisherConfigFromEnv() (PublisherConfig, error) {
	var cfg PublisherConfig
	var errs []error
	duration := func(key string, dst *time.Duration) {
		v, err := config.Duration(key, 0)
		errs = append(errs, err)
		*dst = v
	}
	integer := func(key string, fallback int, dst *int) {
		v, err := config.Int(key, fallback)
		errs = append(errs, err)
		*dst = v
	}
	duration("OUTBOX_POLL_INTERVAL", &cfg.PollEvery)
	duration("OUTBOX_LEASE", &cfg.Lease)
	duration("OUTBOX_SEND_TIMEOUT", &cfg.SendTimeout)
	duration("OUTBOX_BASE_BACKOFF", &cfg.BaseBackoff)
	duration("OUTBOX_MAX_BACKOFF", &cfg.MaxBackoff)
	integer("OUTBOX_BATCH_SIZE", 0, &cfg.BatchSize)
	integer("OUTBOX_MAX_RETRIES", 10, &cfg.MaxRetries)
	return cfg, errors.Join(errs...)
}
