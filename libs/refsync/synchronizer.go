package refsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/propertyhub/libs/db"
)

// Result counts one sync pass. Processed items changed local state.
type Result struct {
	Processed int
	Skipped   int
	Failed    int
	Errors    []*ItemError
}

// Leader gates runs so only one replica syncs at a time.
type Leader interface {
	TryLead(ctx context.Context) (release func(), ok bool, err error)
}

// AdvisoryLeader elects through a Postgres session advisory lock.
type AdvisoryLeader struct {
	Pool *db.Pool
	Key  int64
}

func (l AdvisoryLeader) TryLead(ctx context.Context) (func(), bool, error) {
	ok, release, err := l.Pool.TryAdvisoryLock(ctx, l.Key)
	if err != nil || !ok {
		return nil, false, err
	}
	return release, true, nil
}

type Synchronizer struct {
	name      string
	source    Source
	validator *Validator
	merger    *Merger
	leader    Leader
	logger    *slog.Logger
	metrics   *Metrics
	interval  time.Duration
	trigger   chan struct{}
}

type Config struct {
	// Name labels logs and metrics, e.g. "organizations".
	Name     string
	Interval time.Duration
	Leader   Leader
	Logger   *slog.Logger
	Metrics  *Metrics
}

func NewSynchronizer(source Source, validator *Validator, merger *Merger, cfg Config) *Synchronizer {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil, cfg.Name)
	}
	if validator == nil {
		validator = MustValidator(cfg.Name, "")
	}
	return &Synchronizer{
		name:      cfg.Name,
		source:    source,
		validator: validator,
		merger:    merger,
		leader:    cfg.Leader,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		interval:  cfg.Interval,
		trigger:   make(chan struct{}, 1),
	}
}

// Sync pulls the producer's snapshot list and merges every item. Item failures are
// counted and reported without stopping the batch; only a failed fetch aborts.
func (s *Synchronizer) Sync(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() { s.metrics.Duration.Observe(time.Since(start).Seconds()) }()

	raws, err := s.source.Fetch(ctx)
	if err != nil {
		s.metrics.Runs.WithLabelValues("fetch_failed").Inc()
		return Result{}, err
	}

	var res Result
	for i, raw := range raws {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		it, err := s.validator.Parse(raw)
		if err != nil {
			s.fail(&res, &ItemError{Index: i, Err: err})
			continue
		}
		outcome, err := s.merger.Merge(ctx, it)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			s.fail(&res, &ItemError{Index: i, ID: it.ID, Err: err})
			continue
		}
		s.metrics.Items.WithLabelValues(outcome.String()).Inc()
		if outcome == Skipped {
			res.Skipped++
		} else {
			res.Processed++
		}
	}
	s.metrics.Runs.WithLabelValues("ok").Inc()
	return res, nil
}

func (s *Synchronizer) fail(res *Result, ierr *ItemError) {
	res.Failed++
	res.Errors = append(res.Errors, ierr)
	s.metrics.Items.WithLabelValues("failed").Inc()
	s.logger.Warn("reference sync item skipped", "source", s.name, "err", ierr)
}

// Trigger asks Run for an extra pass. It reports false when one is already queued.
func (s *Synchronizer) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run syncs on start, on every tick and on Trigger until ctx is done.
func (s *Synchronizer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.trigger:
			s.runOnce(ctx)
		}
	}
}

func (s *Synchronizer) runOnce(ctx context.Context) {
	if s.leader != nil {
		release, ok, err := s.leader.TryLead(ctx)
		if err != nil {
			s.logger.Error("reference sync leader election failed", "source", s.name, "err", err)
			return
		}
		if !ok {
			s.logger.Debug("reference sync skipped; another replica leads", "source", s.name)
			return
		}
		defer release()
	}

	res, err := s.Sync(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("reference sync failed", "source", s.name, "err", err)
		}
		return
	}
	s.logger.Info("reference sync completed", "source", s.name,
		"processed", res.Processed, "skipped", res.Skipped, "failed", res.Failed)
}
