package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Publisher drains the outbox to a Sender. Entries of one destination are sent one at a
// time in insertion order; destinations drain in parallel.
type Publisher struct {
	store   Store
	sender  Sender
	logger  *slog.Logger
	metrics *Metrics
	cfg     PublisherConfig
}

type PublisherConfig struct {
	PollEvery   time.Duration
	BatchSize   int
	Lease       time.Duration
	SendTimeout time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// MaxRetries bounds retries. RetryCount counts failed attempts; a failure of an attempt
	// made with RetryCount already above MaxRetries dead-letters the entry. With
	// MaxRetries=3 the fifth consecutive failure dead-letters. The wait before the next
	// attempt is BaseBackoff * 2^RetryCount, counted after the failure, capped at MaxBackoff.
	MaxRetries int
	Clock      func() time.Time
}

// Stats summarises one drain pass.
type Stats struct {
	Claimed    int
	Dispatched int
	Failed     int
	Dead       int
	Reclaimed  int64
	// Released entries went back to pending because an earlier entry of their stream
	// failed in the same pass.
	Released int
	// LeaseLost counts updates rejected because another worker took the entry over.
	LeaseLost int
}

func NewPublisher(store Store, sender Sender, logger *slog.Logger, metrics *Metrics, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	// A lane may send a whole batch one entry at a time under a single lease.
	if floor := time.Duration(cfg.BatchSize+1) * cfg.SendTimeout; cfg.Lease < floor {
		cfg.Lease = floor
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Publisher{store: store, sender: sender, logger: logger, metrics: metrics, cfg: cfg}
}

func (p *Publisher) Run(ctx context.Context) {
	if p.sender == nil {
		p.logger.Warn("outbox publisher disabled (no sender configured)")
		return
	}

	ticker := time.NewTicker(p.cfg.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain repeats passes while full batches come back so a backlog clears without
// waiting a tick per entry.
func (p *Publisher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		stats, err := p.DrainOnce(ctx)
		if err != nil {
			p.logger.Error("outbox drain failed", "err", err)
			return
		}
		if stats.Claimed == 0 || stats.Failed > 0 {
			return
		}
	}
}

// DrainOnce reclaims expired leases, claims one batch and delivers it.
func (p *Publisher) DrainOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	now := p.cfg.Clock().UTC()

	reclaimed, err := p.store.ReclaimExpired(ctx, now)
	if err != nil {
		return stats, err
	}
	if reclaimed > 0 {
		p.metrics.ReclaimedTotal.Add(float64(reclaimed))
		p.logger.Warn("reclaimed outbox entries with expired lease", "count", reclaimed)
	}
	stats.Reclaimed = reclaimed

	entries, err := p.store.Claim(ctx, now, p.cfg.BatchSize, p.cfg.Lease)
	if err != nil {
		return stats, err
	}
	stats.Claimed = len(entries)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, lane := range byDestination(entries) {
		lane := lane
		g.Go(func() error {
			ls, err := p.sendLane(gctx, lane)
			mu.Lock()
			stats.Dispatched += ls.Dispatched
			stats.Failed += ls.Failed
			stats.Dead += ls.Dead
			stats.Released += ls.Released
			stats.LeaseLost += ls.LeaseLost
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	p.observeLag(ctx)
	return stats, nil
}

// sendLane delivers one destination's entries in insertion order. Once an entry of a
// stream fails or its lease is lost, the stream's later entries are released unsent so
// they cannot overtake it.
func (p *Publisher) sendLane(ctx context.Context, lane []Entry) (Stats, error) {
	var stats Stats
	blocked := map[string]bool{}
	for _, e := range lane {
		if blocked[e.StreamID] {
			err := p.store.Release(ctx, e.ID, leaseOf(e))
			switch {
			case errors.Is(err, ErrLeaseLost):
				stats.LeaseLost++
			case err != nil:
				return stats, err
			default:
				stats.Released++
			}
			continue
		}

		outcome, err := p.deliver(ctx, e)
		if errors.Is(err, ErrLeaseLost) {
			stats.LeaseLost++
			blocked[e.StreamID] = true
			p.logger.Warn("outbox lease lost before the outcome was recorded", "entry_id", e.ID, "event_id", e.EventID, "destination", e.Destination)
			continue
		}
		if err != nil {
			return stats, err
		}
		switch outcome {
		case StatusDispatched:
			stats.Dispatched++
		case StatusDead:
			stats.Failed++
			stats.Dead++
		default:
			stats.Failed++
			blocked[e.StreamID] = true
		}
	}
	return stats, nil
}

// deliver sends one entry and records the outcome. Only store errors are returned;
// broker failures become retries or dead letters.
func (p *Publisher) deliver(ctx context.Context, e Entry) (Status, error) {
	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	sendErr := p.sender.Send(sendCtx, e)
	cancel()

	now := p.cfg.Clock().UTC()
	if sendErr == nil {
		if err := p.store.MarkDispatched(ctx, e.ID, leaseOf(e), now); err != nil {
			return "", err
		}
		p.metrics.DispatchedTotal.WithLabelValues(e.Destination).Inc()
		return StatusDispatched, nil
	}
	if ctx.Err() != nil && errors.Is(sendErr, ctx.Err()) {
		// Shutting down: leave the lease to expire instead of burning a retry.
		return "", ctx.Err()
	}

	derr := &DeliveryError{EntryID: e.ID, Destination: e.Destination, Attempt: e.RetryCount + 1, Err: sendErr}
	f := Failure{
		ID:            e.ID,
		Lease:         leaseOf(e),
		RetryCount:    e.RetryCount + 1,
		LastError:     sendErr.Error(),
		NextAttemptAt: now.Add(Backoff(p.cfg.BaseBackoff, p.cfg.MaxBackoff, e.RetryCount+1)),
		Dead:          e.RetryCount > p.cfg.MaxRetries,
		At:            now,
	}
	if err := p.store.MarkFailed(ctx, f); err != nil {
		return "", err
	}
	p.metrics.FailedTotal.WithLabelValues(e.Destination).Inc()
	if f.Dead {
		p.metrics.DeadTotal.WithLabelValues(e.Destination).Inc()
		p.logger.Error("outbox entry dead-lettered", "err", derr, "entry_id", e.ID, "event_id", e.EventID, "destination", e.Destination)
		return StatusDead, nil
	}
	p.logger.Warn("outbox delivery failed", "err", derr, "entry_id", e.ID, "retry_count", f.RetryCount, "next_attempt_at", f.NextAttemptAt)
	return StatusPending, nil
}

func (p *Publisher) observeLag(ctx context.Context) {
	oldest, ok, err := p.store.OldestPending(ctx)
	if err != nil {
		p.logger.Warn("outbox lag query failed", "err", err)
		return
	}
	if !ok {
		p.metrics.LagSeconds.Set(0)
		return
	}
	p.metrics.LagSeconds.Set(p.cfg.Clock().Sub(oldest).Seconds())
}

func byDestination(entries []Entry) [][]Entry {
	index := map[string]int{}
	var lanes [][]Entry
	for _, e := range entries {
		i, ok := index[e.Destination]
		if !ok {
			i = len(lanes)
			index[e.Destination] = i
			lanes = append(lanes, nil)
		}
		lanes[i] = append(lanes[i], e)
	}
	return lanes
}
