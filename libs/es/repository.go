package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/propertyhub/libs/outbox"
)

// AnyVersion lets Handle load the latest version and retry on conflicts itself.
const AnyVersion int64 = -1

// Result is what a successful command leaves behind.
type Result[S any] struct {
	Aggregate Aggregate[S]
	Events    []Event
}

type Repository[S any] struct {
	kind        Kind[S]
	store       Store
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
}

type RepositoryConfig struct {
	Logger *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
	// MaxAttempts bounds conflict retries for AnyVersion commands. Defaults to 3.
	MaxAttempts int
}

func NewRepository[S any](kind Kind[S], store Store, cfg RepositoryConfig) *Repository[S] {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Repository[S]{
		kind:        kind,
		store:       store,
		logger:      cfg.Logger,
		now:         cfg.Clock,
		maxAttempts: cfg.MaxAttempts,
	}
}

func (r *Repository[S]) Kind() Kind[S] { return r.kind }

// Load folds a stream. Streams without events, or owned by another tenant, are not found.
func (r *Repository[S]) Load(ctx context.Context, tenantID, streamID string) (Aggregate[S], error) {
	agg, err := r.load(ctx, tenantID, streamID)
	if err != nil {
		return agg, err
	}
	if !agg.Exists() {
		return agg, NotFound(r.kind.Name+".load", streamID+" not found")
	}
	return agg, nil
}

func (r *Repository[S]) load(ctx context.Context, tenantID, streamID string) (Aggregate[S], error) {
	events, err := r.store.Load(ctx, streamID)
	if err != nil {
		return Aggregate[S]{}, fmt.Errorf("%s.load: %w", r.kind.Name, err)
	}
	agg, err := r.kind.Fold(Aggregate[S]{}, events)
	if err != nil {
		return Aggregate[S]{}, err
	}
	if agg.Exists() && agg.TenantID != tenantID {
		return Aggregate[S]{}, NotFound(r.kind.Name+".load", streamID+" not found")
	}
	agg.ID = streamID
	agg.TenantID = tenantID
	return agg, nil
}

// Handle loads the stream, runs cmd and appends the result. With a pinned
// expectedVersion a stale caller gets a ConcurrencyConflict; with AnyVersion the
// command is re-run on fresh state up to MaxAttempts times.
func (r *Repository[S]) Handle(ctx context.Context, tenantID, streamID string, expectedVersion int64, cmd Command[S]) (Result[S], error) {
	attempts := 1
	if expectedVersion == AnyVersion {
		attempts = r.maxAttempts
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		agg, err := r.load(ctx, tenantID, streamID)
		if err != nil {
			return Result[S]{}, err
		}
		if expectedVersion != AnyVersion && agg.Version != expectedVersion {
			return Result[S]{}, Conflict(r.kind.Name+".handle", streamID, expectedVersion, agg.Version)
		}

		res, err := r.execute(ctx, agg, cmd)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) || expectedVersion != AnyVersion {
			return Result[S]{}, err
		}
		lastErr = err
		r.logger.Info("retrying command after concurrency conflict",
			"kind", r.kind.Name, "stream_id", streamID, "attempt", i+1)
	}
	return Result[S]{}, lastErr
}

func (r *Repository[S]) execute(ctx context.Context, agg Aggregate[S], cmd Command[S]) (Result[S], error) {
	events, err := r.kind.Execute(agg, cmd, r.now())
	if err != nil {
		return Result[S]{}, err
	}
	next, err := r.Commit(ctx, agg, events)
	if err != nil {
		return Result[S]{}, err
	}
	return Result[S]{Aggregate: next, Events: events}, nil
}

// Commit appends events produced against agg, expecting the stream to still be at
// agg.Version. Snapshots and outbox messages are derived here so they commit with
// the events or not at all.
func (r *Repository[S]) Commit(ctx context.Context, agg Aggregate[S], events []Event) (Aggregate[S], error) {
	if len(events) == 0 {
		return agg, nil
	}
	c := Commit{
		Kind:            r.kind.Name,
		StreamID:        agg.ID,
		TenantID:        agg.TenantID,
		ExpectedVersion: agg.Version,
		At:              r.now(),
		Events:          events,
	}
	cur := agg
	for _, ev := range events {
		next, v, err := r.kind.step(cur, ev)
		if err != nil {
			return agg, err
		}
		cur = next
		if r.kind.Project != nil {
			c.Snapshots = append(c.Snapshots, r.project(cur))
		}
		if r.kind.Integrate != nil {
			msgs, err := r.kind.Integrate(cur, ev, v)
			if err != nil {
				return agg, fmt.Errorf("%s: integration event for %s: %w", r.kind.Name, ev.Type, err)
			}
			c.Outbox = append(c.Outbox, stampMessages(msgs, ev)...)
		}
	}

	if err := r.store.Append(ctx, c); err != nil {
		return agg, err
	}
	return cur, nil
}

// Rebuild replays the stream and overwrites its snapshot.
func (r *Repository[S]) Rebuild(ctx context.Context, tenantID, streamID string) (Snapshot, error) {
	if r.kind.Project == nil {
		return Snapshot{}, Invalid(r.kind.Name+".rebuild", "kind has no snapshot projection")
	}
	agg, err := r.Load(ctx, tenantID, streamID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := r.project(agg)
	if err := r.store.ReplaceSnapshot(ctx, snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (r *Repository[S]) project(agg Aggregate[S]) Snapshot {
	s := r.kind.Project(agg)
	s.Kind = r.kind.Name
	s.ID = agg.ID
	s.TenantID = agg.TenantID
	s.Version = agg.Version
	s.UpdatedAt = agg.UpdatedAt
	s.IsDeleted = s.Status == StatusDeleted
	if s.IsDeleted {
		// Deleted aggregates release their unique key.
		s.UniqueKey = ""
	}
	return s
}

// stampMessages links messages to their event. The first message carries the event id;
// the rest get ids derived from it because outbox event ids are unique.
func stampMessages(msgs []outbox.Message, ev Event) []outbox.Message {
	for i := range msgs {
		if msgs[i].EventID == "" {
			msgs[i].EventID = messageID(ev.ID, msgs[i].Destination, i)
		}
		if msgs[i].StreamID == "" {
			msgs[i].StreamID = ev.StreamID
		}
		if msgs[i].TenantID == "" {
			msgs[i].TenantID = ev.TenantID
		}
	}
	return msgs
}

func messageID(eventID, destination string, i int) string {
	if i == 0 {
		return eventID
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(eventID+"/"+destination+"/"+strconv.Itoa(i))).String()
}
