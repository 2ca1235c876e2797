package outbox

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/propertyhub/libs/db"
	otelx "github.com/md-rashed-zaman/propertyhub/libs/otel"
)

// Repository is the Postgres outbox. Rows live in outbox_entries:
//
//	id bigserial PRIMARY KEY, event_id uuid UNIQUE, stream_id text, tenant_id text,
//	event_type text, destination text, schema_version text, payload jsonb,
//	status text, retry_count int, last_error text, created_at timestamptz,
//	next_attempt_at timestamptz, lease_until timestamptz, dispatched_at timestamptz,
//	dead_at timestamptz, traceparent text, tracestate text
type Repository struct {
	pool db.Conn
}

func NewRepository(pool db.Conn) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, event_id, stream_id, tenant_id, event_type, destination, schema_version, payload,
	status, retry_count, last_error, created_at, next_attempt_at, lease_until, dispatched_at, dead_at,
	traceparent, tracestate`

// claimLockKey serializes Claim across publisher replicas so one replica cannot lease a
// later entry of a stream while another is still leasing the earlier one.
const claimLockKey int64 = 7_201_994

// Enqueue writes msg inside the caller's transaction, together with the trace context
// of ctx so the dispatch span links back to the command. The entry is due at at, taken
// from the writer's clock like every other outbox timestamp.
func Enqueue(ctx context.Context, tx pgx.Tx, msg Message, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_entries (event_id, stream_id, tenant_id, event_type, destination, schema_version, payload,
			status, retry_count, last_error, created_at, next_attempt_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', 0, '', $8, $8, $9, $10)
	`, msg.EventID, msg.StreamID, msg.TenantID, msg.EventType, msg.Destination, msg.SchemaVersion, msg.Payload,
		at.UTC(), traceparent, tracestate)
	return err
}

func (r *Repository) ReclaimExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_entries
		SET status = 'pending', lease_until = NULL
		WHERE status = 'in_flight' AND lease_until < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Claim leases due entries in id order. An entry waits while an earlier entry of the
// same destination and stream is in flight or backing off; dead entries do not block.
func (r *Repository) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Entry, error) {
	var entries []Entry
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, claimLockKey); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			WITH due AS (
				SELECT o.id
				FROM outbox_entries o
				WHERE o.status = 'pending' AND o.next_attempt_at <= $1
				  AND NOT EXISTS (
					SELECT 1
					FROM outbox_entries b
					WHERE b.destination = o.destination
					  AND b.stream_id = o.stream_id
					  AND b.id < o.id
					  AND (b.status = 'in_flight' OR (b.status = 'pending' AND b.next_attempt_at > $1))
				  )
				ORDER BY o.id
				LIMIT $2
				FOR UPDATE OF o SKIP LOCKED
			)
			UPDATE outbox_entries o
			SET status = 'in_flight', lease_until = $3
			FROM due
			WHERE o.id = due.id
			RETURNING o.id, o.event_id, o.stream_id, o.tenant_id, o.event_type, o.destination, o.schema_version, o.payload,
				o.status, o.retry_count, o.last_error, o.created_at, o.next_attempt_at, o.lease_until, o.dispatched_at, o.dead_at,
				o.traceparent, o.tracestate
		`, now, limit, now.Add(lease))
		if err != nil {
			return err
		}
		defer rows.Close()
		entries, err = scanEntries(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	sortByID(entries)
	return entries, nil
}

func (r *Repository) MarkDispatched(ctx context.Context, id int64, lease, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_entries
		SET status = 'dispatched', dispatched_at = $3, lease_until = NULL
		WHERE id = $1 AND status = 'in_flight' AND lease_until = $2
	`, id, lease, at)
	if err != nil {
		return err
	}
	return leaseHeld(tag)
}

func (r *Repository) MarkFailed(ctx context.Context, f Failure) error {
	status := StatusPending
	var deadAt *time.Time
	if f.Dead {
		status = StatusDead
		deadAt = &f.At
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_entries
		SET status = $3,
		    retry_count = $4,
		    last_error = $5,
		    next_attempt_at = $6,
		    dead_at = $7,
		    lease_until = NULL
		WHERE id = $1 AND status = 'in_flight' AND lease_until = $2
	`, f.ID, f.Lease, string(status), f.RetryCount, f.LastError, f.NextAttemptAt, deadAt)
	if err != nil {
		return err
	}
	return leaseHeld(tag)
}

func (r *Repository) Release(ctx context.Context, id int64, lease time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_entries
		SET status = 'pending', lease_until = NULL
		WHERE id = $1 AND status = 'in_flight' AND lease_until = $2
	`, id, lease)
	if err != nil {
		return err
	}
	return leaseHeld(tag)
}

func leaseHeld(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (r *Repository) ListDeadLetters(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM outbox_entries
		WHERE status = 'dead'
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (r *Repository) Requeue(ctx context.Context, id int64, now time.Time) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM outbox_entries WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if Status(status) != StatusDead {
			return ErrNotDead
		}
		_, err = tx.Exec(ctx, `
			UPDATE outbox_entries
			SET status = 'pending', retry_count = 0, next_attempt_at = $2, dead_at = NULL, lease_until = NULL
			WHERE id = $1
		`, id, now)
		return err
	})
}

func (r *Repository) OldestPending(ctx context.Context) (time.Time, bool, error) {
	var oldest *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT min(created_at) FROM outbox_entries WHERE status IN ('pending', 'in_flight')
	`).Scan(&oldest)
	if err != nil {
		return time.Time{}, false, err
	}
	if oldest == nil {
		return time.Time{}, false, nil
	}
	return *oldest, true, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.ID, &e.EventID, &e.StreamID, &e.TenantID, &e.EventType, &e.Destination, &e.SchemaVersion, &e.Payload,
			&status, &e.RetryCount, &e.LastError, &e.CreatedAt, &e.NextAttemptAt, &e.LeaseUntil, &e.DispatchedAt, &e.DeadAt,
			&e.Traceparent, &e.Tracestate); err != nil {
			return nil, err
		}
		e.Status = Status(status)
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

func sortByID(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}

var _ Store = (*Repository)(nil)
