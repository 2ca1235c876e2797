// Package pgstore persists event streams, their snapshots and outbox messages in
// Postgres. One command commits in one transaction.
//
//	es_events(stream_id text, version bigint, event_id uuid UNIQUE, kind text, tenant_id text,
//	          event_type text, occurred_at timestamptz, payload jsonb,
//	          CONSTRAINT es_events_pkey PRIMARY KEY (stream_id, version))
//	es_snapshots(kind text, id text, tenant_id text, version bigint, status text, unique_key text,
//	             attributes jsonb, is_deleted bool, updated_at timestamptz,
//	             PRIMARY KEY (kind, id),
//	             CONSTRAINT es_snapshots_unique_key UNIQUE (kind, tenant_id, unique_key))
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/propertyhub/libs/db"
	"github.com/md-rashed-zaman/propertyhub/libs/es"
	"github.com/md-rashed-zaman/propertyhub/libs/outbox"
)

const (
	eventsPrimaryKey  = "es_events_pkey"
	snapshotUniqueKey = "es_snapshots_unique_key"
)

type Store struct {
	pool db.Conn
}

func New(pool db.Conn) *Store {
	return &Store{pool: pool}
}

func (s *Store) Load(ctx context.Context, streamID string) ([]es.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, stream_id, tenant_id, kind, version, event_type, occurred_at, payload
		FROM es_events
		WHERE stream_id = $1
		ORDER BY version
	`, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []es.Event
	for rows.Next() {
		var ev es.Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.StreamID, &ev.TenantID, &ev.Kind, &ev.Version, &ev.Type, &ev.OccurredAt, &payload); err != nil {
			return nil, err
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		ev.Payload = payload
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// Append writes the events, applies the snapshots in version order and enqueues the
// outbox messages in one transaction.
func (s *Store) Append(ctx context.Context, c es.Commit) error {
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var current int64
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(version), 0) FROM es_events WHERE stream_id = $1
		`, c.StreamID).Scan(&current); err != nil {
			return err
		}
		if current != c.ExpectedVersion {
			return es.Conflict(c.Kind+".append", c.StreamID, c.ExpectedVersion, current)
		}

		for _, ev := range c.Events {
			if _, err := tx.Exec(ctx, `
				INSERT INTO es_events (stream_id, version, event_id, kind, tenant_id, event_type, occurred_at, payload)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, ev.StreamID, ev.Version, ev.ID, ev.Kind, ev.TenantID, ev.Type, ev.OccurredAt, []byte(ev.Payload)); err != nil {
				return err
			}
		}
		for _, snap := range c.Snapshots {
			if err := applySnapshot(ctx, tx, snap); err != nil {
				return err
			}
		}
		for _, msg := range c.Outbox {
			if err := outbox.Enqueue(ctx, tx, msg, c.At); err != nil {
				return fmt.Errorf("enqueue %s: %w", msg.EventType, err)
			}
		}
		return nil
	})
	return mapError(c, err)
}

func (s *Store) ReplaceSnapshot(ctx context.Context, snap es.Snapshot) error {
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return upsertSnapshot(ctx, tx, snap)
	})
	return mapError(es.Commit{Kind: snap.Kind, StreamID: snap.ID}, err)
}

// mapError turns constraint violations into write-model errors. Two writers racing past
// the version check collide on the events primary key.
func mapError(c es.Commit, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case eventsPrimaryKey:
		return &es.Error{
			Code:    es.CodeConcurrencyConflict,
			Op:      c.Kind + ".append",
			Message: fmt.Sprintf("stream %s advanced past version %d", c.StreamID, c.ExpectedVersion),
			Cause:   err,
		}
	case snapshotUniqueKey:
		return &es.Error{
			Code:    es.CodeDomainRuleViolation,
			Op:      c.Kind + ".append",
			Rule:    "unique_key_taken",
			Message: c.Kind + " unique key is already taken",
			Cause:   err,
		}
	}
	return err
}

var _ es.Store = (*Store)(nil)
