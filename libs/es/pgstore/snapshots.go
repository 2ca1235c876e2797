package pgstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/propertyhub/libs/es"
)

const snapshotColumns = `kind, id, tenant_id, version, status, COALESCE(unique_key, ''), attributes, is_deleted, updated_at`

// applySnapshot moves a snapshot forward by exactly one version.
func applySnapshot(ctx context.Context, tx pgx.Tx, snap es.Snapshot) error {
	attrs, err := json.Marshal(snap.Attributes)
	if err != nil {
		return err
	}

	if snap.Version == 1 {
		tag, err := tx.Exec(ctx, `
			INSERT INTO es_snapshots (kind, id, tenant_id, version, status, unique_key, attributes, is_deleted, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (kind, id) DO NOTHING
		`, snap.Kind, snap.ID, snap.TenantID, snap.Version, string(snap.Status), nullable(snap.UniqueKey), attrs, snap.IsDeleted, snap.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return es.SchemaMismatch(snap.Kind+".snapshot", "snapshot out of order for "+snap.ID, nil)
		}
		return nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE es_snapshots
		SET version = $3,
		    status = $4,
		    unique_key = $5,
		    attributes = $6,
		    is_deleted = $7,
		    updated_at = $8
		WHERE kind = $1 AND id = $2 AND version = $3 - 1
	`, snap.Kind, snap.ID, snap.Version, string(snap.Status), nullable(snap.UniqueKey), attrs, snap.IsDeleted, snap.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return es.SchemaMismatch(snap.Kind+".snapshot", "snapshot out of order for "+snap.ID, nil)
	}
	return nil
}

func upsertSnapshot(ctx context.Context, tx pgx.Tx, snap es.Snapshot) error {
	attrs, err := json.Marshal(snap.Attributes)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO es_snapshots (kind, id, tenant_id, version, status, unique_key, attributes, is_deleted, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (kind, id) DO UPDATE
		SET tenant_id = EXCLUDED.tenant_id,
		    version = EXCLUDED.version,
		    status = EXCLUDED.status,
		    unique_key = EXCLUDED.unique_key,
		    attributes = EXCLUDED.attributes,
		    is_deleted = EXCLUDED.is_deleted,
		    updated_at = EXCLUDED.updated_at
	`, snap.Kind, snap.ID, snap.TenantID, snap.Version, string(snap.Status), nullable(snap.UniqueKey), attrs, snap.IsDeleted, snap.UpdatedAt)
	return err
}

func (s *Store) Get(ctx context.Context, kind, tenantID, id string) (es.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM es_snapshots
		WHERE kind = $1 AND tenant_id = $2 AND id = $3
	`, kind, tenantID, id)
	if err != nil {
		return es.Snapshot{}, err
	}
	defer rows.Close()
	snaps, err := scanSnapshots(rows)
	if err != nil {
		return es.Snapshot{}, err
	}
	if len(snaps) == 0 {
		return es.Snapshot{}, es.NotFound(kind+".snapshot", id+" not found")
	}
	return snaps[0], nil
}

func (s *Store) FindByField(ctx context.Context, kind, tenantID, field, value string) ([]es.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM es_snapshots
		WHERE kind = $1 AND tenant_id = $2 AND attributes->>$3 = $4 AND NOT is_deleted
		ORDER BY updated_at, id
	`, kind, tenantID, field, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func (s *Store) ExistsByUniqueKey(ctx context.Context, kind, tenantID, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM es_snapshots WHERE kind = $1 AND tenant_id = $2 AND unique_key = $3)
	`, kind, tenantID, key).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return exists, err
}

func (s *Store) List(ctx context.Context, kind, tenantID string) ([]es.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM es_snapshots
		WHERE kind = $1 AND ($2 = '' OR tenant_id = $2)
		ORDER BY updated_at, id
	`, kind, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func scanSnapshots(rows pgx.Rows) ([]es.Snapshot, error) {
	var out []es.Snapshot
	for rows.Next() {
		var snap es.Snapshot
		var status string
		var attrs []byte
		if err := rows.Scan(&snap.Kind, &snap.ID, &snap.TenantID, &snap.Version, &status, &snap.UniqueKey, &attrs, &snap.IsDeleted, &snap.UpdatedAt); err != nil {
			return nil, err
		}
		snap.Status = es.Status(status)
		snap.UpdatedAt = snap.UpdatedAt.UTC()
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &snap.Attributes); err != nil {
				return nil, err
			}
		}
		out = append(out, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ es.SnapshotReader = (*Store)(nil)
