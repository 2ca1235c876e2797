// Package refs stores the local copies of organizations that properties point at.
package refs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/propertyhub/libs/refsync"
)

// Repository keeps organization_refs:
//
//	id text, tenant_id text, fields jsonb, source_version bigint, is_deleted bool,
//	last_updated_at timestamptz, PRIMARY KEY (tenant_id, id)
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, tenantID, id string) (refsync.Record, bool, error) {
	var rec refsync.Record
	var fields []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, fields, source_version, is_deleted, last_updated_at
		FROM organization_refs
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&rec.ID, &rec.TenantID, &fields, &rec.SourceVersion, &rec.IsDeleted, &rec.LastUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return refsync.Record{}, false, nil
	}
	if err != nil {
		return refsync.Record{}, false, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &rec.Fields); err != nil {
			return refsync.Record{}, false, fmt.Errorf("decode fields of %s: %w", id, err)
		}
	}
	rec.LastUpdatedAt = rec.LastUpdatedAt.UTC()
	return rec, true, nil
}

// Upsert writes rec unless the stored row is at least as new. The WHERE clause repeats
// refsync.Newer so racing writers cannot regress a row between Get and Upsert.
func (r *Repository) Upsert(ctx context.Context, rec refsync.Record) (bool, error) {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO organization_refs (id, tenant_id, fields, source_version, is_deleted, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET fields = EXCLUDED.fields,
		    source_version = EXCLUDED.source_version,
		    is_deleted = EXCLUDED.is_deleted,
		    last_updated_at = EXCLUDED.last_updated_at
		WHERE (organization_refs.last_updated_at, organization_refs.source_version)
		    < (EXCLUDED.last_updated_at, EXCLUDED.source_version)
	`, rec.ID, rec.TenantID, fields, rec.SourceVersion, rec.IsDeleted, rec.LastUpdatedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ refsync.Store = (*Repository)(nil)
