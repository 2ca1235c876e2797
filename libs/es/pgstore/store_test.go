package pgstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/propertyhub/libs/es"
)

func TestMapErrorEventsPrimaryKeyIsConflict(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: eventsPrimaryKey}
	err := mapError(es.Commit{Kind: "organization", StreamID: "o-1", ExpectedVersion: 3}, fmt.Errorf("insert event: %w", pgErr))
	if !errors.Is(err, es.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected pg error kept as cause")
	}
}

func TestMapErrorUniqueKeyIsViolation(t *testing.T) {
	err := mapError(es.Commit{Kind: "organization"}, &pgconn.PgError{Code: "23505", ConstraintName: snapshotUniqueKey})
	if es.RuleOf(err) != "unique_key_taken" {
		t.Fatalf("expected unique_key_taken, got %v", err)
	}
}

func TestMapErrorPassesThroughOtherErrors(t *testing.T) {
	other := &pgconn.PgError{Code: "23503", ConstraintName: "fk"}
	if err := mapError(es.Commit{}, other); err != other {
		t.Fatalf("expected passthrough, got %v", err)
	}
	if err := mapError(es.Commit{}, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	mismatch := es.SchemaMismatch("organization.snapshot", "out of order", nil)
	if err := mapError(es.Commit{}, mismatch); !errors.Is(err, es.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch kept, got %v", err)
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Fatalf("expected empty unique key stored as NULL")
	}
	if v := nullable("acme"); v == nil || *v != "acme" {
		t.Fatalf("expected value kept")
	}
}
