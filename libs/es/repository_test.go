package es_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/propertyhub/libs/es"
	"github.com/md-rashed-zaman/propertyhub/libs/es/memstore"
	"github.com/md-rashed-zaman/propertyhub/libs/outbox"
)

const tenant = "t-1"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTeams(store *memstore.Store) *es.Repository[team] {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return es.NewRepository(teamKind, store, es.RepositoryConfig{
		Logger: testLogger(),
		Clock: func() time.Time {
			now = now.Add(time.Second)
			return now
		},
	})
}

// seedTeam brings a team to version 3: opened, activated, renamed once.
func seedTeam(t *testing.T, repo *es.Repository[team], id string) {
	t.Helper()
	ctx := context.Background()
	for i, cmd := range []es.Command[team]{openTeam("Blue"), activateTeam, renameTeam("Blue Two")} {
		if _, err := repo.Handle(ctx, tenant, id, int64(i), cmd); err != nil {
			t.Fatalf("seed step %d: %v", i, err)
		}
	}
}

func TestLoadMissingStreamIsNotFound(t *testing.T) {
	repo := newTeams(memstore.New())
	_, err := repo.Load(context.Background(), tenant, "nope")
	if !errors.Is(err, es.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoadIsScopedToTenant(t *testing.T) {
	repo := newTeams(memstore.New())
	seedTeam(t, repo, "team-1")
	if _, err := repo.Load(context.Background(), "t-2", "team-1"); !errors.Is(err, es.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
	if _, err := repo.Handle(context.Background(), "t-2", "team-1", es.AnyVersion, renameTeam("Hijack")); err == nil {
		t.Fatalf("expected command from another tenant to fail")
	}
}

func TestRenameScenario(t *testing.T) {
	store := memstore.New()
	repo := newTeams(store)
	ctx := context.Background()
	seedTeam(t, repo, "team-1")
	before := len(store.Entries())

	res, err := repo.Handle(ctx, tenant, "team-1", 3, renameTeam("Green"))
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if res.Aggregate.Version != 4 || len(res.Events) != 1 || res.Events[0].Version != 4 {
		t.Fatalf("expected version 4 with one event, got %+v", res)
	}

	snap, err := store.Get(ctx, "team", tenant, "team-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Version != 4 || snap.Attributes["name"] != "Green" || snap.UniqueKey != "green" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	entries := store.Entries()
	if len(entries) != before+1 {
		t.Fatalf("expected exactly one new outbox entry, got %d", len(entries)-before)
	}
	last := entries[len(entries)-1]
	if last.EventID != res.Events[0].ID || last.StreamID != "team-1" || last.TenantID != tenant {
		t.Fatalf("outbox entry not linked to the event: %+v", last)
	}

	// A second caller still holding version 3 is rejected and nothing is written.
	_, err = repo.Handle(ctx, tenant, "team-1", 3, renameTeam("Red"))
	if !errors.Is(err, es.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(store.Entries()) != before+1 {
		t.Fatalf("expected no outbox entry for the rejected command")
	}
	agg, _ := repo.Load(ctx, tenant, "team-1")
	if agg.Version != 4 || agg.State.Name != "Green" {
		t.Fatalf("expected state unchanged at v4, got %+v", agg)
	}
}

func TestAppendOnceSecondAppendConflicts(t *testing.T) {
	store := memstore.New()
	repo := newTeams(store)
	ctx := context.Background()
	seedTeam(t, repo, "team-1")

	agg, err := repo.Load(ctx, tenant, "team-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	first, err := teamKind.Execute(agg, renameTeam("One"), time.Now())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	second, err := teamKind.Execute(agg, renameTeam("Two"), time.Now())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := repo.Commit(ctx, agg, first); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if _, err := repo.Commit(ctx, agg, second); !es.IsCode(err, es.CodeConcurrencyConflict) {
		t.Fatalf("expected conflict on second append at the same version, got %v", err)
	}
	events, _ := store.Load(ctx, "team-1")
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
}

func TestAnyVersionRetriesConflicts(t *testing.T) {
	store := memstore.New()
	repo := newTeams(store)
	ctx := context.Background()
	seedTeam(t, repo, "team-1")

	competitor := newTeams(store)
	raced := false
	store.BeforeAppend(func(c es.Commit) {
		if raced || c.StreamID != "team-1" {
			return
		}
		raced = true
		if _, err := competitor.Handle(ctx, tenant, "team-1", 3, renameTeam("Competitor")); err != nil {
			t.Errorf("competitor: %v", err)
		}
	})

	res, err := repo.Handle(ctx, tenant, "team-1", es.AnyVersion, renameTeam("Winner"))
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if res.Aggregate.Version != 5 || res.Aggregate.State.Name != "Winner" || res.Aggregate.State.Renames != 3 {
		t.Fatalf("expected command re-run on fresh state, got %+v", res.Aggregate)
	}
}

func TestPinnedVersionIsNotRetried(t *testing.T) {
	store := memstore.New()
	repo := newTeams(store)
	ctx := context.Background()
	seedTeam(t, repo, "team-1")

	competitor := newTeams(store)
	raced := false
	store.BeforeAppend(func(c es.Commit) {
		if raced {
			return
		}
		raced = true
		if _, err := competitor.Handle(ctx, tenant, "team-1", 3, renameTeam("Competitor")); err != nil {
			t.Errorf("competitor: %v", err)
		}
	})

	if _, err := repo.Handle(ctx, tenant, "team-1", 3, renameTeam("Loser")); !errors.Is(err, es.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict for pinned version, got %v", err)
	}
}

func TestCommitIsAtomic(t *testing.T) {
	store := memstore.New()
	repo := newTeams(store)
	ctx := context.Background()
	seedTeam(t, repo, "team-1")
	before := len(store.Entries())

	crash := errors.New("connection reset")
	store.FailNextCommit(crash)
	if _, err := repo.Handle(ctx, tenant, "team-1", 3, renameTeam("Lost")); !errors.Is(err, crash) {
		t.Fatalf("expected injected failure, got %v", err)
	}

	events, _ := store.Load(ctx, "team-1")
	if len(events) != 3 {
		t.Fatalf("expected no event written, got %d events", len(events))
	}
	snap, _ := store.Get(ctx, "team", tenant, "team-1")
	if snap.Version != 3 || snap.Attributes["name"] != "Blue Two" {
		t.Fatalf("expected snapshot untouched, got %+v", snap)
	}
	if len(store.Entries()) != before {
		t.Fatalf("expected no outbox entry written")
	}
	if ok, _ := store.ExistsByUniqueKey(ctx, "team", tenant, "lost"); ok {
		t.Fatalf("expected unique key not claimed")
	}

	if _, err := repo.Handle(ctx, tenant, "team-1", 3, renameTeam("Found")); err != nil {
		t.Fatalf("expected retry after crash to succeed, got %v", err)
	}
}

func TestUniqueKeyCollisionIsDomainViolation(t *testing.T) {
	store := memstore.New()
	repo := newTeams(store)
	ctx := context.Background()
	if _, err := repo.Handle(ctx, tenant, "team-1", 0, openTeam("Blue")); err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err := repo.Handle(ctx, tenant, "team-2", 0, openTeam("Blue"))
	if !errors.Is(err, es.ErrDomainRuleViolation) || es.RuleOf(err) != "unique_key_taken" {
		t.Fatalf("expected unique_key_taken, got %v", err)
	}
	// Other tenants have their own key space.
	if _, err := repo.Handle(ctx, "t-2", "team-3", 0, openTeam("Blue")); err != nil {
		t.Fatalf("expected other tenant to reuse the key, got %v", err)
	}
}

func TestDeletedIsTerminalAndReleasesKey(t *testing.T) {
	store := memstore.New()
	repo := newTeams(store)
	ctx := context.Background()
	seedTeam(t, repo, "team-1")

	if _, err := repo.Handle(ctx, tenant, "team-1", es.AnyVersion, closeTeam); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := repo.Handle(ctx, tenant, "team-1", es.AnyVersion, renameTeam("Zombie"))
	if es.RuleOf(err) != "aggregate_deleted" {
		t.Fatalf("expected aggregate_deleted, got %v", err)
	}
	_, err = repo.Handle(ctx, tenant, "team-1", es.AnyVersion, activateTeam)
	if es.RuleOf(err) != "aggregate_deleted" {
		t.Fatalf("expected aggregate_deleted for reactivation, got %v", err)
	}

	snap, _ := store.Get(ctx, "team", tenant, "team-1")
	if !snap.IsDeleted || snap.Status != es.StatusDeleted {
		t.Fatalf("expected deleted snapshot, got %+v", snap)
	}
	if _, err := repo.Handle(ctx, tenant, "team-2", 0, openTeam("Blue Two")); err != nil {
		t.Fatalf("expected slug of deleted team to be reusable, got %v", err)
	}
}

func TestUnknownEventTypeIsSchemaMismatch(t *testing.T) {
	store := memstore.New()
	repo := newTeams(store)
	ctx := context.Background()
	seedTeam(t, repo, "team-1")

	err := store.Append(ctx, es.Commit{
		Kind: "team", StreamID: "team-1", TenantID: tenant, ExpectedVersion: 3,
		Events: []es.Event{{ID: "x", StreamID: "team-1", TenantID: tenant, Kind: "team", Version: 4, Type: "team.exploded", OccurredAt: time.Now(), Payload: []byte(`{}`)}},
	})
	if err != nil {
		t.Fatalf("raw append: %v", err)
	}
	if _, err := repo.Load(ctx, tenant, "team-1"); !errors.Is(err, es.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestUnfoldedVariantIsSchemaMismatch(t *testing.T) {
	repo := newTeams(memstore.New())
	ctx := context.Background()
	seedTeam(t, repo, "team-1")
	if _, err := repo.Handle(ctx, tenant, "team-1", 3, emitUnfolded); !errors.Is(err, es.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch for variant without fold branch, got %v", err)
	}
}

func TestFoldRejectsVersionGap(t *testing.T) {
	events := []es.Event{
		{StreamID: "team-1", TenantID: tenant, Version: 1, Type: "team.opened", Payload: []byte(`{"name":"A","slug":"a"}`)},
		{StreamID: "team-1", TenantID: tenant, Version: 3, Type: "team.activated", Payload: []byte(`{}`)},
	}
	if _, err := teamKind.Fold(es.Aggregate[team]{}, events); !errors.Is(err, es.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch for gap, got %v", err)
	}
}

func TestRebuildRepairsSnapshot(t *testing.T) {
	store := memstore.New()
	repo := newTeams(store)
	ctx := context.Background()
	seedTeam(t, repo, "team-1")

	store.CorruptSnapshot(es.Snapshot{Kind: "team", ID: "team-1", TenantID: tenant, Version: 1, Attributes: map[string]any{"name": "garbage"}})
	snap, err := repo.Rebuild(ctx, tenant, "team-1")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	got, _ := store.Get(ctx, "team", tenant, "team-1")
	if got.Version != 3 || got.Attributes["name"] != "Blue Two" || snap.Version != 3 {
		t.Fatalf("expected rebuilt snapshot at v3, got %+v", got)
	}
}

func TestSnapshotOutOfOrderFailsCommit(t *testing.T) {
	store := memstore.New()
	repo := newTeams(store)
	ctx := context.Background()
	seedTeam(t, repo, "team-1")

	store.CorruptSnapshot(es.Snapshot{Kind: "team", ID: "team-1", TenantID: tenant, Version: 1})
	_, err := repo.Handle(ctx, tenant, "team-1", 3, renameTeam("Orange"))
	if !errors.Is(err, es.ErrSchemaMismatch) {
		t.Fatalf("expected snapshot out of order, got %v", err)
	}
	events, _ := store.Load(ctx, "team-1")
	if len(events) != 3 {
		t.Fatalf("expected append rolled back, got %d events", len(events))
	}
}

func TestFindByField(t *testing.T) {
	store := memstore.New()
	repo := newTeams(store)
	ctx := context.Background()
	seedTeam(t, repo, "team-1")

	found, err := store.FindByField(ctx, "team", tenant, "name", "Blue Two")
	if err != nil || len(found) != 1 || found[0].ID != "team-1" {
		t.Fatalf("expected team-1, got %+v %v", found, err)
	}
	found, _ = store.FindByField(ctx, "team", "t-2", "name", "Blue Two")
	if len(found) != 0 {
		t.Fatalf("expected tenant isolation, got %+v", found)
	}
}

func TestFanOutMessagesGetDistinctEventIDs(t *testing.T) {
	kind := teamKind
	kind.Integrate = func(a es.Aggregate[team], ev es.Event, v es.Variant) ([]outbox.Message, error) {
		if _, ok := v.(teamRenamed); !ok {
			return nil, nil
		}
		return []outbox.Message{
			{EventType: "team.renamed.v1", Destination: "team.renamed.v1", Payload: []byte(`{}`)},
			{EventType: "team.renamed.v1", Destination: "audit.team.v1", Payload: []byte(`{}`)},
		}, nil
	}
	store := memstore.New()
	repo := es.NewRepository(kind, store, es.RepositoryConfig{Logger: testLogger()})
	seedTeam(t, repo, "team-1")

	entries := store.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected two outbox entries, got %d", len(entries))
	}
	events, _ := store.Load(context.Background(), "team-1")
	renamed := events[len(events)-1]
	if entries[0].EventID != renamed.ID {
		t.Fatalf("expected first entry to carry event id %s, got %s", renamed.ID, entries[0].EventID)
	}
	if entries[1].EventID == entries[0].EventID {
		t.Fatalf("expected distinct event ids, got %s twice", entries[0].EventID)
	}
	if _, err := uuid.Parse(entries[1].EventID); err != nil {
		t.Fatalf("expected derived uuid, got %q", entries[1].EventID)
	}
}

func TestReplaceSnapshotKeepsKeyWhenTaken(t *testing.T) {
	store := memstore.New()
	repo := newTeams(store)
	ctx := context.Background()
	seedTeam(t, repo, "team-1")
	if _, err := repo.Handle(ctx, tenant, "team-2", 0, openTeam("Red")); err != nil {
		t.Fatalf("open team-2: %v", err)
	}

	snap, _ := store.Get(ctx, "team", tenant, "team-2")
	snap.UniqueKey = "blue-two"
	if err := store.ReplaceSnapshot(ctx, snap); es.RuleOf(err) != "unique_key_taken" {
		t.Fatalf("expected unique_key_taken, got %v", err)
	}
	if ok, _ := store.ExistsByUniqueKey(ctx, "team", tenant, "red"); !ok {
		t.Fatalf("expected team-2 to keep its key after the failed replace")
	}
	if _, err := repo.Handle(ctx, tenant, "team-3", 0, openTeam("Red")); es.RuleOf(err) != "unique_key_taken" {
		t.Fatalf("expected red to stay taken, got %v", err)
	}
}
