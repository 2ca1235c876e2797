package organization

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/propertyhub/libs/es"
)

// Service runs organization commands and answers snapshot queries.
type Service struct {
	repo      *es.Repository[State]
	snapshots es.SnapshotReader
	newID     func() string
}

func NewService(repo *es.Repository[State], snapshots es.SnapshotReader) *Service {
	return &Service{repo: repo, snapshots: snapshots, newID: uuid.NewString}
}

func (s *Service) Create(ctx context.Context, tenantID, name, slug string) (View, error) {
	if err := requireTenant("organization.create", tenantID); err != nil {
		return View{}, err
	}
	_, normalized, err := normalize("organization.create", name, slug)
	if err != nil {
		return View{}, err
	}
	if err := s.ensureSlugFree(ctx, tenantID, normalized); err != nil {
		return View{}, err
	}
	res, err := s.repo.Handle(ctx, tenantID, s.newID(), 0, Create(name, slug))
	if err != nil {
		return View{}, slugTaken(err)
	}
	return ViewOf(res.Aggregate), nil
}

func (s *Service) Rename(ctx context.Context, tenantID, id string, expectedVersion int64, name, slug string) (View, error) {
	return s.handle(ctx, tenantID, id, expectedVersion, Rename(name, slug))
}

func (s *Service) Suspend(ctx context.Context, tenantID, id string, expectedVersion int64, reason string) (View, error) {
	return s.handle(ctx, tenantID, id, expectedVersion, Suspend(reason))
}

func (s *Service) Reactivate(ctx context.Context, tenantID, id string, expectedVersion int64) (View, error) {
	return s.handle(ctx, tenantID, id, expectedVersion, Reactivate())
}

func (s *Service) Delete(ctx context.Context, tenantID, id string, expectedVersion int64) (View, error) {
	return s.handle(ctx, tenantID, id, expectedVersion, Delete())
}

func (s *Service) handle(ctx context.Context, tenantID, id string, expectedVersion int64, cmd es.Command[State]) (View, error) {
	if err := requireTenant("organization.handle", tenantID); err != nil {
		return View{}, err
	}
	res, err := s.repo.Handle(ctx, tenantID, id, expectedVersion, existing(id, cmd))
	if err != nil {
		return View{}, slugTaken(err)
	}
	return ViewOf(res.Aggregate), nil
}

// Get reads the snapshot cache.
func (s *Service) Get(ctx context.Context, tenantID, id string) (View, error) {
	snap, err := s.snapshots.Get(ctx, KindName, tenantID, id)
	if err != nil {
		return View{}, err
	}
	return ViewOfSnapshot(snap), nil
}

// SlugAvailable reports whether slug can be used by a new or renamed organization.
func (s *Service) SlugAvailable(ctx context.Context, tenantID, slug string) (bool, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" || !slugPattern.MatchString(slug) {
		return false, es.Invalid("organization.slug_availability", "slug is invalid")
	}
	taken, err := s.snapshots.ExistsByUniqueKey(ctx, KindName, tenantID, slug)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// Snapshots lists every organization of every tenant, deleted ones included, for
// downstream reference synchronization.
func (s *Service) Snapshots(ctx context.Context) ([]View, error) {
	snaps, err := s.snapshots.List(ctx, KindName, "")
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, ViewOfSnapshot(snap))
	}
	return out, nil
}

// Rebuild replays the stream and overwrites the cached snapshot.
func (s *Service) Rebuild(ctx context.Context, tenantID, id string) (View, error) {
	snap, err := s.repo.Rebuild(ctx, tenantID, id)
	if err != nil {
		return View{}, err
	}
	return ViewOfSnapshot(snap), nil
}

func (s *Service) ensureSlugFree(ctx context.Context, tenantID, slug string) error {
	taken, err := s.snapshots.ExistsByUniqueKey(ctx, KindName, tenantID, slug)
	if err != nil {
		return err
	}
	if taken {
		return es.Violation("organization.create", "slug_taken", "slug "+slug+" is already taken")
	}
	return nil
}

// existing makes commands on a stream without events fail as not found.
func existing(id string, cmd es.Command[State]) es.Command[State] {
	return func(s State) ([]es.Variant, error) {
		if s.Status == "" {
			return nil, es.NotFound("organization.handle", "organization "+id+" not found")
		}
		return cmd(s)
	}
}

func requireTenant(op, tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return es.Invalid(op, "tenant id is required")
	}
	return nil
}

// slugTaken names the unique key collision after the organization field it guards.
func slugTaken(err error) error {
	if es.RuleOf(err) != "unique_key_taken" {
		return err
	}
	return &es.Error{Code: es.CodeDomainRuleViolation, Op: "organization.commit", Rule: "slug_taken", Message: "slug is already taken", Cause: err}
}
