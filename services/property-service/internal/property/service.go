package property

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/propertyhub/libs/es"
	"github.com/md-rashed-zaman/propertyhub/libs/refsync"
)

// Organizations is the read side of the organization reference copies.
type Organizations interface {
	Get(ctx context.Context, tenantID, id string) (refsync.Record, bool, error)
}

type Service struct {
	repo      *es.Repository[State]
	snapshots es.SnapshotReader
	orgs      Organizations
	newID     func() string
}

func NewService(repo *es.Repository[State], snapshots es.SnapshotReader, orgs Organizations) *Service {
	return &Service{repo: repo, snapshots: snapshots, orgs: orgs, newID: uuid.NewString}
}

// Register creates a property under an organization that is known, live and active in
// the same tenant.
func (s *Service) Register(ctx context.Context, tenantID, organizationID, name, address string) (View, error) {
	const op = "property.register"
	if strings.TrimSpace(tenantID) == "" {
		return View{}, es.Invalid(op, "tenant id is required")
	}
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return View{}, es.Invalid(op, "organization_id is required")
	}
	if err := s.requireActiveOrganization(ctx, op, tenantID, organizationID); err != nil {
		return View{}, err
	}
	res, err := s.repo.Handle(ctx, tenantID, s.newID(), 0, Register(organizationID, name, address))
	if err != nil {
		return View{}, err
	}
	return ViewOf(res.Aggregate), nil
}

func (s *Service) Rename(ctx context.Context, tenantID, id string, expectedVersion int64, name string) (View, error) {
	return s.handle(ctx, tenantID, id, expectedVersion, Rename(name))
}

func (s *Service) Archive(ctx context.Context, tenantID, id string, expectedVersion int64, reason string) (View, error) {
	return s.handle(ctx, tenantID, id, expectedVersion, Archive(reason))
}

func (s *Service) handle(ctx context.Context, tenantID, id string, expectedVersion int64, cmd es.Command[State]) (View, error) {
	if strings.TrimSpace(tenantID) == "" {
		return View{}, es.Invalid("property.handle", "tenant id is required")
	}
	res, err := s.repo.Handle(ctx, tenantID, id, expectedVersion, func(st State) ([]es.Variant, error) {
		if st.Status == "" {
			return nil, es.NotFound("property.handle", "property "+id+" not found")
		}
		return cmd(st)
	})
	if err != nil {
		return View{}, err
	}
	return ViewOf(res.Aggregate), nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (View, error) {
	snap, err := s.snapshots.Get(ctx, KindName, tenantID, id)
	if err != nil {
		return View{}, err
	}
	return ViewOfSnapshot(snap), nil
}

// ListByOrganization returns the live properties of one organization.
func (s *Service) ListByOrganization(ctx context.Context, tenantID, organizationID string) ([]View, error) {
	snaps, err := s.snapshots.FindByField(ctx, KindName, tenantID, "organization_id", organizationID)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, ViewOfSnapshot(snap))
	}
	return out, nil
}

func (s *Service) requireActiveOrganization(ctx context.Context, op, tenantID, organizationID string) error {
	rec, ok, err := s.orgs.Get(ctx, tenantID, organizationID)
	if err != nil {
		return err
	}
	switch {
	case !ok:
		return es.Violation(op, "organization_unknown", "organization "+organizationID+" is not known")
	case rec.IsDeleted:
		return es.Violation(op, "organization_deleted", "organization "+organizationID+" is deleted")
	case rec.Fields["status"] != string(es.StatusActive):
		return es.Violation(op, "organization_inactive", "organization "+organizationID+" is not active")
	}
	return nil
}
