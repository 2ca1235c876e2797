// Package organization owns the Organization aggregate: its events, fold, commands
// and the integration events other services consume.
package organization

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/propertyhub/libs/es"
	"github.com/md-rashed-zaman/propertyhub/libs/events"
	"github.com/md-rashed-zaman/propertyhub/libs/kafkax"
	"github.com/md-rashed-zaman/propertyhub/libs/outbox"
)

const (
	KindName      = "organization"
	SchemaVersion = "1.0.0"
	schemaMajor   = 1
)

// State is the folded organization.
type State struct {
	Status        es.Status
	Name          string
	Slug          string
	SuspendReason string
}

// View is the read shape shared by the API, the snapshot endpoint and integration events.
type View struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    es.Status `json:"status"`
	Version   int64     `json:"version"`
	IsDeleted bool      `json:"is_deleted"`
	UpdatedAt time.Time `json:"updated_at"`
}

var Kind = es.Kind[State]{
	Name:      KindName,
	Events:    decoders,
	Apply:     apply,
	Project:   project,
	Integrate: integrate,
}

func apply(s State, _ es.Event, v es.Variant) (State, error) {
	switch e := v.(type) {
	case Created:
		s.Status = es.StatusInitializing
		s.Name, s.Slug = e.Name, e.Slug
	case Activated:
		s.Status = es.StatusActive
	case Renamed:
		s.Name, s.Slug = e.Name, e.Slug
	case Suspended:
		s.Status = es.StatusSuspended
		s.SuspendReason = e.Reason
	case Reactivated:
		s.Status = es.StatusActive
		s.SuspendReason = ""
	case Deleted:
		s.Status = es.StatusDeleted
	default:
		return s, es.UnknownVariant(KindName, v)
	}
	return s, nil
}

func project(a es.Aggregate[State]) es.Snapshot {
	return es.Snapshot{
		Status:    a.State.Status,
		UniqueKey: a.State.Slug,
		Attributes: map[string]any{
			"name":           a.State.Name,
			"slug":           a.State.Slug,
			"suspend_reason": a.State.SuspendReason,
		},
	}
}

// integrate publishes every organization event to organization.<event>.v1 with the
// organization's snapshot as data.
func integrate(a es.Aggregate[State], ev es.Event, _ es.Variant) ([]outbox.Message, error) {
	topic := kafkax.TopicName(KindName, strings.TrimPrefix(ev.Type, KindName+"."), schemaMajor)
	body, err := events.New(ev.ID, topic, SchemaVersion, a.TenantID, a.ID, a.Version, ev.OccurredAt, ViewOf(a))
	if err != nil {
		return nil, err
	}
	return []outbox.Message{{
		EventType:     topic,
		Destination:   topic,
		SchemaVersion: SchemaVersion,
		Payload:       body,
	}}, nil
}

func ViewOf(a es.Aggregate[State]) View {
	return View{
		ID:        a.ID,
		TenantID:  a.TenantID,
		Name:      a.State.Name,
		Slug:      a.State.Slug,
		Status:    a.State.Status,
		Version:   a.Version,
		IsDeleted: a.State.Status == es.StatusDeleted,
		UpdatedAt: a.UpdatedAt,
	}
}

func ViewOfSnapshot(s es.Snapshot) View {
	name, _ := s.Attributes["name"].(string)
	slug, _ := s.Attributes["slug"].(string)
	return View{
		ID:        s.ID,
		TenantID:  s.TenantID,
		Name:      name,
		Slug:      slug,
		Status:    s.Status,
		Version:   s.Version,
		IsDeleted: s.IsDeleted,
		UpdatedAt: s.UpdatedAt,
	}
}
