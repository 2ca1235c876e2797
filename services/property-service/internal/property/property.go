// Package property owns the Property aggregate. A property belongs to an organization
// that this service only knows through its reference copy.
package property

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/propertyhub/libs/es"
	"github.com/md-rashed-zaman/propertyhub/libs/events"
	"github.com/md-rashed-zaman/propertyhub/libs/kafkax"
	"github.com/md-rashed-zaman/propertyhub/libs/outbox"
)

const (
	KindName      = "property"
	SchemaVersion = "1.0.0"
	schemaMajor   = 1
)

type State struct {
	Status         es.Status
	OrganizationID string
	Name           string
	Address        string
	ArchiveReason  string
}

type View struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Status         es.Status `json:"status"`
	Version        int64     `json:"version"`
	IsDeleted      bool      `json:"is_deleted"`
	UpdatedAt      time.Time `json:"updated_at"`
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
	case Registered:
		s.Status = es.StatusActive
		s.OrganizationID, s.Name, s.Address = e.OrganizationID, e.Name, e.Address
	case Renamed:
		s.Name = e.Name
	case Archived:
		s.Status = es.StatusDeleted
		s.ArchiveReason = e.Reason
	default:
		return s, es.UnknownVariant(KindName, v)
	}
	return s, nil
}

func project(a es.Aggregate[State]) es.Snapshot {
	return es.Snapshot{
		Status: a.State.Status,
		Attributes: map[string]any{
			"organization_id": a.State.OrganizationID,
			"name":            a.State.Name,
			"address":         a.State.Address,
		},
	}
}

func integrate(a es.Aggregate[State], ev es.Event, _ es.Variant) ([]outbox.Message, error) {
	topic := kafkax.TopicName(KindName, strings.TrimPrefix(ev.Type, KindName+"."), schemaMajor)
	body, err := events.New(ev.ID, topic, SchemaVersion, a.TenantID, a.ID, a.Version, ev.OccurredAt, ViewOf(a))
	if err != nil {
		return nil, err
	}
	return []outbox.Message{{EventType: topic, Destination: topic, SchemaVersion: SchemaVersion, Payload: body}}, nil
}

func ViewOf(a es.Aggregate[State]) View {
	return View{
		ID:             a.ID,
		TenantID:       a.TenantID,
		OrganizationID: a.State.OrganizationID,
		Name:           a.State.Name,
		Address:        a.State.Address,
		Status:         a.State.Status,
		Version:        a.Version,
		IsDeleted:      a.State.Status == es.StatusDeleted,
		UpdatedAt:      a.UpdatedAt,
	}
}

func ViewOfSnapshot(s es.Snapshot) View {
	str := func(k string) string {
		v, _ := s.Attributes[k].(string)
		return v
	}
	return View{
		ID:             s.ID,
		TenantID:       s.TenantID,
		OrganizationID: str("organization_id"),
		Name:           str("name"),
		Address:        str("address"),
		Status:         s.Status,
		Version:        s.Version,
		IsDeleted:      s.IsDeleted,
		UpdatedAt:      s.UpdatedAt,
	}
}
