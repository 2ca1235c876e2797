package organization

import "github.com/md-rashed-zaman/propertyhub/libs/es"

// Event is the closed set of facts recorded on an organization stream.
type Event interface {
	es.Variant
	organizationEvent()
}

type Created struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Activated struct{}

type Renamed struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Suspended struct {
	Reason string `json:"reason"`
}

type Reactivated struct{}

type Deleted struct{}

const (
	TypeCreated     = "organization.created"
	TypeActivated   = "organization.activated"
	TypeRenamed     = "organization.renamed"
	TypeSuspended   = "organization.suspended"
	TypeReactivated = "organization.reactivated"
	TypeDeleted     = "organization.deleted"
)

func (Created) EventType() string     { return TypeCreated }
func (Activated) EventType() string   { return TypeActivated }
func (Renamed) EventType() string     { return TypeRenamed }
func (Suspended) EventType() string   { return TypeSuspended }
func (Reactivated) EventType() string { return TypeReactivated }
func (Deleted) EventType() string     { return TypeDeleted }

func (Created) organizationEvent()     {}
func (Activated) organizationEvent()   {}
func (Renamed) organizationEvent()     {}
func (Suspended) organizationEvent()   {}
func (Reactivated) organizationEvent() {}
func (Deleted) organizationEvent()     {}

var decoders = map[string]es.Decoder{
	TypeCreated:     es.DecodeAs[Created],
	TypeActivated:   es.DecodeAs[Activated],
	TypeRenamed:     es.DecodeAs[Renamed],
	TypeSuspended:   es.DecodeAs[Suspended],
	TypeReactivated: es.DecodeAs[Reactivated],
	TypeDeleted:     es.DecodeAs[Deleted],
}

var (
	_ Event = Created{}
	_ Event = Activated{}
	_ Event = Renamed{}
	_ Event = Suspended{}
	_ Event = Reactivated{}
	_ Event = Deleted{}
)
