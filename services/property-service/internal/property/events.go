package property

import "github.com/md-rashed-zaman/propertyhub/libs/es"

// Event is the closed set of facts recorded on a property stream.
type Event interface {
	es.Variant
	propertyEvent()
}

type Registered struct {
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Address        string `json:"address"`
}

type Renamed struct {
	Name string `json:"name"`
}

type Archived struct {
	Reason string `json:"reason,omitempty"`
}

const (
	TypeRegistered = "property.registered"
	TypeRenamed    = "property.renamed"
	TypeArchived   = "property.archived"
)

func (Registered) EventType() string { return TypeRegistered }
func (Renamed) EventType() string    { return TypeRenamed }
func (Archived) EventType() string   { return TypeArchived }

func (Registered) propertyEvent() {}
func (Renamed) propertyEvent()    {}
func (Archived) propertyEvent()   {}

var decoders = map[string]es.Decoder{
	TypeRegistered: es.DecodeAs[Registered],
	TypeRenamed:    es.DecodeAs[Renamed],
	TypeArchived:   es.DecodeAs[Archived],
}

var (
	_ Event = Registered{}
	_ Event = Renamed{}
	_ Event = Archived{}
)
