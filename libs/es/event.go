package es

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is an immutable fact appended to a stream. Versions start at 1 and have no gaps.
type Event struct {
	ID         string
	StreamID   string
	TenantID   string
	Kind       string
	Version    int64
	Type       string
	OccurredAt time.Time
	Payload    json.RawMessage
}

// Variant is one member of an aggregate kind's closed set of events.
type Variant interface {
	EventType() string
}

// Decoder turns a stored payload back into its typed variant.
type Decoder func(payload json.RawMessage) (Variant, error)

// DecodeAs is the Decoder for variants that round-trip through encoding/json.
func DecodeAs[V Variant](payload json.RawMessage) (Variant, error) {
	var v V
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// UnknownVariant is returned by fold functions from their default branch.
func UnknownVariant(kind string, v Variant) error {
	return SchemaMismatch(kind+".apply", fmt.Sprintf("no fold for event %T", v), nil)
}
