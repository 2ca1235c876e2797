// Package events defines the JSON body of every integration event on the broker.
package events

import (
	"encoding/json"
	"errors"
	"time"
)

// Envelope wraps an integration event. Data holds the producer's snapshot of the
// aggregate after the event, so consumers never need a follow-up read.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion string          `json:"schema_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	TenantID      string          `json:"tenant_id"`
	StreamID      string          `json:"stream_id"`
	StreamVersion int64           `json:"stream_version"`
	Data          json.RawMessage `json:"data"`
}

func New(eventID, eventType, schemaVersion, tenantID, streamID string, streamVersion int64, occurredAt time.Time, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		EventID:       eventID,
		EventType:     eventType,
		SchemaVersion: schemaVersion,
		OccurredAt:    occurredAt.UTC(),
		TenantID:      tenantID,
		StreamID:      streamID,
		StreamVersion: streamVersion,
		Data:          raw,
	})
}

// Decode reads an envelope. Unknown fields are ignored.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, err
	}
	if env.EventID == "" || env.StreamID == "" || len(env.Data) == 0 {
		return Envelope{}, errors.New("envelope missing event_id, stream_id or data")
	}
	return env, nil
}
