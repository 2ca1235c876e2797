package es

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/propertyhub/libs/outbox"
)

// Aggregate is the folded state of one stream.
type Aggregate[S any] struct {
	ID        string
	TenantID  string
	Version   int64
	UpdatedAt time.Time
	State     S
}

// Exists reports whether at least one event was folded.
func (a Aggregate[S]) Exists() bool { return a.Version > 0 }

// Command validates folded state and returns the events to append, or a domain error.
type Command[S any] func(state S) ([]Variant, error)

// Kind describes one aggregate type: its event table, fold, snapshot projection and
// the integration events it publishes. Apply must be total and free of side effects.
type Kind[S any] struct {
	Name      string
	Events    map[string]Decoder
	Apply     func(state S, ev Event, v Variant) (S, error)
	Project   func(agg Aggregate[S]) Snapshot
	Integrate func(agg Aggregate[S], ev Event, v Variant) ([]outbox.Message, error)
}

func (k Kind[S]) decode(ev Event) (Variant, error) {
	dec, ok := k.Events[ev.Type]
	if !ok {
		return nil, SchemaMismatch(k.Name+".load", fmt.Sprintf("unknown event type %q at %s@%d", ev.Type, ev.StreamID, ev.Version), nil)
	}
	v, err := dec(ev.Payload)
	if err != nil {
		return nil, SchemaMismatch(k.Name+".load", fmt.Sprintf("undecodable %q at %s@%d", ev.Type, ev.StreamID, ev.Version), err)
	}
	return v, nil
}

// Fold applies events on top of agg in version order.
func (k Kind[S]) Fold(agg Aggregate[S], events []Event) (Aggregate[S], error) {
	for _, ev := range events {
		next, _, err := k.step(agg, ev)
		if err != nil {
			return agg, err
		}
		agg = next
	}
	return agg, nil
}

func (k Kind[S]) step(agg Aggregate[S], ev Event) (Aggregate[S], Variant, error) {
	if ev.Version != agg.Version+1 {
		return agg, nil, SchemaMismatch(k.Name+".load", fmt.Sprintf("stream %s jumps from version %d to %d", ev.StreamID, agg.Version, ev.Version), nil)
	}
	v, err := k.decode(ev)
	if err != nil {
		return agg, nil, err
	}
	state, err := k.Apply(agg.State, ev, v)
	if err != nil {
		return agg, nil, err
	}
	if agg.ID == "" {
		agg.ID = ev.StreamID
		agg.TenantID = ev.TenantID
	}
	agg.State = state
	agg.Version = ev.Version
	agg.UpdatedAt = ev.OccurredAt
	return agg, v, nil
}

// Execute runs cmd against agg and stamps the resulting variants as the next events of
// the stream. It does not persist anything.
func (k Kind[S]) Execute(agg Aggregate[S], cmd Command[S], now time.Time) ([]Event, error) {
	variants, err := cmd(agg.State)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, nil
	}
	// Postgres keeps microseconds; truncating here keeps folded state identical before
	// and after a round trip.
	occurred := now.UTC().Truncate(time.Microsecond)
	events := make([]Event, 0, len(variants))
	for i, v := range variants {
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: encode %s: %w", k.Name, v.EventType(), err)
		}
		if _, ok := k.Events[v.EventType()]; !ok {
			return nil, SchemaMismatch(k.Name+".execute", fmt.Sprintf("command emitted unregistered event %q", v.EventType()), nil)
		}
		events = append(events, Event{
			ID:         uuid.NewString(),
			StreamID:   agg.ID,
			TenantID:   agg.TenantID,
			Kind:       k.Name,
			Version:    agg.Version + int64(i) + 1,
			Type:       v.EventType(),
			OccurredAt: occurred,
			Payload:    payload,
		})
	}
	return events, nil
}
