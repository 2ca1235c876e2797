package es_test

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/md-rashed-zaman/propertyhub/libs/es"
)

func teamHistory(names []string, closed bool) []es.Event {
	var variants []es.Variant
	variants = append(variants, teamOpened{Name: "Start", Slug: "start"}, teamActivated{})
	for _, n := range names {
		variants = append(variants, teamRenamed{Name: n, Slug: slugify(n)})
	}
	if closed {
		variants = append(variants, teamClosed{})
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := make([]es.Event, 0, len(variants))
	for i, v := range variants {
		payload, _ := json.Marshal(v)
		events = append(events, es.Event{
			StreamID:   "team-1",
			TenantID:   tenant,
			Kind:       "team",
			Version:    int64(i + 1),
			Type:       v.EventType(),
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
			Payload:    payload,
		})
	}
	return events
}

func TestFoldIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("folding the same events twice yields the same aggregate", prop.ForAll(
		func(names []string, closed bool) bool {
			events := teamHistory(names, closed)
			a, errA := teamKind.Fold(es.Aggregate[team]{}, events)
			b, errB := teamKind.Fold(es.Aggregate[team]{}, events)
			return errA == nil && errB == nil && reflect.DeepEqual(a, b)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.Bool(),
	))

	properties.Property("folding in two steps equals folding at once", prop.ForAll(
		func(names []string, split int) bool {
			events := teamHistory(names, false)
			k := split % (len(events) + 1)
			whole, err := teamKind.Fold(es.Aggregate[team]{}, events)
			if err != nil {
				return false
			}
			head, err := teamKind.Fold(es.Aggregate[team]{}, events[:k])
			if err != nil {
				return false
			}
			tail, err := teamKind.Fold(head, events[k:])
			if err != nil {
				return false
			}
			return reflect.DeepEqual(whole, tail)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(0, 1000),
	))

	properties.Property("version equals event count", prop.ForAll(
		func(names []string) bool {
			events := teamHistory(names, false)
			agg, err := teamKind.Fold(es.Aggregate[team]{}, events)
			return err == nil && agg.Version == int64(len(events)) && agg.State.Renames == len(names)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
