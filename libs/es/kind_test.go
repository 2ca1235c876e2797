package es_test

import (
	"strings"

	"github.com/md-rashed-zaman/propertyhub/libs/es"
	"github.com/md-rashed-zaman/propertyhub/libs/outbox"
)

// team is a small aggregate used to exercise the repository.
type team struct {
	Status  es.Status
	Name    string
	Slug    string
	Renames int
}

type teamOpened struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type teamActivated struct{}

type teamRenamed struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type teamClosed struct{}

// teamUnfolded is registered but has no fold branch.
type teamUnfolded struct{}

func (teamOpened) EventType() string    { return "team.opened" }
func (teamActivated) EventType() string { return "team.activated" }
func (teamRenamed) EventType() string   { return "team.renamed" }
func (teamClosed) EventType() string    { return "team.closed" }
func (teamUnfolded) EventType() string  { return "team.unfolded" }

var teamKind = es.Kind[team]{
	Name: "team",
	Events: map[string]es.Decoder{
		"team.opened":    es.DecodeAs[teamOpened],
		"team.activated": es.DecodeAs[teamActivated],
		"team.renamed":   es.DecodeAs[teamRenamed],
		"team.closed":    es.DecodeAs[teamClosed],
		"team.unfolded":  es.DecodeAs[teamUnfolded],
	},
	Apply: func(s team, _ es.Event, v es.Variant) (team, error) {
		switch e := v.(type) {
		case teamOpened:
			s.Status = es.StatusInitializing
			s.Name, s.Slug = e.Name, e.Slug
		case teamActivated:
			s.Status = es.StatusActive
		case teamRenamed:
			s.Name, s.Slug = e.Name, e.Slug
			s.Renames++
		case teamClosed:
			s.Status = es.StatusDeleted
		default:
			return s, es.UnknownVariant("team", v)
		}
		return s, nil
	},
	Project: func(a es.Aggregate[team]) es.Snapshot {
		return es.Snapshot{
			Status:     a.State.Status,
			UniqueKey:  a.State.Slug,
			Attributes: map[string]any{"name": a.State.Name, "slug": a.State.Slug},
		}
	},
	Integrate: func(a es.Aggregate[team], ev es.Event, v es.Variant) ([]outbox.Message, error) {
		if _, ok := v.(teamRenamed); !ok {
			return nil, nil
		}
		return []outbox.Message{{
			EventType:     "team.renamed.v1",
			Destination:   "team.renamed.v1",
			SchemaVersion: "1.0.0",
			Payload:       []byte(`{"name":"` + a.State.Name + `"}`),
		}}, nil
	},
}

func openTeam(name string) es.Command[team] {
	return func(s team) ([]es.Variant, error) {
		if err := es.Transition("team.open", s.Status, es.StatusInitializing); err != nil {
			return nil, err
		}
		return []es.Variant{teamOpened{Name: name, Slug: slugify(name)}}, nil
	}
}

func activateTeam(s team) ([]es.Variant, error) {
	if err := es.Transition("team.activate", s.Status, es.StatusActive); err != nil {
		return nil, err
	}
	return []es.Variant{teamActivated{}}, nil
}

func renameTeam(name string) es.Command[team] {
	return func(s team) ([]es.Variant, error) {
		if err := es.RequireStatus("team.rename", s.Status, es.StatusActive, es.StatusInitializing); err != nil {
			return nil, err
		}
		if strings.TrimSpace(name) == "" {
			return nil, es.Violation("team.rename", "name_required", "name is required")
		}
		if name == s.Name {
			return nil, nil
		}
		return []es.Variant{teamRenamed{Name: name, Slug: slugify(name)}}, nil
	}
}

func closeTeam(s team) ([]es.Variant, error) {
	if err := es.Transition("team.close", s.Status, es.StatusDeleted); err != nil {
		return nil, err
	}
	return []es.Variant{teamClosed{}}, nil
}

func emitUnfolded(team) ([]es.Variant, error) {
	return []es.Variant{teamUnfolded{}}, nil
}

func slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}
