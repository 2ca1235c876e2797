package organization

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/md-rashed-zaman/propertyhub/libs/es"
)

const maxNameLength = 120

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Slugify lowercases name and joins its alphanumeric runs with dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
		default:
			dash = true
		}
	}
	return b.String()
}

func normalize(op, name, slug string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", es.Violation(op, "name_required", "name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", "", es.Violation(op, "name_too_long", "name is longer than 120 characters")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if !slugPattern.MatchString(slug) {
		return "", "", es.Violation(op, "slug_invalid", "slug must be lowercase letters, digits and single dashes")
	}
	return name, slug, nil
}

// Create registers a new organization and activates it.
func Create(name, slug string) es.Command[State] {
	return func(s State) ([]es.Variant, error) {
		const op = "organization.create"
		if s.Status != "" {
			return nil, es.Violation(op, "already_exists", "organization already exists")
		}
		name, slug, err := normalize(op, name, slug)
		if err != nil {
			return nil, err
		}
		return []es.Variant{Created{Name: name, Slug: slug}, Activated{}}, nil
	}
}

// Rename changes the display name and slug. Renaming to the current values is a no-op.
func Rename(name, slug string) es.Command[State] {
	return func(s State) ([]es.Variant, error) {
		const op = "organization.rename"
		if err := es.RequireStatus(op, s.Status, es.StatusActive, es.StatusSuspended); err != nil {
			return nil, err
		}
		name, slug, err := normalize(op, name, slug)
		if err != nil {
			return nil, err
		}
		if name == s.Name && slug == s.Slug {
			return nil, nil
		}
		return []es.Variant{Renamed{Name: name, Slug: slug}}, nil
	}
}

func Suspend(reason string) es.Command[State] {
	return func(s State) ([]es.Variant, error) {
		const op = "organization.suspend"
		if err := es.Transition(op, s.Status, es.StatusSuspended); err != nil {
			return nil, err
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return nil, es.Violation(op, "reason_required", "suspension reason is required")
		}
		return []es.Variant{Suspended{Reason: reason}}, nil
	}
}

func Reactivate() es.Command[State] {
	return func(s State) ([]es.Variant, error) {
		const op = "organization.reactivate"
		if s.Status != es.StatusSuspended && !s.Status.Terminal() {
			return nil, es.Violation(op, "not_suspended", "organization is not suspended")
		}
		if err := es.Transition(op, s.Status, es.StatusActive); err != nil {
			return nil, err
		}
		return []es.Variant{Reactivated{}}, nil
	}
}

func Delete() es.Command[State] {
	return func(s State) ([]es.Variant, error) {
		if err := es.Transition("organization.delete", s.Status, es.StatusDeleted); err != nil {
			return nil, err
		}
		return []es.Variant{Deleted{}}, nil
	}
}
