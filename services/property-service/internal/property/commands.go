package property

import (
	"strings"
	"unicode/utf8"

	"github.com/md-rashed-zaman/propertyhub/libs/es"
)

const maxNameLength = 200

func cleanName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", es.Violation(op, "name_required", "name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", es.Violation(op, "name_too_long", "name is longer than 200 characters")
	}
	return name, nil
}

// Register records a new property. The owning organization has already been checked
// against its reference copy.
func Register(organizationID, name, address string) es.Command[State] {
	return func(s State) ([]es.Variant, error) {
		const op = "property.register"
		if s.Status != "" {
			return nil, es.Violation(op, "already_exists", "property already exists")
		}
		name, err := cleanName(op, name)
		if err != nil {
			return nil, err
		}
		address = strings.TrimSpace(address)
		if address == "" {
			return nil, es.Violation(op, "address_required", "address is required")
		}
		return []es.Variant{Registered{OrganizationID: organizationID, Name: name, Address: address}}, nil
	}
}

func Rename(name string) es.Command[State] {
	return func(s State) ([]es.Variant, error) {
		const op = "property.rename"
		if err := es.RequireStatus(op, s.Status, es.StatusActive); err != nil {
			return nil, err
		}
		name, err := cleanName(op, name)
		if err != nil {
			return nil, err
		}
		if name == s.Name {
			return nil, nil
		}
		return []es.Variant{Renamed{Name: name}}, nil
	}
}

func Archive(reason string) es.Command[State] {
	return func(s State) ([]es.Variant, error) {
		if err := es.Transition("property.archive", s.Status, es.StatusDeleted); err != nil {
			return nil, err
		}
		return []es.Variant{Archived{Reason: strings.TrimSpace(reason)}}, nil
	}
}
