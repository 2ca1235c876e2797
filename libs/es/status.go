package es

// Status is the lifecycle shared by every aggregate kind.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusSuspended    Status = "suspended"
	StatusDeleted      Status = "deleted"
)

var transitions = map[Status][]Status{
	"":                 {StatusInitializing, StatusActive},
	StatusInitializing: {StatusActive, StatusDeleted},
	StatusActive:       {StatusSuspended, StatusDeleted},
	StatusSuspended:    {StatusActive, StatusDeleted},
}

func (s Status) Terminal() bool { return s == StatusDeleted }

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition guards a status change during command validation.
func Transition(op string, from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	if from.Terminal() {
		return Violation(op, "aggregate_deleted", "aggregate is deleted")
	}
	return Violation(op, "invalid_status_transition", "cannot move from "+statusName(from)+" to "+string(to))
}

// RequireStatus guards commands that do not change status.
func RequireStatus(op string, current Status, allowed ...Status) error {
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	if current.Terminal() {
		return Violation(op, "aggregate_deleted", "aggregate is deleted")
	}
	return Violation(op, "invalid_status", "operation not allowed while "+statusName(current))
}

func statusName(s Status) string {
	if s == "" {
		return "new"
	}
	return string(s)
}
