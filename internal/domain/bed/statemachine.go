package bed

import (
	"strings"

	"github.com/bedtrack/bedtrack/internal/platform/apperr"
)

var transitions = map[Status][]Status{
	StatusAvailable:   {StatusOccupied, StatusReserved, StatusMaintenance},
	StatusOccupied:    {StatusCleaning, StatusMaintenance},
	StatusCleaning:    {StatusAvailable, StatusMaintenance},
	StatusReserved:    {StatusOccupied, StatusAvailable, StatusMaintenance},
	StatusMaintenance: {StatusAvailable},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// AllowedTransitions returns the statuses reachable from from.
func AllowedTransitions(from Status) []Status {
	out := make([]Status, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an invalid_transition error naming both ends and
// the allowed set when from -> to is not in the table.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	allowed := make([]string, 0, len(transitions[from]))
	for _, s := range transitions[from] {
		allowed = append(allowed, string(s))
	}
	return apperr.InvalidTransition("Invalid bed status transition from %s to %s (allowed: %s)",
		from, to, strings.Join(allowed, ", "))
}
