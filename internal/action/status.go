package action

import "fmt"

// Status is the workflow state of a stored action.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// statusRank orders the forward progression of the workflow. Rejected is
// outside the progression and reachable from any non-terminal state.
var statusRank = map[Status]int{
	StatusNotStarted: 0,
	StatusScheduled:  1,
	StatusConfirmed:  2,
	StatusCompleted:  3,
}

// ValidStatus reports whether s is a known workflow status.
func ValidStatus(s Status) bool {
	if s == StatusRejected {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether an action may move from one status to
// another. Forward moves along not_started → scheduled → confirmed →
// completed are allowed; backward moves are not. Any non-terminal state
// may move to rejected. Completed and rejected are terminal.
func CanTransition(from, to Status) bool {
	if !ValidStatus(from) || !ValidStatus(to) || from == to {
		return false
	}
	if from == StatusCompleted || from == StatusRejected {
		return false
	}
	if to == StatusRejected {
		return true
	}
	return statusRank[to] > statusRank[from]
}

// Transition moves the stored action to a new status. Moving to scheduled
// requires a non-empty calendar event ID; the ID is recorded on the action.
func (s *Stored) Transition(to Status, calendarEventID string) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("invalid status transition %s -> %s", s.Status, to)
	}
	if to == StatusScheduled && calendarEventID == "" {
		return fmt.Errorf("transition to %s requires a calendar event id", StatusScheduled)
	}
	s.Status = to
	if calendarEventID != "" {
		s.CalendarEventID = calendarEventID
	}
	return nil
}
