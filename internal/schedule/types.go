// Package schedule maps assessment answers to scheduling preferences and
// generates ranked time-slot suggestions for actions, scored against the
// user's energy profile and existing calendar events.
package schedule

// EnergyPeak is a time-of-day window with higher self-reported energy.
type EnergyPeak string

const (
	PeakMorning   EnergyPeak = "morning"
	PeakAfternoon EnergyPeak = "afternoon"
	PeakEvening   EnergyPeak = "evening"
)

// Preference is the derived scheduling configuration for one user. It is
// produced by MapAnswers and immutable within a scheduling run.
type Preference struct {
	// ProductiveHours are candidate start times, "HH:MM", ordered by
	// preference.
	ProductiveHours []string `json:"productive_hours"`
	// EnergyPeaks are the day parts the user reports energy in.
	EnergyPeaks []EnergyPeak `json:"energy_peaks"`
	// SessionMinutes is the preferred working-session duration.
	SessionMinutes int `json:"preferred_duration_minutes"`
	// DoNotDisturb lists "HH:MM-HH:MM" ranges to avoid.
	DoNotDisturb []string `json:"do_not_disturb"`
}

// ConflictLevel classifies the overlap between a proposed slot and
// existing calendar events.
type ConflictLevel string

const (
	ConflictNone ConflictLevel = "none"
	ConflictLow  ConflictLevel = "low"
	ConflictHigh ConflictLevel = "high"
)

// Event is an existing calendar entry the engine must schedule around.
type Event struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Date            string `json:"date"` // YYYY-MM-DD
	Time            string `json:"time"` // HH:MM
	DurationMinutes int    `json:"duration_minutes"`
}

// Suggestion is one ranked candidate slot. Suggestions are ephemeral:
// nothing is persisted until the caller accepts one.
type Suggestion struct {
	Date        string        `json:"date"`
	Time        string        `json:"time"`
	Confidence  int           `json:"confidence"` // 0-100
	Conflict    ConflictLevel `json:"conflict_level"`
	Reason      string        `json:"reason"`
	EnergyMatch string        `json:"energy_match,omitempty"`
}
