// Package action defines the commitment domain model: candidate actions
// produced by extraction, persisted actions with workflow status, and the
// validator that gates candidates before they reach storage.
package action

import (
	"time"
)

// Category classifies an extracted commitment.
type Category string

const (
	CategoryAction    Category = "action"
	CategoryWatchOut  Category = "watch_out"
	CategoryDependsOn Category = "depends_on"
	CategoryNote      Category = "note"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryAction, CategoryWatchOut, CategoryDependsOn, CategoryNote:
		return true
	}
	return false
}

// MicroTask is a small templated step toward completing an action.
type MicroTask struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Candidate is an unvalidated unit of commitment extracted from free text.
//
// Invariants (enforced by the Validator, not the constructor): Text is
// non-empty and at most 200 characters, Priority is in [1,5], and
// Confidence is in [0,1].
type Candidate struct {
	Text           string     `json:"text"`
	Category       Category   `json:"category"`
	AssignedTo     string     `json:"assigned_to"`
	DueContext     string     `json:"due_context"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	CompletionDate *time.Time `json:"completion_date,omitempty"`
	Priority       int        `json:"priority_level"`
	Confidence     float64    `json:"confidence_score"`

	// Enrichment fields are best-effort scaffolding. The rule-based
	// extractor fills them from templates, not semantics.
	SuccessCriteria string      `json:"success_criteria,omitempty"`
	Motivation      string      `json:"motivation_statement,omitempty"`
	MicroTasks      []MicroTask `json:"micro_tasks,omitempty"`
}

// ConversationSummary is the summary shape returned alongside extracted
// actions. The rule-based path produces a best-effort version of it.
type ConversationSummary struct {
	KeyTopics            []string `json:"key_topics"`
	MainDecisions        []string `json:"main_decisions"`
	ParticipantsMentioned []string `json:"participants_mentioned"`
	OverallTone          string   `json:"overall_tone"`
	EmpoweringTakeaway   string   `json:"empowering_takeaway"`
}

// Stored is a persisted, validated Candidate with ownership and workflow
// fields. The extractor never mutates a Stored action after insert.
type Stored struct {
	Candidate

	ID        string `json:"id" db:"id"`
	MeetingID string `json:"meeting_id" db:"meeting_id"`
	UserID    string `json:"user_id" db:"user_id"`
	CreatedBy string `json:"created_by" db:"created_by"`

	Status          Status `json:"status" db:"status"`
	ScheduledDate   string `json:"scheduled_date,omitempty" db:"scheduled_date"`
	ScheduledTime   string `json:"scheduled_time,omitempty" db:"scheduled_time"`
	CalendarEventID string `json:"calendar_event_id,omitempty" db:"calendar_event_id"`

	// ExtractionMethod records which strategy produced the action,
	// for audit and debugging.
	ExtractionMethod string `json:"extraction_method" db:"extraction_method"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
