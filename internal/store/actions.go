package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/myrhythm/rhythmd/internal/action"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// actionRow is the flat database shape of an action.Stored.
type actionRow struct {
	ID              string     `db:"id"`
	MeetingID       string     `db:"meeting_id"`
	UserID          string     `db:"user_id"`
	CreatedBy       string     `db:"created_by"`
	Text            string     `db:"text"`
	Category        string     `db:"category"`
	AssignedTo      string     `db:"assigned_to"`
	DueContext      string     `db:"due_context"`
	StartDate       *time.Time `db:"start_date"`
	EndDate         *time.Time `db:"end_date"`
	CompletionDate  *time.Time `db:"completion_date"`
	Priority        int        `db:"priority"`
	Confidence      float64    `db:"confidence"`
	SuccessCriteria string     `db:"success_criteria"`
	Motivation      string     `db:"motivation"`
	MicroTasks      string     `db:"micro_tasks"`
	Status          string     `db:"status"`
	ScheduledDate   string     `db:"scheduled_date"`
	ScheduledTime   string     `db:"scheduled_time"`
	CalendarEventID string     `db:"calendar_event_id"`
	ExtractionMethod string    `db:"extraction_method"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func rowFromStored(a action.Stored) (actionRow, error) {
	microTasks := a.MicroTasks
	if microTasks == nil {
		microTasks = []action.MicroTask{}
	}
	mt, err := json.Marshal(microTasks)
	if err != nil {
		return actionRow{}, fmt.Errorf("marshaling micro_tasks for action %s: %w", a.ID, err)
	}
	return actionRow{
		ID:               a.ID,
		MeetingID:        a.MeetingID,
		UserID:           a.UserID,
		CreatedBy:        a.CreatedBy,
		Text:             a.Text,
		Category:         string(a.Category),
		AssignedTo:       a.AssignedTo,
		DueContext:       a.DueContext,
		StartDate:        a.StartDate,
		EndDate:          a.EndDate,
		CompletionDate:   a.CompletionDate,
		Priority:         a.Priority,
		Confidence:       a.Confidence,
		SuccessCriteria:  a.SuccessCriteria,
		Motivation:       a.Motivation,
		MicroTasks:       string(mt),
		Status:           string(a.Status),
		ScheduledDate:    a.ScheduledDate,
		ScheduledTime:    a.ScheduledTime,
		CalendarEventID:  a.CalendarEventID,
		ExtractionMethod: a.ExtractionMethod,
		CreatedAt:        a.CreatedAt.UTC(),
		UpdatedAt:        a.UpdatedAt.UTC(),
	}, nil
}

func (r actionRow) toStored() (action.Stored, error) {
	var microTasks []action.MicroTask
	if r.MicroTasks != "" {
		if err := json.Unmarshal([]byte(r.MicroTasks), &microTasks); err != nil {
			return action.Stored{}, fmt.Errorf("unmarshaling micro_tasks for action %s: %w", r.ID, err)
		}
	}
	return action.Stored{
		Candidate: action.Candidate{
			Text:            r.Text,
			Category:        action.Category(r.Category),
			AssignedTo:      r.AssignedTo,
			DueContext:      r.DueContext,
			StartDate:       r.StartDate,
			EndDate:         r.EndDate,
			CompletionDate:  r.CompletionDate,
			Priority:        r.Priority,
			Confidence:      r.Confidence,
			SuccessCriteria: r.SuccessCriteria,
			Motivation:      r.Motivation,
			MicroTasks:      microTasks,
		},
		ID:               r.ID,
		MeetingID:        r.MeetingID,
		UserID:           r.UserID,
		CreatedBy:        r.CreatedBy,
		Status:           action.Status(r.Status),
		ScheduledDate:    r.ScheduledDate,
		ScheduledTime:    r.ScheduledTime,
		CalendarEventID:  r.CalendarEventID,
		ExtractionMethod: r.ExtractionMethod,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}, nil
}

const insertActionSQL = `
	INSERT INTO actions (
		id, meeting_id, user_id, created_by,
		text, category, assigned_to, due_context,
		start_date, end_date, completion_date,
		priority, confidence,
		success_criteria, motivation, micro_tasks,
		status, scheduled_date, scheduled_time, calendar_event_id,
		extraction_method, created_at, updated_at
	) VALUES (
		:id, :meeting_id, :user_id, :created_by,
		:text, :category, :assigned_to, :due_context,
		:start_date, :end_date, :completion_date,
		:priority, :confidence,
		:success_criteria, :motivation, :micro_tasks,
		:status, :scheduled_date, :scheduled_time, :calendar_event_id,
		:extraction_method, :created_at, :updated_at
	)`

// InsertActions writes a batch of actions in one transaction. All rows
// land or none do.
func (s *Store) InsertActions(ctx context.Context, actions []action.Stored) error {
	if len(actions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range actions {
		row, err := rowFromStored(a)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, insertActionSQL, row); err != nil {
			return fmt.Errorf("inserting action %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// HasActionsForMeeting reports whether any actions already exist for the
// given meeting. Backs the one-extraction-per-meeting guarantee.
func (s *Store) HasActionsForMeeting(ctx context.Context, meetingID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM actions WHERE meeting_id = ?", meetingID)
	if err != nil {
		return false, fmt.Errorf("counting actions for meeting %s: %w", meetingID, err)
	}
	return count > 0, nil
}

// GetActionsForMeeting returns all actions for a meeting, oldest first.
func (s *Store) GetActionsForMeeting(ctx context.Context, meetingID string) ([]action.Stored, error) {
	var rows []actionRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM actions WHERE meeting_id = ? ORDER BY created_at, id", meetingID)
	if err != nil {
		return nil, fmt.Errorf("querying actions for meeting %s: %w", meetingID, err)
	}

	actions := make([]action.Stored, 0, len(rows))
	for _, r := range rows {
		a, err := r.toStored()
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// GetAction returns a single action by ID, or ErrNotFound.
func (s *Store) GetAction(ctx context.Context, id string) (*action.Stored, error) {
	var row actionRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM actions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying action %s: %w", id, err)
	}

	a, err := row.toStored()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateStatus moves an action through its workflow. The transition rules
// are enforced here; an illegal move leaves the row untouched.
func (s *Store) UpdateStatus(ctx context.Context, id string, to action.Status, calendarEventID string) (*action.Stored, error) {
	a, err := s.GetAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.Transition(to, calendarEventID); err != nil {
		return nil, err
	}
	a.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		"UPDATE actions SET status = ?, calendar_event_id = ?, updated_at = ? WHERE id = ?",
		string(a.Status), a.CalendarEventID, a.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("updating status for action %s: %w", id, err)
	}
	return a, nil
}

// SaveSummary stores (or replaces) the conversation summary for a meeting.
func (s *Store) SaveSummary(ctx context.Context, meetingID, userID string, sum action.ConversationSummary) error {
	topics, err := json.Marshal(emptyIfNil(sum.KeyTopics))
	if err != nil {
		return fmt.Errorf("marshaling key_topics: %w", err)
	}
	decisions, err := json.Marshal(emptyIfNil(sum.MainDecisions))
	if err != nil {
		return fmt.Errorf("marshaling main_decisions: %w", err)
	}
	participants, err := json.Marshal(emptyIfNil(sum.ParticipantsMentioned))
	if err != nil {
		return fmt.Errorf("marshaling participants_mentioned: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO summaries (
			meeting_id, user_id, key_topics, main_decisions,
			participants_mentioned, overall_tone, empowering_takeaway, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meetingID, userID, string(topics), string(decisions),
		string(participants), sum.OverallTone, sum.EmpoweringTakeaway, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving summary for meeting %s: %w", meetingID, err)
	}
	return nil
}

// GetSummary returns the stored summary for a meeting, or ErrNotFound.
func (s *Store) GetSummary(ctx context.Context, meetingID string) (*action.ConversationSummary, error) {
	var row struct {
		KeyTopics             string `db:"key_topics"`
		MainDecisions         string `db:"main_decisions"`
		ParticipantsMentioned string `db:"participants_mentioned"`
		OverallTone           string `db:"overall_tone"`
		EmpoweringTakeaway    string `db:"empowering_takeaway"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT key_topics, main_decisions, participants_mentioned,
		       overall_tone, empowering_takeaway
		FROM summaries WHERE meeting_id = ?`, meetingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary for meeting %s: %w", meetingID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying summary for meeting %s: %w", meetingID, err)
	}

	sum := action.ConversationSummary{
		OverallTone:        row.OverallTone,
		EmpoweringTakeaway: row.EmpoweringTakeaway,
	}
	if err := json.Unmarshal([]byte(row.KeyTopics), &sum.KeyTopics); err != nil {
		return nil, fmt.Errorf("unmarshaling key_topics: %w", err)
	}
	if err := json.Unmarshal([]byte(row.MainDecisions), &sum.MainDecisions); err != nil {
		return nil, fmt.Errorf("unmarshaling main_decisions: %w", err)
	}
	if err := json.Unmarshal([]byte(row.ParticipantsMentioned), &sum.ParticipantsMentioned); err != nil {
		return nil, fmt.Errorf("unmarshaling participants_mentioned: %w", err)
	}
	return &sum, nil
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
