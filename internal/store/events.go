package store

import (
	"context"
	"fmt"
	"time"

	"github.com/myrhythm/rhythmd/internal/action"
)

// Event is a calendar entry. ActionID links back to the action a
// scheduled event was created for; it is empty for external events.
type Event struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	ActionID        *string   `db:"action_id" json:"action_id,omitempty"`
	Title           string    `db:"title" json:"title"`
	Date            string    `db:"date" json:"date"` // YYYY-MM-DD
	Time            string    `db:"time" json:"time"` // HH:MM
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

const insertEventSQL = `
	INSERT INTO events (
		id, user_id, action_id, title, date, time, duration_minutes, created_at
	) VALUES (
		:id, :user_id, :action_id, :title, :date, :time, :duration_minutes, :created_at
	)`

// InsertEvent writes a single calendar event.
func (s *Store) InsertEvent(ctx context.Context, ev Event) error {
	if _, err := s.db.NamedExecContext(ctx, insertEventSQL, ev); err != nil {
		return fmt.Errorf("inserting event %s: %w", ev.ID, err)
	}
	return nil
}

// EventsForUser returns a user's events with dates in [from, to],
// inclusive, ordered by date then time. Dates are YYYY-MM-DD strings so
// lexicographic comparison is chronological.
func (s *Store) EventsForUser(ctx context.Context, userID, from, to string) ([]Event, error) {
	var events []Event
	err := s.db.SelectContext(ctx, &events, `
		SELECT * FROM events
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date, time`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying events for user %s: %w", userID, err)
	}
	return events, nil
}

// ScheduleAction creates the calendar event and moves the action to
// scheduled in one transaction. The action records the slot and the event
// ID; a failed transition rolls the event back out.
func (s *Store) ScheduleAction(ctx context.Context, actionID string, ev Event) (*action.Stored, error) {
	a, err := s.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if err := a.Transition(action.StatusScheduled, ev.ID); err != nil {
		return nil, err
	}
	a.ScheduledDate = ev.Date
	a.ScheduledTime = ev.Time
	a.UpdatedAt = time.Now().UTC()

	ev.ActionID = &actionID

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertEventSQL, ev); err != nil {
		return nil, fmt.Errorf("inserting event %s: %w", ev.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE actions
		SET status = ?, scheduled_date = ?, scheduled_time = ?, calendar_event_id = ?, updated_at = ?
		WHERE id = ?`,
		string(a.Status), a.ScheduledDate, a.ScheduledTime, a.CalendarEventID, a.UpdatedAt, actionID)
	if err != nil {
		return nil, fmt.Errorf("scheduling action %s: %w", actionID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing schedule for action %s: %w", actionID, err)
	}
	return a, nil
}
