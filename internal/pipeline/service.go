// Package pipeline orchestrates the extraction flow: input validation,
// the extraction strategy chain, candidate validation, persistence, and
// scheduling on top of the stored actions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/myrhythm/rhythmd/internal/action"
	"github.com/myrhythm/rhythmd/internal/extraction"
	"github.com/myrhythm/rhythmd/internal/schedule"
	"github.com/myrhythm/rhythmd/internal/store"
)

// DefaultMaxTranscriptChars bounds the accepted transcript size.
const DefaultMaxTranscriptChars = 500000

const defaultEventMinutes = 30

// ErrAlreadyExtracted signals that a meeting has actions already; the
// pipeline runs at most once per meeting.
var ErrAlreadyExtracted = errors.New("meeting already has extracted actions")

// InputError carries the full list of request problems so callers can
// report them all at once.
type InputError struct {
	Issues []string
}

func (e *InputError) Error() string {
	return "invalid input: " + strings.Join(e.Issues, "; ")
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	InsertActions(ctx context.Context, actions []action.Stored) error
	HasActionsForMeeting(ctx context.Context, meetingID string) (bool, error)
	SaveSummary(ctx context.Context, meetingID, userID string, sum action.ConversationSummary) error
	GetActionsForMeeting(ctx context.Context, meetingID string) ([]action.Stored, error)
	GetAction(ctx context.Context, id string) (*action.Stored, error)
	UpdateStatus(ctx context.Context, id string, to action.Status, calendarEventID string) (*action.Stored, error)
	EventsForUser(ctx context.Context, userID, from, to string) ([]store.Event, error)
	ScheduleAction(ctx context.Context, actionID string, ev store.Event) (*action.Stored, error)
}

var _ Store = (*store.Store)(nil)

// RunRequest is one extraction request.
type RunRequest struct {
	Transcript string `json:"transcript"`
	MeetingID  string `json:"meeting_id"`
	UserID     string `json:"user_id"`
}

// RunResult is the outcome of a pipeline run. Confidence is the average
// candidate confidence on a 0-100 scale.
type RunResult struct {
	ActionsCount     int                        `json:"actions_count"`
	Actions          []action.Stored            `json:"actions"`
	Summary          action.ConversationSummary `json:"summary"`
	Confidence       int                        `json:"confidence"`
	Method           string                     `json:"extraction_method"`
	TranscriptLength int                        `json:"transcript_length"`
}

// Options tunes pipeline limits.
type Options struct {
	MaxTranscriptChars int
	HorizonDays        int
	SuggestionLimit    int
}

// Service wires the extraction chain, validator, store, and scheduling
// engine together.
type Service struct {
	extractor extraction.Extractor
	validator *action.Validator
	store     Store
	engine    *schedule.Engine
	logger    *zap.Logger
	clock     func() time.Time
	opts      Options
}

// NewService creates the pipeline service.
func NewService(extractor extraction.Extractor, st Store, engine *schedule.Engine, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxTranscriptChars <= 0 {
		opts.MaxTranscriptChars = DefaultMaxTranscriptChars
	}
	return &Service{
		extractor: extractor,
		validator: action.NewValidator(),
		store:     st,
		engine:    engine,
		logger:    logger,
		clock:     time.Now,
		opts:      opts,
	}
}

// WithClock fixes the service's notion of "now" for reproducible runs.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Run executes the full extraction pipeline for one meeting transcript.
// A transcript with no extractable commitments is a success with an empty
// action list; a second run for the same meeting fails with
// ErrAlreadyExtracted.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	exists, err := s.store.HasActionsForMeeting(ctx, req.MeetingID)
	if err != nil {
		return nil, fmt.Errorf("checking meeting %s: %w", req.MeetingID, err)
	}
	if exists {
		return nil, fmt.Errorf("meeting %s: %w", req.MeetingID, ErrAlreadyExtracted)
	}

	result, err := s.extractor.Extract(ctx, req.Transcript)
	if err != nil {
		return nil, fmt.Errorf("extracting actions: %w", err)
	}

	now := s.clock().UTC()
	stored := make([]action.Stored, 0, len(result.Actions))
	var confidenceSum float64
	for _, c := range result.Actions {
		v := s.validator.Validate(c)
		if !v.Valid {
			// Invalid candidates are logged and dropped, never persisted.
			s.logger.Warn("rejected candidate action",
				zap.String("meeting_id", req.MeetingID),
				zap.Int("score", v.Score),
				zap.Strings("issues", v.Issues),
			)
			continue
		}
		if v.NeedsReview {
			s.logger.Info("candidate admitted with review flag",
				zap.String("meeting_id", req.MeetingID),
				zap.Int("score", v.Score),
				zap.Strings("issues", v.Issues),
			)
		}
		stored = append(stored, action.Stored{
			Candidate:        c,
			ID:               uuid.NewString(),
			MeetingID:        req.MeetingID,
			UserID:           req.UserID,
			CreatedBy:        req.UserID,
			Status:           action.StatusNotStarted,
			ExtractionMethod: result.Method,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		confidenceSum += c.Confidence
	}

	if err := s.store.InsertActions(ctx, stored); err != nil {
		return nil, fmt.Errorf("persisting actions: %w", err)
	}
	if err := s.store.SaveSummary(ctx, req.MeetingID, req.UserID, result.Summary); err != nil {
		return nil, fmt.Errorf("persisting summary: %w", err)
	}

	confidence := 0
	if len(stored) > 0 {
		confidence = int(confidenceSum/float64(len(stored))*100 + 0.5)
	}

	s.logger.Info("extraction run complete",
		zap.String("meeting_id", req.MeetingID),
		zap.String("method", result.Method),
		zap.Int("candidates", len(result.Actions)),
		zap.Int("persisted", len(stored)),
	)

	return &RunResult{
		ActionsCount:     len(stored),
		Actions:          stored,
		Summary:          result.Summary,
		Confidence:       confidence,
		Method:           result.Method,
		TranscriptLength: len(req.Transcript),
	}, nil
}

func (s *Service) validateRequest(req RunRequest) error {
	var issues []string
	if strings.TrimSpace(req.Transcript) == "" {
		issues = append(issues, "transcript is empty")
	} else if len(req.Transcript) > s.opts.MaxTranscriptChars {
		issues = append(issues, fmt.Sprintf("transcript exceeds %d characters", s.opts.MaxTranscriptChars))
	}
	if _, err := uuid.Parse(req.MeetingID); err != nil {
		issues = append(issues, "meeting_id is not a valid UUID")
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		issues = append(issues, "user_id is not a valid UUID")
	}
	if len(issues) > 0 {
		return &InputError{Issues: issues}
	}
	return nil
}

// Suggest loads an action, maps the user's assessment answers to
// scheduling preferences, and runs the engine against their calendar.
func (s *Service) Suggest(ctx context.Context, actionID string, answers map[string]string, horizonDays, limit int) ([]schedule.Suggestion, error) {
	a, err := s.store.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if horizonDays <= 0 {
		horizonDays = s.opts.HorizonDays
	}
	if limit <= 0 {
		limit = s.opts.SuggestionLimit
	}

	pref := schedule.MapAnswers(answers)

	now := s.clock()
	from := now.Format("2006-01-02")
	to := now.AddDate(0, 0, horizonDays).Format("2006-01-02")
	stored, err := s.store.EventsForUser(ctx, a.UserID, from, to)
	if err != nil {
		return nil, err
	}
	events := make([]schedule.Event, 0, len(stored))
	for _, ev := range stored {
		events = append(events, schedule.Event{
			ID:              ev.ID,
			Title:           ev.Title,
			Date:            ev.Date,
			Time:            ev.Time,
			DurationMinutes: ev.DurationMinutes,
		})
	}

	return s.engine.Suggest(*a, pref, events, schedule.Options{
		HorizonDays: horizonDays,
		TopN:        limit,
	}), nil
}

// Accept takes a chosen slot as-is: it creates the calendar event and
// moves the action to scheduled in one transaction.
func (s *Service) Accept(ctx context.Context, actionID, date, timeOfDay, title string) (*action.Stored, *store.Event, error) {
	a, err := s.store.GetAction(ctx, actionID)
	if err != nil {
		return nil, nil, err
	}
	if title == "" {
		title = a.Text
	}

	ev := store.Event{
		ID:              uuid.NewString(),
		UserID:          a.UserID,
		Title:           title,
		Date:            date,
		Time:            timeOfDay,
		DurationMinutes: defaultEventMinutes,
		CreatedAt:       s.clock().UTC(),
	}
	updated, err := s.store.ScheduleAction(ctx, actionID, ev)
	if err != nil {
		return nil, nil, err
	}
	return updated, &ev, nil
}

// UpdateStatus moves an action through its workflow via the store.
func (s *Service) UpdateStatus(ctx context.Context, actionID string, to action.Status, calendarEventID string) (*action.Stored, error) {
	return s.store.UpdateStatus(ctx, actionID, to, calendarEventID)
}

// ActionsForMeeting lists a meeting's persisted actions.
func (s *Service) ActionsForMeeting(ctx context.Context, meetingID string) ([]action.Stored, error) {
	return s.store.GetActionsForMeeting(ctx, meetingID)
}
