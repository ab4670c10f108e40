package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myrhythm/rhythmd/internal/action"
	"github.com/myrhythm/rhythmd/internal/extraction"
	"github.com/myrhythm/rhythmd/internal/schedule"
	"github.com/myrhythm/rhythmd/internal/store"
)

const (
	testMeetingID = "11111111-1111-1111-1111-111111111111"
	testUserID    = "22222222-2222-2222-2222-222222222222"
)

// Wednesday, mid-afternoon.
func fixedClock() time.Time {
	return time.Date(2025, 6, 11, 15, 30, 0, 0, time.UTC)
}

// stubExtractor returns a canned result.
type stubExtractor struct {
	result *extraction.Result
	err    error
}

func (s *stubExtractor) Extract(_ context.Context, _ string) (*extraction.Result, error) {
	return s.result, s.err
}

func newTestService(t *testing.T, extractor extraction.Extractor) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "rhythmd.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if extractor == nil {
		rules := extraction.NewRuleExtractor(extraction.DefaultRuleConfig(), nil).WithClock(fixedClock)
		extractor = extraction.NewChain(nil, rules)
	}
	engine := schedule.NewEngine(nil).WithClock(fixedClock)
	svc := NewService(extractor, st, engine, nil, Options{HorizonDays: 7, SuggestionLimit: 5}).WithClock(fixedClock)
	return svc, st
}

func TestService_Run(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	result, err := svc.Run(ctx, RunRequest{
		Transcript: "I need to call Dr. Smith by Friday. I'll also email the insurance company today.",
		MeetingID:  testMeetingID,
		UserID:     testUserID,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ActionsCount)
	assert.Equal(t, extraction.MethodRules, result.Method)
	assert.Greater(t, result.Confidence, 0)
	assert.LessOrEqual(t, result.Confidence, 100)

	persisted, err := st.GetActionsForMeeting(ctx, testMeetingID)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	for _, a := range persisted {
		assert.Equal(t, action.StatusNotStarted, a.Status)
		assert.Equal(t, testUserID, a.UserID)
		assert.Equal(t, extraction.MethodRules, a.ExtractionMethod)
		assert.NotEmpty(t, a.ID)
	}

	sum, err := st.GetSummary(ctx, testMeetingID)
	require.NoError(t, err)
	assert.NotEmpty(t, sum.EmpoweringTakeaway)
}

func TestService_Run_InputValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Run(context.Background(), RunRequest{Transcript: "  ", MeetingID: "nope", UserID: "also nope"})
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Len(t, inputErr.Issues, 3)
}

func TestService_Run_TranscriptTooLong(t *testing.T) {
	svc, _ := newTestService(t, nil)
	svc.opts.MaxTranscriptChars = 100

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	_, err := svc.Run(context.Background(), RunRequest{Transcript: string(long), MeetingID: testMeetingID, UserID: testUserID})
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
}

func TestService_Run_OncePerMeeting(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	req := RunRequest{
		Transcript: "I will call the pharmacy tomorrow.",
		MeetingID:  testMeetingID,
		UserID:     testUserID,
	}

	_, err := svc.Run(ctx, req)
	require.NoError(t, err)

	_, err = svc.Run(ctx, req)
	assert.ErrorIs(t, err, ErrAlreadyExtracted)
}

func TestService_Run_InvalidCandidatesNeverPersisted(t *testing.T) {
	valid := action.Candidate{
		Text: "CALL the clinic about the refill", Category: action.CategoryAction,
		AssignedTo: "me", Priority: 2, Confidence: 0.9,
	}
	invalid := action.Candidate{Text: "", Category: action.CategoryAction, Priority: 99, Confidence: 3}

	svc, st := newTestService(t, &stubExtractor{result: &extraction.Result{
		Actions: []action.Candidate{valid, invalid},
		Method:  extraction.MethodLLM,
	}})
	ctx := context.Background()

	result, err := svc.Run(ctx, RunRequest{Transcript: "t", MeetingID: testMeetingID, UserID: testUserID})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ActionsCount)

	persisted, err := st.GetActionsForMeeting(ctx, testMeetingID)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, valid.Text, persisted[0].Text)
}

func TestService_Run_NoCommitmentsIsSuccess(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	result, err := svc.Run(ctx, RunRequest{
		Transcript: "The weather was lovely and nothing else happened.",
		MeetingID:  testMeetingID,
		UserID:     testUserID,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ActionsCount)
	assert.Equal(t, 0, result.Confidence)

	// The best-effort summary still lands.
	_, err = st.GetSummary(ctx, testMeetingID)
	require.NoError(t, err)
}

func runOneAction(t *testing.T, svc *Service) action.Stored {
	t.Helper()
	result, err := svc.Run(context.Background(), RunRequest{
		Transcript: "I need to call Dr. Smith by Friday.",
		MeetingID:  testMeetingID,
		UserID:     testUserID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Actions)
	return result.Actions[0]
}

func TestService_Suggest(t *testing.T) {
	svc, _ := newTestService(t, nil)
	a := runOneAction(t, svc)

	suggestions, err := svc.Suggest(context.Background(), a.ID,
		map[string]string{"energy-level": "high", "support-preference": "independent"}, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.LessOrEqual(t, len(suggestions), 5)
	for i := 1; i < len(suggestions); i++ {
		assert.GreaterOrEqual(t, suggestions[i-1].Confidence, suggestions[i].Confidence)
	}
}

func TestService_Suggest_UnknownAction(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Suggest(context.Background(), "33333333-3333-3333-3333-333333333333", nil, 0, 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_Accept(t *testing.T) {
	svc, st := newTestService(t, nil)
	a := runOneAction(t, svc)
	ctx := context.Background()

	updated, ev, err := svc.Accept(ctx, a.ID, "2025-06-12", "09:00", "")
	require.NoError(t, err)
	assert.Equal(t, action.StatusScheduled, updated.Status)
	assert.Equal(t, "2025-06-12", updated.ScheduledDate)
	assert.Equal(t, "09:00", updated.ScheduledTime)
	assert.Equal(t, ev.ID, updated.CalendarEventID)
	// Event title defaults to the action text.
	assert.Equal(t, a.Text, ev.Title)

	events, err := st.EventsForUser(ctx, testUserID, "2025-06-12", "2025-06-12")
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Accepting again is an invalid transition.
	_, _, err = svc.Accept(ctx, a.ID, "2025-06-13", "10:00", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, store.ErrNotFound))
}
