package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/myrhythm/rhythmd/internal/extraction"
	"github.com/myrhythm/rhythmd/internal/pipeline"
	"github.com/myrhythm/rhythmd/internal/schedule"
	"github.com/myrhythm/rhythmd/internal/store"
)

const (
	testMeetingID = "11111111-1111-1111-1111-111111111111"
	testUserID    = "22222222-2222-2222-2222-222222222222"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 11, 15, 30, 0, 0, time.UTC)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "rhythmd.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rules := extraction.NewRuleExtractor(extraction.DefaultRuleConfig(), nil).WithClock(fixedClock)
	svc := pipeline.NewService(
		extraction.NewChain(nil, rules),
		st,
		schedule.NewEngine(nil).WithClock(fixedClock),
		nil,
		pipeline.Options{HorizonDays: 7, SuggestionLimit: 5},
	).WithClock(fixedClock)

	s, err := NewServer(svc, zap.NewNop(), nil)
	require.NoError(t, err)
	return s
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func extractBody() string {
	return fmt.Sprintf(
		`{"transcript":"I need to call Dr. Smith by Friday.","meeting_id":%q,"user_id":%q}`,
		testMeetingID, testUserID)
}

// runExtraction seeds one meeting and returns the first action's ID.
func runExtraction(t *testing.T, s *Server) string {
	t.Helper()
	rec := doJSON(s, http.MethodPost, "/api/v1/extractions", extractBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result pipeline.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.Actions)
	return result.Actions[0].ID
}

func TestServer_Health(t *testing.T) {
	rec := doJSON(newTestServer(t), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestServer_Extract(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/api/v1/extractions", extractBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result pipeline.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.ActionsCount)
	assert.Equal(t, extraction.MethodRules, result.Method)

	// Same meeting again: conflict.
	rec = doJSON(s, http.MethodPost, "/api/v1/extractions", extractBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Extract_BadInput(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(s, http.MethodPost, "/api/v1/extractions",
		`{"transcript":"","meeting_id":"nope","user_id":"nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Issues, 3)
}

func TestServer_MeetingActions(t *testing.T) {
	s := newTestServer(t)
	runExtraction(t, s)

	rec := doJSON(s, http.MethodGet, "/api/v1/meetings/"+testMeetingID+"/actions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CALL Dr. Smith")
}

func TestServer_UpdateStatus(t *testing.T) {
	s := newTestServer(t)
	actionID := runExtraction(t, s)

	rec := doJSON(s, http.MethodPost, "/api/v1/actions/"+actionID+"/status",
		`{"status":"scheduled","calendar_event_id":"ev-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Backward transition.
	rec = doJSON(s, http.MethodPost, "/api/v1/actions/"+actionID+"/status",
		`{"status":"not_started"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown status value.
	rec = doJSON(s, http.MethodPost, "/api/v1/actions/"+actionID+"/status",
		`{"status":"paused"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown action.
	rec = doJSON(s, http.MethodPost, "/api/v1/actions/missing/status",
		`{"status":"confirmed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Suggestions(t *testing.T) {
	s := newTestServer(t)
	actionID := runExtraction(t, s)

	rec := doJSON(s, http.MethodPost, "/api/v1/actions/"+actionID+"/suggestions",
		`{"answers":{"energy-level":"high"},"limit":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SuggestionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Suggestions)
	assert.LessOrEqual(t, len(resp.Suggestions), 3)

	rec = doJSON(s, http.MethodPost, "/api/v1/actions/missing/suggestions", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Schedule(t *testing.T) {
	s := newTestServer(t)
	actionID := runExtraction(t, s)

	rec := doJSON(s, http.MethodPost, "/api/v1/actions/"+actionID+"/schedule",
		`{"date":"2025-06-12","time":"09:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ScheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Event)
	assert.Equal(t, resp.Event.ID, resp.Action.CalendarEventID)

	// Already scheduled: conflict.
	rec = doJSON(s, http.MethodPost, "/api/v1/actions/"+actionID+"/schedule",
		`{"date":"2025-06-13","time":"10:00"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Schedule_BadSlot(t *testing.T) {
	s := newTestServer(t)
	actionID := runExtraction(t, s)

	rec := doJSON(s, http.MethodPost, "/api/v1/actions/"+actionID+"/schedule",
		`{"date":"12/06/2025","time":"09:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(s, http.MethodPost, "/api/v1/actions/"+actionID+"/schedule",
		`{"date":"2025-06-12","time":"9am"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t)
	runExtraction(t, s)

	rec := doJSON(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rhythmd_extractions_total")
}
