package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// toolCallResponse builds a chat-completion response whose first choice
// carries a capture_commitments tool call with the given arguments.
func toolCallResponse(t *testing.T, arguments any) []byte {
	t.Helper()
	args, err := json.Marshal(arguments)
	if err != nil {
		t.Fatalf("marshal arguments: %v", err)
	}
	body := map[string]any{
		"choices": []map[string]any{{
			"message": map[string]any{
				"tool_calls": []map[string]any{{
					"function": map[string]any{
						"name":      toolName,
						"arguments": string(args),
					},
				}},
			},
		}},
	}
	out, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return out
}

func validArguments() map[string]any {
	return map[string]any{
		"conversation_summary": map[string]any{
			"key_topics":          []string{"medication refill"},
			"overall_tone":        "hopeful",
			"empowering_takeaway": "You are on top of your appointments.",
		},
		"actions": []map[string]any{
			{
				"action_text":      "CALL Dr. Smith about the referral",
				"category":         "action",
				"assigned_to":      "me",
				"due_context":      "by friday",
				"completion_date":  "2025-06-13",
				"priority_level":   2,
				"confidence_score": 0.9,
			},
			{
				// Malformed: missing assigned_to. Dropped, not fatal.
				"action_text":      "EMAIL the insurance company",
				"category":         "action",
				"priority_level":   3,
				"confidence_score": 0.8,
			},
		},
	}
}

func newTestLLMExtractor(url string) *LLMExtractor {
	return NewLLMExtractor(LLMConfig{APIKey: "test-key", BaseURL: url, Timeout: 5}, nil)
}

func TestLLMExtractor_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != toolName {
			t.Errorf("request does not carry the %s tool", toolName)
		}
		w.Write(toolCallResponse(t, validArguments()))
	}))
	defer srv.Close()

	result, err := newTestLLMExtractor(srv.URL).Extract(context.Background(), "some transcript")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result == nil {
		t.Fatal("Extract() returned nil result")
	}
	if result.Method != MethodLLM {
		t.Errorf("Method = %q, want %q", result.Method, MethodLLM)
	}
	// The malformed second action is dropped.
	if len(result.Actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(result.Actions))
	}
	a := result.Actions[0]
	if a.Text != "CALL Dr. Smith about the referral" {
		t.Errorf("Text = %q", a.Text)
	}
	if a.CompletionDate == nil {
		t.Error("CompletionDate not parsed")
	}
	if result.Summary.OverallTone != "hopeful" {
		t.Errorf("OverallTone = %q", result.Summary.OverallTone)
	}
}

func TestLLMExtractor_DegradesToNil(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
			},
		},
		{
			name: "no tool call",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices":[{"message":{"content":"plain text"}}]}`))
			},
		},
		{
			name: "unparseable arguments",
			handler: func(w http.ResponseWriter, r *http.Request) {
				body := `{"choices":[{"message":{"tool_calls":[{"function":{"name":"capture_commitments","arguments":"not json"}}]}}]}`
				w.Write([]byte(body))
			},
		},
		{
			name: "all actions malformed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				args := map[string]any{
					"conversation_summary": map[string]any{"overall_tone": "flat"},
					"actions": []map[string]any{
						{"action_text": "", "category": "action", "assigned_to": "me", "priority_level": 1, "confidence_score": 0.5},
					},
				}
				w.Write(toolCallResponse(t, args))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			result, err := newTestLLMExtractor(srv.URL).Extract(context.Background(), "transcript")
			if err != nil {
				t.Fatalf("Extract() error = %v, adapter must never propagate errors", err)
			}
			if result != nil {
				t.Errorf("Extract() = %+v, want nil", result)
			}
		})
	}
}

func TestLLMExtractor_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write(toolCallResponse(t, validArguments()))
	}))
	defer srv.Close()

	result, err := newTestLLMExtractor(srv.URL).Extract(context.Background(), "transcript")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result == nil {
		t.Fatal("Extract() = nil after retryable error, want result")
	}
	if calls != 2 {
		t.Errorf("server called %d times, want 2", calls)
	}
}

func TestLLMExtractor_NotConfigured(t *testing.T) {
	l := NewLLMExtractor(LLMConfig{}, nil)
	if l.Available() {
		t.Error("Available() = true without API key")
	}
	result, err := l.Extract(context.Background(), "transcript")
	if err != nil || result != nil {
		t.Errorf("Extract() = (%v, %v), want (nil, nil)", result, err)
	}
}

func TestConvertToolAction_Validation(t *testing.T) {
	good := toolAction{
		ActionText:      "WRITE in the gratitude journal",
		Category:        "note",
		AssignedTo:      "me",
		PriorityLevel:   4,
		ConfidenceScore: 0.7,
		MicroTasks:      []string{"Find the journal", "", "Write one line"},
	}
	c, err := convertToolAction(good)
	if err != nil {
		t.Fatalf("convertToolAction() error = %v", err)
	}
	if len(c.MicroTasks) != 2 {
		t.Errorf("got %d micro tasks, want 2 (blank dropped)", len(c.MicroTasks))
	}
	if c.DueContext != "unspecified" {
		t.Errorf("DueContext = %q, want unspecified default", c.DueContext)
	}

	bad := []toolAction{
		{Category: "action", AssignedTo: "me", PriorityLevel: 1, ConfidenceScore: 0.5},
		{ActionText: "CALL someone", Category: "nonsense", AssignedTo: "me", PriorityLevel: 1, ConfidenceScore: 0.5},
		{ActionText: "CALL someone", Category: "action", AssignedTo: "me", PriorityLevel: 0, ConfidenceScore: 0.5},
		{ActionText: "CALL someone", Category: "action", AssignedTo: "me", PriorityLevel: 1, ConfidenceScore: 1.5},
	}
	for i, raw := range bad {
		if _, err := convertToolAction(raw); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestScrubSecrets(t *testing.T) {
	in := "my api_key = abcd1234efgh and the portal password: hunter22"
	out := scrubSecrets(in)
	if out == in {
		t.Error("scrubSecrets() left secrets in place")
	}
}
