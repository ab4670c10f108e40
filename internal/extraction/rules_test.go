package extraction

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

// fixedClock pins "now" to a Wednesday so weekday math is predictable.
func fixedClock() time.Time {
	// 2025-06-11 is a Wednesday.
	return time.Date(2025, 6, 11, 15, 30, 0, 0, time.UTC)
}

func newTestRuleExtractor() *RuleExtractor {
	return NewRuleExtractor(DefaultRuleConfig(), nil).WithClock(fixedClock)
}

func TestRuleExtractor_VerbFirst(t *testing.T) {
	r := newTestRuleExtractor()

	tests := []struct {
		name       string
		transcript string
		wantPrefix string
	}{
		{
			name:       "leading verb after filler",
			transcript: "I will call the pharmacy tomorrow.",
			wantPrefix: "CALL",
		},
		{
			name:       "connective stripped before verb",
			transcript: "I'll also email the insurance company today.",
			wantPrefix: "EMAIL",
		},
		{
			name:       "verb injected from keyword hint",
			transcript: "I need to sort out that appointment with the clinic.",
			wantPrefix: "SCHEDULE",
		},
		{
			name:       "default verb when nothing matches",
			transcript: "I need to get my paperwork in order soon.",
			wantPrefix: "COMPLETE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Extract(context.Background(), tt.transcript)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if len(result.Actions) != 1 {
				t.Fatalf("got %d actions, want 1", len(result.Actions))
			}
			if !strings.HasPrefix(result.Actions[0].Text, tt.wantPrefix+" ") {
				t.Errorf("Text = %q, want prefix %q", result.Actions[0].Text, tt.wantPrefix)
			}
		})
	}
}

func TestRuleExtractor_DateInference(t *testing.T) {
	r := newTestRuleExtractor()
	now := fixedClock()

	day := func(offset int) time.Time {
		d := now.AddDate(0, 0, offset)
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	}

	tests := []struct {
		name           string
		transcript     string
		wantDue        string
		wantCompletion time.Time
	}{
		{"today", "I will call the pharmacy today.", "today", day(0)},
		{"tomorrow", "I will call the pharmacy tomorrow.", "tomorrow", day(1)},
		{"this week", "I will call the pharmacy this week.", "this week", day(4)}, // Wednesday -> Sunday
		{"next week", "I will call the pharmacy next week.", "next week", day(14)},
		{"by friday", "I need to call Dr. Smith by Friday.", "by friday", day(2)}, // Wednesday -> Friday
		{"unspecified short", "I will call the pharmacy.", "unspecified", day(3)},
		{
			"unspecified long",
			"I will call the pharmacy and ask them about the new prescription my neurologist mentioned.",
			"unspecified",
			day(7),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _ := r.Extract(context.Background(), tt.transcript)
			if len(result.Actions) != 1 {
				t.Fatalf("got %d actions, want 1", len(result.Actions))
			}
			a := result.Actions[0]
			if a.DueContext != tt.wantDue {
				t.Errorf("DueContext = %q, want %q", a.DueContext, tt.wantDue)
			}
			if a.CompletionDate == nil || !a.CompletionDate.Equal(tt.wantCompletion) {
				t.Errorf("CompletionDate = %v, want %v", a.CompletionDate, tt.wantCompletion)
			}
		})
	}
}

func TestRuleExtractor_Deterministic(t *testing.T) {
	r := newTestRuleExtractor()
	transcript := "I need to call Dr. Smith by Friday. We should book the physio session this week. I'll email my case worker tomorrow."

	first, err := r.Extract(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := r.Extract(context.Background(), transcript)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different result", i)
		}
	}
}

func TestRuleExtractor_BoundedOutput(t *testing.T) {
	r := newTestRuleExtractor()

	var b strings.Builder
	for i := 0; i < 80; i++ {
		b.WriteString("I will call the pharmacy about my refills. ")
	}

	result, _ := r.Extract(context.Background(), b.String())
	if len(result.Actions) > 3 {
		t.Errorf("got %d actions, want at most 3", len(result.Actions))
	}
}

func TestRuleExtractor_LengthBounds(t *testing.T) {
	r := newTestRuleExtractor()

	// Too short and too long sentences are both skipped.
	long := "I will " + strings.Repeat("really ", 40) + "call them"
	result, _ := r.Extract(context.Background(), "I will. "+long+".")
	if len(result.Actions) != 0 {
		t.Errorf("got %d actions, want 0", len(result.Actions))
	}
}

func TestRuleExtractor_NoCommitments(t *testing.T) {
	r := newTestRuleExtractor()

	result, err := r.Extract(context.Background(), "The weather was nice. We talked about the garden.")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(result.Actions) != 0 {
		t.Errorf("got %d actions, want 0", len(result.Actions))
	}
	// Still a usable summary, not an error.
	if result.Summary.OverallTone == "" {
		t.Error("expected a best-effort summary tone")
	}
}

func TestRuleExtractor_EndToEndScenario(t *testing.T) {
	r := newTestRuleExtractor()
	transcript := "I need to call Dr. Smith by Friday. I'll also email the insurance company today."

	result, err := r.Extract(context.Background(), transcript)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(result.Actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(result.Actions))
	}
	if !strings.HasPrefix(result.Actions[0].Text, "CALL ") {
		t.Errorf("first action = %q, want CALL prefix", result.Actions[0].Text)
	}
	if !strings.HasPrefix(result.Actions[1].Text, "EMAIL ") {
		t.Errorf("second action = %q, want EMAIL prefix", result.Actions[1].Text)
	}
	if got := result.Summary.ParticipantsMentioned; len(got) != 1 || got[0] != "Dr. Smith" {
		t.Errorf("ParticipantsMentioned = %v, want [Dr. Smith]", got)
	}
}

func TestRuleExtractor_TeamAssignee(t *testing.T) {
	r := newTestRuleExtractor()

	result, _ := r.Extract(context.Background(), "We should schedule the family meeting next week.")
	if len(result.Actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(result.Actions))
	}
	if result.Actions[0].AssignedTo != "team" {
		t.Errorf("AssignedTo = %q, want team", result.Actions[0].AssignedTo)
	}
}
