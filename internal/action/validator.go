package action

import (
	"fmt"
	"strings"
)

// Validation thresholds on the 0-100 scoring scale.
const (
	AdmissionThreshold = 50
	ReviewThreshold    = 90
)

// Deductions applied by the validator. Each maps to one issue string.
const (
	deductEmptyText      = 60
	deductShortText      = 20
	deductLongText       = 20
	deductBadPriority    = 25
	deductBadConfidence  = 15
	deductNoAssignee     = 10
	minTextLen           = 10
	maxTextLen           = 200
)

// ValidationResult scores a candidate action for completeness and
// plausibility. It is attached per candidate and never persisted.
type ValidationResult struct {
	Score       int      `json:"score"`
	Issues      []string `json:"issues"`
	Valid       bool     `json:"is_valid"`
	NeedsReview bool     `json:"requires_review"`
}

// Validator scores candidate actions. The orchestrator decides whether to
// persist; the validator itself has no side effects.
type Validator struct {
	admission int
	review    int
}

// NewValidator creates a validator with the default thresholds.
func NewValidator() *Validator {
	return &Validator{admission: AdmissionThreshold, review: ReviewThreshold}
}

// Validate scores a candidate against a 100-point scale, deducting for
// each defect found. Valid is derived from the score, never set directly.
func (v *Validator) Validate(c Candidate) ValidationResult {
	score := 100
	var issues []string

	text := strings.TrimSpace(c.Text)
	switch {
	case text == "":
		score -= deductEmptyText
		issues = append(issues, "action text is empty")
	case len(text) < minTextLen:
		score -= deductShortText
		issues = append(issues, fmt.Sprintf("action text is shorter than %d characters", minTextLen))
	case len(text) > maxTextLen:
		score -= deductLongText
		issues = append(issues, fmt.Sprintf("action text exceeds %d characters", maxTextLen))
	}

	if c.Priority < 1 || c.Priority > 5 {
		score -= deductBadPriority
		issues = append(issues, fmt.Sprintf("priority level %d is outside 1-5", c.Priority))
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		score -= deductBadConfidence
		issues = append(issues, fmt.Sprintf("confidence score %.2f is outside [0,1]", c.Confidence))
	}
	if strings.TrimSpace(c.AssignedTo) == "" {
		score -= deductNoAssignee
		issues = append(issues, "no assignee")
	}

	if score < 0 {
		score = 0
	}

	valid := score >= v.admission
	return ValidationResult{
		Score:       score,
		Issues:      issues,
		Valid:       valid,
		NeedsReview: valid && score < v.review,
	}
}
