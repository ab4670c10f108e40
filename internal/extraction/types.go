package extraction

import (
	"context"

	"github.com/myrhythm/rhythmd/internal/action"
)

// Extraction method names, recorded on stored actions for audit.
const (
	MethodLLM   = "llm"
	MethodRules = "rules"
)

// Result is the output of one extraction strategy.
type Result struct {
	Actions []action.Candidate         `json:"actions"`
	Summary action.ConversationSummary `json:"summary"`
	Method  string                     `json:"method"`
}

// Extractor is one extraction strategy. A (nil, nil) return means the
// strategy produced nothing usable and the caller should fall through to
// the next strategy; strategies that can always produce a result never
// return nil.
type Extractor interface {
	Extract(ctx context.Context, transcript string) (*Result, error)
}
