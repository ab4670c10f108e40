package extraction

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/myrhythm/rhythmd/internal/action"
)

// RuleConfig holds the heuristic tables for the rule-based extractor.
// Tables are explicit configuration, not package globals, so tests can
// substitute fixtures.
type RuleConfig struct {
	// MaxSentences caps how many sentences are scanned (cost control).
	MaxSentences int
	// MaxCandidates caps how many actions are produced (noise control).
	MaxCandidates int
	// MinSentenceLen and MaxSentenceLen bound candidate sentences.
	MinSentenceLen int
	MaxSentenceLen int

	// Markers are the first-person commitment phrases that make a
	// sentence a candidate. Lowercase.
	Markers []string
	// Fillers are leading phrases stripped before verb detection.
	// Lowercase, longest-prefix wins.
	Fillers []string
	// ConnectiveWords are discarded between the filler and the verb
	// ("also", "just", ...). Lowercase.
	ConnectiveWords []string
	// Verbs is the fixed action-verb vocabulary. Lowercase.
	Verbs []string
	// VerbHints inject a verb when no leading verb matched, keyed on a
	// keyword found anywhere in the sentence. Ordered: first hit wins,
	// which keeps extraction deterministic. Lowercase.
	VerbHints []VerbHint
	// DefaultVerb is injected when neither vocabulary nor hints match.
	DefaultVerb string

	// Temporal is the due-phrase vocabulary with its offset rules.
	Temporal []TemporalPhrase
	// ShortTextDays/LongTextDays are the fallback completion offsets
	// when no temporal phrase matched; ShortTextLen is the boundary.
	ShortTextDays int
	LongTextDays  int
	ShortTextLen  int
}

// OffsetRule says how a matched temporal phrase maps to a completion date.
type OffsetRule int

const (
	OffsetSameDay OffsetRule = iota
	OffsetNextDay
	OffsetEndOfWeek
	OffsetTwoWeeks
	OffsetWeekday
)

// VerbHint maps a sentence keyword to the verb injected for it.
type VerbHint struct {
	Keyword string
	Verb    string
}

// TemporalPhrase binds a due-date phrase to its offset rule.
type TemporalPhrase struct {
	Phrase  string
	Rule    OffsetRule
	Weekday time.Weekday // used by OffsetWeekday
}

// DefaultRuleConfig returns the built-in heuristic tables.
func DefaultRuleConfig() RuleConfig {
	cfg := RuleConfig{
		MaxSentences:   50,
		MaxCandidates:  3,
		MinSentenceLen: 10,
		MaxSentenceLen: 200,
		Markers: []string{
			"i will", "i'll", "i need to", "i have to", "i'm going to",
			"i am going to", "i should", "let's", "we should", "we need to",
		},
		Fillers: []string{
			"i am going to", "i'm going to", "i need to", "i have to",
			"we need to", "we should", "i should", "i will", "i'll",
			"let's",
		},
		ConnectiveWords: []string{"also", "just", "then", "probably", "definitely", "really"},
		Verbs: []string{
			"call", "email", "schedule", "book", "create", "write", "send",
			"complete", "finish", "review", "check", "visit", "buy", "pick",
			"prepare", "follow", "ask", "confirm", "organize", "practice",
		},
		VerbHints: []VerbHint{
			{Keyword: "call", Verb: "call"},
			{Keyword: "phone", Verb: "call"},
			{Keyword: "email", Verb: "email"},
			{Keyword: "appointment", Verb: "schedule"},
			{Keyword: "schedule", Verb: "schedule"},
			{Keyword: "meeting", Verb: "schedule"},
		},
		DefaultVerb:   "complete",
		ShortTextDays: 3,
		LongTextDays:  7,
		ShortTextLen:  60,
		Temporal: []TemporalPhrase{
			{Phrase: "today", Rule: OffsetSameDay},
			{Phrase: "tomorrow", Rule: OffsetNextDay},
			{Phrase: "this week", Rule: OffsetEndOfWeek},
			{Phrase: "next week", Rule: OffsetTwoWeeks},
		},
	}

	weekdays := []struct {
		name string
		day  time.Weekday
	}{
		{"monday", time.Monday}, {"tuesday", time.Tuesday}, {"wednesday", time.Wednesday},
		{"thursday", time.Thursday}, {"friday", time.Friday}, {"saturday", time.Saturday},
		{"sunday", time.Sunday},
	}
	for _, prefix := range []string{"by ", "before "} {
		for _, w := range weekdays {
			cfg.Temporal = append(cfg.Temporal, TemporalPhrase{
				Phrase:  prefix + w.name,
				Rule:    OffsetWeekday,
				Weekday: w.day,
			})
		}
	}
	return cfg
}

// RuleExtractor is the deterministic fallback extractor. It never fails:
// a transcript with no commitments yields an empty action list, and the
// same transcript always yields the same candidates for a fixed clock.
type RuleExtractor struct {
	cfg    RuleConfig
	logger *zap.Logger
	clock  func() time.Time

	sentenceSplit *regexp.Regexp
	titledName    *regexp.Regexp
}

// NewRuleExtractor creates a rule-based extractor. A zero-value config
// field falls back to its default.
func NewRuleExtractor(cfg RuleConfig, logger *zap.Logger) *RuleExtractor {
	def := DefaultRuleConfig()
	if cfg.MaxSentences == 0 {
		cfg.MaxSentences = def.MaxSentences
	}
	if cfg.MaxCandidates == 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.MinSentenceLen == 0 {
		cfg.MinSentenceLen = def.MinSentenceLen
	}
	if cfg.MaxSentenceLen == 0 {
		cfg.MaxSentenceLen = def.MaxSentenceLen
	}
	if len(cfg.Markers) == 0 {
		cfg.Markers = def.Markers
	}
	if len(cfg.Fillers) == 0 {
		cfg.Fillers = def.Fillers
	}
	if len(cfg.ConnectiveWords) == 0 {
		cfg.ConnectiveWords = def.ConnectiveWords
	}
	if len(cfg.Verbs) == 0 {
		cfg.Verbs = def.Verbs
	}
	if len(cfg.VerbHints) == 0 {
		cfg.VerbHints = def.VerbHints
	}
	if cfg.DefaultVerb == "" {
		cfg.DefaultVerb = def.DefaultVerb
	}
	if len(cfg.Temporal) == 0 {
		cfg.Temporal = def.Temporal
	}
	if cfg.ShortTextDays == 0 {
		cfg.ShortTextDays = def.ShortTextDays
	}
	if cfg.LongTextDays == 0 {
		cfg.LongTextDays = def.LongTextDays
	}
	if cfg.ShortTextLen == 0 {
		cfg.ShortTextLen = def.ShortTextLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleExtractor{
		cfg:           cfg,
		logger:        logger,
		clock:         time.Now,
		sentenceSplit: regexp.MustCompile(`[.!?]+`),
		titledName:    regexp.MustCompile(`\b(?:Dr|Mr|Mrs|Ms)\.?\s+[A-Z][a-z]+`),
	}
}

// WithClock fixes the extractor's notion of "now". Used by tests and by
// callers that need reproducible date inference.
func (r *RuleExtractor) WithClock(clock func() time.Time) *RuleExtractor {
	r.clock = clock
	return r
}

// Extract produces candidate actions from a transcript. The returned
// error is always nil; the method exists to satisfy Extractor.
func (r *RuleExtractor) Extract(_ context.Context, transcript string) (*Result, error) {
	now := r.clock()
	sentences := r.splitSentences(transcript)

	var candidates []action.Candidate
	for _, s := range sentences {
		if len(candidates) >= r.cfg.MaxCandidates {
			break
		}
		if !r.isCommitment(s) {
			continue
		}
		candidates = append(candidates, r.buildCandidate(s, now))
	}

	r.logger.Debug("rule extraction complete",
		zap.Int("sentences", len(sentences)),
		zap.Int("candidates", len(candidates)),
	)

	return &Result{
		Actions: candidates,
		Summary: r.buildSummary(transcript, candidates),
		Method:  MethodRules,
	}, nil
}

// splitSentences applies the naive boundary split and the sentence cap.
func (r *RuleExtractor) splitSentences(transcript string) []string {
	raw := r.sentenceSplit.Split(transcript, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		sentences = append(sentences, s)
		if len(sentences) >= r.cfg.MaxSentences {
			break
		}
	}
	return sentences
}

// isCommitment reports whether a sentence carries a commitment marker and
// fits the length bounds.
func (r *RuleExtractor) isCommitment(sentence string) bool {
	if len(sentence) < r.cfg.MinSentenceLen || len(sentence) > r.cfg.MaxSentenceLen {
		return false
	}
	lower := strings.ToLower(sentence)
	for _, m := range r.cfg.Markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// buildCandidate turns one commitment sentence into a candidate action.
func (r *RuleExtractor) buildCandidate(sentence string, now time.Time) action.Candidate {
	text, verbFromVocab := r.verbFirstText(sentence)

	dueContext, completion := r.inferDue(sentence, len(sentence), now)
	start := dateOnly(now)
	end := completion

	confidence := 0.5
	if verbFromVocab {
		confidence = 0.75
	}

	priority := 3
	if dueContext == "today" || dueContext == "tomorrow" {
		priority = 2
	}

	c := action.Candidate{
		Text:           text,
		Category:       categorize(sentence),
		AssignedTo:     assignee(sentence),
		DueContext:     dueContext,
		StartDate:      &start,
		EndDate:        &end,
		CompletionDate: &completion,
		Priority:       priority,
		Confidence:     confidence,
	}
	r.enrich(&c)
	return c
}

// verbFirstText rewrites a sentence into verb-first imperative form. The
// second return value reports whether the leading verb came from the
// vocabulary rather than being injected.
func (r *RuleExtractor) verbFirstText(sentence string) (string, bool) {
	rest := strings.TrimSpace(sentence)
	lower := strings.ToLower(rest)

	// Strip the longest matching filler prefix, then connectives.
	var best string
	for _, f := range r.cfg.Fillers {
		if strings.HasPrefix(lower, f) && len(f) > len(best) {
			best = f
		}
	}
	if best != "" {
		rest = strings.TrimSpace(rest[len(best):])
	}
	for changed := true; changed; {
		changed = false
		lowerRest := strings.ToLower(rest)
		for _, w := range r.cfg.ConnectiveWords {
			if strings.HasPrefix(lowerRest, w+" ") {
				rest = strings.TrimSpace(rest[len(w):])
				changed = true
				break
			}
		}
	}

	words := strings.Fields(rest)
	if len(words) > 0 {
		first := strings.ToLower(strings.Trim(words[0], ",;:"))
		for _, v := range r.cfg.Verbs {
			if first == v {
				words[0] = strings.ToUpper(v)
				return truncate(strings.Join(words, " "), r.cfg.MaxSentenceLen), true
			}
		}
	}

	// No leading verb: inject one from keyword hints, or the default.
	lowerSentence := strings.ToLower(sentence)
	verb := r.cfg.DefaultVerb
	for _, h := range r.cfg.VerbHints {
		if strings.Contains(lowerSentence, h.Keyword) {
			verb = h.Verb
			break
		}
	}
	return truncate(strings.ToUpper(verb)+" "+rest, r.cfg.MaxSentenceLen), false
}

// inferDue scans for a temporal phrase and converts it into a completion
// date via the fixed offset rules.
func (r *RuleExtractor) inferDue(sentence string, textLen int, now time.Time) (string, time.Time) {
	lower := strings.ToLower(sentence)
	for _, t := range r.cfg.Temporal {
		if !strings.Contains(lower, t.Phrase) {
			continue
		}
		switch t.Rule {
		case OffsetSameDay:
			return t.Phrase, dateOnly(now)
		case OffsetNextDay:
			return t.Phrase, dateOnly(now.AddDate(0, 0, 1))
		case OffsetEndOfWeek:
			return t.Phrase, dateOnly(endOfWeek(now))
		case OffsetTwoWeeks:
			return t.Phrase, dateOnly(now.AddDate(0, 0, 14))
		case OffsetWeekday:
			return t.Phrase, dateOnly(nextWeekday(now, t.Weekday))
		}
	}

	days := r.cfg.LongTextDays
	if textLen < r.cfg.ShortTextLen {
		days = r.cfg.ShortTextDays
	}
	return "unspecified", dateOnly(now.AddDate(0, 0, days))
}

// enrich fills the templated scaffolding fields from the action text.
func (r *RuleExtractor) enrich(c *action.Candidate) {
	lower := strings.ToLower(c.Text)
	c.SuccessCriteria = fmt.Sprintf("Done when you can say: I did %s", lower)
	c.Motivation = "Following through on this keeps your recovery momentum going"
	c.MicroTasks = []action.MicroTask{
		{Text: "Get ready: gather what you need to " + lower},
		{Text: c.Text},
		{Text: "Check it off and note how it went"},
	}
}

// buildSummary assembles the best-effort summary for the rule-based path.
func (r *RuleExtractor) buildSummary(transcript string, candidates []action.Candidate) action.ConversationSummary {
	topics := make([]string, 0, len(candidates))
	for _, c := range candidates {
		topics = append(topics, strings.ToLower(firstWords(c.Text, 4)))
	}

	participants := []string{}
	seen := map[string]bool{}
	for _, m := range r.titledName.FindAllString(transcript, -1) {
		if !seen[m] {
			participants = append(participants, m)
			seen[m] = true
		}
	}

	takeaway := "No explicit commitments found, and that is okay - not every conversation needs one."
	if n := len(candidates); n == 1 {
		takeaway = "You made 1 commitment in this conversation. Small steps count."
	} else if n > 1 {
		takeaway = fmt.Sprintf("You made %d commitments in this conversation. Small steps count.", n)
	}

	return action.ConversationSummary{
		KeyTopics:             topics,
		MainDecisions:         []string{},
		ParticipantsMentioned: participants,
		OverallTone:           "supportive",
		EmpoweringTakeaway:    takeaway,
	}
}

// categorize assigns a category from sentence keywords.
func categorize(sentence string) action.Category {
	lower := strings.ToLower(sentence)
	switch {
	case strings.Contains(lower, "depends on"), strings.Contains(lower, "waiting on"):
		return action.CategoryDependsOn
	case strings.Contains(lower, "watch out"), strings.Contains(lower, "careful"):
		return action.CategoryWatchOut
	default:
		return action.CategoryAction
	}
}

// assignee infers who owns the commitment from the marker used.
func assignee(sentence string) string {
	lower := strings.ToLower(sentence)
	if strings.Contains(lower, "we should") || strings.Contains(lower, "we need to") || strings.Contains(lower, "let's") {
		return "team"
	}
	return "me"
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max])
}

// dateOnly drops the time-of-day component.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// endOfWeek returns the upcoming Sunday, or today if already Sunday.
func endOfWeek(t time.Time) time.Time {
	days := (int(time.Sunday) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, days)
}

// nextWeekday returns the next occurrence of day strictly after today,
// one week out when today already is that day.
func nextWeekday(t time.Time, day time.Weekday) time.Time {
	days := (int(day) - int(t.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return t.AddDate(0, 0, days)
}

var _ Extractor = (*RuleExtractor)(nil)
