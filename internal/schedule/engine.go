package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/myrhythm/rhythmd/internal/action"
)

// Scoring constants, all on the 0-100 confidence scale.
const (
	baseConfidence     = 70
	bonusHighPriority  = 10
	bonusNearTerm      = 10
	penaltyFarOut      = 10
	penaltyHighConflict = 40
	penaltyLowConflict  = 15
	bonusNoConflict     = 5
	bonusEnergyMatch    = 10

	// adjacencyBufferMin is the breathing room wanted between a slot and
	// a neighboring event before the overlap counts as clear.
	adjacencyBufferMin = 15

	defaultHorizonDays = 7
	defaultTopN        = 5
)

// workKeywords flag actions that should avoid weekends.
var workKeywords = []string{"work", "meeting", "call"}

// busyKeywords flag existing events whose overlap is a high conflict.
var busyKeywords = []string{"meeting", "call", "appointment"}

// Options tunes one scheduling run.
type Options struct {
	// HorizonDays is how many days ahead to consider. Defaults to 7.
	HorizonDays int
	// TopN caps the returned suggestions. Defaults to 5.
	TopN int
}

// Engine generates ranked slot suggestions. It is read-only: accepting a
// suggestion and writing the calendar event is the caller's job.
type Engine struct {
	logger *zap.Logger
	clock  func() time.Time
}

// NewEngine creates a scheduling engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger, clock: time.Now}
}

// WithClock fixes the engine's notion of "now" for reproducible runs.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Suggest enumerates candidate slots over the horizon and returns the
// top-N by confidence. It never fails; no viable slot simply yields a
// short or empty list.
func (e *Engine) Suggest(a action.Stored, pref Preference, events []Event, opts Options) []Suggestion {
	horizon := opts.HorizonDays
	if horizon <= 0 {
		horizon = defaultHorizonDays
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = defaultTopN
	}

	now := e.clock()
	workFlagged := containsAny(strings.ToLower(a.Text), workKeywords)
	highPriority := a.Priority <= 2

	var suggestions []Suggestion
	for offset := 0; offset < horizon; offset++ {
		day := now.AddDate(0, 0, offset)
		if workFlagged && !highPriority && isWeekend(day) {
			continue
		}
		date := day.Format("2006-01-02")

		for _, hour := range pref.ProductiveHours {
			start, ok := parseClock(hour)
			if !ok || inDoNotDisturb(start, pref.DoNotDisturb) {
				continue
			}

			conflict := classifyConflict(date, start, pref.SessionMinutes, events)
			peak, energyMatch := matchesEnergyPeak(start, pref.EnergyPeaks)

			confidence := baseConfidence
			if highPriority {
				confidence += bonusHighPriority
			}
			if offset <= 1 {
				confidence += bonusNearTerm
			} else if offset > 5 {
				confidence -= penaltyFarOut
			}
			switch conflict {
			case ConflictHigh:
				confidence -= penaltyHighConflict
			case ConflictLow:
				confidence -= penaltyLowConflict
			case ConflictNone:
				confidence += bonusNoConflict
			}
			if energyMatch {
				confidence += bonusEnergyMatch
			}
			confidence = clamp(confidence, 0, 100)

			s := Suggestion{
				Date:       date,
				Time:       hour,
				Confidence: confidence,
				Conflict:   conflict,
				Reason:     reason(offset, conflict, energyMatch, peak),
			}
			if energyMatch {
				s.EnergyMatch = fmt.Sprintf("matches your %s energy peak", peak)
			}
			suggestions = append(suggestions, s)
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	if len(suggestions) > topN {
		suggestions = suggestions[:topN]
	}

	e.logger.Debug("scheduling run complete",
		zap.String("action_id", a.ID),
		zap.Int("suggestions", len(suggestions)),
	)
	return suggestions
}

// classifyConflict scans existing events for temporal overlap with the
// proposed slot. Overlap with a busy-titled event is high; any other
// overlap, or adjacency closer than the buffer, is low.
func classifyConflict(date string, startMin, durationMin int, events []Event) ConflictLevel {
	endMin := startMin + durationMin
	level := ConflictNone

	for _, ev := range events {
		if ev.Date != date {
			continue
		}
		evStart, ok := parseClock(ev.Time)
		if !ok {
			continue
		}
		evDuration := ev.DurationMinutes
		if evDuration <= 0 {
			evDuration = 60
		}
		evEnd := evStart + evDuration

		overlaps := startMin < evEnd && evStart < endMin
		if overlaps {
			if containsAny(strings.ToLower(ev.Title), busyKeywords) {
				return ConflictHigh
			}
			level = ConflictLow
			continue
		}
		gapBefore := startMin - evEnd
		gapAfter := evStart - endMin
		if (gapBefore >= 0 && gapBefore < adjacencyBufferMin) ||
			(gapAfter >= 0 && gapAfter < adjacencyBufferMin) {
			level = ConflictLow
		}
	}
	return level
}

// matchesEnergyPeak reports whether the slot's day part is one of the
// user's energy peaks.
func matchesEnergyPeak(startMin int, peaks []EnergyPeak) (EnergyPeak, bool) {
	peak := dayPart(startMin)
	for _, p := range peaks {
		if p == peak {
			return peak, true
		}
	}
	return peak, false
}

// dayPart buckets a minute-of-day into morning/afternoon/evening.
func dayPart(startMin int) EnergyPeak {
	switch {
	case startMin < 12*60:
		return PeakMorning
	case startMin < 17*60:
		return PeakAfternoon
	default:
		return PeakEvening
	}
}

// reason builds the human-readable framing for the UI. It is display-only
// and never consumed downstream.
func reason(offset int, conflict ConflictLevel, energyMatch bool, peak EnergyPeak) string {
	var when string
	switch offset {
	case 0:
		when = "today"
	case 1:
		when = "tomorrow"
	default:
		when = fmt.Sprintf("in %d days", offset)
	}

	var b strings.Builder
	b.WriteString(strings.ToUpper(when[:1]) + when[1:])
	switch conflict {
	case ConflictNone:
		b.WriteString(", your calendar is clear")
	case ConflictLow:
		b.WriteString(", close to another commitment")
	case ConflictHigh:
		b.WriteString(", overlaps an important event")
	}
	if energyMatch {
		fmt.Fprintf(&b, ", during your %s energy peak", peak)
	}
	return b.String()
}

// inDoNotDisturb reports whether a start time falls in any DND range.
// Ranges may wrap past midnight ("21:00-07:00").
func inDoNotDisturb(startMin int, ranges []string) bool {
	for _, r := range ranges {
		parts := strings.SplitN(r, "-", 2)
		if len(parts) != 2 {
			continue
		}
		from, okFrom := parseClock(parts[0])
		to, okTo := parseClock(parts[1])
		if !okFrom || !okTo {
			continue
		}
		if from <= to {
			if startMin >= from && startMin < to {
				return true
			}
		} else if startMin >= from || startMin < to {
			return true
		}
	}
	return false
}

// parseClock converts "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
