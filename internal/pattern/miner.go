package pattern

import (
	"time"

	"github.com/alihub/ali-intent/internal/ledger"
)

// Miner proposes new patterns from a window of behavior records. The
// scheduler only cares about the contract: zero or more candidates with
// confidence in [0,1]. Real frequency-based mining can be substituted
// without touching the loop.
type Miner interface {
	Mine(window []ledger.Record, now time.Time) []Pattern
}

// HeuristicMiner is a probabilistic stand-in for a real mining algorithm:
// each heuristic fires with a fixed discovery probability per invocation.
type HeuristicMiner struct {
	roll func() float64 // uniform [0,1) sample
}

func NewHeuristicMiner(roll func() float64) *HeuristicMiner {
	return &HeuristicMiner{roll: roll}
}

// Mine runs the time-pattern and sequence-pattern heuristics independently
// over the window.
func (h *HeuristicMiner) Mine(window []ledger.Record, now time.Time) []Pattern {
	var out []Pattern
	if p := h.findTimePattern(window); p != nil {
		out = append(out, *p)
	}
	if p := h.findSequencePattern(window); p != nil {
		out = append(out, *p)
	}
	return out
}

func (h *HeuristicMiner) findTimePattern(window []ledger.Record) *Pattern {
	if h.roll() >= 0.2 {
		return nil
	}
	return &Pattern{
		Kind:        TimePattern,
		Confidence:  0.75,
		Description: "Morning information check routine",
		Data: map[string]any{
			"day_period": "morning",
			"time_range": []int{6, 9},
			"actions":    []string{"check_weather", "check_calendar", "check_news"},
		},
	}
}

func (h *HeuristicMiner) findSequencePattern(window []ledger.Record) *Pattern {
	if h.roll() >= 0.2 {
		return nil
	}
	return &Pattern{
		Kind:        SequencePattern,
		Confidence:  0.8,
		Description: "Project research sequence",
		Data: map[string]any{
			"trigger":  "research_start",
			"sequence": []string{"web_search", "document_creation", "bookmark_saving"},
		},
	}
}
