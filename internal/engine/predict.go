package engine

import (
	"time"

	"github.com/alihub/ali-intent/internal/intent"
	"github.com/alihub/ali-intent/internal/pattern"
)

// Prediction is the engine's best guess at the user's next action.
type Prediction struct {
	Action        string  `json:"action"`
	Confidence    float64 `json:"confidence"`
	SourcePattern string  `json:"source_pattern,omitempty"`
	Description   string  `json:"description"`
}

// Suggestion is a proposed task for the current time of day.
type Suggestion struct {
	Task       string  `json:"task"`
	Confidence float64 `json:"confidence"`
	Type       string  `json:"type"`
}

// contextHour prefers the caller's reported hour over the engine clock.
func (e *Engine) contextHour(ictx *intent.Context) int {
	if ictx != nil && ictx.Time != nil {
		return ictx.Time.Hour
	}
	return e.now().Hour()
}

// PredictNextAction scans discovered time patterns against the current (or
// context-reported) hour. Only a prediction clearing the prediction
// threshold is returned; otherwise the default low-confidence answer.
func (e *Engine) PredictNextAction(ictx *intent.Context) Prediction {
	hour := e.contextHour(ictx)

	best := Prediction{}
	for _, p := range e.patterns.All() {
		if p.Kind != pattern.TimePattern {
			continue
		}
		period, _ := p.Data["day_period"].(string)
		if period == "morning" && hour >= 6 && hour <= 9 && p.Confidence > best.Confidence {
			best = Prediction{
				Action:        "morning_routine",
				Confidence:    p.Confidence,
				SourcePattern: p.ID,
				Description:   p.Description,
			}
		}
	}

	if best.Action != "" && best.Confidence >= e.thresholds.Prediction {
		e.logger.Info("Predicted next action", "action", best.Action, "confidence", best.Confidence)
		return best
	}
	return Prediction{
		Action:      "no_specific_prediction",
		Confidence:  0.3,
		Description: "No strong prediction available",
	}
}

// TaskSuggestions proposes tasks for the current time of day and weekday,
// filtered by the suggestion threshold.
func (e *Engine) TaskSuggestions(ictx *intent.Context) []Suggestion {
	hour := e.contextHour(ictx)
	weekday := e.now().Weekday()

	var suggestions []Suggestion
	switch {
	case hour >= 6 && hour <= 9:
		suggestions = append(suggestions,
			Suggestion{Task: "Check today's weather", Confidence: 0.7, Type: "information"},
			Suggestion{Task: "Review calendar for today", Confidence: 0.75, Type: "productivity"})
	case hour >= 17 && hour <= 22:
		suggestions = append(suggestions,
			Suggestion{Task: "Review tomorrow's schedule", Confidence: 0.65, Type: "planning"})
	}
	if weekday == time.Saturday || weekday == time.Sunday {
		suggestions = append(suggestions,
			Suggestion{Task: "Check entertainment options", Confidence: 0.6, Type: "leisure"})
	}

	filtered := suggestions[:0]
	for _, s := range suggestions {
		if s.Confidence >= e.thresholds.Suggestion {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
