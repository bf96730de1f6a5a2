package intent

import (
	"regexp"
	"strings"
)

// Recognized intent labels, in rule priority order.
const (
	LabelReminder       = "reminder"
	LabelCalendar       = "calendar"
	LabelSearch         = "search"
	LabelCommunication  = "communication"
	LabelHelp           = "help"
	LabelMorningRoutine = "morning_routine"
	LabelUnknown        = "unknown"
)

// Intent is the classification result for one piece of input text.
type Intent struct {
	Primary    string            `json:"primary"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
}

// TimeContext carries the caller's local time information.
type TimeContext struct {
	Hour int `json:"hour"`
}

// Context carries situational hints that refine classification.
type Context struct {
	App      string       `json:"app,omitempty"`
	Location string       `json:"location,omitempty"`
	Time     *TimeContext `json:"time,omitempty"`
}

var (
	reminderRe      = regexp.MustCompile(`\b(remind|reminder|remember)\b`)
	calendarRe      = regexp.MustCompile(`\b(schedule|appointment|meeting|calendar)\b`)
	searchRe        = regexp.MustCompile(`\b(search|find|look up)\b`)
	communicationRe = regexp.MustCompile(`\b(send|message|text|call)\b`)
	helpRe          = regexp.MustCompile(`\b(help|explain|how do|how to)\b`)

	timeEntityRe      = regexp.MustCompile(`at (\d+[:\d]*\s*[ap]\.?m\.?)`)
	dateEntityRe      = regexp.MustCompile(`on ([a-zA-Z]+ \d+)`)
	queryEntityRe     = regexp.MustCompile(`(?:search|find|look up)\s+(?:for\s+)?(.+)`)
	recipientEntityRe = regexp.MustCompile(`to\s+([a-zA-Z]+)`)
)

// Classify maps input text plus optional context to an intent. The first
// matching rule wins; unmatched text is "unknown" at confidence 0.5.
// Classification is pure: identical inputs always yield identical results.
func Classify(text string, ctx *Context) Intent {
	lower := strings.ToLower(text)
	intent := Intent{
		Primary:    LabelUnknown,
		Confidence: 0.5,
		Entities:   map[string]string{},
	}

	switch {
	case reminderRe.MatchString(lower):
		intent.Primary = LabelReminder
		intent.Confidence = 0.8
		if m := timeEntityRe.FindStringSubmatch(lower); m != nil {
			intent.Entities["time"] = m[1]
		}
	case calendarRe.MatchString(lower):
		intent.Primary = LabelCalendar
		intent.Confidence = 0.75
		if m := dateEntityRe.FindStringSubmatch(lower); m != nil {
			intent.Entities["date"] = m[1]
		}
	case searchRe.MatchString(lower):
		intent.Primary = LabelSearch
		intent.Confidence = 0.7
		if m := queryEntityRe.FindStringSubmatch(lower); m != nil {
			intent.Entities["query"] = m[1]
		}
	case communicationRe.MatchString(lower):
		intent.Primary = LabelCommunication
		intent.Confidence = 0.8
		if m := recipientEntityRe.FindStringSubmatch(lower); m != nil {
			intent.Entities["recipient"] = m[1]
		}
	case helpRe.MatchString(lower):
		intent.Primary = LabelHelp
		intent.Confidence = 0.9
	}

	if ctx != nil {
		refine(&intent, ctx)
	}
	return intent
}

// refine applies context-based confidence adjustments and label overrides.
func refine(intent *Intent, ctx *Context) {
	if ctx.App == "messaging" && intent.Primary == LabelCommunication {
		intent.Confidence = clamp(intent.Confidence + 0.1)
	}

	// A reminder spoken inside a calendar app is really a calendar request.
	if ctx.App == "calendar" && intent.Primary == LabelReminder {
		intent.Primary = LabelCalendar
		intent.Confidence = clamp(intent.Confidence + 0.05)
	}

	if ctx.Location == "home" && intent.Primary == LabelReminder {
		intent.Entities["location"] = "home"
	}

	if ctx.Time != nil {
		if ctx.Time.Hour >= 5 && ctx.Time.Hour <= 9 && intent.Primary == LabelUnknown {
			intent.Primary = LabelMorningRoutine
			intent.Confidence = 0.6
		}
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
