package task

import (
	"time"
)

// Priority orders tasks for display; the scheduler treats all due tasks
// equally within a sweep.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Task is a one-shot unit of work. A nil ScheduledTime means the task is
// due immediately. Tasks are destroyed when executed (success, or failure
// with RemoveOnFailure unset/true) or explicitly removed by ID.
type Task struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Content         string         `json:"content,omitempty"`
	Priority        Priority       `json:"priority,omitempty"`
	ScheduledTime   *time.Time     `json:"scheduled_time,omitempty"`
	Created         time.Time      `json:"created"`
	RemoveOnFailure *bool          `json:"remove_on_failure,omitempty"`
	Attempts        int            `json:"attempts,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// RemoveOnFail reports whether a failed execution should still remove the
// task. Unset defaults to true.
func (t *Task) RemoveOnFail() bool {
	return t.RemoveOnFailure == nil || *t.RemoveOnFailure
}

// Due reports whether the task should execute at the given instant.
func (t *Task) Due(now time.Time) bool {
	return t.ScheduledTime == nil || !now.Before(*t.ScheduledTime)
}

// clone returns a copy sharing no mutable state with the original, so
// snapshots handed across the store boundary can never alias live data.
func (t Task) clone() Task {
	if t.ScheduledTime != nil {
		at := *t.ScheduledTime
		t.ScheduledTime = &at
	}
	if t.RemoveOnFailure != nil {
		rof := *t.RemoveOnFailure
		t.RemoveOnFailure = &rof
	}
	t.Extra = cloneExtra(t.Extra)
	return t
}

func cloneExtra(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Recurrence describes when a recurring task re-fires. Exactly one
// discriminator must be set: IntervalHours > 0, DayOfWeek non-nil, or
// PatternTriggered. HourOfDay optionally narrows a weekly recurrence.
type Recurrence struct {
	IntervalHours    float64       `json:"interval_hours,omitempty"`
	DayOfWeek        *time.Weekday `json:"day_of_week,omitempty"`
	HourOfDay        *int          `json:"hour_of_day,omitempty"`
	PatternTriggered bool          `json:"pattern_triggered,omitempty"`
}

// Valid reports whether exactly one recurrence discriminator is set.
func (r *Recurrence) Valid() bool {
	n := 0
	if r.IntervalHours > 0 {
		n++
	}
	if r.DayOfWeek != nil {
		n++
	}
	if r.PatternTriggered {
		n++
	}
	return n == 1
}

// Kind names the active discriminator for logging and metrics.
func (r *Recurrence) Kind() string {
	switch {
	case r.IntervalHours > 0:
		return "interval"
	case r.DayOfWeek != nil:
		return "weekly"
	case r.PatternTriggered:
		return "pattern"
	}
	return "none"
}

// RecurringTask is a template that periodically spawns one-shot tasks.
// It is never consumed by execution; deactivation is via Active=false.
type RecurringTask struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Content       string         `json:"content,omitempty"`
	Recurrence    Recurrence     `json:"recurrence"`
	LastExecution *time.Time     `json:"last_execution,omitempty"`
	Active        bool           `json:"active"`
	Created       time.Time      `json:"created"`
	Extra         map[string]any `json:"extra,omitempty"`
}

func (rt RecurringTask) clone() RecurringTask {
	if rt.LastExecution != nil {
		le := *rt.LastExecution
		rt.LastExecution = &le
	}
	if rt.Recurrence.DayOfWeek != nil {
		d := *rt.Recurrence.DayOfWeek
		rt.Recurrence.DayOfWeek = &d
	}
	if rt.Recurrence.HourOfDay != nil {
		h := *rt.Recurrence.HourOfDay
		rt.Recurrence.HourOfDay = &h
	}
	rt.Extra = cloneExtra(rt.Extra)
	return rt
}

// ShouldFire evaluates the recurrence rule at the given instant. roll is a
// uniform [0,1) sample used only by pattern-triggered recurrences, compared
// against fireProb; the probabilistic trigger is a documented stand-in for
// real pattern detection.
func (rt *RecurringTask) ShouldFire(now time.Time, roll, fireProb float64) bool {
	if !rt.Active {
		return false
	}
	r := &rt.Recurrence

	switch {
	case r.IntervalHours > 0:
		if rt.LastExecution == nil {
			return true
		}
		interval := time.Duration(r.IntervalHours * float64(time.Hour))
		return now.Sub(*rt.LastExecution) >= interval

	case r.DayOfWeek != nil:
		if now.Weekday() != *r.DayOfWeek {
			return false
		}
		if rt.LastExecution != nil && sameDate(*rt.LastExecution, now) {
			return false
		}
		if r.HourOfDay != nil {
			return now.Hour() == *r.HourOfDay
		}
		return true

	case r.PatternTriggered:
		return roll < fireProb
	}
	return false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
