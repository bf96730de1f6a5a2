package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alihub/ali-intent/internal/config"
	"github.com/alihub/ali-intent/internal/intent"
	"github.com/alihub/ali-intent/internal/ledger"
	"github.com/alihub/ali-intent/internal/pattern"
	"github.com/alihub/ali-intent/internal/persist"
	"github.com/alihub/ali-intent/internal/task"
)

// Monday, 9 AM.
var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// newTestEngine builds an in-memory engine with a fake clock and a roll
// that never triggers the probabilistic branches.
func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	cfg := config.Default()
	e := New(cfg, nil, slog.Default())
	clock := &fakeClock{now: testStart}
	e.now = clock.Now
	e.roll = func() float64 { return 0.99 }
	return e, clock
}

func ledgerTypes(l *ledger.Ledger) []string {
	var types []string
	for _, r := range l.All() {
		types = append(types, r.Type)
	}
	return types
}

func TestImmediateTaskExecutedOnNextSweep(t *testing.T) {
	e, clock := newTestEngine(t)
	_, err := e.AddTask(task.Task{Type: "reminder", Content: "call mom"})
	require.NoError(t, err)

	e.cycle(clock.Now())

	assert.Empty(t, e.PendingTasks(), "task without scheduled time executes on the very next sweep")
	assert.Contains(t, ledgerTypes(e.ledger), "task_execution")
}

func TestScheduledTaskWaitsForItsTime(t *testing.T) {
	e, clock := newTestEngine(t)
	at := testStart.Add(time.Hour)
	_, err := e.AddTask(task.Task{Type: "reminder", ScheduledTime: &at})
	require.NoError(t, err)

	e.cycle(clock.Now())
	require.Len(t, e.PendingTasks(), 1, "task must not execute before its scheduled time")

	clock.Advance(59 * time.Minute)
	e.cycle(clock.Now())
	require.Len(t, e.PendingTasks(), 1)

	clock.Advance(time.Minute)
	e.cycle(clock.Now())
	assert.Empty(t, e.PendingTasks(), "task executes on the first sweep at or past its time")
}

func TestRecurringIntervalFires(t *testing.T) {
	e, clock := newTestEngine(t)
	_, err := e.AddRecurringTask(task.RecurringTask{
		Type:       "system_task",
		Content:    "nightly cleanup",
		Recurrence: task.Recurrence{IntervalHours: 24},
	})
	require.NoError(t, err)

	// First sweep after being added: fires immediately.
	e.cycle(clock.Now())
	require.Len(t, e.PendingTasks(), 1, "interval task with no prior execution fires on the first sweep")

	recurring := e.RecurringTasks()
	require.Len(t, recurring, 1, "execution never removes the recurring record")
	require.NotNil(t, recurring[0].LastExecution)

	// The spawned copy drains; the recurring task stays quiet.
	e.cycle(clock.Now())
	assert.Empty(t, e.PendingTasks())

	clock.Advance(23 * time.Hour)
	e.cycle(clock.Now())
	assert.Empty(t, e.PendingTasks(), "must not re-fire before 24 simulated hours")

	clock.Advance(time.Hour)
	e.cycle(clock.Now())
	assert.Len(t, e.PendingTasks(), 1, "re-fires once 24 hours have elapsed")
}

// panicSink makes every execution fail by panicking during event fan-out.
type panicSink struct{}

func (panicSink) Broadcast(string, map[string]any) { panic("sink exploded") }

func TestFailedExecutionRespectsRemovePolicy(t *testing.T) {
	e, clock := newTestEngine(t)
	e.SetEventSink(panicSink{})

	keep := false
	_, err := e.AddTask(task.Task{Type: "message", Content: "retry me", RemoveOnFailure: &keep})
	require.NoError(t, err)
	_, err = e.AddTask(task.Task{Type: "message", Content: "drop me"})
	require.NoError(t, err)

	e.cycle(clock.Now())

	pending := e.PendingTasks()
	require.Len(t, pending, 1, "remove_on_failure=false keeps the task queued for retry")
	assert.Equal(t, "retry me", pending[0].Content)
	assert.Equal(t, 1, pending[0].Attempts)

	// Failures are still attempts: both executions hit the ledger.
	count := 0
	for _, typ := range ledgerTypes(e.ledger) {
		if typ == "task_execution" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestLoopSurvivesPanickingCycle(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetEventSink(panicSink{})
	_, err := e.AddTask(task.Task{Type: "message"})
	require.NoError(t, err)

	require.NoError(t, e.safeCycle(), "handler panics are contained inside execute")

	e.miner = minerFunc(func([]ledger.Record, time.Time) []pattern.Pattern {
		panic("miner exploded")
	})
	e.roll = func() float64 { return 0 } // force the mining branch
	err = e.safeCycle()
	require.Error(t, err, "a panic escaping a sweep surfaces as a loop error, not a crash")
}

type minerFunc func([]ledger.Record, time.Time) []pattern.Pattern

func (f minerFunc) Mine(w []ledger.Record, now time.Time) []pattern.Pattern { return f(w, now) }

func TestMiningMergesCandidatesAboveRoutineThreshold(t *testing.T) {
	e, clock := newTestEngine(t)
	e.SetMiner(minerFunc(func([]ledger.Record, time.Time) []pattern.Pattern {
		return []pattern.Pattern{
			{Kind: pattern.TimePattern, Confidence: 0.75, Description: "Morning information check routine"},
			{Kind: pattern.SequencePattern, Confidence: 0.5, Description: "Weak hunch"},
		}
	}))

	e.mine(clock.Now())

	all := e.Patterns()
	require.Len(t, all, 1, "candidates below the routine threshold are discarded")
	assert.Equal(t, "Morning information check routine", all[0].Description)

	// Re-mining the same routine must not accumulate duplicates.
	e.mine(clock.Now())
	assert.Len(t, e.Patterns(), 1)
}

func TestProcessInputCreatesReminder(t *testing.T) {
	e, _ := newTestEngine(t)
	resp := e.ProcessInput("remind me to call mom at 5pm", nil)

	assert.Equal(t, intent.LabelReminder, resp.Intent)
	assert.Equal(t, "I've set a reminder for you.", resp.Text)
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, "reminder_created", resp.Actions[0].Type)

	pending := e.PendingTasks()
	require.Len(t, pending, 1)
	assert.Equal(t, "reminder", pending[0].Type)
	require.NotNil(t, pending[0].ScheduledTime, "a time phrase schedules the reminder")
	assert.Equal(t, testStart.Add(time.Hour), *pending[0].ScheduledTime)

	types := ledgerTypes(e.ledger)
	assert.Contains(t, types, "user_input")
	assert.Contains(t, types, "system_response")
}

func TestProcessInputMorningRoutine(t *testing.T) {
	e, _ := newTestEngine(t)
	ictx := &intent.Context{Time: &intent.TimeContext{Hour: 7}}
	resp := e.ProcessInput("what is the weather", ictx)

	assert.Equal(t, intent.LabelMorningRoutine, resp.Intent)
	assert.Equal(t, 0.6, resp.Confidence)
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, "routine_triggered", resp.Actions[0].Type)
}

func TestProcessInputUnknownTakesNoAction(t *testing.T) {
	e, _ := newTestEngine(t)
	resp := e.ProcessInput("what is the weather", nil)
	assert.Equal(t, intent.LabelUnknown, resp.Intent)
	assert.Equal(t, 0.5, resp.Confidence)
	assert.Empty(t, resp.Actions)
	assert.Empty(t, e.PendingTasks())
}

func TestPredictNextAction(t *testing.T) {
	e, _ := newTestEngine(t)
	e.patterns.Merge([]pattern.Pattern{{
		Kind:        pattern.TimePattern,
		Confidence:  0.75,
		Description: "Morning information check routine",
		Data:        map[string]any{"day_period": "morning"},
	}}, testStart)

	morning := &intent.Context{Time: &intent.TimeContext{Hour: 7}}
	p := e.PredictNextAction(morning)
	assert.Equal(t, "morning_routine", p.Action)
	assert.Equal(t, 0.75, p.Confidence)
	assert.NotEmpty(t, p.SourcePattern)

	noon := &intent.Context{Time: &intent.TimeContext{Hour: 12}}
	p = e.PredictNextAction(noon)
	assert.Equal(t, "no_specific_prediction", p.Action)
	assert.Equal(t, 0.3, p.Confidence)
}

func TestTaskSuggestions(t *testing.T) {
	e, _ := newTestEngine(t)

	morning := &intent.Context{Time: &intent.TimeContext{Hour: 7}}
	suggestions := e.TaskSuggestions(morning)
	require.Len(t, suggestions, 2, "weekday morning yields weather and calendar suggestions")
	for _, s := range suggestions {
		assert.GreaterOrEqual(t, s.Confidence, e.thresholds.Suggestion)
	}

	evening := &intent.Context{Time: &intent.TimeContext{Hour: 20}}
	suggestions = e.TaskSuggestions(evening)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Review tomorrow's schedule", suggestions[0].Task)

	// Raising the threshold filters the evening suggestion out.
	e.thresholds.Suggestion = 0.7
	assert.Empty(t, e.TaskSuggestions(evening))
}

func TestStartIsIdempotentAndStopHalts(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Start()
	assert.True(t, e.Running())
	e.Start() // logged no-op
	assert.True(t, e.Running())

	e.Stop()
	assert.False(t, e.Running())
	e.Stop() // stopping twice is safe
}

// countingStore records every save so tests can observe flush behavior.
type countingStore struct {
	saves int
	state *persist.State
}

func (c *countingStore) Load(ctx context.Context, userID string) (*persist.State, error) {
	if c.state == nil {
		return nil, persist.ErrNoState
	}
	return c.state, nil
}

func (c *countingStore) Save(ctx context.Context, s *persist.State) error {
	c.saves++
	c.state = s
	return nil
}

func (c *countingStore) Close() error { return nil }

func TestSampledFlushSkipsWhenClean(t *testing.T) {
	cs := &countingStore{}
	cfg := config.Default()
	e := New(cfg, cs, slog.Default())
	clock := &fakeClock{now: testStart}
	e.now = clock.Now
	e.roll = func() float64 { return 0 } // sample every probabilistic branch
	e.SetMiner(minerFunc(func([]ledger.Record, time.Time) []pattern.Pattern { return nil }))

	e.cycle(clock.Now())
	assert.Zero(t, cs.saves, "nothing changed, nothing to persist")

	_, err := e.AddTask(task.Task{Type: "reminder", Content: "flush me"})
	require.NoError(t, err)
	e.cycle(clock.Now())
	assert.Equal(t, 1, cs.saves, "a state change reaches the next sampled flush")

	e.cycle(clock.Now())
	assert.Equal(t, 1, cs.saves, "a clean engine skips the sampled flush")
}

func TestProcessInputMarksStateForPersistence(t *testing.T) {
	cs := &countingStore{}
	cfg := config.Default()
	e := New(cfg, cs, slog.Default())
	clock := &fakeClock{now: testStart}
	e.now = clock.Now
	e.roll = func() float64 { return 0 }
	e.SetMiner(minerFunc(func([]ledger.Record, time.Time) []pattern.Pattern { return nil }))

	e.ProcessInput("hello there", nil)
	e.cycle(clock.Now())
	require.Equal(t, 1, cs.saves, "ledger-only changes must still be flushed")
	assert.NotEmpty(t, cs.state.History)
}

func TestStateSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	fs, err := persist.NewFileStore(dir)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Engine.UserID = "masterchief"

	e := New(cfg, fs, slog.Default())
	e.now = func() time.Time { return testStart }
	_, err = e.AddTask(task.Task{Type: "reminder", Content: "persisted"})
	require.NoError(t, err)
	_, err = e.AddRecurringTask(task.RecurringTask{
		Type:       "system_task",
		Recurrence: task.Recurrence{IntervalHours: 12},
	})
	require.NoError(t, err)
	e.flush()

	restarted := New(cfg, fs, slog.Default())
	pending := restarted.PendingTasks()
	require.Len(t, pending, 1)
	assert.Equal(t, "persisted", pending[0].Content)
	require.Len(t, restarted.RecurringTasks(), 1)
}
