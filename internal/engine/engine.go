// Package engine ties the classifier, task store, behavior ledger and
// pattern miner together behind one facade and runs the background
// scheduler loop. Engines are constructor-injected dependencies; there is
// no ambient instance.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alihub/ali-intent/internal/config"
	"github.com/alihub/ali-intent/internal/intent"
	"github.com/alihub/ali-intent/internal/ledger"
	"github.com/alihub/ali-intent/internal/metrics"
	"github.com/alihub/ali-intent/internal/pattern"
	"github.com/alihub/ali-intent/internal/persist"
	"github.com/alihub/ali-intent/internal/task"
)

// EventSink receives engine events for fan-out to connected clients.
// Implementations must not block.
type EventSink interface {
	Broadcast(eventType string, payload map[string]any)
}

// Engine is one user's proactive intent engine. Foreground calls and the
// background loop share the task store, ledger and pattern map; all three
// serialize their own mutations, and reads hand out copies.
type Engine struct {
	cfg         *config.Config
	thresholds  config.Thresholds
	store       *task.Store
	ledger      *ledger.Ledger
	patterns    *pattern.Map
	persistence persist.Store
	miner       pattern.Miner
	events      EventSink
	logger      *slog.Logger

	// injectable for deterministic tests
	now  func() time.Time
	roll func() float64

	cron *cron.Cron

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// dirty tracks unflushed state changes; the sampled flush in the
	// background loop skips when clean.
	dirty atomic.Bool
}

// New builds an engine and loads any previously persisted state. A nil
// persistence store means the engine runs purely in memory.
func New(cfg *config.Config, ps persist.Store, logger *slog.Logger) *Engine {
	e := &Engine{
		cfg:         cfg,
		thresholds:  cfg.Thresholds,
		persistence: ps,
		logger:      logger,
		now:         time.Now,
		roll:        rand.Float64,
	}
	markDirty := func() { e.dirty.Store(true) }
	e.store = task.NewStore(logger, markDirty)
	e.ledger = ledger.New(ledger.DefaultCapacity)
	e.patterns = pattern.NewMap(markDirty)
	e.miner = pattern.NewHeuristicMiner(func() float64 { return e.roll() })

	e.loadState()
	logger.Info("Intent engine initialized", "user_id", cfg.Engine.UserID)
	return e
}

// SetEventSink attaches an event fan-out target. Must be called before
// Start.
func (e *Engine) SetEventSink(sink EventSink) { e.events = sink }

// SetMiner swaps in an alternative mining strategy. Must be called before
// Start.
func (e *Engine) SetMiner(m pattern.Miner) { e.miner = m }

func (e *Engine) broadcast(eventType string, payload map[string]any) {
	if e.events != nil {
		e.events.Broadcast(eventType, payload)
	}
}

// record appends a behavior to the ledger and marks the engine dirty so
// the history change reaches the next sampled flush.
func (e *Engine) record(recordType string, payload map[string]any, ts time.Time) {
	e.ledger.Append(recordType, payload, ts)
	e.dirty.Store(true)
}

// loadState applies persisted state. Any failure is logged and the engine
// starts from empty defaults; a load problem is never fatal.
func (e *Engine) loadState() {
	if e.persistence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := e.persistence.Load(ctx, e.cfg.Engine.UserID)
	if err != nil {
		if errors.Is(err, persist.ErrNoState) {
			e.logger.Info("No saved intent state, starting fresh", "user_id", e.cfg.Engine.UserID)
		} else {
			e.logger.Error("Failed to load intent state, starting fresh", "error", err)
		}
		return
	}

	e.store.Replace(state.Queue, state.Recurring)
	e.ledger.Replace(state.History)
	e.patterns.Replace(state.Patterns)
	if state.Thresholds != (config.Thresholds{}) {
		e.thresholds = state.Thresholds
	}
	e.logger.Info("Loaded intent state",
		"user_id", state.UserID,
		"tasks", len(state.Queue),
		"recurring", len(state.Recurring),
		"patterns", len(state.Patterns))
}

// flush writes the current snapshot to the persistence collaborator.
// Failures are logged and the engine keeps running on in-memory state.
func (e *Engine) flush() {
	if e.persistence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state := &persist.State{
		UserID:      e.cfg.Engine.UserID,
		Patterns:    e.patterns.All(),
		History:     e.ledger.All(),
		Queue:       e.store.Pending(),
		Recurring:   e.store.Recurring(),
		Thresholds:  e.thresholds,
		LastUpdated: e.now(),
	}
	if err := e.persistence.Save(ctx, state); err != nil {
		metrics.PersistenceFlushes.WithLabelValues("failure").Inc()
		e.logger.Error("Failed to save intent state", "error", err)
		return
	}
	metrics.PersistenceFlushes.WithLabelValues("success").Inc()
	e.dirty.Store(false)
	e.logger.Debug("Saved intent state", "user_id", e.cfg.Engine.UserID)
}

// AddTask validates and enqueues a one-shot task.
func (e *Engine) AddTask(t task.Task) (task.Task, error) {
	return e.store.Add(t, e.now())
}

// AddRecurringTask validates and registers a recurring task.
func (e *Engine) AddRecurringTask(rt task.RecurringTask) (task.RecurringTask, error) {
	return e.store.AddRecurring(rt, e.now())
}

// RemoveTask removes a queued one-shot task by ID.
func (e *Engine) RemoveTask(id string) error {
	return e.store.Remove(id)
}

// DeactivateRecurringTask turns off a recurring task. The record is kept;
// recurring tasks are never destroyed by execution or deactivation.
func (e *Engine) DeactivateRecurringTask(id string) error {
	return e.store.Deactivate(id)
}

// PendingTasks returns a snapshot of the one-shot queue.
func (e *Engine) PendingTasks() []task.Task {
	return e.store.Pending()
}

// RecurringTasks returns a snapshot of the recurring table.
func (e *Engine) RecurringTasks() []task.RecurringTask {
	return e.store.Recurring()
}

// Patterns returns a snapshot of the discovered patterns.
func (e *Engine) Patterns() []pattern.Pattern {
	return e.patterns.All()
}

// Action is one side effect the engine took (or prepared) for an input.
type Action struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Response is the engine's answer to one piece of user input.
type Response struct {
	Text       string   `json:"text"`
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Actions    []Action `json:"actions"`
}

// ProcessInput records the input, classifies it and acts on the recognized
// intent. Both the input and the response land in the behavior ledger.
func (e *Engine) ProcessInput(text string, ictx *intent.Context) Response {
	now := e.now()
	e.record("user_input", map[string]any{"text": text}, now)

	it := intent.Classify(text, ictx)
	metrics.InputsProcessed.WithLabelValues(it.Primary).Inc()
	e.logger.Debug("Recognized intent", "intent", it.Primary, "confidence", it.Confidence)

	resp := e.respond(it, text, now)

	e.record("system_response", map[string]any{
		"intent":     it.Primary,
		"confidence": it.Confidence,
		"actions":    len(resp.Actions),
	}, now)
	return resp
}

func (e *Engine) respond(it intent.Intent, text string, now time.Time) Response {
	resp := Response{
		Text:       "I understand your request.",
		Intent:     it.Primary,
		Confidence: it.Confidence,
		Actions:    []Action{},
	}

	switch it.Primary {
	case intent.LabelReminder:
		// Auto-creation is gated by the auto_complete threshold.
		if it.Confidence < e.thresholds.AutoComplete {
			break
		}
		reminder := task.Task{Type: "reminder", Content: text}
		if _, ok := it.Entities["time"]; ok {
			// Placeholder parse: a concrete time phrase schedules an hour out.
			at := now.Add(time.Hour)
			reminder.ScheduledTime = &at
		}
		added, err := e.store.Add(reminder, now)
		if err != nil {
			e.logger.Error("Failed to auto-create reminder", "error", err)
			break
		}
		resp.Text = "I've set a reminder for you."
		resp.Actions = append(resp.Actions, Action{
			Type: "reminder_created",
			Data: map[string]any{"task_id": added.ID},
		})

	case intent.LabelCalendar:
		if it.Confidence >= 0.7 {
			resp.Text = "I can help you with your calendar."
			resp.Actions = append(resp.Actions, Action{Type: "calendar_access"})
		}

	case intent.LabelSearch:
		if it.Confidence >= 0.6 {
			query := it.Entities["query"]
			resp.Text = "I'll search for information about " + query + "."
			resp.Actions = append(resp.Actions, Action{
				Type: "search",
				Data: map[string]any{"query": query},
			})
		}

	case intent.LabelCommunication:
		if it.Confidence >= 0.7 {
			recipient := it.Entities["recipient"]
			if recipient == "" {
				recipient = "someone"
			}
			resp.Text = "I can help you communicate with " + recipient + "."
			resp.Actions = append(resp.Actions, Action{
				Type: "communication_preparation",
				Data: map[string]any{"recipient": recipient},
			})
		}

	case intent.LabelHelp:
		resp.Text = "I'm here to help you. You can ask me to set reminders, search for information, help with communication, and more."
		resp.Actions = append(resp.Actions, Action{Type: "help_provided"})

	case intent.LabelMorningRoutine:
		resp.Text = "Good morning! I'm preparing your daily briefing."
		resp.Actions = append(resp.Actions, Action{
			Type: "routine_triggered",
			Data: map[string]any{"routine": "morning"},
		})
	}

	return resp
}
