package engine

import (
	"time"

	"github.com/alihub/ali-intent/internal/metrics"
	"github.com/alihub/ali-intent/internal/task"
)

// execute dispatches one due task to its handler. Handlers are
// external-effect stubs; a panic is converted to failure. The attempt is
// recorded in the behavior ledger before the queue decision is made.
func (e *Engine) execute(t task.Task, now time.Time) (success bool) {
	log := e.logger.With("task_id", t.ID, "task_type", t.Type)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Task handler panicked", "panic", r)
			success = false
		}
		outcome := "success"
		if !success {
			outcome = "failure"
		}
		metrics.TasksExecuted.WithLabelValues(t.Type, outcome).Inc()
	}()

	e.record("task_execution", map[string]any{
		"task_id":   t.ID,
		"task_type": t.Type,
	}, now)

	switch t.Type {
	case "reminder":
		log.Info("REMINDER", "content", t.Content)
	case "data_collection":
		log.Info("Collecting data", "target", t.Content)
	case "message":
		log.Info("Sending message", "content", t.Content)
	case "system_task":
		log.Info("Running system task", "action", t.Content)
	case "content_preparation":
		log.Info("Preparing content", "description", t.Content)
	default:
		log.Warn("Unknown task type, nothing to do")
	}

	e.broadcast("task_executed", map[string]any{
		"task_id": t.ID,
		"type":    t.Type,
		"content": t.Content,
	})

	log.Info("Task executed")
	return true
}
