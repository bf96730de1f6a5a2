package task

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alihub/ali-intent/internal/metrics"
)

var (
	// ErrMissingType rejects tasks without a type.
	ErrMissingType = errors.New("task is missing a type")
	// ErrMissingRecurrence rejects recurring tasks without exactly one
	// recurrence discriminator.
	ErrMissingRecurrence = errors.New("recurring task needs exactly one recurrence rule")
	// ErrInvalidHour rejects weekly recurrences outside the 0-23 range.
	ErrInvalidHour = errors.New("hour_of_day must be between 0 and 23")
	// ErrNotFound reports an unknown task ID.
	ErrNotFound = errors.New("task not found")
)

// Store owns the one-shot queue and the recurring table. All access is
// serialized behind a single mutex; snapshot reads return copies, never
// live references. Every mutation invokes the dirty hook so the owner can
// schedule a persistence write.
type Store struct {
	mu        sync.Mutex
	queue     []Task
	recurring []RecurringTask
	onDirty   func()
	logger    *slog.Logger
}

func NewStore(logger *slog.Logger, onDirty func()) *Store {
	if onDirty == nil {
		onDirty = func() {}
	}
	return &Store{onDirty: onDirty, logger: logger}
}

// Add validates and enqueues a one-shot task, stamping its ID and creation
// time. The stamped copy is returned.
func (s *Store) Add(t Task, now time.Time) (Task, error) {
	if t.Type == "" {
		return Task{}, ErrMissingType
	}
	t.ID = uuid.NewString()
	t.Created = now

	s.mu.Lock()
	s.queue = append(s.queue, t.clone())
	metrics.PendingTasks.Set(float64(len(s.queue)))
	s.mu.Unlock()

	s.logger.Info("Task added to queue", "task_id", t.ID, "type", t.Type)
	s.onDirty()
	return t, nil
}

// AddRecurring validates and registers a recurring task, stamping its ID
// and creation time and marking it active.
func (s *Store) AddRecurring(rt RecurringTask, now time.Time) (RecurringTask, error) {
	if rt.Type == "" {
		return RecurringTask{}, ErrMissingType
	}
	if !rt.Recurrence.Valid() {
		return RecurringTask{}, ErrMissingRecurrence
	}
	if h := rt.Recurrence.HourOfDay; h != nil && (*h < 0 || *h > 23) {
		return RecurringTask{}, ErrInvalidHour
	}
	rt.ID = uuid.NewString()
	rt.Created = now
	rt.Active = true

	s.mu.Lock()
	s.recurring = append(s.recurring, rt.clone())
	s.mu.Unlock()

	s.logger.Info("Recurring task added", "task_id", rt.ID, "type", rt.Type, "kind", rt.Recurrence.Kind())
	s.onDirty()
	return rt, nil
}

// Remove deletes a one-shot task by its stable ID.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	idx := -1
	for i := range s.queue {
		if s.queue[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	metrics.PendingTasks.Set(float64(len(s.queue)))
	s.mu.Unlock()

	s.logger.Info("Task removed from queue", "task_id", id)
	s.onDirty()
	return nil
}

// Deactivate turns off a recurring task without deleting it.
func (s *Store) Deactivate(id string) error {
	s.mu.Lock()
	idx := -1
	for i := range s.recurring {
		if s.recurring[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.recurring[idx].Active = false
	s.mu.Unlock()

	s.logger.Info("Recurring task deactivated", "task_id", id)
	s.onDirty()
	return nil
}

// Pending returns a point-in-time deep copy of the one-shot queue.
func (s *Store) Pending() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.queue))
	for i := range s.queue {
		out[i] = s.queue[i].clone()
	}
	return out
}

// Recurring returns a point-in-time deep copy of the recurring table.
func (s *Store) Recurring() []RecurringTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecurringTask, len(s.recurring))
	for i := range s.recurring {
		out[i] = s.recurring[i].clone()
	}
	return out
}

// Due returns deep copies of every task due at the given instant.
func (s *Store) Due(now time.Time) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Task
	for i := range s.queue {
		if s.queue[i].Due(now) {
			due = append(due, s.queue[i].clone())
		}
	}
	return due
}

// Resolve settles an executed task: it is removed on success or when its
// remove-on-failure policy says so; otherwise its attempt count grows and
// it stays queued for the next sweep. maxAttempts > 0 caps retries; 0
// preserves unbounded retry. Returns ErrNotFound if the task was removed
// concurrently, which the sweep treats as already settled.
func (s *Store) Resolve(id string, success bool, maxAttempts int) error {
	s.mu.Lock()
	idx := -1
	for i := range s.queue {
		if s.queue[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}

	t := &s.queue[idx]
	t.Attempts++
	remove := success || t.RemoveOnFail()
	if !remove && maxAttempts > 0 && t.Attempts >= maxAttempts {
		s.logger.Warn("Task exceeded retry cap, dropping", "task_id", id, "attempts", t.Attempts)
		remove = true
	}
	if remove {
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
		metrics.PendingTasks.Set(float64(len(s.queue)))
	}
	s.mu.Unlock()

	s.onDirty()
	return nil
}

// Fire materializes a one-shot copy of a recurring task stamped with the
// firing time, enqueues it and updates LastExecution. The update happens
// exactly once per fire; the recurring record itself is never consumed.
func (s *Store) Fire(id string, now time.Time) (Task, error) {
	s.mu.Lock()
	idx := -1
	for i := range s.recurring {
		if s.recurring[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return Task{}, ErrNotFound
	}

	rt := &s.recurring[idx]
	fireTime := now
	t := Task{
		ID:            uuid.NewString(),
		Type:          rt.Type,
		Content:       rt.Content,
		ScheduledTime: &fireTime,
		Created:       now,
		Extra:         cloneExtra(rt.Extra),
	}
	lastExec := fireTime
	rt.LastExecution = &lastExec
	s.queue = append(s.queue, t.clone())
	metrics.PendingTasks.Set(float64(len(s.queue)))
	s.mu.Unlock()

	s.logger.Info("Recurring task fired", "task_id", id, "type", t.Type)
	s.onDirty()
	return t, nil
}

// Replace swaps in previously persisted state.
func (s *Store) Replace(queue []Task, recurring []RecurringTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = make([]Task, len(queue))
	for i := range queue {
		s.queue[i] = queue[i].clone()
	}
	s.recurring = make([]RecurringTask, len(recurring))
	for i := range recurring {
		s.recurring[i] = recurring[i].clone()
	}
	metrics.PendingTasks.Set(float64(len(s.queue)))
}
