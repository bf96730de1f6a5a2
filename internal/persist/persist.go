// Package persist implements the engine's state load/save collaborators.
// Every backend is idempotent and tolerant of missing prior state: a load
// miss returns ErrNoState and the engine starts from empty defaults.
package persist

import (
	"context"
	"errors"
	"time"

	"github.com/alihub/ali-intent/internal/config"
	"github.com/alihub/ali-intent/internal/ledger"
	"github.com/alihub/ali-intent/internal/pattern"
	"github.com/alihub/ali-intent/internal/task"
)

// ErrNoState reports that no prior state exists for the user.
var ErrNoState = errors.New("no saved state")

// HistoryLimit bounds the persisted behavior history.
const HistoryLimit = 100

// State is the full persisted snapshot of one engine instance.
type State struct {
	UserID      string               `json:"user_id"`
	Patterns    []pattern.Pattern    `json:"intent_patterns"`
	History     []ledger.Record      `json:"behavior_history"`
	Queue       []task.Task          `json:"task_queue"`
	Recurring   []task.RecurringTask `json:"recurring_tasks"`
	Thresholds  config.Thresholds    `json:"thresholds"`
	LastUpdated time.Time            `json:"last_updated"`
}

// trim bounds the persisted history to the newest HistoryLimit records.
func (s *State) trim() {
	if len(s.History) > HistoryLimit {
		s.History = s.History[len(s.History)-HistoryLimit:]
	}
}

// Store is the persistence contract the engine depends on.
type Store interface {
	Load(ctx context.Context, userID string) (*State, error)
	Save(ctx context.Context, state *State) error
	Close() error
}
