package ledger

import (
	"sync"
	"time"
)

// Record is a single observed behavior: a user input, a system response
// or a task execution.
type Record struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Ledger is an append-only, bounded log of behavior records. When the
// capacity is exceeded the oldest records are evicted. Insertion order is
// the only ordering guarantee.
type Ledger struct {
	mu       sync.Mutex
	records  []Record
	capacity int
}

// DefaultCapacity bounds the raw in-memory history fed to the miner.
const DefaultCapacity = 200

func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{capacity: capacity}
}

// Append records a behavior, evicting the oldest entries on overflow. The
// payload is copied; the caller keeps ownership of its map.
func (l *Ledger) Append(recordType string, payload map[string]any, ts time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, Record{Type: recordType, Payload: clonePayload(payload), Timestamp: ts})
	if len(l.records) > l.capacity {
		l.records = l.records[len(l.records)-l.capacity:]
	}
}

// Recent returns a deep copy of the newest n records, oldest first.
func (l *Ledger) Recent(n int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.records) {
		n = len(l.records)
	}
	return cloneRecords(l.records[len(l.records)-n:])
}

// All returns a deep copy of every retained record, oldest first.
func (l *Ledger) All() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneRecords(l.records)
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		r.Payload = clonePayload(r.Payload)
		out[i] = r
	}
	return out
}

func clonePayload(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Len reports the number of retained records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Replace swaps in a previously persisted history, truncated to capacity.
func (l *Ledger) Replace(records []Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(records) > l.capacity {
		records = records[len(records)-l.capacity:]
	}
	l.records = cloneRecords(records)
}
