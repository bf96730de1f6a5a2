package pattern

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Kind discriminates the two discovered pattern shapes.
type Kind string

const (
	TimePattern     Kind = "time_pattern"
	SequencePattern Kind = "sequence_pattern"
)

// Pattern is a discovered behavior routine. Never mutated after creation.
type Pattern struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	Confidence   float64        `json:"confidence"`
	Description  string         `json:"description"`
	DiscoveredAt time.Time      `json:"discovered_at"`
	Data         map[string]any `json:"data,omitempty"`
}

// Map holds discovered patterns keyed by a monotonic id. Candidates that
// duplicate an existing (kind, description) pair are dropped instead of
// accumulating, and patterns expire by age; both are deliberate deviations
// from the original accumulate-forever behavior.
type Map struct {
	mu       sync.Mutex
	patterns map[string]Pattern
	nextID   int
	onDirty  func()
}

func NewMap(onDirty func()) *Map {
	if onDirty == nil {
		onDirty = func() {}
	}
	return &Map{patterns: map[string]Pattern{}, onDirty: onDirty}
}

// Merge folds candidate patterns into the map, assigning the next monotonic
// id to each accepted candidate and clamping confidence to [0,1]. Returns
// the number of patterns actually added.
func (m *Map) Merge(candidates []Pattern, now time.Time) int {
	if len(candidates) == 0 {
		return 0
	}
	m.mu.Lock()
	added := 0
	for _, c := range candidates {
		if m.hasLocked(c.Kind, c.Description) {
			continue
		}
		m.nextID++
		c.ID = fmt.Sprintf("pattern_%d", m.nextID)
		c.Confidence = clamp(c.Confidence)
		c.DiscoveredAt = now
		m.patterns[c.ID] = c
		added++
	}
	m.mu.Unlock()

	if added > 0 {
		m.onDirty()
	}
	return added
}

func (m *Map) hasLocked(kind Kind, description string) bool {
	for _, p := range m.patterns {
		if p.Kind == kind && p.Description == description {
			return true
		}
	}
	return false
}

// All returns a copy of every pattern, ordered by discovery id.
func (m *Map) All() []Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Pattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return idNum(out[i].ID) < idNum(out[j].ID) })
	return out
}

func idNum(id string) int {
	var n int
	fmt.Sscanf(id, "pattern_%d", &n)
	return n
}

// Len reports the number of retained patterns.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.patterns)
}

// Expire drops patterns discovered before the cutoff. Returns the number
// removed.
func (m *Map) Expire(cutoff time.Time) int {
	m.mu.Lock()
	removed := 0
	for id, p := range m.patterns {
		if p.DiscoveredAt.Before(cutoff) {
			delete(m.patterns, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.onDirty()
	}
	return removed
}

// Replace swaps in previously persisted patterns, keeping the monotonic
// counter ahead of every loaded id.
func (m *Map) Replace(patterns []Pattern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = make(map[string]Pattern, len(patterns))
	m.nextID = 0
	for _, p := range patterns {
		m.patterns[p.ID] = p
		if n := idNum(p.ID); n > m.nextID {
			m.nextID = n
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
