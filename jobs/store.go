package jobs

import (
	"slices"
	"sync"

	"github.com/lexoliu/progressor/logging"
)

// Store keeps the history of finished runs, most recent first.
type Store interface {
	// History returns summaries of stored runs, most recent first.
	History() []RunSummary
	// Logs returns the captured log entries of a run, or nil if unknown.
	Logs(id string) []logging.LogEntry
	// Save records a finished run.
	Save(summary RunSummary, logs []logging.LogEntry) error
}

// MemoryStore keeps run history in memory only.
type MemoryStore struct {
	mu       sync.Mutex
	runs     []runRecord
	maxCount int
}

// NewMemoryStore creates a store that keeps the maxCount most recent runs.
// A non-positive maxCount keeps every run.
func NewMemoryStore(maxCount int) *MemoryStore {
	return &MemoryStore{maxCount: maxCount}
}

// History implements Store.
func (s *MemoryStore) History() []RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunSummary, len(s.runs))
	for i, run := range s.runs {
		result[i] = run.RunSummary
	}
	return result
}

// Logs implements Store.
func (s *MemoryStore) Logs(id string) []logging.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == id {
			return slices.Clone(run.Logs)
		}
	}
	return nil
}

// Save implements Store.
func (s *MemoryStore) Save(summary RunSummary, logs []logging.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = slices.Insert(s.runs, 0, runRecord{RunSummary: summary, Logs: logs})
	if s.maxCount > 0 && len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}
	return nil
}
