package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/lexoliu/progressor/logging"
)

// DiskStore persists run history as one JSON file per run and keeps the
// most recent runs in memory.
type DiskStore struct {
	dir      string
	logger   *slog.Logger
	maxCount int

	mu   sync.Mutex
	runs []runRecord
}

// NewDiskStore creates a DiskStore in dir, creating the directory if needed
// and loading the runs already there. Unreadable files are skipped.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &DiskStore{
		dir:      dir,
		logger:   logger,
		maxCount: maxCount,
	}
	runs, err := s.load()
	if err != nil {
		return nil, err
	}
	s.runs = runs
	return s, nil
}

// History implements Store.
func (s *DiskStore) History() []RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]RunSummary, len(s.runs))
	for i, run := range s.runs {
		result[i] = run.RunSummary
	}
	return result
}

// Logs implements Store.
func (s *DiskStore) Logs(id string) []logging.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		if run.ID == id {
			return slices.Clone(run.Logs)
		}
	}
	return nil
}

// Save implements Store. The file is named after the run ID.
func (s *DiskStore) Save(summary RunSummary, logs []logging.LogEntry) error {
	if summary.ID == "" {
		return errors.New("cannot save run without an ID")
	}
	if summary.StartedAt == nil {
		return errors.New("cannot save run without start time")
	}

	run := runRecord{RunSummary: summary, Logs: logs}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, summary.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}
	s.logger.Debug("saved run to disk", "path", path)

	s.runs = slices.Insert(s.runs, 0, run)
	if s.maxCount > 0 && len(s.runs) > s.maxCount {
		for _, old := range s.runs[s.maxCount:] {
			if err := os.Remove(filepath.Join(s.dir, old.ID+".json")); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("failed to remove old run file", "id", old.ID, "error", err)
			}
		}
		s.runs = s.runs[:s.maxCount]
	}
	return nil
}

// Reload re-reads the state directory, picking up runs written by other
// processes such as progress-cli.
func (s *DiskStore) Reload() error {
	runs, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = runs
	return nil
}

func (s *DiskStore) load() ([]runRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var runs []runRecord
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read run file", "file", path, "error", err)
			continue
		}
		var run runRecord
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Warn("failed to parse run file", "file", path, "error", err)
			continue
		}
		if run.ID == "" || run.StartedAt == nil {
			s.logger.Warn("skipping incomplete run file", "file", path)
			continue
		}
		runs = append(runs, run)
	}

	slices.SortFunc(runs, func(a, b runRecord) int {
		return b.StartedAt.Compare(*a.StartedAt)
	})
	if s.maxCount > 0 && len(runs) > s.maxCount {
		runs = runs[:s.maxCount]
	}

	s.logger.Info("loaded run history from disk", "count", len(runs), "dir", s.dir)
	return runs, nil
}
