package logging

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxEntries bounds how many entries a LogCollector keeps per key.
const DefaultMaxEntries = 1000

// LogEntry represents a single log record with structured data.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogCollector stores captured log entries grouped by key, typically a task
// or run ID. Once a key holds maxEntries entries the oldest are discarded.
type LogCollector struct {
	mu         sync.RWMutex
	logs       map[string][]LogEntry
	maxEntries int
}

// NewLogCollector creates a LogCollector that keeps at most maxEntries per
// key. A non-positive maxEntries selects DefaultMaxEntries.
func NewLogCollector(maxEntries int) *LogCollector {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &LogCollector{
		logs:       make(map[string][]LogEntry),
		maxEntries: maxEntries,
	}
}

// Add appends an entry for key.
func (c *LogCollector) Add(key string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := append(c.logs[key], entry)
	if over := len(entries) - c.maxEntries; over > 0 {
		entries = append(entries[:0:0], entries[over:]...)
	}
	c.logs[key] = entries
}

// Logs returns a copy of the entries for key, oldest first.
func (c *LogCollector) Logs(key string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, ok := c.logs[key]
	if !ok {
		return nil
	}
	result := make([]LogEntry, len(entries))
	copy(result, entries)
	return result
}

// All returns a copy of every key's entries.
func (c *LogCollector) All() map[string][]LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string][]LogEntry, len(c.logs))
	for key, entries := range c.logs {
		cp := make([]LogEntry, len(entries))
		copy(cp, entries)
		result[key] = cp
	}
	return result
}

// Remove drops the entries for key and returns them.
func (c *LogCollector) Remove(key string) []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.logs[key]
	delete(c.logs, key)
	return entries
}

// Logger returns a logger that writes through base and records every entry
// under key, regardless of base's level.
func (c *LogCollector) Logger(base *slog.Logger, key string) *slog.Logger {
	return slog.New(NewCapturingHandler(base.Handler(), c, key))
}
