package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lexoliu/progressor/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSummary(id string, started time.Time) RunSummary {
	ended := started.Add(time.Second)
	return RunSummary{
		ID:        id,
		Job:       "reindex",
		State:     "completed",
		Current:   10,
		Total:     10,
		StartedAt: &started,
		EndedAt:   &ended,
	}
}

func testLogs(msg string) []logging.LogEntry {
	return []logging.LogEntry{{
		Time:       time.Now(),
		Level:      "INFO",
		Message:    msg,
		Attributes: map[string]any{"job": "reindex"},
	}}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(2)
	base := time.Now()

	for i := range 3 {
		id := fmt.Sprintf("run-%d", i)
		require.NoError(t, store.Save(testSummary(id, base.Add(time.Duration(i)*time.Minute)), testLogs(id)))
	}

	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, "run-2", history[0].ID)
	assert.Equal(t, "run-1", history[1].ID)

	logs := store.Logs("run-2")
	require.Len(t, logs, 1)
	assert.Equal(t, "run-2", logs[0].Message)
	assert.Nil(t, store.Logs("run-0"), "evicted runs lose their logs")
}

func TestMemoryStore_Unbounded(t *testing.T) {
	store := NewMemoryStore(0)
	for i := range 5 {
		require.NoError(t, store.Save(testSummary(fmt.Sprintf("run-%d", i), time.Now()), nil))
	}
	assert.Len(t, store.History(), 5)
}

func TestDiskStore_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Truncate(time.Second)

	store, err := NewDiskStore(dir, 10, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Save(testSummary("first", base), testLogs("first")))
	require.NoError(t, store.Save(testSummary("second", base.Add(time.Minute)), testLogs("second")))

	assert.FileExists(t, filepath.Join(dir, "first.json"))
	assert.FileExists(t, filepath.Join(dir, "second.json"))

	reloaded, err := NewDiskStore(dir, 10, testLogger())
	require.NoError(t, err)

	history := reloaded.History()
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].ID)
	assert.Equal(t, "first", history[1].ID)
	assert.Equal(t, time.Second, history[0].Duration())

	logs := reloaded.Logs("first")
	require.Len(t, logs, 1)
	assert.Equal(t, "first", logs[0].Message)
	assert.Equal(t, "reindex", logs[0].Attributes["job"])
}

func TestDiskStore_Prunes(t *testing.T) {
	dir := t.TempDir()
	base := time.Now()

	store, err := NewDiskStore(dir, 2, testLogger())
	require.NoError(t, err)
	for i := range 3 {
		id := fmt.Sprintf("run-%d", i)
		require.NoError(t, store.Save(testSummary(id, base.Add(time.Duration(i)*time.Minute)), nil))
	}

	assert.Len(t, store.History(), 2)
	assert.NoFileExists(t, filepath.Join(dir, "run-0.json"))
	assert.FileExists(t, filepath.Join(dir, "run-2.json"))
}

func TestDiskStore_SkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.json"), []byte(`{"job":"x"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	store, err := NewDiskStore(dir, 10, testLogger())
	require.NoError(t, err)
	assert.Empty(t, store.History())
}

func TestDiskStore_SaveValidation(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 10, testLogger())
	require.NoError(t, err)

	assert.Error(t, store.Save(RunSummary{Job: "reindex"}, nil))
	assert.Error(t, store.Save(RunSummary{ID: "x"}, nil))
}

func TestDiskStore_Reload(t *testing.T) {
	dir := t.TempDir()
	base := time.Now()

	store, err := NewDiskStore(dir, 10, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Save(testSummary("local", base), nil))

	other, err := NewDiskStore(dir, 10, testLogger())
	require.NoError(t, err)
	require.NoError(t, other.Save(testSummary("remote", base.Add(time.Minute)), nil))

	require.Len(t, store.History(), 1)
	require.NoError(t, store.Reload())

	history := store.History()
	require.Len(t, history, 2)
	assert.Equal(t, "remote", history[0].ID)
}
