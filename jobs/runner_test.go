package jobs

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lexoliu/progressor/config"
	"github.com/lexoliu/progressor/metrics"
	"github.com/lexoliu/progressor/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Jobs: []config.JobConfig{
			{Name: "quick", Total: 5, Message: "step %d"},
			{Name: "slow", Total: 1000, StepDelay: 5 * time.Millisecond},
			{Name: "failing", Total: 10, FailAt: 3},
			{Name: "cancelling", Total: 10, CancelAt: 2},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond)
}

func TestRunner_RunJob(t *testing.T) {
	r := New(testLogger(), StaticConfig(testConfig()))

	summary, err := r.RunJob(context.Background(), "quick")
	require.NoError(t, err)

	assert.NotEmpty(t, summary.ID)
	assert.Equal(t, "quick", summary.Job)
	assert.Equal(t, "completed", summary.State)
	assert.Equal(t, uint64(5), summary.Current)
	assert.Equal(t, uint64(5), summary.Total)
	assert.True(t, summary.Succeeded())
	require.NotNil(t, summary.StartedAt)
	require.NotNil(t, summary.EndedAt)

	history := r.History()
	require.Len(t, history, 1)
	assert.Equal(t, summary.ID, history[0].ID)

	logs, err := r.Logs(summary.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "job started", logs[0].Message)
	assert.Equal(t, summary.ID, logs[0].Attributes["run_id"])
	assert.Equal(t, "job finished", logs[len(logs)-1].Message)

	u, ok := r.StatusReporter().Status("quick")
	require.True(t, ok)
	assert.True(t, u.IsCompleted())
	assert.False(t, r.IsRunning("quick"))
}

func TestRunner_RunJob_Failures(t *testing.T) {
	r := New(testLogger(), StaticConfig(testConfig()))

	summary, err := r.RunJob(context.Background(), "failing")
	require.ErrorIs(t, err, ErrStepFailed)
	assert.Equal(t, "cancelled", summary.State)
	assert.Equal(t, uint64(2), summary.Current)
	assert.Contains(t, summary.Error, "step failed")
	assert.False(t, summary.Succeeded())

	summary, err = r.RunJob(context.Background(), "cancelling")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", summary.State)
	assert.False(t, summary.Succeeded())

	_, err = r.RunJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownJob)

	assert.Len(t, r.History(), 2)
}

func TestRunner_RunJob_ContextCancelled(t *testing.T) {
	r := New(testLogger(), StaticConfig(testConfig()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	summary, err := r.RunJob(ctx, "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "cancelled", summary.State)
	assert.Less(t, summary.Current, uint64(1000))
}

func TestRunner_Run_Background(t *testing.T) {
	r := New(testLogger(), StaticConfig(testConfig()))

	require.NoError(t, r.Run([]string{"quick", "failing"}))
	waitFor(t, func() bool { return len(r.History()) == 2 })

	history := r.History()
	assert.Equal(t, "failing", history[0].Job, "most recent first")
	assert.Equal(t, "quick", history[1].Job)
	waitFor(t, func() bool { return !r.IsRunning("quick") && !r.IsRunning("failing") })
}

func TestRunner_Run_Validation(t *testing.T) {
	r := New(testLogger(), StaticConfig(testConfig()))

	assert.ErrorIs(t, r.Run([]string{"quick", "missing"}), ErrUnknownJob)
	assert.ErrorContains(t, r.Run([]string{"quick", "quick"}), "duplicate job")
	assert.ErrorContains(t, r.Run(nil), "no jobs requested")

	empty := New(testLogger(), StaticConfig(nil))
	assert.ErrorContains(t, empty.Run([]string{"quick"}), "no configuration available")
}

func TestRunner_JobAlreadyRunning(t *testing.T) {
	r := New(testLogger(), StaticConfig(testConfig()))

	require.NoError(t, r.Run([]string{"slow"}))
	assert.True(t, r.IsRunning("slow"))

	assert.ErrorIs(t, r.Run([]string{"slow"}), ErrJobRunning)
	_, err := r.RunJob(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	history := r.History()
	require.Len(t, history, 1)
	assert.Equal(t, "cancelled", history[0].State)
	assert.False(t, r.IsRunning("slow"))
}

func TestRunner_StatusAndCancel(t *testing.T) {
	r := New(testLogger(), StaticConfig(testConfig()))

	require.NoError(t, r.Run([]string{"slow"}))

	var status []RunStatus
	waitFor(t, func() bool {
		status = r.Status()
		return len(status) == 1 && status[0].Progress.Current() > 0
	})
	assert.Equal(t, "slow", status[0].Job)
	assert.Equal(t, progress.Working, status[0].Progress.State())
	assert.NotEmpty(t, status[0].Logs)

	logs, err := r.Logs(status[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)

	require.NoError(t, r.Cancel(status[0].ID))
	waitFor(t, func() bool { return len(r.History()) == 1 && len(r.Status()) == 0 })
	assert.Equal(t, "cancelled", r.History()[0].State)

	assert.ErrorIs(t, r.Cancel(status[0].ID), ErrRunNotFound)
	_, err = r.Logs("no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunner_RunAll(t *testing.T) {
	r := New(testLogger(), StaticConfig(testConfig()))

	summaries, err := r.RunAll(context.Background(), []string{"quick", "cancelling"})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "quick", summaries[0].Job)
	assert.Equal(t, "completed", summaries[0].State)
	assert.Equal(t, "cancelling", summaries[1].Job)
	assert.Equal(t, "cancelled", summaries[1].State)
}

func TestRunner_RunAll_FailureCancelsOthers(t *testing.T) {
	r := New(testLogger(), StaticConfig(testConfig()))

	summaries, err := r.RunAll(context.Background(), []string{"slow", "failing"})
	require.ErrorIs(t, err, ErrStepFailed)
	require.Len(t, summaries, 2)
	assert.Equal(t, "cancelled", summaries[0].State)
	assert.Less(t, summaries[0].Current, uint64(1000))
	assert.Equal(t, "cancelled", summaries[1].State)
}

func TestRunner_PanickingObserver(t *testing.T) {
	r := New(testLogger(), StaticConfig(testConfig()),
		WithObserver(func(string) func(progress.Update) {
			return func(progress.Update) { panic("bar broke") }
		}),
	)

	summary, err := r.RunJob(context.Background(), "quick")
	require.NoError(t, err)
	assert.True(t, summary.Succeeded())

	logs, err := r.Logs(summary.ID)
	require.NoError(t, err)
	var found bool
	for _, entry := range logs {
		if entry.Message == "progress observer failed" {
			found = true
			assert.Equal(t, "ERROR", entry.Level)
		}
	}
	assert.True(t, found, "observer panic should be logged")
}

func TestRunner_Observers(t *testing.T) {
	registry, err := metrics.NewScrapeRegistry("test")
	require.NoError(t, err)
	recorder, err := metrics.NewRecorder(registry)
	require.NoError(t, err)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var (
		mu      sync.Mutex
		updates []progress.Update
	)
	r := New(testLogger(), StaticConfig(testConfig()),
		WithRecorder(recorder),
		WithTracer(tp.Tracer("test")),
		WithObserver(func(job string) func(progress.Update) {
			return func(u progress.Update) {
				mu.Lock()
				defer mu.Unlock()
				updates = append(updates, u)
			}
		}),
		WithObserver(func(string) func(progress.Update) { return nil }),
	)

	_, err = r.RunJob(context.Background(), "quick")
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, updates, 5)
	assert.True(t, updates[4].IsCompleted())
	mu.Unlock()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "quick", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestRunner_WithStore(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 10, testLogger())
	require.NoError(t, err)

	r := New(testLogger(), StaticConfig(testConfig()), WithStore(store))
	summary, err := r.RunJob(context.Background(), "quick")
	require.NoError(t, err)

	history := store.History()
	require.Len(t, history, 1)
	assert.Equal(t, summary.ID, history[0].ID)
	assert.NotEmpty(t, store.Logs(summary.ID))
}
