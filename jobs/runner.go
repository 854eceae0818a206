// Package jobs runs configured jobs as progress tasks for progressd and
// progress-cli.
//
// The runner handles:
//   - Starting runs in the background or waiting for them
//   - Preventing the same job from running twice at once
//   - Fanning each run's progress out to the status reporter, log, metrics and tracing
//   - Keeping a history of finished runs with their captured logs
//
// Each run reads the current configuration, so config changes take effect
// on the next run.
//
// # Example
//
//	r := jobs.New(logger, jobs.StaticConfig(&cfg), jobs.WithRecorder(recorder))
//
//	// Start runs in the background
//	if err := r.Run([]string{"reindex", "export"}); err != nil {
//	    if errors.Is(err, jobs.ErrJobRunning) {
//	        // Handle concurrent run attempt
//	    }
//	}
//
//	// Or run a job and wait for it
//	summary, err := r.RunJob(ctx, "reindex")
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/lexoliu/progressor/config"
	"github.com/lexoliu/progressor/logging"
	"github.com/lexoliu/progressor/metrics"
	"github.com/lexoliu/progressor/progress"
	"github.com/lexoliu/progressor/statusreporter"
	"github.com/lexoliu/progressor/tracing"
)

const defaultMaxHistorySize = 100

var (
	// ErrJobRunning is returned when a requested job already has an active run.
	ErrJobRunning = errors.New("job already running")
	// ErrUnknownJob is returned when a requested job is not configured.
	ErrUnknownJob = errors.New("unknown job")
	// ErrRunNotFound is returned when a run ID is neither active nor in history.
	ErrRunNotFound = errors.New("run not found")
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

type staticConfig struct {
	cfg *config.Config
}

func (s staticConfig) Config() *config.Config { return s.cfg }

// StaticConfig returns a ConfigProvider that always returns cfg.
func StaticConfig(cfg *config.Config) ConfigProvider {
	return staticConfig{cfg: cfg}
}

// ObserverFactory returns an extra progress callback for a run of the named
// job, or nil to skip it. Each callback receives its own progress stream.
type ObserverFactory func(job string) func(progress.Update)

// Option configures a Runner.
type Option func(*Runner)

// WithStore sets where finished runs are kept. The default is a
// MemoryStore sized from the server history setting.
func WithStore(store Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithStatusReporter shares a status reporter with the runner.
func WithStatusReporter(reporter *statusreporter.StatusReporter) Option {
	return func(r *Runner) {
		r.reporter = reporter
	}
}

// WithRecorder records every run's progress as metrics.
func WithRecorder(recorder *metrics.Recorder) Option {
	return func(r *Runner) {
		r.recorder = recorder
	}
}

// WithTracer records every run as a span.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// WithObserver adds a progress callback to every run.
func WithObserver(factory ObserverFactory) Option {
	return func(r *Runner) {
		r.observers = append(r.observers, factory)
	}
}

// Runner manages job execution.
type Runner struct {
	logger    *slog.Logger
	provider  ConfigProvider
	store     Store
	reporter  *statusreporter.StatusReporter
	recorder  *metrics.Recorder
	tracer    trace.Tracer
	observers []ObserverFactory
	logs      *logging.LogCollector

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	active map[string]*activeRun // by run ID
	busy   map[string]bool       // by job name
}

type activeRun struct {
	id      string
	job     string
	started time.Time
	task    *progress.Task[Result]
}

// New creates a new Runner.
func New(logger *slog.Logger, provider ConfigProvider, opts ...Option) *Runner {
	logger = logger.With("component", "jobs")
	ctx, stop := context.WithCancel(context.Background())

	r := &Runner{
		logger:   logger,
		provider: provider,
		logs:     logging.NewLogCollector(0),
		baseCtx:  ctx,
		stop:     stop,
		active:   make(map[string]*activeRun),
		busy:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.store == nil {
		size := defaultMaxHistorySize
		if cfg := provider.Config(); cfg != nil && cfg.Server.HistorySize > 0 {
			size = cfg.Server.HistorySize
		}
		r.store = NewMemoryStore(size)
	}
	if r.reporter == nil {
		r.reporter = statusreporter.New(logger)
	}
	return r
}

// Run starts the named jobs one after another in the background.
// Returns ErrJobRunning if any of them is already running.
func (r *Runner) Run(names []string) error {
	cfg, jobs, err := r.resolve(names)
	if err != nil {
		return err
	}
	if err := r.reserve(names); err != nil {
		return err
	}

	r.logger.Info("starting jobs", "jobs", names)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(names)
		for _, job := range jobs {
			if r.baseCtx.Err() != nil {
				return
			}
			_, _ = r.execute(r.baseCtx, cfg, job)
		}
	}()
	return nil
}

// RunJob runs the named job and waits for it to finish. The returned error
// is the job's own error; a job cancelled through its updater returns a
// summary in the cancelled state and no error.
func (r *Runner) RunJob(ctx context.Context, name string) (RunSummary, error) {
	cfg, jobs, err := r.resolve([]string{name})
	if err != nil {
		return RunSummary{}, err
	}
	if err := r.reserve([]string{name}); err != nil {
		return RunSummary{}, err
	}
	defer r.release([]string{name})

	return r.execute(ctx, cfg, jobs[0])
}

// RunAll runs the named jobs concurrently and waits for all of them. The
// first job to fail cancels the others. Summaries are returned in the
// order of names.
func (r *Runner) RunAll(ctx context.Context, names []string) ([]RunSummary, error) {
	cfg, jobs, err := r.resolve(names)
	if err != nil {
		return nil, err
	}
	if err := r.reserve(names); err != nil {
		return nil, err
	}
	defer r.release(names)

	summaries := make([]RunSummary, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		g.Go(func() error {
			summary, err := r.execute(gctx, cfg, job)
			summaries[i] = summary
			return err
		})
	}
	return summaries, g.Wait()
}

// Cancel cancels an active run.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	run, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	r.logger.Info("cancelling run", "run_id", id, "job", run.job)
	run.task.Cancel()
	return nil
}

// Status returns the active runs, oldest first, with their latest progress
// and captured logs.
func (r *Runner) Status() []RunStatus {
	r.mu.Lock()
	runs := make([]*activeRun, 0, len(r.active))
	for _, run := range r.active {
		runs = append(runs, run)
	}
	r.mu.Unlock()

	slices.SortFunc(runs, func(a, b *activeRun) int {
		return a.started.Compare(b.started)
	})

	statuses := make([]RunStatus, len(runs))
	for i, run := range runs {
		statuses[i] = RunStatus{
			ID:        run.id,
			Job:       run.job,
			StartedAt: run.started,
			Progress:  run.task.Snapshot(),
			Logs:      r.logs.Logs(run.id),
		}
	}
	return statuses
}

// IsRunning reports whether the named job is running or queued.
func (r *Runner) IsRunning(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy[name]
}

// History returns finished runs, most recent first.
func (r *Runner) History() []RunSummary {
	return r.store.History()
}

// Logs returns the captured logs of an active or finished run.
func (r *Runner) Logs(id string) ([]logging.LogEntry, error) {
	r.mu.Lock()
	_, active := r.active[id]
	r.mu.Unlock()
	if active {
		return r.logs.Logs(id), nil
	}

	if !slices.ContainsFunc(r.store.History(), func(s RunSummary) bool { return s.ID == id }) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r.store.Logs(id), nil
}

// StatusReporter returns the reporter that holds each job's latest update.
func (r *Runner) StatusReporter() *statusreporter.StatusReporter {
	return r.reporter
}

// Shutdown cancels background runs started by Run and waits for them to
// record their history, or for ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) resolve(names []string) (*config.Config, []config.JobConfig, error) {
	cfg := r.provider.Config()
	if cfg == nil {
		return nil, nil, errors.New("no configuration available")
	}
	if len(names) == 0 {
		return nil, nil, errors.New("no jobs requested")
	}

	jobs := make([]config.JobConfig, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, nil, fmt.Errorf("duplicate job %q in request", name)
		}
		seen[name] = true

		job, ok := cfg.Job(name)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownJob, name)
		}
		jobs = append(jobs, job)
	}
	return cfg, jobs, nil
}

func (r *Runner) reserve(names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		if r.busy[name] {
			return fmt.Errorf("%w: %s", ErrJobRunning, name)
		}
	}
	for _, name := range names {
		r.busy[name] = true
	}
	return nil
}

func (r *Runner) release(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		delete(r.busy, name)
	}
}

func (r *Runner) execute(ctx context.Context, cfg *config.Config, job config.JobConfig) (RunSummary, error) {
	id := uuid.NewString()
	logger := r.logs.Logger(r.logger, id).With("job", job.Name, "run_id", id)

	task := NewJob(job).Task(
		progress.WithID(id),
		progress.WithCapacity(cfg.Progress.Capacity),
		progress.WithLogger(logger),
	)
	started := time.Now()

	r.mu.Lock()
	r.active[id] = &activeRun{id: id, job: job.Name, started: started, task: task}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.active, id)
		r.mu.Unlock()
	}()

	observers := []func(progress.Update){r.reporter.Line(job.Name).Set}
	if r.recorder != nil {
		observers = append(observers, r.recorder.Observer(job.Name))
	}
	if r.tracer != nil {
		observers = append(observers, tracing.Observer(ctx, r.tracer, job.Name,
			attribute.String("run.id", id)))
	}
	for _, factory := range r.observers {
		if fn := factory(job.Name); fn != nil {
			observers = append(observers, fn)
		}
	}

	// Streams are opened before the task starts so every observer sees
	// every update its buffer can hold.
	var g errgroup.Group
	drainCtx := context.WithoutCancel(ctx)
	for _, fn := range observers {
		stream := task.Progress()
		g.Go(func() (err error) {
			defer stream.Close()
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("%w: %v", progress.ErrCallbackPanicked, rec)
				}
			}()
			for u := range stream.All(drainCtx) {
				fn(u)
			}
			return nil
		})
	}

	logger.Info("job started", "total", job.Total)
	_, err := observe(ctx, task, logging.Observer(logger))
	if oerr := g.Wait(); oerr != nil {
		logger.Error("progress observer failed", "error", oerr)
	}

	summary := newSummary(id, job.Name, started, task.Snapshot(), err)
	if summary.Succeeded() {
		logger.Info("job finished", "duration", summary.Duration())
	} else {
		logger.Warn("job did not complete", "state", summary.State, "error", err, "duration", summary.Duration())
	}

	if serr := r.store.Save(summary, r.logs.Remove(id)); serr != nil {
		r.logger.Error("failed to save run", "run_id", id, "error", serr)
	}
	return summary, err
}

// observe is progress.Observe with a panic in the job turned into an error.
func observe(ctx context.Context, task *progress.Task[Result], fn func(progress.Update)) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pe, ok := rec.(*progress.PanicError)
			if !ok {
				panic(rec)
			}
			err = pe
		}
	}()
	return progress.Observe(ctx, task, fn)
}
