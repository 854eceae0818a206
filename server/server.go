// Package server provides the progressd HTTP server.
//
// The server starts configured jobs on request or on a cron schedule and
// exposes their live progress, history and logs.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /version - Build properties
//   - GET /metrics - Prometheus metrics, when a metrics handler is configured
//   - GET /api/status - Active runs, latest update per job and cron schedules
//   - GET /api/jobs - Configured jobs and whether each is running
//   - GET /runs, GET /runs/{id} - Active runs with live progress
//   - POST /runs/{id}/cancel - Cancels an active run
//   - POST /run - Starts jobs in the background
//   - GET /history - Finished runs, most recent first
//   - GET /history/logs?id= - Captured logs of a run
//   - POST /history/reload - Re-reads persisted history, when stored on disk
//   - GET /config - Current configuration as YAML
//   - POST /reload - Reloads configuration from disk
//   - GET, PUT /log-level - Reads or changes the log level
//
// # Reloading
//
// The configuration is swapped atomically on reload. Each run reads the
// configuration current when it starts, so a reload never disturbs a run
// in progress. Cron schedules and the listen address are fixed at startup.
// With server.watch_config set the file is reloaded whenever it changes.
//
// # Example
//
//	srv, err := server.New(cfg, "/etc/progressor/config.yaml", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/lexoliu/progressor/config"
	"github.com/lexoliu/progressor/jobs"
	"github.com/lexoliu/progressor/logging"
	"github.com/lexoliu/progressor/progress"
	"github.com/lexoliu/progressor/server/cron"
	"github.com/lexoliu/progressor/server/handlers"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Server is the progressd HTTP server.
type Server struct {
	configPath     string
	logger         *logging.Logger
	config         atomic.Pointer[config.Config]
	runner         *jobs.Runner
	jobOpts        []jobs.Option
	store          jobs.Store
	cron           *cron.Manager
	cronSpec       string
	metricsHandler http.Handler
	listener       net.Listener
	httpServer     *http.Server
}

// Option configures a Server.
type Option func(*Server) error

// WithCronSpec replaces the configured cron triggers with spec, in the
// format accepted by cron.ParseTriggerSpecs.
func WithCronSpec(spec string) Option {
	return func(s *Server) error {
		s.cronSpec = spec
		return nil
	}
}

// WithStore sets where finished runs are kept.
func WithStore(store jobs.Store) Option {
	return func(s *Server) error {
		s.store = store
		return nil
	}
}

// WithJobOptions passes extra options to the job runner.
func WithJobOptions(opts ...jobs.Option) Option {
	return func(s *Server) error {
		s.jobOpts = append(s.jobOpts, opts...)
		return nil
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) error {
		s.metricsHandler = h
		return nil
	}
}

// WithListener serves on l instead of listening on the configured address.
func WithListener(l net.Listener) Option {
	return func(s *Server) error {
		s.listener = l
		return nil
	}
}

// New creates a Server from an already loaded configuration. configPath
// is where Reload reads from and may be empty to disable reloading.
func New(cfg config.Config, configPath string, logger *logging.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		configPath: configPath,
		logger:     logger,
	}
	s.config.Store(&cfg)

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	jobOpts := s.jobOpts
	if s.store != nil {
		jobOpts = append([]jobs.Option{jobs.WithStore(s.store)}, jobOpts...)
	}
	s.runner = jobs.New(logger.Logger, s, jobOpts...)

	triggers := cfg.Server.Cron
	if s.cronSpec != "" {
		parsed, err := cron.ParseTriggerSpecs(s.cronSpec, cfg.JobNames())
		if err != nil {
			return nil, fmt.Errorf("parsing cron spec: %w", err)
		}
		triggers = parsed
	}
	manager, err := cron.NewManager(triggers, s.runner, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating cron triggers: %w", err)
	}
	s.cron = manager

	return s, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *logging.Logger {
	return s.logger
}

// Runner returns the job runner.
func (s *Server) Runner() *jobs.Runner {
	return s.runner
}

// Reload reads the config from disk and swaps it in. The log level follows
// the new configuration.
func (s *Server) Reload() error {
	if s.configPath == "" {
		return errors.New("no config path to reload from")
	}

	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return err
	}
	if err := s.logger.SetLevel(cfg.Logging.Level); err != nil {
		return err
	}

	s.config.Store(&cfg)
	s.logger.Info("configuration loaded", "config_path", s.configPath, "jobs", cfg.JobNames())
	return nil
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.config.Load()
}

// Status returns the active runs.
func (s *Server) Status() []jobs.RunStatus {
	return s.runner.Status()
}

// CurrentStatuses returns the latest update seen for each job.
func (s *Server) CurrentStatuses() map[string]progress.Update {
	return s.runner.StatusReporter().CurrentStatuses()
}

// Schedules returns the registered cron schedules.
func (s *Server) Schedules() []cron.Schedule {
	return s.cron.Schedules()
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Run starts the HTTP server and the cron triggers, and blocks until the
// context is cancelled. It then shuts down the HTTP server and waits for
// background runs to record their history.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.Config()

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	useTLS := cfg.Server.TLSCert != ""
	if useTLS {
		loader, err := NewCertLoader(cfg.Server.TLSCert, cfg.Server.TLSKey, s.logger.Logger)
		if err != nil {
			return err
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: loader.GetCertificate,
		}
	}

	listener := s.listener
	if listener == nil {
		l, err := net.Listen("tcp", cfg.Server.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
		}
		listener = l
	}

	watchers, err := s.startWatchers(cfg)
	if err != nil {
		listener.Close()
		return err
	}
	defer func() {
		for _, w := range watchers {
			_ = w.Close()
		}
	}()

	if next := s.cron.NextRun(); !next.IsZero() {
		s.logger.Info("starting cron triggers", "next_run", next)
	}
	s.cron.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", listener.Addr().String(),
			"tls", useTLS,
			"config_path", s.configPath,
		)
		var err error
		if useTLS {
			err = s.httpServer.ServeTLS(listener, "", "")
		} else {
			err = s.httpServer.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
	defer cancel()

	return errors.Join(
		s.httpServer.Shutdown(shutdownCtx),
		s.runner.Shutdown(shutdownCtx),
	)
}

func (s *Server) startWatchers(cfg *config.Config) ([]*Watcher, error) {
	var watchers []*Watcher

	if cfg.Server.WatchConfig && s.configPath != "" {
		w, err := WatchFile(s.configPath, s.Reload, s.logger.Logger)
		if err != nil {
			return nil, err
		}
		watchers = append(watchers, w)
	}

	if reloadable, ok := s.store.(handlers.Reloader); ok && cfg.Server.WatchStateDir {
		w, err := NewWatcher(cfg.Server.StateDir, func(name string) bool {
			return filepath.Ext(name) == ".json"
		}, reloadable.Reload, s.logger.Logger)
		if err != nil {
			for _, w := range watchers {
				_ = w.Close()
			}
			return nil, err
		}
		watchers = append(watchers, w)
	}
	return watchers, nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	logger := s.logger.With("component", "http")
	runStatus := handlers.NewRunStatusHandler(s)

	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.HandleFunc("GET /version", handlers.HandleVersion)
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("GET /api/jobs", handlers.NewJobsHandler(s, s.runner))
	mux.Handle("GET /runs", runStatus)
	mux.Handle("GET /runs/{id}", runStatus)
	mux.Handle("POST /runs/{id}/cancel", handlers.NewCancelHandler(s.runner))
	mux.Handle("POST /run", handlers.NewRunHandler(s.runner))
	mux.Handle("GET /history", handlers.NewHistoryHandler(s.runner))
	mux.Handle("GET /history/logs", handlers.NewHistoryLogsHandler(s.runner))
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(logger, s, s))

	levels := handlers.NewLogLevelHandler(logger, s.logger)
	mux.Handle("GET /log-level", levels)
	mux.Handle("PUT /log-level", levels)

	if reloadable, ok := s.store.(handlers.Reloader); ok {
		mux.Handle("POST /history/reload", handlers.NewStoreReloadHandler(logger, reloadable))
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
}
