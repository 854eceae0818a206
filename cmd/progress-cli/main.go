package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lexoliu/progressor/buildinfo"
	"github.com/lexoliu/progressor/config"
	"github.com/lexoliu/progressor/jobs"
	"github.com/lexoliu/progressor/logging"
	"github.com/lexoliu/progressor/metrics"
	"github.com/lexoliu/progressor/tracing"
)

type Args struct {
	ConfigPath  string
	ShowVersion bool
	Validate    bool
	Parallel    bool
	Quiet       bool
	Jobs        []string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	if args.ShowVersion {
		fmt.Printf("progress-cli %s\n", buildinfo.Get())
		return nil
	}

	if args.ConfigPath == "" {
		return fmt.Errorf("config flag (-c or --config) is required")
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	names := args.Jobs
	if len(names) == 0 {
		names = cfg.JobNames()
	}
	for _, name := range names {
		if _, ok := cfg.Job(name); !ok {
			return fmt.Errorf("%w: %q", jobs.ErrUnknownJob, name)
		}
	}

	if args.Validate {
		fmt.Printf("Configuration validation successful: %s\n", args.ConfigPath)
		return nil
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	props := buildinfo.Get()
	logger.Info("progress-cli started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"config_path", args.ConfigPath,
		"jobs", names,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []jobs.Option

	if cfg.Server.StateDir != "" {
		store, err := jobs.NewDiskStore(cfg.Server.StateDir, cfg.Server.HistorySize, logger.With("component", "store"))
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		opts = append(opts, jobs.WithStore(store))
	}

	if cfg.Monitoring.VictoriaMetricsURL != "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}

		registry := metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.VictoriaMetricsURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: hostname,
			Logger:   logger.Logger,
		})
		recorder, err := metrics.NewRecorder(registry)
		if err != nil {
			return fmt.Errorf("failed to create metrics recorder: %w", err)
		}
		opts = append(opts, jobs.WithRecorder(recorder))

		// Pushing stops, with a final flush, once the jobs are done.
		pushCtx, stopPush := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.Run(pushCtx, cfg.Monitoring.PushInterval)
		}()
		defer wg.Wait()
		defer stopPush()
	}

	if cfg.Tracing.Enabled {
		provider, err := tracing.Init("progress-cli", props.Version, cfg.Tracing.Output)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(ctx); err != nil {
				logger.Warn("failed to shut down tracing", "error", err)
			}
		}()
		opts = append(opts, jobs.WithTracer(provider.Tracer()))
	}

	// Bars would interleave when jobs run side by side.
	if !args.Quiet && !args.Parallel {
		opts = append(opts, jobs.WithObserver(newBars().observer))
	}

	runner := jobs.New(logger.Logger, jobs.StaticConfig(&cfg), opts...)

	var (
		summaries []jobs.RunSummary
		runErr    error
	)
	if args.Parallel {
		summaries, runErr = runner.RunAll(ctx, names)
	} else {
		summaries, runErr = runSequential(ctx, runner, names)
	}

	printSummaries(summaries)
	return result(summaries, runErr)
}

// runSequential runs names in order and stops at the first job that fails.
func runSequential(ctx context.Context, runner *jobs.Runner, names []string) ([]jobs.RunSummary, error) {
	summaries := make([]jobs.RunSummary, 0, len(names))
	for _, name := range names {
		summary, err := runner.RunJob(ctx, name)
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, err
		}
	}
	return summaries, nil
}

func printSummaries(summaries []jobs.RunSummary) {
	for _, s := range summaries {
		line := fmt.Sprintf("%-16s %-10s %d/%d in %s", s.Job, s.State, s.Current, s.Total, s.Duration().Round(time.Millisecond))
		if s.Error != "" {
			line += ": " + s.Error
		}
		fmt.Println(line)
	}
}

func result(summaries []jobs.RunSummary, runErr error) error {
	var failed int
	for _, s := range summaries {
		if !s.Succeeded() {
			failed++
		}
	}
	if failed == 0 && runErr == nil {
		return nil
	}
	return errors.Join(fmt.Errorf("%d of %d jobs did not complete", failed, len(summaries)), runErr)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")
	showVersion := flag.Bool("version", false, "Show version information")
	versionShort := flag.Bool("v", false, "Show version information (shorthand)")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	parallel := flag.Bool("parallel", false, "Run jobs concurrently; the first failure cancels the rest")
	quiet := flag.Bool("quiet", false, "Do not draw progress bars")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [job...]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nprogress-cli - runs jobs with live progress bars\n\n")
		fmt.Fprintf(os.Stderr, "With no jobs named, every configured job runs in order.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/progressor/config.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml --parallel reindex export\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --config config.yaml --validate\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath:  path,
		ShowVersion: *showVersion || *versionShort,
		Validate:    *validate,
		Parallel:    *parallel,
		Quiet:       *quiet,
		Jobs:        flag.Args(),
	}
}
