package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexoliu/progressor/buildinfo"
	"github.com/lexoliu/progressor/config"
	"github.com/lexoliu/progressor/jobs"
	"github.com/lexoliu/progressor/logging"
	"github.com/lexoliu/progressor/metrics"
	"github.com/lexoliu/progressor/server"
	"github.com/lexoliu/progressor/tracing"
)

type Args struct {
	ConfigPath  string
	ShowVersion bool
	Validate    bool
	CronSpec    string
	Addr        string
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
		fmt.Printf("progressd %s\n", buildinfo.Get())
		return nil
	}

	if args.ConfigPath == "" {
		return fmt.Errorf("config flag (-c or --config) is required")
	}

	cfg, err := config.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if args.Addr != "" {
		cfg.Server.Addr = args.Addr
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
	logger.Info("progressd started",
		"version", props.Version,
		"build_time", props.BuildTime,
		"git_commit", props.GitCommit,
		"config_path", args.ConfigPath,
	)

	registry, err := metrics.NewScrapeRegistry(cfg.Monitoring.MetricsPrefix)
	if err != nil {
		return fmt.Errorf("failed to create metrics registry: %w", err)
	}
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return fmt.Errorf("failed to create metrics recorder: %w", err)
	}

	opts := []server.Option{
		server.WithMetricsHandler(registry.Handler()),
		server.WithJobOptions(jobs.WithRecorder(recorder)),
	}
	if args.CronSpec != "" {
		opts = append(opts, server.WithCronSpec(args.CronSpec))
	}

	if cfg.Server.StateDir != "" {
		store, err := jobs.NewDiskStore(cfg.Server.StateDir, cfg.Server.HistorySize, logger.With("component", "store"))
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		opts = append(opts, server.WithStore(store))
	}

	if cfg.Tracing.Enabled {
		provider, err := tracing.Init("progressd", props.Version, cfg.Tracing.Output)
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
		opts = append(opts, server.WithJobOptions(jobs.WithTracer(provider.Tracer())))
	}

	srv, err := server.New(cfg, args.ConfigPath, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := srv.Reload(); err != nil {
					logger.Error("failed to reload configuration", "error", err)
				}
			}
		}
	}()

	return srv.Run(ctx)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")
	showVersion := flag.Bool("version", false, "Show version information")
	versionShort := flag.Bool("v", false, "Show version information (shorthand)")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	cronSpec := flag.String("cron", "", "Cron triggers, replacing those in the config (jobs:schedule;...)")
	addr := flag.String("addr", "", "Listen address, overriding server.addr")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nprogressd - runs jobs and serves their progress over HTTP\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/progressor/config.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml --cron 'reindex,export:0 2 * * *;cleanup:@hourly'\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml --validate\n", os.Args[0])
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
		CronSpec:    *cronSpec,
		Addr:        *addr,
	}
}
