// Package config loads the YAML configuration shared by progressd and
// progress-cli.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/lexoliu/progressor/broadcast"
	"github.com/lexoliu/progressor/logging"
	"github.com/lexoliu/progressor/tracing"
	"gopkg.in/yaml.v3"
)

const (
	// Default monitoring settings
	defaultMetricsPrefix = "progressor"
	defaultJobName       = "progressor"
	defaultPushInterval  = 15 * time.Second

	// Default server settings
	defaultListenAddr  = ":8080"
	defaultHistorySize = 100
)

// Config represents the complete application configuration.
type Config struct {
	Progress   ProgressConfig   `yaml:"progress"`
	Logging    logging.Config   `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Server     ServerConfig     `yaml:"server"`
	Tracing    tracing.Config   `yaml:"tracing"`
	Jobs       []JobConfig      `yaml:"jobs"`
}

// ProgressConfig tunes progress streams.
type ProgressConfig struct {
	// Capacity is how many updates each observer buffers before the oldest
	// are dropped.
	Capacity int `yaml:"capacity"`
}

// MonitoringConfig holds metrics settings.
type MonitoringConfig struct {
	// VictoriaMetricsURL is the remote write endpoint progress-cli pushes to.
	// Pushing is disabled when empty.
	VictoriaMetricsURL string        `yaml:"victoriametrics_url"`
	MetricsPrefix      string        `yaml:"metrics_prefix"`
	JobName            string        `yaml:"jobname"`
	PushInterval       time.Duration `yaml:"push_interval"`
}

// ServerConfig holds progressd settings.
type ServerConfig struct {
	// Addr is the listen address, defaults to :8080.
	Addr string `yaml:"addr"`
	// HistorySize is how many finished runs are kept.
	HistorySize int `yaml:"history_size"`
	// StateDir, if set, is where run history is persisted across restarts.
	StateDir string `yaml:"state_dir"`
	// TLSCert and TLSKey enable HTTPS. The files are re-read when they change.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
	// WatchConfig reloads the config file when it changes on disk.
	WatchConfig bool `yaml:"watch_config"`
	// WatchStateDir reloads run history when files in StateDir change, so
	// runs recorded by progress-cli show up without a restart.
	WatchStateDir bool `yaml:"watch_state_dir"`
	// Cron lists the schedules jobs are started on.
	Cron []CronTrigger `yaml:"cron"`
}

// CronTrigger runs a set of jobs on a schedule.
type CronTrigger struct {
	// Jobs names the jobs to run, in order.
	Jobs []string `yaml:"jobs"`
	// Schedule is a five field cron expression or a descriptor such as @hourly.
	Schedule string `yaml:"schedule"`
}

// JobConfig describes a synthetic job that works through Total steps.
type JobConfig struct {
	Name  string `yaml:"name"`
	Total uint64 `yaml:"total"`
	// StepDelay is how long each step takes.
	StepDelay time.Duration `yaml:"step_delay"`
	// Message is reported with every step when set. Every %d is replaced
	// with the step number; other text is kept as is.
	Message string `yaml:"message"`
	// PauseAt pauses the job for PauseFor once it reaches this step.
	PauseAt  uint64        `yaml:"pause_at"`
	PauseFor time.Duration `yaml:"pause_for"`
	// CancelAt cancels the job through its updater at this step.
	CancelAt uint64 `yaml:"cancel_at"`
	// FailAt makes the job return an error at this step.
	FailAt uint64 `yaml:"fail_at"`
	// Timeout bounds the whole job. Zero means no limit.
	Timeout time.Duration `yaml:"timeout"`
}

// Job returns the job with the given name.
func (c *Config) Job(name string) (JobConfig, bool) {
	i := slices.IndexFunc(c.Jobs, func(j JobConfig) bool { return j.Name == name })
	if i < 0 {
		return JobConfig{}, false
	}
	return c.Jobs[i], true
}

// JobNames returns the configured job names in file order.
func (c *Config) JobNames() []string {
	names := make([]string, len(c.Jobs))
	for i, j := range c.Jobs {
		names[i] = j.Name
	}
	return names
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Progress.Capacity < 0 {
		errs = append(errs, errors.New("progress capacity must not be negative"))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if c.Monitoring.PushInterval < 0 {
		errs = append(errs, errors.New("monitoring push interval must not be negative"))
	}
	if c.Server.HistorySize < 0 {
		errs = append(errs, errors.New("server history size must not be negative"))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		errs = append(errs, errors.New("server tls_cert and tls_key must be set together"))
	}
	if c.Server.WatchStateDir && c.Server.StateDir == "" {
		errs = append(errs, errors.New("server watch_state_dir requires state_dir"))
	}

	if len(c.Jobs) == 0 {
		errs = append(errs, errors.New("at least one job is required"))
	}
	seen := make(map[string]bool, len(c.Jobs))
	for i, job := range c.Jobs {
		if job.Name == "" {
			errs = append(errs, fmt.Errorf("job %d: name is required", i))
			continue
		}
		if seen[job.Name] {
			errs = append(errs, fmt.Errorf("job %q: duplicate name", job.Name))
		}
		seen[job.Name] = true
		if err := job.validate(); err != nil {
			errs = append(errs, fmt.Errorf("job %q: %w", job.Name, err))
		}
	}

	for i, trigger := range c.Server.Cron {
		if trigger.Schedule == "" {
			errs = append(errs, fmt.Errorf("cron trigger %d: schedule is required", i))
		}
		if len(trigger.Jobs) == 0 {
			errs = append(errs, fmt.Errorf("cron trigger %d: at least one job is required", i))
		}
		for _, name := range trigger.Jobs {
			if !seen[name] {
				errs = append(errs, fmt.Errorf("cron trigger %d: unknown job %q", i, name))
			}
		}
	}

	return errors.Join(errs...)
}

func (j *JobConfig) validate() error {
	if j.StepDelay < 0 {
		return errors.New("step delay must not be negative")
	}
	if j.PauseAt > j.Total {
		return fmt.Errorf("pause_at %d is beyond total %d", j.PauseAt, j.Total)
	}
	if j.PauseAt > 0 && j.PauseFor <= 0 {
		return errors.New("pause_for must be positive when pause_at is set")
	}
	if j.CancelAt > j.Total {
		return fmt.Errorf("cancel_at %d is beyond total %d", j.CancelAt, j.Total)
	}
	if j.FailAt > j.Total {
		return fmt.Errorf("fail_at %d is beyond total %d", j.FailAt, j.Total)
	}
	if j.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Progress.Capacity == 0 {
		c.Progress.Capacity = broadcast.DefaultCapacity
	}
	c.Logging.SetDefaults()
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Monitoring.PushInterval == 0 {
		c.Monitoring.PushInterval = defaultPushInterval
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultListenAddr
	}
	if c.Server.HistorySize == 0 {
		c.Server.HistorySize = defaultHistorySize
	}
}

// LoadConfig reads the YAML config file at path, applies defaults and
// validates the result.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode YAML config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
