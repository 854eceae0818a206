package cron

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/lexoliu/progressor/config"
)

const (
	triggerSeparator = ";"
	jobsSeparator    = ":"
	jobListSeparator = ","
)

// ParseTriggerSpecs parses a multi-trigger specification string, as given
// on the progressd command line, into triggers.
// The format is: job1,job2:cron_expression;job3:cron_expression2
//
// Example:
//
//	"reindex,export:0 2 * * *;cleanup:@hourly"
//
// Returns an error if:
//   - Any trigger is missing jobs or a cron expression
//   - Any job name is not in knownJobs
//   - Any cron expression is invalid
//   - Any trigger names the same job twice
func ParseTriggerSpecs(spec string, knownJobs []string) ([]config.CronTrigger, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("cron spec cannot be empty")
	}

	var triggers []config.CronTrigger
	for _, s := range strings.Split(spec, triggerSeparator) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}

		trigger, err := parseSingleTrigger(s, knownJobs)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, trigger)
	}

	if len(triggers) == 0 {
		return nil, errors.New("no valid triggers found in cron spec")
	}
	return triggers, nil
}

func parseSingleTrigger(s string, knownJobs []string) (config.CronTrigger, error) {
	jobsStr, schedule, ok := strings.Cut(s, jobsSeparator)
	if !ok || strings.Contains(schedule, jobsSeparator) {
		return config.CronTrigger{}, fmt.Errorf("invalid trigger spec: expected format 'jobs:cron', got '%s'", s)
	}

	jobsStr = strings.TrimSpace(jobsStr)
	schedule = strings.TrimSpace(schedule)
	if jobsStr == "" {
		return config.CronTrigger{}, fmt.Errorf("invalid trigger spec: missing jobs in '%s'", s)
	}
	if schedule == "" {
		return config.CronTrigger{}, fmt.Errorf("invalid trigger spec: missing cron schedule in '%s'", s)
	}

	var jobs []string
	for _, name := range strings.Split(jobsStr, jobListSeparator) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if slices.Contains(jobs, name) {
			return config.CronTrigger{}, fmt.Errorf("invalid trigger spec: duplicate job '%s' in '%s'", name, s)
		}
		if !slices.Contains(knownJobs, name) {
			return config.CronTrigger{}, fmt.Errorf("invalid trigger spec: unknown job '%s' in '%s' (available: %s)",
				name, s, strings.Join(knownJobs, ", "))
		}
		jobs = append(jobs, name)
	}
	if len(jobs) == 0 {
		return config.CronTrigger{}, fmt.Errorf("invalid trigger spec: no valid jobs in '%s'", s)
	}

	if _, err := ParseSchedule(schedule); err != nil {
		return config.CronTrigger{}, fmt.Errorf("invalid trigger spec: invalid cron expression in '%s': %w", s, err)
	}

	return config.CronTrigger{Jobs: jobs, Schedule: schedule}, nil
}
