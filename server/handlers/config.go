package handlers

import (
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"
)

// ConfigHandler handles requests for the current configuration.
type ConfigHandler struct {
	configProvider ConfigProvider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(provider ConfigProvider) *ConfigHandler {
	return &ConfigHandler{
		configProvider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.configProvider.Config()
	if cfg == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "no configuration loaded"})
		return
	}

	w.Header().Set("Content-Type", "text/yaml")
	w.WriteHeader(http.StatusOK)
	if err := yaml.NewEncoder(w).Encode(cfg); err != nil {
		slog.Error("failed to encode YAML response", "error", err)
	}
}

// JobInfo describes a configured job for /api/jobs.
type JobInfo struct {
	Name    string `json:"name"`
	Total   uint64 `json:"total"`
	Running bool   `json:"running"`
}

// JobsProvider reports whether a job is running.
type JobsProvider interface {
	IsRunning(name string) bool
}

// JobsHandler lists the configured jobs.
type JobsHandler struct {
	configProvider ConfigProvider
	jobs           JobsProvider
}

// NewJobsHandler creates a new JobsHandler.
func NewJobsHandler(provider ConfigProvider, jobs JobsProvider) *JobsHandler {
	return &JobsHandler{
		configProvider: provider,
		jobs:           jobs,
	}
}

// ServeHTTP implements http.Handler.
func (h *JobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var infos []JobInfo
	if cfg := h.configProvider.Config(); cfg != nil {
		infos = make([]JobInfo, 0, len(cfg.Jobs))
		for _, job := range cfg.Jobs {
			infos = append(infos, JobInfo{
				Name:    job.Name,
				Total:   job.Total,
				Running: h.jobs.IsRunning(job.Name),
			})
		}
	}
	writeJSON(w, http.StatusOK, infos)
}
