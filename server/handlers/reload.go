package handlers

import (
	"log/slog"
	"net/http"
)

// ReloadResponse lists the jobs available after a reload.
type ReloadResponse struct {
	Jobs []string `json:"jobs"`
}

// ReloadHandler handles requests to reload configuration from disk.
type ReloadHandler struct {
	logger   *slog.Logger
	reloader Reloader
	provider ConfigProvider
}

// NewReloadHandler creates a new ReloadHandler.
func NewReloadHandler(logger *slog.Logger, reloader Reloader, provider ConfigProvider) *ReloadHandler {
	return &ReloadHandler{
		logger:   logger,
		reloader: reloader,
		provider: provider,
	}
}

// ServeHTTP implements http.Handler. The previous configuration stays in
// effect when the reload fails.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("reloading configuration")

	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("failed to reload configuration", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to reload configuration: " + err.Error(),
		})
		return
	}

	var resp ReloadResponse
	if cfg := h.provider.Config(); cfg != nil {
		resp.Jobs = cfg.JobNames()
	}
	h.logger.Info("configuration reloaded successfully", "jobs", resp.Jobs)
	writeJSON(w, http.StatusOK, resp)
}
