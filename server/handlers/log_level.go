package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// LogLevelRequest is the request and response body for /log-level.
type LogLevelRequest struct {
	Level string `json:"level"`
}

// LogLevelHandler reports the log level on GET and changes it on PUT.
type LogLevelHandler struct {
	logger *slog.Logger
	level  LevelController
}

// NewLogLevelHandler creates a new LogLevelHandler.
func NewLogLevelHandler(logger *slog.Logger, level LevelController) *LogLevelHandler {
	return &LogLevelHandler{
		logger: logger,
		level:  level,
	}
}

// ServeHTTP implements http.Handler.
func (h *LogLevelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		var req LogLevelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("invalid JSON: %v", err),
			})
			return
		}
		if err := h.level.SetLevel(req.Level); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Info("log level changed", "level", req.Level)
	}

	writeJSON(w, http.StatusOK, LogLevelRequest{Level: strings.ToLower(h.level.Level().String())})
}
