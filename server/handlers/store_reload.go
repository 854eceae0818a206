package handlers

import (
	"log/slog"
	"net/http"
)

// StoreReloadHandler handles requests to re-read the run history from disk.
type StoreReloadHandler struct {
	logger *slog.Logger
	store  Reloader
}

// NewStoreReloadHandler creates a new StoreReloadHandler.
func NewStoreReloadHandler(logger *slog.Logger, store Reloader) *StoreReloadHandler {
	return &StoreReloadHandler{
		logger: logger,
		store:  store,
	}
}

// ServeHTTP implements http.Handler.
func (h *StoreReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("reloading run history store")

	if err := h.store.Reload(); err != nil {
		h.logger.Error("failed to reload store", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to reload store: " + err.Error(),
		})
		return
	}

	h.logger.Info("store reloaded successfully")
	w.WriteHeader(http.StatusNoContent)
}
