package handlers

import (
	"net/http"

	"github.com/lexoliu/progressor/buildinfo"
)

// VersionHeader carries the build version on every health response.
const VersionHeader = "X-Progressor-Version"

// HandleHealth is a simple health check handler that returns "ok".
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set(VersionHeader, buildinfo.Get().Version)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleVersion returns the build properties as JSON.
func HandleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Get())
}
