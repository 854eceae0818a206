package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lexoliu/progressor/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type mockConfigProvider struct {
	config *config.Config
}

func (m *mockConfigProvider) Config() *config.Config {
	return m.config
}

type mockJobsProvider map[string]bool

func (m mockJobsProvider) IsRunning(name string) bool {
	return m[name]
}

func TestConfigHandler(t *testing.T) {
	cfg := testConfig()
	cfg.Jobs[0].StepDelay = 50 * time.Millisecond
	handler := NewConfigHandler(&mockConfigProvider{config: cfg})

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/yaml", w.Header().Get("Content-Type"))

	var resp config.Config
	require.NoError(t, yaml.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, "reindex", resp.Jobs[0].Name)
	assert.Equal(t, 50*time.Millisecond, resp.Jobs[0].StepDelay)
	assert.Equal(t, cfg.Server.Addr, resp.Server.Addr)
	assert.Equal(t, cfg.Progress.Capacity, resp.Progress.Capacity)
}

func TestConfigHandler_NoConfig(t *testing.T) {
	handler := NewConfigHandler(&mockConfigProvider{})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/config", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestJobsHandler(t *testing.T) {
	handler := NewJobsHandler(&mockConfigProvider{config: testConfig()}, mockJobsProvider{"export": true})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp []JobInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, []JobInfo{
		{Name: "reindex", Total: 100},
		{Name: "export", Total: 20, Running: true},
	}, resp)
}
