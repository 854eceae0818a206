package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lexoliu/progressor/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReloader struct {
	err   error
	calls int
}

func (m *mockReloader) Reload() error {
	m.calls++
	return m.err
}

func TestReloadHandler_Success(t *testing.T) {
	reloader := &mockReloader{}
	provider := &mockConfigProvider{config: testConfig()}
	handler := NewReloadHandler(slog.Default(), reloader, provider)

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, reloader.calls)

	var resp ReloadResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, []string{"reindex", "export"}, resp.Jobs)
}

func TestReloadHandler_Error(t *testing.T) {
	reloader := &mockReloader{err: errors.New("config file not found")}
	handler := NewReloadHandler(slog.Default(), reloader, &mockConfigProvider{config: testConfig()})

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "config file not found")
}

func TestStoreReloadHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		store := &mockReloader{}
		w := httptest.NewRecorder()
		NewStoreReloadHandler(slog.Default(), store).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/history/reload", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, 1, store.calls)
	})

	t.Run("error", func(t *testing.T) {
		store := &mockReloader{err: errors.New("permission denied")}
		w := httptest.NewRecorder()
		NewStoreReloadHandler(slog.Default(), store).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/history/reload", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "permission denied")
	})
}

var _ ConfigProvider = (*mockConfigProvider)(nil)

func testConfig() *config.Config {
	cfg := &config.Config{
		Jobs: []config.JobConfig{
			{Name: "reindex", Total: 100},
			{Name: "export", Total: 20},
		},
	}
	cfg.SetDefaults()
	return cfg
}
