package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lexoliu/progressor/jobs"
	"github.com/lexoliu/progressor/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHistoryProvider struct {
	history []jobs.RunSummary
	logs    map[string][]logging.LogEntry
}

func (m *mockHistoryProvider) History() []jobs.RunSummary {
	return m.history
}

func (m *mockHistoryProvider) Logs(id string) ([]logging.LogEntry, error) {
	logs, ok := m.logs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobs.ErrRunNotFound, id)
	}
	return logs, nil
}

func testHistory() *mockHistoryProvider {
	return &mockHistoryProvider{
		history: []jobs.RunSummary{
			{ID: "3", Job: "reindex", State: "completed"},
			{ID: "2", Job: "export", State: "cancelled", Error: "step failed"},
			{ID: "1", Job: "reindex", State: "completed"},
		},
		logs: map[string][]logging.LogEntry{
			"1": {{Time: time.Unix(0, 0).UTC(), Level: "INFO", Message: "job started"}},
		},
	}
}

func decodeHistory(t *testing.T, w *httptest.ResponseRecorder) []jobs.RunSummary {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code)
	var got []jobs.RunSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	return got
}

func TestHistoryHandler(t *testing.T) {
	handler := NewHistoryHandler(testHistory())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Len(t, decodeHistory(t, w), 3)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history?job=reindex", nil))
	got := decodeHistory(t, w)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "1", got[1].ID)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history?limit=1", nil))
	got = decodeHistory(t, w)
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].ID)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history?limit=10", nil))
	assert.Len(t, decodeHistory(t, w), 3)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryLogsHandler(t *testing.T) {
	handler := NewHistoryLogsHandler(testHistory())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/logs?id=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var logs []logging.LogEntry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "job started", logs[0].Message)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/logs", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/history/logs?id=9", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
