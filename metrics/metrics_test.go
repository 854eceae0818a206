package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteWriteServer decodes every request it receives and sends the series to the returned channel.
func remoteWriteServer(t *testing.T) (*httptest.Server, <-chan []prompb.TimeSeries) {
	t.Helper()
	received := make(chan []prompb.TimeSeries, 10)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/write", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var req prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(decoded, &req))
		received <- req.Timeseries
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)
	return server, received
}

func findLabel(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func receive(t *testing.T, ch <-chan []prompb.TimeSeries) []prompb.TimeSeries {
	t.Helper()
	select {
	case ts := <-ch:
		return ts
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for remote write")
		return nil
	}
}

func TestNewPushRegistry(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PushConfig
		wantURL string
	}{
		{
			name:    "minimal config",
			cfg:     PushConfig{URL: "http://localhost:8428"},
			wantURL: "http://localhost:8428/api/v1/write",
		},
		{
			name: "trailing slash",
			cfg: PushConfig{
				URL:     "http://localhost:8428/",
				Prefix:  "progressor",
				Job:     "cli",
				Timeout: 5 * time.Second,
			},
			wantURL: "http://localhost:8428/api/v1/write",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewPushRegistry(tt.cfg)
			require.NotNil(t, registry)
			assert.Equal(t, tt.wantURL, registry.url)
			assert.Equal(t, 0, registry.Len())
		})
	}
}

func TestPushRegistry_Flush(t *testing.T) {
	server, received := remoteWriteServer(t)
	registry := NewPushRegistry(PushConfig{
		URL:      server.URL,
		Prefix:   "test",
		Job:      "testjob",
		Instance: "testinstance",
	})

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "queue_depth"})
	require.NoError(t, err)
	gauge.Set(3)
	gauge.Set(42)

	vec, err := registry.NewGaugeVec(prometheus.GaugeOpts{Name: "task_current"}, []string{"task"})
	require.NoError(t, err)
	vec.With(prometheus.Labels{"task": "import"}).Set(7)

	assert.Equal(t, 2, registry.Len())
	require.NoError(t, registry.Flush(context.Background()))

	series := receive(t, received)
	require.Len(t, series, 2)

	assert.Equal(t, "test_queue_depth", findLabel(series[0].Labels, "__name__"))
	assert.Equal(t, "testjob", findLabel(series[0].Labels, "job"))
	assert.Equal(t, "testinstance", findLabel(series[0].Labels, "instance"))
	require.Len(t, series[0].Samples, 1)
	assert.Equal(t, 42.0, series[0].Samples[0].Value)

	assert.Equal(t, "test_task_current", findLabel(series[1].Labels, "__name__"))
	assert.Equal(t, "import", findLabel(series[1].Labels, "task"))
	assert.Equal(t, 7.0, series[1].Samples[0].Value)
}

func TestPushRegistry_CounterAccumulates(t *testing.T) {
	server, received := remoteWriteServer(t)
	registry := NewPushRegistry(PushConfig{URL: server.URL})

	vec, err := registry.NewCounterVec(prometheus.CounterOpts{Name: "updates_total"}, []string{"task", "state"})
	require.NoError(t, err)

	labels := prometheus.Labels{"task": "import", "state": "working"}
	vec.With(labels).Inc()
	vec.With(labels).Add(2)
	require.NoError(t, registry.Flush(context.Background()))
	series := receive(t, received)
	require.Len(t, series, 1)
	assert.Equal(t, 3.0, series[0].Samples[0].Value)

	vec.With(labels).Inc()
	require.NoError(t, registry.Flush(context.Background()))
	series = receive(t, received)
	assert.Equal(t, 4.0, series[0].Samples[0].Value)

	assert.Panics(t, func() { vec.With(labels).Add(-1) })
}

func TestPushRegistry_FlushEmpty(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	registry := NewPushRegistry(PushConfig{URL: server.URL})
	require.NoError(t, registry.Flush(context.Background()))
	assert.Equal(t, int32(0), requests.Load())
}

func TestPushRegistry_FlushError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad series", http.StatusBadRequest)
	}))
	defer server.Close()

	registry := NewPushRegistry(PushConfig{URL: server.URL})
	counter, err := registry.NewCounter(prometheus.CounterOpts{Name: "runs_total"})
	require.NoError(t, err)
	counter.Inc()

	err = registry.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestPushRegistry_RunFlushesOnShutdown(t *testing.T) {
	server, received := remoteWriteServer(t)
	registry := NewPushRegistry(PushConfig{URL: server.URL})

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "last"})
	require.NoError(t, err)
	gauge.Set(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		registry.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	series := receive(t, received)
	require.Len(t, series, 1)
	assert.Equal(t, "last", findLabel(series[0].Labels, "__name__"))
	<-done
}

func TestScrapeRegistry(t *testing.T) {
	registry, err := NewScrapeRegistry("progressor")
	require.NoError(t, err)

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "A test gauge"})
	require.NoError(t, err)
	gauge.Set(42)

	counter, err := registry.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "A test counter"})
	require.NoError(t, err)
	counter.Inc()

	vec, err := registry.NewCounterVec(prometheus.CounterOpts{Name: "test_vec", Help: "A test vec"}, []string{"task"})
	require.NoError(t, err)
	vec.With(prometheus.Labels{"task": "import"}).Add(2)

	_, err = registry.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "duplicate"})
	assert.Error(t, err)

	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "progressor_test_gauge 42")
	assert.Contains(t, body, "progressor_test_counter 1")
	assert.Contains(t, body, `progressor_test_vec{task="import"} 2`)
	assert.Contains(t, body, "go_goroutines")
}
