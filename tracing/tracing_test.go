package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lexoliu/progressor/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProvider(t *testing.T) (*Provider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	p, err := NewProvider("progressor", "test", exporter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, exporter
}

func eventNames(stub tracetest.SpanStub) []string {
	names := make([]string, 0, len(stub.Events))
	for _, e := range stub.Events {
		names = append(names, e.Name)
	}
	return names
}

func TestObserver_Completed(t *testing.T) {
	p, exporter := newTestProvider(t)
	observe := Observer(context.Background(), p.Tracer(), "import", attribute.String("job", "nightly"))

	base := progress.NewUpdate(10)
	observe(base)
	observe(base.WithCurrent(3))
	observe(base.WithCurrent(4).WithMessage("indexing"))
	observe(base.WithCurrent(5).WithMessage("indexing"))
	observe(base.WithCurrent(5).WithState(progress.Paused))
	observe(base.WithCurrent(10).WithState(progress.Completed))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "import", span.Name)
	assert.Equal(t, codes.Ok, span.Status.Code)
	assert.Equal(t, []string{
		"progress.working",
		"progress.message",
		"progress.paused",
		"progress.completed",
	}, eventNames(span))
	assert.Contains(t, span.Attributes, attribute.String("job", "nightly"))
	assert.Contains(t, span.Attributes, attribute.Int64("progress.total", 10))
	assert.Contains(t, span.Attributes, attribute.String("progress.state", "completed"))
}

func TestObserver_Cancelled(t *testing.T) {
	p, exporter := newTestProvider(t)

	task := progress.Track(10, func(ctx context.Context, u *progress.Updater) (int, error) {
		u.Update(2)
		u.Cancel()
		return 0, nil
	})
	_, err := progress.Observe(context.Background(), task, Observer(context.Background(), p.Tracer(), "export"))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "cancelled", spans[0].Status.Description)
}

func TestObserver_ParentSpan(t *testing.T) {
	p, exporter := newTestProvider(t)

	ctx, parent := p.Tracer().Start(context.Background(), "run")
	observe := Observer(ctx, p.Tracer(), "child")
	observe(progress.NewUpdate(1).WithCurrent(1).WithState(progress.Completed))
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "child", spans[0].Name)
	assert.Equal(t, parent.SpanContext().SpanID(), spans[0].Parent.SpanID())
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")

	p, err := Init("progressor", "test", path)
	require.NoError(t, err)

	observe := Observer(context.Background(), p.Tracer(), "file-task")
	observe(progress.NewUpdate(0).WithState(progress.Completed))
	require.NoError(t, p.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file-task")
}
