// Package tracing records task progress as OpenTelemetry spans. Each
// observed task becomes one span; state changes and messages become span
// events and the terminal update sets the span status.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/lexoliu/progressor"

// Config controls tracing.
type Config struct {
	// Enabled turns on span export.
	Enabled bool `yaml:"enabled"`
	// Output is the file spans are written to as JSON. Empty means stdout.
	Output string `yaml:"output"`
}

// Provider owns a tracer provider and the resources behind its exporter.
type Provider struct {
	tp     *sdktrace.TracerProvider
	closer io.Closer
}

// Init configures a Provider that writes spans with the stdout exporter,
// either to stdout or to outputFile, and installs it as the global
// provider.
func Init(serviceName, serviceVersion, outputFile string) (*Provider, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer
	)
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return nil, fmt.Errorf("creating trace output: %w", err)
		}
		w, closer = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("creating stdout exporter: %w", err)
	}

	p, err := NewProvider(serviceName, serviceVersion, exporter)
	if err != nil {
		return nil, err
	}
	p.closer = closer
	otel.SetTracerProvider(p.tp)
	return p, nil
}

// NewProvider builds a Provider around any span exporter. Spans are
// exported synchronously as they end. The global provider is left alone.
func NewProvider(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) (*Provider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	return &Provider{tp: tp}, nil
}

// Tracer returns the tracer used for task spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tp.Tracer(instrumentationName)
}

// Shutdown flushes pending spans and closes the output file.
func (p *Provider) Shutdown(ctx context.Context) error {
	err := p.tp.Shutdown(ctx)
	if p.closer != nil {
		if cerr := p.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
