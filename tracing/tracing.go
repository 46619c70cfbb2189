// Package tracing configures OpenTelemetry and offers small span helpers used
// by the orchestrator, the delegation tool and the gateway.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/hupe1980/meshgate"

// Exporter names accepted by Config.Exporter.
const (
	ExporterNoop   = "noop"
	ExporterStdout = "stdout"
)

// Config selects the span exporter.
type Config struct {
	Enabled  bool   `yaml:"enabled" env:"TRACING"`
	Exporter string `yaml:"exporter" env:"TRACING_EXPORTER"`

	// Writer receives stdout exporter output; defaults to os.Stderr so spans
	// never mix with CLI output.
	Writer io.Writer `yaml:"-" env:"-"`
}

// DefaultConfig returns tracing disabled.
func DefaultConfig() Config {
	return Config{Exporter: ExporterStdout}
}

// Setup installs the global tracer provider and returns its shutdown function.
// A disabled config (or the noop exporter) installs a noop provider.
func Setup(cfg Config) (func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	}

	switch cfg.Exporter {
	case ExporterNoop, "":
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}

		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)

		return tp.Shutdown, nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}
}

// Start opens a span on the meshgate tracer.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records err on span and marks it failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks span successful.
func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
