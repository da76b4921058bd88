package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/oshokin/sisx-deploy/internal/version"
)

// EndpointEnv is read when no endpoint is configured.
const EndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

// instrumentationName names the tracer handed to the deployment pipeline.
const instrumentationName = "github.com/oshokin/sisx-deploy"

// Tracing owns the tracer provider of one binary.
type Tracing struct {
	provider *sdktrace.TracerProvider
}

// Options configures Setup.
type Options struct {
	// Endpoint is the OTLP/HTTP collector address (host:port). Empty falls
	// back to EndpointEnv; empty there too disables tracing.
	Endpoint string
	// ServiceName is reported as service.name.
	ServiceName string
	// Insecure sends spans over plain HTTP.
	Insecure bool
	// Exporter replaces the OTLP exporter. Used by tests.
	Exporter sdktrace.SpanExporter
}

// Setup builds the tracer provider. The returned Tracing is never nil.
func Setup(ctx context.Context, opts Options) (*Tracing, error) {
	exporter := opts.Exporter

	if exporter == nil {
		endpoint := opts.Endpoint
		if endpoint == "" {
			endpoint = os.Getenv(EndpointEnv)
		}

		if endpoint == "" {
			return &Tracing{}, nil
		}

		httpOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if opts.Insecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}

		var err error

		exporter, err = otlptracehttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP exporter: %w", err)
		}
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", opts.ServiceName),
		attribute.String("service.version", version.Short()),
	)

	return &Tracing{
		provider: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		),
	}, nil
}

// Enabled reports whether spans are exported.
func (t *Tracing) Enabled() bool {
	return t != nil && t.provider != nil
}

// Tracer returns the pipeline tracer, a no-op one when tracing is disabled.
//
//nolint:ireturn // trace.Tracer is the OpenTelemetry API type.
func (t *Tracing) Tracer() trace.Tracer {
	if !t.Enabled() {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}

	return t.provider.Tracer(instrumentationName)
}

// Shutdown flushes pending spans and stops the exporter.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}

	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}

	return nil
}
