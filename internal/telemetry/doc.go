// Package telemetry sets up OpenTelemetry tracing for the binaries.
//
// Spans are exported over OTLP/HTTP when an endpoint is configured. Without
// one every tracer is a no-op and nothing leaves the process.
package telemetry
