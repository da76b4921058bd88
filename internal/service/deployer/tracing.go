package deployer

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
)

// runSpanName is the name of the span covering one deployment.
const runSpanName = "sisx.deploy"

// TracingSink records every run as one span. Lifecycle messages become span
// events and a failed run ends with an error status. Tool output is not
// traced. One sink can follow several runs.
type TracingSink struct {
	ctx    context.Context //nolint:containedctx // Parent of the run spans.
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewTracingSink starts run spans under ctx with tracer.
func NewTracingSink(ctx context.Context, tracer trace.Tracer) *TracingSink {
	return &TracingSink{
		ctx:    ctx,
		tracer: tracer,
		spans:  make(map[string]trace.Span),
	}
}

// RunStarted implements Sink.
func (t *TracingSink) RunStarted(runID string, pctx *deploy.PackagingContext) {
	attrs := []attribute.KeyValue{attribute.String("sisx.run_id", runID)}
	if pctx != nil {
		attrs = append(attrs,
			attribute.String("sisx.artifact", pctx.SisxPath()),
			attribute.String("sisx.signing_mode", pctx.SigningMode().String()),
			attribute.String("sisx.install_mode", pctx.InstallMode().String()))
	}

	_, span := t.tracer.Start(t.ctx, runSpanName, trace.WithAttributes(attrs...))

	t.mu.Lock()
	t.spans[runID] = span
	t.mu.Unlock()
}

// Output implements Sink.
func (t *TracingSink) Output(string, deploy.RunStage, Stream, string) {}

// Message implements Sink.
func (t *TracingSink) Message(runID, text string) {
	if span := t.span(runID); span != nil {
		span.AddEvent(text)
	}
}

// StageError implements Sink.
func (t *TracingSink) StageError(runID string, stage deploy.RunStage, message string) {
	if span := t.span(runID); span != nil {
		span.AddEvent("stage failed", trace.WithAttributes(
			attribute.String("sisx.stage", stage.String()),
			attribute.String("sisx.error", message)))
	}
}

// RunFinished implements Sink.
func (t *TracingSink) RunFinished(runID string, result *deploy.Result) {
	t.mu.Lock()
	span, ok := t.spans[runID]
	delete(t.spans, runID)
	t.mu.Unlock()

	if !ok {
		return
	}

	span.SetAttributes(attribute.String("sisx.stage", result.Stage.String()))

	if result.Failure != nil {
		span.SetAttributes(
			attribute.String("sisx.failure_kind", result.Failure.Kind.String()),
			attribute.String("sisx.failed_stage", result.Failure.Stage.String()))
		span.RecordError(result.Failure)
		span.SetStatus(codes.Error, result.Failure.Message())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (t *TracingSink) span(runID string) trace.Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.spans[runID]
}
