package deployer

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
	"github.com/oshokin/sisx-deploy/internal/logger"
)

// Sink receives everything a run reports. Every call carries the id of the
// run it belongs to. Output may be delivered from several goroutines, so
// implementations must be safe for concurrent use.
type Sink interface {
	// RunStarted is called once, before the first stage is launched.
	RunStarted(runID string, pctx *deploy.PackagingContext)
	// Output delivers a chunk of a tool's stdout or stderr as it arrives.
	Output(runID string, stage deploy.RunStage, stream Stream, chunk string)
	// Message delivers a lifecycle line such as an echoed command.
	Message(runID string, text string)
	// StageError reports the failure that ended the run.
	StageError(runID string, stage deploy.RunStage, message string)
	// RunFinished is called once, after the run reached a terminal stage.
	RunFinished(runID string, result *deploy.Result)
}

// MultiSink fans every event out to several sinks in order.
type MultiSink []Sink

// NewMultiSink drops nil sinks and returns the rest as one sink.
func NewMultiSink(sinks ...Sink) MultiSink {
	out := make(MultiSink, 0, len(sinks))

	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}

	return out
}

// RunStarted implements Sink.
func (m MultiSink) RunStarted(runID string, pctx *deploy.PackagingContext) {
	for _, s := range m {
		s.RunStarted(runID, pctx)
	}
}

// Output implements Sink.
func (m MultiSink) Output(runID string, stage deploy.RunStage, stream Stream, chunk string) {
	for _, s := range m {
		s.Output(runID, stage, stream, chunk)
	}
}

// Message implements Sink.
func (m MultiSink) Message(runID, text string) {
	for _, s := range m {
		s.Message(runID, text)
	}
}

// StageError implements Sink.
func (m MultiSink) StageError(runID string, stage deploy.RunStage, message string) {
	for _, s := range m {
		s.StageError(runID, stage, message)
	}
}

// RunFinished implements Sink.
func (m MultiSink) RunFinished(runID string, result *deploy.Result) {
	for _, s := range m {
		s.RunFinished(runID, result)
	}
}

// LoggerSink writes run events as structured log entries.
// Tool output is logged at debug level.
type LoggerSink struct {
	ctx context.Context //nolint:containedctx // The context only carries the logger.
}

// NewLoggerSink logs through the logger carried by ctx.
func NewLoggerSink(ctx context.Context) *LoggerSink {
	return &LoggerSink{ctx: ctx}
}

// RunStarted implements Sink.
func (l *LoggerSink) RunStarted(runID string, pctx *deploy.PackagingContext) {
	logger.InfoKV(l.ctx, "Deployment started",
		"run_id", runID,
		"artifact", pctx.SisxPath(),
		"working_dir", pctx.WorkingDir(),
		"signing_mode", pctx.SigningMode().String(),
		"install_mode", pctx.InstallMode().String())
}

// Output implements Sink.
func (l *LoggerSink) Output(runID string, stage deploy.RunStage, stream Stream, chunk string) {
	logger.DebugKV(l.ctx, "Tool output",
		"run_id", runID,
		"stage", stage.String(),
		"stream", stream.String(),
		"text", strings.TrimRight(chunk, "\r\n"))
}

// Message implements Sink.
func (l *LoggerSink) Message(runID, text string) {
	logger.InfoKV(l.ctx, text, "run_id", runID)
}

// StageError implements Sink.
func (l *LoggerSink) StageError(runID string, stage deploy.RunStage, message string) {
	logger.ErrorKV(l.ctx, message, "run_id", runID, "stage", stage.String())
}

// RunFinished implements Sink.
func (l *LoggerSink) RunFinished(runID string, result *deploy.Result) {
	kvs := []any{"run_id", runID, "stage", result.Stage.String()}
	if result.Failure != nil {
		kvs = append(kvs, "failure", result.Failure.Kind.String(), "error", result.Failure.Error())
	}

	logger.InfoKV(l.ctx, "Deployment finished", kvs...)
}

// ConsoleSink shows a run on a terminal the way an output pane would:
// tool output inline, lifecycle messages on their own lines, errors in red.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer

	stderr  *color.Color
	message *color.Color
	failure *color.Color
	success *color.Color
}

// NewConsoleSink writes to w. Colors are disabled when noColor is set.
func NewConsoleSink(w io.Writer, noColor bool) *ConsoleSink {
	c := &ConsoleSink{
		w:       w,
		stderr:  color.New(color.FgYellow),
		message: color.New(color.FgCyan),
		failure: color.New(color.FgRed, color.Bold),
		success: color.New(color.FgGreen, color.Bold),
	}

	if noColor {
		for _, col := range []*color.Color{c.stderr, c.message, c.failure, c.success} {
			col.DisableColor()
		}
	}

	return c
}

// RunStarted implements Sink.
func (c *ConsoleSink) RunStarted(string, *deploy.PackagingContext) {}

// Output implements Sink.
func (c *ConsoleSink) Output(_ string, _ deploy.RunStage, stream Stream, chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stream == StreamStderr {
		_, _ = c.stderr.Fprint(c.w, chunk)

		return
	}

	_, _ = io.WriteString(c.w, chunk)
}

// Message implements Sink.
func (c *ConsoleSink) Message(_ string, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	col := c.message
	if text == finishedMessage {
		col = c.success
	}

	_, _ = col.Fprintln(c.w, text)
}

// StageError implements Sink.
func (c *ConsoleSink) StageError(_ string, _ deploy.RunStage, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = c.failure.Fprintln(c.w, message)
}

// RunFinished implements Sink.
func (c *ConsoleSink) RunFinished(string, *deploy.Result) {}

// discardSink drops every event.
type discardSink struct{}

func (discardSink) RunStarted(string, *deploy.PackagingContext)    {}
func (discardSink) Output(string, deploy.RunStage, Stream, string) {}
func (discardSink) Message(string, string)                         {}
func (discardSink) StageError(string, deploy.RunStage, string)     {}
func (discardSink) RunFinished(string, *deploy.Result)             {}
