package deployer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/oshokin/sisx-deploy/internal/config"
	"github.com/oshokin/sisx-deploy/internal/logger"
	"github.com/oshokin/sisx-deploy/internal/repository/history"
	"github.com/oshokin/sisx-deploy/internal/service/common"
	"github.com/oshokin/sisx-deploy/internal/telemetry"
)

// Options are inputs accepted by the local deployment entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// Configuration is the run configuration to deploy; empty selects the only one.
	Configuration string
	// StageTimeout overrides the configured per-stage timeout when positive.
	StageTimeout time.Duration
	// HistoryFile overrides the configured history file when set.
	HistoryFile string
	// Output receives the console rendering of the run; defaults to stdout.
	Output io.Writer
	// NoColor disables colored console output.
	NoColor bool
	// Verbose keeps per-event log entries that repeat what the console shows.
	Verbose bool
}

// quietLevel is the lowest level the log sink writes when the console
// already shows the run.
const quietLevel = zapcore.WarnLevel

// Run deploys one run configuration from this machine and blocks until the
// pipeline finishes. It returns the run's error when the deployment failed.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "sisx-deploy")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = common.ApplyLogLevel(opts.LogLevel, settings.LogLevel); err != nil {
		return fmt.Errorf("apply log level: %w", err)
	}

	if opts.StageTimeout > 0 {
		settings.StageTimeout = opts.StageTimeout
	}

	historyFile := settings.HistoryFile
	if opts.HistoryFile != "" {
		historyFile = opts.HistoryFile
	}

	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	svc, err := NewService(settings, history.NewFileRepository(historyFile, history.DefaultMaxRecords))
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	tracing, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:    settings.Tracing.Endpoint,
		Insecure:    settings.Tracing.Insecure,
		ServiceName: "sisx-deploy",
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.Timeout)
		defer cancel()

		if shutdownErr := tracing.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.WarnKV(ctx, "Unable to flush traces", "error", shutdownErr)
		}
	}()

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	deployCtx := ctx
	if !opts.Verbose {
		quiet := logger.FromContext(ctx).Desugar().WithOptions(logger.WithLevel(quietLevel)).Sugar()
		deployCtx = logger.ToContext(ctx, quiet)
	}

	record, err := svc.Deploy(deployCtx, opts.Configuration, actor,
		NewConsoleSink(output, opts.NoColor),
		NewTracingSink(ctx, tracing.Tracer()))
	if record != nil {
		logger.InfoKV(ctx, "Deployment recorded",
			"run_id", record.RunID,
			"stage", record.Stage.String(),
			"duration", record.Duration().String(),
			"history_file", historyFile)
	}

	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}

	return nil
}
