package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/oshokin/sisx-deploy/internal/config"
	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
	"github.com/oshokin/sisx-deploy/internal/logger"
	"github.com/oshokin/sisx-deploy/internal/service/common"
)

// Action selects what the remote client asks of the agent.
type Action int

const (
	// ActionDeploy runs a deployment on the agent.
	ActionDeploy Action = iota
	// ActionLast shows the agent's most recent deployment.
	ActionLast
	// ActionStatus shows whether the agent is idle or busy.
	ActionStatus
)

// Options configures the remote client.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// ServerAddress overrides server address from config when specified.
	ServerAddress string
	// Action is the request to send.
	Action Action
	// Configuration is the run configuration to deploy.
	Configuration string
	// DeployTimeout bounds a remote deployment; zero means no limit.
	DeployTimeout time.Duration
	// Output receives the human-readable result; defaults to stdout.
	Output io.Writer
	// NoColor disables colored output.
	NoColor bool
}

// ErrDeploymentFailed is returned when the agent ran the pipeline and it failed.
var ErrDeploymentFailed = errors.New("remote deployment failed")

var errUnknownAction = errors.New("unknown remote action")

// Run performs one request against the deployment agent and prints the outcome.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "sisx-remote")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = common.ApplyLogLevel(opts.LogLevel, cfg.LogLevel); err != nil {
		return fmt.Errorf("apply log level: %w", err)
	}

	// Use server address from options if provided, otherwise use config.
	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	client, err := common.Dial(ctx, serverAddress,
		common.WithCallTimeout(cfg.Timeout),
		common.WithDeployTimeout(opts.DeployTimeout))
	if err != nil {
		return err
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	p := newPrinter(output, opts.NoColor)

	switch opts.Action {
	case ActionDeploy:
		return deployRemote(ctx, client, serverAddress, opts.Configuration, p)
	case ActionLast:
		record, lastErr := client.GetLastRun(ctx)
		if lastErr != nil {
			return lastErr
		}

		p.record(record)

		return nil
	case ActionStatus:
		status, healthErr := client.Health(ctx)
		if healthErr != nil {
			return healthErr
		}

		p.line(p.label, "Agent %s: %s", serverAddress, strings.ToLower(status.String()))

		return nil
	default:
		return fmt.Errorf("%w: %d", errUnknownAction, opts.Action)
	}
}

func deployRemote(ctx context.Context, client *common.Client, serverAddress, configuration string, p *printer) error {
	actor, err := common.DetectActor()
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Requesting remote deployment",
		"server_address", serverAddress,
		"configuration", configuration)

	record, err := client.Deploy(ctx, configuration, actor)
	if err != nil {
		return err
	}

	p.record(record)

	if !record.Succeeded() {
		return fmt.Errorf("%w: %s", ErrDeploymentFailed, record.Error)
	}

	return nil
}

// printer renders records for a terminal.
type printer struct {
	w       io.Writer
	label   *color.Color
	failure *color.Color
	success *color.Color
}

func newPrinter(w io.Writer, noColor bool) *printer {
	p := &printer{
		w:       w,
		label:   color.New(color.FgCyan),
		failure: color.New(color.FgRed, color.Bold),
		success: color.New(color.FgGreen, color.Bold),
	}

	if noColor {
		for _, c := range []*color.Color{p.label, p.failure, p.success} {
			c.DisableColor()
		}
	}

	return p
}

func (p *printer) line(c *color.Color, format string, args ...any) {
	_, _ = c.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) record(r *deploy.Record) {
	for _, m := range r.Messages {
		_, _ = fmt.Fprintln(p.w, m)
	}

	p.line(p.label, "Run %s of %s: %s", r.RunID, r.Configuration, r.Stage)

	if r.Actor != nil {
		p.line(p.label, "Started by %s@%s", r.Actor.Username, r.Actor.Hostname)
	}

	if !r.StartedAt.IsZero() {
		p.line(p.label, "Started at %s, took %s", r.StartedAt.Local().Format(time.DateTime), r.Duration())
	}

	if r.Succeeded() {
		p.line(p.success, "Artifact: %s", r.Artifact)

		return
	}

	if r.Error != "" {
		p.line(p.failure, "%s (%s during %s)", r.Error, r.FailureKind, r.FailedStage)
	}
}
