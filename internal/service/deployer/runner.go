package deployer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
)

const (
	// finishedMessage is reported after the install stage succeeded.
	finishedMessage = "Finished."

	installerSwitch = "/C"
)

var (
	errContextRequired = errors.New("packaging context must be provided")
	errNotStarted      = errors.New("no deployment has been started")
)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLauncher sets the launcher used for every process stage.
func WithLauncher(l Launcher) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.launcher = l
		}
	}
}

// WithInstaller sets the launcher used for the install stage of copy installs.
func WithInstaller(l Launcher) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.installer = l
		}
	}
}

// WithSink sets where run events are reported.
func WithSink(s Sink) RunnerOption {
	return func(r *Runner) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithStageTimeout kills a stage that runs longer than d. Zero disables the limit.
func WithStageTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d >= 0 {
			r.stageTimeout = d
		}
	}
}

// Runner executes the package, sign and install stages for one artifact at a time.
type Runner struct {
	launcher     Launcher
	installer    Launcher
	sink         Sink
	stageTimeout time.Duration

	mu   sync.Mutex
	run  *activeRun
	last *deploy.Result
}

// activeRun is the state of the run in flight. Fields below mu in Runner are
// only touched with Runner.mu held.
type activeRun struct {
	id     string
	pctx   *deploy.PackagingContext
	ctx    context.Context //nolint:containedctx // Lives exactly as long as the run.
	cancel context.CancelFunc
	done   chan struct{}

	stage  deploy.RunStage
	result *deploy.Result
}

// NewRunner returns an idle runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		launcher:  NewExecLauncher(),
		installer: NewDriveInstaller(),
		sink:      discardSink{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start begins a run and returns once the packaging tool is launched.
// If the packaging tool cannot be launched the run ends right away and the
// launch failure is returned. Canceling ctx stops the run.
func (r *Runner) Start(ctx context.Context, pctx *deploy.PackagingContext) error {
	if pctx == nil {
		return errContextRequired
	}

	r.mu.Lock()

	if r.run != nil && !isClosed(r.run.done) {
		r.mu.Unlock()

		return deploy.ErrDeploymentInProgress
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &activeRun{
		id:     uuid.NewString(),
		pctx:   pctx,
		ctx:    runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		stage:  deploy.StagePackaging,
	}
	r.run = run

	r.mu.Unlock()

	r.sink.RunStarted(run.id, pctx)
	r.sink.Message(run.id, fmt.Sprintf("Creating %s%s ...", filepath.FromSlash(pctx.BaseFile()), deploy.SisxSuffix))

	if stageErr := r.launchStage(run, deploy.StagePackaging); stageErr != nil {
		return stageErr
	}

	return nil
}

// Stop cancels the run in flight. The running tool is killed and the run
// finishes as failed. Stop does nothing when no run is in flight.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run == nil || r.run.stage.IsTerminal() {
		return
	}

	r.run.cancel()
}

// IsRunning reports whether a run has started and not yet finished,
// whichever stage it is in.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.run != nil && !isClosed(r.run.done)
}

// Stage returns the stage of the current or last run.
func (r *Runner) Stage() deploy.RunStage {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run == nil {
		return deploy.StageIdle
	}

	return r.run.stage
}

// Done returns a channel closed when the current run finishes. It is already
// closed when no run was started.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run == nil {
		closed := make(chan struct{})
		close(closed)

		return closed
	}

	return r.run.done
}

// Wait blocks until the current run finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context) (*deploy.Result, error) {
	r.mu.Lock()
	run := r.run
	r.mu.Unlock()

	if run == nil {
		return nil, errNotStarted
	}

	select {
	case <-run.done:
		return r.LastResult(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LastResult returns the result of the most recently finished run.
func (r *Runner) LastResult() *deploy.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.last
}

// launchStage starts the process of stage. A launch failure ends the run and
// is returned.
func (r *Runner) launchStage(run *activeRun, stage deploy.RunStage) *deploy.StageError {
	spec := r.processSpec(run.pctx, stage)

	if err := run.ctx.Err(); err != nil {
		stageErr := &deploy.StageError{Stage: stage, Kind: deploy.Canceled, Tool: spec.Tool, ExitCode: -1, Err: err}
		r.fail(run, stageErr)

		return stageErr
	}

	r.sink.Message(run.id, spec.CommandLine())

	stageCtx, cancel := r.stageContext(run.ctx)

	output := func(stream Stream, chunk string) {
		r.sink.Output(run.id, stage, stream, chunk)
	}

	exit := func(e Exit) {
		// Read the cause before cancel hides a deadline behind context.Canceled.
		stageCtxErr := stageCtx.Err()

		cancel()
		r.onExit(run, spec, stageCtxErr, e)
	}

	if err := r.launcherFor(run.pctx, stage).Launch(stageCtx, spec, output, exit); err != nil {
		cancel()

		stageErr := &deploy.StageError{Stage: stage, Kind: deploy.LaunchFailure, Tool: spec.Tool, ExitCode: -1, Err: err}
		r.fail(run, stageErr)

		return stageErr
	}

	return nil
}

// onExit is the continuation of every stage: it fails the run or launches the next stage.
func (r *Runner) onExit(run *activeRun, spec ProcessSpec, stageCtxErr error, e Exit) {
	if stageErr := r.classify(run, spec, stageCtxErr, e); stageErr != nil {
		r.fail(run, stageErr)

		return
	}

	next := spec.Stage.Next()

	r.mu.Lock()

	if run.stage != spec.Stage || !deploy.CanTransition(run.stage, next) {
		r.mu.Unlock()

		return
	}

	run.stage = next

	r.mu.Unlock()

	if next == deploy.StageDone {
		r.sink.Message(run.id, finishedMessage)
		r.finish(run, &deploy.Result{RunID: run.id, Stage: deploy.StageDone})

		return
	}

	_ = r.launchStage(run, next)
}

// classify turns a process exit into a stage error, or nil on success.
func (r *Runner) classify(run *activeRun, spec ProcessSpec, stageCtxErr error, e Exit) *deploy.StageError {
	runErr := run.ctx.Err()

	if e.Success() {
		if runErr != nil {
			// Stopped between the exit and the next launch.
			return &deploy.StageError{Stage: spec.Stage, Kind: deploy.Canceled, Tool: spec.Tool, ExitCode: 0, Err: runErr}
		}

		return nil
	}

	stageErr := &deploy.StageError{Stage: spec.Stage, Tool: spec.Tool, ExitCode: e.Code, Err: e.Err}

	switch {
	case runErr != nil:
		stageErr.Kind = deploy.Canceled
		stageErr.Err = runErr
	case errors.Is(stageCtxErr, context.DeadlineExceeded):
		stageErr.Kind = deploy.TimedOut
		stageErr.Timeout = r.stageTimeout
		stageErr.Err = stageCtxErr
	case e.Crashed:
		stageErr.Kind = deploy.AbnormalTermination
	case e.Err != nil:
		stageErr.Kind = deploy.ProcessError
	default:
		stageErr.Kind = deploy.NonZeroExit
	}

	return stageErr
}

// fail moves the run to StageFailed and finishes it. Only the first failure counts.
func (r *Runner) fail(run *activeRun, stageErr *deploy.StageError) {
	r.mu.Lock()

	if !deploy.CanTransition(run.stage, deploy.StageFailed) {
		r.mu.Unlock()

		return
	}

	run.stage = deploy.StageFailed

	r.mu.Unlock()

	r.sink.StageError(run.id, stageErr.Stage, stageErr.Message())
	r.finish(run, &deploy.Result{RunID: run.id, Stage: deploy.StageFailed, Failure: stageErr})
}

// finish reports the result and releases waiters.
func (r *Runner) finish(run *activeRun, result *deploy.Result) {
	r.sink.RunFinished(run.id, result)

	r.mu.Lock()
	defer r.mu.Unlock()

	run.result = result
	r.last = result

	run.cancel()
	close(run.done)
}

func (r *Runner) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.stageTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, r.stageTimeout)
}

func (r *Runner) launcherFor(pctx *deploy.PackagingContext, stage deploy.RunStage) Launcher {
	if stage == deploy.StageInstalling && pctx.InstallMode() == deploy.InstallCopy {
		return r.installer
	}

	return r.launcher
}

// processSpec builds the invocation of stage. File names are relative to the
// working directory, except for the installer which gets the absolute path.
func (r *Runner) processSpec(pctx *deploy.PackagingContext, stage deploy.RunStage) ProcessSpec {
	spec := ProcessSpec{
		Stage: stage,
		Tool:  pctx.ToolName(stage),
		Dir:   pctx.WorkingDir(),
	}

	switch stage {
	case deploy.StagePackaging:
		spec.Program = pctx.Tools().Packager
		spec.Args = []string{pctx.PackageFile()}
		spec.Artifact = filepath.Join(pctx.WorkingDir(), pctx.SisFile())
	case deploy.StageSigning:
		spec.Program = pctx.Tools().Signer
		spec.Args = []string{pctx.SisFile(), pctx.SisxFile(), pctx.Signature(), pctx.Key()}
		spec.Artifact = pctx.SisxPath()
	case deploy.StageInstalling:
		spec.Artifact = pctx.SisxPath()

		if pctx.InstallMode() == deploy.InstallCopy {
			spec.Destination = pctx.InstallDestination()
			spec.Args = []string{pctx.SisxPath(), pctx.InstallDestination()}

			break
		}

		spec.Program = pctx.Tools().Installer
		spec.Args = []string{installerSwitch, pctx.SisxPath()}
	}

	return spec
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
