package deployer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
)

// TestRunner_SelfSignedPipeline runs all three stages for base "app" with the
// self-signed certificate from /sdk.
func TestRunner_SelfSignedPipeline(t *testing.T) {
	t.Parallel()

	pctx, err := deploy.NewPackagingContext(deploy.ContextParams{
		BaseFile:      "app",
		ToolchainRoot: "/sdk",
		Tools:         deploy.Tools{Packager: "makesis", Signer: "signsis", Installer: "cmd"},
		SigningMode:   deploy.SigningSelf,
		InstallMode:   deploy.InstallInvoke,
	})
	require.NoError(t, err)

	abs, err := filepath.Abs("app")
	require.NoError(t, err)

	launcher := newFakeLauncher()
	sink := new(recordingSink)
	r := NewRunner(WithLauncher(launcher), WithSink(sink))

	require.NoError(t, r.Start(context.Background(), pctx))

	result := waitResult(t, r)
	require.True(t, result.Succeeded())
	require.NoError(t, result.Err())
	require.Equal(t, deploy.StageDone, r.Stage())
	require.False(t, r.IsRunning())

	cert := filepath.Join("/sdk", "selfsigned.cer")
	key := filepath.Join("/sdk", "selfsigned.key")

	specs := launcher.Specs()
	require.Len(t, specs, 3)
	require.Equal(t, "makesis", specs[0].Program)
	require.Equal(t, []string{"app.pkg"}, specs[0].Args)
	require.Equal(t, filepath.Dir(abs), specs[0].Dir)
	require.Equal(t, "signsis", specs[1].Program)
	require.Equal(t, []string{"app.sis", "app.sisx", cert, key}, specs[1].Args)
	require.Equal(t, "cmd", specs[2].Program)
	require.Equal(t, []string{"/C", abs + ".sisx"}, specs[2].Args)

	require.Equal(t, []string{
		"Creating " + abs + ".sisx ...",
		"makesis app.pkg",
		"signsis app.sis app.sisx " + cert + " " + key,
		"cmd /C " + abs + ".sisx",
		"Finished.",
	}, sink.Lines())

	kinds := sink.Kinds()
	require.Equal(t, "started", kinds[0])
	require.Equal(t, "finished", kinds[len(kinds)-1])
}

// TestRunner_PackagingExitCodeStopsPipeline fails on makesis exit 2 without
// launching the later stages.
func TestRunner_PackagingExitCodeStopsPipeline(t *testing.T) {
	t.Parallel()

	launcher := newFakeLauncher()
	launcher.exits[deploy.StagePackaging] = Exit{Code: 2}

	sink := new(recordingSink)
	r := NewRunner(WithLauncher(launcher), WithSink(sink))

	require.NoError(t, r.Start(context.Background(), newTestContext(t, nil)))

	result := waitResult(t, r)
	require.Equal(t, deploy.StageFailed, result.Stage)
	require.Equal(t, deploy.NonZeroExit, result.Failure.Kind)
	require.Equal(t, deploy.StagePackaging, result.Failure.Stage)
	require.Equal(t, 2, result.Failure.ExitCode)

	require.Len(t, launcher.Specs(), 1)

	lines := sink.Lines()
	require.Len(t, lines, 3)
	require.Equal(t, "An error occurred while creating the package.", lines[2])
	require.Equal(t, []string{"started", "message", "message", "error", "finished"}, sink.Kinds())
}

// TestRunner_EveryStageFailureStopsPipeline checks that no stage after a
// failing one is ever launched.
func TestRunner_EveryStageFailureStopsPipeline(t *testing.T) {
	t.Parallel()

	cases := []struct {
		stage    deploy.RunStage
		exit     Exit
		kind     deploy.FailureKind
		launched int
		message  string
	}{
		{deploy.StageSigning, Exit{Code: 1}, deploy.NonZeroExit, 2, "An error occurred while creating the package."},
		{deploy.StageSigning, Exit{Code: -1, Crashed: true}, deploy.AbnormalTermination, 2, "signsis has unexpectedly finished."},
		{deploy.StageInstalling, Exit{Code: 1}, deploy.NonZeroExit, 3, "An error occurred while installing the package."},
		{deploy.StageInstalling, Exit{Code: -1, Err: errors.New("wait failed")}, deploy.ProcessError, 3,
			"Some error has occurred while running ApplicationInstaller."},
	}

	for _, tc := range cases {
		launcher := newFakeLauncher()
		launcher.exits[tc.stage] = tc.exit

		sink := new(recordingSink)
		r := NewRunner(WithLauncher(launcher), WithSink(sink))

		require.NoError(t, r.Start(context.Background(), newTestContext(t, nil)))

		result := waitResult(t, r)
		require.Equal(t, tc.kind, result.Failure.Kind)
		require.Equal(t, tc.stage, result.Failure.Stage)
		require.Len(t, launcher.Specs(), tc.launched)
		require.NotContains(t, sink.Lines(), finishedMessage)

		lines := sink.Lines()
		require.Equal(t, tc.message, lines[len(lines)-1])
	}
}

// TestRunner_LaunchFailure returns the error from Start and still finishes the run.
func TestRunner_LaunchFailure(t *testing.T) {
	t.Parallel()

	launcher := newFakeLauncher()
	launcher.launchErrs[deploy.StagePackaging] = errors.New("executable file not found")

	sink := new(recordingSink)
	r := NewRunner(WithLauncher(launcher), WithSink(sink))

	err := r.Start(context.Background(), newTestContext(t, nil))

	var stageErr *deploy.StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, deploy.LaunchFailure, stageErr.Kind)
	require.Equal(t, "Failed to start makesis.", stageErr.Message())

	select {
	case <-r.Done():
	default:
		t.Fatal("run should be finished after a launch failure")
	}

	require.False(t, r.IsRunning())
	require.Equal(t, deploy.StageFailed, r.Stage())
	require.Equal(t, []string{"started", "message", "message", "error", "finished"}, sink.Kinds())
	require.Equal(t, "Failed to start makesis.", sink.Lines()[2])
}

// TestRunner_LaterLaunchFailure ends an asynchronous run when the signer cannot start.
func TestRunner_LaterLaunchFailure(t *testing.T) {
	t.Parallel()

	launcher := newFakeLauncher()
	launcher.launchErrs[deploy.StageSigning] = errors.New("permission denied")

	r := NewRunner(WithLauncher(launcher))
	require.NoError(t, r.Start(context.Background(), newTestContext(t, nil)))

	result := waitResult(t, r)
	require.Equal(t, deploy.LaunchFailure, result.Failure.Kind)
	require.Equal(t, deploy.StageSigning, result.Failure.Stage)
	require.Equal(t, "Failed to start signsis.", result.Failure.Message())
	require.Len(t, launcher.Specs(), 2)
}

// TestRunner_CustomSigningUsesConfiguredPaths passes exactly the configured
// certificate and key to the signer.
func TestRunner_CustomSigningUsesConfiguredPaths(t *testing.T) {
	t.Parallel()

	pctx := newTestContext(t, func(p *deploy.ContextParams) {
		p.SigningMode = deploy.SigningCustom
		p.CustomSignaturePath = "/keys/dev.cer"
		p.CustomKeyPath = "/keys/dev.key"
	})

	launcher := newFakeLauncher()
	r := NewRunner(WithLauncher(launcher))

	require.NoError(t, r.Start(context.Background(), pctx))
	require.True(t, waitResult(t, r).Succeeded())

	signing := launcher.Specs()[1]
	require.Equal(t, []string{"app.sis", "app.sisx", filepath.FromSlash("/keys/dev.cer"), filepath.FromSlash("/keys/dev.key")}, signing.Args)

	for _, arg := range signing.Args {
		require.NotContains(t, arg, "selfsigned")
	}
}

// TestRunner_BaseNameIsSharedByAllStages derives every file name from one base.
func TestRunner_BaseNameIsSharedByAllStages(t *testing.T) {
	t.Parallel()

	pctx := newTestContext(t, nil)
	launcher := newFakeLauncher()
	r := NewRunner(WithLauncher(launcher))

	require.NoError(t, r.Start(context.Background(), pctx))
	require.True(t, waitResult(t, r).Succeeded())

	for _, spec := range launcher.Specs() {
		require.Equal(t, pctx.WorkingDir(), spec.Dir)
		require.Equal(t, pctx.SisxPath(), filepath.Join(filepath.Dir(spec.Artifact), "app.sisx"))
	}
}

// TestRunner_OutputIsTaggedWithStageAndRun forwards every chunk of every process.
func TestRunner_OutputIsTaggedWithStageAndRun(t *testing.T) {
	t.Parallel()

	launcher := newFakeLauncher()
	launcher.output[deploy.StagePackaging] = []chunk{{StreamStdout, "Processing app.pkg...\n"}}
	launcher.output[deploy.StageSigning] = []chunk{{StreamStderr, "warning: weak key\n"}}
	launcher.output[deploy.StageInstalling] = []chunk{{StreamStdout, "ok\n"}, {StreamStderr, "late\n"}}

	sink := new(recordingSink)
	r := NewRunner(WithLauncher(launcher), WithSink(sink))

	require.NoError(t, r.Start(context.Background(), newTestContext(t, nil)))

	result := waitResult(t, r)
	require.True(t, result.Succeeded())

	var outputs []event

	for _, e := range sink.Events() {
		require.Equal(t, result.RunID, e.runID)

		if e.kind == "output" {
			outputs = append(outputs, e)
		}
	}

	require.Equal(t, []event{
		{kind: "output", runID: result.RunID, stage: deploy.StagePackaging, stream: StreamStdout, text: "Processing app.pkg...\n"},
		{kind: "output", runID: result.RunID, stage: deploy.StageSigning, stream: StreamStderr, text: "warning: weak key\n"},
		{kind: "output", runID: result.RunID, stage: deploy.StageInstalling, stream: StreamStdout, text: "ok\n"},
		{kind: "output", runID: result.RunID, stage: deploy.StageInstalling, stream: StreamStderr, text: "late\n"},
	}, outputs)
}

// TestRunner_SynchronousLauncher completes when exits are delivered inside Launch.
func TestRunner_SynchronousLauncher(t *testing.T) {
	t.Parallel()

	launcher := newFakeLauncher()
	launcher.synchronous = true

	sink := new(recordingSink)
	r := NewRunner(WithLauncher(launcher), WithSink(sink))

	require.NoError(t, r.Start(context.Background(), newTestContext(t, nil)))
	require.False(t, r.IsRunning())
	require.True(t, waitResult(t, r).Succeeded())
	require.Equal(t, finishedMessage, sink.Lines()[len(sink.Lines())-1])
}

// TestRunner_StopCancelsRunningStage kills a hung signer and fails the run as canceled.
func TestRunner_StopCancelsRunningStage(t *testing.T) {
	t.Parallel()

	launcher := newFakeLauncher()
	launcher.block[deploy.StageSigning] = true

	r := NewRunner(WithLauncher(launcher))
	require.NoError(t, r.Start(context.Background(), newTestContext(t, nil)))

	require.Equal(t, deploy.StagePackaging, <-launcher.started)
	require.Equal(t, deploy.StageSigning, <-launcher.started)
	require.True(t, r.IsRunning())

	r.Stop()

	result := waitResult(t, r)
	require.Equal(t, deploy.Canceled, result.Failure.Kind)
	require.Equal(t, deploy.StageSigning, result.Failure.Stage)
	require.Equal(t, "Deployment of signsis was stopped.", result.Failure.Message())
	require.ErrorIs(t, result.Err(), context.Canceled)
	require.Len(t, launcher.Specs(), 2)

	// Stopping an idle runner does nothing.
	r.Stop()
	require.Equal(t, deploy.StageFailed, r.Stage())
}

// TestRunner_ParentContextCancelsRun treats a canceled start context like Stop.
func TestRunner_ParentContextCancelsRun(t *testing.T) {
	t.Parallel()

	launcher := newFakeLauncher()
	launcher.block[deploy.StagePackaging] = true

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(WithLauncher(launcher))
	require.NoError(t, r.Start(ctx, newTestContext(t, nil)))

	<-launcher.started
	cancel()

	result := waitResult(t, r)
	require.Equal(t, deploy.Canceled, result.Failure.Kind)
	require.Equal(t, deploy.StagePackaging, result.Failure.Stage)
}

// TestRunner_StageTimeout kills a tool that exceeds the stage limit.
func TestRunner_StageTimeout(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		launcher := newFakeLauncher()
		launcher.block[deploy.StageInstalling] = true

		r := NewRunner(WithLauncher(launcher), WithStageTimeout(time.Minute))
		require.NoError(t, r.Start(context.Background(), newTestContext(t, nil)))

		result := waitResult(t, r)
		require.Equal(t, deploy.TimedOut, result.Failure.Kind)
		require.Equal(t, deploy.StageInstalling, result.Failure.Stage)
		require.Equal(t, time.Minute, result.Failure.Timeout)
		require.Equal(t, "ApplicationInstaller did not finish within 1m0s.", result.Failure.Message())
		require.ErrorIs(t, result.Err(), context.DeadlineExceeded)
	})
}

// TestRunner_RejectsConcurrentStart allows one run at a time and a new run after it ends.
func TestRunner_RejectsConcurrentStart(t *testing.T) {
	t.Parallel()

	launcher := newFakeLauncher()
	launcher.block[deploy.StagePackaging] = true

	r := NewRunner(WithLauncher(launcher))
	pctx := newTestContext(t, nil)

	require.NoError(t, r.Start(context.Background(), pctx))
	<-launcher.started

	require.ErrorIs(t, r.Start(context.Background(), pctx), deploy.ErrDeploymentInProgress)

	r.Stop()
	first := waitResult(t, r)

	launcher.mu.Lock()
	launcher.block[deploy.StagePackaging] = false
	launcher.mu.Unlock()

	require.NoError(t, r.Start(context.Background(), pctx))

	second := waitResult(t, r)
	require.True(t, second.Succeeded())
	require.NotEqual(t, first.RunID, second.RunID)
}

// TestRunner_CopyInstallUsesInstaller routes the install stage of copy mode
// to the installer launcher.
func TestRunner_CopyInstallUsesInstaller(t *testing.T) {
	t.Parallel()

	destination := t.TempDir()
	pctx := newTestContext(t, func(p *deploy.ContextParams) {
		p.InstallMode = deploy.InstallCopy
		p.InstallDestination = destination
	})

	tools := newFakeLauncher()
	installer := newFakeLauncher()

	r := NewRunner(WithLauncher(tools), WithInstaller(installer))
	require.NoError(t, r.Start(context.Background(), pctx))
	require.True(t, waitResult(t, r).Succeeded())

	require.Len(t, tools.Specs(), 2)
	require.Len(t, installer.Specs(), 1)

	install := installer.Specs()[0]
	require.Equal(t, deploy.StageInstalling, install.Stage)
	require.Equal(t, destination, install.Destination)
	require.Equal(t, pctx.SisxPath(), install.Artifact)
	require.Empty(t, install.Program)
	require.Equal(t, deploy.InstallerDisplayName+" "+pctx.SisxPath()+" "+destination, install.CommandLine())
}

// TestRunner_Idle reports no run before Start.
func TestRunner_Idle(t *testing.T) {
	t.Parallel()

	r := NewRunner()
	require.False(t, r.IsRunning())
	require.Equal(t, deploy.StageIdle, r.Stage())
	require.Nil(t, r.LastResult())

	select {
	case <-r.Done():
	default:
		t.Fatal("idle runner should report done")
	}

	_, err := r.Wait(context.Background())
	require.ErrorIs(t, err, errNotStarted)
	require.ErrorIs(t, r.Start(context.Background(), nil), errContextRequired)
}
