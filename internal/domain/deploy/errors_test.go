package deploy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestStageError_Message checks the user-facing text for every failure kind.
func TestStageError_Message(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  StageError
		want string
	}{
		{StageError{Stage: StagePackaging, Kind: LaunchFailure, Tool: "makesis.exe"}, "Failed to start makesis.exe."},
		{StageError{Stage: StageSigning, Kind: AbnormalTermination, Tool: "signsis.exe"}, "signsis.exe has unexpectedly finished."},
		{StageError{Stage: StagePackaging, Kind: NonZeroExit, ExitCode: 2}, "An error occurred while creating the package."},
		{StageError{Stage: StageSigning, Kind: NonZeroExit, ExitCode: 1}, "An error occurred while creating the package."},
		{StageError{Stage: StageInstalling, Kind: NonZeroExit, ExitCode: 1}, "An error occurred while installing the package."},
		{StageError{Stage: StageSigning, Kind: Canceled, Tool: "signsis.exe"}, "Deployment of signsis.exe was stopped."},
		{StageError{Stage: StagePackaging, Kind: TimedOut, Tool: "makesis.exe", Timeout: time.Minute}, "makesis.exe did not finish within 1m0s."},
		{StageError{Stage: StageInstalling, Tool: InstallerDisplayName}, "Some error has occurred while running ApplicationInstaller."},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, tc.err.Message())
	}
}

// TestStageError_Unwrap verifies the cause is reachable through errors.Is and errors.As.
func TestStageError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("exec: not found")

	var err error = &StageError{Stage: StagePackaging, Kind: LaunchFailure, Tool: "makesis.exe", Err: cause}

	require.ErrorIs(t, err, cause)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, LaunchFailure, stageErr.Kind)
	require.Contains(t, err.Error(), "packaging stage")
	require.Contains(t, err.Error(), "exec: not found")
}

// TestResult distinguishes success and failure structurally.
func TestResult(t *testing.T) {
	t.Parallel()

	ok := &Result{RunID: "r", Stage: StageDone}
	require.True(t, ok.Succeeded())
	require.NoError(t, ok.Err())

	failed := &Result{RunID: "r", Stage: StageFailed, Failure: &StageError{Stage: StageSigning, Kind: NonZeroExit}}
	require.False(t, failed.Succeeded())
	require.Error(t, failed.Err())

	var none *Result
	require.False(t, none.Succeeded())
	require.NoError(t, none.Err())
}

// TestRecordClone verifies Clone deep-copies the actor and messages.
func TestRecordClone(t *testing.T) {
	t.Parallel()

	require.Nil(t, (*Record)(nil).Clone())

	started := time.Now().UTC().Truncate(time.Second)
	r := &Record{
		RunID:      "run-1",
		Actor:      &Actor{Hostname: "build-pc", Username: "dev"},
		Stage:      StageDone,
		Messages:   []string{"Creating app.sisx ...", "Finished."},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}

	c := r.Clone()
	require.Equal(t, r, c)
	require.NotSame(t, r.Actor, c.Actor)

	c.Messages[0] = "changed"
	require.Equal(t, "Creating app.sisx ...", r.Messages[0])
	require.Equal(t, 3*time.Second, r.Duration())
	require.True(t, r.Succeeded())
}

// TestParseFailureKind round-trips the kind names.
func TestParseFailureKind(t *testing.T) {
	t.Parallel()

	for k := LaunchFailure; k <= ProcessError; k++ {
		require.Equal(t, k, ParseFailureKind(k.String()))
	}

	require.Equal(t, FailureKind(0), ParseFailureKind(""))
}
