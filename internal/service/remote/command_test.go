package remote

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
)

// TestPrinter_Success prints the lifecycle messages and the artifact.
func TestPrinter_Success(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newPrinter(&buf, true).record(&deploy.Record{
		RunID:         "run-1",
		Configuration: "hello",
		Actor:         &deploy.Actor{Hostname: "build-01", Username: "dev"},
		Stage:         deploy.StageDone,
		Artifact:      "/work/hello_gcce_udeb.sisx",
		Messages:      []string{"Creating /work/hello_gcce_udeb.sisx ...", "Finished."},
		StartedAt:     started,
		FinishedAt:    started.Add(2 * time.Second),
	})

	out := buf.String()
	require.Contains(t, out, "Creating /work/hello_gcce_udeb.sisx ...\nFinished.\n")
	require.Contains(t, out, "Run run-1 of hello: done")
	require.Contains(t, out, "Started by dev@build-01")
	require.Contains(t, out, "took 2s")
	require.Contains(t, out, "Artifact: /work/hello_gcce_udeb.sisx")
	require.NotContains(t, out, "\x1b[")
}

// TestPrinter_Failure prints the failure message, its kind and the failing stage.
func TestPrinter_Failure(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	newPrinter(&buf, true).record(&deploy.Record{
		RunID:       "run-2",
		Stage:       deploy.StageFailed,
		FailedStage: deploy.StageSigning,
		FailureKind: deploy.NonZeroExit,
		Error:       "An error occurred while creating the package.",
	})

	out := buf.String()
	require.Contains(t, out, "failed")
	require.Contains(t, out, "An error occurred while creating the package. (non_zero_exit during signing)")
	require.NotContains(t, out, "Artifact")
}

// TestRun_MissingConfig fails before dialing when settings cannot be loaded.
func TestRun_MissingConfig(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{ConfigPath: t.TempDir() + "/missing.yaml", Action: ActionLast})
	require.Error(t, err)
	require.Contains(t, err.Error(), "load settings")
}
