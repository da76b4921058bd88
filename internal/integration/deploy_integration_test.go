package integration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sisx-deploy/internal/config"
	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
	"github.com/oshokin/sisx-deploy/internal/repository/history"
	"github.com/oshokin/sisx-deploy/internal/service/deployer"
)

// TestDeploy_LocalPipeline runs the real tools for every stage and records the run.
func TestDeploy_LocalPipeline(t *testing.T) {
	t.Parallel()

	env := newSDK(t, nil)

	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := deployer.Run(ctx, &deployer.Options{
		ConfigPath: env.settingsPath,
		Output:     &out,
		NoColor:    true,
	})
	require.NoError(t, err)

	sisx := filepath.Join(env.buildDir, "hello_gcce_rel.sisx")
	require.FileExists(t, sisx)

	console := out.String()
	require.Contains(t, console, "hello_gcce_rel.sisx ...")
	require.Contains(t, console, "Processing hello_gcce_rel.pkg...")
	require.Contains(t, console, "Installing "+sisx)
	require.Contains(t, console, "Finished.")

	record, err := history.NewFileRepository(env.settings.HistoryFile, 0).Last(ctx)
	require.NoError(t, err)
	require.True(t, record.Succeeded())
	require.Equal(t, "hello", record.Configuration)
	require.Equal(t, sisx, record.Artifact)
	require.NotNil(t, record.Actor)

	_, err = os.Stat(filepath.Join(env.buildDir, deployer.LockFilename))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestDeploy_SignerFailure stops the pipeline at signing and keeps the failure in history.
func TestDeploy_SignerFailure(t *testing.T) {
	t.Parallel()

	env := newSDK(t, nil)
	toolsDir := filepath.Join(env.settings.Devices[0].EpocRoot, "epoc32", "tools")
	writeTool(t, toolsDir, "signsis", `echo "bad key" >&2; exit 3`)

	var out bytes.Buffer

	err := deployer.Run(context.Background(), &deployer.Options{
		ConfigPath: env.settingsPath,
		Output:     &out,
		NoColor:    true,
	})

	var stageErr *deploy.StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, deploy.StageSigning, stageErr.Stage)
	require.Equal(t, deploy.NonZeroExit, stageErr.Kind)

	require.Contains(t, out.String(), "bad key")
	require.Contains(t, out.String(), "An error occurred while creating the package.")
	require.NotContains(t, out.String(), "Finished.")

	record, err := history.NewFileRepository(env.settings.HistoryFile, 0).Last(context.Background())
	require.NoError(t, err)
	require.Equal(t, deploy.StageFailed, record.Stage)
	require.Equal(t, deploy.NonZeroExit, record.FailureKind)
}

// TestDeploy_CopyInstall copies the signed package onto a mounted device directory.
func TestDeploy_CopyInstall(t *testing.T) {
	t.Parallel()

	drive := t.TempDir()
	env := newSDK(t, func(cfg *config.Config) {
		cfg.Configurations[0].InstallMode = "copy"
		cfg.Configurations[0].InstallDestination = drive
	})

	err := deployer.Run(context.Background(), &deployer.Options{
		ConfigPath: env.settingsPath,
		Output:     new(bytes.Buffer),
		NoColor:    true,
	})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(drive, "hello_gcce_rel.sisx"))
}
