package deploy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRunStage_ForwardOnly walks the happy path and checks no stage is revisited.
func TestRunStage_ForwardOnly(t *testing.T) {
	t.Parallel()

	path := []RunStage{StageIdle, StagePackaging, StageSigning, StageInstalling, StageDone}
	for i := 0; i < len(path)-1; i++ {
		require.True(t, CanTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])

		for j := 0; j < i; j++ {
			require.False(t, CanTransition(path[i], path[j]), "%s -> %s", path[i], path[j])
		}
	}

	// Skipping a stage is not allowed.
	require.False(t, CanTransition(StagePackaging, StageInstalling))
	require.False(t, CanTransition(StagePackaging, StageDone))
}

// TestRunStage_FailedIsTerminal checks that every active stage can fail and terminal stages are final.
func TestRunStage_FailedIsTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []RunStage{StagePackaging, StageSigning, StageInstalling} {
		require.True(t, CanTransition(s, StageFailed), s.String())
	}

	require.False(t, CanTransition(StageIdle, StageFailed))

	for _, terminal := range []RunStage{StageDone, StageFailed} {
		require.True(t, terminal.IsTerminal())
		require.Equal(t, terminal, terminal.Next())

		for s := StageIdle; s <= StageFailed; s++ {
			require.False(t, CanTransition(terminal, s), "%s -> %s", terminal, s)
		}
	}
}

// TestParseRunStage round-trips the stage names.
func TestParseRunStage(t *testing.T) {
	t.Parallel()

	for s := StageIdle; s <= StageFailed; s++ {
		got, ok := ParseRunStage(s.String())
		require.True(t, ok)
		require.Equal(t, s, got)
	}

	_, ok := ParseRunStage("deploying")
	require.False(t, ok)
}

// TestParseModes checks the accepted spellings of signing and install modes.
func TestParseModes(t *testing.T) {
	t.Parallel()

	mode, err := ParseSigningMode("")
	require.NoError(t, err)
	require.Equal(t, SigningSelf, mode)

	mode, err = ParseSigningMode("Custom")
	require.NoError(t, err)
	require.Equal(t, SigningCustom, mode)

	_, err = ParseSigningMode("notarized")
	require.ErrorIs(t, err, errUnknownSigningMode)

	install, err := ParseInstallMode("copy")
	require.NoError(t, err)
	require.Equal(t, InstallCopy, install)

	_, err = ParseInstallMode("bluetooth")
	require.ErrorIs(t, err, errUnknownInstallMode)
}
