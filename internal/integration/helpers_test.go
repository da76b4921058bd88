package integration

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sisx-deploy/internal/config"
	"github.com/oshokin/sisx-deploy/internal/service/agent"
	"github.com/oshokin/sisx-deploy/internal/target"
)

// sdk is a fake Symbian SDK whose tools are POSIX shell scripts.
type sdk struct {
	settingsPath string
	settings     *config.Config
	buildDir     string
}

// newSDK writes a settings file for one gcce configuration called "hello".
// The packager creates the .sis file, the signer copies it to the .sisx file
// and the installer prints the file it was given.
func newSDK(t *testing.T, mutate func(*config.Config)) *sdk {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell script tools require a POSIX shell")
	}

	root := t.TempDir()
	epocRoot := filepath.Join(root, "epoc")
	toolsDir := filepath.Join(epocRoot, "epoc32", "tools")
	buildDir := filepath.Join(root, "hello")

	require.NoError(t, os.MkdirAll(toolsDir, 0o750))
	require.NoError(t, os.MkdirAll(buildDir, 0o750))

	writeTool(t, toolsDir, "makesis", `echo "Processing $1..."; : > "${1%.pkg}.sis"`)
	writeTool(t, toolsDir, "signsis", `cp "$1" "$2" && echo "Signed $2 with $3"`)
	installer := writeTool(t, root, "install", `test -f "$2" && echo "Installing $2"`)

	cfg := &config.Config{
		Timeout:     5 * time.Second,
		HistoryFile: filepath.Join(root, "history.json"),
		LogLevel:    "error",
		Tools: config.Tools{
			Packager:  "makesis",
			Signer:    "signsis",
			Installer: installer,
		},
		Devices: []config.Device{
			{ID: "S60_5th", EpocRoot: epocRoot},
		},
		Configurations: []target.RunConfiguration{
			{Name: "hello", Target: "hello", BuildDir: buildDir, ToolChain: target.ToolChainGCCE, Device: "S60_5th"},
		},
	}

	if mutate != nil {
		mutate(cfg)
	}

	settingsPath := filepath.Join(root, "settings.yaml")
	require.NoError(t, config.Save(settingsPath, cfg))

	return &sdk{
		settingsPath: settingsPath,
		settings:     cfg,
		buildDir:     buildDir,
	}
}

func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	script := fmt.Sprintf("#!/bin/sh\n%s\n", body)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755)) //nolint:gosec // Test tool must be executable.

	return path
}

// reservePort returns a free local address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // Test code needs simple net.Listen for port allocation.
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// startAgent runs the deployment agent on addr until the returned stop
// function is called.
func startAgent(t *testing.T, addr, settingsPath string) (stop func()) {
	t.Helper()

	// Create cancellable context for agent lifecycle.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- agent.Run(ctx, &agent.Options{
			ConfigPath:    settingsPath,
			ListenAddress: addr,
		})
	}()

	return func() {
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("agent did not stop")
		}
	}
}
