package deployer

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
)

// defaultWaitDelay bounds how long output is drained after a killed tool
// exits while its children still hold the pipes.
const defaultWaitDelay = 2 * time.Second

// Stream identifies which output of a tool a chunk came from.
type Stream int

const (
	// StreamStdout is the tool's standard output.
	StreamStdout Stream = iota
	// StreamStderr is the tool's standard error.
	StreamStderr
)

// String returns "stdout" or "stderr".
func (s Stream) String() string {
	if s == StreamStderr {
		return "stderr"
	}

	return "stdout"
}

// ProcessSpec describes what one stage runs.
type ProcessSpec struct {
	// Stage is the pipeline stage the process belongs to.
	Stage deploy.RunStage
	// Tool is the display name used in messages.
	Tool string
	// Program is the executable to run. Empty for in-process installers.
	Program string
	// Args are the program arguments.
	Args []string
	// Dir is the working directory.
	Dir string
	// Artifact is the absolute path of the file the stage produces or installs.
	Artifact string
	// Destination is the device directory for copy installs.
	Destination string
}

// CommandLine renders the invocation the way it is echoed to the user.
func (p ProcessSpec) CommandLine() string {
	program := p.Tool
	if p.Program != "" {
		program = filepath.FromSlash(p.Program)
	}

	if len(p.Args) == 0 {
		return program
	}

	return program + " " + strings.Join(p.Args, " ")
}

// Exit describes how a process finished.
type Exit struct {
	// Code is the exit code, -1 when the process did not exit normally.
	Code int
	// Crashed is set when the process was terminated by a signal.
	Crashed bool
	// Err is a failure while waiting for the process, if any.
	Err error
}

// Success reports a clean zero exit.
func (e Exit) Success() bool {
	return e.Code == 0 && !e.Crashed && e.Err == nil
}

// OutputFunc receives output chunks as they arrive.
type OutputFunc func(stream Stream, chunk string)

// ExitFunc receives the completion of a launched process.
type ExitFunc func(exit Exit)

// Launcher starts the process of one stage.
//
// Launch returns an error only when the process could not be started; in that
// case exit is never called. Otherwise output may be called any number of
// times from other goroutines and exit is called exactly once.
type Launcher interface {
	Launch(ctx context.Context, spec ProcessSpec, output OutputFunc, exit ExitFunc) error
}

// ExecLauncher runs stages as operating system processes.
// Canceling the launch context kills the process.
type ExecLauncher struct {
	waitDelay time.Duration
}

// NewExecLauncher returns a launcher backed by os/exec.
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{
		waitDelay: defaultWaitDelay,
	}
}

// Launch implements Launcher.
func (l *ExecLauncher) Launch(ctx context.Context, spec ProcessSpec, output OutputFunc, exit ExitFunc) error {
	cmd := exec.CommandContext(ctx, spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = &chunkWriter{stream: StreamStdout, output: output}
	cmd.Stderr = &chunkWriter{stream: StreamStderr, output: output}
	cmd.WaitDelay = l.waitDelay

	if err := cmd.Start(); err != nil {
		return err
	}

	go func() {
		exit(classifyWait(cmd.Wait()))
	}()

	return nil
}

// classifyWait converts the result of cmd.Wait into an Exit.
func classifyWait(err error) Exit {
	// The tool exited cleanly but a child kept the output open past the wait delay.
	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		return Exit{Code: 0}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if !exitErr.Exited() {
			return Exit{Code: -1, Crashed: true, Err: err}
		}

		return Exit{Code: exitErr.ExitCode()}
	}

	return Exit{Code: -1, Err: err}
}

// chunkWriter forwards every write as one output chunk.
type chunkWriter struct {
	stream Stream
	output OutputFunc
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if len(p) > 0 && w.output != nil {
		w.output(w.stream, string(p))
	}

	return len(p), nil
}
