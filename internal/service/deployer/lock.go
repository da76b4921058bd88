package deployer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
)

// LockFilename marks a working directory as being deployed from.
const LockFilename = ".sisx-deploy.lock"

const lockFileMode os.FileMode = 0o600

// unreadableLockGrace is how long a marker without a valid PID is considered
// live. Markers are published whole, so only a crash mid-write leaves one.
const unreadableLockGrace = time.Minute

// runLock keeps two processes from packaging in the same working directory.
type runLock struct {
	path string
}

// acquireRunLock creates the marker in dir. A marker left by a process that
// no longer exists is replaced.
func acquireRunLock(dir string) (*runLock, error) {
	path := filepath.Join(dir, LockFilename)

	for range 2 {
		err := writeLockFile(path)
		if err == nil {
			return &runLock{path: path}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create run lock: %w", err)
		}

		if !isStaleLock(path) {
			return nil, deploy.ErrDeploymentInProgress
		}

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale run lock: %w", err)
		}
	}

	return nil, deploy.ErrDeploymentInProgress
}

// Release removes the marker.
func (l *runLock) Release() error {
	if l == nil {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove run lock: %w", err)
	}

	return nil
}

// writeLockFile publishes a marker holding this process's PID. The PID is
// written to a temporary file first and then hard-linked into place, so the
// marker never exists without its contents.
func writeLockFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), LockFilename+".*")
	if err != nil {
		return err
	}

	tmpPath := tmp.Name()

	defer func() {
		_ = os.Remove(tmpPath)
	}()

	_, err = tmp.WriteString(strconv.Itoa(os.Getpid()))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return err
	}

	if err = os.Chmod(tmpPath, lockFileMode); err != nil {
		return err
	}

	return os.Link(tmpPath, filepath.Clean(path))
}

// isStaleLock reports whether the process that wrote the marker is gone.
// Unreadable markers are treated as live. A marker without a valid PID is
// stale only once it is older than unreadableLockGrace.
func isStaleLock(path string) bool {
	info, err := os.Stat(filepath.Clean(path))
	if err != nil {
		return false
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return time.Since(info.ModTime()) > unreadableLockGrace
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		return false
	}

	return process == nil
}
