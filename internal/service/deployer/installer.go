package deployer

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"
)

// installedFileMode is the mode of a .sisx file copied onto the device.
const installedFileMode os.FileMode = 0o644

var (
	errInstallSpecIncomplete = errors.New("install requires an artifact and a destination")
	errDestinationNotDir     = errors.New("device destination is not a directory")
)

// DriveInstaller installs by copying the .sisx file onto a mounted device
// drive, where the phone picks it up on the next file-manager visit.
// The copy is atomic and verified against the artifact's checksum.
type DriveInstaller struct{}

// NewDriveInstaller returns an install-stage launcher for copy installs.
func NewDriveInstaller() *DriveInstaller {
	return &DriveInstaller{}
}

// Launch implements Launcher. A missing destination is reported as a launch
// failure, anything that goes wrong during the copy as a non-zero exit.
func (d *DriveInstaller) Launch(ctx context.Context, spec ProcessSpec, output OutputFunc, exit ExitFunc) error {
	if spec.Artifact == "" || spec.Destination == "" {
		return errInstallSpecIncomplete
	}

	info, err := os.Stat(spec.Destination)
	if err != nil {
		return fmt.Errorf("device destination: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s: %w", spec.Destination, errDestinationNotDir)
	}

	go func() {
		exit(d.install(ctx, spec, output))
	}()

	return nil
}

func (d *DriveInstaller) install(ctx context.Context, spec ProcessSpec, output OutputFunc) Exit {
	if err := ctx.Err(); err != nil {
		return Exit{Code: -1, Err: err}
	}

	data, err := os.ReadFile(filepath.Clean(spec.Artifact))
	if err != nil {
		output(StreamStderr, fmt.Sprintf("read %s: %v\n", spec.Artifact, err))

		return Exit{Code: 1}
	}

	targetPath := filepath.Join(spec.Destination, filepath.Base(spec.Artifact))

	// go-update swaps files in place, so the target has to exist first.
	if _, err = os.Stat(targetPath); errors.Is(err, os.ErrNotExist) {
		var placeholder *os.File

		placeholder, err = os.Create(filepath.Clean(targetPath))
		if err != nil {
			output(StreamStderr, fmt.Sprintf("create %s: %v\n", targetPath, err))

			return Exit{Code: 1}
		}

		_ = placeholder.Close()
	}

	checksum := sha256.Sum256(data)

	options := goupdate.Options{
		TargetPath: targetPath,
		TargetMode: installedFileMode,
		Checksum:   checksum[:],
		Hash:       crypto.SHA256,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		output(StreamStderr, fmt.Sprintf("copy %s to %s: %v\n", spec.Artifact, targetPath, err))

		return Exit{Code: 1}
	}

	if _, err = os.Stat(targetPath + ".old"); err == nil {
		_ = os.Remove(targetPath + ".old")
	}

	output(StreamStdout, fmt.Sprintf("Copied %s to %s\n", filepath.Base(spec.Artifact), targetPath))

	return Exit{Code: 0}
}
