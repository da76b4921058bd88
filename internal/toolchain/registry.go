package toolchain

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// toolsSubdirectory is where the SDK keeps makesis and signsis below the EPOC root.
const toolsSubdirectory = "epoc32/tools"

var (
	// ErrUnknownDevice is returned when a device id is not registered.
	ErrUnknownDevice = errors.New("unknown device")

	errEmptyDeviceID    = errors.New("device id must be provided")
	errDuplicateDevice  = errors.New("duplicate device id")
	errEpocRootRequired = errors.New("epoc root must be provided")
)

// Device describes one installed SDK.
type Device struct {
	// ID is the device identity used by run configurations.
	ID string
	// EpocRoot is the SDK root containing epoc32/tools.
	EpocRoot string
	// QtDir is the toolchain root holding the self-signed certificate and key.
	QtDir string
}

// Registry maps device ids to SDK locations. It is immutable after construction.
type Registry struct {
	devices map[string]Device
}

// NewRegistry validates devices and indexes them by id.
func NewRegistry(devices ...Device) (*Registry, error) {
	r := &Registry{
		devices: make(map[string]Device, len(devices)),
	}

	for _, d := range devices {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, errEmptyDeviceID
		}

		if d.EpocRoot == "" {
			return nil, fmt.Errorf("device %s: %w", d.ID, errEpocRootRequired)
		}

		if _, exists := r.devices[d.ID]; exists {
			return nil, fmt.Errorf("%w: %s", errDuplicateDevice, d.ID)
		}

		r.devices[d.ID] = d
	}

	return r, nil
}

// Device returns the device registered under id.
func (r *Registry) Device(id string) (Device, error) {
	d, ok := r.devices[id]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	return d, nil
}

// ToolsDirectory returns <epoc-root>/epoc32/tools for the device.
func (r *Registry) ToolsDirectory(id string) (string, error) {
	d, err := r.Device(id)
	if err != nil {
		return "", err
	}

	return filepath.Join(d.EpocRoot, filepath.FromSlash(toolsSubdirectory)), nil
}

// ToolchainRoot returns the directory holding the self-signed certificate.
// Devices without a Qt directory fall back to the EPOC root.
func (r *Registry) ToolchainRoot(id string) (string, error) {
	d, err := r.Device(id)
	if err != nil {
		return "", err
	}

	if d.QtDir == "" {
		return d.EpocRoot, nil
	}

	return d.QtDir, nil
}

// IDs returns the registered device ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}
