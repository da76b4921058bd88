package target

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
	"github.com/oshokin/sisx-deploy/internal/toolchain"
)

const (
	// ToolChainGCCE is the GCC-E compiler tool chain. It is the only one
	// whose binaries can be deployed to a device.
	ToolChainGCCE = "gcce"
	// ToolChainARMV5 is the RVCT ARMV5 compiler tool chain.
	ToolChainARMV5 = "armv5"

	displayNameSuffix = " on Device"
)

var (
	errTargetRequired   = errors.New("target name must be provided")
	errBuildDirRequired = errors.New("build directory must be provided")
	// ErrNotDeployable is returned for configurations whose tool chain cannot run on a device.
	ErrNotDeployable = errors.New("run configuration cannot be deployed to a device")
)

// RunConfiguration describes one deployable application.
type RunConfiguration struct {
	// Name identifies the configuration on the command line and over RPC.
	Name string `yaml:"name" validate:"required"`
	// ProFile is the project file the target was built from. Informational.
	ProFile string `yaml:"pro_file,omitempty"`
	// Target is the TARGET name of the application.
	Target string `yaml:"target" validate:"required"`
	// BuildDir is the build directory of the project.
	BuildDir string `yaml:"build_dir" validate:"required"`
	// DestDir is the DESTDIR of the project; relative values are resolved against BuildDir.
	DestDir string `yaml:"dest_dir,omitempty"`
	// ToolChain is gcce or armv5.
	ToolChain string `yaml:"tool_chain" validate:"omitempty,oneof=gcce armv5"`
	// Debug selects the udeb build over the rel build.
	Debug bool `yaml:"debug"`
	// Device is the toolchain registry id of the SDK to use.
	Device string `yaml:"device" validate:"required"`
	// SigningMode is self or custom.
	SigningMode string `yaml:"signing_mode,omitempty" validate:"omitempty,oneof=self custom"`
	// CustomSignaturePath is the certificate used with custom signing.
	CustomSignaturePath string `yaml:"custom_signature,omitempty" validate:"required_if=SigningMode custom"`
	// CustomKeyPath is the key used with custom signing.
	CustomKeyPath string `yaml:"custom_key,omitempty" validate:"required_if=SigningMode custom"`
	// InstallMode is invoke or copy.
	InstallMode string `yaml:"install_mode,omitempty" validate:"omitempty,oneof=invoke copy"`
	// InstallDestination is the mounted device directory used with copy installs.
	InstallDestination string `yaml:"install_destination,omitempty" validate:"required_if=InstallMode copy"`
}

// DisplayName returns "<project> on Device", or the configuration name when
// no project file is set.
func (c *RunConfiguration) DisplayName() string {
	if c.ProFile == "" {
		return c.Name + displayNameSuffix
	}

	base := filepath.Base(c.ProFile)

	return strings.TrimSuffix(base, filepath.Ext(base)) + displayNameSuffix
}

// IsEnabled reports whether the configuration can be deployed to a device.
func (c *RunConfiguration) IsEnabled() bool {
	return c.toolChain() == ToolChainGCCE
}

// WorkingDir returns the directory holding the build output.
func (c *RunConfiguration) WorkingDir() string {
	if c.DestDir == "" {
		return c.BuildDir
	}

	if filepath.IsAbs(c.DestDir) {
		return c.DestDir
	}

	return filepath.Join(c.BuildDir, c.DestDir)
}

// BaseFileName returns the artifact path without extension:
// <working-dir>/<target>_<toolchain>_<udeb|rel>.
func (c *RunConfiguration) BaseFileName() (string, error) {
	if c.Target == "" {
		return "", errTargetRequired
	}

	if c.BuildDir == "" {
		return "", errBuildDirRequired
	}

	base := filepath.Clean(filepath.Join(c.WorkingDir(), c.Target))
	base += "_" + c.toolChain()

	if c.Debug {
		return base + "_udeb", nil
	}

	return base + "_rel", nil
}

// Context resolves the configuration into a packaging context.
// Relative packager and signer programs are looked up in the device's tools
// directory; the installer is used as given.
func (c *RunConfiguration) Context(registry *toolchain.Registry, tools deploy.Tools) (*deploy.PackagingContext, error) {
	if !c.IsEnabled() {
		return nil, fmt.Errorf("%s (%s): %w", c.Name, c.toolChain(), ErrNotDeployable)
	}

	base, err := c.BaseFileName()
	if err != nil {
		return nil, err
	}

	toolsDir, err := registry.ToolsDirectory(c.Device)
	if err != nil {
		return nil, err
	}

	root, err := registry.ToolchainRoot(c.Device)
	if err != nil {
		return nil, err
	}

	signing, err := deploy.ParseSigningMode(c.SigningMode)
	if err != nil {
		return nil, err
	}

	install, err := deploy.ParseInstallMode(c.InstallMode)
	if err != nil {
		return nil, err
	}

	return deploy.NewPackagingContext(deploy.ContextParams{
		BaseFile:      base,
		ToolchainRoot: root,
		Tools: deploy.Tools{
			Packager:  resolveTool(toolsDir, tools.Packager),
			Signer:    resolveTool(toolsDir, tools.Signer),
			Installer: tools.Installer,
		},
		SigningMode:         signing,
		CustomSignaturePath: c.CustomSignaturePath,
		CustomKeyPath:       c.CustomKeyPath,
		InstallMode:         install,
		InstallDestination:  c.InstallDestination,
	})
}

func (c *RunConfiguration) toolChain() string {
	if c.ToolChain == "" {
		return ToolChainGCCE
	}

	return strings.ToLower(c.ToolChain)
}

func resolveTool(toolsDir, program string) string {
	if program == "" || filepath.IsAbs(program) {
		return program
	}

	return filepath.Join(toolsDir, program)
}
