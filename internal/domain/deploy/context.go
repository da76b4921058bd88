package deploy

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// PackageSuffix is appended to the base name to get the package description file.
	PackageSuffix = ".pkg"
	// SisSuffix is appended to the base name to get the unsigned installation file.
	SisSuffix = ".sis"
	// SisxSuffix is appended to the base name to get the signed installation file.
	SisxSuffix = ".sisx"

	// SelfSignedCertificate is the certificate file name under the toolchain root.
	SelfSignedCertificate = "selfsigned.cer"
	// SelfSignedKey is the key file name under the toolchain root.
	SelfSignedKey = "selfsigned.key"

	// InstallerDisplayName names the install stage in user-facing messages.
	InstallerDisplayName = "ApplicationInstaller"
)

var (
	errBaseFileRequired           = errors.New("base file path must be provided")
	errToolchainRootRequired      = errors.New("toolchain root must be provided for self-signed packages")
	errCustomSigningPaths         = errors.New("custom signing requires both a certificate and a key path")
	errInstallDestinationRequired = errors.New("copy install mode requires a destination directory")
	errToolRequired               = errors.New("tool program must be provided")
	errUnknownSigningMode         = errors.New("unknown signing mode")
	errUnknownInstallMode         = errors.New("unknown install mode")
)

// Tools names the programs a run invokes.
type Tools struct {
	// Packager builds the .sis file from the .pkg description (makesis).
	Packager string
	// Signer signs the .sis file into a .sisx file (signsis).
	Signer string
	// Installer opens the .sisx file for installation (cmd).
	Installer string
}

// ContextParams are the inputs to NewPackagingContext.
type ContextParams struct {
	// BaseFile is the artifact path without extension. Relative paths are
	// resolved against the current directory once, at construction.
	BaseFile string
	// ToolchainRoot holds the self-signed certificate and key.
	ToolchainRoot string
	// Tools are the programs run by the three stages.
	Tools Tools
	// SigningMode selects the certificate used by the signing stage.
	SigningMode SigningMode
	// CustomSignaturePath is the certificate used with SigningCustom.
	CustomSignaturePath string
	// CustomKeyPath is the key used with SigningCustom.
	CustomKeyPath string
	// InstallMode selects how the .sisx file reaches the device.
	InstallMode InstallMode
	// InstallDestination is the device directory used with InstallCopy.
	InstallDestination string
}

// PackagingContext is the immutable snapshot one run works from.
type PackagingContext struct {
	baseFile            string
	workingDir          string
	toolchainRoot       string
	tools               Tools
	signingMode         SigningMode
	customSignaturePath string
	customKeyPath       string
	installMode         InstallMode
	installDestination  string
}

// NewPackagingContext validates params and freezes them into a context.
func NewPackagingContext(params ContextParams) (*PackagingContext, error) {
	base := strings.TrimSpace(params.BaseFile)
	if base == "" {
		return nil, errBaseFileRequired
	}

	base, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve base file: %w", err)
	}

	if params.Tools.Packager == "" || params.Tools.Signer == "" {
		return nil, errToolRequired
	}

	if params.InstallMode == InstallInvoke && params.Tools.Installer == "" {
		return nil, errToolRequired
	}

	switch params.SigningMode {
	case SigningSelf:
		if params.ToolchainRoot == "" {
			return nil, errToolchainRootRequired
		}
	case SigningCustom:
		if params.CustomSignaturePath == "" || params.CustomKeyPath == "" {
			return nil, errCustomSigningPaths
		}
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownSigningMode, int(params.SigningMode))
	}

	switch params.InstallMode {
	case InstallInvoke:
	case InstallCopy:
		if params.InstallDestination == "" {
			return nil, errInstallDestinationRequired
		}
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownInstallMode, int(params.InstallMode))
	}

	return &PackagingContext{
		baseFile:            base,
		workingDir:          filepath.Dir(base),
		toolchainRoot:       params.ToolchainRoot,
		tools:               params.Tools,
		signingMode:         params.SigningMode,
		customSignaturePath: params.CustomSignaturePath,
		customKeyPath:       params.CustomKeyPath,
		installMode:         params.InstallMode,
		installDestination:  params.InstallDestination,
	}, nil
}

// BaseFile returns the absolute artifact path without extension.
func (c *PackagingContext) BaseFile() string { return c.baseFile }

// WorkingDir is the directory every stage runs in.
func (c *PackagingContext) WorkingDir() string { return c.workingDir }

// ToolchainRoot returns the directory holding the self-signed certificate.
func (c *PackagingContext) ToolchainRoot() string { return c.toolchainRoot }

// Tools returns the programs used by the three stages.
func (c *PackagingContext) Tools() Tools { return c.tools }

// SigningMode returns the signing mode of the run.
func (c *PackagingContext) SigningMode() SigningMode { return c.signingMode }

// InstallMode returns the install mode of the run.
func (c *PackagingContext) InstallMode() InstallMode { return c.installMode }

// InstallDestination returns the device directory used by InstallCopy.
func (c *PackagingContext) InstallDestination() string { return c.installDestination }

// PackageFile is the .pkg file name relative to the working directory.
func (c *PackagingContext) PackageFile() string {
	return filepath.Base(c.baseFile) + PackageSuffix
}

// SisFile is the .sis file name relative to the working directory.
func (c *PackagingContext) SisFile() string {
	return filepath.Base(c.baseFile) + SisSuffix
}

// SisxFile is the .sisx file name relative to the working directory.
func (c *PackagingContext) SisxFile() string {
	return filepath.Base(c.baseFile) + SisxSuffix
}

// SisxPath is the absolute native path of the .sisx file.
func (c *PackagingContext) SisxPath() string {
	return filepath.FromSlash(c.baseFile + SisxSuffix)
}

// Signature returns the certificate handed to the signing tool.
func (c *PackagingContext) Signature() string {
	if c.signingMode == SigningCustom {
		return filepath.FromSlash(c.customSignaturePath)
	}

	return filepath.Join(c.toolchainRoot, SelfSignedCertificate)
}

// Key returns the private key handed to the signing tool.
func (c *PackagingContext) Key() string {
	if c.signingMode == SigningCustom {
		return filepath.FromSlash(c.customKeyPath)
	}

	return filepath.Join(c.toolchainRoot, SelfSignedKey)
}

// ToolName returns the display name of the program run by stage.
func (c *PackagingContext) ToolName(stage RunStage) string {
	switch stage {
	case StagePackaging:
		return filepath.Base(c.tools.Packager)
	case StageSigning:
		return filepath.Base(c.tools.Signer)
	case StageInstalling:
		return InstallerDisplayName
	default:
		return stage.String()
	}
}
