package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
	"github.com/oshokin/sisx-deploy/internal/target"
	"github.com/oshokin/sisx-deploy/internal/toolchain"
)

// Config holds the settings shared by the sisx-deploy binaries.
type Config struct {
	// ServerAddress is the gRPC address of the deploy agent.
	ServerAddress string `yaml:"server_addr,omitempty" validate:"omitempty,hostname_port"`
	// Timeout bounds RPC calls made by the remote client.
	Timeout time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`
	// StageTimeout bounds every pipeline stage; zero means no limit.
	StageTimeout time.Duration `yaml:"stage_timeout,omitempty" validate:"gte=0"`
	// HistoryFile is where the record of the last run is kept.
	HistoryFile string `yaml:"history_file,omitempty"`
	// LogLevel is the default log level of the binaries.
	LogLevel string `yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`
	// Tracing exports deployment spans over OTLP.
	Tracing Tracing `yaml:"tracing,omitempty"`
	// Tools are the SDK programs used by the pipeline.
	Tools Tools `yaml:"tools"`
	// Devices are the installed SDKs.
	Devices []Device `yaml:"devices" validate:"dive"`
	// Configurations are the deployable applications.
	Configurations []target.RunConfiguration `yaml:"configurations" validate:"dive"`
}

// Tools names the SDK programs. Relative packager and signer names are
// resolved inside the device's epoc32/tools directory.
type Tools struct {
	Packager  string `yaml:"packager,omitempty"`
	Signer    string `yaml:"signer,omitempty"`
	Installer string `yaml:"installer,omitempty"`
}

// Tracing configures span export. An empty endpoint leaves tracing off unless
// OTEL_EXPORTER_OTLP_ENDPOINT is set.
type Tracing struct {
	Endpoint string `yaml:"endpoint,omitempty" validate:"omitempty,hostname_port"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

// Device is the YAML form of toolchain.Device.
type Device struct {
	ID       string `yaml:"id" validate:"required"`
	EpocRoot string `yaml:"epoc_root" validate:"required"`
	QtDir    string `yaml:"qt_dir,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "sisx-deploy-settings.yaml"

	// DefaultHistoryFilename is the default filename for the last run record.
	DefaultHistoryFilename = "sisx-deploy-history.json"

	// DefaultServerAddress is where the agent listens unless configured otherwise.
	DefaultServerAddress = "127.0.0.1:50061"

	// DefaultTimeout is the default duration for RPC calls.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the permission for files written by the binaries.
	DefaultFilePermissions = 0o600

	// DefaultPackager, DefaultSigner and DefaultInstaller are the SDK program names.
	DefaultPackager  = "makesis.exe"
	DefaultSigner    = "signsis.exe"
	DefaultInstaller = "cmd.exe"
)

var (
	// ErrUnknownConfiguration is returned when a run configuration name does not exist.
	ErrUnknownConfiguration = errors.New("unknown run configuration")

	errConfigIsNotSet          = errors.New("configuration is not set")
	errConfigurationAmbiguous  = errors.New("several run configurations exist, pick one by name")
	errNoConfigurations        = errors.New("no run configurations defined")
	errDuplicateConfiguration  = errors.New("duplicate run configuration name")
	errConfigurationBadDevice  = errors.New("run configuration references an unknown device")
	errInvalidSettings         = errors.New("invalid settings")
	errUnexpandableSettingPath = errors.New("unable to expand path")
)

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save validates cfg and writes it to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Default returns a starter configuration for a single S60 5th Edition SDK.
func Default() *Config {
	return &Config{
		ServerAddress: DefaultServerAddress,
		Timeout:       DefaultTimeout,
		HistoryFile:   DefaultHistoryFilename,
		LogLevel:      "info",
		Tools: Tools{
			Packager:  DefaultPackager,
			Signer:    DefaultSigner,
			Installer: DefaultInstaller,
		},
		Devices: []Device{
			{
				ID:       "S60_5th_Edition_SDK_v1.0",
				EpocRoot: `C:\S60\devices\S60_5th_Edition_SDK_v1.0`,
				QtDir:    `C:\Qt\4.6.0`,
			},
		},
		Configurations: []target.RunConfiguration{
			{
				Name:      "hello",
				ProFile:   `C:\work\hello\hello.pro`,
				Target:    "hello",
				BuildDir:  `C:\work\hello`,
				ToolChain: target.ToolChainGCCE,
				Debug:     true,
				Device:    "S60_5th_Edition_SDK_v1.0",
			},
		},
	}
}

// Configuration returns the run configuration called name. An empty name
// selects the only configuration when there is exactly one.
func (c *Config) Configuration(name string) (*target.RunConfiguration, error) {
	if name == "" {
		switch len(c.Configurations) {
		case 0:
			return nil, errNoConfigurations
		case 1:
			return &c.Configurations[0], nil
		default:
			return nil, errConfigurationAmbiguous
		}
	}

	for i := range c.Configurations {
		if c.Configurations[i].Name == name {
			return &c.Configurations[i], nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownConfiguration, name)
}

// Registry builds the toolchain registry from the configured devices.
func (c *Config) Registry() (*toolchain.Registry, error) {
	devices := make([]toolchain.Device, 0, len(c.Devices))
	for _, d := range c.Devices {
		devices = append(devices, toolchain.Device{
			ID:       d.ID,
			EpocRoot: d.EpocRoot,
			QtDir:    d.QtDir,
		})
	}

	return toolchain.NewRegistry(devices...)
}

// DeployTools returns the configured SDK programs.
func (c *Config) DeployTools() deploy.Tools {
	return deploy.Tools{
		Packager:  c.Tools.Packager,
		Signer:    c.Tools.Signer,
		Installer: c.Tools.Installer,
	}
}
