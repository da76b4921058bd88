package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
)

var (
	//nolint:gochecknoglobals // The validator caches struct metadata and is meant to be shared.
	validatorOnce sync.Once
	//nolint:gochecknoglobals // See validatorOnce.
	validateInst *validator.Validate
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		validateInst = validator.New(validator.WithRequiredStructEnabled())
	})

	return validateInst
}

// Validate fills defaults, expands home-relative paths and checks the settings.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	applyDefaults(settings)

	if err := expandPaths(settings); err != nil {
		return err
	}

	if err := validatorInstance().Struct(settings); err != nil {
		return convertValidationError(err)
	}

	devices := make(map[string]struct{}, len(settings.Devices))
	for _, d := range settings.Devices {
		devices[d.ID] = struct{}{}
	}

	names := make(map[string]struct{}, len(settings.Configurations))

	for _, rc := range settings.Configurations {
		if _, exists := names[rc.Name]; exists {
			return fmt.Errorf("%w: %s", errDuplicateConfiguration, rc.Name)
		}

		names[rc.Name] = struct{}{}

		if _, exists := devices[rc.Device]; !exists {
			return fmt.Errorf("%s: %w: %s", rc.Name, errConfigurationBadDevice, rc.Device)
		}
	}

	if _, err := settings.Registry(); err != nil {
		return fmt.Errorf("%w: %w", errInvalidSettings, err)
	}

	return nil
}

func applyDefaults(settings *Config) {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.HistoryFile == "" {
		settings.HistoryFile = DefaultHistoryFilename
	}

	if settings.ServerAddress == "" {
		settings.ServerAddress = DefaultServerAddress
	}

	if settings.Tools.Packager == "" {
		settings.Tools.Packager = DefaultPackager
	}

	if settings.Tools.Signer == "" {
		settings.Tools.Signer = DefaultSigner
	}

	if settings.Tools.Installer == "" {
		settings.Tools.Installer = DefaultInstaller
	}
}

func expandPaths(settings *Config) error {
	paths := []*string{&settings.HistoryFile}

	for i := range settings.Devices {
		paths = append(paths, &settings.Devices[i].EpocRoot, &settings.Devices[i].QtDir)
	}

	for i := range settings.Configurations {
		rc := &settings.Configurations[i]
		paths = append(paths,
			&rc.ProFile,
			&rc.BuildDir,
			&rc.DestDir,
			&rc.CustomSignaturePath,
			&rc.CustomKeyPath,
			&rc.InstallDestination,
		)
	}

	for _, p := range paths {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("%w %q: %w", errUnexpandableSettingPath, *p, err)
		}

		*p = expanded
	}

	return nil
}

func convertValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("%w: %w", errInvalidSettings, err)
	}

	problems := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		problems = append(problems, describeFieldError(fe))
	}

	return fmt.Errorf("%w: %s", errInvalidSettings, strings.Join(problems, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")

	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "hostname_port":
		return field + " must be a host:port address"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
