//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"github.com/oshokin/sisx-deploy/internal/logger"
)

// ApplyLogLevel sets the shared log level from the command line, falling back
// to the configured one. Nothing changes when both are empty.
func ApplyLogLevel(override, configured string) error {
	level := override
	if level == "" {
		level = configured
	}

	if level == "" {
		return nil
	}

	return logger.SetLevelFromString(level)
}
