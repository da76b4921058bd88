//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"

	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
)

// DetectActor gathers host and user information for the deployment record.
func DetectActor() (*deploy.Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &deploy.Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}
