package deploy

import (
	"fmt"
	"strings"
)

// SigningMode selects the certificate used by the signing stage.
type SigningMode int

const (
	// SigningSelf signs with the self-signed certificate shipped with the toolchain.
	SigningSelf SigningMode = iota
	// SigningCustom signs with a user-provided certificate and key.
	SigningCustom
)

// String returns the configuration spelling of the mode.
func (m SigningMode) String() string {
	switch m {
	case SigningSelf:
		return "self"
	case SigningCustom:
		return "custom"
	default:
		return fmt.Sprintf("SigningMode(%d)", int(m))
	}
}

// ParseSigningMode accepts "self" (or empty) and "custom".
func ParseSigningMode(s string) (SigningMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "self", "self-signed", "selfsigned":
		return SigningSelf, nil
	case "custom":
		return SigningCustom, nil
	default:
		return SigningSelf, fmt.Errorf("%w: %q", errUnknownSigningMode, s)
	}
}

// InstallMode selects how the install stage delivers the .sisx file.
type InstallMode int

const (
	// InstallInvoke opens the .sisx through the platform install invoker
	// (cmd /C <file>), which hands it to the PC suite installer.
	InstallInvoke InstallMode = iota
	// InstallCopy copies the .sisx onto a mounted device drive.
	InstallCopy
)

// String returns the configuration spelling of the mode.
func (m InstallMode) String() string {
	switch m {
	case InstallInvoke:
		return "invoke"
	case InstallCopy:
		return "copy"
	default:
		return fmt.Sprintf("InstallMode(%d)", int(m))
	}
}

// ParseInstallMode accepts "invoke" (or empty) and "copy".
func ParseInstallMode(s string) (InstallMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "invoke":
		return InstallInvoke, nil
	case "copy":
		return InstallCopy, nil
	default:
		return InstallInvoke, fmt.Errorf("%w: %q", errUnknownInstallMode, s)
	}
}
