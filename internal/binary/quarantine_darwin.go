//go:build darwin

package binary

import (
	"errors"

	"golang.org/x/sys/unix"
)

const quarantineAttr = "com.apple.quarantine"

// clearQuarantine removes the Gatekeeper quarantine marker from path.
func clearQuarantine(path string) error {
	err := unix.Removexattr(path, quarantineAttr)
	if err == nil || errors.Is(err, unix.ENOATTR) {
		return nil
	}
	return err
}
