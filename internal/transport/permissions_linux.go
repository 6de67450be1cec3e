//go:build linux

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkDevicePermissions turns hidapi's bare EACCES into an actionable
// message: most distros gate /dev/hidraw* behind the plugdev group.
func checkDevicePermissions(path string) error {
	if path == "" {
		return nil
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return fmt.Errorf("%s is not readable/writable by this user: %w (try adding yourself to the plugdev group)", path, err)
	}
	return nil
}
