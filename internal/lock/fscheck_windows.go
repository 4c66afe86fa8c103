//go:build windows

package lock

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// detectFilesystemType reports "remote" for mapped network drives and UNC paths.
func detectFilesystemType(path string) (string, error) {
	root := filepath.VolumeName(path) + `\`
	p, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return "", fmt.Errorf("volume of %q: %w", path, err)
	}
	if windows.GetDriveType(p) == windows.DRIVE_REMOTE {
		return "remote", nil
	}
	return "local", nil
}
