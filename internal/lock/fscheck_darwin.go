//go:build darwin

package lock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func detectFilesystemType(path string) (string, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}
	return unix.ByteSliceToString(stat.Fstypename[:]), nil
}
