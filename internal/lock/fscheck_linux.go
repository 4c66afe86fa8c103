//go:build linux

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

	// Magic numbers are 32-bit; Type is int32 on some architectures.
	switch uint32(stat.Type) {
	case unix.NFS_SUPER_MAGIC:
		return "nfs", nil
	case unix.CIFS_SUPER_MAGIC:
		return "cifs", nil
	case unix.SMB_SUPER_MAGIC:
		return "smbfs", nil
	case unix.SMB2_SUPER_MAGIC:
		return "smb2", nil
	default:
		return fmt.Sprintf("0x%x", uint32(stat.Type)), nil
	}
}
