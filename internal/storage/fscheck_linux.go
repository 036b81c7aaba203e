//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

// detectFilesystemType maps statfs(2) f_type to a name for the network
// filesystems checkDatabasePath refuses; anything else is reported as hex.
func detectFilesystemType(path string) (string, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return "", err
	}
	switch magic := uint64(st.Type); magic {
	case 0x6969:
		return "nfs", nil
	case 0xFF534D42:
		return "cifs", nil
	case 0x517B:
		return "smbfs", nil
	case 0xFE534D42:
		return "smb2", nil
	default:
		return fmt.Sprintf("0x%x", magic), nil
	}
}
