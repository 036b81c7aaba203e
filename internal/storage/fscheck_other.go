//go:build !darwin && !linux

package storage

// No detector here; the path is treated as local.
func detectFilesystemType(string) (string, error) {
	return "local", nil
}
