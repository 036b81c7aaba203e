package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MemoryPath selects an in-process database that is never written to disk.
const MemoryPath = ":memory:"

// NetworkFSError reports a database path on a network mount. SQLite's WAL
// locking is unreliable there, so the history store refuses it.
type NetworkFSError struct {
	Path   string
	FSType string
}

func (e *NetworkFSError) Error() string {
	return fmt.Sprintf("history database %q is on network filesystem %q; set history.path to a local file", e.Path, e.FSType)
}

// CheckDatabasePath reports whether path can hold the history database.
// MemoryPath always passes. For a file path the closest existing ancestor
// is inspected, so the check works before the database is created.
func CheckDatabasePath(path string) error {
	return checkDatabasePath(path, detectFilesystemType)
}

func checkDatabasePath(path string, detect func(string) (string, error)) error {
	switch path {
	case "":
		return errors.New("sqlite path is empty")
	case MemoryPath:
		return nil
	}

	dir, err := closestExisting(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}
	fsType, err := detect(dir)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", dir, err)
	}
	switch strings.ToLower(strings.TrimSpace(fsType)) {
	case "nfs", "cifs", "smbfs", "smb2", "afpfs", "webdav":
		return &NetworkFSError{Path: path, FSType: fsType}
	}
	return nil
}

func closestExisting(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		p = parent
	}
}
