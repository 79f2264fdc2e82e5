// Package fileutil provides small filesystem helpers shared by the CLI.
package fileutil

import (
	"fmt"
	"os"
)

// Backup moves an existing file aside to "<path>.bak", replacing any previous
// backup, and returns the backup path. A missing file is not an error; the
// returned path is empty in that case.
func Backup(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	bak := path + ".bak"
	if err := os.Remove(bak); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to remove stale backup: %w", err)
	}
	if err := os.Rename(path, bak); err != nil {
		return "", fmt.Errorf("failed to move %s aside: %w", path, err)
	}
	return bak, nil
}
