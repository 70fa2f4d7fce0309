package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFileName validates that a file name is safe to join under a
// managed directory. Names are derived from message fingerprints and
// config values, but anything reaching the filesystem goes through here.
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("file name cannot be empty")
	}

	cleanName := filepath.Clean(name)

	if strings.Contains(cleanName, "..") {
		return fmt.Errorf("name contains directory traversal: %s", name)
	}

	if filepath.IsAbs(cleanName) {
		return fmt.Errorf("absolute paths not allowed: %s", name)
	}

	return nil
}

// SafeJoin joins a file name onto a base directory and verifies the
// resolved path cannot escape it. Returns the joined path.
func SafeJoin(baseDir, name string) (string, error) {
	if err := ValidateFileName(name); err != nil {
		return "", err
	}

	cleanBase := filepath.Clean(baseDir)
	fullPath := filepath.Clean(filepath.Join(cleanBase, name))

	if fullPath != cleanBase && !strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", name)
	}

	return fullPath, nil
}
