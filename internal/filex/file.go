// Package filex resolves and prepares on-disk locations for client data.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPath returns <user config dir>/<app>/<name>. When the user config
// dir cannot be resolved the path is relative to the working directory.
func DefaultPath(app, name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, app, name)
}

// EnsureParentDir creates the directory that will hold the file at path.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}
