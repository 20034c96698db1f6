// Package paths holds the on-disk locations termhub uses and the helpers that
// turn user-supplied paths into absolute ones.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Per-user state
const (
	StateDir     = "~/.termctl"
	DefaultStore = StateDir + "/sessions.db"
)

// Expand replaces a leading ~ with the current user's home directory.
// ~user forms are not supported and are returned unchanged.
func Expand(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// Abs expands ~ and makes path absolute and clean
func Abs(path string) (string, error) {
	expanded, err := Expand(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

// Display shortens a path under the home directory back to ~ form
func Display(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if rel, ok := strings.CutPrefix(path, home+string(filepath.Separator)); ok {
		return "~/" + rel
	}
	return path
}
