package terminal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidateProjectPath checks that path is an existing absolute directory and,
// when allowed is non-empty, that it matches one of the glob patterns.
func ValidateProjectPath(path string, allowed []string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidProjectPath, path)
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProjectPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %q is not a directory", ErrInvalidProjectPath, clean)
	}

	if len(allowed) == 0 {
		return clean, nil
	}
	for _, pattern := range allowed {
		if ok, err := doublestar.Match(pattern, clean); err == nil && ok {
			return clean, nil
		}
	}
	return "", fmt.Errorf("%w: %q is outside the allowed roots", ErrInvalidProjectPath, clean)
}
