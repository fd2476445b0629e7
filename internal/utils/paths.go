package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath makes path absolute against baseDir. A leading "~/" expands
// to the user's home directory, absolute paths are only cleaned, and an
// empty path stays empty.
func ResolvePath(path, baseDir string) string {
	switch {
	case path == "":
		return ""
	case path == "~" || strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Clean(path)
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	case filepath.IsAbs(path):
		return filepath.Clean(path)
	default:
		return filepath.Join(baseDir, path)
	}
}
