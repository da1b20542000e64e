// Package pathutil normalizes user-supplied paths.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Expand replaces a leading ~ with the home directory, expands environment
// variables and returns the absolute path. An empty path stays empty.
func Expand(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(os.ExpandEnv(path))
}

// MustExpand is Expand that falls back to the input on error.
func MustExpand(path string) string {
	expanded, err := Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

// CanonicalPath returns the absolute, symlink-free path with the case the
// filesystem reports. Paths that do not exist are returned absolute.
//
// filepath.EvalSymlinks keeps the caller's case on case-insensitive
// filesystems, so on darwin and windows each component is looked up.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		resolved = abs
	}
	if runtime.GOOS != "darwin" && runtime.GOOS != "windows" {
		return resolved, nil
	}
	return fixCase(resolved), nil
}

func fixCase(path string) string {
	volume := filepath.VolumeName(path)
	result := volume + string(filepath.Separator)
	for _, part := range strings.Split(path[len(volume):], string(filepath.Separator)) {
		if part == "" {
			continue
		}
		result = filepath.Join(result, matchEntry(result, part))
	}
	return result
}

func matchEntry(dir, name string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return name
	}
	for _, e := range entries {
		if e.Name() == name {
			return name
		}
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name(), name) {
			return e.Name()
		}
	}
	return name
}
