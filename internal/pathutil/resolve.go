// Package pathutil resolves file paths named in server.properties.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Resolve makes path absolute. A leading ~ expands to the home directory and
// a relative path is taken relative to baseDir (the directory holding the
// properties file), so the server finds its catalog and key files no matter
// which directory it was started from. Empty stays empty.
//
// Symlinks are resolved in the existing portion of the path; components that
// do not exist yet are appended unchanged.
func Resolve(path, baseDir string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved, nil
	}

	// Find the deepest existing ancestor, resolve it, then re-append the rest
	current := absPath
	var remainder []string
	for {
		if _, err := os.Stat(current); err == nil {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				resolved = current
			}
			for i := len(remainder) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, remainder[i])
			}
			return resolved, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return absPath, nil
		}
		remainder = append(remainder, filepath.Base(current))
		current = parent
	}
}
