// Package pathutil checks output locations before datasets are written.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutputDir is returned when the output directory is missing or not a
// writable directory.
var ErrOutputDir = errors.New("output directory unusable")

// RedactPath shortens a path to .../<parent>/<basename> for error messages,
// e.g. "/home/user/data/raw/out.csv" becomes ".../raw/out.csv".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	base := filepath.Base(cleaned)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// CheckWritableDir returns ErrOutputDir unless dir exists, is a directory,
// and accepts new files.
func CheckWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s does not exist", ErrOutputDir, RedactPath(dir))
		}
		return fmt.Errorf("%w: %s: %v", ErrOutputDir, RedactPath(dir), err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrOutputDir, RedactPath(dir))
	}

	probe, err := os.CreateTemp(dir, ".lifesim-probe-*")
	if err != nil {
		return fmt.Errorf("%w: %s is not writable: %v", ErrOutputDir, RedactPath(dir), err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// ValidatePath checks that path resolves inside one of allowedDirs, following
// symlinks on whatever part of the path already exists.
func ValidatePath(path string, allowedDirs []string) error {
	if path == "" {
		return fmt.Errorf("path validation failed: path is empty")
	}
	if len(allowedDirs) == 0 {
		return fmt.Errorf("path validation failed: no allowed directories configured")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path validation failed: path contains null byte")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("path validation failed: cannot resolve absolute path: %w", err)
	}

	resolvedDir, err := resolveExistingParent(filepath.Dir(absPath))
	if err != nil {
		return fmt.Errorf("path validation failed: cannot resolve parent directory: %w", err)
	}
	resolved := filepath.Join(resolvedDir, filepath.Base(absPath))

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		allowedResolved, err := resolveExistingParent(allowedAbs)
		if err != nil {
			continue
		}
		if isSubpath(resolved, allowedResolved) {
			return nil
		}
	}

	return fmt.Errorf("path validation failed: %q is outside allowed directories", RedactPath(absPath))
}

// resolveExistingParent resolves symlinks on the deepest existing ancestor of
// dir and re-appends the missing tail.
func resolveExistingParent(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}

	resolvedParent, err := resolveExistingParent(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// isSubpath reports whether path equals base or lies beneath it.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}

// DefaultAllowedOutputDirs returns where agent-initiated runs may write:
// <projectRoot>/data and ~/.lifesim/datasets.
func DefaultAllowedOutputDirs(projectRoot string) ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return []string{
		filepath.Join(projectRoot, "data"),
		filepath.Join(homeDir, ".lifesim", "datasets"),
	}, nil
}
