// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrEscapesRoot = errors.New("path escapes root")

// ConfineRelPath joins root and rel and verifies the result, after symlink
// resolution, stays under root. rel must be relative and must not contain
// backslashes. The target itself need not exist.
func ConfineRelPath(root, rel string) (string, error) {
	if strings.Contains(rel, "\\") {
		return "", fmt.Errorf("%w: backslash in %q", ErrEscapesRoot, rel)
	}
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, rel)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		realRoot = absRoot
	}

	full := filepath.Join(realRoot, clean)
	realPath, err := resolve(full)
	if err != nil {
		return "", err
	}

	r, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return "", fmt.Errorf("rel: %w", err)
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, realPath)
	}
	return realPath, nil
}

// resolve follows symlinks of path, or of its parent when path does not exist.
func resolve(path string) (string, error) {
	if _, err := os.Lstat(path); err == nil {
		rp, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", path, err)
		}
		return rp, nil
	}
	dir := filepath.Dir(path)
	rp, err := filepath.EvalSymlinks(dir)
	if err != nil {
		if _, statErr := os.Stat(dir); statErr == nil {
			return "", fmt.Errorf("resolve parent %s: %w", dir, err)
		}
		return path, nil
	}
	return filepath.Join(rp, filepath.Base(path)), nil
}
