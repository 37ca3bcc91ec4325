// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil names, promotes and cleans up downloaded files.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/ManuGH/xgrab/internal/log"
)

// ErrFilesystem marks directory creation, rename and delete failures.
var ErrFilesystem = errors.New("filesystem error")

const maxNameBytes = 200

// Wrap tags err as a filesystem error with context.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrFilesystem, op, err)
}

// SanitizeFilename makes title safe as a file name on common filesystems:
// reserved characters and control characters become '_', the result is
// NFC-normalised, trimmed of spaces and dots, and capped in length.
func SanitizeFilename(title string) string {
	s := norm.NFC.String(title)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\\', '/', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, s)
	s = strings.Trim(s, " .")
	if len(s) > maxNameBytes {
		cut := maxNameBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimRight(s[:cut], " .")
	}
	return s
}

// FinalName derives the output file name for a title and container
// extension. Untitled media gets video_<unix millis>.
func FinalName(title, ext string, now time.Time) string {
	base := SanitizeFilename(title)
	if base == "" {
		base = "video_" + strconv.FormatInt(now.UnixMilli(), 10)
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "mp4"
	}
	return base + "." + ext
}

// UniqueName returns name if it is free in dir, otherwise name with a
// _<unix millis> suffix before the extension, bumped until free.
func UniqueName(dir, name string, now time.Time) string {
	if !exists(filepath.Join(dir, name)) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	stamp := now.UnixMilli()
	for {
		candidate := stem + "_" + strconv.FormatInt(stamp, 10) + ext
		if !exists(filepath.Join(dir, candidate)) {
			return candidate
		}
		stamp++
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Promote moves src into dir under name, or a suffixed variant when name is
// taken. An existing file is never replaced. It returns the name used.
func Promote(src, dir, name string, now time.Time) (string, error) {
	for range 5 {
		final := UniqueName(dir, name, now)
		dst, err := ConfineRelPath(dir, final)
		if err != nil {
			return "", Wrap("confine output", err)
		}

		// Link fails with EEXIST instead of replacing, closing the race
		// between UniqueName and the move.
		err = os.Link(src, dst)
		if err == nil {
			if rmErr := os.Remove(src); rmErr != nil {
				logger := log.WithComponent("fsutil")
				logger.Warn().Err(rmErr).Str(log.FieldPath, src).Msg("failed to remove promoted temp file")
			}
			return final, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}
		// Filesystems without hard links: fall back to rename after a fresh check.
		if exists(dst) {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return "", Wrap("rename output", err)
		}
		return final, nil
	}
	return "", Wrap("promote", fmt.Errorf("no free name for %s", name))
}

// EnsureDir creates dir and its parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil { // #nosec G301 -- user-visible download directory
		return Wrap("create directory", err)
	}
	return nil
}

// RemoveIfExists deletes path, ignoring a missing file.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Wrap("remove", err)
	}
	return nil
}

// SweepPrefix removes files in dir whose name starts with prefix. With
// zeroOnly set, only zero-byte files are removed. Errors on individual
// files are logged and skipped; the removed names are returned.
func SweepPrefix(dir, prefix string, zeroOnly bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, Wrap("read directory", err)
	}
	logger := log.WithComponent("fsutil")

	var removed []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if zeroOnly {
			info, err := e.Info()
			if err != nil || info.Size() != 0 {
				continue
			}
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str(log.FieldPath, path).Msg("failed to remove temp file")
			continue
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}
