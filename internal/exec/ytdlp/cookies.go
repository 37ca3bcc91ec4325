// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ytdlp

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/xgrab/internal/log"
)

const (
	cookieDomain = ".youtube.com"
	cookieTTL    = 24 * time.Hour
)

// FormatNetscapeCookies converts a browser "name=value; name2=value2"
// cookie header into the Netscape cookie-jar format yt-dlp reads. Input that
// already is a cookie jar is returned unchanged. The second result is the
// number of cookies written.
func FormatNetscapeCookies(raw string, now time.Time) (string, int) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "# Netscape HTTP Cookie File") || strings.HasPrefix(trimmed, "# HTTP Cookie File") {
		return trimmed + "\n", countJarEntries(trimmed)
	}

	var b strings.Builder
	b.WriteString("# Netscape HTTP Cookie File\n")
	b.WriteString("# Generated by xgrab; do not edit.\n\n")

	expires := strconv.FormatInt(now.Add(cookieTTL).Unix(), 10)
	n := 0
	for _, pair := range strings.Split(trimmed, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		// domain, include subdomains, path, secure, expiry, name, value
		fmt.Fprintf(&b, "%s\tTRUE\t/\tTRUE\t%s\t%s\t%s\n", cookieDomain, expires, name, value)
		n++
	}
	return b.String(), n
}

func countJarEntries(jar string) int {
	n := 0
	for _, line := range strings.Split(jar, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			n++
		}
	}
	return n
}

// WriteCookieFile stores raw cookies as a private temp file in dir (the
// system temp dir when empty). The returned cleanup removes it and is safe
// to call more than once. Empty input yields an empty path and a no-op cleanup.
func WriteCookieFile(dir, raw string, now time.Time) (string, func(), error) {
	if strings.TrimSpace(raw) == "" {
		return "", func() {}, nil
	}
	body, n := FormatNetscapeCookies(raw, now)

	f, err := os.CreateTemp(dir, "cookies_*.txt")
	if err != nil {
		return "", func() {}, fmt.Errorf("create cookie file: %w", err)
	}
	path := f.Name()
	logger := log.WithComponent("ytdlp")
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str(log.FieldPath, path).Msg("failed to remove cookie file")
		}
	}
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write cookie file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close cookie file: %w", err)
	}
	logger.Debug().Int("cookies", n).Msg("cookie file written")
	return path, cleanup, nil
}
