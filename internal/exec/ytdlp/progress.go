// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ytdlp

import (
	"regexp"
	"strconv"
)

// progressPattern matches yt-dlp download lines such as
//
//	[download]  42.3% of ~ 12.34MiB at  1.23MiB/s ETA 00:07
//	[download] 100% of   12.34MiB in 00:00:09 at 1.28MiB/s
//
// Only the percentage is used. Lines without a percentage (destination
// notices, "has already been downloaded") do not match.
var progressPattern = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)

// ParseProgress extracts the completion percentage of the current file
// from one line of yt-dlp stdout. The value is clamped to [0,100].
func ParseProgress(line string) (float64, bool) {
	m := progressPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// ScaleProgress maps a 0..100 tool percentage into the [lo,hi] window.
func ScaleProgress(pct, lo, hi float64) float64 {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return lo + (hi-lo)*pct/100
}
