// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package version

import "fmt"

// Populated by the build system via -ldflags "-X".
var (
	Version = "v0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build identity for -version output.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
