// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package control

import (
	"bytes"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestControlImportPurity keeps the lifecycle layer independent of the HTTP
// adapter and the daemon wiring.
func TestControlImportPurity(t *testing.T) {
	if testing.Short() {
		t.Skip("runs go list")
	}
	cmd := exec.Command("go", "list", "-deps", "github.com/ManuGH/xgrab/internal/control")
	cmd.Env = append(os.Environ(), "GOWORK=off")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	require.NoError(t, cmd.Run(), "go list -deps: %s", stderr.String())

	forbidden := []string{
		"github.com/ManuGH/xgrab/internal/api",
		"github.com/ManuGH/xgrab/internal/config",
		"github.com/go-chi/chi",
	}
	for _, d := range strings.Split(stdout.String(), "\n") {
		d = strings.TrimSpace(d)
		for _, f := range forbidden {
			assert.False(t, strings.HasPrefix(d, f), "control depends on %s", d)
		}
	}
}
