// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xgrab/internal/config"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManager_Ready_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Nil(t, resp.Checks)
}

func TestManager_Ready_Aggregation(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []Status
		wantReady bool
		want      Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, true, StatusHealthy},
		{"degraded stays ready", []Status{StatusHealthy, StatusDegraded}, true, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v")
			for i, s := range tt.statuses {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.statuses))
		})
	}
}

func TestServeReady(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "yt-dlp", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Checks["yt-dlp"].Status)
}

func TestBinaryChecker(t *testing.T) {
	missing := NewBinaryChecker("ffmpeg", "definitely-not-a-real-binary-xgrab", StatusDegraded)
	res := missing.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.NotEmpty(t, res.Error)

	if runtime.GOOS == "windows" {
		t.Skip("executable bit semantics differ on windows")
	}
	bin := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	res = NewBinaryChecker("tool", bin, StatusUnhealthy).Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, bin, res.Message)
}

func TestDirChecker(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "downloads")
	res := NewDirChecker("download_dir", dir).Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.DirExists(t, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "write probe must not be left behind")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	res = NewDirChecker("download_dir", file).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
}

func TestPerformStartupChecks(t *testing.T) {
	cfg := config.AppConfig{DataDir: t.TempDir()}
	cfg.Downloads.Directory = t.TempDir()
	cfg.Tools.YtDLP = "definitely-not-a-real-binary-xgrab"
	cfg.Tools.FFmpeg = "definitely-not-a-real-binary-xgrab"
	cfg.API.ListenAddr = "127.0.0.1:8089"

	require.NoError(t, PerformStartupChecks(context.Background(), cfg), "missing tools only warn")

	cfg.API.ListenAddr = "127.0.0.1:notaport"
	require.Error(t, PerformStartupChecks(context.Background(), cfg))

	cfg.API.ListenAddr = ""
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	cfg.DataDir = file
	require.Error(t, PerformStartupChecks(context.Background(), cfg))
}

func TestNewReadiness(t *testing.T) {
	cfg := config.AppConfig{Version: "v9"}
	cfg.Downloads.Directory = t.TempDir()
	cfg.Tools.YtDLP = "definitely-not-a-real-binary-xgrab"
	cfg.Tools.FFmpeg = "definitely-not-a-real-binary-xgrab"

	resp := NewReadiness(cfg).Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, "v9", resp.Version)
	assert.Equal(t, StatusUnhealthy, resp.Checks["yt-dlp"].Status)
	assert.Equal(t, StatusDegraded, resp.Checks["ffmpeg"].Status)
	assert.Equal(t, StatusHealthy, resp.Checks["download_dir"].Status)
}
