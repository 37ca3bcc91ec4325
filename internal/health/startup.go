// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/xgrab/internal/config"
	"github.com/ManuGH/xgrab/internal/log"
)

// PerformStartupChecks validates the environment before the server starts.
// Missing tools only warn: jobs report them as process errors.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks")

	if err := checkWritableDir(cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	logger.Info().Str("path", cfg.DataDir).Msg("data directory is writable")

	if err := checkListenAddr(cfg.API.ListenAddr); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := checkWritableDir(cfg.Downloads.Directory); err != nil {
		logger.Warn().
			Err(err).
			Str("path", cfg.Downloads.Directory).
			Msg("download directory is not writable; jobs without an explicit directory will fail")
	}

	for _, c := range ToolCheckers(cfg) {
		if res := c.Check(ctx); res.Status != StatusHealthy {
			logger.Warn().
				Str("tool", c.Name()).
				Str("bin", res.Message).
				Str("error", res.Error).
				Msg("external tool not found")
		}
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.DataDir).
			Msg("data directory is under temp; download history may be lost on reboot")
	}

	logger.Info().Msg("All startup checks passed")
	return nil
}

// ToolCheckers returns the readiness checkers for the external tools.
// yt-dlp is required by every job, ffmpeg only by separate-stream downloads.
func ToolCheckers(cfg config.AppConfig) []Checker {
	return []Checker{
		NewBinaryChecker("yt-dlp", cfg.Tools.YtDLP, StatusUnhealthy),
		NewBinaryChecker("ffmpeg", cfg.Tools.FFmpeg, StatusDegraded),
	}
}

// NewReadiness wires the tool and download directory checkers.
func NewReadiness(cfg config.AppConfig) *Manager {
	m := NewManager(cfg.Version)
	for _, c := range ToolCheckers(cfg) {
		m.RegisterChecker(c)
	}
	m.RegisterChecker(NewDirChecker("download_dir", cfg.Downloads.Directory))
	return m
}

func checkListenAddr(addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid API listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid API listen port %q in %q", port, addr)
	}
	return nil
}
