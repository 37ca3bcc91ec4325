// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	defaultQuality       = "1080p"
	defaultAttempts      = 3
	defaultRetries       = 10
	defaultSocketTimeout = 30 * time.Second
	defaultKillGrace     = 3 * time.Second
	defaultListenAddr    = "127.0.0.1:8089"
	defaultRateLimit     = 30
)

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "xgrab")
	}
	return "data"
}

func defaultDownloadDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Downloads")
	}
	return "downloads"
}

func setDefaults(cfg *AppConfig) {
	cfg.DataDir = defaultDataDir()
	cfg.LogLevel = "info"
	cfg.Downloads = DownloadsConfig{
		Directory: defaultDownloadDir(),
		Quality:   defaultQuality,
		Attempts:  defaultAttempts,
		Retries:   defaultRetries,
	}
	cfg.Tools = ToolsConfig{
		YtDLP:         "yt-dlp",
		FFmpeg:        "ffmpeg",
		SocketTimeout: defaultSocketTimeout,
	}
	cfg.Process = ProcessConfig{KillGrace: defaultKillGrace}
	cfg.History = HistoryConfig{Backend: BackendJSON}
	cfg.API = APIConfig{ListenAddr: defaultListenAddr, RateLimit: defaultRateLimit}
}
