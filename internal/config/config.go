// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads daemon configuration from defaults, an optional
// YAML file and the environment, in increasing order of precedence.
package config

import (
	"path/filepath"
	"time"
)

// History backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// AppConfig is the resolved configuration.
type AppConfig struct {
	Version  string
	DataDir  string
	LogLevel string

	Downloads DownloadsConfig
	Tools     ToolsConfig
	Process   ProcessConfig
	History   HistoryConfig
	API       APIConfig
}

type DownloadsConfig struct {
	Directory string
	Quality   string
	// Attempts bounds whole-process restarts of a failed fetch.
	Attempts int
	// Retries is passed to yt-dlp for transient network errors.
	Retries int
}

type ToolsConfig struct {
	YtDLP         string
	FFmpeg        string
	SocketTimeout time.Duration
}

type ProcessConfig struct {
	KillGrace time.Duration
}

type HistoryConfig struct {
	Backend        string
	Path           string
	ClearOnStartup bool
}

type APIConfig struct {
	ListenAddr string
	// RateLimit is the number of submissions per minute per client; 0 disables it.
	RateLimit int
}

// HistoryPath returns the configured ledger path or the backend default
// under the data directory.
func (c AppConfig) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	if c.History.Backend == BackendSQLite {
		return filepath.Join(c.DataDir, "history.sqlite")
	}
	return filepath.Join(c.DataDir, "download_history.json")
}

// FileConfig mirrors the YAML file. Pointer fields distinguish unset from zero.
type FileConfig struct {
	DataDir   string         `yaml:"dataDir,omitempty"`
	LogLevel  string         `yaml:"logLevel,omitempty"`
	Downloads *DownloadsFile `yaml:"downloads,omitempty"`
	Tools     *ToolsFile     `yaml:"tools,omitempty"`
	Process   *ProcessFile   `yaml:"process,omitempty"`
	History   *HistoryFile   `yaml:"history,omitempty"`
	API       *APIFile       `yaml:"api,omitempty"`
}

type DownloadsFile struct {
	Directory string `yaml:"directory,omitempty"`
	Quality   string `yaml:"quality,omitempty"`
	Attempts  *int   `yaml:"attempts,omitempty"`
	Retries   *int   `yaml:"retries,omitempty"`
}

type ToolsFile struct {
	YtDLP         string `yaml:"ytdlp,omitempty"`
	FFmpeg        string `yaml:"ffmpeg,omitempty"`
	SocketTimeout string `yaml:"socketTimeout,omitempty"`
}

type ProcessFile struct {
	KillGrace string `yaml:"killGrace,omitempty"`
}

type HistoryFile struct {
	Backend        string `yaml:"backend,omitempty"`
	Path           string `yaml:"path,omitempty"`
	ClearOnStartup *bool  `yaml:"clearOnStartup,omitempty"`
}

type APIFile struct {
	ListenAddr string `yaml:"listenAddr,omitempty"`
	RateLimit  *int   `yaml:"rateLimit,omitempty"`
}
