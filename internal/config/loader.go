// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/xgrab/internal/log"
)

// Environment keys.
const (
	EnvDataDir        = "XGRAB_DATA"
	EnvDownloadDir    = "XGRAB_DOWNLOAD_DIR"
	EnvQuality        = "XGRAB_QUALITY"
	EnvAttempts       = "XGRAB_ATTEMPTS"
	EnvRetries        = "XGRAB_RETRIES"
	EnvYtDLPBin       = "XGRAB_YTDLP_BIN"
	EnvFFmpegBin      = "XGRAB_FFMPEG_BIN"
	EnvSocketTimeout  = "XGRAB_SOCKET_TIMEOUT"
	EnvKillGrace      = "XGRAB_KILL_GRACE"
	EnvHistoryBackend = "XGRAB_HISTORY_BACKEND"
	EnvHistoryPath    = "XGRAB_HISTORY_PATH"
	EnvClearHistory   = "XGRAB_CLEAR_HISTORY_ON_STARTUP"
	EnvListenAddr     = "XGRAB_LISTEN"
	EnvRateLimit      = "XGRAB_RATE_LIMIT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvConfigFile     = "XGRAB_CONFIG"
)

// Loader resolves configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
	lookup     lookupFunc

	// ConsumedEnvKeys records every environment key the loader read.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader returns a Loader for an optional YAML file.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		lookup:          os.LookupEnv,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, def string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return parseString(l.lookup, log.WithComponent("config"), key, def)
}

func (l *Loader) envInt(key string, def int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return parseInt(l.lookup, log.WithComponent("config"), key, def)
}

func (l *Loader) envBool(key string, def bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return parseBool(l.lookup, log.WithComponent("config"), key, def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return parseDuration(l.lookup, log.WithComponent("config"), key, def)
}

// Load applies defaults, the file and the environment, then validates.
func (l *Loader) Load() (AppConfig, error) {
	var cfg AppConfig
	setDefaults(&cfg)

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFile(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if abs, err := filepath.Abs(cfg.Downloads.Directory); err == nil {
		cfg.Downloads.Directory = abs
	}
	cfg.History.Backend = strings.ToLower(cfg.History.Backend)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile parses a single YAML document and rejects unknown keys.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return nil, fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFile(cfg *AppConfig, f *FileConfig) error {
	if f.DataDir != "" {
		cfg.DataDir = os.ExpandEnv(f.DataDir)
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if d := f.Downloads; d != nil {
		if d.Directory != "" {
			cfg.Downloads.Directory = os.ExpandEnv(d.Directory)
		}
		if d.Quality != "" {
			cfg.Downloads.Quality = d.Quality
		}
		if d.Attempts != nil {
			cfg.Downloads.Attempts = *d.Attempts
		}
		if d.Retries != nil {
			cfg.Downloads.Retries = *d.Retries
		}
	}
	if t := f.Tools; t != nil {
		if t.YtDLP != "" {
			cfg.Tools.YtDLP = t.YtDLP
		}
		if t.FFmpeg != "" {
			cfg.Tools.FFmpeg = t.FFmpeg
		}
		if t.SocketTimeout != "" {
			d, err := durationValue(t.SocketTimeout)
			if err != nil {
				return fmt.Errorf("tools.socketTimeout: %w", err)
			}
			cfg.Tools.SocketTimeout = d
		}
	}
	if p := f.Process; p != nil && p.KillGrace != "" {
		d, err := durationValue(p.KillGrace)
		if err != nil {
			return fmt.Errorf("process.killGrace: %w", err)
		}
		cfg.Process.KillGrace = d
	}
	if h := f.History; h != nil {
		if h.Backend != "" {
			cfg.History.Backend = h.Backend
		}
		if h.Path != "" {
			cfg.History.Path = os.ExpandEnv(h.Path)
		}
		if h.ClearOnStartup != nil {
			cfg.History.ClearOnStartup = *h.ClearOnStartup
		}
	}
	if a := f.API; a != nil {
		if a.ListenAddr != "" {
			cfg.API.ListenAddr = a.ListenAddr
		}
		if a.RateLimit != nil {
			cfg.API.RateLimit = *a.RateLimit
		}
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = l.envString(EnvDataDir, cfg.DataDir)
	cfg.LogLevel = l.envString(EnvLogLevel, cfg.LogLevel)

	cfg.Downloads.Directory = l.envString(EnvDownloadDir, cfg.Downloads.Directory)
	cfg.Downloads.Quality = l.envString(EnvQuality, cfg.Downloads.Quality)
	cfg.Downloads.Attempts = l.envInt(EnvAttempts, cfg.Downloads.Attempts)
	cfg.Downloads.Retries = l.envInt(EnvRetries, cfg.Downloads.Retries)

	cfg.Tools.YtDLP = l.envString(EnvYtDLPBin, cfg.Tools.YtDLP)
	cfg.Tools.FFmpeg = l.envString(EnvFFmpegBin, cfg.Tools.FFmpeg)
	cfg.Tools.SocketTimeout = l.envDuration(EnvSocketTimeout, cfg.Tools.SocketTimeout)

	cfg.Process.KillGrace = l.envDuration(EnvKillGrace, cfg.Process.KillGrace)

	cfg.History.Backend = l.envString(EnvHistoryBackend, cfg.History.Backend)
	cfg.History.Path = l.envString(EnvHistoryPath, cfg.History.Path)
	cfg.History.ClearOnStartup = l.envBool(EnvClearHistory, cfg.History.ClearOnStartup)

	cfg.API.ListenAddr = l.envString(EnvListenAddr, cfg.API.ListenAddr)
	cfg.API.RateLimit = l.envInt(EnvRateLimit, cfg.API.RateLimit)
}
