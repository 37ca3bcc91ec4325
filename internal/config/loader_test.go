// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(values map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func newTestLoader(t *testing.T, yamlBody string, env map[string]string) *Loader {
	t.Helper()
	path := ""
	if yamlBody != "" {
		path = filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))
	}
	l := NewLoader(path, "test")
	if env == nil {
		env = map[string]string{}
	}
	if _, ok := env[EnvDownloadDir]; !ok {
		env[EnvDownloadDir] = t.TempDir()
	}
	l.lookup = mapLookup(env)
	return l
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := newTestLoader(t, "", nil).Load()
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, "1080p", cfg.Downloads.Quality)
	assert.Equal(t, 3, cfg.Downloads.Attempts)
	assert.Equal(t, 10, cfg.Downloads.Retries)
	assert.Equal(t, "yt-dlp", cfg.Tools.YtDLP)
	assert.Equal(t, "ffmpeg", cfg.Tools.FFmpeg)
	assert.Equal(t, 30*time.Second, cfg.Tools.SocketTimeout)
	assert.Equal(t, 3*time.Second, cfg.Process.KillGrace)
	assert.Equal(t, BackendJSON, cfg.History.Backend)
	assert.False(t, cfg.History.ClearOnStartup)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, filepath.Join(cfg.DataDir, "download_history.json"), cfg.HistoryPath())
}

func TestLoad_PrecedenceEnvOverFileOverDefaults(t *testing.T) {
	yamlBody := `
downloads:
  quality: 720p
  attempts: 5
tools:
  ytdlp: /opt/yt-dlp
  socketTimeout: 15s
history:
  backend: sqlite
  clearOnStartup: true
api:
  rateLimit: 0
`
	l := newTestLoader(t, yamlBody, map[string]string{
		EnvQuality:   "best",
		EnvKillGrace: "7",
	})
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "best", cfg.Downloads.Quality, "env beats file")
	assert.Equal(t, 5, cfg.Downloads.Attempts, "file beats default")
	assert.Equal(t, 10, cfg.Downloads.Retries, "default kept")
	assert.Equal(t, "/opt/yt-dlp", cfg.Tools.YtDLP)
	assert.Equal(t, 15*time.Second, cfg.Tools.SocketTimeout)
	assert.Equal(t, 7*time.Second, cfg.Process.KillGrace, "bare integer is seconds")
	assert.Equal(t, BackendSQLite, cfg.History.Backend)
	assert.True(t, cfg.History.ClearOnStartup)
	assert.Equal(t, 0, cfg.API.RateLimit, "explicit zero survives")
	assert.Equal(t, filepath.Join(cfg.DataDir, "history.sqlite"), cfg.HistoryPath())

	assert.Contains(t, l.ConsumedEnvKeys, EnvQuality)
	assert.Contains(t, l.ConsumedEnvKeys, EnvClearHistory)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	_, err := newTestLoader(t, "downloads:\n  qualty: 720p\n", nil).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoad_MultipleDocumentsRejected(t *testing.T) {
	_, err := newTestLoader(t, "logLevel: info\n---\nlogLevel: debug\n", nil).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	l := NewLoader(path, "")
	l.lookup = mapLookup(map[string]string{EnvDownloadDir: t.TempDir()})
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "1080p", cfg.Downloads.Quality)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only YAML")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"attempts", map[string]string{EnvAttempts: "0"}, "downloads.attempts"},
		{"backend", map[string]string{EnvHistoryBackend: "redis"}, "history.backend"},
		{"ytdlp", map[string]string{EnvYtDLPBin: " "}, "tools.ytdlp"},
		{"grace", map[string]string{EnvKillGrace: "-2s"}, "process.killGrace"},
		{"log level", map[string]string{EnvLogLevel: "loud"}, "logLevel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader(t, "", tt.env).Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoad_BadDurationInFile(t *testing.T) {
	_, err := newTestLoader(t, "process:\n  killGrace: soon\n", nil).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process.killGrace")
}
