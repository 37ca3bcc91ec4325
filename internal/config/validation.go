// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/ManuGH/xgrab/internal/validate"
)

// Validate checks a resolved configuration.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.NotEmpty("dataDir", cfg.DataDir)
	v.Directory("downloads.directory", cfg.Downloads.Directory)
	v.Positive("downloads.attempts", cfg.Downloads.Attempts)
	v.NonNegative("downloads.retries", cfg.Downloads.Retries)

	v.NotEmpty("tools.ytdlp", cfg.Tools.YtDLP)
	v.NotEmpty("tools.ffmpeg", cfg.Tools.FFmpeg)
	v.NonNegativeDuration("tools.socketTimeout", cfg.Tools.SocketTimeout)
	v.NonNegativeDuration("process.killGrace", cfg.Process.KillGrace)

	v.OneOf("history.backend", cfg.History.Backend, []string{BackendJSON, BackendSQLite})

	v.NotEmpty("api.listenAddr", cfg.API.ListenAddr)
	v.NonNegative("api.rateLimit", cfg.API.RateLimit)

	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", err.Error(), cfg.LogLevel)
	}

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
