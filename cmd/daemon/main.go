// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ManuGH/xgrab/internal/api"
	"github.com/ManuGH/xgrab/internal/config"
	"github.com/ManuGH/xgrab/internal/control"
	"github.com/ManuGH/xgrab/internal/daemon"
	"github.com/ManuGH/xgrab/internal/exec/ffmpeg"
	"github.com/ManuGH/xgrab/internal/exec/ytdlp"
	"github.com/ManuGH/xgrab/internal/health"
	"github.com/ManuGH/xgrab/internal/history"
	xglog "github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/orchestrator"
	"github.com/ManuGH/xgrab/internal/registry"
	"github.com/ManuGH/xgrab/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until config is loaded
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "xgrab",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	effectiveConfigPath := resolveConfigPath(*configPath)
	cfg, err := config.NewLoader(effectiveConfigPath, version.Version).Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "xgrab",
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")

	source := "env+defaults"
	if effectiveConfigPath != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", effectiveConfigPath).
		Str("download_dir", cfg.Downloads.Directory).
		Str("quality", cfg.Downloads.Quality).
		Str("history_backend", cfg.History.Backend).
		Msg("loaded configuration")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed")
	}

	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Str("event", "daemon.exit").Msg("daemon stopped with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "daemon.exit").Msg("daemon stopped")
}

// resolveConfigPath prefers --config, then XGRAB_CONFIG, then
// <data dir>/config.yaml when that file exists.
func resolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(config.ParseString(config.EnvConfigFile, "")); p != "" {
		return p
	}
	dataDir := strings.TrimSpace(config.ParseString(config.EnvDataDir, ""))
	if dataDir == "" {
		return ""
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}

func openHistoryStore(cfg config.AppConfig) (history.Store, error) {
	path := cfg.HistoryPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	switch cfg.History.Backend {
	case config.BackendSQLite:
		s, err := history.OpenSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return history.NewJSONFileStore(path), nil
	}
}

func run(ctx context.Context, cfg config.AppConfig) error {
	logger := xglog.WithComponent("daemon")

	store, err := openHistoryStore(cfg)
	if err != nil {
		return err
	}
	ledger := history.Open(ctx, store)
	if cfg.History.ClearOnStartup {
		if err := ledger.Clear(ctx); err != nil {
			logger.Warn().Err(err).Str("event", "history.clear_failed").Msg("failed to clear history on startup")
		} else {
			logger.Info().Str("event", "history.cleared").Msg("history cleared on startup")
		}
	}

	reg := registry.New()
	prober := ytdlp.NewProber(cfg.Tools.YtDLP, cfg.Tools.SocketTimeout)
	prober.CookieDir = filepath.Join(cfg.DataDir, "cookies")
	if err := os.MkdirAll(prober.CookieDir, 0o700); err != nil {
		_ = ledger.Close()
		return fmt.Errorf("create cookie dir: %w", err)
	}

	// Jobs get their own root so a signal does not kill tools mid-write;
	// StopAll terminates them in order during shutdown.
	jobsCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	orch := orchestrator.New(orchestrator.Deps{
		Registry: reg,
		Prober:   prober,
		Fetcher:  ytdlp.NewFetcher(cfg.Tools.YtDLP, cfg.Downloads.Retries, cfg.Downloads.Attempts),
		Merger:   ffmpeg.NewMerger(cfg.Tools.FFmpeg),
		Ledger:   ledger,
	}, orchestrator.Config{
		Directory: cfg.Downloads.Directory,
		Quality:   cfg.Downloads.Quality,
		CookieDir: prober.CookieDir,
	}, orchestrator.WithBaseContext(jobsCtx))

	ctl := control.New(reg, orch, ledger, control.WithGrace(cfg.Process.KillGrace))

	handler := api.New(orch, ctl, api.Config{
		Version:         cfg.Version,
		SubmitRateLimit: cfg.API.RateLimit,
		Readiness:       health.NewReadiness(cfg),
	}).Handler()

	mgr, err := daemon.NewManager(daemon.DefaultServerConfig(cfg.API.ListenAddr), daemon.Deps{
		Logger:     logger,
		APIHandler: handler,
	})
	if err != nil {
		_ = ledger.Close()
		return err
	}

	// Hooks run LIFO: stop jobs, wait for their goroutines, then close the ledger.
	mgr.RegisterShutdownHook("history", func(context.Context) error {
		return ledger.Close()
	})
	mgr.RegisterShutdownHook("jobs", func(context.Context) error {
		cancelJobs()
		orch.Wait()
		return nil
	})
	mgr.RegisterShutdownHook("controller", ctl.StopAll)

	return mgr.Start(ctx)
}
