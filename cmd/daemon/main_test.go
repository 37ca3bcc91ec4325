// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/xgrab/internal/config"
	"github.com/ManuGH/xgrab/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath_FlagWins(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "/from/env.yaml")
	assert.Equal(t, "/from/flag.yaml", resolveConfigPath(" /from/flag.yaml "))
}

func TestResolveConfigPath_EnvFallback(t *testing.T) {
	t.Setenv(config.EnvConfigFile, "/from/env.yaml")
	assert.Equal(t, "/from/env.yaml", resolveConfigPath(""))
}

func TestResolveConfigPath_AutoFromDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv(config.EnvDataDir, dir)

	assert.Empty(t, resolveConfigPath(""), "missing config.yaml is not auto-loaded")

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o600))
	assert.Equal(t, path, resolveConfigPath(""))
}

func TestOpenHistoryStore_Backends(t *testing.T) {
	dir := t.TempDir()

	jsonCfg := config.AppConfig{DataDir: filepath.Join(dir, "json")}
	jsonCfg.History.Backend = config.BackendJSON
	store, err := openHistoryStore(jsonCfg)
	require.NoError(t, err)
	assert.IsType(t, &history.JSONFileStore{}, store)
	require.NoError(t, store.Close())

	sqlCfg := config.AppConfig{DataDir: filepath.Join(dir, "sqlite")}
	sqlCfg.History.Backend = config.BackendSQLite
	store, err = openHistoryStore(sqlCfg)
	require.NoError(t, err)
	assert.Equal(t, config.BackendSQLite, store.Backend())
	require.NoError(t, store.Close())
	assert.FileExists(t, sqlCfg.HistoryPath())
}
