// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/model"
)

// DefaultJSONFile is the ledger file name inside the data directory.
const DefaultJSONFile = "download_history.json"

// JSONFileStore keeps the ledger as one JSON array, replaced atomically.
type JSONFileStore struct {
	path string
}

// NewJSONFileStore returns a store writing to path.
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

func (s *JSONFileStore) Backend() string { return "json" }

func (s *JSONFileStore) Close() error { return nil }

// Load reads the file. A missing file is an empty ledger.
func (s *JSONFileStore) Load(context.Context) ([]model.HistoryRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var records []model.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return records, nil
}

// Save writes records with fsync and atomic rename.
func (s *JSONFileStore) Save(ctx context.Context, records []model.HistoryRecord) error {
	logger := log.FromContext(ctx)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending history file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending history file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace history file: %w", err)
	}
	return nil
}
