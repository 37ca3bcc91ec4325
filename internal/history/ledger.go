// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package history is the durable ledger of finished jobs.
//
// Records are appended once, when a job reaches a terminal status, and the
// whole set is written through to the backing store on every mutation.
// Unreadable or malformed stored data is replaced by an empty ledger.
package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/metrics"
	"github.com/ManuGH/xgrab/internal/model"
)

var (
	ErrNotFound    = errors.New("history record not found")
	ErrNotTerminal = errors.New("job is not terminal")
	ErrPersist     = errors.New("history persist failed")
)

// Store persists the full set of records.
type Store interface {
	Load(ctx context.Context) ([]model.HistoryRecord, error)
	Save(ctx context.Context, records []model.HistoryRecord) error
	Backend() string
	Close() error
}

// Ledger is the in-memory view of the history with write-through persistence.
type Ledger struct {
	mu      sync.Mutex
	store   Store
	records []model.HistoryRecord // insertion order
}

// Open loads the ledger from store. Load failures never fail Open: the
// ledger starts empty and the store is immediately rewritten as empty.
func Open(ctx context.Context, store Store) *Ledger {
	logger := log.WithComponent("history")
	l := &Ledger{store: store}

	records, err := store.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("backend", store.Backend()).Msg("history unreadable, starting empty")
		if err := l.persist(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to reset history storage")
		}
		return l
	}
	l.records = dedupe(records)
	logger.Info().Int("records", len(l.records)).Str("backend", store.Backend()).Msg("history loaded")
	return l
}

// dedupe keeps the first record per id.
func dedupe(in []model.HistoryRecord) []model.HistoryRecord {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.HistoryRecord, 0, len(in))
	for _, r := range in {
		if _, ok := seen[r.ID]; ok || r.ID == "" {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Append records a terminal job. A second append for the same id is ignored.
func (l *Ledger) Append(ctx context.Context, rec model.HistoryRecord) error {
	if !rec.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, rec.ID, rec.Status)
	}
	rec.Cookies = ""
	rec.ArtifactKey = ""

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.indexLocked(rec.ID) >= 0 {
		logger := log.WithContext(ctx, log.WithComponent("history"))
		logger.Warn().Str(log.FieldJobID, rec.ID).Msg("duplicate history append ignored")
		return nil
	}
	l.records = append(l.records, rec)
	return l.persist(ctx)
}

// List returns all records, most recent first (end time, falling back to start time).
func (l *Ledger) List() []model.HistoryRecord {
	l.mu.Lock()
	out := slices.Clone(l.records)
	l.mu.Unlock()

	slices.SortStableFunc(out, func(a, b model.HistoryRecord) int {
		return b.SortTime().Compare(a.SortTime())
	})
	return out
}

// Get returns the record for id.
func (l *Ledger) Get(id string) (model.HistoryRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.indexLocked(id); i >= 0 {
		return l.records[i], true
	}
	return model.HistoryRecord{}, false
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Delete removes one record and returns it.
func (l *Ledger) Delete(ctx context.Context, id string) (model.HistoryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(id)
	if i < 0 {
		return model.HistoryRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec := l.records[i]
	l.records = slices.Delete(l.records, i, i+1)
	return rec, l.persist(ctx)
}

// Clear removes every record.
func (l *Ledger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	return l.persist(ctx)
}

// Close releases the store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

func (l *Ledger) indexLocked(id string) int {
	return slices.IndexFunc(l.records, func(r model.HistoryRecord) bool { return r.ID == id })
}

// persist writes the current set; callers hold l.mu (or own l exclusively).
func (l *Ledger) persist(ctx context.Context) error {
	snapshot := slices.Clone(l.records)
	if snapshot == nil {
		snapshot = []model.HistoryRecord{}
	}
	if err := l.store.Save(ctx, snapshot); err != nil {
		metrics.IncLedgerWrite(l.store.Backend(), "error")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	metrics.IncLedgerWrite(l.store.Backend(), "ok")
	return nil
}
