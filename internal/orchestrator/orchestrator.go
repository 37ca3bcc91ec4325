// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package orchestrator drives download jobs through their stages:
// probe, select, acquire one or two streams, merge, promote.
//
// Every job runs in its own goroutine. All job state lives in the
// registry; the orchestrator only holds the job id. A job that is paused
// or cancelled underneath a running stage is left to the controller that
// interrupted it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/xgrab/internal/exec/ffmpeg"
	"github.com/ManuGH/xgrab/internal/exec/procio"
	"github.com/ManuGH/xgrab/internal/exec/ytdlp"
	"github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/model"
	"github.com/ManuGH/xgrab/internal/registry"
)

// ErrInvalidRequest rejects a request before a job is registered.
var ErrInvalidRequest = errors.New("invalid download request")

// Prober retrieves metadata for a URL.
type Prober interface {
	Probe(ctx context.Context, url, cookies string, tracker procio.Tracker) (model.VideoMetadata, error)
}

// Fetcher acquires a single stream into a file.
type Fetcher interface {
	Fetch(ctx context.Context, req ytdlp.FetchRequest) error
}

// Merger muxes a video and an audio file.
type Merger interface {
	Merge(ctx context.Context, req ffmpeg.MergeRequest) error
}

// Ledger records terminal jobs.
type Ledger interface {
	Append(ctx context.Context, rec model.HistoryRecord) error
}

// Config holds request defaults.
type Config struct {
	// Directory is used when a request names none.
	Directory string
	// Quality is used when a request names none.
	Quality string
	// CookieDir holds per-job cookie files; empty means the system temp dir.
	CookieDir string
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Registry *registry.Registry
	Prober   Prober
	Fetcher  Fetcher
	Merger   Merger
	Ledger   Ledger
}

// Orchestrator starts and drives jobs.
type Orchestrator struct {
	reg     *registry.Registry
	prober  Prober
	fetcher Fetcher
	merger  Merger
	ledger  Ledger
	cfg     Config

	base  context.Context
	now   func() time.Time
	newID func() string

	wg sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBaseContext sets the parent context of every job. Jobs outlive the
// request that submitted them, so they never inherit its cancellation.
func WithBaseContext(ctx context.Context) Option {
	return func(o *Orchestrator) { o.base = ctx }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// New returns an Orchestrator.
func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		reg:     deps.Registry,
		prober:  deps.Prober,
		fetcher: deps.Fetcher,
		merger:  deps.Merger,
		ledger:  deps.Ledger,
		cfg:     cfg,
		base:    context.Background(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry returns the registry jobs are tracked in.
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// Submit registers a job for req and starts driving it in the background.
// It returns the initial snapshot.
func (o *Orchestrator) Submit(req model.DownloadRequest) (model.Job, error) {
	return o.SubmitWithKey(req, "")
}

// SubmitWithKey is Submit with an explicit artifact key. A resumed job
// passes the key of the job it replaces so partial files are continued.
func (o *Orchestrator) SubmitWithKey(req model.DownloadRequest, key string) (model.Job, error) {
	job, err := o.register(req, key)
	if err != nil {
		return model.Job{}, err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, _ = o.drive(job)
	}()
	return job, nil
}

// Download runs a job to completion on the calling goroutine.
func (o *Orchestrator) Download(req model.DownloadRequest) model.DownloadResponse {
	job, err := o.register(req, "")
	if err != nil {
		return model.Failed(err)
	}
	o.wg.Add(1)
	defer o.wg.Done()

	final, err := o.drive(job)
	if err != nil {
		return model.Failed(err)
	}
	return model.Succeeded(final.Directory, final.Filename)
}

// Wait blocks until every job goroutine has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) register(req model.DownloadRequest, key string) (model.Job, error) {
	if req.URL == "" {
		return model.Job{}, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	dir := req.Directory
	if dir == "" {
		dir = o.cfg.Directory
	}
	if dir == "" {
		return model.Job{}, fmt.Errorf("%w: no download directory", ErrInvalidRequest)
	}
	quality := req.Quality
	if quality == "" {
		quality = o.cfg.Quality
	}

	id := o.newID()
	if key == "" {
		key = id
	}
	job := model.Job{
		ID:          id,
		URL:         req.URL,
		Status:      model.StatusAnalyzing,
		StartedAt:   o.now(),
		Directory:   dir,
		Quality:     quality,
		ArtifactKey: key,
		Cookies:     req.Cookies,
	}
	if err := o.reg.Register(job); err != nil {
		return model.Job{}, err
	}
	snap, _ := o.reg.Get(id)

	logger := log.WithComponent("orchestrator")
	logger.Info().
		Str(log.FieldJobID, id).
		Str(log.FieldURL, req.URL).
		Str("quality", quality).
		Str(log.FieldPath, dir).
		Msg("job submitted")
	return snap, nil
}
