// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package control implements the user-facing lifecycle operations on jobs:
// pause, resume, cancel, shutdown and history maintenance.
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/xgrab/internal/exec/procio"
	"github.com/ManuGH/xgrab/internal/fsutil"
	"github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/metrics"
	"github.com/ManuGH/xgrab/internal/model"
	"github.com/ManuGH/xgrab/internal/registry"
)

const (
	// CancelledByUser is recorded on jobs cancelled through Cancel.
	CancelledByUser = "Download cancelled by user"
	// CancelledByShutdown is recorded on jobs cancelled through StopAll.
	CancelledByShutdown = "Download cancelled: application shutting down"
)

// ErrNotPaused rejects Resume on a job that is not paused.
var ErrNotPaused = errors.New("job is not paused")

// Submitter starts jobs. *orchestrator.Orchestrator implements it.
type Submitter interface {
	SubmitWithKey(req model.DownloadRequest, key string) (model.Job, error)
}

// History is the ledger of terminal jobs. *history.Ledger implements it.
type History interface {
	Append(ctx context.Context, rec model.HistoryRecord) error
	List() []model.HistoryRecord
	Get(id string) (model.HistoryRecord, bool)
	Delete(ctx context.Context, id string) (model.HistoryRecord, error)
	Clear(ctx context.Context) error
}

// Controller applies lifecycle operations to jobs in a registry.
type Controller struct {
	reg     *registry.Registry
	submit  Submitter
	history History
	grace   time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithGrace sets how long a terminated process may take to exit before it
// is killed.
func WithGrace(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.grace = d
		}
	}
}

// New returns a Controller.
func New(reg *registry.Registry, submit Submitter, history History, opts ...Option) *Controller {
	c := &Controller{
		reg:     reg,
		submit:  submit,
		history: history,
		grace:   procio.DefaultGrace,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Jobs returns snapshots of all in-flight jobs, oldest first.
func (c *Controller) Jobs() []model.DownloadProgress {
	return c.reg.List()
}

// Job returns the in-flight job, falling back to history.
func (c *Controller) Job(id string) (model.DownloadProgress, bool) {
	if j, ok := c.reg.Get(id); ok {
		return j, true
	}
	return c.history.Get(id)
}

// Pause stops the job's running process and marks it paused. Partial files
// stay on disk for Resume.
func (c *Controller) Pause(ctx context.Context, id string) (model.Job, error) {
	logger := log.WithContext(log.ContextWithJobID(ctx, id), log.WithComponent("control"))

	job, proc, err := c.reg.Pause(id)
	if err != nil {
		metrics.IncLifecycleOp("pause", outcome(err))
		return job, err
	}
	c.terminate(ctx, id, proc)
	metrics.IncLifecycleOp("pause", "ok")
	logger.Info().Float64("progress", job.Progress).Msg("job paused")
	return job, nil
}

// Resume submits a fresh job for a paused one and drops the paused entry.
// The new job reuses the old artifact key, so the fetcher continues the
// partial files instead of starting over. The paused entry is claimed
// before submitting, so concurrent Resume and Cancel calls on the same job
// see it at most once.
func (c *Controller) Resume(ctx context.Context, id string) (model.Job, error) {
	logger := log.WithContext(log.ContextWithJobID(ctx, id), log.WithComponent("control"))

	old, err := c.reg.ClaimPaused(id)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		metrics.IncLifecycleOp("resume", "not_found")
		return model.Job{}, err
	case err != nil:
		metrics.IncLifecycleOp("resume", "rejected")
		return old, fmt.Errorf("%w: job %s is %s", ErrNotPaused, id, old.Status)
	}

	next, err := c.submit.SubmitWithKey(model.DownloadRequest{
		URL:       old.URL,
		Directory: old.Directory,
		Quality:   old.Quality,
		Cookies:   old.Cookies,
	}, old.ArtifactKey)
	if err != nil {
		if rerr := c.reg.Restore(old); rerr != nil {
			logger.Error().Err(rerr).Msg("failed to restore paused job")
		}
		metrics.IncLifecycleOp("resume", "error")
		return old, err
	}
	metrics.IncLifecycleOp("resume", "ok")
	logger.Info().Str("resumed_as", next.ID).Msg("job resumed")
	return next, nil
}

// Cancel stops the job, deletes its partial files and records it.
func (c *Controller) Cancel(ctx context.Context, id string) (model.Job, error) {
	job, err := c.cancel(ctx, id, CancelledByUser)
	metrics.IncLifecycleOp("cancel", outcome(err))
	return job, err
}

func (c *Controller) cancel(ctx context.Context, id, detail string) (model.Job, error) {
	logger := log.WithContext(log.ContextWithJobID(ctx, id), log.WithComponent("control"))

	job, proc, err := c.reg.Cancel(id, detail)
	if err != nil {
		return job, err
	}
	c.terminate(ctx, id, proc)
	c.finalize(ctx, job)
	logger.Info().Str("reason", detail).Msg("job cancelled")
	return job, nil
}

// finalize removes the cancelled job's artifacts, records it and drops it
// from the registry.
func (c *Controller) finalize(ctx context.Context, job model.Job) {
	logger := log.WithContext(log.ContextWithJobID(ctx, job.ID), log.WithComponent("control"))

	removed, err := fsutil.SweepPrefix(job.Directory, job.TempPrefix(), false)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldPath, job.Directory).Msg("failed to clean up partial files")
	} else if len(removed) > 0 {
		logger.Debug().Strs("files", removed).Msg("partial files removed")
	}
	if err := c.history.Append(ctx, job); err != nil {
		logger.Warn().Err(err).Msg("failed to record cancelled job")
	}
	c.reg.Remove(job.ID)
}

// StopAll cancels every job that is still running or paused. Processes are
// terminated concurrently; each job is recorded with a shutdown message.
func (c *Controller) StopAll(ctx context.Context) error {
	logger := log.WithContext(ctx, log.WithComponent("control"))

	var cancelled []model.Job
	var procs []procio.Process
	for _, j := range c.reg.List() {
		if j.Status.IsTerminal() {
			continue
		}
		job, proc, err := c.reg.Cancel(j.ID, CancelledByShutdown)
		if err != nil {
			// finished on its own in the meantime
			continue
		}
		cancelled = append(cancelled, job)
		if proc != nil {
			procs = append(procs, proc)
		}
	}

	var g errgroup.Group
	for _, p := range procs {
		g.Go(func() error {
			return p.Terminate(c.grace)
		})
	}
	termErr := g.Wait()

	for _, job := range cancelled {
		c.finalize(ctx, job)
	}
	metrics.IncLifecycleOp("stop_all", outcome(termErr))
	logger.Info().
		Int("jobs", len(cancelled)).
		Int("processes", len(procs)).
		Msg("all jobs stopped")
	if termErr != nil {
		return fmt.Errorf("stop all: %w", termErr)
	}
	return nil
}

func (c *Controller) terminate(ctx context.Context, id string, proc procio.Process) {
	if proc == nil {
		return
	}
	if err := proc.Terminate(c.grace); err != nil {
		logger := log.WithContext(log.ContextWithJobID(ctx, id), log.WithComponent("control"))
		logger.Error().Err(err).Int(log.FieldPID, proc.Pid()).Msg("process did not exit")
	}
}

// History returns terminal jobs, most recent first.
func (c *Controller) History() []model.HistoryRecord {
	return c.history.List()
}

// ClearHistory empties the ledger. Downloaded files are kept.
func (c *Controller) ClearHistory(ctx context.Context) error {
	err := c.history.Clear(ctx)
	metrics.IncLifecycleOp("clear_history", outcome(err))
	return err
}

// DeleteDownloaded removes a history record together with the file it
// produced, if any.
func (c *Controller) DeleteDownloaded(ctx context.Context, id string) (model.HistoryRecord, error) {
	logger := log.WithContext(log.ContextWithJobID(ctx, id), log.WithComponent("control"))

	rec, ok := c.history.Get(id)
	if !ok {
		metrics.IncLifecycleOp("delete", "not_found")
		return rec, c.notFound(id)
	}
	if rec.Status == model.StatusCompleted && rec.Filename != "" {
		path, err := fsutil.ConfineRelPath(rec.Directory, rec.Filename)
		if err != nil {
			metrics.IncLifecycleOp("delete", "error")
			return rec, fsutil.Wrap("locate download", err)
		}
		if err := fsutil.RemoveIfExists(path); err != nil {
			metrics.IncLifecycleOp("delete", "error")
			return rec, err
		}
		logger.Info().Str(log.FieldPath, path).Msg("downloaded file deleted")
	}
	rec, err := c.history.Delete(ctx, id)
	metrics.IncLifecycleOp("delete", outcome(err))
	return rec, err
}

func (c *Controller) notFound(id string) error {
	return fmt.Errorf("%w: %s", registry.ErrNotFound, id)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, registry.ErrNotFound):
		return "not_found"
	case errors.Is(err, registry.ErrInvalidTransition), errors.Is(err, ErrNotPaused):
		return "rejected"
	}
	return "error"
}
